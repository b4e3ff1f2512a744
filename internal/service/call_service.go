package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"callcast/config"
	"callcast/internal/domain"
	"callcast/internal/metrics"
	"callcast/internal/models"
	"callcast/internal/repository"
	"callcast/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrCostPlanNotFound  = errors.New("cost plan not found")
	ErrOrderNotOpen      = errors.New("order is not accepting applications")
	ErrNotOrderOwner     = errors.New("order belongs to another guest")
	ErrNotCast           = errors.New("only casts can apply")
	ErrCastBusy          = errors.New("cast is already joining another order")
	ErrAlreadyApplied    = errors.New("already applied to this order")
	ErrJoinNotFound      = errors.New("application not found")
	ErrPersonExceeded    = errors.New("order already has enough casts")
	ErrAlreadyConfirmed  = errors.New("order already confirmed")
	ErrInvalidTransition = errors.New("order status does not allow this action")
	ErrNotParticipant    = errors.New("not a confirmed cast of this order")
	ErrAlreadyStarted    = errors.New("meeting already started")
	ErrNotStarted        = errors.New("meeting not started")
	ErrAlreadyEnded      = errors.New("meeting already ended")
)

const (
	msgShortageGuest     = "キャストが集まらなかったため、ご依頼はキャンセルされました。"
	msgShortageApplicant = "ご応募いただいた案件は人数が集まらなかったためキャンセルとなりました。"
	msgNotSelected       = "ご応募いただいた案件は他のキャストで確定しました。またのご応募をお待ちしております。"
	msgCancelled         = "ご依頼は運営によりキャンセルされました。"
	msgProposal          = "運営からキャストのご提案があります。内容をご確認ください。"
	msgMeetStarted       = "合流しました。"
	msgMeetEnded         = "解散しました。"
	msgTenLeft           = "予定終了時刻の10分前です。終了時刻を過ぎると自動延長となります。"
)

// CallService runs the order lifecycle: collection, matching, meeting and
// hand-off to settlement.
type CallService struct {
	db      *gorm.DB
	cfg     config.CallsConfig
	chat    *ChatService
	notify  *NotificationService
	billing *BillingService
	now     func() time.Time
	log     *logrus.Entry
}

func NewCallService(db *gorm.DB, cfg config.CallsConfig, chat *ChatService, notify *NotificationService, billing *BillingService) *CallService {
	return &CallService{
		db:      db,
		cfg:     cfg,
		chat:    chat,
		notify:  notify,
		billing: billing,
		now:     time.Now,
		log:     logger.With("calls"),
	}
}

// SetClock replaces the time source.
func (s *CallService) SetClock(now func() time.Time) { s.now = now }

// CreateOrderInput is what a guest fills in when calling casts.
type CreateOrderInput struct {
	ParentLocationID *uint     `json:"parent_location_id"`
	LocationID       *uint     `json:"location_id"`
	LocationOther    string    `json:"location_other"`
	Place            string    `json:"place"`
	Reservation      string    `json:"reservation"`
	MeetTime         string    `json:"meet_time"`
	MeetTimeISO      time.Time `json:"meet_time_iso" binding:"required"`
	TimeOther        bool      `json:"time_other"`
	Person           int       `json:"person" binding:"required"`
	Period           int       `json:"period" binding:"required"`
	CostPlanID       *uint     `json:"cost_plan_id"`
	IsPrivate        bool      `json:"is_private"`
	Remark           string    `json:"remark"`
	SituationIDs     []uint    `json:"situations"`
	DesiredIDs       []uint    `json:"desired"`
}

func (in CreateOrderInput) validate() error {
	if in.Person < 1 {
		return fmt.Errorf("%w: person must be at least 1", ErrInvalidOrder)
	}
	if in.Period < 1 {
		return fmt.Errorf("%w: period must be at least 1 hour", ErrInvalidOrder)
	}
	if in.MeetTimeISO.IsZero() {
		return fmt.Errorf("%w: meet time is required", ErrInvalidOrder)
	}
	if in.IsPrivate && len(in.DesiredIDs) == 0 {
		return fmt.Errorf("%w: a private order needs desired casts", ErrInvalidOrder)
	}
	return nil
}

func (s *CallService) collectWindow() time.Duration {
	def := int64(s.cfg.CollectWindow / time.Minute)
	mins := repository.NewSettingRepository(s.db).GetInt(models.SettingCollectMinutes, def)
	return time.Duration(mins) * time.Minute
}

func (s *CallService) nightFund() int64 {
	return repository.NewSettingRepository(s.db).GetInt(models.SettingNightFund, s.cfg.NightFund)
}

// buildOrder snapshots prices and timing for a new order.
func (s *CallService) buildOrder(guestID uint, in CreateOrderInput, status domain.OrderStatus) (*models.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.CostPlanID == nil {
		return nil, ErrCostPlanNotFound
	}
	plan, err := repository.NewBasicsRepository(s.db).GetCostPlan(*in.CostPlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCostPlanNotFound
		}
		return nil, err
	}
	now := s.now()
	predict := in.MeetTimeISO.Add(time.Duration(in.Period) * time.Hour)
	return &models.Order{
		Status:           status,
		Reservation:      in.Reservation,
		Place:            in.Place,
		UserID:           guestID,
		ParentLocationID: in.ParentLocationID,
		LocationID:       in.LocationID,
		LocationOther:    in.LocationOther,
		MeetTime:         in.MeetTime,
		MeetTimeISO:      in.MeetTimeISO,
		TimeOther:        in.TimeOther,
		Person:           in.Person,
		Period:           in.Period,
		CostPlanID:       &plan.ID,
		CostValue:        plan.Cost,
		CostExtended:     plan.ExtendCost,
		IsPrivate:        in.IsPrivate,
		Remark:           in.Remark,
		CollectStartedAt: now,
		CollectEndedAt:   now.Add(s.collectWindow()),
		EndedPredict:     &predict,
		NightStartedAt:   s.cfg.NightStart,
		NightEndedAt:     s.cfg.NightEnd,
		NightFund:        s.nightFund(),
	}, nil
}

// CreateOrder opens a collecting order and announces it to eligible casts.
func (s *CallService) CreateOrder(ctx context.Context, guestID uint, in CreateOrderInput) (*models.Order, error) {
	order, err := s.buildOrder(guestID, in, domain.OrderCollecting)
	if err != nil {
		return nil, err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		orders := repository.NewOrderRepository(tx)
		if err := orders.Create(order); err != nil {
			return err
		}
		if err := orders.SetSituations(order, in.SituationIDs); err != nil {
			return err
		}
		return orders.SetDesired(order, in.DesiredIDs)
	})
	if err != nil {
		return nil, err
	}
	order, err = s.GetOrder(order.ID)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"order_id": order.ID, "guest_id": guestID}).Info("[Calls] order created")
	s.notify.SendCall(ctx, s.audience(order), domain.CallCreate, order)
	return order, nil
}

// audience is every cast who should see the order: desired casts, plus the
// casts of the area unless the order is private.
func (s *CallService) audience(order *models.Order) []uint {
	ids := make([]uint, 0, len(order.Desired))
	for _, d := range order.Desired {
		ids = append(ids, d.ID)
	}
	if order.IsPrivate || order.ParentLocationID == nil {
		return ids
	}
	area, err := repository.NewMemberRepository(s.db).CastIDsInLocation(*order.ParentLocationID)
	if err != nil {
		s.log.WithError(err).Warn("[Calls] load area casts")
		return ids
	}
	return append(ids, area...)
}

// UpdateOrder edits a collecting order and recomputes its predicted end.
func (s *CallService) UpdateOrder(ctx context.Context, guestID, orderID uint, in CreateOrderInput) (*models.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		orders := repository.NewOrderRepository(tx)
		order, err := loadOrder(orders, orderID)
		if err != nil {
			return err
		}
		if order.UserID != guestID {
			return ErrNotOrderOwner
		}
		if order.Status != domain.OrderCollecting {
			return ErrInvalidTransition
		}
		predict := in.MeetTimeISO.Add(time.Duration(in.Period) * time.Hour)
		order.Place = in.Place
		order.Reservation = in.Reservation
		order.LocationID = in.LocationID
		order.LocationOther = in.LocationOther
		order.MeetTime = in.MeetTime
		order.MeetTimeISO = in.MeetTimeISO
		order.TimeOther = in.TimeOther
		order.Person = in.Person
		order.Period = in.Period
		order.Remark = in.Remark
		order.EndedPredict = &predict
		if err := orders.Save(order); err != nil {
			return err
		}
		return orders.SetSituations(order, in.SituationIDs)
	})
	if err != nil {
		return nil, err
	}
	order, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	s.notify.SendCall(ctx, append(s.audience(order), joinUserIDs(order.Joins, false)...), domain.CallUpdate, order)
	return order, nil
}

func (s *CallService) GetOrder(id uint) (*models.Order, error) {
	return loadOrder(repository.NewOrderRepository(s.db), id)
}

func (s *CallService) ListGuestOrders(guestID uint, statuses []domain.OrderStatus, page, limit int) ([]models.Order, int64, error) {
	return repository.NewOrderRepository(s.db).ListForGuest(guestID, statuses, page, limit)
}

// ListOpenForCast lists orders the cast may still apply to in their area.
func (s *CallService) ListOpenForCast(castID uint) ([]models.Order, error) {
	cast, err := repository.NewMemberRepository(s.db).GetByID(castID)
	if err != nil {
		return nil, err
	}
	return repository.NewOrderRepository(s.db).ListOpenForCast(castID, cast.LocationID)
}

func (s *CallService) ListJoined(castID uint, page, limit int) ([]models.Order, int64, error) {
	return repository.NewOrderRepository(s.db).ListJoinedByCast(castID, page, limit)
}

func (s *CallService) ListAll(status *domain.OrderStatus, page, limit int) ([]models.Order, int64, error) {
	return repository.NewOrderRepository(s.db).ListAll(status, page, limit)
}

// Apply registers a cast's candidacy. Reaching the requested headcount moves
// a collecting order to selecting.
func (s *CallService) Apply(ctx context.Context, castID, orderID uint) (*models.Join, error) {
	var join *models.Join
	err := s.db.Transaction(func(tx *gorm.DB) error {
		orders := repository.NewOrderRepository(tx)
		cast, err := repository.NewMemberRepository(tx).GetByID(castID)
		if err != nil {
			return err
		}
		if !cast.IsCast() {
			return ErrNotCast
		}
		if cast.IsJoining {
			return ErrCastBusy
		}
		order, err := loadOrder(orders, orderID)
		if err != nil {
			return err
		}
		if !order.Status.IsOpen() {
			return ErrOrderNotOpen
		}
		if order.IsPrivate && !desires(order, castID) {
			return ErrOrderNotOpen
		}
		if _, err := orders.GetJoin(orderID, castID); err == nil {
			return ErrAlreadyApplied
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		join = &models.Join{OrderID: orderID, UserID: castID, Status: domain.JoinApplied}
		if err := orders.CreateJoin(join); err != nil {
			return err
		}
		live, err := orders.CountLiveJoins(orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderCollecting && live >= int64(order.Person) {
			_, err := transition(orders, orderID, []domain.OrderStatus{domain.OrderCollecting}, domain.OrderSelecting, nil)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	order, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	s.notify.SendApplier(ctx, order.UserID, order)
	s.notify.SendCall(ctx, []uint{castID}, domain.CallMine, order)
	return join, nil
}

// Withdraw drops a cast's application before it is confirmed.
func (s *CallService) Withdraw(ctx context.Context, castID, orderID uint) error {
	orders := repository.NewOrderRepository(s.db)
	order, err := loadOrder(orders, orderID)
	if err != nil {
		return err
	}
	if !order.Status.IsOpen() {
		return ErrOrderNotOpen
	}
	join, err := orders.GetJoin(orderID, castID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJoinNotFound
		}
		return err
	}
	if join.IsConfirmed() {
		return ErrAlreadyConfirmed
	}
	if err := orders.UpdateJoin(join.ID, map[string]interface{}{"dropped": true}); err != nil {
		return err
	}
	order, err = s.GetOrder(orderID)
	if err != nil {
		return err
	}
	s.notify.SendApplier(ctx, order.UserID, order)
	return nil
}

// SelectCast confirms one applicant chosen by the guest and finalizes the
// match once the headcount is reached. The order row stays locked from the
// headcount check to the confirm.
func (s *CallService) SelectCast(ctx context.Context, guestID, orderID, castID uint) (*models.Order, error) {
	var match *matchResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		orders := repository.NewOrderRepository(tx)
		order, err := lockOrder(orders, orderID)
		if err != nil {
			return err
		}
		if order.UserID != guestID {
			return ErrNotOrderOwner
		}
		if order.Status != domain.OrderSelecting {
			return ErrInvalidTransition
		}
		join, err := orders.GetJoin(orderID, castID)
		if err != nil || join.Dropped {
			return ErrJoinNotFound
		}
		if join.IsConfirmed() {
			return ErrAlreadyConfirmed
		}
		if err := checkAvailable(tx, []uint{castID}); err != nil {
			return err
		}
		confirmed, err := orders.CountConfirmed(orderID)
		if err != nil {
			return err
		}
		if confirmed >= int64(order.Person) {
			return ErrPersonExceeded
		}
		ok, err := orders.ConfirmJoin(join.ID, domain.SelectionGuest)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyConfirmed
		}
		if confirmed+1 < int64(order.Person) {
			return nil
		}
		match, err = s.finalizeTx(tx, orderID, []domain.OrderStatus{domain.OrderSelecting})
		return err
	})
	if err != nil {
		return nil, err
	}
	if match == nil {
		order, err := s.GetOrder(orderID)
		if err != nil {
			return nil, err
		}
		s.notify.SendCall(ctx, []uint{castID}, domain.CallUpdate, order)
		return order, nil
	}
	return s.announceMatch(ctx, match)
}

// matchResult is what a finalized match must announce once committed.
type matchResult struct {
	orderID uint
	castIDs []uint
	removed []uint // applicants of this order who were not picked
	others  []uint // open orders the picked casts were withdrawn from
	room    *models.Room
}

// checkAvailable locks the casts and fails when one is already booked.
func checkAvailable(tx *gorm.DB, castIDs []uint) error {
	casts, err := repository.NewMemberRepository(tx).LockByIDs(castIDs)
	if err != nil {
		return err
	}
	for _, c := range casts {
		if c.IsJoining {
			return fmt.Errorf("%w: member %d", ErrCastBusy, c.ID)
		}
	}
	return nil
}

// finalize confirms the order with its confirmed joins. A second call for
// the same order fails with ErrAlreadyConfirmed.
func (s *CallService) finalize(ctx context.Context, orderID uint, from []domain.OrderStatus) (*models.Order, error) {
	var match *matchResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := lockOrder(repository.NewOrderRepository(tx), orderID); err != nil {
			return err
		}
		var err error
		match, err = s.finalizeTx(tx, orderID, from)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.announceMatch(ctx, match)
}

// finalizeTx does the writes of a match inside the caller's transaction:
// every other applicant is dropped, the picked casts leave the other open
// orders they applied to, the order room is opened and the casts are marked
// as joining.
func (s *CallService) finalizeTx(tx *gorm.DB, orderID uint, from []domain.OrderStatus) (*matchResult, error) {
	orders := repository.NewOrderRepository(tx)
	order, err := loadOrder(orders, orderID)
	if err != nil {
		return nil, err
	}
	ok, err := transition(orders, orderID, from, domain.OrderConfirmed, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyConfirmed
	}
	res := &matchResult{orderID: orderID}
	if res.removed, err = orders.DeleteUnconfirmed(orderID); err != nil {
		return nil, err
	}
	res.castIDs = joinUserIDs(order.Joins, true)
	if len(res.castIDs) == 0 {
		return nil, fmt.Errorf("%w: no confirmed casts", ErrInvalidTransition)
	}
	if len(res.castIDs) > order.Person {
		return nil, ErrPersonExceeded
	}
	if err := checkAvailable(tx, res.castIDs); err != nil {
		return nil, err
	}
	if res.others, err = orders.DropOpenJoins(res.castIDs, orderID); err != nil {
		return nil, err
	}
	if res.room, err = createOrderRoom(tx, order, res.castIDs); err != nil {
		return nil, err
	}
	if err := orders.SetRoom(orderID, res.room.ID); err != nil {
		return nil, err
	}
	if err := repository.NewMemberRepository(tx).SetJoining(res.castIDs, true); err != nil {
		return nil, err
	}
	return res, nil
}

// announceMatch tells everyone involved about a committed match.
func (s *CallService) announceMatch(ctx context.Context, m *matchResult) (*models.Order, error) {
	order, err := s.GetOrder(m.orderID)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"order_id": m.orderID, "casts": m.castIDs}).Info("[Calls] order confirmed")
	s.notify.SendRoom(ctx, append([]uint{order.UserID}, m.castIDs...), m.room)
	s.notify.SendCall(ctx, m.castIDs, domain.CallUpdate, order)
	s.notify.SendApplier(ctx, order.UserID, order)
	for _, id := range m.removed {
		if _, err := s.chat.SendSuperMessage(ctx, domain.RoomTypeSystem, id, msgNotSelected, nil); err != nil {
			s.log.WithError(err).WithField("member_id", id).Warn("[Calls] notify dropped applicant")
		}
	}
	s.notify.SendCall(ctx, m.removed, domain.CallDelete, order)
	for _, id := range m.others {
		other, err := s.GetOrder(id)
		if err != nil {
			s.log.WithError(err).WithField("order_id", id).Warn("[Calls] load order left by booked cast")
			continue
		}
		s.notify.SendApplier(ctx, other.UserID, other)
		s.notify.SendCall(ctx, m.castIDs, domain.CallDelete, other)
	}
	return order, nil
}

// ProposeInput is an operator-built order offered to a guest with chosen casts.
type ProposeInput struct {
	GuestID uint             `json:"guest_id" binding:"required"`
	CastIDs []uint           `json:"cast_ids" binding:"required"`
	Order   CreateOrderInput `json:"order"`
}

// Propose creates an order already holding confirmed casts; the guest accepts it to confirm.
func (s *CallService) Propose(ctx context.Context, in ProposeInput) (*models.Order, error) {
	if len(in.CastIDs) == 0 {
		return nil, fmt.Errorf("%w: no casts proposed", ErrInvalidOrder)
	}
	in.Order.Person = len(in.CastIDs)
	casts, err := repository.NewMemberRepository(s.db).ListByIDs(in.CastIDs)
	if err != nil {
		return nil, err
	}
	if len(casts) != len(in.CastIDs) {
		return nil, fmt.Errorf("%w: unknown cast", ErrInvalidOrder)
	}
	for _, c := range casts {
		if !c.IsCast() {
			return nil, fmt.Errorf("%w: member %d is not a cast", ErrInvalidOrder, c.ID)
		}
	}
	order, err := s.buildOrder(in.GuestID, in.Order, domain.OrderProposed)
	if err != nil {
		return nil, err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		orders := repository.NewOrderRepository(tx)
		if err := orders.Create(order); err != nil {
			return err
		}
		if err := orders.SetSituations(order, in.Order.SituationIDs); err != nil {
			return err
		}
		for _, id := range in.CastIDs {
			j := &models.Join{OrderID: order.ID, UserID: id, Status: domain.JoinConfirmed, Selection: domain.SelectionAdmin}
			if err := orders.CreateJoin(j); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	order, err = s.GetOrder(order.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.chat.SendSuperMessage(ctx, domain.RoomTypeAdmin, in.GuestID, msgProposal, nil); err != nil {
		s.log.WithError(err).Warn("[Calls] proposal message")
	}
	s.notify.SendApplier(ctx, in.GuestID, order)
	return order, nil
}

// AcceptProposal lets the guest confirm an operator proposal.
func (s *CallService) AcceptProposal(ctx context.Context, guestID, orderID uint) (*models.Order, error) {
	order, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != guestID {
		return nil, ErrNotOrderOwner
	}
	if order.Status != domain.OrderProposed {
		return nil, ErrInvalidTransition
	}
	return s.finalize(ctx, orderID, []domain.OrderStatus{domain.OrderProposed})
}

// StartMeeting records a confirmed cast meeting the guest; the first start
// moves the order to meeting.
func (s *CallService) StartMeeting(ctx context.Context, castID, orderID uint) (*models.Join, error) {
	now := s.now()
	var join *models.Join
	var roomID *uint
	err := s.db.Transaction(func(tx *gorm.DB) error {
		orders := repository.NewOrderRepository(tx)
		order, err := loadOrder(orders, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderConfirmed && order.Status != domain.OrderMeeting {
			return ErrInvalidTransition
		}
		join, err = confirmedJoin(orders, orderID, castID)
		if err != nil {
			return err
		}
		if join.IsStarted {
			return ErrAlreadyStarted
		}
		join.IsStarted = true
		join.StartedAt = &now
		if err := orders.UpdateJoin(join.ID, map[string]interface{}{"is_started": true, "started_at": now}); err != nil {
			return err
		}
		roomID = order.RoomID
		if order.Status == domain.OrderConfirmed {
			_, err = transition(orders, orderID, []domain.OrderStatus{domain.OrderConfirmed}, domain.OrderMeeting, nil)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.roomNotice(ctx, roomID, castID, msgMeetStarted)
	if order, err := s.GetOrder(orderID); err == nil {
		s.notify.SendCall(ctx, []uint{order.UserID, castID}, domain.CallUpdate, order)
	}
	return join, nil
}

// EndMeeting records a cast leaving. When every cast who started has ended
// the order is meet-completed and settled.
func (s *CallService) EndMeeting(ctx context.Context, castID, orderID uint) (*models.Order, error) {
	now := s.now()
	var (
		completed bool
		roomID    *uint
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		orders := repository.NewOrderRepository(tx)
		order, err := loadOrder(orders, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderMeeting {
			return ErrInvalidTransition
		}
		join, err := confirmedJoin(orders, orderID, castID)
		if err != nil {
			return err
		}
		if !join.IsStarted {
			return ErrNotStarted
		}
		if join.IsEnded {
			return ErrAlreadyEnded
		}
		if err := orders.UpdateJoin(join.ID, map[string]interface{}{"is_ended": true, "ended_at": now}); err != nil {
			return err
		}
		roomID = order.RoomID
		// casts who never started are absent and do not hold the order open
		for _, j := range order.Joins {
			if j.IsConfirmed() && j.ID != join.ID && j.IsStarted && !j.IsEnded {
				return nil
			}
		}
		completed, err = transition(orders, orderID, []domain.OrderStatus{domain.OrderMeeting}, domain.OrderMeetCompleted,
			map[string]interface{}{"ended_at": now})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.roomNotice(ctx, roomID, castID, msgMeetEnded)
	if completed && s.billing != nil {
		if _, err := s.billing.Settle(ctx, orderID); err != nil {
			s.log.WithError(err).WithField("order_id", orderID).Error("[Calls] settlement failed")
		}
	}
	order, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	s.notify.SendCall(ctx, append([]uint{order.UserID}, joinUserIDs(order.Joins, true)...), domain.CallUpdate, order)
	return order, nil
}

// Cancel is the operator cancellation of an order that has not met yet.
func (s *CallService) Cancel(ctx context.Context, orderID uint, reason string) (*models.Order, error) {
	from := []domain.OrderStatus{domain.OrderCollecting, domain.OrderSelecting, domain.OrderProposed, domain.OrderConfirmed}
	return s.abort(ctx, orderID, from, domain.OrderCancelled, reason)
}

// MarkError flags any open order as broken and releases its casts.
func (s *CallService) MarkError(ctx context.Context, orderID uint, reason string) (*models.Order, error) {
	from := []domain.OrderStatus{
		domain.OrderCollecting, domain.OrderSelecting, domain.OrderProposed, domain.OrderConfirmed,
		domain.OrderMeeting, domain.OrderMeetCompleted, domain.OrderCompleted,
	}
	return s.abort(ctx, orderID, from, domain.OrderError, reason)
}

func (s *CallService) abort(ctx context.Context, orderID uint, from []domain.OrderStatus, to domain.OrderStatus, reason string) (*models.Order, error) {
	var joined []uint
	err := s.db.Transaction(func(tx *gorm.DB) error {
		orders := repository.NewOrderRepository(tx)
		order, err := loadOrder(orders, orderID)
		if err != nil {
			return err
		}
		ok, err := transition(orders, orderID, from, to, map[string]interface{}{"operator_message": reason})
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTransition
		}
		joined = joinUserIDs(order.Joins, false)
		return repository.NewMemberRepository(tx).SetJoining(joinUserIDs(order.Joins, true), false)
	})
	if err != nil {
		return nil, err
	}
	order, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"order_id": orderID, "status": to.String()}).Info("[Calls] order aborted")
	if to == domain.OrderCancelled {
		for _, id := range append([]uint{order.UserID}, joined...) {
			if _, err := s.chat.SendSuperMessage(ctx, domain.RoomTypeSystem, id, msgCancelled, nil); err != nil {
				s.log.WithError(err).WithField("member_id", id).Warn("[Calls] cancel message")
			}
		}
	}
	s.notify.SendCall(ctx, joined, domain.CallDelete, order)
	s.notify.SendApplier(ctx, order.UserID, order)
	return order, nil
}

// RunCallControl resolves orders whose collection window has passed: short
// collecting orders are cancelled, selecting orders are auto-matched with
// the applicants who have the fewest calls.
func (s *CallService) RunCallControl(ctx context.Context) (int, error) {
	orders, err := repository.NewOrderRepository(s.db).ListByStatus(domain.OrderCollecting, domain.OrderSelecting)
	if err != nil {
		return 0, err
	}
	now := s.now()
	handled := 0
	for i := range orders {
		o := &orders[i]
		if !now.After(o.CollectEndedAt) {
			continue
		}
		log := s.log.WithField("order_id", o.ID)
		switch o.Status {
		case domain.OrderCollecting:
			if err := s.cancelShortage(ctx, o); err != nil {
				log.WithError(err).Error("[Calls] cancel shortage")
				continue
			}
		case domain.OrderSelecting:
			matched, err := s.autoMatch(ctx, o)
			if err != nil {
				log.WithError(err).Error("[Calls] auto match")
				continue
			}
			if !matched {
				continue
			}
		}
		handled++
	}
	return handled, nil
}

func (s *CallService) cancelShortage(ctx context.Context, o *models.Order) error {
	live := joinUserIDs(liveJoins(o.Joins), false)
	if len(live) >= o.Person {
		_, err := transition(repository.NewOrderRepository(s.db), o.ID,
			[]domain.OrderStatus{domain.OrderCollecting}, domain.OrderSelecting, nil)
		return err
	}
	ok, err := transition(repository.NewOrderRepository(s.db), o.ID,
		[]domain.OrderStatus{domain.OrderCollecting}, domain.OrderCancelledShortage, nil)
	if err != nil || !ok {
		return err
	}
	o.Status = domain.OrderCancelledShortage
	s.log.WithField("order_id", o.ID).Info("[Calls] cancelled for shortage")
	var area []uint
	if o.ParentLocationID != nil {
		area, _ = repository.NewMemberRepository(s.db).CastIDsInLocation(*o.ParentLocationID)
	}
	s.notify.SendCall(ctx, area, domain.CallDelete, o)
	if _, err := s.chat.SendSuperMessage(ctx, domain.RoomTypeSystem, o.UserID, msgShortageGuest, nil); err != nil {
		s.log.WithError(err).Warn("[Calls] shortage message to guest")
	}
	applicants := joinUserIDs(o.Joins, false)
	for _, id := range applicants {
		if _, err := s.chat.SendSuperMessage(ctx, domain.RoomTypeSystem, id, msgShortageApplicant, nil); err != nil {
			s.log.WithError(err).Warn("[Calls] shortage message to applicant")
		}
	}
	s.notify.SendCall(ctx, applicants, domain.CallMine, o)
	s.notify.SendApplier(ctx, o.UserID, o)
	return nil
}

// autoMatch fills the open seats from the remaining applicants. It reports
// false when there are not enough of them. Confirms and the match share one
// transaction under the order lock.
func (s *CallService) autoMatch(ctx context.Context, o *models.Order) (bool, error) {
	var (
		match  *matchResult
		picked []uint
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		orders := repository.NewOrderRepository(tx)
		order, err := lockOrder(orders, o.ID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderSelecting {
			return nil
		}
		confirmed := 0
		var candidates []models.Join
		for _, j := range order.Joins {
			switch {
			case j.IsConfirmed():
				confirmed++
			case !j.Dropped && j.User != nil && !j.User.IsJoining:
				candidates = append(candidates, j)
			}
		}
		gap := max(order.Person-confirmed, 0)
		if gap > len(candidates) {
			s.log.WithFields(logrus.Fields{"order_id": o.ID, "gap": gap, "candidates": len(candidates)}).Debug("[Calls] not enough candidates")
			return nil
		}
		sort.SliceStable(candidates, func(a, b int) bool {
			if candidates[a].User.CallTimes != candidates[b].User.CallTimes {
				return candidates[a].User.CallTimes < candidates[b].User.CallTimes
			}
			return candidates[a].ID < candidates[b].ID
		})
		for _, j := range candidates[:gap] {
			ok, err := orders.ConfirmJoin(j.ID, domain.SelectionAuto)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: join %d changed", ErrInvalidTransition, j.ID)
			}
			picked = append(picked, j.UserID)
		}
		match, err = s.finalizeTx(tx, o.ID, []domain.OrderStatus{domain.OrderSelecting})
		return err
	})
	if err != nil || match == nil {
		return false, err
	}
	s.notify.SendCall(ctx, picked, domain.CallCreate, o)
	if _, err := s.announceMatch(ctx, match); err != nil {
		return false, err
	}
	return true, nil
}

// RunCallNotify warns meeting rooms ten minutes before each cast's booked end
// and flags the join as extended once that end has passed.
func (s *CallService) RunCallNotify(ctx context.Context) (int, error) {
	orders := repository.NewOrderRepository(s.db)
	list, err := orders.ListByStatus(domain.OrderMeeting)
	if err != nil {
		return 0, err
	}
	lead := s.cfg.TenLeftLead
	if lead <= 0 {
		lead = 10 * time.Minute
	}
	now := s.now()
	touched := 0
	for _, o := range list {
		if o.RoomID == nil {
			continue
		}
		for _, j := range o.Joins {
			if !j.IsConfirmed() || !j.IsStarted || j.IsEnded || j.StartedAt == nil {
				continue
			}
			predict := j.StartedAt.Add(time.Duration(o.Period) * time.Hour)
			switch {
			case !j.IsTenLeft && now.After(predict.Add(-lead)):
				if err := orders.UpdateJoin(j.ID, map[string]interface{}{"is_ten_left": true}); err != nil {
					return touched, err
				}
				s.roomNotice(ctx, o.RoomID, j.UserID, msgTenLeft)
				touched++
			case j.IsTenLeft && !j.IsExtended && now.After(predict):
				if err := orders.UpdateJoin(j.ID, map[string]interface{}{"is_extended": true}); err != nil {
					return touched, err
				}
				touched++
			}
		}
	}
	return touched, nil
}

func (s *CallService) roomNotice(ctx context.Context, roomID *uint, senderID uint, content string) {
	if roomID == nil || s.chat == nil {
		return
	}
	if _, err := s.chat.SendNoticeToRoom(ctx, *roomID, senderID, content); err != nil {
		s.log.WithError(err).WithField("room_id", *roomID).Warn("[Calls] room notice")
	}
}

// lockOrder takes the order row lock, then loads the order.
func lockOrder(orders *repository.OrderRepository, id uint) (*models.Order, error) {
	if err := orders.Lock(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return loadOrder(orders, id)
}

func loadOrder(orders *repository.OrderRepository, id uint) (*models.Order, error) {
	o, err := orders.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

func confirmedJoin(orders *repository.OrderRepository, orderID, castID uint) (*models.Join, error) {
	j, err := orders.GetJoin(orderID, castID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotParticipant
		}
		return nil, err
	}
	if !j.IsConfirmed() {
		return nil, ErrNotParticipant
	}
	return j, nil
}

// transition applies a guarded status update for the allowed source statuses.
func transition(orders *repository.OrderRepository, id uint, from []domain.OrderStatus, to domain.OrderStatus, extra map[string]interface{}) (bool, error) {
	allowed := make([]domain.OrderStatus, 0, len(from))
	for _, f := range from {
		if domain.CanTransition(f, to) {
			allowed = append(allowed, f)
		}
	}
	if len(allowed) == 0 {
		return false, ErrInvalidTransition
	}
	ok, err := orders.TransitionStatus(id, allowed, to, extra)
	if err == nil && ok {
		metrics.RecordTransition(to.String())
	}
	return ok, err
}

func desires(o *models.Order, castID uint) bool {
	for _, d := range o.Desired {
		if d.ID == castID {
			return true
		}
	}
	return false
}

func liveJoins(joins []models.Join) []models.Join {
	out := make([]models.Join, 0, len(joins))
	for _, j := range joins {
		if !j.Dropped {
			out = append(out, j)
		}
	}
	return out
}

// joinUserIDs lists the casts of joins, only confirmed ones when confirmedOnly is set.
func joinUserIDs(joins []models.Join, confirmedOnly bool) []uint {
	ids := make([]uint, 0, len(joins))
	for _, j := range joins {
		if confirmedOnly && !j.IsConfirmed() {
			continue
		}
		ids = append(ids, j.UserID)
	}
	return ids
}
