package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callcast/config"
	"callcast/internal/domain"
	"callcast/internal/metrics"
	"callcast/internal/models"
	"callcast/internal/repository"
	"callcast/pkg/logger"
	"callcast/pkg/payment"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrInsufficientPoints = repository.ErrInsufficientPoints
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrGiftNotFound       = errors.New("gift not found")
	ErrGiftReceiver       = errors.New("gifts can only be sent to a cast in the room")
	ErrNoCardRegistered   = payment.ErrNoCard
)

const (
	msgUnpaidSubject = "お支払いのお願い"
	msgUnpaid        = "ポイントが不足しているため、ご利用料金のお支払いが完了していません。ポイントを購入してお支払いください。"
)

// BillingService owns every point movement: settlement of finished orders,
// purchases, gifts and operator adjustments. Each movement writes an invoice.
type BillingService struct {
	db       *gorm.DB
	cfg      config.CallsConfig
	payments payment.Provider
	currency string
	chat     *ChatService
	notify   *NotificationService
	log      *logrus.Entry
}

func NewBillingService(db *gorm.DB, cfg config.CallsConfig, payments payment.Provider, currency string, chat *ChatService, notify *NotificationService) *BillingService {
	return &BillingService{
		db:       db,
		cfg:      cfg,
		payments: payments,
		currency: currency,
		chat:     chat,
		notify:   notify,
		log:      logger.With("billing"),
	}
}

// Settlement is the outcome of pricing an order.
type Settlement struct {
	OrderID uint                        `json:"order_id"`
	Total   int64                       `json:"total"`
	Charged int64                       `json:"charged"`
	Paid    bool                        `json:"paid"`
	Costs   map[uint]domain.MeetingCost `json:"costs"`
}

func (s *BillingService) defaultBackRatio() int {
	def := int64(s.cfg.DefaultBackRatio)
	if def <= 0 {
		def = 70
	}
	return int(repository.NewSettingRepository(s.db).GetInt(models.SettingDefaultBackRatio, def))
}

func (s *BillingService) backRatio(cast *models.Member) int {
	if cast != nil && cast.BackRatio > 0 {
		return cast.BackRatio
	}
	return s.defaultBackRatio()
}

func (s *BillingService) nightWindow(o *models.Order) domain.NightWindow {
	loc := s.cfg.Location()
	w, err := domain.NewNightWindow(o.NightStartedAt, o.NightEndedAt, loc)
	if err != nil {
		return domain.NightWindow{Loc: loc}
	}
	return w
}

// price computes the cost of every confirmed cast who met the guest.
func (s *BillingService) price(o *models.Order) (map[uint]domain.MeetingCost, int64) {
	night := s.nightWindow(o)
	costs := make(map[uint]domain.MeetingCost)
	var total int64
	for _, j := range o.Joins {
		if !attended(j) {
			continue
		}
		in := domain.CostInput{
			CostValue:    o.CostValue,
			CostExtended: o.CostExtended,
			NightFund:    o.NightFund,
			PeriodHours:  o.Period,
			StartedAt:    o.MeetTimeISO,
			EndedAt:      o.MeetTimeISO,
			Night:        night,
		}
		if j.StartedAt != nil {
			in.StartedAt = *j.StartedAt
			in.EndedAt = *j.StartedAt
		}
		if j.EndedAt != nil {
			in.EndedAt = *j.EndedAt
		}
		c := domain.ComputeMeetingCost(in)
		costs[j.ID] = c
		total += c.Total
	}
	return costs, total
}

// attended is a confirmed join whose cast started the meeting; only those are billed.
func attended(j models.Join) bool {
	return j.IsConfirmed() && j.IsStarted
}

// Settle prices a meet-completed order and collects the guest's points. A
// short balance is topped up from the stored card when the guest allows it;
// otherwise the order waits as completed until Pay succeeds.
func (s *BillingService) Settle(ctx context.Context, orderID uint) (*Settlement, error) {
	return s.settle(ctx, orderID, true)
}

// Pay retries settlement of a completed order from the guest's balance.
func (s *BillingService) Pay(ctx context.Context, guestID, orderID uint) (*Settlement, error) {
	o, err := loadOrder(repository.NewOrderRepository(s.db), orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != guestID {
		return nil, ErrNotOrderOwner
	}
	res, err := s.settle(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	if !res.Paid {
		return res, ErrInsufficientPoints
	}
	return res, nil
}

func (s *BillingService) settle(ctx context.Context, orderID uint, autoCharge bool) (*Settlement, error) {
	orders := repository.NewOrderRepository(s.db)
	o, err := loadOrder(orders, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrderMeetCompleted && o.Status != domain.OrderCompleted {
		return nil, ErrInvalidTransition
	}
	costs, total := s.price(o)
	res := &Settlement{OrderID: o.ID, Total: total, Costs: costs}
	log := s.log.WithFields(logrus.Fields{"order_id": o.ID, "total": total})

	guest, err := repository.NewMemberRepository(s.db).GetByID(o.UserID)
	if err != nil {
		return nil, err
	}
	if guest.Point < total && autoCharge && guest.CanAutoCharge() && s.payments != nil {
		shortage := total - guest.Point
		if err := s.autoCharge(ctx, guest, o, shortage); err != nil {
			log.WithError(err).Warn("[Billing] auto charge failed")
		} else {
			res.Charged = shortage
			guest.Point += shortage
		}
	}
	if guest.Point < total {
		// a retry from completed changes nothing and the guest was already told
		if o.Status != domain.OrderMeetCompleted {
			return res, nil
		}
		if err := s.markUnpaid(o, costs, total); err != nil {
			return nil, err
		}
		metrics.RecordSettlement("unpaid")
		log.Info("[Billing] order completed unpaid")
		if _, err := s.chat.SendSuperMessage(ctx, domain.RoomTypeSystem, guest.ID, msgUnpaid, nil); err != nil {
			log.WithError(err).Warn("[Billing] unpaid message")
		}
		s.notify.Mail(guest, msgUnpaidSubject, msgUnpaid, func(st *models.Setting) bool { return st.EmailAutoCharge })
		return res, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		orders := repository.NewOrderRepository(tx)
		members := repository.NewMemberRepository(tx)
		invoices := repository.NewInvoiceRepository(tx)
		ok, err := transition(orders, o.ID, []domain.OrderStatus{domain.OrderMeetCompleted, domain.OrderCompleted},
			domain.OrderPaid, map[string]interface{}{"final_cost": total})
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTransition
		}
		if err := members.DebitPoints(guest.ID, total); err != nil {
			return err
		}
		var castIDs []uint
		for _, j := range o.Joins {
			if !j.IsConfirmed() {
				continue
			}
			castIDs = append(castIDs, j.UserID)
			if !j.IsStarted {
				continue
			}
			cost := costs[j.ID].Total
			take := domain.BackAmount(cost, s.backRatio(j.User))
			inv := &models.Invoice{
				InvoiceType: domain.InvoiceCall,
				GiveAmount:  cost,
				TakeAmount:  take,
				GiverID:     &guest.ID,
				TakerID:     uintPtr(j.UserID),
				OrderID:     &o.ID,
			}
			if err := invoices.Create(inv); err != nil {
				return err
			}
			if err := members.CreditPoints(j.UserID, take); err != nil {
				return err
			}
			if err := members.RecordCall(j.UserID, 0); err != nil {
				return err
			}
			if err := orders.UpdateJoin(j.ID, map[string]interface{}{"cost": cost}); err != nil {
				return err
			}
		}
		if err := members.RecordCall(guest.ID, total); err != nil {
			return err
		}
		return members.SetJoining(castIDs, false)
	})
	if err != nil {
		return nil, err
	}
	res.Paid = true
	metrics.RecordSettlement("paid")
	log.Info("[Billing] order paid")
	if m, err := repository.NewMemberRepository(s.db).GetByID(guest.ID); err == nil {
		s.notify.SendUser(ctx, m)
	}
	return res, nil
}

// markUnpaid records the final cost, moves the order to completed and frees
// the casts; points are collected later.
func (s *BillingService) markUnpaid(o *models.Order, costs map[uint]domain.MeetingCost, total int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		orders := repository.NewOrderRepository(tx)
		if o.Status == domain.OrderMeetCompleted {
			ok, err := transition(orders, o.ID, []domain.OrderStatus{domain.OrderMeetCompleted}, domain.OrderCompleted,
				map[string]interface{}{"final_cost": total})
			if err != nil {
				return err
			}
			if !ok {
				return ErrInvalidTransition
			}
		}
		var castIDs []uint
		for _, j := range o.Joins {
			if !j.IsConfirmed() {
				continue
			}
			castIDs = append(castIDs, j.UserID)
			if !j.IsStarted {
				continue
			}
			if err := orders.UpdateJoin(j.ID, map[string]interface{}{"cost": costs[j.ID].Total}); err != nil {
				return err
			}
		}
		return repository.NewMemberRepository(tx).SetJoining(castIDs, false)
	})
}

func (s *BillingService) autoCharge(ctx context.Context, guest *models.Member, o *models.Order, amount int64) error {
	resp, err := s.payments.Charge(ctx, payment.ChargeRequest{
		MemberID:       guest.ID,
		Amount:         amount,
		Currency:       s.currency,
		CardToken:      guest.CardToken,
		IdempotencyKey: fmt.Sprintf("settle-%d", o.ID),
		Description:    fmt.Sprintf("order %d", o.ID),
		Metadata:       map[string]string{"order_id": fmt.Sprint(o.ID)},
	})
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		inv := &models.Invoice{
			InvoiceType: domain.InvoiceAuto,
			GiveAmount:  resp.Amount,
			TakeAmount:  amount,
			TakerID:     &guest.ID,
			OrderID:     &o.ID,
			Reference:   resp.Reference,
		}
		if err := repository.NewInvoiceRepository(tx).Create(inv); err != nil {
			return err
		}
		return repository.NewMemberRepository(tx).CreditPoints(guest.ID, amount)
	})
}

// BuyPoints charges the member's card and credits the purchased points.
func (s *BillingService) BuyPoints(ctx context.Context, memberID uint, amount int64) (*models.Invoice, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	m, err := repository.NewMemberRepository(s.db).GetByID(memberID)
	if err != nil {
		return nil, err
	}
	if !m.CardRegistered || m.CardToken == "" {
		return nil, ErrNoCardRegistered
	}
	resp, err := s.payments.Charge(ctx, payment.ChargeRequest{
		MemberID:       memberID,
		Amount:         amount,
		Currency:       s.currency,
		CardToken:      m.CardToken,
		IdempotencyKey: uuid.NewString(),
		Description:    "point purchase",
	})
	if err != nil {
		return nil, err
	}
	inv := &models.Invoice{InvoiceType: domain.InvoiceBuy, GiveAmount: resp.Amount, TakeAmount: amount, TakerID: &memberID, Reference: resp.Reference}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := repository.NewInvoiceRepository(tx).Create(inv); err != nil {
			return err
		}
		return repository.NewMemberRepository(tx).CreditPoints(memberID, amount)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"member_id": memberID, "amount": amount, "reference": resp.Reference}).Info("[Billing] points bought")
	if m, err := repository.NewMemberRepository(s.db).GetByID(memberID); err == nil {
		s.notify.SendUser(ctx, m)
	}
	return inv, nil
}

// SendGift moves a gift's price from the sender to a cast in the same room
// and posts the gift into the room.
func (s *BillingService) SendGift(ctx context.Context, senderID, roomID, receiverID, giftID uint) (*models.Message, error) {
	gift, err := repository.NewBasicsRepository(s.db).GetGift(giftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGiftNotFound
		}
		return nil, err
	}
	chats := repository.NewChatRepository(s.db)
	for _, id := range []uint{senderID, receiverID} {
		in, err := chats.IsMember(roomID, id)
		if err != nil {
			return nil, err
		}
		if !in {
			return nil, ErrNotRoomMember
		}
	}
	receiver, err := repository.NewMemberRepository(s.db).GetByID(receiverID)
	if err != nil {
		return nil, err
	}
	if !receiver.IsCast() || receiverID == senderID {
		return nil, ErrGiftReceiver
	}
	ratio := gift.Back
	if ratio <= 0 {
		ratio = s.backRatio(receiver)
	}
	take := domain.BackAmount(gift.Point, ratio)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		members := repository.NewMemberRepository(tx)
		if err := members.DebitPoints(senderID, gift.Point); err != nil {
			return err
		}
		inv := &models.Invoice{InvoiceType: domain.InvoiceGift, GiveAmount: gift.Point, TakeAmount: take,
			GiverID: &senderID, TakerID: &receiverID, Reason: gift.Name}
		if err := repository.NewInvoiceRepository(tx).Create(inv); err != nil {
			return err
		}
		return members.CreditPoints(receiverID, take)
	})
	if err != nil {
		return nil, err
	}
	msg, err := s.chat.SendRoomMessage(ctx, RoomMessageInput{RoomID: roomID, SenderID: senderID, Content: gift.Name, GiftID: &gift.ID})
	if err != nil {
		return nil, err
	}
	if m, err := repository.NewMemberRepository(s.db).GetByID(senderID); err == nil {
		s.notify.SendUser(ctx, m)
	}
	return msg, nil
}

// AdminAdjust credits (positive) or debits (negative) a member's points.
func (s *BillingService) AdminAdjust(ctx context.Context, memberID uint, amount int64, reason string) (*models.Invoice, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	inv := &models.Invoice{InvoiceType: domain.InvoiceAdmin, Reason: reason}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		members := repository.NewMemberRepository(tx)
		if amount > 0 {
			inv.TakerID, inv.TakeAmount = &memberID, amount
			if err := members.CreditPoints(memberID, amount); err != nil {
				return err
			}
		} else {
			inv.GiverID, inv.GiveAmount = &memberID, -amount
			if err := members.DebitPoints(memberID, -amount); err != nil {
				return err
			}
		}
		return repository.NewInvoiceRepository(tx).Create(inv)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"member_id": memberID, "amount": amount}).Info("[Billing] points adjusted")
	if m, err := repository.NewMemberRepository(s.db).GetByID(memberID); err == nil {
		s.notify.SendUser(ctx, m)
	}
	return inv, nil
}

func (s *BillingService) ListInvoices(f repository.InvoiceFilter, page int) ([]models.Invoice, int64, error) {
	return repository.NewInvoiceRepository(s.db).List(f, page, domain.DefaultPageSize)
}

func (s *BillingService) MemberInvoices(memberID uint, page int) ([]models.Invoice, int64, error) {
	return repository.NewInvoiceRepository(s.db).ListForMember(memberID, page, domain.DefaultPageSize)
}

func (s *BillingService) Totals(f repository.InvoiceFilter) ([]repository.InvoiceTotal, error) {
	return repository.NewInvoiceRepository(s.db).Totals(f)
}

func (s *BillingService) Rankings(role int, from, to *time.Time, limit int) ([]repository.RankRow, error) {
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}
	return repository.NewInvoiceRepository(s.db).Rankings(role, from, to, limit)
}

func uintPtr(v uint) *uint { return &v }
