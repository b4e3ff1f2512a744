package service

import (
	"context"
	"testing"
	"time"

	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderSnapshotsPlanAndNotifiesAreaCasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokyo := f.location("Tokyo")
	osaka := f.location("Osaka")
	near := f.cast(&tokyo.ID)
	far := f.cast(&osaka.ID)
	guest := f.guest(0)
	plan := f.plan(5000, 3000)

	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(tokyo, plan, 2))
	require.NoError(t, err)

	assert.Equal(t, domain.OrderCollecting, o.Status)
	assert.Equal(t, int64(5000), o.CostValue)
	assert.Equal(t, int64(3000), o.CostExtended)
	assert.Equal(t, int64(4000), o.NightFund)
	assert.Equal(t, "00:00", o.NightStartedAt)
	assert.True(t, o.CollectEndedAt.Equal(f.now.Add(15*time.Minute)))
	require.NotNil(t, o.EndedPredict)
	assert.True(t, o.EndedPredict.Equal(time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)))

	assert.Equal(t, 1, f.broker.count(near.ID, domain.EventCall, domain.CallCreate))
	assert.Zero(t, f.broker.count(far.ID, domain.EventCall, domain.CallCreate))
}

func TestCreateOrderUsesCollectWindowSetting(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, repository.NewSettingRepository(f.db).Set(models.SettingCollectMinutes, "30"))

	o, err := f.calls.CreateOrder(context.Background(), f.guest(0).ID, f.orderInput(nil, f.plan(5000, 3000), 1))
	require.NoError(t, err)
	assert.True(t, o.CollectEndedAt.Equal(f.now.Add(30*time.Minute)))
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	plan := f.plan(5000, 3000)

	in := f.orderInput(nil, plan, 0)
	_, err := f.calls.CreateOrder(ctx, guest.ID, in)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	in = f.orderInput(nil, plan, 1)
	in.IsPrivate = true
	_, err = f.calls.CreateOrder(ctx, guest.ID, in)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	in = f.orderInput(nil, plan, 1)
	missing := uint(999)
	in.CostPlanID = &missing
	_, err = f.calls.CreateOrder(ctx, guest.ID, in)
	assert.ErrorIs(t, err, ErrCostPlanNotFound)
}

func TestApplyMovesCollectingToSelecting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	c1, c2 := f.cast(nil), f.cast(nil)
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, f.plan(5000, 3000), 2))
	require.NoError(t, err)

	_, err = f.calls.Apply(ctx, c1.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCollecting, f.order(o.ID).Status)

	_, err = f.calls.Apply(ctx, c1.ID, o.ID)
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	_, err = f.calls.Apply(ctx, c2.ID, o.ID)
	require.NoError(t, err)
	got := f.order(o.ID)
	assert.Equal(t, domain.OrderSelecting, got.Status)
	assert.Equal(t, int64(2), got.Applying)
	assert.Equal(t, 2, f.broker.count(guest.ID, domain.EventApplier, ""))
	assert.Equal(t, 1, f.broker.count(c2.ID, domain.EventCall, domain.CallMine))
}

func TestApplyRejectsGuestsBusyCastsAndClosedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	busy := f.member(domain.RoleCast, func(m *models.Member) { m.IsJoining = true })
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, f.plan(5000, 3000), 1))
	require.NoError(t, err)

	_, err = f.calls.Apply(ctx, f.guest(0).ID, o.ID)
	assert.ErrorIs(t, err, ErrNotCast)

	_, err = f.calls.Apply(ctx, busy.ID, o.ID)
	assert.ErrorIs(t, err, ErrCastBusy)

	_, err = f.calls.Cancel(ctx, o.ID, "test")
	require.NoError(t, err)
	_, err = f.calls.Apply(ctx, f.cast(nil).ID, o.ID)
	assert.ErrorIs(t, err, ErrOrderNotOpen)
}

func TestPrivateOrderOnlyAcceptsDesiredCasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	wanted, other := f.cast(nil), f.cast(nil)
	in := f.orderInput(nil, f.plan(5000, 3000), 1)
	in.IsPrivate = true
	in.DesiredIDs = []uint{wanted.ID}

	o, err := f.calls.CreateOrder(ctx, guest.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 1, f.broker.count(wanted.ID, domain.EventCall, domain.CallCreate))

	_, err = f.calls.Apply(ctx, other.ID, o.ID)
	assert.ErrorIs(t, err, ErrOrderNotOpen)
	_, err = f.calls.Apply(ctx, wanted.ID, o.ID)
	assert.NoError(t, err)
}

func TestSelectCastFinalizesMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	chosen, dropped := f.cast(nil), f.cast(nil)
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, f.plan(5000, 3000), 1))
	require.NoError(t, err)
	for _, c := range []*models.Member{chosen, dropped} {
		_, err := f.calls.Apply(ctx, c.ID, o.ID)
		require.NoError(t, err)
	}

	_, err = f.calls.SelectCast(ctx, f.guest(0).ID, o.ID, chosen.ID)
	assert.ErrorIs(t, err, ErrNotOrderOwner)

	got, err := f.calls.SelectCast(ctx, guest.ID, o.ID, chosen.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	require.NotNil(t, got.RoomID)
	require.Len(t, got.Joins, 1)
	assert.Equal(t, chosen.ID, got.Joins[0].UserID)
	assert.Equal(t, domain.SelectionGuest, got.Joins[0].Selection)

	ids, err := repository.NewChatRepository(f.db).RoomMemberIDs(*got.RoomID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{guest.ID, chosen.ID}, ids)

	assert.True(t, f.reload(chosen).IsJoining)
	assert.False(t, f.reload(dropped).IsJoining)
	assert.Equal(t, 1, f.broker.count(guest.ID, domain.EventRoom, ""))
	assert.Equal(t, 1, f.broker.count(chosen.ID, domain.EventRoom, ""))
	assert.Equal(t, 1, f.broker.count(dropped.ID, domain.EventCall, domain.CallDelete))
	msgs := f.messagesTo(dropped.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, msgNotSelected, msgs[0].Content)

	_, err = f.calls.finalize(ctx, o.ID, []domain.OrderStatus{domain.OrderSelecting})
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	_, err = f.calls.SelectCast(ctx, guest.ID, o.ID, dropped.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSelectCastRejectsOverPerson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	c1, c2, c3 := f.cast(nil), f.cast(nil), f.cast(nil)
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, f.plan(5000, 3000), 2))
	require.NoError(t, err)
	orders := repository.NewOrderRepository(f.db)
	for _, c := range []*models.Member{c1, c2, c3} {
		_, err := f.calls.Apply(ctx, c.ID, o.ID)
		require.NoError(t, err)
	}
	for _, c := range []*models.Member{c1, c2} {
		j, err := orders.GetJoin(o.ID, c.ID)
		require.NoError(t, err)
		ok, err := orders.ConfirmJoin(j.ID, domain.SelectionAdmin)
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, err = f.calls.SelectCast(ctx, guest.ID, o.ID, c3.ID)
	assert.ErrorIs(t, err, ErrPersonExceeded)
	_, err = f.calls.SelectCast(ctx, guest.ID, o.ID, c1.ID)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
}

func TestWithdrawDropsApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	c1, c2 := f.cast(nil), f.cast(nil)
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, f.plan(5000, 3000), 2))
	require.NoError(t, err)
	_, err = f.calls.Apply(ctx, c1.ID, o.ID)
	require.NoError(t, err)

	require.NoError(t, f.calls.Withdraw(ctx, c1.ID, o.ID))
	assert.ErrorIs(t, f.calls.Withdraw(ctx, c2.ID, o.ID), ErrJoinNotFound)

	_, err = f.calls.Apply(ctx, c2.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCollecting, f.order(o.ID).Status, "dropped applications do not count")
}

func TestRunCallControlCancelsShortOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokyo := f.location("Tokyo")
	guest := f.guest(0)
	applicant, bystander := f.cast(&tokyo.ID), f.cast(&tokyo.ID)
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(tokyo, f.plan(5000, 3000), 2))
	require.NoError(t, err)
	_, err = f.calls.Apply(ctx, applicant.ID, o.ID)
	require.NoError(t, err)

	n, err := f.calls.RunCallControl(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "window still open")

	f.advance(16 * time.Minute)
	n, err = f.calls.RunCallControl(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, domain.OrderCancelledShortage, f.order(o.ID).Status)
	assert.Equal(t, 1, f.broker.count(bystander.ID, domain.EventCall, domain.CallDelete))
	assert.Equal(t, 2, f.broker.count(applicant.ID, domain.EventCall, domain.CallMine), "once on apply, once on cancel")
	require.Len(t, f.messagesTo(guest.ID), 1)
	assert.Equal(t, msgShortageGuest, f.messagesTo(guest.ID)[0].Content)
	require.Len(t, f.messagesTo(applicant.ID), 1)
	assert.Equal(t, msgShortageApplicant, f.messagesTo(applicant.ID)[0].Content)
}

func TestRunCallControlAutoMatchesFewestCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	veteran := f.member(domain.RoleCast, func(m *models.Member) { m.CallTimes = 5 })
	rookie := f.member(domain.RoleCast, func(m *models.Member) { m.CallTimes = 1 })
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, f.plan(5000, 3000), 1))
	require.NoError(t, err)
	for _, c := range []*models.Member{veteran, rookie} {
		_, err := f.calls.Apply(ctx, c.ID, o.ID)
		require.NoError(t, err)
	}
	require.Equal(t, domain.OrderSelecting, f.order(o.ID).Status)

	f.advance(16 * time.Minute)
	n, err := f.calls.RunCallControl(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.order(o.ID)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	require.Len(t, got.Joins, 1)
	assert.Equal(t, rookie.ID, got.Joins[0].UserID)
	assert.Equal(t, domain.SelectionAuto, got.Joins[0].Selection)
	assert.Equal(t, 1, f.broker.count(rookie.ID, domain.EventCall, domain.CallCreate))
	assert.Equal(t, 1, f.broker.count(veteran.ID, domain.EventCall, domain.CallDelete))
}

func TestRunCallControlSkipsWhenCandidatesCannotFillGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	c1, c2 := f.cast(nil), f.cast(nil)
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, f.plan(5000, 3000), 2))
	require.NoError(t, err)
	for _, c := range []*models.Member{c1, c2} {
		_, err := f.calls.Apply(ctx, c.ID, o.ID)
		require.NoError(t, err)
	}
	require.NoError(t, repository.NewMemberRepository(f.db).SetJoining([]uint{c2.ID}, true))

	f.advance(16 * time.Minute)
	n, err := f.calls.RunCallControl(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.OrderSelecting, f.order(o.ID).Status)
}

func TestMeetingLifecycleSettlesFromBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(100000)
	cast := f.cast(nil)
	o := f.confirmedOrder(guest, cast, f.plan(5000, 3000))

	_, err := f.calls.EndMeeting(ctx, cast.ID, o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.calls.StartMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderMeeting, f.order(o.ID).Status)
	_, err = f.calls.StartMeeting(ctx, cast.ID, o.ID)
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	f.advance(time.Hour)
	got, err := f.calls.EndMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, got.Status)
	assert.Equal(t, int64(10000), got.FinalCost)

	g, c := f.reload(guest), f.reload(cast)
	assert.Equal(t, int64(90000), g.Point)
	assert.Equal(t, int64(10000), g.PointUsed)
	assert.Equal(t, 1, g.CallTimes)
	assert.Equal(t, int64(7000), c.Point)
	assert.Equal(t, 1, c.CallTimes)
	assert.False(t, c.IsJoining)

	inv := f.invoices(domain.InvoiceCall)
	require.Len(t, inv, 1)
	assert.Equal(t, int64(10000), inv[0].GiveAmount)
	assert.Equal(t, int64(7000), inv[0].TakeAmount)
}

func TestEndMeetingChargesOvertimeAndNightFund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(100000)
	cast := f.member(domain.RoleCast, func(m *models.Member) { m.BackRatio = 50 })
	o := f.confirmedOrder(guest, cast, f.plan(5000, 3000))

	f.now = time.Date(2026, 5, 2, 5, 0, 0, 0, time.UTC)
	_, err := f.calls.StartMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)
	f.now = time.Date(2026, 5, 2, 6, 40, 0, 0, time.UTC)
	got, err := f.calls.EndMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)

	// 10000 base + 2 overtime half hours + night fund
	assert.Equal(t, int64(20000), got.FinalCost)
	assert.Equal(t, int64(10000), f.reload(cast).Point)
	require.Len(t, got.Joins, 1)
	assert.Equal(t, int64(20000), got.Joins[0].Cost)
}

func TestSettlementLeavesOrderUnpaidThenPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	cast := f.cast(nil)
	o := f.confirmedOrder(guest, cast, f.plan(5000, 3000))
	_, err := f.calls.StartMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)
	f.advance(time.Hour)
	got, err := f.calls.EndMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderCompleted, got.Status)
	assert.False(t, f.reload(cast).IsJoining)
	msgs := f.messagesTo(guest.ID)
	require.NotEmpty(t, msgs)
	assert.Equal(t, msgUnpaid, msgs[len(msgs)-1].Content)
	require.Len(t, f.mail.Sent(), 1)
	assert.Equal(t, guest.EmailAddress(), f.mail.Sent()[0].To)

	for i := 0; i < 3; i++ {
		_, err = f.billing.Pay(ctx, guest.ID, o.ID)
		assert.ErrorIs(t, err, ErrInsufficientPoints)
	}
	assert.Len(t, f.messagesTo(guest.ID), len(msgs))
	assert.Len(t, f.mail.Sent(), 1)

	_, err = f.billing.AdminAdjust(ctx, guest.ID, 10000, "top up")
	require.NoError(t, err)
	res, err := f.billing.Pay(ctx, guest.ID, o.ID)
	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.Equal(t, domain.OrderPaid, f.order(o.ID).Status)
	assert.Zero(t, f.reload(guest).Point)
	assert.Equal(t, int64(7000), f.reload(cast).Point)
}

func TestSettlementAutoChargesShortage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.member(domain.RoleGuest, func(m *models.Member) {
		m.Point = 3000
		m.CardRegistered = true
		m.CardToken = "tok_visa"
	})
	cast := f.cast(nil)
	o := f.confirmedOrder(guest, cast, f.plan(5000, 3000))
	_, err := f.calls.StartMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)
	f.advance(time.Hour)
	got, err := f.calls.EndMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderPaid, got.Status)
	require.Equal(t, 1, f.pay.Count())
	assert.Equal(t, int64(7000), f.pay.Charges[0].Amount)
	assert.Equal(t, "settle-1", f.pay.Charges[0].IdempotencyKey)
	auto := f.invoices(domain.InvoiceAuto)
	require.Len(t, auto, 1)
	assert.Equal(t, int64(7000), auto[0].TakeAmount)
	assert.Zero(t, f.reload(guest).Point)

	_, err = f.billing.Settle(ctx, o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, f.invoices(domain.InvoiceCall), 1)
}

func TestRunCallNotifyWarnsThenExtends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(100000)
	cast := f.cast(nil)
	o := f.confirmedOrder(guest, cast, f.plan(5000, 3000))
	_, err := f.calls.StartMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)

	f.advance(45 * time.Minute)
	n, err := f.calls.RunCallNotify(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.advance(6 * time.Minute)
	n, err = f.calls.RunCallNotify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	notices := f.messagesTo(guest.ID)
	assert.Equal(t, msgTenLeft, notices[len(notices)-1].Content)
	assert.True(t, notices[len(notices)-1].IsNotice)

	n, err = f.calls.RunCallNotify(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "warning is sent once")

	f.advance(10 * time.Minute)
	n, err = f.calls.RunCallNotify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	j, err := repository.NewOrderRepository(f.db).GetJoin(o.ID, cast.ID)
	require.NoError(t, err)
	assert.True(t, j.IsTenLeft)
	assert.True(t, j.IsExtended)
}

func TestCancelReleasesCasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	cast := f.cast(nil)
	o := f.confirmedOrder(guest, cast, f.plan(5000, 3000))
	require.True(t, f.reload(cast).IsJoining)

	got, err := f.calls.Cancel(ctx, o.ID, "guest request")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.Equal(t, "guest request", got.OperatorMessage)
	assert.False(t, f.reload(cast).IsJoining)
	assert.Equal(t, 1, f.broker.count(cast.ID, domain.EventCall, domain.CallDelete))

	_, err = f.calls.MarkError(ctx, o.ID, "late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkErrorFromMeeting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	cast := f.cast(nil)
	o := f.confirmedOrder(guest, cast, f.plan(5000, 3000))
	_, err := f.calls.StartMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)

	_, err = f.calls.Cancel(ctx, o.ID, "too late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	got, err := f.calls.MarkError(ctx, o.ID, "device lost")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderError, got.Status)
	assert.False(t, f.reload(cast).IsJoining)
}

func TestProposeAndAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	c1, c2 := f.cast(nil), f.cast(nil)
	plan := f.plan(5000, 3000)

	_, err := f.calls.Propose(ctx, ProposeInput{GuestID: guest.ID, CastIDs: []uint{c1.ID, guest.ID}, Order: f.orderInput(nil, plan, 1)})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	o, err := f.calls.Propose(ctx, ProposeInput{GuestID: guest.ID, CastIDs: []uint{c1.ID, c2.ID}, Order: f.orderInput(nil, plan, 1)})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProposed, o.Status)
	assert.Equal(t, 2, o.Person)
	require.Len(t, o.Joins, 2)
	assert.Equal(t, domain.SelectionAdmin, o.Joins[0].Selection)
	msgs := f.messagesTo(guest.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, msgProposal, msgs[0].Content)

	_, err = f.calls.AcceptProposal(ctx, f.guest(0).ID, o.ID)
	assert.ErrorIs(t, err, ErrNotOrderOwner)

	got, err := f.calls.AcceptProposal(ctx, guest.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	require.NotNil(t, got.RoomID)
	assert.True(t, f.reload(c1).IsJoining)
	assert.True(t, f.reload(c2).IsJoining)
}

func TestListOpenForCastFiltersAreaAndPrivacy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokyo := f.location("Tokyo")
	osaka := f.location("Osaka")
	cast := f.cast(&tokyo.ID)
	guest := f.guest(0)
	plan := f.plan(5000, 3000)

	public, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(tokyo, plan, 1))
	require.NoError(t, err)
	_, err = f.calls.CreateOrder(ctx, guest.ID, f.orderInput(osaka, plan, 1))
	require.NoError(t, err)
	private := f.orderInput(osaka, plan, 1)
	private.IsPrivate = true
	private.DesiredIDs = []uint{cast.ID}
	desired, err := f.calls.CreateOrder(ctx, guest.ID, private)
	require.NoError(t, err)

	list, err := f.calls.ListOpenForCast(cast.ID)
	require.NoError(t, err)
	var ids []uint
	for _, o := range list {
		ids = append(ids, o.ID)
	}
	assert.ElementsMatch(t, []uint{public.ID, desired.ID}, ids)
}

func TestSelectCastKeepsCastOnOneOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.plan(5000, 3000)
	g1, g2 := f.guest(0), f.guest(0)
	cast := f.cast(nil)
	o1, err := f.calls.CreateOrder(ctx, g1.ID, f.orderInput(nil, plan, 1))
	require.NoError(t, err)
	o2, err := f.calls.CreateOrder(ctx, g2.ID, f.orderInput(nil, plan, 1))
	require.NoError(t, err)
	for _, o := range []*models.Order{o1, o2} {
		_, err := f.calls.Apply(ctx, cast.ID, o.ID)
		require.NoError(t, err)
	}

	appliers := f.broker.count(g2.ID, domain.EventApplier, "")
	got, err := f.calls.SelectCast(ctx, g1.ID, o1.ID, cast.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	assert.True(t, f.reload(cast).IsJoining)
	assert.Equal(t, appliers+1, f.broker.count(g2.ID, domain.EventApplier, ""))

	j, err := repository.NewOrderRepository(f.db).GetJoin(o2.ID, cast.ID)
	require.NoError(t, err)
	assert.True(t, j.Dropped)

	_, err = f.calls.SelectCast(ctx, g2.ID, o2.ID, cast.ID)
	assert.ErrorIs(t, err, ErrJoinNotFound)
	assert.Equal(t, domain.OrderSelecting, f.order(o2.ID).Status)
}

func TestSelectCastRejectsBusyCast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	cast := f.cast(nil)
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, f.plan(5000, 3000), 1))
	require.NoError(t, err)
	_, err = f.calls.Apply(ctx, cast.ID, o.ID)
	require.NoError(t, err)
	require.NoError(t, repository.NewMemberRepository(f.db).SetJoining([]uint{cast.ID}, true))

	_, err = f.calls.SelectCast(ctx, guest.ID, o.ID, cast.ID)
	assert.ErrorIs(t, err, ErrCastBusy)
	j, err := repository.NewOrderRepository(f.db).GetJoin(o.ID, cast.ID)
	require.NoError(t, err)
	assert.False(t, j.IsConfirmed())
	assert.Equal(t, domain.OrderSelecting, f.order(o.ID).Status)
}

func TestRunCallControlRollsBackFailedAutoMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	c1, c2, c3 := f.cast(nil), f.cast(nil), f.cast(nil)
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, f.plan(5000, 3000), 2))
	require.NoError(t, err)
	for _, c := range []*models.Member{c1, c2, c3} {
		_, err := f.calls.Apply(ctx, c.ID, o.ID)
		require.NoError(t, err)
	}
	_, err = f.calls.SelectCast(ctx, guest.ID, o.ID, c1.ID)
	require.NoError(t, err)
	// c1 got booked elsewhere before the window closed
	require.NoError(t, repository.NewMemberRepository(f.db).SetJoining([]uint{c1.ID}, true))

	f.advance(16 * time.Minute)
	n, err := f.calls.RunCallControl(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got := f.order(o.ID)
	assert.Equal(t, domain.OrderSelecting, got.Status)
	assert.Nil(t, got.RoomID)
	orders := repository.NewOrderRepository(f.db)
	for _, c := range []*models.Member{c2, c3} {
		j, err := orders.GetJoin(o.ID, c.ID)
		require.NoError(t, err)
		assert.False(t, j.IsConfirmed(), "member %d", c.ID)
	}
}

func TestRunCallControlRefusesOverbookedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	c1, c2 := f.cast(nil), f.cast(nil)
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, f.plan(5000, 3000), 1))
	require.NoError(t, err)
	for _, c := range []*models.Member{c1, c2} {
		_, err := f.calls.Apply(ctx, c.ID, o.ID)
		require.NoError(t, err)
	}
	orders := repository.NewOrderRepository(f.db)
	for _, c := range []*models.Member{c1, c2} {
		j, err := orders.GetJoin(o.ID, c.ID)
		require.NoError(t, err)
		ok, err := orders.ConfirmJoin(j.ID, domain.SelectionAdmin)
		require.NoError(t, err)
		require.True(t, ok)
	}

	f.advance(16 * time.Minute)
	n, err := f.calls.RunCallControl(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.OrderSelecting, f.order(o.ID).Status)
	assert.False(t, f.reload(c1).IsJoining)
	assert.False(t, f.reload(c2).IsJoining)
}

func TestEndMeetingSettlesWithoutAbsentCast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(100000)
	present, absent := f.cast(nil), f.cast(nil)
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, f.plan(5000, 3000), 2))
	require.NoError(t, err)
	for _, c := range []*models.Member{present, absent} {
		_, err := f.calls.Apply(ctx, c.ID, o.ID)
		require.NoError(t, err)
	}
	for _, c := range []*models.Member{present, absent} {
		_, err := f.calls.SelectCast(ctx, guest.ID, o.ID, c.ID)
		require.NoError(t, err)
	}
	require.Equal(t, domain.OrderConfirmed, f.order(o.ID).Status)

	_, err = f.calls.StartMeeting(ctx, present.ID, o.ID)
	require.NoError(t, err)
	f.advance(time.Hour)
	got, err := f.calls.EndMeeting(ctx, present.ID, o.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderPaid, got.Status)
	assert.Equal(t, int64(10000), got.FinalCost)
	inv := f.invoices(domain.InvoiceCall)
	require.Len(t, inv, 1)
	require.NotNil(t, inv[0].TakerID)
	assert.Equal(t, present.ID, *inv[0].TakerID)
	assert.Zero(t, f.reload(absent).Point)
	assert.False(t, f.reload(absent).IsJoining)
	assert.Zero(t, f.reload(absent).CallTimes)

	_, err = f.calls.EndMeeting(ctx, absent.ID, o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
