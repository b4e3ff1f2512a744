package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"callcast/config"
	"callcast/internal/database/dbtest"
	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"
	"callcast/internal/ws"
	"callcast/pkg/mailer"
	"callcast/pkg/payment"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type published struct {
	MemberID uint
	Event    ws.Event
}

// recordingBroker captures every realtime event instead of delivering it.
type recordingBroker struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBroker) Publish(_ context.Context, memberID uint, ev ws.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{MemberID: memberID, Event: ev})
	return nil
}

// count returns how many events of type and name reached the member; an
// empty name matches any.
func (b *recordingBroker) count(memberID uint, typ, name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range b.events {
		if p.MemberID == memberID && p.Event.Type == typ && (name == "" || p.Event.Event == name) {
			n++
		}
	}
	return n
}

func (b *recordingBroker) reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

var testCalls = config.CallsConfig{
	CollectWindow:    15 * time.Minute,
	TenLeftLead:      10 * time.Minute,
	NightStart:       "00:00",
	NightEnd:         "06:00",
	NightFund:        4000,
	TimeZone:         "UTC",
	DefaultBackRatio: 70,
}

type fixture struct {
	t       *testing.T
	db      *gorm.DB
	broker  *recordingBroker
	mail    *mailer.Recorder
	pay     *payment.StubProvider
	notify  *NotificationService
	chat    *ChatService
	billing *BillingService
	calls   *CallService
	members *MemberService
	now     time.Time
	seq     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{
		t:      t,
		db:     db,
		broker: &recordingBroker{},
		mail:   &mailer.Recorder{},
		pay:    &payment.StubProvider{},
		now:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.notify = NewNotificationService(f.broker, repository.NewMemberRepository(db), nil, f.mail, nil)
	f.chat = NewChatService(db, f.notify)
	f.billing = NewBillingService(db, testCalls, f.pay, "JPY", f.chat, f.notify)
	f.calls = NewCallService(db, testCalls, f.chat, f.notify, f.billing)
	f.calls.SetClock(f.clock)
	f.members = NewMemberService(db, nil, f.chat, f.notify)
	f.members.SetClock(f.clock)
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) member(role int, mutate func(*models.Member)) *models.Member {
	f.t.Helper()
	f.seq++
	nick := fmt.Sprintf("member%d", f.seq)
	email := fmt.Sprintf("member%d@example.com", f.seq)
	st := models.DefaultSetting()
	require.NoError(f.t, f.db.Create(st).Error)
	m := &models.Member{
		Username:     fmt.Sprintf("user_t%d", f.seq),
		Email:        &email,
		Nickname:     &nick,
		Role:         role,
		IsRegistered: true,
		IsVerified:   true,
		IsActive:     true,
		SettingID:    &st.ID,
	}
	if mutate != nil {
		mutate(m)
	}
	require.NoError(f.t, f.db.Create(m).Error)
	return m
}

func (f *fixture) guest(point int64) *models.Member {
	return f.member(domain.RoleGuest, func(m *models.Member) { m.Point = point })
}

func (f *fixture) cast(locationID *uint) *models.Member {
	return f.member(domain.RoleCast, func(m *models.Member) { m.LocationID = locationID })
}

func (f *fixture) location(name string) *models.Location {
	f.t.Helper()
	loc := &models.Location{Name: name, Shown: true}
	require.NoError(f.t, f.db.Create(loc).Error)
	return loc
}

func (f *fixture) plan(cost, extend int64) *models.CostPlan {
	f.t.Helper()
	p := &models.CostPlan{Name: "standard", Cost: cost, ExtendCost: extend, IsShown: true}
	require.NoError(f.t, f.db.Create(p).Error)
	return p
}

func (f *fixture) reload(m *models.Member) *models.Member {
	f.t.Helper()
	out, err := repository.NewMemberRepository(f.db).GetByID(m.ID)
	require.NoError(f.t, err)
	return out
}

func (f *fixture) order(id uint) *models.Order {
	f.t.Helper()
	o, err := f.calls.GetOrder(id)
	require.NoError(f.t, err)
	return o
}

// orderInput is a one-hour call at 20:00 on the fixture day.
func (f *fixture) orderInput(loc *models.Location, plan *models.CostPlan, person int) CreateOrderInput {
	in := CreateOrderInput{
		Place:       "Ginza",
		MeetTime:    "20:00",
		MeetTimeISO: time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC),
		Person:      person,
		Period:      1,
		CostPlanID:  &plan.ID,
	}
	if loc != nil {
		in.ParentLocationID = &loc.ID
		in.LocationID = &loc.ID
	}
	return in
}

// confirmedOrder builds an order with one selected cast.
func (f *fixture) confirmedOrder(guest, cast *models.Member, plan *models.CostPlan) *models.Order {
	f.t.Helper()
	ctx := context.Background()
	o, err := f.calls.CreateOrder(ctx, guest.ID, f.orderInput(nil, plan, 1))
	require.NoError(f.t, err)
	_, err = f.calls.Apply(ctx, cast.ID, o.ID)
	require.NoError(f.t, err)
	o, err = f.calls.SelectCast(ctx, guest.ID, o.ID, cast.ID)
	require.NoError(f.t, err)
	require.Equal(f.t, domain.OrderConfirmed, o.Status)
	return o
}

func (f *fixture) messagesTo(memberID uint) []models.Message {
	f.t.Helper()
	var list []models.Message
	require.NoError(f.t, f.db.Where("receiver_id = ?", memberID).Order("id").Find(&list).Error)
	return list
}

func (f *fixture) invoices(typ string) []models.Invoice {
	f.t.Helper()
	var list []models.Invoice
	require.NoError(f.t, f.db.Where("invoice_type = ?", typ).Order("id").Find(&list).Error)
	return list
}
