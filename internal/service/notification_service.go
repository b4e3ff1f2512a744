package service

import (
	"context"

	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"
	"callcast/internal/ws"
	"callcast/pkg/logger"
	"callcast/pkg/mailer"

	"github.com/sirupsen/logrus"
)

// OnlineChecker reports whether a member holds a realtime connection on this instance.
type OnlineChecker interface {
	IsOnline(memberID uint) bool
}

// NotificationService fans events out over the realtime broker and falls back
// to push and mail for members who are away.
type NotificationService struct {
	broker  ws.Broker
	members *repository.MemberRepository
	push    Pusher
	mail    mailer.Sender
	online  OnlineChecker
	log     *logrus.Entry
}

func NewNotificationService(broker ws.Broker, members *repository.MemberRepository, push Pusher, mail mailer.Sender, online OnlineChecker) *NotificationService {
	return &NotificationService{
		broker:  broker,
		members: members,
		push:    push,
		mail:    mail,
		online:  online,
		log:     logger.With("notify"),
	}
}

// Realtime publishes one event to each member. Failures are logged.
func (s *NotificationService) Realtime(ctx context.Context, memberIDs []uint, typ, event string, data interface{}) {
	if s == nil || s.broker == nil {
		return
	}
	seen := make(map[uint]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		if _, dup := seen[id]; dup || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		if err := s.broker.Publish(ctx, id, ws.Event{Type: typ, Event: event, Data: data}); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"member_id": id, "type": typ}).Warn("[Notify] publish failed")
		}
	}
}

func (s *NotificationService) SendCall(ctx context.Context, memberIDs []uint, event string, order *models.Order) {
	s.Realtime(ctx, memberIDs, domain.EventCall, event, order)
}

func (s *NotificationService) SendApplier(ctx context.Context, guestID uint, order *models.Order) {
	s.Realtime(ctx, []uint{guestID}, domain.EventApplier, "update", order)
}

func (s *NotificationService) SendPresent(ctx context.Context, memberIDs []uint, cast *models.Member) {
	s.Realtime(ctx, memberIDs, domain.EventPresent, "update", cast)
}

func (s *NotificationService) SendRoom(ctx context.Context, memberIDs []uint, room *models.Room) {
	s.Realtime(ctx, memberIDs, domain.EventRoom, "create", room)
}

func (s *NotificationService) SendMessage(ctx context.Context, memberIDs []uint, msg *models.Message) {
	s.Realtime(ctx, memberIDs, domain.EventMessage, "create", msg)
}

// SendRoomMessage is the per-member copy of a room message.
func (s *NotificationService) SendRoomMessage(ctx context.Context, memberID uint, msg *models.Message) {
	s.Realtime(ctx, []uint{memberID}, domain.EventRoomEvents, "room.message", msg)
}

func (s *NotificationService) SendUser(ctx context.Context, member *models.Member) {
	s.Realtime(ctx, []uint{member.ID}, domain.EventUser, "update", member)
}

// Push delivers a device notification when the member is not connected and
// allow accepts their settings.
func (s *NotificationService) Push(ctx context.Context, memberID uint, notifType, title, body string, data map[string]interface{}, allow func(*models.Setting) bool) {
	if s == nil || s.push == nil || s.members == nil {
		return
	}
	if s.online != nil && s.online.IsOnline(memberID) {
		return
	}
	m, err := s.members.GetByID(memberID)
	if err != nil || m.FCMToken == "" {
		return
	}
	if allow != nil && m.Setting != nil && !allow(m.Setting) {
		return
	}
	if err := s.push.SendToUser(ctx, m.FCMToken, notifType, title, body, data); err != nil {
		s.log.WithError(err).WithField("member_id", memberID).Warn("[Notify] push failed")
	}
}

// Mail sends to the member's address when allow accepts their settings.
func (s *NotificationService) Mail(m *models.Member, subject, body string, allow func(*models.Setting) bool) {
	if s == nil || s.mail == nil || m == nil || m.EmailAddress() == "" {
		return
	}
	if allow != nil && m.Setting != nil && !allow(m.Setting) {
		return
	}
	if err := s.mail.Send(m.EmailAddress(), subject, body); err != nil {
		s.log.WithError(err).WithField("member_id", m.ID).Warn("[Notify] mail failed")
	}
}
