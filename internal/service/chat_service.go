package service

import (
	"context"
	"errors"
	"fmt"

	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"
	"callcast/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotRoomMember   = errors.New("not a member of this room")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrUnknownRoomKind = errors.New("unknown room type")
)

// Titles of the per-member operator rooms.
const (
	titleAdminRoom  = "Gui運営局"
	titleSystemRoom = "システムメッセージ"
)

// ChatService writes per-receiver message rows and fans them out.
type ChatService struct {
	db     *gorm.DB
	notify *NotificationService
	log    *logrus.Entry
}

func NewChatService(db *gorm.DB, notify *NotificationService) *ChatService {
	return &ChatService{db: db, notify: notify, log: logger.With("chat")}
}

// SendSuperMessage posts from the system or admin account into the receiver's
// matching room, creating the room on first use.
func (s *ChatService) SendSuperMessage(ctx context.Context, roomType string, receiverID uint, content string, medias []string) (*models.Message, error) {
	title := titleSystemRoom
	switch roomType {
	case domain.RoomTypeSystem:
	case domain.RoomTypeAdmin:
		title = titleAdminRoom
	default:
		return nil, ErrUnknownRoomKind
	}
	if content == "" && len(medias) == 0 {
		return nil, ErrEmptyMessage
	}
	var (
		room    *models.Room
		created bool
		copyMsg models.Message
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		members := repository.NewMemberRepository(tx)
		chats := repository.NewChatRepository(tx)
		super, err := members.GetSuperuser(roomType)
		if err != nil {
			return fmt.Errorf("load %s sender: %w", roomType, err)
		}
		room, err = chats.FindTypedRoom(receiverID, roomType)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			room = &models.Room{RoomType: roomType, Title: title}
			if err := chats.CreateRoom(room, []uint{receiverID, super.ID}, nil); err != nil {
				return err
			}
			created = true
		} else if err != nil {
			return err
		}
		self := models.Message{RoomID: room.ID, SenderID: super.ID, ReceiverID: super.ID, Content: content, Medias: medias, IsRead: true}
		if err := chats.CreateMessage(&self); err != nil {
			return err
		}
		copyMsg = models.Message{RoomID: room.ID, SenderID: super.ID, ReceiverID: receiverID, FollowerID: &self.ID, Content: content, Medias: medias}
		if err := chats.CreateMessage(&copyMsg); err != nil {
			return err
		}
		copyMsg.Sender = super
		room.LastMessage = lastMessageText(content, medias)
		return chats.SetLastMessage(room.ID, room.LastMessage)
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.notify.SendRoom(ctx, []uint{receiverID}, room)
	}
	s.notify.SendMessage(ctx, []uint{receiverID}, &copyMsg)
	s.notify.Push(ctx, receiverID, domain.EventMessage, title, content, map[string]interface{}{"room_id": room.ID}, nil)
	return &copyMsg, nil
}

// RoomMessageInput is a post into an existing room.
type RoomMessageInput struct {
	RoomID   uint
	SenderID uint
	Content  string
	Medias   []string
	GiftID   *uint
	Notice   bool
}

// SendRoomMessage stores a read self-copy for the sender plus one row per
// other non-superuser member, each pointing back at the self-copy.
func (s *ChatService) SendRoomMessage(ctx context.Context, in RoomMessageInput) (*models.Message, error) {
	if in.Content == "" && len(in.Medias) == 0 && in.GiftID == nil {
		return nil, ErrEmptyMessage
	}
	var (
		self   models.Message
		copies []models.Message
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		chats := repository.NewChatRepository(tx)
		members := repository.NewMemberRepository(tx)
		if _, err := chats.GetRoom(in.RoomID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		sender, err := members.GetByID(in.SenderID)
		if err != nil {
			return err
		}
		ids, err := chats.RoomMemberIDs(in.RoomID)
		if err != nil {
			return err
		}
		if !sender.IsSuperuser && !sender.IsAdmin() && !containsID(ids, in.SenderID) {
			return ErrNotRoomMember
		}
		recipients, err := members.ListByIDs(ids)
		if err != nil {
			return err
		}
		self = models.Message{RoomID: in.RoomID, SenderID: in.SenderID, ReceiverID: in.SenderID, Content: in.Content,
			Medias: in.Medias, GiftID: in.GiftID, IsNotice: in.Notice, IsRead: true}
		if err := chats.CreateMessage(&self); err != nil {
			return err
		}
		for _, m := range recipients {
			if m.ID == in.SenderID || m.IsSuperuser {
				continue
			}
			c := models.Message{RoomID: in.RoomID, SenderID: in.SenderID, ReceiverID: m.ID, FollowerID: &self.ID,
				Content: in.Content, Medias: in.Medias, GiftID: in.GiftID, IsNotice: in.Notice}
			if err := chats.CreateMessage(&c); err != nil {
				return err
			}
			c.Sender = sender
			copies = append(copies, c)
		}
		self.Sender = sender
		return chats.SetLastMessage(in.RoomID, lastMessageText(in.Content, in.Medias))
	})
	if err != nil {
		return nil, err
	}
	s.notify.SendRoomMessage(ctx, in.SenderID, &self)
	for i := range copies {
		c := &copies[i]
		s.notify.SendRoomMessage(ctx, c.ReceiverID, c)
		if !in.Notice {
			s.notify.Push(ctx, c.ReceiverID, domain.EventMessage, self.Sender.DisplayName(), lastMessageText(in.Content, in.Medias),
				map[string]interface{}{"room_id": in.RoomID}, nil)
		}
	}
	return &self, nil
}

// SendNoticeToRoom posts a flagged notice as the given member.
func (s *ChatService) SendNoticeToRoom(ctx context.Context, roomID, senderID uint, content string) (*models.Message, error) {
	return s.SendRoomMessage(ctx, RoomMessageInput{RoomID: roomID, SenderID: senderID, Content: content, Notice: true})
}

// SendSystemNotice posts a notice into a room as the system account.
func (s *ChatService) SendSystemNotice(ctx context.Context, roomID uint, content string) (*models.Message, error) {
	super, err := repository.NewMemberRepository(s.db).GetSuperuser(domain.SuperSystem)
	if err != nil {
		return nil, err
	}
	return s.SendNoticeToRoom(ctx, roomID, super.ID, content)
}

// createOrderRoom opens the group room for a matched order inside tx.
func createOrderRoom(tx *gorm.DB, order *models.Order, castIDs []uint) (*models.Room, error) {
	chats := repository.NewChatRepository(tx)
	if existing, err := chats.GetOrderRoom(order.ID); err == nil {
		if err := chats.AddUsers(existing.ID, missingIDs(tx, existing.ID, castIDs)); err != nil {
			return nil, err
		}
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	orderID := order.ID
	room := &models.Room{
		IsGroup:  len(castIDs) > 1,
		RoomType: domain.RoomTypeOrder,
		OrderID:  &orderID,
		Title:    fmt.Sprintf("%s %s", order.PlaceName(), order.MeetTimeISO.Format("01/02 15:04")),
	}
	users := append([]uint{order.UserID}, castIDs...)
	if err := chats.CreateRoom(room, users, castIDs); err != nil {
		return nil, err
	}
	return room, nil
}

func missingIDs(tx *gorm.DB, roomID uint, ids []uint) []uint {
	have, err := repository.NewChatRepository(tx).RoomMemberIDs(roomID)
	if err != nil {
		return nil
	}
	var out []uint
	for _, id := range ids {
		if !containsID(have, id) {
			out = append(out, id)
		}
	}
	return out
}

func (s *ChatService) Rooms(memberID uint) ([]repository.RoomSummary, error) {
	return repository.NewChatRepository(s.db).RoomsFor(memberID)
}

// RoomMessages returns the caller's copies; operators may read any room.
func (s *ChatService) RoomMessages(roomID, memberID uint, isAdmin bool, page, limit int) ([]models.Message, int64, error) {
	chats := repository.NewChatRepository(s.db)
	if err := s.checkMember(chats, roomID, memberID, isAdmin); err != nil {
		return nil, 0, err
	}
	return chats.Messages(roomID, memberID, page, limit)
}

func (s *ChatService) MarkRead(roomID, memberID uint) (int64, error) {
	chats := repository.NewChatRepository(s.db)
	if err := s.checkMember(chats, roomID, memberID, false); err != nil {
		return 0, err
	}
	return chats.MarkRead(roomID, memberID)
}

func (s *ChatService) UnreadCount(memberID uint) (int64, error) {
	return repository.NewChatRepository(s.db).UnreadCount(memberID)
}

func (s *ChatService) checkMember(chats *repository.ChatRepository, roomID, memberID uint, isAdmin bool) error {
	if _, err := chats.GetRoom(roomID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	if isAdmin {
		return nil
	}
	ok, err := chats.IsMember(roomID, memberID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRoomMember
	}
	return nil
}

// CreateNotice records a notice and pushes it as a USER event.
func (s *ChatService) CreateNotice(ctx context.Context, userID, fromID uint, noticeType, content string) (*models.Notice, error) {
	n := &models.Notice{UserID: userID, FromUserID: fromID, NoticeType: noticeType, Content: content}
	if err := repository.NewChatRepository(s.db).CreateNotice(n); err != nil {
		return nil, err
	}
	s.notify.Realtime(ctx, []uint{userID}, domain.EventUser, "notice", n)
	return n, nil
}

func (s *ChatService) Notices(userID uint, page, limit int) ([]models.Notice, int64, error) {
	return repository.NewChatRepository(s.db).Notices(userID, page, limit)
}

func lastMessageText(content string, medias []string) string {
	if content != "" {
		return content
	}
	if len(medias) > 0 {
		return "[media]"
	}
	return ""
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
