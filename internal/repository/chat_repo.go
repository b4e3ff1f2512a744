package repository

import (
	"callcast/internal/models"

	"gorm.io/gorm"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateRoom inserts the room and its member rows. joinIDs are the casts
// attached to an order room.
func (r *ChatRepository) CreateRoom(room *models.Room, userIDs, joinIDs []uint) error {
	if err := r.db.Omit("Users", "Joins").Create(room).Error; err != nil {
		return err
	}
	if err := r.AddUsers(room.ID, userIDs); err != nil {
		return err
	}
	if len(joinIDs) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(joinIDs))
	for _, id := range joinIDs {
		rows = append(rows, map[string]interface{}{"room_id": room.ID, "member_id": id})
	}
	return r.db.Table("room_joins").Create(rows).Error
}

func (r *ChatRepository) AddUsers(roomID uint, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, map[string]interface{}{"room_id": roomID, "member_id": id})
	}
	return r.db.Table("room_users").Create(rows).Error
}

func (r *ChatRepository) GetRoom(id uint) (*models.Room, error) {
	var room models.Room
	if err := r.db.Preload("Users").Preload("Joins").First(&room, id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *ChatRepository) GetOrderRoom(orderID uint) (*models.Room, error) {
	var room models.Room
	if err := r.db.Where("order_id = ?", orderID).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// FindTypedRoom returns the member's system or admin room.
func (r *ChatRepository) FindTypedRoom(memberID uint, roomType string) (*models.Room, error) {
	var room models.Room
	sub := r.db.Table("room_users").Select("room_id").Where("member_id = ?", memberID)
	err := r.db.Where("room_type = ? AND id IN (?)", roomType, sub).Order("id ASC").First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *ChatRepository) RoomMemberIDs(roomID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Table("room_users").Where("room_id = ?", roomID).Order("member_id ASC").Pluck("member_id", &ids).Error
	return ids, err
}

func (r *ChatRepository) IsMember(roomID, memberID uint) (bool, error) {
	var c int64
	err := r.db.Table("room_users").Where("room_id = ? AND member_id = ?", roomID, memberID).Count(&c).Error
	return c > 0, err
}

func (r *ChatRepository) SetLastMessage(roomID uint, content string) error {
	return r.db.Model(&models.Room{}).Where("id = ?", roomID).Update("last_message", content).Error
}

func (r *ChatRepository) CreateMessage(m *models.Message) error {
	return r.db.Omit("Sender", "Gift").Create(m).Error
}

// RoomSummary is a room row in the member's room list.
type RoomSummary struct {
	models.Room
	Unread int64 `json:"unread"`
}

// RoomsFor lists the member's rooms, most recently active first, with unread counts.
func (r *ChatRepository) RoomsFor(memberID uint) ([]RoomSummary, error) {
	var rooms []models.Room
	sub := r.db.Table("room_users").Select("room_id").Where("member_id = ?", memberID)
	if err := r.db.Preload("Users").Where("id IN (?)", sub).Order("updated_at DESC, id DESC").Find(&rooms).Error; err != nil {
		return nil, err
	}
	type unreadRow struct {
		RoomID uint
		N      int64
	}
	var counts []unreadRow
	err := r.db.Model(&models.Message{}).Select("room_id, COUNT(*) AS n").
		Where("receiver_id = ? AND is_read = ?", memberID, false).
		Group("room_id").Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	byRoom := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byRoom[c.RoomID] = c.N
	}
	out := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, RoomSummary{Room: room, Unread: byRoom[room.ID]})
	}
	return out, nil
}

// Messages returns the member's own copies in the room, newest first.
func (r *ChatRepository) Messages(roomID, memberID uint, page, limit int) ([]models.Message, int64, error) {
	tx := r.db.Model(&models.Message{}).Where("room_id = ? AND receiver_id = ?", roomID, memberID)
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Message
	err := tx.Preload("Sender").Preload("Gift").Order("created_at DESC, id DESC").
		Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

func (r *ChatRepository) MarkRead(roomID, memberID uint) (int64, error) {
	res := r.db.Model(&models.Message{}).
		Where("room_id = ? AND receiver_id = ? AND is_read = ?", roomID, memberID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *ChatRepository) UnreadCount(memberID uint) (int64, error) {
	var c int64
	err := r.db.Model(&models.Message{}).Where("receiver_id = ? AND is_read = ?", memberID, false).Count(&c).Error
	return c, err
}

func (r *ChatRepository) CreateNotice(n *models.Notice) error {
	return r.db.Omit("FromUser").Create(n).Error
}

func (r *ChatRepository) Notices(userID uint, page, limit int) ([]models.Notice, int64, error) {
	tx := r.db.Model(&models.Notice{}).Where("user_id = ?", userID)
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Notice
	err := tx.Preload("FromUser").Order("created_at DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}
