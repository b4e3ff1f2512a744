package models

import (
	"time"
)

// Room groups members for chat. Order rooms carry the order id; system and
// admin rooms pair one member with the matching superuser.
type Room struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	IsGroup     bool      `json:"is_group"`
	RoomType    string    `gorm:"size:30;index" json:"room_type"`
	OrderID     *uint     `gorm:"index" json:"order_id"`
	Title       string    `gorm:"size:130" json:"title"`
	LastMessage string    `gorm:"type:text" json:"last_message"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Users []Member `gorm:"many2many:room_users" json:"users,omitempty"`
	Joins []Member `gorm:"many2many:room_joins" json:"joins,omitempty"`
}

func (Room) TableName() string { return "rooms" }

// Message is one receiver's copy. The sender keeps a read self-copy that
// every receiver copy points at through FollowerID.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RoomID     uint      `gorm:"not null;index" json:"room_id"`
	SenderID   uint      `gorm:"not null;index" json:"sender_id"`
	ReceiverID uint      `gorm:"not null;index:idx_message_receiver_read" json:"receiver_id"`
	FollowerID *uint     `gorm:"index" json:"follower_id"`
	Content    string    `gorm:"type:text" json:"content"`
	Medias     []string  `gorm:"type:text;serializer:json" json:"medias"`
	GiftID     *uint     `json:"gift_id"`
	IsRead     bool      `gorm:"index:idx_message_receiver_read" json:"is_read"`
	IsNotice   bool      `json:"is_notice"`
	IsLike     bool      `json:"is_like"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Sender *Member `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Gift   *Gift   `gorm:"foreignKey:GiftID" json:"gift,omitempty"`
}

func (Message) TableName() string { return "messages" }

// Notice records profile visits and likes shown in the member's notice list.
type Notice struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	FromUserID uint      `gorm:"not null" json:"from_user_id"`
	Content    string    `gorm:"size:100" json:"content"`
	NoticeType string    `gorm:"size:50;index" json:"notice_type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	FromUser *Member `gorm:"foreignKey:FromUserID" json:"from_user,omitempty"`
}

func (Notice) TableName() string { return "notices" }

type Tweet struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Content   string    `gorm:"type:text" json:"content"`
	Images    []string  `gorm:"type:text;serializer:json" json:"images"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User   *Member `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Likes  int64   `gorm:"-" json:"likes"`
	IsLike bool    `gorm:"-" json:"is_like"`
}

func (Tweet) TableName() string { return "tweets" }

type FavoriteTweet struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TweetID   uint      `gorm:"not null;uniqueIndex:idx_tweet_liker" json:"tweet_id"`
	LikerID   uint      `gorm:"not null;uniqueIndex:idx_tweet_liker" json:"liker_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (FavoriteTweet) TableName() string { return "favorite_tweets" }
