package models

import (
	"time"

	"callcast/internal/domain"

	"gorm.io/gorm"
)

type Member struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	Username     string  `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Email        *string `gorm:"uniqueIndex;size:100" json:"email"` // nil for LINE/phone signups without e-mail
	PasswordHash string  `gorm:"size:255" json:"-"`
	SocialType   int     `gorm:"not null;default:0" json:"social_type"`
	SocialID     *string `gorm:"size:100;index" json:"-"`
	LineID       string  `gorm:"size:100" json:"line_id"`
	Nickname     *string `gorm:"uniqueIndex;size:190" json:"nickname"`
	IsRegistered bool    `json:"is_registered"`
	IsVerified   bool    `json:"is_verified"`
	IsSuperuser  bool    `json:"-"`
	IsActive     bool    `json:"is_active"`
	InviterCode  *string `gorm:"uniqueIndex;size:6" json:"inviter_code"`
	IntroducerID *uint   `gorm:"index" json:"introducer_id"`

	Birthday *time.Time `json:"birthday"`
	Word     string     `gorm:"size:190" json:"word"`
	About    string     `gorm:"type:text" json:"about"`
	Role     int        `gorm:"not null;index" json:"role"`
	Status   bool       `json:"status"` // online over the realtime channel
	LeftAt   *time.Time `json:"left_at"`

	Point     int64 `gorm:"not null" json:"point"`
	PointUsed int64 `gorm:"not null" json:"point_used"`
	CallTimes int   `gorm:"not null" json:"call_times"`
	IsJoining bool  `json:"is_joining"`

	// cast fields
	PointHalf   int64      `json:"point_half"`
	BackRatio   int        `json:"back_ratio"`
	IsApplied   bool       `json:"is_applied"`
	IsPresent   bool       `gorm:"index" json:"is_present"`
	PresentedAt *time.Time `json:"presented_at"`
	CastClassID *uint      `json:"cast_class_id"`
	LocationID  *uint      `gorm:"index" json:"location_id"`

	GuestLevelID   *uint  `json:"guest_level_id"`
	CardRegistered bool   `json:"card_registered"`
	CardToken      string `gorm:"size:255" json:"-"`
	Memo           string `gorm:"type:text" json:"memo,omitempty"`
	FCMToken       string `gorm:"size:512" json:"-"`
	SettingID      *uint  `json:"-"`

	LastLogin *time.Time     `json:"last_login"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Setting    *Setting    `gorm:"foreignKey:SettingID" json:"setting,omitempty"`
	Avatars    []Media     `gorm:"foreignKey:MemberID" json:"avatars,omitempty"`
	CastClass  *CastClass  `gorm:"foreignKey:CastClassID" json:"cast_class,omitempty"`
	GuestLevel *GuestLevel `gorm:"foreignKey:GuestLevelID" json:"guest_level,omitempty"`
	Location   *Location   `gorm:"foreignKey:LocationID" json:"location,omitempty"`
}

func (Member) TableName() string { return "members" }

func (m *Member) IsCast() bool  { return m.Role == domain.RoleCast }
func (m *Member) IsGuest() bool { return m.Role == domain.RoleGuest || m.Role == domain.RoleApplier }
func (m *Member) IsAdmin() bool { return m.Role < 0 }

// DisplayName prefers the nickname and falls back to the username.
func (m *Member) DisplayName() string {
	if m.Nickname != nil && *m.Nickname != "" {
		return *m.Nickname
	}
	return m.Username
}

func (m *Member) EmailAddress() string {
	if m.Email == nil {
		return ""
	}
	return *m.Email
}

// CanAutoCharge is true when a short balance may be topped up from the stored card.
func (m *Member) CanAutoCharge() bool {
	return m.CardRegistered && m.CardToken != "" && (m.Setting == nil || m.Setting.AppAutocharge)
}

// Media is an uploaded avatar image, ordered per member.
type Media struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MemberID  uint      `gorm:"not null;index" json:"-"`
	URI       string    `gorm:"size:512;not null" json:"uri"`
	Order     int       `gorm:"column:sort_order" json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Media) TableName() string { return "medias" }

// Setting holds a member's notification toggles.
type Setting struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	AppFootprint    bool      `json:"app_footprint"`
	AppTweetLike    bool      `json:"app_tweetlike"`
	AppAutoDelay    bool      `json:"app_autodelay"`
	AppAutocharge   bool      `json:"app_autocharge"`
	AppAutoRemove   bool      `json:"app_autoremove"`
	RankingDisplay  bool      `json:"ranking_display"`
	EmailFootprint  bool      `json:"email_footprint"`
	EmailLike       bool      `json:"email_like"`
	EmailMessage    bool      `json:"email_message"`
	EmailAdmin      bool      `json:"email_admin"`
	EmailJoinLeave  bool      `json:"email_join_leave"`
	EmailAutoDelay  bool      `json:"email_auto_delay"`
	EmailTweetLike  bool      `json:"email_tweet_like"`
	EmailAutoCharge bool      `json:"email_auto_charge"`
	EmailAutoRemove bool      `json:"email_auto_remove"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Setting) TableName() string { return "member_settings" }

// DefaultSetting enables every notification.
func DefaultSetting() *Setting {
	return &Setting{
		AppFootprint: true, AppTweetLike: true, AppAutoDelay: true, AppAutocharge: true, AppAutoRemove: true,
		RankingDisplay: true,
		EmailFootprint: true, EmailLike: true, EmailMessage: true, EmailAdmin: true, EmailJoinLeave: true,
		EmailAutoDelay: true, EmailTweetLike: true, EmailAutoCharge: true, EmailAutoRemove: true,
	}
}

// Friendship is a follow edge: Follower favorites Favorite.
type Friendship struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID uint      `gorm:"not null;uniqueIndex:idx_friendship_pair" json:"follower_id"`
	FavoriteID uint      `gorm:"not null;uniqueIndex:idx_friendship_pair;index" json:"favorite_id"`
	CreatedAt  time.Time `json:"created_at"`

	Follower *Member `gorm:"foreignKey:FollowerID" json:"follower,omitempty"`
	Favorite *Member `gorm:"foreignKey:FavoriteID" json:"favorite,omitempty"`
}

func (Friendship) TableName() string { return "friendships" }

type Review struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;uniqueIndex:idx_review_once" json:"order_id"`
	SourceID  uint      `gorm:"not null;uniqueIndex:idx_review_once" json:"source_id"`
	TargetID  uint      `gorm:"not null;uniqueIndex:idx_review_once;index" json:"target_id"`
	Stars     int       `gorm:"not null" json:"stars"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Source *Member `gorm:"foreignKey:SourceID" json:"source,omitempty"`
}

func (Review) TableName() string { return "reviews" }
