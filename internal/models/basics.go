package models

import (
	"time"
)

// Location is an area node; top-level nodes are prefectures, children are districts.
type Location struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:190;not null" json:"name"`
	ParentID  *uint     `gorm:"index" json:"parent"`
	Order     int       `gorm:"column:sort_order" json:"order"`
	Shown     bool      `json:"shown"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Children []Location `gorm:"foreignKey:ParentID" json:"children,omitempty"`
}

func (Location) TableName() string { return "locations" }

type CastClass struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:190;not null" json:"name"`
	Color     string    `gorm:"size:20" json:"color"`
	Point     int64     `json:"point"`
	Order     int       `gorm:"column:sort_order" json:"order"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CastClass) TableName() string { return "cast_classes" }

type GuestLevel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:190;not null" json:"name"`
	Color     string    `gorm:"size:20" json:"color"`
	Point     int64     `json:"point"`
	Order     int       `gorm:"column:sort_order" json:"order"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (GuestLevel) TableName() string { return "guest_levels" }

// Choice is a selectable tag, e.g. an order situation or a profile attribute.
type Choice struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"size:190;not null" json:"name"`
	Category      string `gorm:"size:100;index" json:"category"`
	Subcategory   string `gorm:"size:100" json:"subcategory"`
	Order         int    `gorm:"column:sort_order" json:"order"`
	Score         int    `json:"score"`
	CallShown     bool   `json:"call_shown"`
	CastShown     bool   `json:"cast_shown"`
	CustomerShown bool   `json:"customer_shown"`
	SubOne        string `gorm:"size:100" json:"sub_one"`
}

func (Choice) TableName() string { return "choices" }

// CostPlan prices an order: Cost per half hour, ExtendCost per half hour of overtime.
type CostPlan struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:190;not null" json:"name"`
	LocationID *uint     `gorm:"index" json:"location_id"`
	Cost       int64     `gorm:"not null" json:"cost"`
	ExtendCost int64     `gorm:"not null" json:"extend_cost"`
	IsShown    bool      `json:"is_shown"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Location *Location `gorm:"foreignKey:LocationID" json:"location,omitempty"`
}

func (CostPlan) TableName() string { return "cost_plans" }

// Gift can be sent in a chat room; Back is the percentage paid to the receiving cast.
type Gift struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:190;not null" json:"name"`
	Image      string    `gorm:"size:512" json:"image"`
	LocationID *uint     `json:"location_id"`
	Point      int64     `gorm:"not null" json:"point"`
	Back       int       `json:"back"`
	IsShown    bool      `json:"is_shown"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Gift) TableName() string { return "gifts" }

type Banner struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:190" json:"name"`
	BannerImage string    `gorm:"size:512" json:"banner_image"`
	MainImage   string    `gorm:"size:512" json:"main_image"`
	Category    string    `gorm:"size:50" json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Banner) TableName() string { return "banners" }

// ReceiptSetting is the issuer block printed on receipts.
type ReceiptSetting struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CompanyName string    `gorm:"size:190" json:"company_name"`
	PostalCode  string    `gorm:"size:20" json:"postal_code"`
	Address     string    `gorm:"size:255" json:"address"`
	Building    string    `gorm:"size:255" json:"building"`
	PhoneNumber string    `gorm:"size:30" json:"phone_number"`
	Charger     string    `gorm:"size:100" json:"charger"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ReceiptSetting) TableName() string { return "receipt_settings" }
