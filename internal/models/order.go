package models

import (
	"time"

	"callcast/internal/domain"

	"gorm.io/gorm"
)

// Order is a guest's call for one or more casts at a given time and place.
type Order struct {
	ID               uint               `gorm:"primaryKey" json:"id"`
	Status           domain.OrderStatus `gorm:"not null;index" json:"status"`
	Reservation      string             `gorm:"size:100" json:"reservation"`
	Place            string             `gorm:"size:100" json:"place"`
	UserID           uint               `gorm:"not null;index" json:"user_id"`
	ParentLocationID *uint              `gorm:"index" json:"parent_location_id"`
	LocationID       *uint              `json:"location_id"`
	LocationOther    string             `gorm:"size:100" json:"location_other"`
	MeetTime         string             `gorm:"size:50" json:"meet_time"`
	MeetTimeISO      time.Time          `json:"meet_time_iso"`
	TimeOther        bool               `json:"time_other"`
	Person           int                `gorm:"not null" json:"person"`
	Period           int                `gorm:"not null" json:"period"` // hours
	CostPlanID       *uint              `json:"cost_plan_id"`
	CostValue        int64              `json:"cost_value"`
	CostExtended     int64              `json:"cost_extended"`
	IsPrivate        bool               `json:"is_private"`
	Remark           string             `gorm:"type:text" json:"remark"`
	OperatorMessage  string             `gorm:"type:text" json:"operator_message"`

	CollectStartedAt time.Time  `json:"collect_started_at"`
	CollectEndedAt   time.Time  `gorm:"index" json:"collect_ended_at"`
	EndedPredict     *time.Time `json:"ended_predict"`
	EndedAt          *time.Time `json:"ended_at"`
	NightStartedAt   string     `gorm:"size:10" json:"night_started_at"`
	NightEndedAt     string     `gorm:"size:10" json:"night_ended_at"`
	NightFund        int64      `json:"night_fund"`
	FinalCost        int64      `json:"final_cost"`
	RoomID           *uint      `json:"room_id"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	User           *Member   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ParentLocation *Location `gorm:"foreignKey:ParentLocationID" json:"parent_location,omitempty"`
	Location       *Location `gorm:"foreignKey:LocationID" json:"location,omitempty"`
	CostPlan       *CostPlan `gorm:"foreignKey:CostPlanID" json:"cost_plan,omitempty"`
	Room           *Room     `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	Joins          []Join    `gorm:"foreignKey:OrderID" json:"joins,omitempty"`
	Situations     []Choice  `gorm:"many2many:order_situations" json:"situations,omitempty"`
	Desired        []Member  `gorm:"many2many:order_desired" json:"desired,omitempty"`
	Applying       int64     `gorm:"-" json:"applying"`
}

func (Order) TableName() string { return "orders" }

// PlaceName is the district name, or the free-text place when none was chosen.
func (o *Order) PlaceName() string {
	if o.Location != nil {
		return o.Location.Name
	}
	return o.LocationOther
}

// Join is a cast's candidacy for an order; confirmed joins meet the guest.
type Join struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	OrderID    uint       `gorm:"not null;uniqueIndex:idx_join_order_user" json:"order_id"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_join_order_user;index" json:"user_id"`
	Status     int        `gorm:"not null" json:"status"`
	Selection  int        `gorm:"not null" json:"selection"`
	Dropped    bool       `json:"dropped"`
	IsStarted  bool       `json:"is_started"`
	StartedAt  *time.Time `json:"started_at"`
	IsEnded    bool       `json:"is_ended"`
	EndedAt    *time.Time `json:"ended_at"`
	IsTenLeft  bool       `json:"is_ten_left"`
	IsExtended bool       `json:"is_extended"`
	Cost       int64      `json:"cost"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	User *Member `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Join) TableName() string { return "joins" }

func (j *Join) IsConfirmed() bool { return j.Status == domain.JoinConfirmed }

// Invoice is a point ledger entry. Giver or Taker is nil for platform-side movements.
type Invoice struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	InvoiceType string    `gorm:"size:20;not null;index" json:"invoice_type"`
	GiveAmount  int64     `gorm:"not null" json:"give_amount"`
	TakeAmount  int64     `gorm:"not null" json:"take_amount"`
	GiverID     *uint     `gorm:"index" json:"giver_id"`
	TakerID     *uint     `gorm:"index" json:"taker_id"`
	OrderID     *uint     `gorm:"index" json:"order_id"`
	Reason      string    `gorm:"size:190" json:"reason"`
	Reference   string    `gorm:"size:64;index" json:"reference"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Giver *Member `gorm:"foreignKey:GiverID" json:"giver,omitempty"`
	Taker *Member `gorm:"foreignKey:TakerID" json:"taker,omitempty"`
	Order *Order  `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

// TransferInfo is the bank account a cast is paid out to.
type TransferInfo struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	MemberID      uint      `gorm:"uniqueIndex;not null" json:"member_id"`
	BankName      string    `gorm:"size:100" json:"bank_name"`
	BranchName    string    `gorm:"size:100" json:"branch_name"`
	AccountType   string    `gorm:"size:20" json:"account_type"`
	AccountNumber string    `gorm:"size:30" json:"account_number"`
	AccountName   string    `gorm:"size:100" json:"account_name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (TransferInfo) TableName() string { return "transfer_infos" }

// TransferApplication is a payout request; its amount is held from the cast's points until processed.
type TransferApplication struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	MemberID    uint       `gorm:"not null;index" json:"member_id"`
	Amount      int64      `gorm:"not null" json:"amount"`
	Status      int        `gorm:"not null;index" json:"status"`
	Reason      string     `gorm:"size:190" json:"reason"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Member *Member `gorm:"foreignKey:MemberID" json:"member,omitempty"`
}

func (TransferApplication) TableName() string { return "transfer_applications" }
