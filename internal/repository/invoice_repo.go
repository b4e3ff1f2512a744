package repository

import (
	"time"

	"callcast/internal/domain"
	"callcast/internal/models"

	"gorm.io/gorm"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Create(inv *models.Invoice) error {
	return r.db.Omit("Giver", "Taker", "Order").Create(inv).Error
}

// InvoiceFilter mirrors the list query: a giver or receiver and an inclusive date range.
type InvoiceFilter struct {
	InvoiceType     string     `json:"invoice_type"`
	PointUserID     uint       `json:"point_user_id"`
	PointReceiverID uint       `json:"point_receiver_id"`
	OrderID         uint       `json:"order_id"`
	From            *time.Time `json:"from"`
	To              *time.Time `json:"to"`
}

func (r *InvoiceRepository) filtered(f InvoiceFilter) *gorm.DB {
	tx := r.db.Model(&models.Invoice{})
	if f.InvoiceType != "" {
		tx = tx.Where("invoice_type = ?", f.InvoiceType)
	}
	if f.PointUserID > 0 {
		tx = tx.Where("giver_id = ?", f.PointUserID)
	} else if f.PointReceiverID > 0 {
		tx = tx.Where("taker_id = ?", f.PointReceiverID)
	}
	if f.OrderID > 0 {
		tx = tx.Where("order_id = ?", f.OrderID)
	}
	if f.From != nil {
		tx = tx.Where("created_at >= ?", startOfDay(*f.From))
	}
	if f.To != nil {
		tx = tx.Where("created_at < ?", startOfDay(*f.To).AddDate(0, 0, 1))
	}
	return tx
}

func (r *InvoiceRepository) List(f InvoiceFilter, page, limit int) ([]models.Invoice, int64, error) {
	var total int64
	if err := r.filtered(f).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Invoice
	err := r.filtered(f).Preload("Giver").Preload("Taker").Preload("Order").
		Order("created_at DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// ListForMember returns invoices where the member gave or took points.
func (r *InvoiceRepository) ListForMember(memberID uint, page, limit int) ([]models.Invoice, int64, error) {
	tx := r.db.Model(&models.Invoice{}).Where("giver_id = ? OR taker_id = ?", memberID, memberID)
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Invoice
	err := tx.Preload("Order").Order("created_at DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

type InvoiceTotal struct {
	InvoiceType string `json:"invoice_type"`
	Count       int64  `json:"count"`
	GiveAmount  int64  `json:"give_amount"`
	TakeAmount  int64  `json:"take_amount"`
}

// Totals sums invoices per type over the filter.
func (r *InvoiceRepository) Totals(f InvoiceFilter) ([]InvoiceTotal, error) {
	var out []InvoiceTotal
	err := r.filtered(f).
		Select("invoice_type, COUNT(*) AS count, COALESCE(SUM(give_amount), 0) AS give_amount, COALESCE(SUM(take_amount), 0) AS take_amount").
		Group("invoice_type").Order("invoice_type").Scan(&out).Error
	return out, err
}

// RankRow is one member's standing for a date range. Guests are ranked by
// points given, casts by points taken.
type RankRow struct {
	ID            uint   `json:"id"`
	Nickname      string `json:"nickname"`
	CallTimes     int    `json:"call_times"`
	OverallPoints int64  `json:"overall_points"`
	CallPoints    int64  `json:"call_points"`
	PrivateTimes  int64  `json:"private_times"`
	PrivatePoints int64  `json:"private_points"`
	PublicTimes   int64  `json:"public_times"`
	PublicPoints  int64  `json:"public_points"`
	GiftPoints    int64  `json:"gift_points"`
	GiftTimes     int64  `json:"gift_times"`
}

func (r *InvoiceRepository) Rankings(role int, from, to *time.Time, limit int) ([]RankRow, error) {
	side, amount := "taker_id", "take_amount"
	if role != domain.RoleCast {
		side, amount = "giver_id", "give_amount"
	}
	q := r.db.Table("invoices").
		Select(
			"members.id AS id, members.nickname AS nickname, members.call_times AS call_times, "+
				"COALESCE(SUM(invoices."+amount+"), 0) AS overall_points, "+
				"COALESCE(SUM(CASE WHEN invoices.invoice_type = ? THEN invoices."+amount+" ELSE 0 END), 0) AS call_points, "+
				"COALESCE(SUM(CASE WHEN invoices.invoice_type = ? AND orders.is_private = ? THEN 1 ELSE 0 END), 0) AS private_times, "+
				"COALESCE(SUM(CASE WHEN invoices.invoice_type = ? AND orders.is_private = ? THEN invoices."+amount+" ELSE 0 END), 0) AS private_points, "+
				"COALESCE(SUM(CASE WHEN invoices.invoice_type = ? AND orders.is_private = ? THEN 1 ELSE 0 END), 0) AS public_times, "+
				"COALESCE(SUM(CASE WHEN invoices.invoice_type = ? AND orders.is_private = ? THEN invoices."+amount+" ELSE 0 END), 0) AS public_points, "+
				"COALESCE(SUM(CASE WHEN invoices.invoice_type = ? THEN invoices."+amount+" ELSE 0 END), 0) AS gift_points, "+
				"COALESCE(SUM(CASE WHEN invoices.invoice_type = ? THEN 1 ELSE 0 END), 0) AS gift_times",
			domain.InvoiceCall,
			domain.InvoiceCall, true,
			domain.InvoiceCall, true,
			domain.InvoiceCall, false,
			domain.InvoiceCall, false,
			domain.InvoiceGift,
			domain.InvoiceGift,
		).
		Joins("JOIN members ON members.id = invoices."+side).
		Joins("LEFT JOIN orders ON orders.id = invoices.order_id")
	if role == domain.RoleCast {
		q = q.Where("members.role = ?", domain.RoleCast)
	} else {
		q = q.Where("members.role IN ?", []int{domain.RoleGuest, domain.RoleApplier})
	}
	if from != nil {
		q = q.Where("invoices.created_at >= ?", startOfDay(*from))
	}
	if to != nil {
		q = q.Where("invoices.created_at < ?", startOfDay(*to).AddDate(0, 0, 1))
	}
	var rows []RankRow
	err := q.Group("members.id, members.nickname, members.call_times").
		Order("overall_points DESC").Limit(limit).Scan(&rows).Error
	return rows, err
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
