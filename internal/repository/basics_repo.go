package repository

import (
	"callcast/internal/models"

	"gorm.io/gorm"
)

// BasicsRepository serves the reference tables operators maintain: locations,
// classes, levels, choices, cost plans, gifts, banners and the receipt issuer.
type BasicsRepository struct {
	db *gorm.DB
}

func NewBasicsRepository(db *gorm.DB) *BasicsRepository {
	return &BasicsRepository{db: db}
}

// Save creates or updates any basics row.
func (r *BasicsRepository) Save(v interface{}) error {
	return r.db.Save(v).Error
}

// Delete removes the row of model's type with the given id; false when nothing matched.
func (r *BasicsRepository) Delete(model interface{}, id uint) (bool, error) {
	res := r.db.Delete(model, id)
	return res.RowsAffected > 0, res.Error
}

func (r *BasicsRepository) First(dest interface{}, id uint) error {
	return r.db.First(dest, id).Error
}

// Locations lists locations by display order; pid nil lists the top level.
func (r *BasicsRepository) Locations(pid *uint, shownOnly bool) ([]models.Location, error) {
	tx := r.db.Model(&models.Location{})
	if pid == nil {
		tx = tx.Where("parent_id IS NULL")
	} else {
		tx = tx.Where("parent_id = ?", *pid)
	}
	if shownOnly {
		tx = tx.Where("shown = ?", true)
	}
	var list []models.Location
	err := tx.Preload("Children", func(db *gorm.DB) *gorm.DB {
		if shownOnly {
			db = db.Where("shown = ?", true)
		}
		return db.Order("sort_order ASC, id ASC")
	}).Order("sort_order ASC, id ASC").Find(&list).Error
	return list, err
}

// OrderItem assigns a display position.
type OrderItem struct {
	ID    uint `json:"id" binding:"required"`
	Order int  `json:"order"`
}

// ChangeLocationOrder applies all positions or none.
func (r *BasicsRepository) ChangeLocationOrder(items []OrderItem) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, it := range items {
			if err := tx.Model(&models.Location{}).Where("id = ?", it.ID).Update("sort_order", it.Order).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *BasicsRepository) CastClasses() ([]models.CastClass, error) {
	var list []models.CastClass
	err := r.db.Order("sort_order ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *BasicsRepository) GuestLevels() ([]models.GuestLevel, error) {
	var list []models.GuestLevel
	err := r.db.Order("sort_order ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *BasicsRepository) Choices(category string, page, limit int) ([]models.Choice, int64, error) {
	tx := r.db.Model(&models.Choice{})
	if category != "" {
		tx = tx.Where("category = ?", category)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Choice
	err := tx.Order("category ASC, subcategory ASC, sort_order ASC, id ASC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// CostPlans lists plans; with shownOnly only visible plans for the location.
func (r *BasicsRepository) CostPlans(locationID *uint, shownOnly bool) ([]models.CostPlan, error) {
	tx := r.db.Model(&models.CostPlan{})
	if shownOnly {
		tx = tx.Where("is_shown = ?", true)
	}
	if locationID != nil {
		tx = tx.Where("location_id = ?", *locationID)
	}
	var list []models.CostPlan
	err := tx.Preload("Location").Order("cost ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *BasicsRepository) GetCostPlan(id uint) (*models.CostPlan, error) {
	var p models.CostPlan
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *BasicsRepository) Gifts(shownOnly bool) ([]models.Gift, error) {
	tx := r.db.Model(&models.Gift{})
	if shownOnly {
		tx = tx.Where("is_shown = ?", true)
	}
	var list []models.Gift
	err := tx.Order("point ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *BasicsRepository) GetGift(id uint) (*models.Gift, error) {
	var g models.Gift
	if err := r.db.First(&g, id).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *BasicsRepository) Banners(category string) ([]models.Banner, error) {
	tx := r.db.Model(&models.Banner{})
	if category != "" {
		tx = tx.Where("category = ?", category)
	}
	var list []models.Banner
	err := tx.Order("id DESC").Find(&list).Error
	return list, err
}

// ReceiptSetting returns the single issuer row, empty when not configured yet.
func (r *BasicsRepository) ReceiptSetting() (*models.ReceiptSetting, error) {
	var s models.ReceiptSetting
	err := r.db.Order("id ASC").FirstOrInit(&s).Error
	return &s, err
}
