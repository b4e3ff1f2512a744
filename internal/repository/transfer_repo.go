package repository

import (
	"callcast/internal/domain"
	"callcast/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) GetInfo(memberID uint) (*models.TransferInfo, error) {
	var info models.TransferInfo
	if err := r.db.Where("member_id = ?", memberID).First(&info).Error; err != nil {
		return nil, err
	}
	return &info, nil
}

// SaveInfo upserts the member's bank account.
func (r *TransferRepository) SaveInfo(info *models.TransferInfo) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"bank_name", "branch_name", "account_type", "account_number", "account_name", "updated_at"}),
	}).Create(info).Error
}

func (r *TransferRepository) Create(a *models.TransferApplication) error {
	return r.db.Omit("Member").Create(a).Error
}

func (r *TransferRepository) GetByID(id uint) (*models.TransferApplication, error) {
	var a models.TransferApplication
	if err := r.db.Preload("Member").First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// Resolve moves a pending application to status; false means it was already resolved.
func (r *TransferRepository) Resolve(id uint, status int, fields map[string]interface{}) (bool, error) {
	upd := map[string]interface{}{"status": status}
	for k, v := range fields {
		upd[k] = v
	}
	res := r.db.Model(&models.TransferApplication{}).Where("id = ? AND status = ?", id, domain.TransferPending).Updates(upd)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *TransferRepository) List(memberID uint, status *int, page, limit int) ([]models.TransferApplication, int64, error) {
	tx := r.db.Model(&models.TransferApplication{})
	if memberID > 0 {
		tx = tx.Where("member_id = ?", memberID)
	}
	if status != nil {
		tx = tx.Where("status = ?", *status)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.TransferApplication
	err := tx.Preload("Member").Order("created_at DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}
