package repository

import (
	"callcast/internal/domain"
	"callcast/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(o *models.Order) error {
	return r.db.Create(o).Error
}

func (r *OrderRepository) Save(o *models.Order) error {
	return r.db.Omit("Joins", "Situations", "Desired", "User", "Room", "Location", "ParentLocation", "CostPlan").Save(o).Error
}

// GetByID loads an order with everything a detail view shows.
func (r *OrderRepository) GetByID(id uint) (*models.Order, error) {
	var o models.Order
	err := r.db.Preload("User").Preload("ParentLocation").Preload("Location").Preload("CostPlan").
		Preload("Situations").Preload("Desired").Preload("Room").
		Preload("Joins", func(db *gorm.DB) *gorm.DB { return db.Order("joins.id ASC") }).
		Preload("Joins.User").
		First(&o, id).Error
	if err != nil {
		return nil, err
	}
	o.Applying = int64(len(o.Joins))
	return &o, nil
}

func (r *OrderRepository) SetSituations(o *models.Order, ids []uint) error {
	var choices []models.Choice
	if len(ids) > 0 {
		if err := r.db.Where("id IN ?", ids).Find(&choices).Error; err != nil {
			return err
		}
	}
	return r.db.Model(o).Association("Situations").Replace(choices)
}

func (r *OrderRepository) SetDesired(o *models.Order, ids []uint) error {
	var casts []models.Member
	if len(ids) > 0 {
		if err := r.db.Where("id IN ? AND role = ?", ids, domain.RoleCast).Find(&casts).Error; err != nil {
			return err
		}
	}
	return r.db.Model(o).Association("Desired").Replace(casts)
}

// TransitionStatus moves an order only if it is still in one of the expected
// statuses. It returns false when another writer got there first.
func (r *OrderRepository) TransitionStatus(id uint, from []domain.OrderStatus, to domain.OrderStatus, extra map[string]interface{}) (bool, error) {
	fields := map[string]interface{}{"status": to}
	for k, v := range extra {
		fields[k] = v
	}
	res := r.db.Model(&models.Order{}).Where("id = ? AND status IN ?", id, from).Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListByStatus returns orders in any of the statuses with their joins.
func (r *OrderRepository) ListByStatus(statuses ...domain.OrderStatus) ([]models.Order, error) {
	var list []models.Order
	err := r.db.Preload("Joins").Preload("Joins.User").Preload("Location").Preload("Room").
		Where("status IN ?", statuses).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *OrderRepository) ListForGuest(guestID uint, statuses []domain.OrderStatus, page, limit int) ([]models.Order, int64, error) {
	tx := r.db.Model(&models.Order{}).Where("user_id = ?", guestID)
	if len(statuses) > 0 {
		tx = tx.Where("status IN ?", statuses)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Order
	err := tx.Preload("Location").Preload("Joins").Preload("Joins.User").
		Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	for i := range list {
		list[i].Applying = int64(len(list[i].Joins))
	}
	return list, total, err
}

// ListOpenForCast returns orders a cast may apply to: open, in the cast's
// area, and public unless the cast is among the desired casts.
func (r *OrderRepository) ListOpenForCast(castID uint, locationID *uint) ([]models.Order, error) {
	desired := r.db.Table("order_desired").Select("order_id").Where("member_id = ?", castID)
	tx := r.db.Model(&models.Order{}).
		Where("status IN ?", []domain.OrderStatus{domain.OrderCollecting, domain.OrderSelecting}).
		Where("is_private = ? OR id IN (?)", false, desired)
	if locationID != nil {
		tx = tx.Where("parent_location_id = ? OR id IN (?)", *locationID, desired)
	}
	var list []models.Order
	err := tx.Preload("User").Preload("Location").Preload("Joins").
		Order("meet_time_iso ASC").Find(&list).Error
	for i := range list {
		list[i].Applying = int64(len(list[i].Joins))
	}
	return list, err
}

// ListJoinedByCast returns orders the cast applied to or was confirmed for.
func (r *OrderRepository) ListJoinedByCast(castID uint, page, limit int) ([]models.Order, int64, error) {
	sub := r.db.Model(&models.Join{}).Select("order_id").Where("user_id = ?", castID)
	tx := r.db.Model(&models.Order{}).Where("id IN (?)", sub)
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Order
	err := tx.Preload("User").Preload("Location").Preload("Joins").Preload("Room").
		Order("meet_time_iso DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// ListAll is the operator view with an optional status filter.
func (r *OrderRepository) ListAll(status *domain.OrderStatus, page, limit int) ([]models.Order, int64, error) {
	tx := r.db.Model(&models.Order{})
	if status != nil {
		tx = tx.Where("status = ?", *status)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Order
	err := tx.Preload("User").Preload("Location").Preload("Joins").Preload("Joins.User").
		Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

func (r *OrderRepository) CreateJoin(j *models.Join) error {
	return r.db.Create(j).Error
}

func (r *OrderRepository) SaveJoin(j *models.Join) error {
	return r.db.Omit("User").Save(j).Error
}

func (r *OrderRepository) GetJoin(orderID, userID uint) (*models.Join, error) {
	var j models.Join
	err := r.db.Where("order_id = ? AND user_id = ?", orderID, userID).First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *OrderRepository) GetJoinByID(id uint) (*models.Join, error) {
	var j models.Join
	err := r.db.Preload("User").First(&j, id).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *OrderRepository) Joins(orderID uint) ([]models.Join, error) {
	var list []models.Join
	err := r.db.Preload("User").Where("order_id = ?", orderID).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *OrderRepository) CountJoins(orderID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Join{}).Where("order_id = ?", orderID).Count(&n).Error
	return n, err
}

func (r *OrderRepository) CountConfirmed(orderID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Join{}).Where("order_id = ? AND status = ?", orderID, domain.JoinConfirmed).Count(&n).Error
	return n, err
}

// ConfirmJoin promotes an applied join; false means it was already confirmed or dropped.
func (r *OrderRepository) ConfirmJoin(joinID uint, selection int) (bool, error) {
	res := r.db.Model(&models.Join{}).
		Where("id = ? AND status = ? AND dropped = ?", joinID, domain.JoinApplied, false).
		Updates(map[string]interface{}{"status": domain.JoinConfirmed, "selection": selection})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteUnconfirmed removes every applied join of the order and returns the casts it belonged to.
func (r *OrderRepository) DeleteUnconfirmed(orderID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&models.Join{}).Where("order_id = ? AND status = ?", orderID, domain.JoinApplied).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}
	err := r.db.Where("order_id = ? AND status = ?", orderID, domain.JoinApplied).Delete(&models.Join{}).Error
	return ids, err
}

// CountLiveJoins counts applications that were not withdrawn.
func (r *OrderRepository) CountLiveJoins(orderID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Join{}).Where("order_id = ? AND dropped = ?", orderID, false).Count(&n).Error
	return n, err
}

func (r *OrderRepository) SetRoom(orderID, roomID uint) error {
	return r.db.Model(&models.Order{}).Where("id = ?", orderID).Update("room_id", roomID).Error
}

// UpdateJoin writes the given join columns.
func (r *OrderRepository) UpdateJoin(joinID uint, fields map[string]interface{}) error {
	return r.db.Model(&models.Join{}).Where("id = ?", joinID).Updates(fields).Error
}

// Lock takes the order row lock for the rest of the transaction. SQLite has
// no row locks and serializes writers instead.
func (r *OrderRepository) Lock(id uint) error {
	var o models.Order
	return r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&o, id).Error
}

// DropOpenJoins withdraws the casts' live joins on other orders that are
// still collecting or selecting, confirmed or not, and returns those orders.
func (r *OrderRepository) DropOpenJoins(castIDs []uint, exceptOrderID uint) ([]uint, error) {
	if len(castIDs) == 0 {
		return nil, nil
	}
	scope := func(db *gorm.DB) *gorm.DB {
		open := r.db.Model(&models.Order{}).Select("id").
			Where("status IN ?", []domain.OrderStatus{domain.OrderCollecting, domain.OrderSelecting})
		return db.Model(&models.Join{}).
			Where("user_id IN ? AND order_id <> ? AND dropped = ?", castIDs, exceptOrderID, false).
			Where("order_id IN (?)", open)
	}
	var orderIDs []uint
	if err := r.db.Scopes(scope).Distinct("order_id").Pluck("order_id", &orderIDs).Error; err != nil {
		return nil, err
	}
	if len(orderIDs) == 0 {
		return orderIDs, nil
	}
	err := r.db.Scopes(scope).Updates(map[string]interface{}{"dropped": true, "status": domain.JoinApplied}).Error
	return orderIDs, err
}
