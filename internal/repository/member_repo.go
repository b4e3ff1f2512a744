package repository

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"callcast/internal/domain"
	"callcast/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInsufficientPoints = errors.New("insufficient points")

type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(m *models.Member) error {
	return r.db.Create(m).Error
}

func (r *MemberRepository) Update(m *models.Member) error {
	return r.db.Save(m).Error
}

// UpdateFields writes only the given columns.
func (r *MemberRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.db.Model(&models.Member{}).Where("id = ?", id).Updates(fields).Error
}

func (r *MemberRepository) GetByID(id uint) (*models.Member, error) {
	var m models.Member
	err := r.db.Preload("Setting").Preload("Avatars", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).First(&m, id).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MemberRepository) GetByEmail(email string) (*models.Member, error) {
	var m models.Member
	err := r.db.Preload("Setting").Where("email = ?", email).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MemberRepository) GetBySocial(socialType int, socialID string) (*models.Member, error) {
	var m models.Member
	err := r.db.Where("social_type = ? AND social_id = ?", socialType, socialID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MemberRepository) GetByInviterCode(code string) (*models.Member, error) {
	var m models.Member
	err := r.db.Where("inviter_code = ?", code).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetSuperuser returns the "system" or "admin" sender.
func (r *MemberRepository) GetSuperuser(username string) (*models.Member, error) {
	var m models.Member
	err := r.db.Where("username = ? AND is_superuser = ?", username, true).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// NicknameTaken reports whether another member already uses the nickname.
func (r *MemberRepository) NicknameTaken(nickname string, exceptID uint) (bool, error) {
	var n int64
	err := r.db.Model(&models.Member{}).Where("nickname = ? AND id <> ?", nickname, exceptID).Count(&n).Error
	return n > 0, err
}

func (r *MemberRepository) ListByIDs(ids []uint) ([]models.Member, error) {
	var list []models.Member
	if len(ids) == 0 {
		return list, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&list).Error
	return list, err
}

// CastIDsInLocation lists casts whose home area is the given location.
func (r *MemberRepository) CastIDsInLocation(locationID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Member{}).
		Where("role = ? AND location_id = ?", domain.RoleCast, locationID).
		Pluck("id", &ids).Error
	return ids, err
}

// OnlineGuestIDs lists guests currently connected to the realtime channel.
func (r *MemberRepository) OnlineGuestIDs() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Member{}).
		Where("role IN ? AND status = ?", []int{domain.RoleGuest, domain.RoleApplier}, true).
		Pluck("id", &ids).Error
	return ids, err
}

// PresentCasts returns casts flagged present; expiry is checked by the caller.
func (r *MemberRepository) PresentCasts() ([]models.Member, error) {
	var list []models.Member
	err := r.db.Where("role = ? AND is_present = ?", domain.RoleCast, true).Find(&list).Error
	return list, err
}

type CastSearch struct {
	Keyword     string
	LocationID  uint
	CastClassID uint
	PresentOnly bool
	Fresh       bool
}

func (r *MemberRepository) SearchCasts(q CastSearch, page, limit int) ([]models.Member, int64, error) {
	tx := r.db.Model(&models.Member{}).Where("role = ? AND is_registered = ? AND is_active = ?", domain.RoleCast, true, true)
	if q.Keyword != "" {
		like := "%" + q.Keyword + "%"
		tx = tx.Where("nickname LIKE ? OR word LIKE ? OR about LIKE ?", like, like, like)
	}
	if q.LocationID > 0 {
		tx = tx.Where("location_id = ?", q.LocationID)
	}
	if q.CastClassID > 0 {
		tx = tx.Where("cast_class_id = ?", q.CastClassID)
	}
	if q.PresentOnly {
		tx = tx.Where("is_present = ?", true)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	order := "status DESC, is_present DESC, call_times DESC"
	if q.Fresh {
		order = "created_at DESC"
	}
	var list []models.Member
	err := tx.Preload("Avatars").Preload("CastClass").Order(order).
		Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

func (r *MemberRepository) SearchGuests(keyword string, page, limit int) ([]models.Member, int64, error) {
	tx := r.db.Model(&models.Member{}).
		Where("role IN ? AND is_registered = ?", []int{domain.RoleGuest, domain.RoleApplier}, true)
	if keyword != "" {
		tx = tx.Where("nickname LIKE ?", "%"+keyword+"%")
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Member
	err := tx.Preload("Avatars").Preload("GuestLevel").Order("point_used DESC").
		Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// ListAdmins returns operator accounts, superusers excluded.
func (r *MemberRepository) ListAdmins() ([]models.Member, error) {
	var list []models.Member
	err := r.db.Where("role < 0 AND is_superuser = ?", false).Order("id").Find(&list).Error
	return list, err
}

// ListRegistered returns registered casts and guests, or every registered member when all is set.
func (r *MemberRepository) ListRegistered(all bool) ([]models.Member, error) {
	tx := r.db.Where("is_registered = ? AND is_superuser = ?", true, false)
	if !all {
		tx = tx.Where("role >= 0")
	}
	var list []models.Member
	err := tx.Order("id").Find(&list).Error
	return list, err
}

// DebitPoints subtracts points only when the balance covers them.
func (r *MemberRepository) DebitPoints(id uint, amount int64) error {
	res := r.db.Model(&models.Member{}).
		Where("id = ? AND point >= ?", id, amount).
		UpdateColumn("point", gorm.Expr("point - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientPoints
	}
	return nil
}

func (r *MemberRepository) CreditPoints(id uint, amount int64) error {
	return r.db.Model(&models.Member{}).Where("id = ?", id).
		UpdateColumn("point", gorm.Expr("point + ?", amount)).Error
}

// RecordCall bumps a member's call counter and, for guests, the points used.
func (r *MemberRepository) RecordCall(id uint, pointsUsed int64) error {
	return r.db.Model(&models.Member{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"call_times": gorm.Expr("call_times + 1"),
		"point_used": gorm.Expr("point_used + ?", pointsUsed),
	}).Error
}

// LockByIDs loads the members holding their row locks until the transaction ends.
func (r *MemberRepository) LockByIDs(ids []uint) ([]models.Member, error) {
	var list []models.Member
	if len(ids) == 0 {
		return list, nil
	}
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id IN ?", ids).Order("id").Find(&list).Error
	return list, err
}

func (r *MemberRepository) SetJoining(ids []uint, joining bool) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.Member{}).Where("id IN ?", ids).UpdateColumn("is_joining", joining).Error
}

// SetOnline records realtime connection state; going offline stamps left_at.
func (r *MemberRepository) SetOnline(id uint, online bool, at time.Time) error {
	fields := map[string]interface{}{"status": online}
	if !online {
		fields["left_at"] = at
	}
	return r.db.Model(&models.Member{}).Where("id = ?", id).UpdateColumns(fields).Error
}

func (r *MemberRepository) CreateSetting(s *models.Setting) error {
	return r.db.Create(s).Error
}

func (r *MemberRepository) SaveSetting(s *models.Setting) error {
	return r.db.Save(s).Error
}

// ReplaceAvatars swaps a member's avatar list for the given URIs in order.
func (r *MemberRepository) ReplaceAvatars(memberID uint, uris []string) ([]models.Media, error) {
	var out []models.Media
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("member_id = ?", memberID).Delete(&models.Media{}).Error; err != nil {
			return err
		}
		for i, uri := range uris {
			m := models.Media{MemberID: memberID, URI: uri, Order: i}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

func (r *MemberRepository) AddAvatar(memberID uint, uri string) (*models.Media, error) {
	var n int64
	if err := r.db.Model(&models.Media{}).Where("member_id = ?", memberID).Count(&n).Error; err != nil {
		return nil, err
	}
	m := &models.Media{MemberID: memberID, URI: uri, Order: int(n)}
	return m, r.db.Create(m).Error
}

func (r *MemberRepository) GetAvatar(memberID, mediaID uint) (*models.Media, error) {
	var m models.Media
	err := r.db.Where("id = ? AND member_id = ?", mediaID, memberID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MemberRepository) SaveAvatar(m *models.Media) error {
	return r.db.Save(m).Error
}

func (r *MemberRepository) DeleteAvatar(m *models.Media) error {
	return r.db.Delete(m).Error
}

func (r *MemberRepository) Avatars(memberID uint) ([]models.Media, error) {
	var list []models.Media
	err := r.db.Where("member_id = ?", memberID).Order("sort_order ASC, id ASC").Find(&list).Error
	return list, err
}

// GenerateInviterCode returns an unused 6-digit code.
func (r *MemberRepository) GenerateInviterCode() (string, error) {
	for i := 0; i < 20; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(1000000))
		if err != nil {
			return "", err
		}
		code := fmt.Sprintf("%06d", n.Int64())
		var count int64
		if err := r.db.Model(&models.Member{}).Where("inviter_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique inviter code after retries")
}

func (r *MemberRepository) Follow(followerID, favoriteID uint) error {
	var n int64
	r.db.Model(&models.Friendship{}).Where("follower_id = ? AND favorite_id = ?", followerID, favoriteID).Count(&n)
	if n > 0 {
		return nil
	}
	return r.db.Create(&models.Friendship{FollowerID: followerID, FavoriteID: favoriteID}).Error
}

func (r *MemberRepository) Unfollow(followerID, favoriteID uint) error {
	return r.db.Where("follower_id = ? AND favorite_id = ?", followerID, favoriteID).Delete(&models.Friendship{}).Error
}

// Favorites lists the members the given member follows.
func (r *MemberRepository) Favorites(followerID uint) ([]models.Member, error) {
	var list []models.Member
	err := r.db.Joins("JOIN friendships ON friendships.favorite_id = members.id").
		Where("friendships.follower_id = ?", followerID).
		Preload("Avatars").Order("friendships.created_at DESC").Find(&list).Error
	return list, err
}

// Followers lists the members following the given member.
func (r *MemberRepository) Followers(favoriteID uint) ([]models.Member, error) {
	var list []models.Member
	err := r.db.Joins("JOIN friendships ON friendships.follower_id = members.id").
		Where("friendships.favorite_id = ?", favoriteID).
		Preload("Avatars").Order("friendships.created_at DESC").Find(&list).Error
	return list, err
}

func (r *MemberRepository) CreateReview(rv *models.Review) error {
	return r.db.Create(rv).Error
}

func (r *MemberRepository) ReviewsFor(targetID uint, page, limit int) ([]models.Review, int64, error) {
	tx := r.db.Model(&models.Review{}).Where("target_id = ?", targetID)
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Review
	err := tx.Preload("Source").Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// AverageStars returns the mean rating for a cast, 0 when unrated.
func (r *MemberRepository) AverageStars(targetID uint) (float64, error) {
	var out struct{ Avg float64 }
	err := r.db.Model(&models.Review{}).Select("COALESCE(AVG(stars), 0) AS avg").
		Where("target_id = ?", targetID).Scan(&out).Error
	return out.Avg, err
}
