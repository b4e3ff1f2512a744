package service

import (
	"context"
	"errors"
	"fmt"

	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"
	"callcast/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReferralService resolves inviter codes and credits the optional invite bonus.
type ReferralService struct {
	db     *gorm.DB
	notify *NotificationService
	log    *logrus.Entry
}

func NewReferralService(db *gorm.DB, notify *NotificationService) *ReferralService {
	return &ReferralService{db: db, notify: notify, log: logger.With("referral")}
}

func (s *ReferralService) ResolveInviter(code string) (*models.Member, error) {
	m, err := repository.NewMemberRepository(s.db).GetByInviterCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownInviter
		}
		return nil, err
	}
	return m, nil
}

// Reward credits the introducer with the configured invite bonus, if any.
func (s *ReferralService) Reward(ctx context.Context, introducer, invitee *models.Member) {
	bonus := repository.NewSettingRepository(s.db).GetInt(models.SettingInviteBonus, 0)
	if bonus <= 0 || introducer.ID == invitee.ID {
		return
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := repository.NewMemberRepository(tx).CreditPoints(introducer.ID, bonus); err != nil {
			return err
		}
		return repository.NewInvoiceRepository(tx).Create(&models.Invoice{
			InvoiceType: domain.InvoiceAdmin,
			TakeAmount:  bonus,
			TakerID:     &introducer.ID,
			Reason:      fmt.Sprintf("invite bonus for member %d", invitee.ID),
		})
	})
	if err != nil {
		s.log.WithError(err).WithField("member_id", introducer.ID).Error("[Referral] credit invite bonus")
		return
	}
	if m, err := repository.NewMemberRepository(s.db).GetByID(introducer.ID); err == nil {
		s.notify.SendUser(ctx, m)
	}
}

// Invitees lists members who signed up with the member's code.
func (s *ReferralService) Invitees(memberID uint) ([]models.Member, error) {
	var list []models.Member
	err := s.db.Where("introducer_id = ?", memberID).Order("id DESC").Find(&list).Error
	return list, err
}
