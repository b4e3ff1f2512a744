package service

import (
	"context"
	"errors"
	"time"

	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"
	"callcast/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrTransferNotFound   = errors.New("transfer application not found")
	ErrTransferResolved   = errors.New("transfer application already processed")
	ErrTransferInfoNeeded = errors.New("bank transfer info is required")
)

// TransferService handles cast payouts. Requested points are held from the
// balance until an operator approves or rejects the application.
type TransferService struct {
	db     *gorm.DB
	notify *NotificationService
	now    func() time.Time
	log    *logrus.Entry
}

func NewTransferService(db *gorm.DB, notify *NotificationService) *TransferService {
	return &TransferService{db: db, notify: notify, now: time.Now, log: logger.With("transfer")}
}

func (s *TransferService) GetInfo(memberID uint) (*models.TransferInfo, error) {
	info, err := repository.NewTransferRepository(s.db).GetInfo(memberID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.TransferInfo{MemberID: memberID}, nil
	}
	return info, err
}

func (s *TransferService) SaveInfo(memberID uint, info models.TransferInfo) (*models.TransferInfo, error) {
	info.ID = 0
	info.MemberID = memberID
	if err := repository.NewTransferRepository(s.db).SaveInfo(&info); err != nil {
		return nil, err
	}
	return s.GetInfo(memberID)
}

// Apply holds amount points from the cast and files a pending application.
func (s *TransferService) Apply(ctx context.Context, memberID uint, amount int64) (*models.TransferApplication, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	transfers := repository.NewTransferRepository(s.db)
	if _, err := transfers.GetInfo(memberID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransferInfoNeeded
		}
		return nil, err
	}
	app := &models.TransferApplication{MemberID: memberID, Amount: amount, Status: domain.TransferPending}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := repository.NewMemberRepository(tx).DebitPoints(memberID, amount); err != nil {
			return err
		}
		return repository.NewTransferRepository(tx).Create(app)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"member_id": memberID, "amount": amount}).Info("[Transfer] application filed")
	s.refreshUser(ctx, memberID)
	return app, nil
}

// Approve records the payout as a TRANSFER invoice.
func (s *TransferService) Approve(ctx context.Context, id uint) (*models.TransferApplication, error) {
	return s.resolve(ctx, id, domain.TransferApproved, "")
}

// Reject returns the held points to the cast.
func (s *TransferService) Reject(ctx context.Context, id uint, reason string) (*models.TransferApplication, error) {
	return s.resolve(ctx, id, domain.TransferRejected, reason)
}

func (s *TransferService) resolve(ctx context.Context, id uint, status int, reason string) (*models.TransferApplication, error) {
	app, err := repository.NewTransferRepository(s.db).GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := repository.NewTransferRepository(tx).Resolve(id, status,
			map[string]interface{}{"reason": reason, "processed_at": s.now()})
		if err != nil {
			return err
		}
		if !ok {
			return ErrTransferResolved
		}
		if status == domain.TransferRejected {
			return repository.NewMemberRepository(tx).CreditPoints(app.MemberID, app.Amount)
		}
		return repository.NewInvoiceRepository(tx).Create(&models.Invoice{
			InvoiceType: domain.InvoiceTransfer,
			GiveAmount:  app.Amount,
			TakeAmount:  app.Amount,
			GiverID:     &app.MemberID,
			Reason:      "transfer",
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"transfer_id": id, "status": status}).Info("[Transfer] application processed")
	s.refreshUser(ctx, app.MemberID)
	return repository.NewTransferRepository(s.db).GetByID(id)
}

func (s *TransferService) List(memberID uint, status *int, page int) ([]models.TransferApplication, int64, error) {
	return repository.NewTransferRepository(s.db).List(memberID, status, page, domain.DefaultPageSize)
}

func (s *TransferService) refreshUser(ctx context.Context, memberID uint) {
	if m, err := repository.NewMemberRepository(s.db).GetByID(memberID); err == nil {
		s.notify.SendUser(ctx, m)
	}
}
