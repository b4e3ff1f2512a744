package service

import (
	"context"
	"testing"

	"callcast/internal/domain"
	"callcast/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransfers(f *fixture, cast *models.Member) *TransferService {
	f.t.Helper()
	s := NewTransferService(f.db, f.notify)
	_, err := s.SaveInfo(cast.ID, models.TransferInfo{BankName: "Mizuho", AccountNumber: "1234567", AccountName: "CAST"})
	require.NoError(f.t, err)
	return s
}

func TestTransferApplyHoldsPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cast := f.member(domain.RoleCast, func(m *models.Member) { m.Point = 10000 })
	s := NewTransferService(f.db, f.notify)

	info, err := s.GetInfo(cast.ID)
	require.NoError(t, err)
	assert.Zero(t, info.ID)
	_, err = s.Apply(ctx, cast.ID, 5000)
	assert.ErrorIs(t, err, ErrTransferInfoNeeded)

	s = newTransfers(f, cast)
	_, err = s.Apply(ctx, cast.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = s.Apply(ctx, cast.ID, 20000)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	app, err := s.Apply(ctx, cast.ID, 4000)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferPending, app.Status)
	assert.Equal(t, int64(6000), f.reload(cast).Point)

	pending := domain.TransferPending
	list, total, err := s.List(cast.ID, &pending, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, app.ID, list[0].ID)
}

func TestTransferApproveWritesInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cast := f.member(domain.RoleCast, func(m *models.Member) { m.Point = 10000 })
	s := newTransfers(f, cast)
	app, err := s.Apply(ctx, cast.ID, 4000)
	require.NoError(t, err)

	got, err := s.Approve(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferApproved, got.Status)
	require.NotNil(t, got.ProcessedAt)
	assert.Equal(t, int64(6000), f.reload(cast).Point)
	inv := f.invoices(domain.InvoiceTransfer)
	require.Len(t, inv, 1)
	assert.Equal(t, int64(4000), inv[0].GiveAmount)

	_, err = s.Reject(ctx, app.ID, "late")
	assert.ErrorIs(t, err, ErrTransferResolved)
	_, err = s.Approve(ctx, 999)
	assert.ErrorIs(t, err, ErrTransferNotFound)
}

func TestTransferRejectRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cast := f.member(domain.RoleCast, func(m *models.Member) { m.Point = 10000 })
	s := newTransfers(f, cast)
	app, err := s.Apply(ctx, cast.ID, 4000)
	require.NoError(t, err)

	got, err := s.Reject(ctx, app.ID, "account mismatch")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferRejected, got.Status)
	assert.Equal(t, "account mismatch", got.Reason)
	assert.Equal(t, int64(10000), f.reload(cast).Point)
	assert.Empty(t, f.invoices(domain.InvoiceTransfer))
}

func TestSaveInfoUpserts(t *testing.T) {
	f := newFixture(t)
	cast := f.cast(nil)
	s := newTransfers(f, cast)

	info, err := s.SaveInfo(cast.ID, models.TransferInfo{BankName: "MUFG", AccountNumber: "7654321", AccountName: "CAST"})
	require.NoError(t, err)
	assert.Equal(t, "MUFG", info.BankName)
	var n int64
	require.NoError(t, f.db.Model(&models.TransferInfo{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
