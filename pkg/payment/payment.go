package payment

import (
	"context"
	"errors"
)

// ChargeRequest debits a stored card. Amount is in the smallest currency unit;
// one point is bought for one unit.
type ChargeRequest struct {
	MemberID       uint
	Amount         int64
	Currency       string
	CardToken      string
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

type ChargeResponse struct {
	Reference string
	Status    string
	Amount    int64
}

var (
	ErrDeclined = errors.New("payment declined")
	ErrNoCard   = errors.New("no card registered")
)

type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
	VerifyCharge(ctx context.Context, reference string) (bool, error)
}
