package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// StubProvider approves every charge with a card token; set Decline to refuse them.
// Used in development and tests.
type StubProvider struct {
	Decline bool

	mu      sync.Mutex
	Charges []ChargeRequest
}

func (s *StubProvider) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	if req.CardToken == "" {
		return nil, ErrNoCard
	}
	if s.Decline || req.Amount <= 0 {
		return nil, ErrDeclined
	}
	s.mu.Lock()
	s.Charges = append(s.Charges, req)
	s.mu.Unlock()
	ref := fmt.Sprintf("stub_%d_%d", time.Now().UnixNano(), req.MemberID)
	return &ChargeResponse{Reference: ref, Status: "succeeded", Amount: req.Amount}, nil
}

func (s *StubProvider) VerifyCharge(ctx context.Context, reference string) (bool, error) {
	return strings.HasPrefix(reference, "stub_"), nil
}

// Count returns the number of approved charges.
func (s *StubProvider) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Charges)
}
