package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"callcast/pkg/logger"
)

// GatewayProvider charges stored cards through a REST card gateway.
type GatewayProvider struct {
	BaseURL  string
	APIKey   string
	Currency string
	client   *http.Client
}

func NewGatewayProvider(baseURL, apiKey, currency string, timeout time.Duration) *GatewayProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if currency == "" {
		currency = "jpy"
	}
	return &GatewayProvider{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Currency: currency,
		client:   &http.Client{Timeout: timeout},
	}
}

type gatewayChargeReq struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Card        string            `json:"card"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type gatewayCharge struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
	Paid   bool   `json:"paid"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *GatewayProvider) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	if req.CardToken == "" {
		return nil, ErrNoCard
	}
	currency := req.Currency
	if currency == "" {
		currency = p.Currency
	}
	meta := map[string]string{"member_id": strconv.FormatUint(uint64(req.MemberID), 10)}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	body, _ := json.Marshal(gatewayChargeReq{
		Amount:      req.Amount,
		Currency:    currency,
		Card:        req.CardToken,
		Description: req.Description,
		Metadata:    meta,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	out, status, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status == http.StatusPaymentRequired || (out.Error != nil && status < 500) {
		logger.With("payment").WithField("member_id", req.MemberID).Warnf("[Gateway] charge declined: %s", out.errorMessage())
		return nil, fmt.Errorf("%w: %s", ErrDeclined, out.errorMessage())
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("gateway charge: status %d", status)
	}
	if !out.Paid && out.Status != "succeeded" {
		return nil, fmt.Errorf("%w: status %s", ErrDeclined, out.Status)
	}
	return &ChargeResponse{Reference: out.ID, Status: out.Status, Amount: out.Amount}, nil
}

func (p *GatewayProvider) VerifyCharge(ctx context.Context, reference string) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/v1/charges/"+reference, nil)
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	out, status, err := p.do(httpReq)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("gateway verify: status %d", status)
	}
	return out.Paid || out.Status == "succeeded", nil
}

func (p *GatewayProvider) do(req *http.Request) (*gatewayCharge, int, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	var out gatewayCharge
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &out); err != nil && resp.StatusCode < 300 {
			return nil, resp.StatusCode, fmt.Errorf("gateway: decode response: %w", err)
		}
	}
	return &out, resp.StatusCode, nil
}

func (c *gatewayCharge) errorMessage() string {
	if c.Error == nil {
		return c.Status
	}
	return c.Error.Code + ": " + c.Error.Message
}
