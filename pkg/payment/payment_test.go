package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubProvider(t *testing.T) {
	s := &StubProvider{}
	_, err := s.Charge(context.Background(), ChargeRequest{MemberID: 1, Amount: 100})
	assert.ErrorIs(t, err, ErrNoCard)

	res, err := s.Charge(context.Background(), ChargeRequest{MemberID: 1, Amount: 100, CardToken: "tok"})
	require.NoError(t, err)
	ok, err := s.VerifyCharge(context.Background(), res.Reference)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Count())

	s.Decline = true
	_, err = s.Charge(context.Background(), ChargeRequest{MemberID: 1, Amount: 100, CardToken: "tok"})
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestGatewayCharge(t *testing.T) {
	var got gatewayChargeReq
	var idem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/charges":
			assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
			idem = r.Header.Get("Idempotency-Key")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			if got.Card == "bad" {
				w.WriteHeader(http.StatusPaymentRequired)
				w.Write([]byte(`{"error":{"code":"card_declined","message":"declined"}}`))
				return
			}
			w.Write([]byte(`{"id":"ch_1","status":"succeeded","paid":true,"amount":` + "1500" + `}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/charges/ch_1":
			w.Write([]byte(`{"id":"ch_1","status":"succeeded","paid":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewGatewayProvider(srv.URL, "key", "", time.Second)
	res, err := p.Charge(context.Background(), ChargeRequest{MemberID: 4, Amount: 1500, CardToken: "tok", IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, "ch_1", res.Reference)
	assert.Equal(t, int64(1500), got.Amount)
	assert.Equal(t, "jpy", got.Currency)
	assert.Equal(t, "4", got.Metadata["member_id"])
	assert.Equal(t, "k1", idem)

	_, err = p.Charge(context.Background(), ChargeRequest{MemberID: 4, Amount: 1500, CardToken: "bad"})
	assert.ErrorIs(t, err, ErrDeclined)

	ok, err := p.VerifyCharge(context.Background(), "ch_1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p.VerifyCharge(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
