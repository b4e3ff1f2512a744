package auth

import (
	"testing"
	"time"

	"callcast/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWT() *config.JWTConfig {
	return &config.JWTConfig{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessExpiry:  time.Hour,
		RefreshExpiry: 24 * time.Hour,
		VerifyExpiry:  time.Hour,
		ResetExpiry:   time.Hour,
		Issuer:        "callcast",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testJWT()
	tok, err := GenerateAccessToken(cfg, 42, "a@example.com", -1)
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, -1, claims.Role)
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestAccessTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	cfg := testJWT()
	tok, err := GenerateAccessToken(cfg, 1, "", 1)
	require.NoError(t, err)

	other := testJWT()
	other.AccessSecret = "other"
	_, err = ParseAccessToken(other, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := testJWT()
	expired.AccessExpiry = -time.Minute
	tok, err = GenerateAccessToken(expired, 1, "", 1)
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshToken(t *testing.T) {
	cfg := testJWT()
	tok, err := GenerateRefreshToken(cfg, 7)
	require.NoError(t, err)
	id, err := ParseRefreshToken(cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)

	_, err = ParseAccessToken(cfg, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLinkTokenIsPurposeBound(t *testing.T) {
	cfg := testJWT()
	tok, err := GenerateLinkToken(cfg, PurposeVerify, 9, "v@example.com")
	require.NoError(t, err)

	id, email, err := ParseLinkToken(cfg, PurposeVerify, tok)
	require.NoError(t, err)
	assert.Equal(t, uint(9), id)
	assert.Equal(t, "v@example.com", email)

	_, _, err = ParseLinkToken(cfg, PurposeReset, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
