package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"callcast/config"
	"callcast/internal/auth"
	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = &config.Config{
	JWT: config.JWTConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessExpiry:  time.Hour,
		RefreshExpiry: 24 * time.Hour,
		VerifyExpiry:  time.Hour,
		ResetExpiry:   time.Hour,
		Issuer:        "callcast-test",
	},
	Mail: config.MailConfig{SiteURL: "https://api.example.com", ClientURL: "https://app.example.com"},
	Line: config.LineConfig{ChannelID: "line-channel", ChannelSecret: "line-secret"},
}

// fakeLine hands back an id_token signed with the channel secret.
type fakeLine struct {
	claims lineClaims
	err    error
}

func (l *fakeLine) Exchange(ctx context.Context, code string) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, l.claims).SignedString([]byte(testConfig.Line.ChannelSecret))
}

func newAuth(f *fixture, line LineExchanger) *AuthService {
	return NewAuthService(testConfig, f.db, f.mail, line, NewReferralService(f.db, f.notify))
}

// linkToken pulls the token out of the last mailed link.
func linkToken(t *testing.T, f *fixture) string {
	t.Helper()
	sent := f.mail.Sent()
	require.NotEmpty(t, sent)
	body := sent[len(sent)-1].Body
	i := strings.Index(body, "token=")
	require.True(t, i >= 0, body)
	tok, err := url.QueryUnescape(strings.TrimSpace(body[i+len("token="):]))
	require.NoError(t, err)
	return tok
}

func TestRegisterVerifyLogin(t *testing.T) {
	f := newFixture(t)
	s := newAuth(f, nil)
	ctx := context.Background()

	m, err := s.RegisterEmail(ctx, RegisterInput{Email: " Hana@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "hana@example.com", m.EmailAddress())
	assert.Equal(t, domain.RoleGuest, m.Role)
	assert.True(t, strings.HasPrefix(m.Username, "user_"))
	require.NotNil(t, m.InviterCode)
	assert.Len(t, *m.InviterCode, 6)
	assert.Contains(t, f.mail.Sent()[0].Body, "https://api.example.com/api/auth/verify?token=")

	_, err = s.RegisterEmail(ctx, RegisterInput{Email: "hana@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = s.Login("hana@example.com", "secret1")
	assert.ErrorIs(t, err, ErrNotVerified)

	tokens, err := s.Verify(linkToken(t, f))
	require.NoError(t, err)
	assert.True(t, tokens.Member.IsVerified)
	assert.NotEmpty(t, tokens.Access)

	_, err = s.Login("hana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCreds)
	tokens, err = s.Login("HANA@example.com", "secret1")
	require.NoError(t, err)
	claims, err := auth.ParseAccessToken(&testConfig.JWT, tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, m.ID, claims.UserID)

	refreshed, err := s.Refresh(tokens.Refresh)
	require.NoError(t, err)
	assert.Equal(t, m.ID, refreshed.Member.ID)

	_, err = s.AdminLogin("hana@example.com", "secret1")
	assert.ErrorIs(t, err, ErrNotAdmin)
	assert.ErrorIs(t, s.ResendVerification("hana@example.com"), ErrAlreadyVerified)
}

func TestRegisterAsCastWithInviterBonus(t *testing.T) {
	f := newFixture(t)
	s := newAuth(f, nil)
	ctx := context.Background()
	require.NoError(t, repository.NewSettingRepository(f.db).Set(models.SettingInviteBonus, "1000"))
	code := "ABC123"
	inviter := f.member(domain.RoleGuest, func(m *models.Member) { m.InviterCode = &code })

	_, err := s.RegisterEmail(ctx, RegisterInput{Email: "x@example.com", Password: "secret1", InviterCode: "NOPE00"})
	assert.ErrorIs(t, err, ErrUnknownInviter)

	role := domain.RoleCast
	m, err := s.RegisterEmail(ctx, RegisterInput{Email: "cast@example.com", Password: "secret1", InviterCode: code, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCast, m.Role)
	require.NotNil(t, m.IntroducerID)
	assert.Equal(t, inviter.ID, *m.IntroducerID)
	assert.Equal(t, int64(1000), f.reload(inviter).Point)

	invitees, err := NewReferralService(f.db, f.notify).Invitees(inviter.ID)
	require.NoError(t, err)
	require.Len(t, invitees, 1)
	assert.Equal(t, m.ID, invitees[0].ID)
}

func TestLoginRejectsInactive(t *testing.T) {
	f := newFixture(t)
	s := newAuth(f, nil)
	_, err := s.RegisterEmail(context.Background(), RegisterInput{Email: "off@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Member{}).Where("email = ?", "off@example.com").
		Updates(map[string]interface{}{"is_active": false, "is_verified": true}).Error)

	_, err = s.Login("off@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInactive)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	s := newAuth(f, nil)
	m, err := s.RegisterEmail(context.Background(), RegisterInput{Email: "r@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Member{}).Where("id = ?", m.ID).Update("is_verified", true).Error)

	require.NoError(t, s.RequestPasswordReset("nobody@example.com"))
	require.NoError(t, s.RequestPasswordReset("r@example.com"))
	sent := f.mail.Sent()
	assert.Contains(t, sent[len(sent)-1].Body, "https://app.example.com/reset-password?token=")

	tok := linkToken(t, f)
	_, _, err = auth.ParseLinkToken(&testConfig.JWT, auth.PurposeVerify, tok)
	assert.Error(t, err, "reset tokens do not verify e-mail")

	require.NoError(t, s.ConfirmPasswordReset(tok, "newsecret"))
	_, err = s.Login("r@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCreds)
	_, err = s.Login("r@example.com", "newsecret")
	require.NoError(t, err)

	assert.ErrorIs(t, s.ChangePassword(m.ID, "wrong", "other"), ErrInvalidCreds)
	require.NoError(t, s.ChangePassword(m.ID, "newsecret", "other"))
}

func TestLoginLineCreatesAndLinksMembers(t *testing.T) {
	f := newFixture(t)
	line := &fakeLine{claims: lineClaims{
		Email:            "line@example.com",
		Nonce:            "0",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "U123", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}}
	s := newAuth(f, line)
	ctx := context.Background()

	tokens, err := s.LoginLine(ctx, "code")
	require.NoError(t, err)
	m := tokens.Member
	assert.Equal(t, domain.SocialLine, m.SocialType)
	assert.Equal(t, domain.RoleApplier, m.Role, "a cast nonce marks a guest as applicant")
	assert.True(t, m.IsVerified)

	again, err := s.LoginLine(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, m.ID, again.Member.ID)

	existing := f.guest(0)
	line.claims.Subject = "U999"
	line.claims.Email = existing.EmailAddress()
	line.claims.Nonce = ""
	linked, err := s.LoginLine(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, linked.Member.ID)
	got, err := repository.NewMemberRepository(f.db).GetBySocial(domain.SocialLine, "U999")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
}

func TestLoginLineRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := newAuth(f, nil).LoginLine(ctx, "code")
	assert.ErrorIs(t, err, ErrLineLogin)

	_, err = newAuth(f, &fakeLine{err: errors.New("invalid_grant")}).LoginLine(ctx, "code")
	assert.ErrorIs(t, err, ErrLineLogin)

	_, err = newAuth(f, &fakeLine{claims: lineClaims{}}).LoginLine(ctx, "code")
	assert.ErrorIs(t, err, ErrLineLogin, "subject is required")
}
