package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"callcast/config"
	"callcast/internal/auth"
	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"
	"callcast/pkg/logger"
	"callcast/pkg/mailer"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

var (
	ErrEmailExists     = errors.New("email already exists")
	ErrInvalidCreds    = errors.New("invalid email or password")
	ErrNotVerified     = errors.New("email address not verified")
	ErrInactive        = errors.New("account is disabled")
	ErrNotAdmin        = errors.New("admin account required")
	ErrUnknownInviter  = errors.New("unknown inviter code")
	ErrAlreadyVerified = errors.New("email address already verified")
	ErrLineLogin       = errors.New("line login failed")
)

const (
	subjectVerify = "メールアドレスの確認"
	subjectReset  = "パスワードの再設定"
)

// LineExchanger trades a LINE authorization code for the signed id_token.
type LineExchanger interface {
	Exchange(ctx context.Context, code string) (string, error)
}

type oauthLineExchanger struct {
	conf *oauth2.Config
}

// NewLineExchanger uses the LINE Login v2.1 endpoints.
func NewLineExchanger(cfg config.LineConfig) LineExchanger {
	return &oauthLineExchanger{conf: &oauth2.Config{
		ClientID:     cfg.ChannelID,
		ClientSecret: cfg.ChannelSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"profile", "openid", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://access.line.me/oauth2/v2.1/authorize",
			TokenURL:  "https://api.line.me/oauth2/v2.1/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}}
}

func (e *oauthLineExchanger) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := e.conf.Exchange(ctx, code)
	if err != nil {
		return "", err
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return "", fmt.Errorf("%w: no id_token in response", ErrLineLogin)
	}
	return idToken, nil
}

// Tokens is what every successful login returns.
type Tokens struct {
	Member  *models.Member `json:"user"`
	Access  string         `json:"access"`
	Refresh string         `json:"refresh"`
}

type AuthService struct {
	cfg     *config.Config
	db      *gorm.DB
	mail    mailer.Sender
	line    LineExchanger
	invites *ReferralService
	now     func() time.Time
	log     *logrus.Entry
}

func NewAuthService(cfg *config.Config, db *gorm.DB, mail mailer.Sender, line LineExchanger, invites *ReferralService) *AuthService {
	return &AuthService{cfg: cfg, db: db, mail: mail, line: line, invites: invites, now: time.Now, log: logger.With("auth")}
}

func (s *AuthService) members() *repository.MemberRepository { return repository.NewMemberRepository(s.db) }

func (s *AuthService) issue(m *models.Member) (*Tokens, error) {
	access, err := auth.GenerateAccessToken(&s.cfg.JWT, m.ID, m.EmailAddress(), m.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateRefreshToken(&s.cfg.JWT, m.ID)
	if err != nil {
		return nil, err
	}
	return &Tokens{Member: m, Access: access, Refresh: refresh}, nil
}

// RegisterInput is an e-mail signup.
type RegisterInput struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	InviterCode string `json:"inviter_code"`
	Role        *int   `json:"role"`
}

// RegisterEmail creates an unverified member and mails the verification link.
func (s *AuthService) RegisterEmail(ctx context.Context, in RegisterInput) (*models.Member, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	var introducer *models.Member
	if in.InviterCode != "" {
		var err error
		if introducer, err = s.invites.ResolveInviter(in.InviterCode); err != nil {
			return nil, err
		}
	}
	if _, err := s.members().GetByEmail(email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	role := domain.RoleGuest
	if in.Role != nil && *in.Role == domain.RoleCast {
		role = domain.RoleCast
	}
	m := &models.Member{Email: &email, PasswordHash: string(hash), SocialType: domain.SocialEmail, Role: role, IsActive: true}
	if introducer != nil {
		m.IntroducerID = &introducer.ID
	}
	if err := s.create(m); err != nil {
		return nil, err
	}
	s.log.WithField("member_id", m.ID).Info("[Auth] member registered")
	if introducer != nil {
		s.invites.Reward(ctx, introducer, m)
	}
	if err := s.sendVerify(m); err != nil {
		s.log.WithError(err).WithField("member_id", m.ID).Warn("[Auth] verification mail")
	}
	return m, nil
}

// create inserts the member with its default setting, username and inviter code.
func (s *AuthService) create(m *models.Member) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		members := repository.NewMemberRepository(tx)
		st := models.DefaultSetting()
		if err := members.CreateSetting(st); err != nil {
			return err
		}
		code, err := members.GenerateInviterCode()
		if err != nil {
			return err
		}
		m.SettingID = &st.ID
		m.InviterCode = &code
		m.Username = fmt.Sprintf("pending_%d", s.now().UnixNano())
		if err := members.Create(m); err != nil {
			return err
		}
		m.Username = fmt.Sprintf("user_%d", m.ID)
		m.Setting = st
		return members.UpdateFields(m.ID, map[string]interface{}{"username": m.Username})
	})
}

func (s *AuthService) sendVerify(m *models.Member) error {
	if s.mail == nil || m.EmailAddress() == "" {
		return nil
	}
	tok, err := auth.GenerateLinkToken(&s.cfg.JWT, auth.PurposeVerify, m.ID, m.EmailAddress())
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/api/auth/verify?token=%s", s.cfg.Mail.SiteURL, url.QueryEscape(tok))
	return s.mail.Send(m.EmailAddress(), subjectVerify, "以下のリンクからメールアドレスを確認してください。\n"+link)
}

// Verify consumes a verification link token and logs the member in.
func (s *AuthService) Verify(token string) (*Tokens, error) {
	id, email, err := auth.ParseLinkToken(&s.cfg.JWT, auth.PurposeVerify, token)
	if err != nil {
		return nil, err
	}
	m, err := s.members().GetByID(id)
	if err != nil || m.EmailAddress() != email {
		return nil, auth.ErrInvalidToken
	}
	if !m.IsVerified {
		if err := s.members().UpdateFields(id, map[string]interface{}{"is_verified": true}); err != nil {
			return nil, err
		}
		m.IsVerified = true
	}
	return s.issue(m)
}

func (s *AuthService) ResendVerification(email string) error {
	m, err := s.members().GetByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	if m.IsVerified {
		return ErrAlreadyVerified
	}
	return s.sendVerify(m)
}

func (s *AuthService) Login(email, password string) (*Tokens, error) {
	m, err := s.members().GetByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCreds
		}
		return nil, err
	}
	if m.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCreds
	}
	if !m.IsActive {
		return nil, ErrInactive
	}
	if !m.IsVerified && !m.IsAdmin() {
		return nil, ErrNotVerified
	}
	s.touchLogin(m)
	return s.issue(m)
}

// AdminLogin only accepts operator accounts.
func (s *AuthService) AdminLogin(email, password string) (*Tokens, error) {
	t, err := s.Login(email, password)
	if err != nil {
		return nil, err
	}
	if !t.Member.IsAdmin() {
		return nil, ErrNotAdmin
	}
	return t, nil
}

func (s *AuthService) touchLogin(m *models.Member) {
	now := s.now()
	m.LastLogin = &now
	if err := s.members().UpdateFields(m.ID, map[string]interface{}{"last_login": now}); err != nil {
		s.log.WithError(err).Warn("[Auth] update last login")
	}
}

func (s *AuthService) Refresh(refreshToken string) (*Tokens, error) {
	id, err := auth.ParseRefreshToken(&s.cfg.JWT, refreshToken)
	if err != nil {
		return nil, err
	}
	m, err := s.members().GetByID(id)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	if !m.IsActive {
		return nil, ErrInactive
	}
	return s.issue(m)
}

// lineClaims is the subset of the LINE id_token payload used here. The nonce
// carries the role requested by the client.
type lineClaims struct {
	Email string `json:"email"`
	Nonce string `json:"nonce"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// LoginLine exchanges a LINE authorization code, then finds the member by
// LINE id or e-mail, creating one when neither matches. A cast nonce on a
// guest account marks the guest as a cast applicant.
func (s *AuthService) LoginLine(ctx context.Context, code string) (*Tokens, error) {
	if s.line == nil {
		return nil, fmt.Errorf("%w: not configured", ErrLineLogin)
	}
	raw, err := s.line.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLineLogin, err)
	}
	var claims lineClaims
	_, err = jwt.ParseWithClaims(raw, &claims, func(_ *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Line.ChannelSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid id_token", ErrLineLogin)
	}

	m, err := s.members().GetBySocial(domain.SocialLine, claims.Subject)
	if errors.Is(err, gorm.ErrRecordNotFound) && claims.Email != "" {
		m, err = s.members().GetByEmail(strings.ToLower(claims.Email))
	}
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		m = &models.Member{SocialType: domain.SocialLine, Role: domain.RoleGuest, IsActive: true, IsVerified: true}
		if claims.Email != "" {
			email := strings.ToLower(claims.Email)
			m.Email = &email
		}
		if err := s.create(m); err != nil {
			return nil, err
		}
		s.log.WithField("member_id", m.ID).Info("[Auth] member registered via LINE")
	default:
		return nil, err
	}
	if !m.IsActive {
		return nil, ErrInactive
	}

	sub := claims.Subject
	fields := map[string]interface{}{"social_type": domain.SocialLine, "social_id": sub, "is_verified": true}
	if role, err := strconv.Atoi(claims.Nonce); err == nil && role == domain.RoleCast && m.Role == domain.RoleGuest {
		fields["role"] = domain.RoleApplier
		m.Role = domain.RoleApplier
	}
	if err := s.members().UpdateFields(m.ID, fields); err != nil {
		return nil, err
	}
	m.SocialType, m.SocialID, m.IsVerified = domain.SocialLine, &sub, true
	s.touchLogin(m)
	return s.issue(m)
}

// ChangePassword sets a new password; the old one is checked when given.
func (s *AuthService) ChangePassword(memberID uint, oldPassword, newPassword string) error {
	m, err := s.members().GetByID(memberID)
	if err != nil {
		return ErrInvalidCreds
	}
	if oldPassword != "" && bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCreds
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.members().UpdateFields(memberID, map[string]interface{}{"password_hash": string(hash)})
}

// RequestPasswordReset mails a reset link. Unknown addresses are ignored.
func (s *AuthService) RequestPasswordReset(email string) error {
	m, err := s.members().GetByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if s.mail == nil {
		return nil
	}
	tok, err := auth.GenerateLinkToken(&s.cfg.JWT, auth.PurposeReset, m.ID, m.EmailAddress())
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.Mail.ClientURL, url.QueryEscape(tok))
	return s.mail.Send(m.EmailAddress(), subjectReset, "以下のリンクからパスワードを再設定してください。\n"+link)
}

func (s *AuthService) ConfirmPasswordReset(token, newPassword string) error {
	id, email, err := auth.ParseLinkToken(&s.cfg.JWT, auth.PurposeReset, token)
	if err != nil {
		return err
	}
	m, err := s.members().GetByID(id)
	if err != nil || m.EmailAddress() != email {
		return auth.ErrInvalidToken
	}
	return s.ChangePassword(id, "", newPassword)
}
