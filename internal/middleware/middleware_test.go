package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callcast/config"
	"callcast/internal/auth"
	"callcast/internal/database/dbtest"
	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

var jwtCfg = &config.JWTConfig{AccessSecret: "s", RefreshSecret: "r", AccessExpiry: time.Hour, Issuer: "t"}

func bearer(t *testing.T, id uint, role int) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken(jwtCfg, id, "", role)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestAuthAndAdmin(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthRequired(jwtCfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c), "role": GetRole(c)})
	})
	r.GET("/admin", AuthRequired(jwtCfg), AdminRequired(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/casts", AuthRequired(jwtCfg), RequireRole(domain.RoleCast), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"bad scheme", "/me", "Token abc", http.StatusUnauthorized},
		{"guest ok", "/me", bearer(t, 5, domain.RoleGuest), http.StatusOK},
		{"guest not admin", "/admin", bearer(t, 5, domain.RoleGuest), http.StatusForbidden},
		{"cast not admin", "/admin", bearer(t, 5, domain.RoleCast), http.StatusForbidden},
		{"admin", "/admin", bearer(t, 1, domain.RoleAdmin), http.StatusNoContent},
		{"cast role", "/casts", bearer(t, 3, domain.RoleCast), http.StatusNoContent},
		{"guest role denied", "/casts", bearer(t, 3, domain.RoleGuest), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRateLimitPerKey(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	r := gin.New()
	r.GET("/x", RateLimit(NewRateLimiter(1, 1)), func(c *gin.Context) { c.Status(http.StatusOK) })
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitCleanupDropsIdle(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.idle = 0
	rl.Allow("a")
	time.Sleep(time.Millisecond)
	rl.Cleanup()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.limiters)
}

func TestRegisteredAdult(t *testing.T) {
	db := dbtest.New(t)
	members := repository.NewMemberRepository(db)
	old := time.Now().AddDate(-30, 0, 0)
	young := time.Now().AddDate(-17, 0, 0)
	adult := &models.Member{Username: "adult", Role: domain.RoleGuest, IsRegistered: true, Birthday: &old}
	minor := &models.Member{Username: "minor", Role: domain.RoleGuest, IsRegistered: true, Birthday: &young}
	fresh := &models.Member{Username: "fresh", Role: domain.RoleGuest}
	for _, m := range []*models.Member{adult, minor, fresh} {
		require.NoError(t, members.Create(m))
	}

	r := gin.New()
	r.POST("/orders", AuthRequired(jwtCfg), RegisteredAdult(members), func(c *gin.Context) { c.Status(http.StatusCreated) })
	check := func(id uint, want int) {
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		req.Header.Set("Authorization", bearer(t, id, domain.RoleGuest))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code)
	}
	check(adult.ID, http.StatusCreated)
	check(minor.ID, http.StatusForbidden)
	check(fresh.ID, http.StatusForbidden)
	check(9999, http.StatusUnauthorized)
}
