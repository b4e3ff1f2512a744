package handler

import (
	"net/http"

	"callcast/internal/middleware"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh" binding:"required"`
}

// Register answers 200 with success false when the address is taken, which
// the sign-up form shows inline.
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.svc.RegisterEmail(c.Request.Context(), req)
	if err != nil {
		if err == service.ErrEmailExists {
			c.JSON(http.StatusOK, gin.H{"success": false, "reason": "Email already exists"})
			return
		}
		fail(c, err, "registration failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": m})
}

func (h *AuthHandler) Verify(c *gin.Context) {
	tokens, err := h.svc.Verify(c.Query("token"))
	if err != nil {
		fail(c, err, "verification failed")
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) Resend(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.ResendVerification(req.Email); err != nil {
		fail(c, err, "resend failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.svc.Login(req.Email, req.Password)
	if err != nil {
		fail(c, err, "login failed")
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.svc.AdminLogin(req.Email, req.Password)
	if err != nil {
		fail(c, err, "login failed")
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.svc.Refresh(req.RefreshToken)
	if err != nil {
		fail(c, err, "refresh failed")
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// Line completes a LINE login with the authorization code from the redirect.
func (h *AuthHandler) Line(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.svc.LoginLine(c.Request.Context(), req.Code)
	if err != nil {
		fail(c, err, "line login failed")
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.ChangePassword(middleware.GetUserID(c), req.OldPassword, req.NewPassword); err != nil {
		fail(c, err, "password change failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ResetRequest always answers success so addresses cannot be probed.
func (h *AuthHandler) ResetRequest(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.RequestPasswordReset(req.Email); err != nil {
		fail(c, err, "reset request failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AuthHandler) ResetConfirm(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.ConfirmPasswordReset(req.Token, req.Password); err != nil {
		fail(c, err, "password reset failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
