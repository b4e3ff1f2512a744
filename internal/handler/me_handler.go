package handler

import (
	"net/http"

	"callcast/internal/middleware"
	"callcast/internal/models"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

// MeHandler serves the caller's own account.
type MeHandler struct {
	members *service.MemberService
}

func NewMeHandler(members *service.MemberService) *MeHandler {
	return &MeHandler{members: members}
}

func (h *MeHandler) GetProfile(c *gin.Context) {
	m, err := h.members.Get(middleware.GetUserID(c))
	if err != nil {
		fail(c, err, "failed to load profile")
		return
	}
	c.JSON(http.StatusOK, m)
}

// InitialRegister completes the profile right after sign-up.
func (h *MeHandler) InitialRegister(c *gin.Context) {
	var req service.InitialRegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.members.InitialRegister(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err, "registration failed")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *MeHandler) UpdateProfile(c *gin.Context) {
	var req service.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.members.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *MeHandler) ReplaceAvatars(c *gin.Context) {
	var req struct {
		URIs []string `json:"uris"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.members.ReplaceAvatars(middleware.GetUserID(c), req.URIs)
	if err != nil {
		fail(c, err, "failed to save avatars")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *MeHandler) ReorderAvatars(c *gin.Context) {
	var req struct {
		IDs []uint `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.members.ReorderAvatars(middleware.GetUserID(c), req.IDs)
	if err != nil {
		fail(c, err, "failed to reorder avatars")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *MeHandler) DeleteAvatar(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.members.DeleteAvatar(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		fail(c, err, "failed to delete avatar")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *MeHandler) GetSetting(c *gin.Context) {
	st, err := h.members.GetSetting(middleware.GetUserID(c))
	if err != nil {
		fail(c, err, "failed to load settings")
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *MeHandler) UpdateSetting(c *gin.Context) {
	var req models.Setting
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, err := h.members.UpdateSetting(middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err, "failed to update settings")
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *MeHandler) RegisterFCMToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.members.SetFCMToken(middleware.GetUserID(c), req.Token); err != nil {
		fail(c, err, "failed to save token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RegisterCard stores the tokenized card; an empty token removes it.
func (h *MeHandler) RegisterCard(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.members.RegisterCard(c.Request.Context(), middleware.GetUserID(c), req.Token)
	if err != nil {
		fail(c, err, "failed to save card")
		return
	}
	c.JSON(http.StatusOK, m)
}
