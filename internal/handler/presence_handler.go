package handler

import (
	"net/http"

	"callcast/internal/middleware"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	members *service.MemberService
}

func NewPresenceHandler(members *service.MemberService) *PresenceHandler {
	return &PresenceHandler{members: members}
}

// SetPresence handles PUT /me/present (cast only).
func (h *PresenceHandler) SetPresence(c *gin.Context) {
	var req struct {
		Present bool `json:"present"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.members.SetPresent(c.Request.Context(), middleware.GetUserID(c), req.Present)
	if err != nil {
		fail(c, err, "failed to update presence")
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_present": m.IsPresent, "presented_at": m.PresentedAt})
}

// ListPresent returns casts currently announcing availability.
func (h *PresenceHandler) ListPresent(c *gin.Context) {
	page := parsePage(c)
	list, total, err := h.members.SearchCasts(castSearch(c, true), page)
	if err != nil {
		fail(c, err, "failed to list casts")
		return
	}
	paged(c, list, total, page)
}
