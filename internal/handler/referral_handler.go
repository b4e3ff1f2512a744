package handler

import (
	"net/http"

	"callcast/internal/middleware"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

type ReferralHandler struct {
	invites *service.ReferralService
	members *service.MemberService
}

func NewReferralHandler(invites *service.ReferralService, members *service.MemberService) *ReferralHandler {
	return &ReferralHandler{invites: invites, members: members}
}

// GetMine returns the caller's inviter code and the members who signed up with it.
func (h *ReferralHandler) GetMine(c *gin.Context) {
	userID := middleware.GetUserID(c)
	m, err := h.members.Get(userID)
	if err != nil {
		fail(c, err, "failed to load referrals")
		return
	}
	list, err := h.invites.Invitees(userID)
	if err != nil {
		fail(c, err, "failed to load referrals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"inviter_code": m.InviterCode, "invitees": list})
}
