package handler

import (
	"net/http"

	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

// AdminHandler manages member accounts for operators.
type AdminHandler struct {
	members *service.MemberService
}

func NewAdminHandler(members *service.MemberService) *AdminHandler {
	return &AdminHandler{members: members}
}

// ListAdmins handles GET /admin/admins.
func (h *AdminHandler) ListAdmins(c *gin.Context) {
	list, err := h.members.ListAdmins()
	if err != nil {
		fail(c, err, "failed to list admins")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// ListMembers handles GET /admin/members?is_all=true; by default only
// registered members are listed.
func (h *AdminHandler) ListMembers(c *gin.Context) {
	list, err := h.members.ListMembers(c.Query("is_all") == "true")
	if err != nil {
		fail(c, err, "failed to list members")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": len(list)})
}

func (h *AdminHandler) GetMember(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	m, err := h.members.Get(id)
	if err != nil {
		fail(c, err, "failed to load member")
		return
	}
	c.JSON(http.StatusOK, m)
}

// UpdateMember handles PATCH /admin/members/:id.
func (h *AdminHandler) UpdateMember(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.AdminMemberInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.members.AdminUpdate(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err, "failed to update member")
		return
	}
	c.JSON(http.StatusOK, m)
}
