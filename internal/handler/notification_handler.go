package handler

import (
	"net/http"

	"callcast/internal/middleware"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

// NotificationHandler lists the caller's notices (footprints, likes, follows).
type NotificationHandler struct {
	chat *service.ChatService
}

func NewNotificationHandler(chat *service.ChatService) *NotificationHandler {
	return &NotificationHandler{chat: chat}
}

func (h *NotificationHandler) List(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.chat.Notices(middleware.GetUserID(c), page, limit)
	if err != nil {
		fail(c, err, "list failed")
		return
	}
	paged(c, list, total, page)
}

// Create lets an operator send a notice to a member.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req struct {
		UserID     uint   `json:"user_id" binding:"required"`
		NoticeType string `json:"notice_type" binding:"required"`
		Content    string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	n, err := h.chat.CreateNotice(c.Request.Context(), req.UserID, middleware.GetUserID(c), req.NoticeType, req.Content)
	if err != nil {
		fail(c, err, "create failed")
		return
	}
	c.JSON(http.StatusCreated, n)
}
