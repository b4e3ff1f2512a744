package handler

import (
	"net/http"

	"callcast/internal/middleware"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Rooms lists the caller's rooms with unread counts.
func (h *ChatHandler) Rooms(c *gin.Context) {
	rooms, err := h.chat.Rooms(middleware.GetUserID(c))
	if err != nil {
		fail(c, err, "failed to list rooms")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rooms})
}

// GetMessages returns the caller's copies of a room's messages, newest first.
// Operators may open any room.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	roomID, ok := idParam(c, "id")
	if !ok {
		return
	}
	page, limit := parsePagination(c)
	isAdmin := middleware.GetRole(c) < 0
	list, total, err := h.chat.RoomMessages(roomID, middleware.GetUserID(c), isAdmin, page, limit)
	if err != nil {
		fail(c, err, "failed to load messages")
		return
	}
	paged(c, list, total, page)
}

func (h *ChatHandler) Send(c *gin.Context) {
	roomID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content string   `json:"content"`
		Medias  []string `json:"medias"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.chat.SendRoomMessage(c.Request.Context(), service.RoomMessageInput{
		RoomID:   roomID,
		SenderID: middleware.GetUserID(c),
		Content:  req.Content,
		Medias:   req.Medias,
	})
	if err != nil {
		fail(c, err, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	roomID, ok := idParam(c, "id")
	if !ok {
		return
	}
	n, err := h.chat.MarkRead(roomID, middleware.GetUserID(c))
	if err != nil {
		fail(c, err, "failed to mark read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": n})
}

func (h *ChatHandler) Unread(c *gin.Context) {
	n, err := h.chat.UnreadCount(middleware.GetUserID(c))
	if err != nil {
		fail(c, err, "failed to count unread")
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

// SuperMessage posts as the system or admin account into a member's operator room.
func (h *ChatHandler) SuperMessage(c *gin.Context) {
	var req struct {
		RoomType   string   `json:"room_type" binding:"required"`
		ReceiverID uint     `json:"receiver_id" binding:"required"`
		Content    string   `json:"content"`
		Medias     []string `json:"medias"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.chat.SendSuperMessage(c.Request.Context(), req.RoomType, req.ReceiverID, req.Content, req.Medias)
	if err != nil {
		fail(c, err, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Notice posts a flagged notice into a room as the calling operator.
func (h *ChatHandler) Notice(c *gin.Context) {
	roomID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.chat.SendNoticeToRoom(c.Request.Context(), roomID, middleware.GetUserID(c), req.Content)
	if err != nil {
		fail(c, err, "failed to send notice")
		return
	}
	c.JSON(http.StatusCreated, msg)
}
