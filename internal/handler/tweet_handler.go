package handler

import (
	"net/http"
	"strconv"

	"callcast/internal/middleware"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

type TweetHandler struct {
	tweets *service.TweetService
}

func NewTweetHandler(tweets *service.TweetService) *TweetHandler {
	return &TweetHandler{tweets: tweets}
}

// List handles GET /tweets?user=&page=; without user it is the timeline.
func (h *TweetHandler) List(c *gin.Context) {
	author, _ := strconv.ParseUint(c.Query("user"), 10, 64)
	page := parsePage(c)
	list, total, err := h.tweets.List(uint(author), middleware.GetUserID(c), page)
	if err != nil {
		fail(c, err, "failed to list tweets")
		return
	}
	paged(c, list, total, page)
}

func (h *TweetHandler) Create(c *gin.Context) {
	var req struct {
		Content string   `json:"content"`
		Images  []string `json:"images"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.tweets.Create(middleware.GetUserID(c), req.Content, req.Images)
	if err != nil {
		fail(c, err, "failed to create tweet")
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TweetHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.tweets.Delete(id, middleware.GetUserID(c)); err != nil {
		fail(c, err, "failed to delete tweet")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ToggleLike likes or unlikes and returns the current likers.
func (h *TweetHandler) ToggleLike(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	liked, likers, err := h.tweets.ToggleLike(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		fail(c, err, "failed to like tweet")
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked, "likers": likers})
}

func (h *TweetHandler) Count(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if v, err := strconv.ParseUint(c.Query("user"), 10, 64); err == nil && v > 0 {
		userID = uint(v)
	}
	n, err := h.tweets.Count(userID)
	if err != nil {
		fail(c, err, "failed to count tweets")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}
