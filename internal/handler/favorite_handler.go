package handler

import (
	"net/http"

	"callcast/internal/middleware"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

type FavoriteHandler struct {
	members *service.MemberService
}

func NewFavoriteHandler(members *service.MemberService) *FavoriteHandler {
	return &FavoriteHandler{members: members}
}

// Follow handles POST /members/:id/follow.
func (h *FavoriteHandler) Follow(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.members.Follow(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		fail(c, err, "failed to follow")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Unfollow handles DELETE /members/:id/follow.
func (h *FavoriteHandler) Unfollow(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.members.Unfollow(middleware.GetUserID(c), id); err != nil {
		fail(c, err, "failed to unfollow")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *FavoriteHandler) Favorites(c *gin.Context) {
	list, err := h.members.Favorites(middleware.GetUserID(c))
	if err != nil {
		fail(c, err, "failed to list favorites")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *FavoriteHandler) Followers(c *gin.Context) {
	list, err := h.members.Followers(middleware.GetUserID(c))
	if err != nil {
		fail(c, err, "failed to list followers")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}
