package handler

import (
	"net/http"
	"strconv"

	"callcast/internal/middleware"
	"callcast/internal/repository"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

// DiscoveryHandler serves member search, public profiles and reviews.
type DiscoveryHandler struct {
	members *service.MemberService
}

func NewDiscoveryHandler(members *service.MemberService) *DiscoveryHandler {
	return &DiscoveryHandler{members: members}
}

func castSearch(c *gin.Context, presentOnly bool) repository.CastSearch {
	loc, _ := strconv.ParseUint(c.Query("location"), 10, 64)
	class, _ := strconv.ParseUint(c.Query("cast_class"), 10, 64)
	return repository.CastSearch{
		Keyword:     c.Query("keyword"),
		LocationID:  uint(loc),
		CastClassID: uint(class),
		PresentOnly: presentOnly || c.Query("present") == "true",
	}
}

// SearchCasts handles GET /members/casts?keyword=&location=&cast_class=&present=.
func (h *DiscoveryHandler) SearchCasts(c *gin.Context) {
	page := parsePage(c)
	list, total, err := h.members.SearchCasts(castSearch(c, false), page)
	if err != nil {
		fail(c, err, "failed to search casts")
		return
	}
	paged(c, list, total, page)
}

// FreshCasts lists the newest casts.
func (h *DiscoveryHandler) FreshCasts(c *gin.Context) {
	page := parsePage(c)
	q := castSearch(c, false)
	q.Fresh = true
	list, total, err := h.members.SearchCasts(q, page)
	if err != nil {
		fail(c, err, "failed to search casts")
		return
	}
	paged(c, list, total, page)
}

func (h *DiscoveryHandler) SearchGuests(c *gin.Context) {
	page := parsePage(c)
	list, total, err := h.members.SearchGuests(c.Query("keyword"), page)
	if err != nil {
		fail(c, err, "failed to search guests")
		return
	}
	paged(c, list, total, page)
}

// GetProfile shows a member and leaves a footprint for them.
func (h *DiscoveryHandler) GetProfile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	view, err := h.members.ViewProfile(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		fail(c, err, "failed to load profile")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *DiscoveryHandler) Reviews(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	page := parsePage(c)
	list, total, err := h.members.Reviews(id, page)
	if err != nil {
		fail(c, err, "failed to list reviews")
		return
	}
	paged(c, list, total, page)
}

func (h *DiscoveryHandler) CreateReview(c *gin.Context) {
	var req service.ReviewInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rv, err := h.members.Review(middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err, "failed to save review")
		return
	}
	c.JSON(http.StatusCreated, rv)
}
