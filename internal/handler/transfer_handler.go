package handler

import (
	"net/http"
	"strconv"

	"callcast/internal/middleware"
	"callcast/internal/models"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

// TransferHandler covers cast payouts: bank info, requests and operator review.
type TransferHandler struct {
	transfers *service.TransferService
}

func NewTransferHandler(transfers *service.TransferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

func (h *TransferHandler) GetInfo(c *gin.Context) {
	info, err := h.transfers.GetInfo(middleware.GetUserID(c))
	if err != nil {
		fail(c, err, "failed to load transfer info")
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *TransferHandler) SaveInfo(c *gin.Context) {
	var req models.TransferInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	info, err := h.transfers.SaveInfo(middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err, "failed to save transfer info")
		return
	}
	c.JSON(http.StatusOK, info)
}

// Apply requests a payout; the amount is held from the balance.
func (h *TransferHandler) Apply(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	app, err := h.transfers.Apply(c.Request.Context(), middleware.GetUserID(c), req.Amount)
	if err != nil {
		fail(c, err, "transfer request failed")
		return
	}
	c.JSON(http.StatusCreated, app)
}

func (h *TransferHandler) ListMine(c *gin.Context) {
	h.list(c, middleware.GetUserID(c))
}

// ListAll is the operator queue, optionally ?member=&status=.
func (h *TransferHandler) ListAll(c *gin.Context) {
	member, _ := strconv.ParseUint(c.Query("member"), 10, 64)
	h.list(c, uint(member))
}

func (h *TransferHandler) list(c *gin.Context, memberID uint) {
	var status *int
	if v, err := strconv.Atoi(c.Query("status")); err == nil {
		status = &v
	}
	page := parsePage(c)
	list, total, err := h.transfers.List(memberID, status, page)
	if err != nil {
		fail(c, err, "failed to list transfers")
		return
	}
	paged(c, list, total, page)
}

func (h *TransferHandler) Approve(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	app, err := h.transfers.Approve(c.Request.Context(), id)
	if err != nil {
		fail(c, err, "approve failed")
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *TransferHandler) Reject(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	app, err := h.transfers.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		fail(c, err, "reject failed")
		return
	}
	c.JSON(http.StatusOK, app)
}
