package handler

import (
	"net/http"
	"strconv"
	"strings"

	"callcast/internal/domain"
	"callcast/internal/middleware"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

// CallHandler exposes the order lifecycle to guests, casts and operators.
type CallHandler struct {
	calls   *service.CallService
	billing *service.BillingService
}

func NewCallHandler(calls *service.CallService, billing *service.BillingService) *CallHandler {
	return &CallHandler{calls: calls, billing: billing}
}

// parseStatuses reads a comma separated status list such as "0,1,2".
func parseStatuses(raw string) []domain.OrderStatus {
	var out []domain.OrderStatus
	for _, p := range strings.Split(raw, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, domain.OrderStatus(n))
		}
	}
	return out
}

// Create handles POST /calls (guest).
func (h *CallHandler) Create(c *gin.Context) {
	var req service.CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.calls.CreateOrder(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err, "failed to create order")
		return
	}
	c.JSON(http.StatusCreated, o)
}

// Update handles PUT /calls/:id while the order is still collecting.
func (h *CallHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.calls.UpdateOrder(c.Request.Context(), middleware.GetUserID(c), id, req)
	if err != nil {
		fail(c, err, "failed to update order")
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *CallHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	o, err := h.calls.GetOrder(id)
	if err != nil {
		fail(c, err, "failed to load order")
		return
	}
	c.JSON(http.StatusOK, o)
}

// ListMine handles GET /calls?status=0,1: the guest's own orders.
func (h *CallHandler) ListMine(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.calls.ListGuestOrders(middleware.GetUserID(c), parseStatuses(c.Query("status")), page, limit)
	if err != nil {
		fail(c, err, "failed to list orders")
		return
	}
	paged(c, list, total, page)
}

// ListOpen returns the orders the calling cast may apply to.
func (h *CallHandler) ListOpen(c *gin.Context) {
	list, err := h.calls.ListOpenForCast(middleware.GetUserID(c))
	if err != nil {
		fail(c, err, "failed to list orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *CallHandler) ListJoined(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.calls.ListJoined(middleware.GetUserID(c), page, limit)
	if err != nil {
		fail(c, err, "failed to list orders")
		return
	}
	paged(c, list, total, page)
}

func (h *CallHandler) Apply(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	j, err := h.calls.Apply(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		fail(c, err, "failed to apply")
		return
	}
	c.JSON(http.StatusCreated, j)
}

func (h *CallHandler) Withdraw(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.calls.Withdraw(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		fail(c, err, "failed to withdraw")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Select handles POST /calls/:id/select with the chosen cast.
func (h *CallHandler) Select(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		CastID uint `json:"cast_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.calls.SelectCast(c.Request.Context(), middleware.GetUserID(c), id, req.CastID)
	if err != nil {
		fail(c, err, "failed to select cast")
		return
	}
	c.JSON(http.StatusOK, o)
}

// Accept confirms an operator proposal.
func (h *CallHandler) Accept(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	o, err := h.calls.AcceptProposal(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		fail(c, err, "failed to accept proposal")
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *CallHandler) Start(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	j, err := h.calls.StartMeeting(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		fail(c, err, "failed to start meeting")
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *CallHandler) End(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	o, err := h.calls.EndMeeting(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		fail(c, err, "failed to end meeting")
		return
	}
	c.JSON(http.StatusOK, o)
}

// Pay retries settlement of a completed-unpaid order.
func (h *CallHandler) Pay(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	st, err := h.billing.Pay(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		fail(c, err, "payment failed")
		return
	}
	c.JSON(http.StatusOK, st)
}

// ListAll is the operator view of every order, optionally by status.
func (h *CallHandler) ListAll(c *gin.Context) {
	page, limit := parsePagination(c)
	var status *domain.OrderStatus
	if v, err := strconv.Atoi(c.Query("status")); err == nil {
		s := domain.OrderStatus(v)
		status = &s
	}
	list, total, err := h.calls.ListAll(status, page, limit)
	if err != nil {
		fail(c, err, "failed to list orders")
		return
	}
	paged(c, list, total, page)
}

func (h *CallHandler) Propose(c *gin.Context) {
	var req service.ProposeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.calls.Propose(c.Request.Context(), req)
	if err != nil {
		fail(c, err, "failed to propose")
		return
	}
	c.JSON(http.StatusCreated, o)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *CallHandler) Cancel(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	o, err := h.calls.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		fail(c, err, "failed to cancel order")
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *CallHandler) MarkError(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	o, err := h.calls.MarkError(c.Request.Context(), id, req.Reason)
	if err != nil {
		fail(c, err, "failed to update order")
		return
	}
	c.JSON(http.StatusOK, o)
}
