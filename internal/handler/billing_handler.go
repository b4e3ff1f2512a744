package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"callcast/internal/domain"
	"callcast/internal/middleware"
	"callcast/internal/repository"
	"callcast/internal/service"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// BillingHandler serves invoices, point purchases, gifts and rankings.
type BillingHandler struct {
	billing *service.BillingService
}

func NewBillingHandler(billing *service.BillingService) *BillingHandler {
	return &BillingHandler{billing: billing}
}

// invoiceQuery is the JSON document passed in ?query= on invoice listings.
type invoiceQuery struct {
	InvoiceType     string `json:"invoice_type"`
	PointUserID     uint   `json:"point_user_id"`
	PointReceiverID uint   `json:"point_receiver_id"`
	OrderID         uint   `json:"order_id"`
	From            string `json:"from"`
	To              string `json:"to"`
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func invoiceFilter(c *gin.Context) (repository.InvoiceFilter, bool) {
	var q invoiceQuery
	if raw := c.Query("query"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
			return repository.InvoiceFilter{}, false
		}
	}
	from, err := parseDate(q.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
		return repository.InvoiceFilter{}, false
	}
	to, err := parseDate(q.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return repository.InvoiceFilter{}, false
	}
	return repository.InvoiceFilter{
		InvoiceType:     q.InvoiceType,
		PointUserID:     q.PointUserID,
		PointReceiverID: q.PointReceiverID,
		OrderID:         q.OrderID,
		From:            from,
		To:              to,
	}, true
}

// MyInvoices lists every invoice the caller gave or took.
func (h *BillingHandler) MyInvoices(c *gin.Context) {
	page := parsePage(c)
	list, total, err := h.billing.MemberInvoices(middleware.GetUserID(c), page)
	if err != nil {
		fail(c, err, "failed to list invoices")
		return
	}
	paged(c, list, total, page)
}

func (h *BillingHandler) BuyPoints(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	inv, err := h.billing.BuyPoints(c.Request.Context(), middleware.GetUserID(c), req.Amount)
	if err != nil {
		fail(c, err, "purchase failed")
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// SendGift handles POST /chat/rooms/:id/gifts.
func (h *BillingHandler) SendGift(c *gin.Context) {
	roomID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		GiftID     uint `json:"gift_id" binding:"required"`
		ReceiverID uint `json:"receiver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.billing.SendGift(c.Request.Context(), middleware.GetUserID(c), roomID, req.ReceiverID, req.GiftID)
	if err != nil {
		fail(c, err, "failed to send gift")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListInvoices handles GET /admin/invoices?query={...}&page=.
func (h *BillingHandler) ListInvoices(c *gin.Context) {
	f, ok := invoiceFilter(c)
	if !ok {
		return
	}
	page := parsePage(c)
	list, total, err := h.billing.ListInvoices(f, page)
	if err != nil {
		fail(c, err, "failed to list invoices")
		return
	}
	paged(c, list, total, page)
}

func (h *BillingHandler) Totals(c *gin.Context) {
	f, ok := invoiceFilter(c)
	if !ok {
		return
	}
	totals, err := h.billing.Totals(f)
	if err != nil {
		fail(c, err, "failed to load totals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": totals})
}

// Adjust credits (positive amount) or debits a member as an ADMIN invoice.
func (h *BillingHandler) Adjust(c *gin.Context) {
	var req struct {
		MemberID uint   `json:"member_id" binding:"required"`
		Amount   int64  `json:"amount" binding:"required"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	inv, err := h.billing.AdminAdjust(c.Request.Context(), req.MemberID, req.Amount, req.Reason)
	if err != nil {
		fail(c, err, "adjustment failed")
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// Rankings handles GET /rankings?role=0&from=&to=&limit=.
func (h *BillingHandler) Rankings(c *gin.Context) {
	role := domain.RoleCast
	if v, err := strconv.Atoi(c.Query("role")); err == nil {
		role = v
	}
	from, err := parseDate(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
		return
	}
	to, err := parseDate(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	rows, err := h.billing.Rankings(role, from, to, limit)
	if err != nil {
		fail(c, err, "failed to load rankings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}
