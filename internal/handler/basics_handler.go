package handler

import (
	"errors"
	"net/http"
	"strconv"

	"callcast/internal/middleware"
	"callcast/internal/models"
	"callcast/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// basicsModels builds an empty row for each editable reference table.
var basicsModels = map[string]func() interface{}{
	"locations":    func() interface{} { return &models.Location{} },
	"cast-classes": func() interface{} { return &models.CastClass{} },
	"guest-levels": func() interface{} { return &models.GuestLevel{} },
	"choices":      func() interface{} { return &models.Choice{} },
	"cost-plans":   func() interface{} { return &models.CostPlan{} },
	"gifts":        func() interface{} { return &models.Gift{} },
	"banners":      func() interface{} { return &models.Banner{} },
}

// BasicsHandler serves the reference tables. Reads are open to members,
// hidden rows only to operators; writes are operator only.
type BasicsHandler struct {
	repo     *repository.BasicsRepository
	settings *repository.SettingRepository
}

func NewBasicsHandler(repo *repository.BasicsRepository, settings *repository.SettingRepository) *BasicsHandler {
	return &BasicsHandler{repo: repo, settings: settings}
}

func shownOnly(c *gin.Context) bool {
	return middleware.GetRole(c) >= 0
}

func optionalID(c *gin.Context, key string) *uint {
	v, err := strconv.ParseUint(c.Query(key), 10, 64)
	if err != nil || v == 0 {
		return nil
	}
	id := uint(v)
	return &id
}

// Locations handles GET /basics/locations?parent=.
func (h *BasicsHandler) Locations(c *gin.Context) {
	list, err := h.repo.Locations(optionalID(c, "parent"), shownOnly(c))
	if err != nil {
		fail(c, err, "failed to list locations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *BasicsHandler) CastClasses(c *gin.Context) {
	list, err := h.repo.CastClasses()
	if err != nil {
		fail(c, err, "failed to list cast classes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *BasicsHandler) GuestLevels(c *gin.Context) {
	list, err := h.repo.GuestLevels()
	if err != nil {
		fail(c, err, "failed to list guest levels")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *BasicsHandler) Choices(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 500 {
		limit = 100
	}
	list, total, err := h.repo.Choices(c.Query("category"), page, limit)
	if err != nil {
		fail(c, err, "failed to list choices")
		return
	}
	paged(c, list, total, page)
}

// CostPlans handles GET /basics/cost-plans?location=.
func (h *BasicsHandler) CostPlans(c *gin.Context) {
	list, err := h.repo.CostPlans(optionalID(c, "location"), shownOnly(c))
	if err != nil {
		fail(c, err, "failed to list cost plans")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *BasicsHandler) Gifts(c *gin.Context) {
	list, err := h.repo.Gifts(shownOnly(c))
	if err != nil {
		fail(c, err, "failed to list gifts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *BasicsHandler) Banners(c *gin.Context) {
	list, err := h.repo.Banners(c.Query("category"))
	if err != nil {
		fail(c, err, "failed to list banners")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *BasicsHandler) Receipt(c *gin.Context) {
	r, err := h.repo.ReceiptSetting()
	if err != nil {
		fail(c, err, "failed to load receipt setting")
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *BasicsHandler) model(c *gin.Context) (func() interface{}, bool) {
	build, ok := basicsModels[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown table"})
	}
	return build, ok
}

// Create handles POST /admin/basics/:kind.
func (h *BasicsHandler) Create(c *gin.Context) {
	build, ok := h.model(c)
	if !ok {
		return
	}
	row := build()
	if err := c.ShouldBindJSON(row); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.repo.Save(row); err != nil {
		fail(c, err, "failed to save")
		return
	}
	c.JSON(http.StatusCreated, row)
}

// Update loads the row and applies the posted fields over it.
func (h *BasicsHandler) Update(c *gin.Context) {
	build, ok := h.model(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	row := build()
	if err := h.repo.First(row, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		fail(c, err, "failed to load")
		return
	}
	if err := c.ShouldBindJSON(row); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.repo.Save(row); err != nil {
		fail(c, err, "failed to save")
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *BasicsHandler) Delete(c *gin.Context) {
	build, ok := h.model(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	found, err := h.repo.Delete(build(), id)
	if err != nil {
		fail(c, err, "failed to delete")
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ChangeLocationOrder handles PUT /admin/basics/locations/order.
func (h *BasicsHandler) ChangeLocationOrder(c *gin.Context) {
	var req struct {
		Items []repository.OrderItem `json:"items" binding:"required,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.repo.ChangeLocationOrder(req.Items); err != nil {
		fail(c, err, "failed to reorder")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *BasicsHandler) UpdateReceipt(c *gin.Context) {
	r, err := h.repo.ReceiptSetting()
	if err != nil {
		fail(c, err, "failed to load receipt setting")
		return
	}
	if err := c.ShouldBindJSON(r); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.repo.Save(r); err != nil {
		fail(c, err, "failed to save receipt setting")
		return
	}
	c.JSON(http.StatusOK, r)
}

// GetSettings handles GET /admin/settings.
func (h *BasicsHandler) GetSettings(c *gin.Context) {
	list, err := h.settings.GetAll()
	if err != nil {
		fail(c, err, "failed to load settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// UpdateSettings handles PUT /admin/settings.
func (h *BasicsHandler) UpdateSettings(c *gin.Context) {
	var req struct {
		Settings map[string]string `json:"settings" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	for k, v := range req.Settings {
		if err := h.settings.Set(k, v); err != nil {
			fail(c, err, "failed to update setting: "+k)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
