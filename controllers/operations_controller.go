package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/installations-scheduling-api/models"
	"github.com/kendall-kelly/installations-scheduling-api/services"
)

// DeleteRequest selects archived orders of one kind for permanent deletion
type DeleteRequest struct {
	Kind string   `json:"kind" binding:"required,oneof=delivery installation"`
	IDs  []string `json:"ids" binding:"required,min=1"`
}

// PreviewRequest asks where an order would land without reserving capacity
type PreviewRequest struct {
	Domain     string `json:"domain" binding:"required,oneof=delivery installation"`
	DistrictID string `json:"district_id" binding:"required"`
	Date       string `json:"date" binding:"required"`
	OrderID    string `json:"order_id"`
}

// CapacitySettingRequest replaces a domain's capacity record
type CapacitySettingRequest struct {
	MaxOrdersPerRegionPerDay *int `json:"max_orders_per_region_per_day" binding:"required,min=0"`
	AllowZeroLimit           bool `json:"allow_zero_limit"`
}

// ImportCandidates handles GET /api/v1/imports/candidates
func (h *Handlers) ImportCandidates(c *gin.Context) {
	orders, err := h.Importer.Candidates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, orders)
}

// ImportDelivery handles POST /api/v1/imports/:sourceId
func (h *Handlers) ImportDelivery(c *gin.Context) {
	draft, err := h.Importer.Import(c.Request.Context(), c.Param("sourceId"), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, draft)
}

// DeleteOrders handles POST /api/v1/orders/delete
func (h *Handlers) DeleteOrders(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	report, err := h.Deletion.DeletePermanently(c.Request.Context(), models.OrderKind(req.Kind), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	respondBatch(c, report)
}

// ComposeNotifications handles POST /api/v1/notifications/compose.
// The selection must belong to one technician.
func (h *Handlers) ComposeNotifications(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	messages, err := h.Notifications.GroupAndCompose(c.Request.Context(), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, messages)
}

// DispatchNotifications handles POST /api/v1/notifications/dispatch
func (h *Handlers) DispatchNotifications(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	report, err := h.Notifications.Dispatch(c.Request.Context(), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	respondBatch(c, report)
}

// PreviewPlacement handles POST /api/v1/capacity/preview
func (h *Handlers) PreviewPlacement(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	loc, err := h.Directory.ResolveDistrict(ctx, req.DistrictID)
	if err != nil {
		respondError(c, err)
		return
	}

	placement, err := h.Scheduler.Preview(ctx, services.PlacementRequest{
		Domain:        models.OrderKind(req.Domain),
		RegionID:      loc.RegionID,
		RequestedDate: date,
		OrderID:       req.OrderID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, placementView(placement))
}

// GetCapacitySetting handles GET /api/v1/capacity/settings/:domain
func (h *Handlers) GetCapacitySetting(c *gin.Context) {
	domain := models.OrderKind(c.Param("domain"))
	setting, err := h.Scheduler.Setting(c.Request.Context(), domain)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"setting": setting,
		"policy":  setting.Policy(),
	})
}

// SaveCapacitySetting handles PUT /api/v1/capacity/settings/:domain
func (h *Handlers) SaveCapacitySetting(c *gin.Context) {
	var req CapacitySettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	setting, err := h.Scheduler.SaveSetting(c.Request.Context(), models.RegionCapacitySetting{
		Domain:                   models.OrderKind(c.Param("domain")),
		MaxOrdersPerRegionPerDay: *req.MaxOrdersPerRegionPerDay,
		AllowZeroLimit:           req.AllowZeroLimit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"setting": setting,
		"policy":  setting.Policy(),
	})
}

// InvalidateDirectory handles POST /api/v1/directory/invalidate after
// reference data has been edited elsewhere.
func (h *Handlers) InvalidateDirectory(c *gin.Context) {
	h.Directory.Invalidate()
	h.Log.Info("directory cache invalidated", "operator_id", actor(c))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
