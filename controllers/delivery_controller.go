package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/installations-scheduling-api/services"
	"github.com/kendall-kelly/installations-scheduling-api/utils"
)

// CreateDeliveryRequest represents the request body for creating a delivery order
type CreateDeliveryRequest struct {
	BranchID             string  `json:"branch_id" binding:"required"`
	DistrictID           string  `json:"district_id" binding:"required"`
	Address              string  `json:"address"`
	CustomerName         string  `json:"customer_name" binding:"required"`
	CustomerPhone        string  `json:"customer_phone" binding:"required"`
	TechnicianID         *string `json:"technician_id"`
	DeliveryDate         string  `json:"delivery_date" binding:"required"`
	RequiresInstallation bool    `json:"requires_installation"`
	Notes                string  `json:"notes"`
}

// RescheduleRequest moves an order to a new date and optionally a new district
type RescheduleRequest struct {
	DistrictID string `json:"district_id"`
	Date       string `json:"date" binding:"required"`
}

// TransitionRequest asks for a status change
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// BatchRequest carries the ids of a bulk operation
type BatchRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// CreateDelivery handles POST /api/v1/deliveries
func (h *Handlers) CreateDelivery(c *gin.Context) {
	var req CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	date, err := parseDate(req.DeliveryDate)
	if err != nil {
		respondError(c, err)
		return
	}

	order, placement, err := h.Deliveries.Create(c.Request.Context(), services.CreateDeliveryCommand{
		BranchID:             req.BranchID,
		DistrictID:           req.DistrictID,
		Address:              req.Address,
		CustomerName:         req.CustomerName,
		CustomerPhone:        req.CustomerPhone,
		TechnicianID:         req.TechnicianID,
		DeliveryDate:         date,
		RequiresInstallation: req.RequiresInstallation,
		Notes:                req.Notes,
		Actor:                actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondData(c, http.StatusCreated, gin.H{
		"order":     order,
		"placement": placementView(placement),
	})
}

// ListDeliveries handles GET /api/v1/deliveries
func (h *Handlers) ListDeliveries(c *gin.Context) {
	var filter listQuery
	if err := c.ShouldBindQuery(&filter); err != nil {
		bindFailed(c, err)
		return
	}
	orders, err := h.Deliveries.List(c.Request.Context(), filter.toFilter())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, orders)
}

// GetDelivery handles GET /api/v1/deliveries/:id
func (h *Handlers) GetDelivery(c *gin.Context) {
	order, err := h.Deliveries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// DeliveryHistory handles GET /api/v1/deliveries/:id/history
func (h *Handlers) DeliveryHistory(c *gin.Context) {
	events, err := h.Deliveries.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, events)
}

// RescheduleDelivery handles PUT /api/v1/deliveries/:id/schedule
func (h *Handlers) RescheduleDelivery(c *gin.Context) {
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(c, err)
		return
	}

	order, placement, err := h.Deliveries.Reschedule(c.Request.Context(), services.RescheduleDeliveryCommand{
		ID:         c.Param("id"),
		DistrictID: req.DistrictID,
		Date:       date,
		Actor:      actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"order":     order,
		"placement": placementView(placement),
	})
}

// TransitionDelivery handles POST /api/v1/deliveries/:id/status
func (h *Handlers) TransitionDelivery(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	order, err := h.Deliveries.Transition(c.Request.Context(), services.TransitionCommand{
		ID:    c.Param("id"),
		To:    req.Status,
		Actor: actor(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// ArchiveDeliveries handles POST /api/v1/deliveries/archive
func (h *Handlers) ArchiveDeliveries(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	respondBatch(c, h.Deliveries.ArchiveMany(c.Request.Context(), req.IDs, actor(c)))
}

// UploadDeliveryAttachment handles POST /api/v1/deliveries/:id/attachment
// with a multipart "file" field.
func (h *Handlers) UploadDeliveryAttachment(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		abort(c, http.StatusBadRequest, "FILE_REQUIRED", "A file is required in the 'file' field")
		return
	}
	if err := utils.ValidateAttachmentFile(file); err != nil {
		respondError(c, err)
		return
	}
	data, err := utils.ReadUploadedFile(file)
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.Deliveries.AttachFile(c.Request.Context(), c.Param("id"), file.Filename, data)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// listQuery holds the common listing query parameters
type listQuery struct {
	Status       string `form:"status"`
	RegionID     string `form:"region_id"`
	TechnicianID string `form:"technician_id"`
	Date         string `form:"date"`
	Limit        int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset       int    `form:"offset" binding:"omitempty,min=0"`
}

func (q listQuery) toFilter() services.ListFilter {
	return services.ListFilter{
		Status:       q.Status,
		RegionID:     q.RegionID,
		TechnicianID: q.TechnicianID,
		Date:         q.Date,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}
}
