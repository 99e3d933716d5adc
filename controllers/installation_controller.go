package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/installations-scheduling-api/models"
	"github.com/kendall-kelly/installations-scheduling-api/services"
	"github.com/kendall-kelly/installations-scheduling-api/utils"
)

// CreateInstallationRequest represents the request body for a manual installation order
type CreateInstallationRequest struct {
	DistrictID       string               `json:"district_id" binding:"required"`
	Address          string               `json:"address"`
	CustomerName     string               `json:"customer_name" binding:"required"`
	CustomerPhone    string               `json:"customer_phone"`
	ServiceTypes     []models.ServiceType `json:"service_types"`
	InstallationDate string               `json:"installation_date"`
	Notes            string               `json:"notes"`
}

// ConfirmRequest carries the requested installation date
type ConfirmRequest struct {
	Date string `json:"date" binding:"required"`
}

// AssignRequest names the technician for an installation
type AssignRequest struct {
	TechnicianID string `json:"technician_id" binding:"required"`
}

// DistrictRequest completes or changes an installation's location
type DistrictRequest struct {
	DistrictID string `json:"district_id" binding:"required"`
	Address    string `json:"address"`
}

// installationView adds temporary image URLs to an order
type installationView struct {
	*models.InstallationOrder
	BeforeImageURL string `json:"before_image_url,omitempty"`
	AfterImageURL  string `json:"after_image_url,omitempty"`
}

// CreateInstallation handles POST /api/v1/installations
func (h *Handlers) CreateInstallation(c *gin.Context) {
	var req CreateInstallationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	cmd := services.CreateInstallationCommand{
		DistrictID:    req.DistrictID,
		Address:       req.Address,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		ServiceTypes:  req.ServiceTypes,
		Notes:         req.Notes,
		Actor:         actor(c),
	}
	if req.InstallationDate != "" {
		date, err := parseDate(req.InstallationDate)
		if err != nil {
			respondError(c, err)
			return
		}
		cmd.InstallationDate = &date
	}

	order, placement, err := h.Installations.Create(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, gin.H{
		"order":     order,
		"placement": placementView(placement),
	})
}

// ListInstallations handles GET /api/v1/installations
func (h *Handlers) ListInstallations(c *gin.Context) {
	var filter listQuery
	if err := c.ShouldBindQuery(&filter); err != nil {
		bindFailed(c, err)
		return
	}
	orders, err := h.Installations.List(c.Request.Context(), filter.toFilter())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, orders)
}

// GetInstallation handles GET /api/v1/installations/:id
func (h *Handlers) GetInstallation(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := h.Installations.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	view := installationView{InstallationOrder: order}
	if view.BeforeImageURL, err = h.Installations.ImageURL(ctx, order, models.EvidenceBefore); err != nil {
		h.Log.Warn("failed to sign image URL", "order_id", order.ID, "slot", models.EvidenceBefore, "error", err)
	}
	if view.AfterImageURL, err = h.Installations.ImageURL(ctx, order, models.EvidenceAfter); err != nil {
		h.Log.Warn("failed to sign image URL", "order_id", order.ID, "slot", models.EvidenceAfter, "error", err)
	}
	respondData(c, http.StatusOK, view)
}

// InstallationHistory handles GET /api/v1/installations/:id/history
func (h *Handlers) InstallationHistory(c *gin.Context) {
	events, err := h.Installations.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, events)
}

// ConfirmInstallation handles POST /api/v1/installations/:id/confirm
func (h *Handlers) ConfirmInstallation(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(c, err)
		return
	}

	order, placement, err := h.Installations.Confirm(c.Request.Context(), services.ConfirmCommand{
		ID:    c.Param("id"),
		Date:  date,
		Actor: actor(c),
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

// AssignTechnician handles POST /api/v1/installations/:id/assign
func (h *Handlers) AssignTechnician(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	order, err := h.Installations.AssignTechnician(c.Request.Context(), c.Param("id"), req.TechnicianID, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// CompleteInstallation handles POST /api/v1/installations/:id/complete
func (h *Handlers) CompleteInstallation(c *gin.Context) {
	order, err := h.Installations.Complete(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// ArchiveInstallation handles POST /api/v1/installations/:id/archive
func (h *Handlers) ArchiveInstallation(c *gin.Context) {
	order, err := h.Installations.Archive(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// ArchiveInstallations handles POST /api/v1/installations/archive
func (h *Handlers) ArchiveInstallations(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	respondBatch(c, h.Installations.ArchiveMany(c.Request.Context(), req.IDs, actor(c)))
}

// SetInstallationDistrict handles PUT /api/v1/installations/:id/district
func (h *Handlers) SetInstallationDistrict(c *gin.Context) {
	var req DistrictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	order, err := h.Installations.SetDistrict(c.Request.Context(), c.Param("id"), req.DistrictID, req.Address, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// UploadEvidenceImage handles POST /api/v1/installations/:id/images/:slot
// where slot is "before" or "after".
func (h *Handlers) UploadEvidenceImage(c *gin.Context) {
	slot := models.EvidenceSlot(c.Param("slot"))
	if slot != models.EvidenceBefore && slot != models.EvidenceAfter {
		abort(c, http.StatusBadRequest, string(services.CodeInvalidInput), "Image slot must be 'before' or 'after'")
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		abort(c, http.StatusBadRequest, "FILE_REQUIRED", "An image file is required in the 'image' field")
		return
	}
	if err := utils.ValidateImageFile(file); err != nil {
		respondError(c, err)
		return
	}
	data, err := utils.ReadUploadedFile(file)
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.Installations.AttachImage(c.Request.Context(), c.Param("id"), slot, file.Filename, data)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}
