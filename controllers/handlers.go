package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/installations-scheduling-api/logger"
	"github.com/kendall-kelly/installations-scheduling-api/services"
)

// Handlers exposes the order services over HTTP
type Handlers struct {
	Deliveries    *services.DeliveryService
	Installations *services.InstallationService
	Importer      *services.Importer
	Deletion      *services.DeletionService
	Notifications *services.NotificationGrouper
	Scheduler     *services.CapacityScheduler
	Directory     *services.DirectoryCache
	Log           logger.Logger
}

// NewHandlers builds every service from shared dependencies
func NewHandlers(deps services.Dependencies, notify services.NotificationConfig, publisher services.Publisher) *Handlers {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &Handlers{
		Deliveries:    services.NewDeliveryService(deps),
		Installations: services.NewInstallationService(deps),
		Importer:      services.NewImporter(deps),
		Deletion:      services.NewDeletionService(deps),
		Notifications: services.NewNotificationGrouper(deps, notify, publisher),
		Scheduler:     deps.Scheduler,
		Directory:     deps.Directory,
		Log:           log,
	}
}

// RegisterRoutes mounts the order API on rg. deleteGuard runs in front of
// permanent deletion, typically a scope check.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers, deleteGuard ...gin.HandlerFunc) {
	deliveries := rg.Group("/deliveries")
	{
		deliveries.POST("", h.CreateDelivery)
		deliveries.GET("", h.ListDeliveries)
		deliveries.POST("/archive", h.ArchiveDeliveries)
		deliveries.GET("/:id", h.GetDelivery)
		deliveries.GET("/:id/history", h.DeliveryHistory)
		deliveries.PUT("/:id/schedule", h.RescheduleDelivery)
		deliveries.POST("/:id/status", h.TransitionDelivery)
		deliveries.POST("/:id/attachment", h.UploadDeliveryAttachment)
	}

	installations := rg.Group("/installations")
	{
		installations.POST("", h.CreateInstallation)
		installations.GET("", h.ListInstallations)
		installations.POST("/archive", h.ArchiveInstallations)
		installations.GET("/:id", h.GetInstallation)
		installations.GET("/:id/history", h.InstallationHistory)
		installations.POST("/:id/confirm", h.ConfirmInstallation)
		installations.POST("/:id/assign", h.AssignTechnician)
		installations.POST("/:id/complete", h.CompleteInstallation)
		installations.POST("/:id/archive", h.ArchiveInstallation)
		installations.PUT("/:id/district", h.SetInstallationDistrict)
		installations.POST("/:id/images/:slot", h.UploadEvidenceImage)
	}

	imports := rg.Group("/imports")
	{
		imports.GET("/candidates", h.ImportCandidates)
		imports.POST("/:sourceId", h.ImportDelivery)
	}

	rg.POST("/orders/delete", append(deleteGuard, h.DeleteOrders)...)

	notifications := rg.Group("/notifications")
	{
		notifications.POST("/compose", h.ComposeNotifications)
		notifications.POST("/dispatch", h.DispatchNotifications)
	}

	capacity := rg.Group("/capacity")
	{
		capacity.POST("/preview", h.PreviewPlacement)
		capacity.GET("/settings/:domain", h.GetCapacitySetting)
		capacity.PUT("/settings/:domain", h.SaveCapacitySetting)
	}

	rg.POST("/directory/invalidate", h.InvalidateDirectory)
}
