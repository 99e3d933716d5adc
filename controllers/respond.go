package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/installations-scheduling-api/middleware"
	"github.com/kendall-kelly/installations-scheduling-api/models"
	"github.com/kendall-kelly/installations-scheduling-api/services"
	"github.com/kendall-kelly/installations-scheduling-api/utils"
	"gorm.io/datatypes"
)

var statusByCode = map[services.ErrorCode]int{
	services.CodeInvalidInput:          http.StatusBadRequest,
	services.CodeNotFound:              http.StatusNotFound,
	services.CodeAlreadyImported:       http.StatusConflict,
	services.CodeConflict:              http.StatusConflict,
	services.CodeRegionClosed:          http.StatusUnprocessableEntity,
	services.CodeNoCapacityFound:       http.StatusUnprocessableEntity,
	services.CodeInvalidTransition:     http.StatusUnprocessableEntity,
	services.CodeTechnicianUnavailable: http.StatusUnprocessableEntity,
	services.CodeMixedTechnician:       http.StatusUnprocessableEntity,
	services.CodeNoPhoneOnFile:         http.StatusUnprocessableEntity,
	services.CodeTimeout:               http.StatusGatewayTimeout,
	services.CodeStoreError:            http.StatusInternalServerError,
}

// respondError writes the error envelope for a service error
func respondError(c *gin.Context, err error) {
	var fe *utils.FileUploadError
	if errors.As(err, &fe) {
		abort(c, http.StatusBadRequest, fe.Code, fe.Message)
		return
	}

	code := services.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	var oe *services.OrderError
	if errors.As(err, &oe) && oe.Message != "" {
		message = oe.Message
	}
	if status == http.StatusInternalServerError {
		// Store errors carry driver detail that stays in the logs
		message = "Internal server error"
	}

	body := gin.H{"code": string(code), "message": message}
	if oe != nil && oe.ID != "" {
		body["id"] = oe.ID
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"success": false, "error": body})
}

// abort writes an error envelope with an explicit status and code
func abort(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// bindFailed reports a request body that did not bind
func bindFailed(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    string(services.CodeInvalidInput),
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// batchResult renders a PartialFailure keyed by id
func batchResult(report *services.PartialFailure) gin.H {
	failed := gin.H{}
	for _, id := range report.FailedIDs() {
		err := report.Failed[id]
		message := err.Error()
		var oe *services.OrderError
		if errors.As(err, &oe) && oe.Message != "" {
			message = oe.Message
		}
		failed[id] = gin.H{"code": string(services.CodeOf(err)), "message": message}
	}
	return gin.H{
		"succeeded": report.Succeeded,
		"failed":    failed,
	}
}

// respondBatch always answers 200; success is false when any id failed
func respondBatch(c *gin.Context, report *services.PartialFailure) {
	c.JSON(http.StatusOK, gin.H{
		"success": report.OK(),
		"data":    batchResult(report),
	})
}

// actor is the operator recorded on transitions, empty when unknown
func actor(c *gin.Context) string {
	id, err := middleware.GetOperatorID(c)
	if err != nil {
		return ""
	}
	return id
}

// parseDate reads an optional YYYY-MM-DD request field
func parseDate(s string) (datatypes.Date, error) {
	if s == "" {
		return datatypes.Date{}, nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return datatypes.Date{}, &services.OrderError{Code: services.CodeInvalidInput, Message: err.Error()}
	}
	return d, nil
}

// placementView is the JSON shape of a scheduling decision
func placementView(p services.Placement) gin.H {
	if !isZero(p.Date) {
		return gin.H{"date": models.FormatDate(p.Date), "was_adjusted": p.WasAdjusted}
	}
	return gin.H{"date": nil, "was_adjusted": p.WasAdjusted}
}

func isZero(d datatypes.Date) bool {
	return time.Time(d).IsZero()
}
