// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/application/services"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/presentation/http/middleware"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// EventHandlers contains the event intake HTTP handlers
type EventHandlers struct {
	intakeService *services.IntakeService
	logger        *logging.ChanneledLogger
}

// BatchRequest is the body of a batch intake call.
type BatchRequest struct {
	Events []*services.EventInput `json:"events"`
}

// BatchResponse reports per-item outcomes plus aggregate counts.
type BatchResponse struct {
	Results  []*services.IngestResult `json:"results"`
	Accepted int                      `json:"accepted"`
	Rejected int                      `json:"rejected"`
	Total    int                      `json:"total"`
}

// NewEventHandlers creates event handlers with injected dependencies
func NewEventHandlers(intakeService *services.IntakeService, logger *logging.ChanneledLogger) *EventHandlers {
	return &EventHandlers{intakeService: intakeService, logger: logger}
}

// PostEvent handles POST /api/v1/events
func (h *EventHandlers) PostEvent(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing tenant context"})
		return
	}

	var input services.EventInput
	if !bindCapped(c, &input) {
		return
	}

	deps := services.DepsFrom(tenantCtx)
	result := h.intakeService.IngestOne(deps, middleware.GetWorkspaceID(c), &input, c.Request.Header, time.Now().UTC())
	if !result.Accepted {
		c.JSON(statusForValidation(result.Error), result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PostEventBatch handles POST /api/v1/events/batch
func (h *EventHandlers) PostEventBatch(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing tenant context"})
		return
	}

	var req BatchRequest
	if !bindCapped(c, &req) {
		return
	}

	deps := services.DepsFrom(tenantCtx)
	results, batchErr := h.intakeService.IngestBatch(deps, middleware.GetWorkspaceID(c), req.Events, c.Request.Header, time.Now().UTC())
	if batchErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"accepted": false, "error": batchErr})
		return
	}

	resp := BatchResponse{Results: results, Total: len(results)}
	for _, r := range results {
		if r.Accepted {
			resp.Accepted++
		} else {
			resp.Rejected++
		}
	}
	c.JSON(http.StatusOK, resp)
}

// bindCapped decodes a JSON body enforcing the payload ceiling. Oversized
// bodies are reported as payload_too_large rather than a bare parse error.
func bindCapped(c *gin.Context, out any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxPayloadBytes)

	if err := c.ShouldBindJSON(out); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"accepted": false,
				"error": &events.ValidationError{
					Code:    events.CodePayloadTooLarge,
					Message: "request body exceeds payload limit",
				},
			})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return false
	}
	return true
}

func statusForValidation(verr *events.ValidationError) int {
	if verr == nil {
		return http.StatusInternalServerError
	}
	switch verr.Code {
	case events.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case events.CodeProcessingFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
