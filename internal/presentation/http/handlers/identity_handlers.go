package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/application/services"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// IdentityHandlers contains the identity resolution HTTP handlers
type IdentityHandlers struct {
	identityService *services.IdentityService
	logger          *logging.ChanneledLogger
}

// IdentifyBody is the body of an identify call.
type IdentifyBody struct {
	AnonymousID string `json:"anonymousId"`
	Traits      struct {
		Email string `json:"email,omitempty"`
		Phone string `json:"phone,omitempty"`
	} `json:"traits"`
}

// IdentifyResponse acknowledges an identify call.
type IdentifyResponse struct {
	Accepted bool   `json:"accepted"`
	LeadID   string `json:"leadId,omitempty"`
	Created  bool   `json:"created,omitempty"`
	Token    string `json:"token,omitempty"`
}

// NewIdentityHandlers creates identity handlers with injected dependencies
func NewIdentityHandlers(identityService *services.IdentityService, logger *logging.ChanneledLogger) *IdentityHandlers {
	return &IdentityHandlers{identityService: identityService, logger: logger}
}

// PostIdentify handles POST /api/v1/identify
func (h *IdentityHandlers) PostIdentify(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing tenant context"})
		return
	}

	var body IdentifyBody
	if !bindCapped(c, &body) {
		return
	}

	deps := services.DepsFrom(tenantCtx)
	req := &services.IdentifyRequest{
		WorkspaceID: middleware.GetWorkspaceID(c),
		AnonymousID: body.AnonymousID,
		Email:       body.Traits.Email,
		Phone:       body.Traits.Phone,
	}

	result, err := h.identityService.Identify(deps, req, time.Now().UTC())
	if err != nil {
		var verr *events.ValidationError
		if errors.As(err, &verr) {
			status := statusForValidation(verr)
			if verr.Code == events.CodeProcessingFailed {
				// Identify is the one place processing_failed means the
				// submitted traits could not be protected, not a datastore
				// fault, so the caller gets a 4xx.
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"accepted": false, "error": verr})
			return
		}
		h.logger.Identity().Error("Identify failed",
			"tenantId", tenantCtx.TenantID,
			"error", err.Error(),
			"requestId", middleware.GetRequestID(c))
		c.JSON(http.StatusInternalServerError, gin.H{"accepted": false, "error": "identify failed"})
		return
	}

	c.JSON(http.StatusOK, IdentifyResponse{
		Accepted: true,
		LeadID:   result.Profile.LeadID,
		Created:  result.Created,
		Token:    result.Token,
	})
}
