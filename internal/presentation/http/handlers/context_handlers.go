package handlers

import (
	"net/http"

	"github.com/PulseMetrics/pulsetrack-go/internal/application/services"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/funnels"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// ContextHandlers serves the visitor context view: open session, current
// identity link, and funnel runs. Engine-owned rows only; this is not an
// analytics surface.
type ContextHandlers struct {
	identityService *services.IdentityService
	funnelService   *services.FunnelService
	logger          *logging.ChanneledLogger
}

// VisitorContextResponse is the combined visitor view.
type VisitorContextResponse struct {
	AnonymousID string               `json:"anonymousId"`
	Session     *user.Session        `json:"session,omitempty"`
	Profile     *user.Profile        `json:"profile,omitempty"`
	FunnelRuns  []*funnels.UserState `json:"funnelRuns"`
}

// NewContextHandlers creates context handlers with injected dependencies
func NewContextHandlers(identityService *services.IdentityService, funnelService *services.FunnelService, logger *logging.ChanneledLogger) *ContextHandlers {
	return &ContextHandlers{
		identityService: identityService,
		funnelService:   funnelService,
		logger:          logger,
	}
}

// GetContext handles GET /api/v1/context?anonymousId=
func (h *ContextHandlers) GetContext(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing tenant context"})
		return
	}

	anonymousID := c.Query("anonymousId")
	if err := events.ValidateAnonymousID(anonymousID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deps := services.DepsFrom(tenantCtx)
	workspaceID := middleware.GetWorkspaceID(c)

	session, err := deps.Sessions.GetLatestOpenByAnonymousID(anonymousID)
	if err != nil {
		h.logger.Intake().Error("Failed to load open session",
			"tenantId", tenantCtx.TenantID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load visitor context"})
		return
	}

	profile, err := h.identityService.CurrentProfile(deps, workspaceID, anonymousID)
	if err != nil {
		h.logger.Identity().Error("Failed to load profile",
			"tenantId", tenantCtx.TenantID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load visitor context"})
		return
	}

	runs, err := h.funnelService.VisitorRuns(deps, workspaceID, anonymousID)
	if err != nil {
		h.logger.Funnel().Error("Failed to load funnel runs",
			"tenantId", tenantCtx.TenantID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load visitor context"})
		return
	}
	if runs == nil {
		runs = []*funnels.UserState{}
	}

	c.JSON(http.StatusOK, VisitorContextResponse{
		AnonymousID: anonymousID,
		Session:     session,
		Profile:     profile,
		FunnelRuns:  runs,
	})
}
