package services

import (
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/security"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// SessionService resolves the session each incoming event belongs to.
// A visitor's open session is reused while its idle window has not lapsed;
// otherwise the stale session is closed and a fresh one minted.
type SessionService struct {
	logger *logging.ChanneledLogger
}

// NewSessionService creates a new session service
func NewSessionService(logger *logging.ChanneledLogger) *SessionService {
	return &SessionService{logger: logger}
}

// Resolve returns the session for one event at time `at`, creating or
// rotating as needed. The returned session always has LastActivityAt >= at.
func (s *SessionService) Resolve(deps *Deps, anonymousID, workspaceID string, at time.Time) (*user.Session, error) {
	idleWindow := config.CurrentTunables().SessionIdleWindow

	current, cached := deps.Cache.GetOpenSession(deps.TenantID, anonymousID)
	if !cached {
		var err error
		current, err = deps.Sessions.GetLatestOpenByAnonymousID(anonymousID)
		if err != nil {
			return nil, err
		}
	}

	if current != nil && at.Sub(current.LastActivityAt) <= idleWindow {
		if at.After(current.LastActivityAt) {
			if err := deps.Sessions.Touch(current.ID, at); err != nil {
				return nil, err
			}
			current.LastActivityAt = at
		}
		deps.Cache.SetOpenSession(deps.TenantID, current)
		return current, nil
	}

	if current != nil {
		// Idle window lapsed: the old session ends at its last activity,
		// not at the time of the event that noticed the gap.
		if err := deps.Sessions.End(current.ID, current.LastActivityAt); err != nil {
			return nil, err
		}
		deps.Cache.DropOpenSession(deps.TenantID, anonymousID)
	}

	session := &user.Session{
		ID:             security.GenerateULID(),
		AnonymousID:    anonymousID,
		WorkspaceID:    workspaceID,
		StartedAt:      at,
		LastActivityAt: at,
	}
	if err := deps.Sessions.Create(session); err != nil {
		return nil, err
	}
	deps.Cache.SetOpenSession(deps.TenantID, session)

	if s.logger != nil {
		s.logger.Intake().Debug("Session started",
			"tenantId", deps.TenantID,
			"sessionId", session.ID,
			"anonymousId", logging.SanitizeID(anonymousID))
	}
	return session, nil
}
