package services

import (
	"net/http"
	"sync"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/application/workers"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/enrichment"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/metrics"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/security"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// EventInput is one submitted event before validation and enrichment.
type EventInput struct {
	EventID     string              `json:"eventId,omitempty"`
	Name        string              `json:"name"`
	AnonymousID string              `json:"anonymousId"`
	OccurredAt  time.Time           `json:"occurredAt,omitempty"`
	Page        *events.PageContext `json:"page,omitempty"`
	UTM         *events.UTMParams   `json:"utm,omitempty"`
	Props       events.Properties   `json:"props,omitempty"`
}

// IngestResult is the per-event intake outcome. Duplicates are accepted
// (idempotent success), rejected events carry the validation error.
type IngestResult struct {
	EventID   string                  `json:"id,omitempty"`
	Accepted  bool                    `json:"accepted"`
	Duplicate bool                    `json:"duplicate,omitempty"`
	Error     *events.ValidationError `json:"error,omitempty"`
}

// IntakeService orchestrates the write path: validate, dedup, sessionize,
// persist, then hand the event to the background dispatcher for funnel
// evaluation. The HTTP response never waits on funnel processing.
type IntakeService struct {
	sessions   *SessionService
	dispatcher *workers.Dispatcher
	logger     *logging.ChanneledLogger
}

// NewIntakeService creates a new intake service
func NewIntakeService(sessions *SessionService, dispatcher *workers.Dispatcher, logger *logging.ChanneledLogger) *IntakeService {
	return &IntakeService{
		sessions:   sessions,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// IngestOne processes a single event end to end.
func (s *IntakeService) IngestOne(deps *Deps, workspaceID string, input *EventInput, headers http.Header, now time.Time) *IngestResult {
	start := time.Now()
	defer func() {
		metrics.IntakeDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	tun := config.CurrentTunables()

	occurredAt := input.OccurredAt
	if err := events.ValidateName(input.Name); err != nil {
		return s.reject(deps.TenantID, err)
	}
	if err := events.ValidateAnonymousID(input.AnonymousID); err != nil {
		return s.reject(deps.TenantID, err)
	}
	if err := events.ValidateTimestamp(occurredAt, now, tun.TimestampSkew); err != nil {
		return s.reject(deps.TenantID, err)
	}
	if occurredAt.IsZero() {
		occurredAt = now
	}

	// Fast dedup pre-check; the unique index below remains the authority.
	// A duplicate acknowledges with the id of the originally stored event.
	if input.EventID != "" {
		if storedID, seen := deps.Cache.SeenExternalID(deps.TenantID, input.EventID); seen {
			metrics.EventsDuplicate.WithLabelValues(deps.TenantID).Inc()
			return &IngestResult{EventID: storedID, Accepted: true, Duplicate: true}
		}
	}

	device, geo := enrichment.Resolve(headers)

	session, err := s.sessions.Resolve(deps, input.AnonymousID, workspaceID, occurredAt)
	if err != nil {
		return s.fail(deps.TenantID, "session resolution", err)
	}

	event := &events.Event{
		ID:            security.GenerateULID(),
		ExternalID:    input.EventID,
		WorkspaceID:   workspaceID,
		Name:          input.Name,
		AnonymousID:   input.AnonymousID,
		SessionID:     session.ID,
		OccurredAt:    occurredAt,
		ReceivedAt:    now,
		Page:          input.Page,
		UTM:           input.UTM,
		Device:        device,
		Geo:           geo,
		Props:         input.Props,
		SchemaVersion: events.PropSchemaVersion,
	}

	if link, found := deps.Cache.GetCurrentLink(deps.TenantID, workspaceID, input.AnonymousID); found {
		event.LeadID = &link.LeadID
	} else if link, err := deps.Links.FindCurrentByAnonymousID(workspaceID, input.AnonymousID); err == nil && link != nil {
		deps.Cache.SetCurrentLink(deps.TenantID, link)
		event.LeadID = &link.LeadID
	}

	if err := s.upsertVisitor(deps, event); err != nil {
		return s.fail(deps.TenantID, "visitor upsert", err)
	}

	duplicate, err := deps.Events.Store(event)
	if err != nil {
		return s.fail(deps.TenantID, "event store", err)
	}
	if duplicate {
		metrics.EventsDuplicate.WithLabelValues(deps.TenantID).Inc()
		return s.ackDuplicate(deps, input.EventID)
	}
	if input.EventID != "" {
		deps.Cache.MarkExternalID(deps.TenantID, input.EventID, event.ID)
	}

	metrics.EventsIngested.WithLabelValues(deps.TenantID).Inc()
	s.dispatcher.Submit(workers.Job{TenantID: deps.TenantID, Event: event})

	return &IngestResult{EventID: event.ID, Accepted: true}
}

// IngestBatch processes up to MaxBatchSize events. Events are grouped by
// visitor; each visitor's events run sequentially in submission order while
// distinct visitors run in parallel under a bounded worker count. Results
// are positional: results[i] reports input[i].
func (s *IntakeService) IngestBatch(deps *Deps, workspaceID string, inputs []*EventInput, headers http.Header, now time.Time) ([]*IngestResult, *events.ValidationError) {
	if len(inputs) > config.MaxBatchSize {
		metrics.EventsRejected.WithLabelValues(deps.TenantID, events.CodeBatchTooLarge).Inc()
		return nil, &events.ValidationError{
			Code:    events.CodeBatchTooLarge,
			Message: "batch exceeds the maximum item count",
		}
	}

	results := make([]*IngestResult, len(inputs))

	type indexed struct {
		index int
		input *EventInput
	}
	groups := make(map[string][]indexed)
	order := make([]string, 0)
	for i, input := range inputs {
		key := input.AnonymousID
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], indexed{index: i, input: input})
	}

	sem := make(chan struct{}, config.BatchConcurrency)
	var wg sync.WaitGroup
	for _, key := range order {
		group := groups[key]
		wg.Add(1)
		sem <- struct{}{}
		go func(group []indexed) {
			defer wg.Done()
			defer func() { <-sem }()
			for _, item := range group {
				results[item.index] = s.IngestOne(deps, workspaceID, item.input, headers, now)
			}
		}(group)
	}
	wg.Wait()

	return results, nil
}

// upsertVisitor refreshes the visitor's rolling summary from this event.
func (s *IntakeService) upsertVisitor(deps *Deps, event *events.Event) error {
	visitor := &user.Visitor{
		AnonymousID: event.AnonymousID,
		WorkspaceID: event.WorkspaceID,
		FirstSeenAt: event.OccurredAt,
		LastSeenAt:  event.OccurredAt,
		LastUTM:     event.UTM,
		LastDevice:  event.Device,
		LastGeo:     event.Geo,
	}
	return deps.Visitors.Upsert(visitor)
}

// ackDuplicate answers a duplicate submission with the id of the event that
// was stored first, looked up by the shared external id and re-cached for the
// dedup window.
func (s *IntakeService) ackDuplicate(deps *Deps, externalID string) *IngestResult {
	result := &IngestResult{Accepted: true, Duplicate: true}
	original, err := deps.Events.FindByExternalID(externalID)
	if err != nil {
		if s.logger != nil {
			s.logger.Intake().Warn("Duplicate lookup failed", "tenantId", deps.TenantID, "externalId", externalID, "error", err.Error())
		}
		return result
	}
	if original != nil {
		result.EventID = original.ID
		deps.Cache.MarkExternalID(deps.TenantID, externalID, original.ID)
	}
	return result
}

func (s *IntakeService) reject(tenantID string, err error) *IngestResult {
	verr, ok := err.(*events.ValidationError)
	if !ok {
		verr = &events.ValidationError{Code: events.CodeProcessingFailed, Message: err.Error()}
	}
	metrics.EventsRejected.WithLabelValues(tenantID, verr.Code).Inc()
	return &IngestResult{Accepted: false, Error: verr}
}

func (s *IntakeService) fail(tenantID, stage string, err error) *IngestResult {
	if s.logger != nil {
		s.logger.Intake().Error("Intake stage failed", "tenantId", tenantID, "stage", stage, "error", err.Error())
	}
	metrics.EventsRejected.WithLabelValues(tenantID, events.CodeProcessingFailed).Inc()
	return &IngestResult{
		Accepted: false,
		Error:    &events.ValidationError{Code: events.CodeProcessingFailed, Message: stage + " failed"},
	}
}
