// Package analytics provides the SQL-based implementation of the event store.
package analytics

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// SQLEventRepository is the SQL-based implementation of the EventRepository.
type SQLEventRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLEventRepository creates a new instance of the repository.
func NewSQLEventRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLEventRepository {
	return &SQLEventRepository{
		db:     db,
		logger: logger,
	}
}

const eventColumns = `id, external_id, workspace_id, name, anonymous_id, lead_id,
		       session_id, occurred_at, received_at, page, utm, device, geo,
		       props, schema_version`

// Store inserts a new event. When the event carries an external id that was
// already stored, the partial unique index rejects the insert silently and
// Store reports duplicate=true. Rows are never updated or deleted.
func (r *SQLEventRepository) Store(event *events.Event) (bool, error) {
	const query = `
		INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) WHERE external_id IS NOT NULL DO NOTHING`

	start := time.Now()

	pageJSON, err := marshalJSON(event.Page)
	if err != nil {
		return false, err
	}
	utmJSON, err := marshalJSON(event.UTM)
	if err != nil {
		return false, err
	}
	deviceJSON, err := marshalJSON(event.Device)
	if err != nil {
		return false, err
	}
	geoJSON, err := marshalJSON(event.Geo)
	if err != nil {
		return false, err
	}
	propsJSON, err := marshalJSON(event.Props)
	if err != nil {
		return false, err
	}

	var externalID any
	if event.ExternalID != "" {
		externalID = event.ExternalID
	}

	result, err := r.db.Exec(
		query,
		event.ID,
		externalID,
		event.WorkspaceID,
		event.Name,
		event.AnonymousID,
		event.LeadID,
		nullEmpty(event.SessionID),
		event.OccurredAt,
		event.ReceivedAt,
		pageJSON,
		utmJSON,
		deviceJSON,
		geoJSON,
		propsJSON,
		event.SchemaVersion,
	)
	if err != nil {
		r.logger.Database().Error("Failed to store event", "error", err.Error(), "name", event.Name)
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return affected == 0, nil
}

// FindByID retrieves a single event.
func (r *SQLEventRepository) FindByID(id string) (*events.Event, error) {
	const query = `
		SELECT ` + eventColumns + `
		FROM events
		WHERE id = ?`

	row := r.db.QueryRow(query, id)
	event, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load event", "error", err.Error(), "id", id)
		return nil, err
	}
	return event, nil
}

// FindByExternalID retrieves the event stored under a client-supplied id.
// The partial unique index keeps at most one row per external id.
func (r *SQLEventRepository) FindByExternalID(externalID string) (*events.Event, error) {
	const query = `
		SELECT ` + eventColumns + `
		FROM events
		WHERE external_id = ?`

	row := r.db.QueryRow(query, externalID)
	event, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load event", "error", err.Error(), "externalId", externalID)
		return nil, err
	}
	return event, nil
}

// ListByAnonymousID returns a visitor's events since a cutoff, oldest first.
func (r *SQLEventRepository) ListByAnonymousID(anonymousID string, since time.Time, limit int) ([]*events.Event, error) {
	const query = `
		SELECT ` + eventColumns + `
		FROM events
		WHERE anonymous_id = ? AND occurred_at >= ?
		ORDER BY occurred_at ASC
		LIMIT ?`

	start := time.Now()

	rows, err := r.db.Query(query, anonymousID, since, limit)
	if err != nil {
		r.logger.Database().Error("Failed to list events", "error", err.Error(), "anonymousId", logging.SanitizeID(anonymousID))
		return nil, err
	}
	defer rows.Close()

	var out []*events.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*events.Event, error) {
	var event events.Event
	var externalID, sessionID, pageJSON, utmJSON, deviceJSON, geoJSON, propsJSON sql.NullString
	var leadID sql.NullString

	err := row.Scan(
		&event.ID,
		&externalID,
		&event.WorkspaceID,
		&event.Name,
		&event.AnonymousID,
		&leadID,
		&sessionID,
		&event.OccurredAt,
		&event.ReceivedAt,
		&pageJSON,
		&utmJSON,
		&deviceJSON,
		&geoJSON,
		&propsJSON,
		&event.SchemaVersion,
	)
	if err != nil {
		return nil, err
	}

	event.ExternalID = externalID.String
	event.SessionID = sessionID.String
	if leadID.Valid {
		event.LeadID = &leadID.String
	}
	if pageJSON.Valid && pageJSON.String != "" {
		var page events.PageContext
		if err := json.Unmarshal([]byte(pageJSON.String), &page); err == nil {
			event.Page = &page
		}
	}
	if utmJSON.Valid && utmJSON.String != "" {
		var utm events.UTMParams
		if err := json.Unmarshal([]byte(utmJSON.String), &utm); err == nil {
			event.UTM = &utm
		}
	}
	if deviceJSON.Valid && deviceJSON.String != "" {
		var device events.DeviceInfo
		if err := json.Unmarshal([]byte(deviceJSON.String), &device); err == nil {
			event.Device = &device
		}
	}
	if geoJSON.Valid && geoJSON.String != "" {
		var geo events.GeoInfo
		if err := json.Unmarshal([]byte(geoJSON.String), &geo); err == nil {
			event.Geo = &geo
		}
	}
	if propsJSON.Valid && propsJSON.String != "" {
		var props events.Properties
		if err := json.Unmarshal([]byte(propsJSON.String), &props); err == nil {
			event.Props = props
		}
	}
	return &event, nil
}

func marshalJSON(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *events.PageContext:
		if t == nil {
			return nil, nil
		}
	case *events.UTMParams:
		if t == nil {
			return nil, nil
		}
	case *events.DeviceInfo:
		if t == nil {
			return nil, nil
		}
	case *events.GeoInfo:
		if t == nil {
			return nil, nil
		}
	case events.Properties:
		if t == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
