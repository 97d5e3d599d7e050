// Package user provides the concrete SQL-based implementations of
// the user domain repositories (Visitor, Session, Lead, IdentityLink).
package user

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// SQLVisitorRepository is the SQL-based implementation of the VisitorRepository.
type SQLVisitorRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLVisitorRepository creates a new instance of the repository.
func NewSQLVisitorRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLVisitorRepository {
	return &SQLVisitorRepository{
		db:     db,
		logger: logger,
	}
}

// FindByID retrieves a Visitor by their anonymous id.
func (r *SQLVisitorRepository) FindByID(anonymousID string) (*user.Visitor, error) {
	const query = `
		SELECT anonymous_id, workspace_id, first_seen_at, last_seen_at,
		       last_utm, last_device, last_geo
		FROM visitors
		WHERE anonymous_id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading visitor", "anonymousId", logging.SanitizeID(anonymousID))

	row := r.db.QueryRow(query, anonymousID)
	visitor, err := r.scanVisitor(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load visitor", "error", err.Error(), "anonymousId", logging.SanitizeID(anonymousID))
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return visitor, nil
}

// Upsert inserts a new Visitor or refreshes the rolling summary of an
// existing one. last_seen_at only moves forward.
func (r *SQLVisitorRepository) Upsert(visitor *user.Visitor) error {
	const query = `
		INSERT INTO visitors (anonymous_id, workspace_id, first_seen_at, last_seen_at,
		                      last_utm, last_device, last_geo)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(anonymous_id) DO UPDATE SET
			last_seen_at = MAX(last_seen_at, excluded.last_seen_at),
			last_utm = COALESCE(excluded.last_utm, last_utm),
			last_device = COALESCE(excluded.last_device, last_device),
			last_geo = COALESCE(excluded.last_geo, last_geo)`

	start := time.Now()

	utmJSON, err := marshalNullable(visitor.LastUTM)
	if err != nil {
		return err
	}
	deviceJSON, err := marshalNullable(visitor.LastDevice)
	if err != nil {
		return err
	}
	geoJSON, err := marshalNullable(visitor.LastGeo)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		query,
		visitor.AnonymousID,
		visitor.WorkspaceID,
		visitor.FirstSeenAt,
		visitor.LastSeenAt,
		utmJSON,
		deviceJSON,
		geoJSON,
	)
	if err != nil {
		r.logger.Database().Error("Failed to upsert visitor", "error", err.Error(), "anonymousId", logging.SanitizeID(visitor.AnonymousID))
		return err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return nil
}

func (r *SQLVisitorRepository) scanVisitor(row *sql.Row) (*user.Visitor, error) {
	var visitor user.Visitor
	var utmJSON, deviceJSON, geoJSON sql.NullString

	err := row.Scan(
		&visitor.AnonymousID,
		&visitor.WorkspaceID,
		&visitor.FirstSeenAt,
		&visitor.LastSeenAt,
		&utmJSON,
		&deviceJSON,
		&geoJSON,
	)
	if err != nil {
		return nil, err
	}

	if utmJSON.Valid && utmJSON.String != "" {
		var utm events.UTMParams
		if err := json.Unmarshal([]byte(utmJSON.String), &utm); err == nil {
			visitor.LastUTM = &utm
		}
	}
	if deviceJSON.Valid && deviceJSON.String != "" {
		var device events.DeviceInfo
		if err := json.Unmarshal([]byte(deviceJSON.String), &device); err == nil {
			visitor.LastDevice = &device
		}
	}
	if geoJSON.Valid && geoJSON.String != "" {
		var geo events.GeoInfo
		if err := json.Unmarshal([]byte(geoJSON.String), &geo); err == nil {
			visitor.LastGeo = &geo
		}
	}
	return &visitor, nil
}

// marshalNullable serializes v to a JSON string, or NULL when v is a nil
// pointer, so absent attributes never overwrite stored ones on upsert.
func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
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
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
