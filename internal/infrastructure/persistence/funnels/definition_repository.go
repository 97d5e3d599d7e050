// Package funnels provides the SQL-based implementations of the funnel
// snapshot store and the per-visitor run store.
package funnels

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/funnels"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// SQLDefinitionRepository is the SQL-based implementation of the
// DefinitionRepository.
type SQLDefinitionRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLDefinitionRepository creates a new instance of the repository.
func NewSQLDefinitionRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLDefinitionRepository {
	return &SQLDefinitionRepository{
		db:     db,
		logger: logger,
	}
}

const definitionColumns = `funnel_id, workspace_id, version, title, steps, window_seconds, published_at`

// GetLatest retrieves the highest published version of a funnel.
func (r *SQLDefinitionRepository) GetLatest(workspaceID, funnelID string) (*funnels.Definition, error) {
	const query = `
		SELECT ` + definitionColumns + `
		FROM funnel_definitions
		WHERE workspace_id = ? AND funnel_id = ?
		ORDER BY version DESC
		LIMIT 1`

	row := r.db.QueryRow(query, workspaceID, funnelID)
	def, err := r.scanDefinition(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load latest funnel snapshot", "error", err.Error(), "funnelId", funnelID)
		return nil, err
	}
	return def, nil
}

// Get retrieves one exact funnel snapshot version.
func (r *SQLDefinitionRepository) Get(workspaceID, funnelID string, version int) (*funnels.Definition, error) {
	const query = `
		SELECT ` + definitionColumns + `
		FROM funnel_definitions
		WHERE workspace_id = ? AND funnel_id = ? AND version = ?`

	row := r.db.QueryRow(query, workspaceID, funnelID, version)
	def, err := r.scanDefinition(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load funnel snapshot", "error", err.Error(), "funnelId", funnelID, "version", version)
		return nil, err
	}
	return def, nil
}

// ListLatest returns the latest published version of every funnel in a
// workspace.
func (r *SQLDefinitionRepository) ListLatest(workspaceID string) ([]*funnels.Definition, error) {
	const query = `
		SELECT ` + definitionColumns + `
		FROM funnel_definitions d
		WHERE workspace_id = ?
		  AND version = (SELECT MAX(version) FROM funnel_definitions
		                 WHERE funnel_id = d.funnel_id AND workspace_id = d.workspace_id)
		ORDER BY funnel_id`

	return r.list(query, workspaceID)
}

// ListAllLatest returns the latest published version of every funnel across
// all workspaces of the tenant. Used by the background processor to know
// which funnels an event may touch.
func (r *SQLDefinitionRepository) ListAllLatest() ([]*funnels.Definition, error) {
	const query = `
		SELECT ` + definitionColumns + `
		FROM funnel_definitions d
		WHERE version = (SELECT MAX(version) FROM funnel_definitions
		                 WHERE funnel_id = d.funnel_id AND workspace_id = d.workspace_id)
		ORDER BY workspace_id, funnel_id`

	return r.list(query)
}

// Store saves a published funnel snapshot. Re-publishing an existing
// (funnel, version) pair is rejected by the primary key; snapshots are
// immutable.
func (r *SQLDefinitionRepository) Store(def *funnels.Definition) error {
	const query = `
		INSERT INTO funnel_definitions (` + definitionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	stepsJSON, err := json.Marshal(def.Steps)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		query,
		def.FunnelID,
		def.WorkspaceID,
		def.Version,
		def.Title,
		string(stepsJSON),
		def.WindowSeconds,
		def.PublishedAt,
	)
	if err != nil {
		r.logger.Database().Error("Failed to store funnel snapshot", "error", err.Error(), "funnelId", def.FunnelID, "version", def.Version)
		return err
	}

	r.logger.Database().Info("Funnel snapshot stored", "funnelId", def.FunnelID, "version", def.Version)
	return nil
}

func (r *SQLDefinitionRepository) list(query string, args ...any) ([]*funnels.Definition, error) {
	start := time.Now()

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Database().Error("Failed to list funnel snapshots", "error", err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []*funnels.Definition
	for rows.Next() {
		def, err := r.scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
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

func (r *SQLDefinitionRepository) scanDefinition(row rowScanner) (*funnels.Definition, error) {
	var def funnels.Definition
	var stepsJSON string

	err := row.Scan(
		&def.FunnelID,
		&def.WorkspaceID,
		&def.Version,
		&def.Title,
		&stepsJSON,
		&def.WindowSeconds,
		&def.PublishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stepsJSON), &def.Steps); err != nil {
		return nil, err
	}
	return &def, nil
}
