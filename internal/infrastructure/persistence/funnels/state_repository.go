package funnels

import (
	"database/sql"
	"strings"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/funnels"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// SQLStateRepository is the SQL-based implementation of the StateRepository.
// Every transition is a conditional update guarded on the expected step and
// active status; the affected row count tells the caller whether it won.
type SQLStateRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLStateRepository creates a new instance of the repository.
func NewSQLStateRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLStateRepository {
	return &SQLStateRepository{
		db:     db,
		logger: logger,
	}
}

const stateColumns = `id, funnel_id, workspace_id, anonymous_id, funnel_version,
		       current_step_index, status, entered_at, last_activity_at,
		       completed_at, exited_at, exit_step_index, conversion_time_seconds, created_at`

// Get retrieves one visitor's run through one funnel version.
func (r *SQLStateRepository) Get(workspaceID, funnelID, anonymousID string, version int) (*funnels.UserState, error) {
	const query = `
		SELECT ` + stateColumns + `
		FROM funnel_user_states
		WHERE workspace_id = ? AND funnel_id = ? AND anonymous_id = ? AND funnel_version = ?`

	start := time.Now()

	row := r.db.QueryRow(query, workspaceID, funnelID, anonymousID, version)
	state, err := r.scanState(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load funnel run", "error", err.Error(), "funnelId", funnelID, "anonymousId", logging.SanitizeID(anonymousID))
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return state, nil
}

// ListByAnonymousID returns every run a visitor has, across funnels and
// versions, newest activity first.
func (r *SQLStateRepository) ListByAnonymousID(workspaceID, anonymousID string) ([]*funnels.UserState, error) {
	const query = `
		SELECT ` + stateColumns + `
		FROM funnel_user_states
		WHERE workspace_id = ? AND anonymous_id = ?
		ORDER BY last_activity_at DESC`

	rows, err := r.db.Query(query, workspaceID, anonymousID)
	if err != nil {
		r.logger.Database().Error("Failed to list funnel runs", "error", err.Error(), "anonymousId", logging.SanitizeID(anonymousID))
		return nil, err
	}
	defer rows.Close()

	var out []*funnels.UserState
	for rows.Next() {
		state, err := r.scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

// Create inserts a new active run. The unique (funnel, visitor, version)
// constraint makes concurrent starts race-safe: the loser reports false
// without error.
func (r *SQLStateRepository) Create(state *funnels.UserState) (bool, error) {
	const query = `
		INSERT INTO funnel_user_states (` + stateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(funnel_id, anonymous_id, funnel_version) DO NOTHING`

	result, err := r.db.Exec(
		query,
		state.ID,
		state.FunnelID,
		state.WorkspaceID,
		state.AnonymousID,
		state.FunnelVersion,
		state.CurrentStepIndex,
		string(state.Status),
		state.EnteredAt,
		state.LastActivityAt,
		state.CompletedAt,
		state.ExitedAt,
		state.ExitStepIndex,
		state.ConversionTimeSeconds,
		state.CreatedAt,
	)
	if err != nil {
		r.logger.Database().Error("Failed to create funnel run", "error", err.Error(), "funnelId", state.FunnelID)
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Advance moves an active run from fromStep to toStep. Returns false when a
// concurrent writer got there first.
func (r *SQLStateRepository) Advance(id string, fromStep, toStep int, at time.Time) (bool, error) {
	const query = `
		UPDATE funnel_user_states
		SET current_step_index = ?, last_activity_at = ?
		WHERE id = ? AND status = 'active' AND current_step_index = ?`

	return r.guardedUpdate(query, toStep, at, id, fromStep)
}

// Complete advances an active run into its final step and terminates it.
func (r *SQLStateRepository) Complete(id string, fromStep, toStep int, at time.Time, conversionSeconds int64) (bool, error) {
	const query = `
		UPDATE funnel_user_states
		SET current_step_index = ?, status = 'completed', completed_at = ?,
		    last_activity_at = ?, conversion_time_seconds = ?
		WHERE id = ? AND status = 'active' AND current_step_index = ?`

	return r.guardedUpdate(query, toStep, at, at, conversionSeconds, id, fromStep)
}

// Expire exits an active run whose window lapsed, recording where the
// visitor stalled.
func (r *SQLStateRepository) Expire(id string, fromStep int, at time.Time) (bool, error) {
	const query = `
		UPDATE funnel_user_states
		SET status = 'exited', exited_at = ?, exit_step_index = current_step_index
		WHERE id = ? AND status = 'active' AND current_step_index = ?`

	return r.guardedUpdate(query, at, id, fromStep)
}

// ExpireStale exits every active run whose last activity predates the
// cutoff. Returns the number of runs exited.
func (r *SQLStateRepository) ExpireStale(cutoff, at time.Time) (int64, error) {
	const query = `
		UPDATE funnel_user_states
		SET status = 'exited', exited_at = ?, exit_step_index = current_step_index
		WHERE status = 'active' AND last_activity_at < ?`

	start := time.Now()

	result, err := r.db.Exec(query, at, cutoff)
	if err != nil {
		r.logger.Database().Error("Failed to expire stale funnel runs", "error", err.Error())
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return affected, nil
}

func (r *SQLStateRepository) guardedUpdate(query string, args ...any) (bool, error) {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		r.logger.Database().Error("Failed funnel run transition", "error", err.Error(), "query", strings.Join(strings.Fields(query), " "))
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *SQLStateRepository) scanState(row rowScanner) (*funnels.UserState, error) {
	var state funnels.UserState
	var status string
	var completedAt, exitedAt sql.NullTime
	var exitStep sql.NullInt64
	var conversionSeconds sql.NullInt64

	err := row.Scan(
		&state.ID,
		&state.FunnelID,
		&state.WorkspaceID,
		&state.AnonymousID,
		&state.FunnelVersion,
		&state.CurrentStepIndex,
		&status,
		&state.EnteredAt,
		&state.LastActivityAt,
		&completedAt,
		&exitedAt,
		&exitStep,
		&conversionSeconds,
		&state.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	state.Status = funnels.Status(status)
	if completedAt.Valid {
		state.CompletedAt = &completedAt.Time
	}
	if exitedAt.Valid {
		state.ExitedAt = &exitedAt.Time
	}
	if exitStep.Valid {
		idx := int(exitStep.Int64)
		state.ExitStepIndex = &idx
	}
	if conversionSeconds.Valid {
		secs := conversionSeconds.Int64
		state.ConversionTimeSeconds = &secs
	}
	return &state, nil
}
