package user

import (
	"database/sql"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// SQLSessionRepository is the SQL-based implementation of the SessionRepository.
type SQLSessionRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLSessionRepository creates a new instance of the repository.
func NewSQLSessionRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLSessionRepository {
	return &SQLSessionRepository{
		db:     db,
		logger: logger,
	}
}

// FindByID retrieves a Session by its unique identifier.
func (r *SQLSessionRepository) FindByID(id string) (*user.Session, error) {
	const query = `
		SELECT id, anonymous_id, workspace_id, started_at, last_activity_at, ended_at
		FROM sessions
		WHERE id = ?`

	row := r.db.QueryRow(query, id)
	session, err := r.scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load session", "error", err.Error(), "id", id)
		return nil, err
	}
	return session, nil
}

// GetLatestOpenByAnonymousID finds the most recently started session for a
// visitor that has not been explicitly ended. Callers decide whether it is
// still within the idle window.
func (r *SQLSessionRepository) GetLatestOpenByAnonymousID(anonymousID string) (*user.Session, error) {
	const query = `
		SELECT id, anonymous_id, workspace_id, started_at, last_activity_at, ended_at
		FROM sessions
		WHERE anonymous_id = ? AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1`

	start := time.Now()

	row := r.db.QueryRow(query, anonymousID)
	session, err := r.scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load open session", "error", err.Error(), "anonymousId", logging.SanitizeID(anonymousID))
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return session, nil
}

// Create saves a new Session to the database.
func (r *SQLSessionRepository) Create(session *user.Session) error {
	const query = `
		INSERT INTO sessions (id, anonymous_id, workspace_id, started_at, last_activity_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(
		query,
		session.ID,
		session.AnonymousID,
		session.WorkspaceID,
		session.StartedAt,
		session.LastActivityAt,
		session.EndedAt,
	)
	if err != nil {
		r.logger.Database().Error("Failed to create session", "error", err.Error(), "id", session.ID)
		return err
	}

	r.logger.Database().Debug("Session created", "id", session.ID, "anonymousId", logging.SanitizeID(session.AnonymousID))
	return nil
}

// Touch moves a session's last activity forward. Stale touches (earlier
// than the stored value) are no-ops.
func (r *SQLSessionRepository) Touch(id string, at time.Time) error {
	const query = `
		UPDATE sessions
		SET last_activity_at = ?
		WHERE id = ? AND last_activity_at < ?`

	_, err := r.db.Exec(query, at, id, at)
	if err != nil {
		r.logger.Database().Error("Failed to touch session", "error", err.Error(), "id", id)
		return err
	}
	return nil
}

// End marks a session closed. Closing an already-closed session is a no-op.
func (r *SQLSessionRepository) End(id string, at time.Time) error {
	const query = `
		UPDATE sessions
		SET ended_at = ?
		WHERE id = ? AND ended_at IS NULL`

	_, err := r.db.Exec(query, at, id)
	if err != nil {
		r.logger.Database().Error("Failed to end session", "error", err.Error(), "id", id)
		return err
	}
	return nil
}

func (r *SQLSessionRepository) scanSession(row *sql.Row) (*user.Session, error) {
	var session user.Session
	var endedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.AnonymousID,
		&session.WorkspaceID,
		&session.StartedAt,
		&session.LastActivityAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return &session, nil
}
