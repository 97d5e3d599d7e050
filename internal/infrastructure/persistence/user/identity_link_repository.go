package user

import (
	"database/sql"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/persistence/database"
)

// SQLIdentityLinkRepository is the SQL-based implementation of the
// IdentityLinkRepository.
type SQLIdentityLinkRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLIdentityLinkRepository creates a new instance of the repository.
func NewSQLIdentityLinkRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLIdentityLinkRepository {
	return &SQLIdentityLinkRepository{
		db:     db,
		logger: logger,
	}
}

// Find retrieves the link between one visitor and one lead, if any.
func (r *SQLIdentityLinkRepository) Find(workspaceID, anonymousID, leadID string) (*user.IdentityLink, error) {
	const query = `
		SELECT workspace_id, anonymous_id, lead_id, first_linked_at, last_linked_at
		FROM identity_links
		WHERE workspace_id = ? AND anonymous_id = ? AND lead_id = ?`

	row := r.db.QueryRow(query, workspaceID, anonymousID, leadID)
	link, err := r.scanLink(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load identity link", "error", err.Error())
		return nil, err
	}
	return link, nil
}

// FindCurrentByAnonymousID retrieves the most recently refreshed link for a
// visitor, which is the current attribution.
func (r *SQLIdentityLinkRepository) FindCurrentByAnonymousID(workspaceID, anonymousID string) (*user.IdentityLink, error) {
	const query = `
		SELECT workspace_id, anonymous_id, lead_id, first_linked_at, last_linked_at
		FROM identity_links
		WHERE workspace_id = ? AND anonymous_id = ?
		ORDER BY last_linked_at DESC
		LIMIT 1`

	row := r.db.QueryRow(query, workspaceID, anonymousID)
	link, err := r.scanLink(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load current identity link", "error", err.Error(), "anonymousId", logging.SanitizeID(anonymousID))
		return nil, err
	}
	return link, nil
}

// FindByAnonymousID retrieves every link a visitor has accumulated, newest
// first.
func (r *SQLIdentityLinkRepository) FindByAnonymousID(workspaceID, anonymousID string) ([]*user.IdentityLink, error) {
	const query = `
		SELECT workspace_id, anonymous_id, lead_id, first_linked_at, last_linked_at
		FROM identity_links
		WHERE workspace_id = ? AND anonymous_id = ?
		ORDER BY last_linked_at DESC`

	rows, err := r.db.Query(query, workspaceID, anonymousID)
	if err != nil {
		r.logger.Database().Error("Failed to list identity links", "error", err.Error(), "anonymousId", logging.SanitizeID(anonymousID))
		return nil, err
	}
	defer rows.Close()

	var links []*user.IdentityLink
	for rows.Next() {
		var link user.IdentityLink
		if err := rows.Scan(&link.WorkspaceID, &link.AnonymousID, &link.LeadID, &link.FirstLinkedAt, &link.LastLinkedAt); err != nil {
			return nil, err
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

// Upsert inserts a link or refreshes last_linked_at on re-identification.
// first_linked_at is preserved across refreshes.
func (r *SQLIdentityLinkRepository) Upsert(link *user.IdentityLink) error {
	const query = `
		INSERT INTO identity_links (workspace_id, anonymous_id, lead_id, first_linked_at, last_linked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, anonymous_id, lead_id) DO UPDATE SET
			last_linked_at = excluded.last_linked_at`

	_, err := r.db.Exec(
		query,
		link.WorkspaceID,
		link.AnonymousID,
		link.LeadID,
		link.FirstLinkedAt,
		link.LastLinkedAt,
	)
	if err != nil {
		r.logger.Database().Error("Failed to upsert identity link", "error", err.Error(), "anonymousId", logging.SanitizeID(link.AnonymousID))
		return err
	}
	return nil
}

func (r *SQLIdentityLinkRepository) scanLink(row *sql.Row) (*user.IdentityLink, error) {
	var link user.IdentityLink
	err := row.Scan(&link.WorkspaceID, &link.AnonymousID, &link.LeadID, &link.FirstLinkedAt, &link.LastLinkedAt)
	if err != nil {
		return nil, err
	}
	return &link, nil
}
