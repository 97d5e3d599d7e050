package user

import (
	"database/sql"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// SQLLeadRepository is the SQL-based implementation of the LeadRepository.
// Only ciphertext and fingerprint columns are touched here; plaintext PII
// never reaches this layer.
type SQLLeadRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLLeadRepository creates a new instance of the repository.
func NewSQLLeadRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLLeadRepository {
	return &SQLLeadRepository{
		db:     db,
		logger: logger,
	}
}

const leadColumns = `id, workspace_id, email_ciphertext, email_fingerprint, email_key_version,
		       phone_ciphertext, phone_fingerprint, phone_key_version, created_at, updated_at`

// FindByID retrieves a Lead by its unique identifier.
func (r *SQLLeadRepository) FindByID(id string) (*user.Lead, error) {
	const query = `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE id = ?`

	row := r.db.QueryRow(query, id)
	lead, err := r.scanLead(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load lead by ID", "error", err.Error(), "id", id)
		return nil, err
	}
	return lead, nil
}

// FindByEmailFingerprint retrieves a Lead by the keyed hash of its email.
func (r *SQLLeadRepository) FindByEmailFingerprint(workspaceID, fingerprint string) (*user.Lead, error) {
	const query = `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE workspace_id = ? AND email_fingerprint = ?`

	return r.findByFingerprint(query, workspaceID, fingerprint)
}

// FindByPhoneFingerprint retrieves a Lead by the keyed hash of its phone.
func (r *SQLLeadRepository) FindByPhoneFingerprint(workspaceID, fingerprint string) (*user.Lead, error) {
	const query = `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE workspace_id = ? AND phone_fingerprint = ?`

	return r.findByFingerprint(query, workspaceID, fingerprint)
}

func (r *SQLLeadRepository) findByFingerprint(query, workspaceID, fingerprint string) (*user.Lead, error) {
	start := time.Now()

	row := r.db.QueryRow(query, workspaceID, fingerprint)
	lead, err := r.scanLead(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load lead by fingerprint", "error", err.Error())
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "system")
	}
	return lead, nil
}

// Store saves a new Lead to the database.
func (r *SQLLeadRepository) Store(lead *user.Lead) error {
	const query = `
		INSERT INTO leads (` + leadColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(
		query,
		lead.ID,
		lead.WorkspaceID,
		nullIfEmpty(lead.EmailCiphertext),
		nullIfEmpty(lead.EmailFingerprint),
		lead.EmailKeyVersion,
		nullIfEmpty(lead.PhoneCiphertext),
		nullIfEmpty(lead.PhoneFingerprint),
		lead.PhoneKeyVersion,
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		r.logger.Database().Error("Failed to store lead", "error", err.Error(), "id", lead.ID)
		return err
	}

	r.logger.Database().Debug("Lead stored", "id", lead.ID)
	return nil
}

// Update rewrites the PII columns of an existing Lead.
func (r *SQLLeadRepository) Update(lead *user.Lead) error {
	const query = `
		UPDATE leads
		SET email_ciphertext = ?, email_fingerprint = ?, email_key_version = ?,
		    phone_ciphertext = ?, phone_fingerprint = ?, phone_key_version = ?,
		    updated_at = ?
		WHERE id = ?`

	_, err := r.db.Exec(
		query,
		nullIfEmpty(lead.EmailCiphertext),
		nullIfEmpty(lead.EmailFingerprint),
		lead.EmailKeyVersion,
		nullIfEmpty(lead.PhoneCiphertext),
		nullIfEmpty(lead.PhoneFingerprint),
		lead.PhoneKeyVersion,
		lead.UpdatedAt,
		lead.ID,
	)
	if err != nil {
		r.logger.Database().Error("Failed to update lead", "error", err.Error(), "id", lead.ID)
		return err
	}
	return nil
}

func (r *SQLLeadRepository) scanLead(row *sql.Row) (*user.Lead, error) {
	var lead user.Lead
	var emailCipher, emailFP, phoneCipher, phoneFP sql.NullString

	err := row.Scan(
		&lead.ID,
		&lead.WorkspaceID,
		&emailCipher,
		&emailFP,
		&lead.EmailKeyVersion,
		&phoneCipher,
		&phoneFP,
		&lead.PhoneKeyVersion,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	lead.EmailCiphertext = emailCipher.String
	lead.EmailFingerprint = emailFP.String
	lead.PhoneCiphertext = phoneCipher.String
	lead.PhoneFingerprint = phoneFP.String
	return &lead, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
