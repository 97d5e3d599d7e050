// Package database provides tenant schema instantiation
package database

import (
	"database/sql"
	"fmt"
)

// TableCreator handles the creation of the database schema for a new tenant.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tenant's database tables and indexes.
func (tc *TableCreator) CreateSchema(db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

// Schema notes: events is append-only; the partial unique index on
// external_id is the dedup guard. funnel_user_states carries the unique
// (funnel, visitor, version) constraint that makes run creation race-safe,
// and conditional updates guard every transition.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		external_id TEXT,
		workspace_id TEXT NOT NULL,
		name TEXT NOT NULL,
		anonymous_id TEXT NOT NULL,
		lead_id TEXT,
		session_id TEXT,
		occurred_at TIMESTAMP NOT NULL,
		received_at TIMESTAMP NOT NULL,
		page TEXT,
		utm TEXT,
		device TEXT,
		geo TEXT,
		props TEXT,
		schema_version INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS visitors (
		anonymous_id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		first_seen_at TIMESTAMP NOT NULL,
		last_seen_at TIMESTAMP NOT NULL,
		last_utm TEXT,
		last_device TEXT,
		last_geo TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		anonymous_id TEXT NOT NULL,
		workspace_id TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		last_activity_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		email_ciphertext TEXT,
		email_fingerprint TEXT,
		email_key_version INTEGER NOT NULL DEFAULT 0,
		phone_ciphertext TEXT,
		phone_fingerprint TEXT,
		phone_key_version INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS identity_links (
		workspace_id TEXT NOT NULL,
		anonymous_id TEXT NOT NULL,
		lead_id TEXT NOT NULL,
		first_linked_at TIMESTAMP NOT NULL,
		last_linked_at TIMESTAMP NOT NULL,
		PRIMARY KEY (workspace_id, anonymous_id, lead_id)
	)`,
	`CREATE TABLE IF NOT EXISTS funnel_definitions (
		funnel_id TEXT NOT NULL,
		workspace_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		steps TEXT NOT NULL,
		window_seconds INTEGER NOT NULL DEFAULT 0,
		published_at TIMESTAMP NOT NULL,
		PRIMARY KEY (funnel_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS funnel_user_states (
		id TEXT PRIMARY KEY,
		funnel_id TEXT NOT NULL,
		workspace_id TEXT NOT NULL,
		anonymous_id TEXT NOT NULL,
		funnel_version INTEGER NOT NULL,
		current_step_index INTEGER NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('active','completed','exited')),
		entered_at TIMESTAMP NOT NULL,
		last_activity_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		exited_at TIMESTAMP,
		exit_step_index INTEGER,
		conversion_time_seconds INTEGER,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (funnel_id, anonymous_id, funnel_version)
	)`,
}

var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_events_external_id ON events(external_id) WHERE external_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_events_anonymous_id ON events(anonymous_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_anonymous_id ON sessions(anonymous_id, started_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_email_fp ON leads(workspace_id, email_fingerprint)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_phone_fp ON leads(workspace_id, phone_fingerprint)`,
	`CREATE INDEX IF NOT EXISTS idx_identity_links_anon ON identity_links(workspace_id, anonymous_id, last_linked_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_funnel_states_anon ON funnel_user_states(workspace_id, anonymous_id)`,
	`CREATE INDEX IF NOT EXISTS idx_funnel_states_stale ON funnel_user_states(status, last_activity_at)`,
}
