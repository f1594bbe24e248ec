package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is kept to the subset of DDL both Postgres and SQLite accept.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS detection_runs (
		id             TEXT PRIMARY KEY,
		owner_id       TEXT NOT NULL,
		status         TEXT NOT NULL,
		original_key   TEXT,
		original_url   TEXT,
		detected_key   TEXT,
		detected_url   TEXT,
		detections     TEXT NOT NULL DEFAULT '[]',
		failure_reason TEXT,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_runs_owner_created
		ON detection_runs (owner_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_runs_status_created
		ON detection_runs (status, created_at)`,
}

func Migrate(db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
