package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// ErrorLogStore records handler and job failures, the server-side counterpart
// of the client error_events table.
type ErrorLogStore struct {
	db *sql.DB
}

func NewErrorLogStore(db *sql.DB) *ErrorLogStore {
	return &ErrorLogStore{db: db}
}

func (s *ErrorLogStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS error_log (
			id      SERIAL PRIMARY KEY,
			ts      TIMESTAMPTZ NOT NULL,
			source  TEXT NOT NULL,
			message TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure error_log schema: %w", err)
	}
	return nil
}

// Record appends a failure row. Logging the failure must never itself fail the
// request, so errors here are logged and dropped.
func (s *ErrorLogStore) Record(ctx context.Context, source, message, details string) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO error_log (ts, source, message, details) VALUES ($1, $2, $3, $4)`,
		time.Now().UTC(), source, message, details,
	)
	if err != nil {
		log.Printf("Failed to record error log entry (%s): %v", source, err)
	}
}
