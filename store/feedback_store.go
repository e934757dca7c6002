package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"guidepost/api/models"
)

// FeedbackStore owns the feedback, client-error and unique-user tables in
// Postgres. All writes are appends; unique_users is the single upserted table.
type FeedbackStore struct {
	db *sql.DB
}

func NewFeedbackStore(db *sql.DB) *FeedbackStore {
	return &FeedbackStore{db: db}
}

func (s *FeedbackStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS feedback_events (
			id                SERIAL PRIMARY KEY,
			ts                TIMESTAMPTZ NOT NULL,
			user_id           TEXT NOT NULL DEFAULT '',
			session_id        TEXT NOT NULL DEFAULT '',
			emoji             TEXT NOT NULL,
			feedback_text     TEXT NOT NULL DEFAULT '',
			email             TEXT NOT NULL DEFAULT '',
			completion_time   TEXT NOT NULL DEFAULT '',
			completed_steps   INT NOT NULL DEFAULT 0,
			last_step         TEXT NOT NULL DEFAULT '',
			dark_mode         BOOLEAN NOT NULL DEFAULT FALSE,
			first_visit       BOOLEAN NOT NULL DEFAULT FALSE,
			error_steps       TEXT NOT NULL DEFAULT '',
			error_resolved    BOOLEAN NOT NULL DEFAULT FALSE,
			screen_resolution TEXT NOT NULL DEFAULT '',
			os                TEXT NOT NULL DEFAULT '',
			browser           TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS error_events (
			id            SERIAL PRIMARY KEY,
			ts            TIMESTAMPTZ NOT NULL,
			user_id       TEXT NOT NULL DEFAULT '',
			session_id    TEXT NOT NULL DEFAULT '',
			page_url      TEXT NOT NULL DEFAULT '',
			step_number   INT NOT NULL DEFAULT 0,
			step_name     TEXT NOT NULL DEFAULT '',
			error_type    TEXT NOT NULL DEFAULT 'unknown',
			error_message TEXT NOT NULL DEFAULT '',
			error_details TEXT NOT NULL DEFAULT '',
			os            TEXT NOT NULL DEFAULT '',
			browser       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS unique_users (
			user_id    TEXT PRIMARY KEY,
			first_seen TIMESTAMPTZ NOT NULL,
			last_seen  TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure feedback schema: %w", err)
		}
	}
	return nil
}

func (s *FeedbackStore) InsertFeedback(ctx context.Context, fb models.FeedbackEvent) error {
	query := `
		INSERT INTO feedback_events (
			ts, user_id, session_id, emoji, feedback_text, email,
			completion_time, completed_steps, last_step, dark_mode, first_visit,
			error_steps, error_resolved, screen_resolution, os, browser
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.db.ExecContext(ctx, query,
		fb.Timestamp, fb.UserID, fb.SessionID, string(fb.Emoji), fb.FeedbackText, fb.Email,
		fb.CompletionTime, fb.CompletedSteps, fb.LastStep, fb.DarkMode, fb.FirstVisit,
		fb.ErrorSteps, fb.ErrorResolved, fb.ScreenResolution, fb.OS, fb.Browser,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback event: %w", err)
	}
	return nil
}

func (s *FeedbackStore) InsertError(ctx context.Context, ev models.ErrorEvent) error {
	query := `
		INSERT INTO error_events (
			ts, user_id, session_id, page_url, step_number, step_name,
			error_type, error_message, error_details, os, browser
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		ev.Timestamp, ev.UserID, ev.SessionID, ev.PageURL, ev.StepNumber, ev.StepName,
		ev.ErrorType, ev.ErrorMessage, ev.ErrorDetails, ev.OS, ev.Browser,
	)
	if err != nil {
		return fmt.Errorf("failed to insert error event: %w", err)
	}
	return nil
}

// CountErrorsSince returns how many client errors arrived after the cutoff.
// The alert check runs it over a trailing one-hour window.
func (s *FeedbackStore) CountErrorsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM error_events WHERE ts > $1`, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent errors: %w", err)
	}
	return count, nil
}

// UpsertUniqueUser records a sighting of the client-generated user id. An
// existing id only gets its last_seen bumped; a brand-new id inserts a row and
// reports isNew so the caller can bump the users counter.
func (s *FeedbackStore) UpsertUniqueUser(ctx context.Context, userID string, seenAt time.Time) (isNew bool, err error) {
	if userID == "" {
		return false, nil
	}
	query := `
		INSERT INTO unique_users (user_id, first_seen, last_seen)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO UPDATE SET last_seen = EXCLUDED.last_seen
		RETURNING first_seen = last_seen
	`
	if err := s.db.QueryRowContext(ctx, query, userID, seenAt).Scan(&isNew); err != nil {
		return false, fmt.Errorf("failed to upsert unique user: %w", err)
	}
	return isNew, nil
}

func (s *FeedbackStore) CountUniqueUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM unique_users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unique users: %w", err)
	}
	return count, nil
}

func (s *FeedbackStore) FeedbackStats(ctx context.Context) (models.FeedbackStats, error) {
	stats := models.FeedbackStats{EmojiCounts: map[models.Emoji]int{}}

	query := `
		SELECT emoji, COUNT(*), COUNT(*) FILTER (WHERE feedback_text <> '')
		FROM feedback_events
		GROUP BY emoji
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return stats, fmt.Errorf("failed to query feedback stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var emoji string
		var count, withText int
		if err := rows.Scan(&emoji, &count, &withText); err != nil {
			return stats, fmt.Errorf("failed to scan feedback stats row: %w", err)
		}
		stats.EmojiCounts[models.Emoji(emoji)] = count
		stats.Total += count
		stats.WithFeedbackText += withText
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("row error during feedback stats query: %w", err)
	}

	// completion_time rows look like "12m"; average only the parsable ones.
	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(NULLIF(regexp_replace(completion_time, '[^0-9]', '', 'g'), '')::INT)
		FROM feedback_events
		WHERE completion_time <> ''
	`).Scan(&avg)
	if err != nil && err != sql.ErrNoRows {
		return stats, fmt.Errorf("failed to average completion time: %w", err)
	}
	if avg.Valid {
		stats.AvgCompletionMins = int(avg.Float64 + 0.5)
	}

	return stats, nil
}

func (s *FeedbackStore) ErrorStats(ctx context.Context) (models.ErrorStats, error) {
	stats := models.ErrorStats{ByStep: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(step_name, ''), 'unknown'),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE ts > NOW() - INTERVAL '24 hours')
		FROM error_events
		GROUP BY 1
	`)
	if err != nil {
		return stats, fmt.Errorf("failed to query error stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step string
		var count, recent int
		if err := rows.Scan(&step, &count, &recent); err != nil {
			return stats, fmt.Errorf("failed to scan error stats row: %w", err)
		}
		stats.ByStep[step] = count
		stats.Total += count
		stats.Last24h += recent
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("row error during error stats query: %w", err)
	}

	return stats, nil
}
