package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GA4DailyRow is one day of the fixed GA4 report. Duration is stored in
// minutes and bounce rate as a percentage, matching the dashboard's units.
type GA4DailyRow struct {
	Date               time.Time `json:"date"`
	PagePath           string    `json:"pagePath"`
	Sessions           int64     `json:"sessions"`
	Users              int64     `json:"users"`
	PageViews          int64     `json:"pageViews"`
	AvgDurationMinutes float64   `json:"avgDurationMinutes"`
	BounceRatePercent  float64   `json:"bounceRatePercent"`
}

// GA4Store holds the pulled report rows. Each pull replaces the whole table,
// the same way the original job cleared and rewrote the sheet.
type GA4Store struct {
	db *sql.DB
}

func NewGA4Store(db *sql.DB) *GA4Store {
	return &GA4Store{db: db}
}

func (s *GA4Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ga4_daily (
			id                   SERIAL PRIMARY KEY,
			date                 DATE NOT NULL,
			page_path            TEXT NOT NULL DEFAULT '/',
			sessions             BIGINT NOT NULL DEFAULT 0,
			users                BIGINT NOT NULL DEFAULT 0,
			page_views           BIGINT NOT NULL DEFAULT 0,
			avg_duration_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
			bounce_rate_percent  DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_updated         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure ga4_daily schema: %w", err)
	}
	return nil
}

// ListDaily returns the stored report ordered newest first.
func (s *GA4Store) ListDaily(ctx context.Context) ([]GA4DailyRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, page_path, sessions, users, page_views, avg_duration_minutes, bounce_rate_percent
		FROM ga4_daily
		ORDER BY date DESC, page_path ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ga4_daily: %w", err)
	}
	defer rows.Close()

	var out []GA4DailyRow
	for rows.Next() {
		var r GA4DailyRow
		if err := rows.Scan(&r.Date, &r.PagePath, &r.Sessions, &r.Users,
			&r.PageViews, &r.AvgDurationMinutes, &r.BounceRatePercent); err != nil {
			return nil, fmt.Errorf("failed to scan ga4 row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *GA4Store) ReplaceDaily(ctx context.Context, rows []GA4DailyRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ga4 replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ga4_daily`); err != nil {
		return fmt.Errorf("failed to clear ga4_daily: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ga4_daily (date, page_path, sessions, users, page_views, avg_duration_minutes, bounce_rate_percent, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ga4 insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Date, row.PagePath, row.Sessions,
			row.Users, row.PageViews, row.AvgDurationMinutes, row.BounceRatePercent, now); err != nil {
			return fmt.Errorf("failed to insert ga4 row for %s: %w", row.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ga4 replace: %w", err)
	}
	return nil
}
