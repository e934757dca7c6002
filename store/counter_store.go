package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"guidepost/api/models"
)

// CounterStore is the append-only counter ledger. Every change appends a
// snapshot row; the current value of a metric is its latest row. Nothing is
// mutated in place, so the whole history stays queryable.
type CounterStore struct {
	db *sql.DB
}

func NewCounterStore(db *sql.DB) *CounterStore {
	return &CounterStore{db: db}
}

func (s *CounterStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS counter_snapshots (
			id             SERIAL PRIMARY KEY,
			ts             TIMESTAMPTZ NOT NULL,
			metric         TEXT NOT NULL,
			total          BIGINT NOT NULL,
			daily_change   BIGINT NOT NULL DEFAULT 0,
			weekly_change  BIGINT NOT NULL DEFAULT 0,
			monthly_change BIGINT NOT NULL DEFAULT 0,
			growth_rate    DOUBLE PRECISION NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure counter schema: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot for a metric, or a zero-valued snapshot
// when the metric has no history yet.
func (s *CounterStore) Latest(ctx context.Context, metric models.Metric) (models.CounterSnapshot, error) {
	snap := models.CounterSnapshot{Metric: metric}
	err := s.db.QueryRowContext(ctx, `
		SELECT ts, total, daily_change, weekly_change, monthly_change, growth_rate
		FROM counter_snapshots
		WHERE metric = $1
		ORDER BY id DESC
		LIMIT 1
	`, string(metric)).Scan(
		&snap.Timestamp, &snap.Total, &snap.DailyChange,
		&snap.WeeklyChange, &snap.MonthlyChange, &snap.GrowthRate,
	)
	if err == sql.ErrNoRows {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("failed to read latest %s snapshot: %w", metric, err)
	}
	return snap, nil
}

// Increment appends a snapshot one above the latest total and returns the new
// value. Concurrent increments may interleave; the hourly recomputation from
// the raw log corrects any drift.
func (s *CounterStore) Increment(ctx context.Context, metric models.Metric) (int64, error) {
	latest, err := s.Latest(ctx, metric)
	if err != nil {
		return 0, err
	}
	next := models.CounterSnapshot{
		Timestamp:   time.Now().UTC(),
		Metric:      metric,
		Total:       latest.Total + 1,
		DailyChange: 1,
	}
	if err := s.Append(ctx, next); err != nil {
		return 0, err
	}
	return next.Total, nil
}

func (s *CounterStore) Append(ctx context.Context, snap models.CounterSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO counter_snapshots (ts, metric, total, daily_change, weekly_change, monthly_change, growth_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, snap.Timestamp, string(snap.Metric), snap.Total, snap.DailyChange,
		snap.WeeklyChange, snap.MonthlyChange, snap.GrowthRate)
	if err != nil {
		return fmt.Errorf("failed to append %s snapshot: %w", snap.Metric, err)
	}
	return nil
}

// History returns a metric's snapshots at or after the cutoff, oldest first.
func (s *CounterStore) History(ctx context.Context, metric models.Metric, since time.Time) ([]models.CounterSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, total, daily_change, weekly_change, monthly_change, growth_rate
		FROM counter_snapshots
		WHERE metric = $1 AND ts >= $2
		ORDER BY id ASC
	`, string(metric), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s history: %w", metric, err)
	}
	defer rows.Close()

	var history []models.CounterSnapshot
	for rows.Next() {
		snap := models.CounterSnapshot{Metric: metric}
		if err := rows.Scan(&snap.Timestamp, &snap.Total, &snap.DailyChange,
			&snap.WeeklyChange, &snap.MonthlyChange, &snap.GrowthRate); err != nil {
			return nil, fmt.Errorf("failed to scan %s snapshot: %w", metric, err)
		}
		history = append(history, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during %s history query: %w", metric, err)
	}
	return history, nil
}
