package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"guidepost/api/database"
	"guidepost/api/models"
	"guidepost/api/utils"
)

// EventStore owns the append-only raw event stream in ClickHouse.
type EventStore struct {
	DB *database.ClickHouseClient
}

type CountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"eventType,omitempty"`
	Count     uint64    `json:"count"`
}

// RawTotals is the aggregate slice of the raw stream the stats dump and the
// counter recomputation job both read.
type RawTotals struct {
	Events         uint64 `json:"events"`
	Users          uint64 `json:"users"`
	PageViews      uint64 `json:"pageViews"`
	GuideStarts    uint64 `json:"guideStarts"`
	GuideCompleted uint64 `json:"guideCompleted"`
}

func NewEventStore(chClient *database.ClickHouseClient) *EventStore {
	return &EventStore{DB: chClient}
}

// EnsureSchema creates the raw_events table when it does not exist yet, the
// same way the original backend auto-created missing sheets.
func (s *EventStore) EnsureSchema(ctx context.Context) error {
	return s.DB.Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS raw_events (
			event_id        String,
			event_type      LowCardinality(String),
			user_id         String,
			session_id      String,
			timestamp       DateTime,
			page_url        String,
			page_title      String,
			os              LowCardinality(String),
			browser         LowCardinality(String),
			device          LowCardinality(String),
			referrer        String,
			duration_ms     Int64,
			ip_address      String,
			scroll_percent  Int32,
			scroll_page     String,
			button_text     String,
			button_location String,
			link_url        String,
			link_text       String,
			step_number     Int32,
			step_title      String,
			guide_id        String,
			guide_name      String,
			custom_data     String
		) ENGINE = MergeTree()
		ORDER BY (timestamp, event_type)
	`)
}

// InsertEvent appends one row with the event-specific trailing columns filled
// in from the decoded custom payload.
func (s *EventStore) InsertEvent(ctx context.Context, event models.Event) error {
	d := event.Details()

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO raw_events (
			event_id, event_type, user_id, session_id, timestamp, page_url, page_title,
			os, browser, device, referrer, duration_ms, ip_address,
			scroll_percent, scroll_page, button_text, button_location,
			link_url, link_text, step_number, step_title, guide_id, guide_name, custom_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	err = batch.Append(
		event.EventID,
		event.EventType,
		event.UserID,
		event.SessionID,
		event.Timestamp,
		event.PageURL,
		event.PageTitle,
		event.OS,
		event.Browser,
		event.Device,
		event.Referrer,
		event.DurationMs,
		event.IPAddress,
		int32(d.ScrollPercent),
		d.ScrollPage,
		d.ButtonText,
		d.ButtonLocation,
		d.LinkURL,
		d.LinkText,
		int32(d.StepNumber),
		d.StepTitle,
		d.GuideID,
		d.GuideName,
		string(event.CustomData),
	)
	if err != nil {
		return fmt.Errorf("failed to append event to batch (EventID: %s): %w", event.EventID, err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Totals computes the aggregate counts the stats dump and the hourly
// recomputation read from the raw stream.
func (s *EventStore) Totals(ctx context.Context, since time.Time) (RawTotals, error) {
	var t RawTotals
	if since.IsZero() {
		// DateTime columns start at the unix epoch.
		since = time.Unix(0, 0)
	}
	query := `
		SELECT
			count() AS events,
			uniq(user_id) AS users,
			countIf(event_type = 'page_view') AS page_views,
			countIf(event_type = 'guide_started') AS guide_starts,
			countIf(event_type = 'guide_completed') AS guide_completed
		FROM raw_events
		WHERE timestamp >= ?
	`
	row := s.DB.Conn.QueryRow(ctx, query, since)
	if err := row.Scan(&t.Events, &t.Users, &t.PageViews, &t.GuideStarts, &t.GuideCompleted); err != nil {
		return t, fmt.Errorf("failed to query raw totals: %w", err)
	}
	return t, nil
}

func (s *EventStore) CountByType(ctx context.Context, eventType string, since time.Time) (uint64, error) {
	var count uint64
	query := `SELECT count() FROM raw_events WHERE event_type = ? AND timestamp >= ?`
	if err := s.DB.Conn.QueryRow(ctx, query, eventType, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s events: %w", eventType, err)
	}
	return count, nil
}

func (s *EventStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]CountByTime, error) {
	var args []interface{}
	args = append(args, start, end)

	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	selectCols := fmt.Sprintf("toStartOf%s(timestamp) as time_bucket, count() as total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM raw_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []CountByTime
	for rows.Next() {
		var (
			timeBucket  time.Time
			count       uint64
			eventTypeDB string
			current     CountByTime
		)

		if isFilteringByType {
			if err := rows.Scan(&timeBucket, &count, &eventTypeDB); err != nil {
				log.Printf("Error scanning row for event counts over time (with type filter): %v", err)
				continue
			}
			current.EventType = &eventTypeDB
		} else {
			if err := rows.Scan(&timeBucket, &count); err != nil {
				log.Printf("Error scanning row for event counts over time (no type filter): %v", err)
				continue
			}
		}

		current.Time = timeBucket
		current.Count = count
		results = append(results, current)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}

	return results, nil
}

func (s *EventStore) GetUniqueUsersOverTime(ctx context.Context, interval string, start, end time.Time) ([]CountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(user_id) AS unique_users
		FROM raw_events
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique users over time: %w", err)
	}
	defer rows.Close()

	var results []CountByTime
	for rows.Next() {
		var timeBucket time.Time
		var uniqueUsers uint64
		if err := rows.Scan(&timeBucket, &uniqueUsers); err != nil {
			log.Printf("Error scanning row for unique users: %v", err)
			continue
		}
		results = append(results, CountByTime{Time: timeBucket, Count: uniqueUsers})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique users: %w", err)
	}

	return results, nil
}

func (s *EventStore) GetAverageEventDuration(ctx context.Context, eventTypeFilter string, start, end time.Time) (float64, error) {
	query := `SELECT avg(duration_ms) FROM raw_events WHERE duration_ms > 0 AND timestamp >= ? AND timestamp <= ?`
	args := []interface{}{start, end}

	if eventTypeFilter != "" {
		query += ` AND event_type = ?`
		args = append(args, eventTypeFilter)
	}

	var avgDuration float64
	err := s.DB.Conn.QueryRow(ctx, query, args...).Scan(&avgDuration)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return 0.0, nil
		}
		return 0.0, fmt.Errorf("failed to query average event duration: %w", err)
	}

	return avgDuration, nil
}

func (s *EventStore) GetTopPages(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPageResult, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT page_url, count() as view_count
		FROM raw_events
		WHERE event_type = 'page_view' AND timestamp >= ? AND timestamp <= ?
		GROUP BY page_url
		ORDER BY view_count DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top pages: %w", err)
	}
	defer rows.Close()

	var results []models.TopPageResult
	for rows.Next() {
		var pageURL string
		var count uint64
		if err := rows.Scan(&pageURL, &count); err != nil {
			log.Printf("Error scanning row for top pages: %v", err)
			continue
		}
		results = append(results, models.TopPageResult{PageURL: pageURL, Count: count})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top pages: %w", err)
	}

	return results, nil
}
