package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"guidepost/api/models"
	"guidepost/api/store"
)

// rawTotals is the slice of the event store the counter job reads.
type rawTotals interface {
	Totals(ctx context.Context, since time.Time) (store.RawTotals, error)
}

// counterLedger is the snapshot ledger the job reads and appends to.
type counterLedger interface {
	Latest(ctx context.Context, metric models.Metric) (models.CounterSnapshot, error)
	History(ctx context.Context, metric models.Metric, since time.Time) ([]models.CounterSnapshot, error)
	Append(ctx context.Context, snap models.CounterSnapshot) error
}

// CounterJob recomputes the headline counters from the raw stream and
// appends a snapshot per metric whose value moved. Unchanged metrics get no
// new row, so the ledger records transitions rather than a fixed cadence.
type CounterJob struct {
	Events   rawTotals
	Counters counterLedger
}

func NewCounterJob(events rawTotals, counters counterLedger) *CounterJob {
	return &CounterJob{Events: events, Counters: counters}
}

func (j *CounterJob) Run(ctx context.Context) error {
	totals, err := j.Events.Totals(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to read raw totals: %w", err)
	}

	now := time.Now().UTC()
	values := map[models.Metric]int64{
		models.MetricUsers:       int64(totals.Users),
		models.MetricStarts:      int64(totals.GuideStarts),
		models.MetricCompletions: int64(totals.GuideCompleted),
	}

	for _, metric := range models.Metrics {
		newValue := values[metric]

		latest, err := j.Counters.Latest(ctx, metric)
		if err != nil {
			return fmt.Errorf("failed to read latest %s snapshot: %w", metric, err)
		}
		if newValue == latest.Total {
			continue
		}

		history, err := j.Counters.History(ctx, metric, now.Add(-30*24*time.Hour))
		if err != nil {
			return fmt.Errorf("failed to read %s history: %w", metric, err)
		}

		weekly, monthly, growth := computeChanges(history, newValue, now)
		snap := models.CounterSnapshot{
			Timestamp:     now,
			Metric:        metric,
			Total:         newValue,
			DailyChange:   newValue - latest.Total,
			WeeklyChange:  weekly,
			MonthlyChange: monthly,
			GrowthRate:    growth,
		}
		if err := j.Counters.Append(ctx, snap); err != nil {
			return fmt.Errorf("failed to append %s snapshot: %w", metric, err)
		}
		log.Printf("Counter %s moved %d -> %d (weekly %+d, monthly %+d)", metric, latest.Total, newValue, weekly, monthly)
	}

	return nil
}

// computeChanges derives the period deltas for a new total against the
// trailing 30 days of snapshots (oldest first). The weekly and monthly
// changes compare against the earliest snapshot inside each window; growth
// rate is the monthly change as a percentage of the month-start value.
func computeChanges(history []models.CounterSnapshot, total int64, now time.Time) (weekly, monthly int64, growth float64) {
	weekAgo := now.Add(-7 * 24 * time.Hour)

	for _, snap := range history {
		if !snap.Timestamp.Before(weekAgo) {
			weekly = total - snap.Total
			break
		}
	}

	if len(history) > 0 {
		monthStart := history[0].Total
		monthly = total - monthStart
		if monthStart > 0 {
			growth = float64(monthly) / float64(monthStart) * 100
		}
	}

	return weekly, monthly, growth
}
