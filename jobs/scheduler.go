// Package jobs holds the scheduled aggregation work: the hourly counter
// recomputation and the twice-daily GA4 report pull.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of scheduled work.
type Job interface {
	Run(ctx context.Context) error
}

// failureLog mirrors the handler-side failure sink so job errors land in the
// same operator log.
type failureLog interface {
	Record(ctx context.Context, source, message, details string)
}

// Scheduler drives the cron entries. Jobs run with a bounded context and a
// failure never stops the schedule.
type Scheduler struct {
	cron     *cron.Cron
	failures failureLog
}

func NewScheduler(failures failureLog) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		failures: failures,
	}
}

// Add registers a job under a cron spec. The counter job runs hourly on the
// hour ("0 * * * *"); the GA4 pull runs at 09:00 and 18:00 ("0 9,18 * * *").
func (s *Scheduler) Add(spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runOne(name, job)
	})
	return err
}

func (s *Scheduler) runOne(name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Printf("Scheduled job %s failed: %v", name, err)
		if s.failures != nil {
			s.failures.Record(ctx, "job:"+name, err.Error(), "")
		}
		return
	}
	log.Printf("Scheduled job %s finished in %s", name, time.Since(start).Round(time.Millisecond))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
