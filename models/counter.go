package models

import "time"

// Metric names the three self-hosted counters.
type Metric string

const (
	MetricUsers       Metric = "users"
	MetricStarts      Metric = "starts"
	MetricCompletions Metric = "completions"
)

// Metrics lists every counter the hourly recomputation job maintains.
var Metrics = []Metric{MetricUsers, MetricStarts, MetricCompletions}

func (m Metric) Valid() bool {
	switch m {
	case MetricUsers, MetricStarts, MetricCompletions:
		return true
	}
	return false
}

// CounterSnapshot is one append-only ledger row: a metric's total at a point
// in time plus the deltas derived from earlier snapshots. History is never
// mutated in place.
type CounterSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	Metric        Metric    `json:"metric"`
	Total         int64     `json:"total"`
	DailyChange   int64     `json:"dailyChange"`
	WeeklyChange  int64     `json:"weeklyChange"`
	MonthlyChange int64     `json:"monthlyChange"`
	GrowthRate    float64   `json:"growthRate"`
}
