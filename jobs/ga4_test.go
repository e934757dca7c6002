package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestConvertReportRows(t *testing.T) {
	raw := `{
		"rows": [
			{
				"dimensionValues": [{"value": "20250810"}],
				"metricValues": [
					{"value": "120"},
					{"value": "95"},
					{"value": "340"},
					{"value": "90"},
					{"value": "0.425"}
				]
			},
			{
				"dimensionValues": [{"value": "20250811"}],
				"metricValues": [
					{"value": "80"},
					{"value": "61"},
					{"value": "150"},
					{"value": "45"},
					{"value": "0.5"}
				]
			}
		]
	}`

	var report ga4ReportResponse
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	rows, err := convertReportRows(report)
	if err != nil {
		t.Fatalf("convertReportRows error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	first := rows[0]
	if !first.Date.Equal(time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date: %v", first.Date)
	}
	if first.Sessions != 120 || first.Users != 95 || first.PageViews != 340 {
		t.Errorf("unexpected counts: %d %d %d", first.Sessions, first.Users, first.PageViews)
	}
	if first.AvgDurationMinutes != 1.5 {
		t.Errorf("expected 90s as 1.5 minutes, got %g", first.AvgDurationMinutes)
	}
	if first.BounceRatePercent != 42.5 {
		t.Errorf("expected bounce 42.5%%, got %g", first.BounceRatePercent)
	}
	if first.PagePath != "/" {
		t.Errorf("expected default page path, got %q", first.PagePath)
	}
}

func TestConvertReportRowsSkipsShortRows(t *testing.T) {
	report := ga4ReportResponse{}
	report.Rows = append(report.Rows, struct {
		DimensionValues []struct {
			Value string `json:"value"`
		} `json:"dimensionValues"`
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	}{})

	rows, err := convertReportRows(report)
	if err != nil {
		t.Fatalf("convertReportRows error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected malformed row skipped, got %d rows", len(rows))
	}
}

func TestGA4JobSkipsWhenUnconfigured(t *testing.T) {
	job := NewGA4Job("", "", nil)
	if job.Configured() {
		t.Fatalf("expected unconfigured")
	}
	if err := job.Run(context.Background()); err != nil {
		t.Errorf("unconfigured run must be a no-op, got %v", err)
	}
}
