package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"guidepost/api/store"

	"golang.org/x/oauth2/google"
)

const analyticsScope = "https://www.googleapis.com/auth/analytics.readonly"

// GA4Job pulls the fixed daily report from the Google Analytics Data API and
// replaces the stored copy. The report shape is fixed: one row per day over
// the trailing 30 days with session, user, page-view, duration and bounce
// metrics.
type GA4Job struct {
	PropertyID      string
	CredentialsFile string
	Store           *store.GA4Store

	// endpoint is overridable for tests.
	endpoint string
	client   *http.Client
}

func NewGA4Job(propertyID, credentialsFile string, ga4Store *store.GA4Store) *GA4Job {
	return &GA4Job{
		PropertyID:      propertyID,
		CredentialsFile: credentialsFile,
		Store:           ga4Store,
		endpoint:        "https://analyticsdata.googleapis.com/v1beta",
	}
}

// Configured reports whether the job has enough configuration to run. An
// unconfigured job is skipped with a warning instead of failing the schedule.
func (j *GA4Job) Configured() bool {
	return j.PropertyID != "" && j.CredentialsFile != ""
}

func (j *GA4Job) Run(ctx context.Context) error {
	if !j.Configured() {
		log.Println("GA4 pull skipped: property id or credentials not configured")
		return nil
	}

	client, err := j.httpClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to build GA4 client: %w", err)
	}

	rows, err := j.runReport(ctx, client)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		log.Println("GA4 report returned no rows")
		return nil
	}

	if err := j.Store.ReplaceDaily(ctx, rows); err != nil {
		return fmt.Errorf("failed to store GA4 report: %w", err)
	}
	log.Printf("GA4 report stored: %d rows", len(rows))
	return nil
}

func (j *GA4Job) httpClient(ctx context.Context) (*http.Client, error) {
	if j.client != nil {
		return j.client, nil
	}
	creds, err := os.ReadFile(j.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(creds, analyticsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}
	return conf.Client(ctx), nil
}

type ga4ReportRequest struct {
	DateRanges []ga4DateRange `json:"dateRanges"`
	Dimensions []ga4Name      `json:"dimensions"`
	Metrics    []ga4Name      `json:"metrics"`
	OrderBys   []ga4OrderBy   `json:"orderBys"`
}

type ga4DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type ga4Name struct {
	Name string `json:"name"`
}

type ga4OrderBy struct {
	Dimension struct {
		DimensionName string `json:"dimensionName"`
	} `json:"dimension"`
}

type ga4ReportResponse struct {
	Rows []struct {
		DimensionValues []struct {
			Value string `json:"value"`
		} `json:"dimensionValues"`
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	} `json:"rows"`
}

func (j *GA4Job) runReport(ctx context.Context, client *http.Client) ([]store.GA4DailyRow, error) {
	reqBody := ga4ReportRequest{
		DateRanges: []ga4DateRange{{StartDate: "30daysAgo", EndDate: "today"}},
		Dimensions: []ga4Name{{Name: "date"}},
		Metrics: []ga4Name{
			{Name: "sessions"},
			{Name: "totalUsers"},
			{Name: "screenPageViews"},
			{Name: "averageSessionDuration"},
			{Name: "bounceRate"},
		},
	}
	reqBody.OrderBys = make([]ga4OrderBy, 1)
	reqBody.OrderBys[0].Dimension.DimensionName = "date"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode GA4 request: %w", err)
	}

	propertyID := strings.TrimPrefix(j.PropertyID, "properties/")
	url := fmt.Sprintf("%s/properties/%s:runReport", j.endpoint, propertyID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build GA4 request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GA4 API unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read GA4 response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GA4 API returned status %d: %s", resp.StatusCode, raw)
	}

	var report ga4ReportResponse
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to decode GA4 response: %w", err)
	}

	return convertReportRows(report)
}

// convertReportRows maps API rows to storage rows. Duration converts from
// seconds to minutes and bounce rate from a fraction to a percentage.
func convertReportRows(report ga4ReportResponse) ([]store.GA4DailyRow, error) {
	out := make([]store.GA4DailyRow, 0, len(report.Rows))
	for _, row := range report.Rows {
		if len(row.DimensionValues) < 1 || len(row.MetricValues) < 5 {
			continue
		}
		// GA4 dates arrive as YYYYMMDD.
		date, err := time.Parse("20060102", row.DimensionValues[0].Value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse GA4 date %q: %w", row.DimensionValues[0].Value, err)
		}

		sessions, _ := strconv.ParseInt(row.MetricValues[0].Value, 10, 64)
		users, _ := strconv.ParseInt(row.MetricValues[1].Value, 10, 64)
		pageViews, _ := strconv.ParseInt(row.MetricValues[2].Value, 10, 64)
		durationSeconds, _ := strconv.ParseFloat(row.MetricValues[3].Value, 64)
		bounceFraction, _ := strconv.ParseFloat(row.MetricValues[4].Value, 64)

		out = append(out, store.GA4DailyRow{
			Date:               date,
			PagePath:           "/",
			Sessions:           sessions,
			Users:              users,
			PageViews:          pageViews,
			AvgDurationMinutes: durationSeconds / 60,
			BounceRatePercent:  bounceFraction * 100,
		})
	}
	return out, nil
}
