package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"guidepost/api/models"
	"guidepost/api/store"
	"guidepost/api/utils"

	"github.com/gin-gonic/gin"
)

// StatsHandlers serves the dashboard read endpoints: time-series over the raw
// stream, counter history, and the pulled GA4 report.
type StatsHandlers struct {
	Events   *store.EventStore
	Counters *store.CounterStore
	GA4      *store.GA4Store
}

func NewStatsHandlers(events *store.EventStore, counters *store.CounterStore, ga4 *store.GA4Store) *StatsHandlers {
	return &StatsHandlers{
		Events:   events,
		Counters: counters,
		GA4:      ga4,
	}
}

// timeRange parses optional start/end query parameters, defaulting to the
// trailing 7 days. A false return means the response has been written.
func timeRange(c *gin.Context) (start, end time.Time, ok bool) {
	var err error

	startParam := c.Query("start")
	if startParam != "" {
		start, err = time.Parse(time.RFC3339, startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		start = time.Now().UTC().Add(-7 * 24 * time.Hour)
	}

	endParam := c.Query("end")
	if endParam != "" {
		end, err = time.Parse(time.RFC3339, endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		end = time.Now().UTC()
	}

	return start, end, true
}

func (h *StatsHandlers) GetEventCountsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}

	eventTypeFilter := c.Query("eventType")

	start, end, ok := timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Events.GetEventCountsOverTime(ctx, interval, start, end, eventTypeFilter)
	if err != nil {
		log.Printf("Error getting event counts over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetUniqueUsersOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}

	start, end, ok := timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Events.GetUniqueUsersOverTime(ctx, interval, start, end)
	if err != nil {
		log.Printf("Error getting unique users over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique user statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetAverageEventDuration(c *gin.Context) {
	eventTypeFilter := c.Query("eventType")

	start, end, ok := timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	avgDuration, err := h.Events.GetAverageEventDuration(ctx, eventTypeFilter, start, end)
	if err != nil {
		log.Printf("Error getting average event duration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve average event duration statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"eventType":         eventTypeFilter,
		"startDate":         start.Format(time.RFC3339),
		"endDate":           end.Format(time.RFC3339),
		"averageDurationMs": avgDuration,
	})
}

func (h *StatsHandlers) GetTopPages(c *gin.Context) {
	start, end, ok := timeRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	limitParam := c.Query("limit")
	if limitParam != "" {
		parsedLimit, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsedLimit == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsedLimit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Events.GetTopPages(ctx, start, end, limit)
	if err != nil {
		log.Printf("Error getting top pages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top pages statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

// GetCounterHistory returns the snapshot ledger for one metric, oldest first.
func (h *StatsHandlers) GetCounterHistory(c *gin.Context) {
	metric := models.Metric(c.DefaultQuery("metric", "users"))
	if !metric.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'metric' parameter. Must be one of users, starts, completions."})
		return
	}

	since := time.Now().UTC().Add(-30 * 24 * time.Hour)
	sinceParam := c.Query("since")
	if sinceParam != "" {
		parsed, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'since' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return
		}
		since = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	history, err := h.Counters.History(ctx, metric, since)
	if err != nil {
		log.Printf("Error getting counter history for %s: %v", metric, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve counter history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"metric": metric, "history": history})
}

// GetGA4Daily serves the most recently pulled GA4 report.
func (h *StatsHandlers) GetGA4Daily(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	rows, err := h.GA4.ListDaily(ctx)
	if err != nil {
		log.Printf("Error getting GA4 daily report: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve GA4 report"})
		return
	}

	c.JSON(http.StatusOK, rows)
}
