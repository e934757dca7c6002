package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"guidepost/api/models"
	"guidepost/api/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventSink appends to the raw event stream.
type EventSink interface {
	InsertEvent(ctx context.Context, event models.Event) error
	Totals(ctx context.Context, since time.Time) (store.RawTotals, error)
}

// FeedbackSink owns the feedback, client-error and unique-user tables.
type FeedbackSink interface {
	InsertFeedback(ctx context.Context, fb models.FeedbackEvent) error
	InsertError(ctx context.Context, ev models.ErrorEvent) error
	CountErrorsSince(ctx context.Context, since time.Time) (int, error)
	UpsertUniqueUser(ctx context.Context, userID string, seenAt time.Time) (bool, error)
	FeedbackStats(ctx context.Context) (models.FeedbackStats, error)
	ErrorStats(ctx context.Context) (models.ErrorStats, error)
}

// CounterLedger reads and appends counter snapshots.
type CounterLedger interface {
	Increment(ctx context.Context, metric models.Metric) (int64, error)
	Latest(ctx context.Context, metric models.Metric) (models.CounterSnapshot, error)
}

// Alerter delivers operator alert mail.
type Alerter interface {
	Send(subject, body string) error
}

// FailureLog records handler failures for the operator.
type FailureLog interface {
	Record(ctx context.Context, source, message, details string)
}

type EventHandlers struct {
	Events         EventSink
	Feedback       FeedbackSink
	Counters       CounterLedger
	Alerts         Alerter
	Failures       FailureLog
	ErrorThreshold int
}

func NewEventHandlers(events EventSink, feedback FeedbackSink, counters CounterLedger, alerts Alerter, failures FailureLog, errorThreshold int) *EventHandlers {
	return &EventHandlers{
		Events:         events,
		Feedback:       feedback,
		Counters:       counters,
		Alerts:         alerts,
		Failures:       failures,
		ErrorThreshold: errorThreshold,
	}
}

// incomingEvent is the wire shape of a POST body. Feedback fields arrive
// either top-level (the proxy's fixed payload) or inside customData (the
// browser client); both locations are honored.
type incomingEvent struct {
	models.Event
	Emoji        string `json:"emoji,omitempty"`
	FeedbackText string `json:"feedbackText,omitempty"`
	Email        string `json:"email,omitempty"`
}

// HandleEvent ingests one event from a JSON body. A body that fails to parse
// falls back to the URL-parameter form before giving up.
func (h *EventHandlers) HandleEvent(c *gin.Context) {
	var in incomingEvent
	if err := c.ShouldBindJSON(&in); err != nil {
		// Alternate parse path: Beacon sends arrive as form data.
		if ev, ok := eventFromParams(c); ok {
			h.dispatch(c, ev)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "No data received"})
		return
	}
	if in.EventType == "" {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "No event type specified"})
		return
	}

	in.Event.CustomData = mergeFeedbackFields(in)
	h.dispatch(c, in.Event)
}

// HandleEventGet serves the query-parameter surface: counter actions, the
// GET event fallback, and the full statistics dump.
func (h *EventHandlers) HandleEventGet(c *gin.Context) {
	switch {
	case c.Query("processFeedback") == "true":
		h.handleFeedbackParams(c)
	case c.Query("action") == "incrementCounter":
		h.handleIncrementCounter(c)
	case c.Query("action") == "getCounter":
		h.handleGetCounter(c)
	case c.Query("eventType") != "":
		ev, _ := eventFromParams(c)
		h.dispatch(c, ev)
	default:
		h.handleStatsDump(c)
	}
}

// dispatch routes one event by kind. Side effects are best effort and never
// roll back: a feedback write that lands before a failed counter bump stays.
func (h *EventHandlers) dispatch(c *gin.Context, ev models.Event) {
	ev.EventID = uuid.New().String()
	ev.IPAddress = c.ClientIP()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	switch ev.Kind() {
	case models.KindFeedbackSubmitted:
		if err := h.processFeedback(ctx, ev); err != nil {
			h.fail(c, ctx, "feedback_submitted", err)
			return
		}

	case models.KindFeedbackEmojiSelected:
		// Log only: the final submit carries the emoji, writing here would
		// double count.
		log.Printf("Feedback emoji selected (user=%s session=%s)", ev.UserID, ev.SessionID)

	case models.KindErrorOccurred:
		if err := h.processError(ctx, ev); err != nil {
			h.fail(c, ctx, "error_occurred", err)
			return
		}

	case models.KindGuideStarted:
		h.appendRaw(ctx, ev)
		h.bumpCounter(ctx, models.MetricStarts)
		h.touchUniqueUser(ctx, ev.UserID, ev.Timestamp)

	case models.KindGuideCompleted:
		h.appendRaw(ctx, ev)
		h.bumpCounter(ctx, models.MetricCompletions)

	case models.KindPageView:
		h.appendRaw(ctx, ev)
		if ev.Details().FirstVisit {
			h.bumpCounter(ctx, models.MetricUsers)
		}

	case models.KindScrollDepth, models.KindCTAClick, models.KindOutboundClick,
		models.KindStepCompleted, models.KindSessionEnd, models.KindCustom:
		h.appendRaw(ctx, ev)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *EventHandlers) processFeedback(ctx context.Context, ev models.Event) error {
	fb := feedbackFromEvent(ev)
	if !fb.Emoji.Valid() {
		return fmt.Errorf("invalid feedback emoji %q", fb.Emoji)
	}
	if err := h.Feedback.InsertFeedback(ctx, fb); err != nil {
		return err
	}
	// Counter upkeep after a successful write is best effort by design.
	h.touchUniqueUser(ctx, ev.UserID, ev.Timestamp)
	return nil
}

func (h *EventHandlers) processError(ctx context.Context, ev models.Event) error {
	d := ev.Details()
	errType := "unknown"
	var errMsg, errDetails string

	var extra struct {
		ErrorType    string `json:"errorType"`
		ErrorMessage string `json:"errorMessage"`
		ErrorDetails string `json:"errorDetails"`
	}
	if len(ev.CustomData) > 0 {
		_ = json.Unmarshal(ev.CustomData, &extra)
	}
	if extra.ErrorType != "" {
		errType = extra.ErrorType
	}
	errMsg = extra.ErrorMessage
	errDetails = extra.ErrorDetails
	if errDetails == "" && len(ev.CustomData) > 0 {
		errDetails = string(ev.CustomData)
	}

	if err := h.Feedback.InsertError(ctx, models.ErrorEvent{
		Timestamp:    ev.Timestamp,
		UserID:       ev.UserID,
		SessionID:    ev.SessionID,
		PageURL:      ev.PageURL,
		StepNumber:   d.StepNumber,
		StepName:     d.StepTitle,
		ErrorType:    errType,
		ErrorMessage: errMsg,
		ErrorDetails: errDetails,
		OS:           ev.OS,
		Browser:      ev.Browser,
	}); err != nil {
		return err
	}

	h.checkErrorRate(ctx)
	return nil
}

// checkErrorRate alerts when the appended error is the one that crosses the
// configured threshold for the trailing hour. Staying above the threshold
// does not re-alert.
func (h *EventHandlers) checkErrorRate(ctx context.Context) {
	count, err := h.Feedback.CountErrorsSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		log.Printf("Failed to check error rate: %v", err)
		return
	}
	if count != h.ErrorThreshold+1 {
		return
	}
	subject := "High error rate detected"
	body := fmt.Sprintf("%d errors in the last hour (threshold: %d).", count, h.ErrorThreshold)
	if err := h.Alerts.Send(subject, body); err != nil {
		log.Printf("Failed to send error rate alert: %v", err)
	}
}

// appendRaw writes to the raw stream. A failed write is logged and skipped;
// the response still reports success.
func (h *EventHandlers) appendRaw(ctx context.Context, ev models.Event) {
	if err := h.Events.InsertEvent(ctx, ev); err != nil {
		log.Printf("Failed to insert raw event (%s): %v", ev.EventType, err)
		h.Failures.Record(ctx, "raw_events", err.Error(), ev.EventType)
	}
}

func (h *EventHandlers) bumpCounter(ctx context.Context, metric models.Metric) {
	if _, err := h.Counters.Increment(ctx, metric); err != nil {
		log.Printf("Failed to increment %s counter: %v", metric, err)
	}
}

// touchUniqueUser upserts the sighting and bumps the users counter when the
// id is brand new, matching the original registry behavior.
func (h *EventHandlers) touchUniqueUser(ctx context.Context, userID string, seenAt time.Time) {
	isNew, err := h.Feedback.UpsertUniqueUser(ctx, userID, seenAt)
	if err != nil {
		log.Printf("Failed to upsert unique user %s: %v", userID, err)
		return
	}
	if isNew {
		h.bumpCounter(ctx, models.MetricUsers)
	}
}

func (h *EventHandlers) fail(c *gin.Context, ctx context.Context, source string, err error) {
	log.Printf("Error handling %s: %v", source, err)
	h.Failures.Record(ctx, source, err.Error(), "")
	c.JSON(http.StatusOK, gin.H{"status": "error", "message": err.Error()})
}

func (h *EventHandlers) handleIncrementCounter(c *gin.Context) {
	metric := models.Metric(c.DefaultQuery("metric", "users"))
	if !metric.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("unknown metric %q", metric)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	value, err := h.Counters.Increment(ctx, metric)
	if err != nil {
		h.fail(c, ctx, "incrementCounter", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "value": value, "metric": metric})
}

func (h *EventHandlers) handleGetCounter(c *gin.Context) {
	metric := models.Metric(c.DefaultQuery("metric", "users"))
	if !metric.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": fmt.Sprintf("unknown metric %q", metric)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	snap, err := h.Counters.Latest(ctx, metric)
	if err != nil {
		h.fail(c, ctx, "getCounter", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "value": snap.Total, "metric": metric})
}

// handleFeedbackParams is the GET escape hatch for feedback submission where
// POST is unavailable.
func (h *EventHandlers) handleFeedbackParams(c *gin.Context) {
	emoji := models.Emoji(c.Query("emoji"))
	if !emoji.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Emoji is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	fb := models.FeedbackEvent{
		Timestamp:    now,
		UserID:       c.Query("userId"),
		SessionID:    c.Query("sessionId"),
		Emoji:        emoji,
		FeedbackText: c.Query("feedbackText"),
		Email:        c.Query("email"),
	}
	if err := h.Feedback.InsertFeedback(ctx, fb); err != nil {
		h.fail(c, ctx, "processFeedback", err)
		return
	}
	h.touchUniqueUser(ctx, fb.UserID, now)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleStatsDump combines per-table aggregates into the full dashboard read.
func (h *EventHandlers) handleStatsDump(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	totals, err := h.Events.Totals(ctx, time.Time{})
	if err != nil {
		h.fail(c, ctx, "statsDump", err)
		return
	}

	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := h.Events.Totals(ctx, midnight)
	if err != nil {
		h.fail(c, ctx, "statsDump", err)
		return
	}

	feedbackStats, err := h.Feedback.FeedbackStats(ctx)
	if err != nil {
		h.fail(c, ctx, "statsDump", err)
		return
	}
	errorStats, err := h.Feedback.ErrorStats(ctx)
	if err != nil {
		h.fail(c, ctx, "statsDump", err)
		return
	}

	completionRate := 0.0
	if totals.GuideStarts > 0 {
		completionRate = float64(totals.GuideCompleted) / float64(totals.GuideStarts) * 100
	}

	c.JSON(http.StatusOK, gin.H{
		"total":          totals,
		"today":          today,
		"feedback":       feedbackStats,
		"errors":         errorStats,
		"completionRate": strconv.FormatFloat(completionRate, 'f', 1, 64),
		"timestamp":      now.Format(time.RFC3339),
	})
}

// eventFromParams rebuilds the envelope from URL or form parameters,
// including the event-specific trailing fields.
func eventFromParams(c *gin.Context) (models.Event, bool) {
	get := func(key string) string {
		if v := c.Query(key); v != "" {
			return v
		}
		return c.PostForm(key)
	}

	eventType := get("eventType")
	if eventType == "" {
		return models.Event{}, false
	}

	ev := models.Event{
		EventType: eventType,
		UserID:    get("userId"),
		SessionID: get("sessionId"),
		PageURL:   get("pageUrl"),
		PageTitle: get("pageTitle"),
		OS:        get("os"),
		Browser:   get("browser"),
		Device:    get("device"),
		Referrer:  get("referrer"),
	}
	if ts, err := time.Parse(time.RFC3339, get("timestamp")); err == nil {
		ev.Timestamp = ts
	}
	if d, err := strconv.ParseInt(get("duration"), 10, 64); err == nil {
		ev.DurationMs = d
	}

	d := models.EventDetails{
		ScrollPage:     get("page"),
		ButtonText:     get("button_text"),
		ButtonLocation: get("button_location"),
		LinkURL:        get("link_url"),
		LinkText:       get("link_text"),
		StepTitle:      get("stepTitle"),
		GuideID:        get("guideId"),
		GuideName:      get("guideName"),
	}
	if n, err := strconv.Atoi(get("percent")); err == nil {
		d.ScrollPercent = n
	}
	if n, err := strconv.Atoi(get("stepNumber")); err == nil {
		d.StepNumber = n
	}
	if d != (models.EventDetails{}) {
		raw, err := json.Marshal(d)
		if err == nil {
			ev.CustomData = raw
		}
	}

	return ev, true
}

// mergeFeedbackFields folds the proxy's top-level feedback fields into the
// custom payload so downstream code has a single location to read.
func mergeFeedbackFields(in incomingEvent) json.RawMessage {
	if in.Emoji == "" && in.FeedbackText == "" && in.Email == "" {
		return in.Event.CustomData
	}

	merged := map[string]json.RawMessage{}
	if len(in.Event.CustomData) > 0 {
		_ = json.Unmarshal(in.Event.CustomData, &merged)
	}
	setIfMissing := func(key, value string) {
		if value == "" {
			return
		}
		if _, ok := merged[key]; !ok {
			raw, _ := json.Marshal(value)
			merged[key] = raw
		}
	}
	setIfMissing("emoji", in.Emoji)
	setIfMissing("feedbackText", in.FeedbackText)
	setIfMissing("email", in.Email)

	raw, err := json.Marshal(merged)
	if err != nil {
		return in.Event.CustomData
	}
	return raw
}

// feedbackFromEvent extracts a feedback row from the envelope's custom
// payload.
func feedbackFromEvent(ev models.Event) models.FeedbackEvent {
	var custom struct {
		Emoji            string `json:"emoji"`
		FeedbackText     string `json:"feedbackText"`
		Email            string `json:"email"`
		CompletionTime   string `json:"completionTime"`
		CompletedSteps   int    `json:"completedSteps"`
		LastStep         string `json:"lastStep"`
		DarkMode         bool   `json:"darkMode"`
		FirstVisit       bool   `json:"firstVisit"`
		ErrorSteps       string `json:"errorSteps"`
		ErrorResolved    bool   `json:"errorResolved"`
		ScreenResolution string `json:"screenResolution"`
	}
	if len(ev.CustomData) > 0 {
		_ = json.Unmarshal(ev.CustomData, &custom)
	}

	return models.FeedbackEvent{
		Timestamp:        ev.Timestamp,
		UserID:           ev.UserID,
		SessionID:        ev.SessionID,
		Emoji:            models.Emoji(custom.Emoji),
		FeedbackText:     custom.FeedbackText,
		Email:            custom.Email,
		CompletionTime:   custom.CompletionTime,
		CompletedSteps:   custom.CompletedSteps,
		LastStep:         custom.LastStep,
		DarkMode:         custom.DarkMode,
		FirstVisit:       custom.FirstVisit,
		ErrorSteps:       custom.ErrorSteps,
		ErrorResolved:    custom.ErrorResolved,
		ScreenResolution: custom.ScreenResolution,
		OS:               ev.OS,
		Browser:          ev.Browser,
	}
}
