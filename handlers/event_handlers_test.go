package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"guidepost/api/models"
	"guidepost/api/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeEvents struct {
	inserted []models.Event
	totals   store.RawTotals
}

func (f *fakeEvents) InsertEvent(ctx context.Context, event models.Event) error {
	f.inserted = append(f.inserted, event)
	return nil
}

func (f *fakeEvents) Totals(ctx context.Context, since time.Time) (store.RawTotals, error) {
	return f.totals, nil
}

type fakeFeedback struct {
	feedback   []models.FeedbackEvent
	errors     []models.ErrorEvent
	knownUsers map[string]bool
}

func (f *fakeFeedback) InsertFeedback(ctx context.Context, fb models.FeedbackEvent) error {
	f.feedback = append(f.feedback, fb)
	return nil
}

func (f *fakeFeedback) InsertError(ctx context.Context, ev models.ErrorEvent) error {
	f.errors = append(f.errors, ev)
	return nil
}

func (f *fakeFeedback) CountErrorsSince(ctx context.Context, since time.Time) (int, error) {
	return len(f.errors), nil
}

func (f *fakeFeedback) UpsertUniqueUser(ctx context.Context, userID string, seenAt time.Time) (bool, error) {
	if f.knownUsers == nil {
		f.knownUsers = make(map[string]bool)
	}
	isNew := !f.knownUsers[userID]
	f.knownUsers[userID] = true
	return isNew, nil
}

func (f *fakeFeedback) FeedbackStats(ctx context.Context) (models.FeedbackStats, error) {
	return models.FeedbackStats{Total: len(f.feedback)}, nil
}

func (f *fakeFeedback) ErrorStats(ctx context.Context) (models.ErrorStats, error) {
	return models.ErrorStats{Total: len(f.errors)}, nil
}

type fakeCounters struct {
	totals map[models.Metric]int64
}

func (f *fakeCounters) Increment(ctx context.Context, metric models.Metric) (int64, error) {
	if f.totals == nil {
		f.totals = make(map[models.Metric]int64)
	}
	f.totals[metric]++
	return f.totals[metric], nil
}

func (f *fakeCounters) Latest(ctx context.Context, metric models.Metric) (models.CounterSnapshot, error) {
	return models.CounterSnapshot{Metric: metric, Total: f.totals[metric]}, nil
}

type fakeAlerts struct {
	sent []string
}

func (f *fakeAlerts) Send(subject, body string) error {
	f.sent = append(f.sent, subject)
	return nil
}

type fakeFailures struct {
	recorded []string
}

func (f *fakeFailures) Record(ctx context.Context, source, message, details string) {
	f.recorded = append(f.recorded, source)
}

type eventFixture struct {
	events   *fakeEvents
	feedback *fakeFeedback
	counters *fakeCounters
	alerts   *fakeAlerts
	failures *fakeFailures
	router   *gin.Engine
}

func newEventFixture(t *testing.T, threshold int) *eventFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fx := &eventFixture{
		events:   &fakeEvents{},
		feedback: &fakeFeedback{},
		counters: &fakeCounters{},
		alerts:   &fakeAlerts{},
		failures: &fakeFailures{},
	}
	h := NewEventHandlers(fx.events, fx.feedback, fx.counters, fx.alerts, fx.failures, threshold)

	fx.router = gin.New()
	fx.router.POST("/api/events", h.HandleEvent)
	fx.router.GET("/api/events", h.HandleEventGet)
	return fx
}

func (fx *eventFixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	fx.router.ServeHTTP(w, req)
	return w
}

func (fx *eventFixture) get(t *testing.T, query string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/events"+query, nil)
	fx.router.ServeHTTP(w, req)
	return w
}

func TestFeedbackSubmittedWritesRowAndCountsUser(t *testing.T) {
	fx := newEventFixture(t, 10)

	w := fx.post(t, `{
		"eventType": "feedback_submitted",
		"userId": "u1",
		"sessionId": "s1",
		"customData": {"emoji": "love", "feedbackText": "great guide", "completedSteps": 6}
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fx.feedback.feedback, 1)

	fb := fx.feedback.feedback[0]
	require.Equal(t, models.EmojiLove, fb.Emoji)
	require.Equal(t, "great guide", fb.FeedbackText)
	require.Equal(t, 6, fb.CompletedSteps)
	require.Equal(t, "u1", fb.UserID)

	// New user id bumps the users counter exactly once.
	require.Equal(t, int64(1), fx.counters.totals[models.MetricUsers])

	fx.post(t, `{"eventType":"feedback_submitted","userId":"u1","customData":{"emoji":"good"}}`)
	require.Equal(t, int64(1), fx.counters.totals[models.MetricUsers])
	require.Empty(t, fx.events.inserted, "feedback must not hit the raw stream")
}

func TestFeedbackTopLevelEmojiAccepted(t *testing.T) {
	fx := newEventFixture(t, 10)

	// The proxy relays feedback fields top-level rather than in customData.
	w := fx.post(t, `{"eventType":"feedback_submitted","userId":"u2","emoji":"sad","feedbackText":"stuck on auth"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fx.feedback.feedback, 1)
	require.Equal(t, models.EmojiSad, fx.feedback.feedback[0].Emoji)
	require.Equal(t, "stuck on auth", fx.feedback.feedback[0].FeedbackText)
}

func TestFeedbackInvalidEmojiRejected(t *testing.T) {
	fx := newEventFixture(t, 10)

	w := fx.post(t, `{"eventType":"feedback_submitted","userId":"u1","customData":{"emoji":"meh"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"error"`)
	require.Empty(t, fx.feedback.feedback)
	require.Equal(t, []string{"feedback_submitted"}, fx.failures.recorded)
}

func TestEmojiSelectedWritesNothing(t *testing.T) {
	fx := newEventFixture(t, 10)

	w := fx.post(t, `{"eventType":"feedback_emoji_selected","userId":"u1","customData":{"emoji":"love"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, fx.feedback.feedback)
	require.Empty(t, fx.events.inserted)
}

func TestErrorAlertFiresExactlyOnceAtCrossing(t *testing.T) {
	fx := newEventFixture(t, 10)

	for i := 0; i < 12; i++ {
		w := fx.post(t, fmt.Sprintf(`{"eventType":"error_occurred","userId":"u%d","customData":{"errorType":"install","errorMessage":"boom"}}`, i))
		require.Equal(t, http.StatusOK, w.Code)
	}

	require.Len(t, fx.feedback.errors, 12)
	// The 11th append crosses the threshold of 10; staying above must not
	// re-alert.
	require.Len(t, fx.alerts.sent, 1)
}

func TestGuideStartedBumpsCounters(t *testing.T) {
	fx := newEventFixture(t, 10)

	w := fx.post(t, `{"eventType":"guide_started","userId":"u1","sessionId":"s1","customData":{"guideId":"install"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fx.events.inserted, 1)
	require.Equal(t, "guide_started", fx.events.inserted[0].EventType)
	require.Equal(t, int64(1), fx.counters.totals[models.MetricStarts])
	require.Equal(t, int64(1), fx.counters.totals[models.MetricUsers])
}

func TestGuideCompletedBumpsCompletions(t *testing.T) {
	fx := newEventFixture(t, 10)

	fx.post(t, `{"eventType":"guide_completed","userId":"u1"}`)

	require.Equal(t, int64(1), fx.counters.totals[models.MetricCompletions])
	require.Len(t, fx.events.inserted, 1)
}

func TestPageViewFirstVisitCountsUser(t *testing.T) {
	fx := newEventFixture(t, 10)

	fx.post(t, `{"eventType":"page_view","userId":"u1","customData":{"firstVisit":true}}`)
	fx.post(t, `{"eventType":"page_view","userId":"u1","customData":{"firstVisit":false}}`)
	fx.post(t, `{"eventType":"page_view","userId":"u1"}`)

	require.Equal(t, int64(1), fx.counters.totals[models.MetricUsers])
	require.Len(t, fx.events.inserted, 3)
}

func TestUnknownEventTypeGoesToRawStream(t *testing.T) {
	fx := newEventFixture(t, 10)

	w := fx.post(t, `{"eventType":"logo_easter_egg","userId":"u1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fx.events.inserted, 1)
	require.Empty(t, fx.counters.totals)
}

func TestMissingEventTypeRejected(t *testing.T) {
	fx := newEventFixture(t, 10)

	w := fx.post(t, `{"userId":"u1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "No event type specified")
}

func TestGetQueryFallbackIngests(t *testing.T) {
	fx := newEventFixture(t, 10)

	w := fx.get(t, "?eventType=scroll_depth&userId=u1&percent=75&page=/guide")

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fx.events.inserted, 1)

	d := fx.events.inserted[0].Details()
	require.Equal(t, 75, d.ScrollPercent)
	require.Equal(t, "/guide", d.ScrollPage)
}

func TestCounterActions(t *testing.T) {
	fx := newEventFixture(t, 10)

	w := fx.get(t, "?action=incrementCounter&metric=starts")
	require.Equal(t, http.StatusOK, w.Code)

	var inc struct {
		Success bool  `json:"success"`
		Value   int64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inc))
	require.True(t, inc.Success)
	require.Equal(t, int64(1), inc.Value)

	w = fx.get(t, "?action=getCounter&metric=starts")
	require.Equal(t, http.StatusOK, w.Code)

	var get struct {
		Status string `json:"status"`
		Value  int64  `json:"value"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &get))
	require.Equal(t, "success", get.Status)
	require.Equal(t, int64(1), get.Value)

	w = fx.get(t, "?action=getCounter&metric=bogus")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsDump(t *testing.T) {
	fx := newEventFixture(t, 10)
	fx.events.totals = store.RawTotals{Events: 40, Users: 9, PageViews: 20, GuideStarts: 10, GuideCompleted: 4}

	w := fx.get(t, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Total          store.RawTotals `json:"total"`
		CompletionRate string          `json:"completionRate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, uint64(40), resp.Total.Events)
	require.Equal(t, "40.0", resp.CompletionRate)
}
