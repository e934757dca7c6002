package track

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type memStorage struct {
	m map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{m: make(map[string]string)}
}

func (s *memStorage) Get(key string) (string, bool) {
	v, ok := s.m[key]
	return v, ok
}

func (s *memStorage) Set(key, value string) {
	s.m[key] = value
}

// intakeRecorder captures the envelopes a client sends.
type intakeRecorder struct {
	mu     sync.Mutex
	events []map[string]interface{}
	srv    *httptest.Server
}

func newIntakeRecorder(t *testing.T) *intakeRecorder {
	t.Helper()
	r := &intakeRecorder{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var ev map[string]interface{}
		if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
			t.Errorf("bad event body: %v", err)
		}
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *intakeRecorder) received() []map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]interface{}, len(r.events))
	copy(out, r.events)
	return out
}

func (r *intakeRecorder) countByType(eventType string) int {
	n := 0
	for _, ev := range r.received() {
		if ev["eventType"] == eventType {
			n++
		}
	}
	return n
}

func TestScrollThresholdsFireOnce(t *testing.T) {
	intake := newIntakeRecorder(t)
	client := NewClient(intake.srv.URL, newMemStorage(), Env{UserAgent: "test", PageURL: "http://example.com/guide"})

	tracker := NewScrollTracker(client, "/guide")

	// Oscillate across thresholds repeatedly.
	for _, p := range []int{10, 30, 20, 55, 30, 55, 80, 40, 95, 10, 100, 100} {
		tracker.Observe(p)
	}
	client.Close()

	if got := intake.countByType("scroll_depth"); got != 5 {
		t.Fatalf("expected 5 scroll_depth events, got %d", got)
	}
	for _, threshold := range []int{25, 50, 75, 90, 100} {
		if !tracker.Fired(threshold) {
			t.Errorf("threshold %d never fired", threshold)
		}
	}
}

func TestScrollIgnoresBelowMax(t *testing.T) {
	intake := newIntakeRecorder(t)
	client := NewClient(intake.srv.URL, newMemStorage(), Env{UserAgent: "test"})

	tracker := NewScrollTracker(client, "/")
	tracker.Observe(60)
	tracker.Observe(30)
	tracker.Observe(60)
	client.Close()

	if got := intake.countByType("scroll_depth"); got != 2 {
		t.Fatalf("expected 2 scroll_depth events (25, 50), got %d", got)
	}
}
