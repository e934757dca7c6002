package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestLatestCachesWithinTTL(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"dist-tags":{"latest":"2.1.0"}}`))
	}))
	defer srv.Close()

	f := NewFetcher()
	f.Register("tool", Source{URL: srv.URL, Extract: NPMSource("tool").Extract})

	for i := 0; i < 3; i++ {
		v, err := f.Latest(context.Background(), "tool")
		if err != nil {
			t.Fatalf("Latest error: %v", err)
		}
		if v != "2.1.0" {
			t.Fatalf("expected 2.1.0, got %q", v)
		}
	}

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected 1 upstream hit, got %d", got)
	}
}

func TestLatestServesStaleOnFailure(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"dist-tags":{"latest":"1.0.0"}}`))
	}))
	defer srv.Close()

	f := NewFetcher()
	f.TTL = time.Nanosecond
	f.Register("tool", Source{URL: srv.URL, Extract: NPMSource("tool").Extract})

	if _, err := f.Latest(context.Background(), "tool"); err != nil {
		t.Fatalf("warm-up fetch error: %v", err)
	}

	healthy = false
	time.Sleep(time.Millisecond)

	v, err := f.Latest(context.Background(), "tool")
	if err != nil {
		t.Fatalf("expected stale hit, got error: %v", err)
	}
	if v != "1.0.0" {
		t.Errorf("expected stale 1.0.0, got %q", v)
	}
}

func TestLatestUnknownSource(t *testing.T) {
	f := NewFetcher()
	if _, err := f.Latest(context.Background(), "nope"); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func TestExtractNodeLTS(t *testing.T) {
	raw := `[
		{"version": "v22.1.0", "lts": false},
		{"version": "v20.11.1", "lts": "Iron"},
		{"version": "v18.19.0", "lts": "Hydrogen"}
	]`
	v, err := extractNodeLTS([]byte(raw))
	if err != nil {
		t.Fatalf("extract error: %v", err)
	}
	if v != "v20.11.1" {
		t.Errorf("expected first LTS v20.11.1, got %q", v)
	}
}

func TestExtractGitHubTagStripsPrefix(t *testing.T) {
	v, err := extractGitHubTag([]byte(`{"tag_name":"v2.44.0"}`))
	if err != nil {
		t.Fatalf("extract error: %v", err)
	}
	if v != "2.44.0" {
		t.Errorf("expected 2.44.0, got %q", v)
	}
}
