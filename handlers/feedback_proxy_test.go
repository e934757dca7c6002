package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newProxyRouter(upstreamURL string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Any("/api/feedback", NewFeedbackProxy(upstreamURL).Handle)
	return r
}

func TestFeedbackProxyRejectsNonPost(t *testing.T) {
	r := newProxyRouter("http://localhost:1")

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, "/api/feedback", nil)
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusMethodNotAllowed, w.Code, "method %s", method)
		require.JSONEq(t, `{"error":"Method not allowed"}`, w.Body.String())
	}
}

func TestFeedbackProxyRequiresEmoji(t *testing.T) {
	r := newProxyRouter("http://localhost:1")

	for _, body := range []string{`{}`, `{"feedbackText":"hi"}`, `not json`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
		require.JSONEq(t, `{"error":"Emoji is required"}`, w.Body.String())
	}
}

func TestFeedbackProxyRelays(t *testing.T) {
	var relayed map[string]string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&relayed))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}))
	defer upstream.Close()

	r := newProxyRouter(upstream.URL)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"emoji":"love","feedbackText":"great","userId":"u1","sessionId":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                   `json:"success"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, true, resp.Data["success"])

	require.Equal(t, "feedback_submitted", relayed["eventType"])
	require.Equal(t, "love", relayed["emoji"])
	require.Equal(t, "great", relayed["feedbackText"])
	require.Equal(t, "u1", relayed["userId"])
	require.NotEmpty(t, relayed["timestamp"])
}

func TestFeedbackProxyWrapsPlainTextUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("Thanks for the feedback"))
	}))
	defer upstream.Close()

	r := newProxyRouter(upstream.URL)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(`{"emoji":"good"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "success", resp.Data["status"])
	require.Equal(t, "Thanks for the feedback", resp.Data["message"])
}

func TestFeedbackProxyUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))
	upstream.Close()

	r := newProxyRouter(upstream.URL)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(`{"emoji":"sad"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "Failed to submit feedback")
}
