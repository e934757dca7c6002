package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// FeedbackProxy relays browser feedback submissions to the event intake. It
// exists so the widget can POST same-origin while the intake lives elsewhere.
type FeedbackProxy struct {
	UpstreamURL string
	Client      *http.Client
}

func NewFeedbackProxy(upstreamURL string) *FeedbackProxy {
	return &FeedbackProxy{
		UpstreamURL: upstreamURL,
		Client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type feedbackSubmission struct {
	Emoji        string `json:"emoji"`
	FeedbackText string `json:"feedbackText"`
	Email        string `json:"email"`
	UserID       string `json:"userId"`
	SessionID    string `json:"sessionId"`
	PageURL      string `json:"pageUrl"`
}

// Handle accepts POST only. OPTIONS preflights are answered by the CORS
// middleware before the request reaches here.
func (p *FeedbackProxy) Handle(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
		return
	}

	var sub feedbackSubmission
	if err := c.ShouldBindJSON(&sub); err != nil || sub.Emoji == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Emoji is required"})
		return
	}

	payload := map[string]string{
		"eventType":    "feedback_submitted",
		"userId":       sub.UserID,
		"sessionId":    sub.SessionID,
		"emoji":        sub.Emoji,
		"feedbackText": sub.FeedbackText,
		"email":        sub.Email,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"pageUrl":      sub.PageURL,
		"userAgent":    c.Request.UserAgent(),
	}

	upstream, err := p.relay(c, payload)
	if err != nil {
		log.Printf("Feedback relay failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to submit feedback",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Feedback submitted successfully",
		"data":    upstream,
	})
}

// relay POSTs the normalized payload upstream and returns the decoded
// response. Upstreams that answer with plain text get wrapped so callers
// always receive JSON.
func (p *FeedbackProxy) relay(c *gin.Context, payload map[string]string) (interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, p.UpstreamURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Some intake deployments answer in plain text.
		return map[string]string{"status": "success", "message": string(raw)}, nil
	}
	return decoded, nil
}
