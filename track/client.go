// Package track is the analytics client: it produces stable user and session
// ids, classifies the environment, and forwards events to the intake with
// fire-and-forget delivery.
package track

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Storage persists the client's user id and first-visit flag across runs.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

const (
	userIDKey  = "guide_user_id"
	visitedKey = "guide-visited"
)

// importantEvents is the allow-list of event names mirrored to the intake.
// Everything else stays in the local stream only.
var importantEvents = map[string]struct{}{
	"guide_started":          {},
	"guide_completed":        {},
	"step_completed":         {},
	"error_occurred":         {},
	"feedback_submitted":     {},
	"installation_started":   {},
	"installation_completed": {},
}

// Env describes the page context attached to every event.
type Env struct {
	UserAgent string
	PageURL   string
	PageTitle string
	Referrer  string
}

// Client sends analytics events. Delivery is best effort: failures are
// logged and swallowed, never surfaced to the caller.
type Client struct {
	Endpoint string
	HTTP     *http.Client

	env       Env
	storage   Storage
	userID    string
	sessionID string
	startedAt time.Time

	wg sync.WaitGroup
}

func NewClient(endpoint string, storage Storage, env Env) *Client {
	c := &Client{
		Endpoint:  endpoint,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		env:       env,
		storage:   storage,
		startedAt: time.Now(),
	}
	c.userID = c.loadOrCreateUserID()
	c.sessionID = newSessionID()
	return c
}

func (c *Client) UserID() string    { return c.userID }
func (c *Client) SessionID() string { return c.sessionID }

// loadOrCreateUserID returns the persisted id or mints one. The id embeds a
// weak fingerprint of the user agent for extra entropy; it is self-reported
// and unverified by design.
func (c *Client) loadOrCreateUserID() string {
	if id, ok := c.storage.Get(userIDKey); ok && id != "" {
		return id
	}
	id := fmt.Sprintf("user_%d_%s%x", time.Now().UnixMilli(), randomSuffix(9), fingerprint(c.env.UserAgent))
	c.storage.Set(userIDKey, id)
	return id
}

func newSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), randomSuffix(9))
}

func fingerprint(ua string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(ua))
	return h.Sum32()
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}

// Track forwards an event to the intake when its name is on the important
// allow-list. It reports whether the event was forwarded.
func (c *Client) Track(eventName string, custom map[string]interface{}) bool {
	if _, ok := importantEvents[eventName]; !ok {
		log.Printf("Event %s not important, kept local", eventName)
		return false
	}
	c.send(eventName, custom)
	return true
}

// TrackPageView always forwards, marking the browser's first ever visit.
func (c *Client) TrackPageView() {
	_, visited := c.storage.Get(visitedKey)
	if !visited {
		c.storage.Set(visitedKey, "true")
	}
	c.send("page_view", map[string]interface{}{
		"firstVisit": !visited,
	})
}

func (c *Client) TrackCTAClick(buttonText, buttonLocation string) {
	c.send("cta_click", map[string]interface{}{
		"button_text":     buttonText,
		"button_location": buttonLocation,
	})
}

func (c *Client) TrackOutboundClick(linkURL, linkText string) {
	c.send("outbound_click", map[string]interface{}{
		"link_url":  linkURL,
		"link_text": linkText,
	})
}

func (c *Client) trackScrollDepth(threshold int, page string) {
	c.send("scroll_depth", map[string]interface{}{
		"percent": threshold,
		"page":    page,
	})
}

// send posts the envelope in a goroutine. The caller never waits and never
// sees a failure.
func (c *Client) send(eventName string, custom map[string]interface{}) {
	envelope := map[string]interface{}{
		"eventType": eventName,
		"userId":    c.userID,
		"sessionId": c.sessionID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"pageUrl":   c.env.PageURL,
		"pageTitle": c.env.PageTitle,
		"os":        DetectOS(c.env.UserAgent),
		"browser":   DetectBrowser(c.env.UserAgent),
		"device":    DetectDevice(c.env.UserAgent),
		"referrer":  c.env.Referrer,
	}
	if len(custom) > 0 {
		envelope["customData"] = custom
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.post(envelope); err != nil {
			log.Printf("Failed to send %s event: %v", eventName, err)
		}
	}()
}

func (c *Client) post(envelope map[string]interface{}) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	resp, err := c.HTTP.Post(c.Endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("intake returned status %d", resp.StatusCode)
	}
	return nil
}

// Close flushes in-flight sends and reports the session duration, the role
// the unload beacon played in the browser.
func (c *Client) Close() {
	duration := int64(time.Since(c.startedAt).Seconds())

	envelope := map[string]interface{}{
		"eventType": "session_end",
		"userId":    c.userID,
		"sessionId": c.sessionID,
		"duration":  duration,
		"pageUrl":   c.env.PageURL,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.post(envelope); err != nil {
		log.Printf("Failed to send session_end event: %v", err)
	}

	c.wg.Wait()
}
