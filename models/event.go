package models

import (
	"encoding/json"
	"time"
)

// EventKind enumerates every event type the intake endpoint understands.
// Unknown names map to KindCustom and are stored in the raw stream as-is.
type EventKind int

const (
	KindFeedbackSubmitted EventKind = iota
	KindFeedbackEmojiSelected
	KindErrorOccurred
	KindPageView
	KindScrollDepth
	KindCTAClick
	KindOutboundClick
	KindStepCompleted
	KindGuideStarted
	KindGuideCompleted
	KindSessionEnd
	KindCustom
)

func ParseEventKind(name string) EventKind {
	switch name {
	case "feedback_submitted":
		return KindFeedbackSubmitted
	case "feedback_emoji_selected":
		return KindFeedbackEmojiSelected
	case "error_occurred":
		return KindErrorOccurred
	case "page_view":
		return KindPageView
	case "scroll_depth":
		return KindScrollDepth
	case "cta_click":
		return KindCTAClick
	case "outbound_click":
		return KindOutboundClick
	case "step_completed":
		return KindStepCompleted
	case "guide_started":
		return KindGuideStarted
	case "guide_completed":
		return KindGuideCompleted
	case "session_end":
		return KindSessionEnd
	default:
		return KindCustom
	}
}

func (k EventKind) String() string {
	switch k {
	case KindFeedbackSubmitted:
		return "feedback_submitted"
	case KindFeedbackEmojiSelected:
		return "feedback_emoji_selected"
	case KindErrorOccurred:
		return "error_occurred"
	case KindPageView:
		return "page_view"
	case KindScrollDepth:
		return "scroll_depth"
	case KindCTAClick:
		return "cta_click"
	case KindOutboundClick:
		return "outbound_click"
	case KindStepCompleted:
		return "step_completed"
	case KindGuideStarted:
		return "guide_started"
	case KindGuideCompleted:
		return "guide_completed"
	case KindSessionEnd:
		return "session_end"
	default:
		return "custom"
	}
}

// Event is the envelope every client send carries. EventID and IPAddress are
// filled in server-side.
type Event struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	UserID     string          `json:"userId"`
	SessionID  string          `json:"sessionId"`
	Timestamp  time.Time       `json:"timestamp"`
	PageURL    string          `json:"pageUrl"`
	PageTitle  string          `json:"pageTitle"`
	OS         string          `json:"os"`
	Browser    string          `json:"browser"`
	Device     string          `json:"device"`
	Referrer   string          `json:"referrer"`
	DurationMs int64           `json:"duration,omitempty"`
	IPAddress  string          `json:"-"`
	CustomData json.RawMessage `json:"customData,omitempty"`
}

func (e *Event) Kind() EventKind {
	return ParseEventKind(e.EventType)
}

// EventDetails holds the event-specific trailing fields. Only the fields for
// the event's own kind are ever populated; the rest stay zero.
type EventDetails struct {
	ScrollPercent  int    `json:"percent,omitempty"`
	ScrollPage     string `json:"page,omitempty"`
	ButtonText     string `json:"button_text,omitempty"`
	ButtonLocation string `json:"button_location,omitempty"`
	LinkURL        string `json:"link_url,omitempty"`
	LinkText       string `json:"link_text,omitempty"`
	StepNumber     int    `json:"stepNumber,omitempty"`
	StepTitle      string `json:"stepTitle,omitempty"`
	GuideID        string `json:"guideId,omitempty"`
	GuideName      string `json:"guideName,omitempty"`
	FirstVisit     bool   `json:"firstVisit,omitempty"`
}

// Details decodes the custom payload into the typed trailing fields. A missing
// or malformed payload yields the zero value; the envelope is still stored.
func (e *Event) Details() EventDetails {
	var d EventDetails
	if len(e.CustomData) > 0 {
		_ = json.Unmarshal(e.CustomData, &d)
	}
	return d
}

type TopPageResult struct {
	PageURL string `json:"pageUrl"`
	Count   uint64 `json:"count"`
}
