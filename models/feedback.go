package models

import "time"

// Emoji is the satisfaction reaction attached to a feedback submission.
type Emoji string

const (
	EmojiLove    Emoji = "love"
	EmojiGood    Emoji = "good"
	EmojiNeutral Emoji = "neutral"
	EmojiSad     Emoji = "sad"
)

func (e Emoji) Valid() bool {
	switch e {
	case EmojiLove, EmojiGood, EmojiNeutral, EmojiSad:
		return true
	}
	return false
}

// AwaitsComment reports whether the reaction is extreme enough that the UI
// waits for optional free text before submitting. good/neutral submit
// immediately.
func (e Emoji) AwaitsComment() bool {
	return e == EmojiLove || e == EmojiSad
}

// FeedbackEvent is one appended feedback row. Append-only; there is no update
// or delete path.
type FeedbackEvent struct {
	Timestamp        time.Time `json:"timestamp"`
	UserID           string    `json:"userId"`
	SessionID        string    `json:"sessionId"`
	Emoji            Emoji     `json:"emoji"`
	FeedbackText     string    `json:"feedbackText,omitempty"`
	Email            string    `json:"email,omitempty"`
	CompletionTime   string    `json:"completionTime,omitempty"`
	CompletedSteps   int       `json:"completedSteps,omitempty"`
	LastStep         string    `json:"lastStep,omitempty"`
	DarkMode         bool      `json:"darkMode,omitempty"`
	FirstVisit       bool      `json:"firstVisit,omitempty"`
	ErrorSteps       string    `json:"errorSteps,omitempty"`
	ErrorResolved    bool      `json:"errorResolved,omitempty"`
	ScreenResolution string    `json:"screenResolution,omitempty"`
	OS               string    `json:"os,omitempty"`
	Browser          string    `json:"browser,omitempty"`
}

// ErrorEvent is one appended client-error row.
type ErrorEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"userId"`
	SessionID    string    `json:"sessionId"`
	PageURL      string    `json:"pageUrl"`
	StepNumber   int       `json:"stepNumber,omitempty"`
	StepName     string    `json:"stepName,omitempty"`
	ErrorType    string    `json:"errorType"`
	ErrorMessage string    `json:"errorMessage"`
	ErrorDetails string    `json:"errorDetails,omitempty"`
	OS           string    `json:"os,omitempty"`
	Browser      string    `json:"browser,omitempty"`
}

// UniqueUser tracks first/last sighting of a client-generated user id. The id
// is self-reported and unverified; uniqueness is only as reliable as the
// client's storage.
type UniqueUser struct {
	UserID    string    `json:"userId"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

type FeedbackStats struct {
	Total             int            `json:"total"`
	EmojiCounts       map[Emoji]int  `json:"emojiCounts"`
	WithFeedbackText  int            `json:"withFeedbackText"`
	AvgCompletionMins int            `json:"avgCompletionTime"`
}

type ErrorStats struct {
	Total   int            `json:"total"`
	ByStep  map[string]int `json:"byStep"`
	Last24h int            `json:"last24h"`
}
