package guide

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Storage is the persistence the tracker writes through, the role the
// browser's localStorage played. Implementations need not be safe for
// concurrent use; the tracker itself is single-owner.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// MemoryStorage is a map-backed Storage.
type MemoryStorage struct {
	m map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) {
	s.m[key] = value
}

func (s *MemoryStorage) Delete(key string) {
	delete(s.m, key)
}

// Result is the outcome a visitor picked for a step.
type Result string

const (
	ResultSuccess Result = "success"
	ResultError   Result = "error"
)

const (
	progressKey = "guide-progress"
	countedKey  = "guide-counted"
)

// Tracker is the guide progress state machine. It is constructed explicitly
// and given its collaborators instead of living in a shared global.
type Tracker struct {
	os          OS
	currentStep int
	completed   map[string]struct{}
	selected    map[string]Result
	storage     Storage

	completionShown bool

	// OnFirstStart fires once per storage scope, when the first step is
	// completed for the first time.
	OnFirstStart func()
	// OnCompleted fires once when the visitor advances past the final step.
	OnCompleted func()
}

func NewTracker(os OS, storage Storage) *Tracker {
	if !os.Valid() {
		os = OSMac
	}
	return &Tracker{
		os:        os,
		completed: make(map[string]struct{}),
		selected:  make(map[string]Result),
		storage:   storage,
	}
}

func (t *Tracker) OS() OS { return t.os }

func (t *Tracker) CurrentStep() int { return t.currentStep }

// CompletedSteps returns a copy of the completed set.
func (t *Tracker) CompletedSteps() map[string]struct{} {
	out := make(map[string]struct{}, len(t.completed))
	for id := range t.completed {
		out[id] = struct{}{}
	}
	return out
}

func (t *Tracker) IsCompleted(id string) bool {
	_, ok := t.completed[id]
	return ok
}

// ProgressPercent is the share of the active track's steps completed.
func (t *Tracker) ProgressPercent() int {
	total := StepCount(t.os)
	if total == 0 {
		return 0
	}
	return len(t.completed) * 100 / total
}

// CompleteStep marks a step done and persists. Completing the track's first
// step for the first time ever fires OnFirstStart, guarded by a stored flag
// so revisits never double count.
func (t *Tracker) CompleteStep(id string) error {
	if StepIndex(t.os, id) < 0 {
		return fmt.Errorf("step %q does not belong to the %s track", id, t.os)
	}
	t.completed[id] = struct{}{}
	t.persist()

	if id == startStepID(t.os) && !t.hasCountedUser() {
		t.markCounted()
		if t.OnFirstStart != nil {
			t.OnFirstStart()
		}
	}
	return nil
}

// SelectResult records which outcome button the visitor chose for a step.
func (t *Tracker) SelectResult(id string, result Result) error {
	if StepIndex(t.os, id) < 0 {
		return fmt.Errorf("step %q does not belong to the %s track", id, t.os)
	}
	t.selected[id] = result
	t.persist()
	return nil
}

func (t *Tracker) SelectedResult(id string) (Result, bool) {
	r, ok := t.selected[id]
	return r, ok
}

// GoToNextStep advances to the next step of the active track. Advancing past
// the final step marks the guide completed and fires OnCompleted exactly
// once; further calls are no-ops.
func (t *Tracker) GoToNextStep() {
	if t.currentStep < StepCount(t.os)-1 {
		t.currentStep++
		t.persist()
		return
	}
	if t.completionShown {
		return
	}
	t.completionShown = true
	if t.OnCompleted != nil {
		t.OnCompleted()
	}
}

// GoToStep jumps to a 0-based step index.
func (t *Tracker) GoToStep(index int) error {
	if index < 0 || index >= StepCount(t.os) {
		return fmt.Errorf("step index %d out of range for the %s track", index, t.os)
	}
	t.currentStep = index
	t.persist()
	return nil
}

// SwitchOS clears all progress and re-targets the other track. The two
// tracks never merge.
func (t *Tracker) SwitchOS(os OS) error {
	if !os.Valid() {
		return fmt.Errorf("unknown os %q", os)
	}
	t.os = os
	t.currentStep = 0
	t.completed = make(map[string]struct{})
	t.selected = make(map[string]Result)
	t.completionShown = false
	t.persist()
	return nil
}

// EncodeQuery serializes progress into shareable URL parameters. Steps are
// 1-based in the URL; the completed set collapses to a min-max range.
func (t *Tracker) EncodeQuery() url.Values {
	values := url.Values{}
	values.Set("os", string(t.os))

	if t.currentStep == 0 && len(t.completed) == 0 {
		return values
	}

	values.Set("current", strconv.Itoa(t.currentStep+1))

	indices := t.completedIndices()
	if len(indices) > 0 {
		min, max := indices[0]+1, indices[len(indices)-1]+1
		if min == max {
			values.Set("done", strconv.Itoa(min))
		} else {
			values.Set("done", fmt.Sprintf("%d-%d", min, max))
		}
	}
	return values
}

func (t *Tracker) completedIndices() []int {
	var indices []int
	for id := range t.completed {
		if i := StepIndex(t.os, id); i >= 0 {
			indices = append(indices, i)
		}
	}
	sort.Ints(indices)
	return indices
}

// LoadFromQuery reconstructs progress from URL parameters. When any known
// parameter is present the URL wins outright; otherwise the tracker starts
// fresh and stored progress is ignored, so a shared link always opens clean
// for a new visitor. The legacy step/completed parameters are still honored.
func (t *Tracker) LoadFromQuery(values url.Values) {
	currentParam := values.Get("current")
	doneParam := values.Get("done")
	legacyStep := values.Get("step")
	legacyCompleted := values.Get("completed")

	if currentParam == "" && doneParam == "" && legacyStep == "" && legacyCompleted == "" {
		t.currentStep = 0
		t.completed = make(map[string]struct{})
		t.selected = make(map[string]Result)
		return
	}

	if currentParam != "" {
		// 1-based in the URL.
		n, err := strconv.Atoi(currentParam)
		if err != nil || n < 1 {
			n = 1
		}
		t.currentStep = clampStep(t.os, n-1)
	} else if legacyStep != "" {
		// Legacy format was 0-based.
		n, err := strconv.Atoi(legacyStep)
		if err != nil || n < 0 {
			n = 0
		}
		t.currentStep = clampStep(t.os, n)
	}

	ids := StepIDs(t.os)
	t.completed = make(map[string]struct{})
	switch {
	case doneParam != "":
		lo, hi, ok := parseDoneRange(doneParam)
		if ok {
			for i := lo; i <= hi && i < len(ids); i++ {
				if i >= 0 {
					t.completed[ids[i]] = struct{}{}
				}
			}
		}
	case legacyCompleted != "":
		for _, id := range strings.Split(legacyCompleted, ",") {
			id = strings.TrimSpace(id)
			if StepIndex(t.os, id) >= 0 {
				t.completed[id] = struct{}{}
			}
		}
	}

	// Chosen result buttons only live in storage, restore them when the URL
	// carried real progress.
	t.selected = make(map[string]Result)
	if blob, ok := t.storage.Get(progressKey); ok {
		var saved persistedProgress
		if err := json.Unmarshal([]byte(blob), &saved); err == nil {
			for id, r := range saved.Selected {
				t.selected[id] = r
			}
		}
	}
}

// parseDoneRange accepts "2" or "1-3", 1-based, returning 0-based bounds.
func parseDoneRange(s string) (lo, hi int, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	first, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	lo = first - 1
	hi = lo
	if len(parts) == 2 {
		second, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, false
		}
		hi = second - 1
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo, hi, true
}

func clampStep(os OS, index int) int {
	if index < 0 {
		return 0
	}
	if max := StepCount(os) - 1; index > max {
		return max
	}
	return index
}

type persistedProgress struct {
	OS        OS                `json:"os"`
	Current   int               `json:"currentStep"`
	Completed []string          `json:"completedSteps"`
	Selected  map[string]Result `json:"selectedButtons"`
	Timestamp int64             `json:"timestamp"`
}

func (t *Tracker) persist() {
	completed := make([]string, 0, len(t.completed))
	for _, i := range t.completedIndices() {
		completed = append(completed, StepIDs(t.os)[i])
	}
	blob, err := json.Marshal(persistedProgress{
		OS:        t.os,
		Current:   t.currentStep,
		Completed: completed,
		Selected:  t.selected,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	t.storage.Set(progressKey, string(blob))
}

func (t *Tracker) hasCountedUser() bool {
	v, _ := t.storage.Get(countedKey)
	return v == "true"
}

func (t *Tracker) markCounted() {
	t.storage.Set(countedKey, "true")
}
