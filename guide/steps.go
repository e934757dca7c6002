// Package guide models the installation walkthrough: a fixed 6-step track
// per operating system, with progress encoded in shareable URL parameters.
package guide

// OS selects which step track is active. The two tracks are mutually
// exclusive state spaces.
type OS string

const (
	OSMac     OS = "mac"
	OSWindows OS = "windows"
)

func (o OS) Valid() bool {
	return o == OSMac || o == OSWindows
}

var stepTracks = map[OS][]string{
	OSMac:     {"start", "homebrew", "node", "claude", "auth", "project"},
	OSWindows: {"start-windows", "git-windows", "node-windows", "claude-windows", "auth-windows", "project-windows"},
}

var stepTitles = map[string]string{
	"start":           "Before you start",
	"homebrew":        "Install Homebrew",
	"node":            "Install Node.js",
	"claude":          "Install Claude Code",
	"auth":            "Set up authentication",
	"project":         "First project",
	"start-windows":   "Before you start",
	"git-windows":     "Install Git for Windows",
	"node-windows":    "Install Node.js",
	"claude-windows":  "Install Claude Code",
	"auth-windows":    "Set up authentication",
	"project-windows": "First project",
}

// StepIDs returns the ordered step ids for an OS track.
func StepIDs(os OS) []string {
	ids := stepTracks[os]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func StepCount(os OS) int {
	return len(stepTracks[os])
}

// StepIndex returns the 0-based position of a step id in the OS track, or -1
// when the id does not belong to it.
func StepIndex(os OS, id string) int {
	for i, s := range stepTracks[os] {
		if s == id {
			return i
		}
	}
	return -1
}

// StepTitle returns the display title for a step id.
func StepTitle(id string) string {
	if t, ok := stepTitles[id]; ok {
		return t
	}
	return id
}

// startStepID is the step whose completion counts a new user.
func startStepID(os OS) string {
	return stepTracks[os][0]
}
