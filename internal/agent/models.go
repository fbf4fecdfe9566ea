// internal/agent/models.go
package agent

import (
	"encoding/base64"
	"time"

	"droidpilot/internal/action"
	"droidpilot/internal/device"
)

// EpisodeStatus represents where the episode stands. Transitions are
// monotone: once a terminal status is reached it never changes again.
type EpisodeStatus string

const (
	StatusInitial   EpisodeStatus = "INITIAL"   // The episode has not started yet.
	StatusRunning   EpisodeStatus = "RUNNING"   // The loop is observing and acting.
	StatusSucceeded EpisodeStatus = "SUCCEEDED" // The planner declared the goal achieved.
	StatusFailed    EpisodeStatus = "FAILED"    // The goal is unreachable or the loop gave up.
)

// Terminal reports whether the status admits no further transitions.
func (s EpisodeStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// DeviceState is one observation of the device, derived from a transport
// snapshot and annotated with the step that produced it.
type DeviceState struct {
	Step            int       `json:"step"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	ForegroundApp   string    `json:"foreground_app"`
	KeyboardVisible bool      `json:"keyboard_visible"`
	Timestamp       time.Time `json:"timestamp"`

	// PNG holds the raw screenshot. It is not serialized; EncodedPNG
	// provides the wire form when one is needed.
	PNG []byte `json:"-"`
}

// EncodedPNG returns the screenshot as base64 for embedding in reports.
func (s *DeviceState) EncodedPNG() string {
	return base64.StdEncoding.EncodeToString(s.PNG)
}

func stateFromSnapshot(step int, snap *device.Snapshot) *DeviceState {
	return &DeviceState{
		Step:            step,
		Width:           snap.Width,
		Height:          snap.Height,
		ForegroundApp:   snap.ForegroundApp,
		KeyboardVisible: snap.KeyboardVisible,
		Timestamp:       snap.Taken,
		PNG:             snap.PNG,
	}
}

// Step records one full decide-act cycle, including synthetic recovery steps
// the loop injects on its own initiative.
type Step struct {
	Index    int           `json:"index"`
	State    *DeviceState  `json:"state,omitempty"`
	Action   action.Action `json:"action"`
	OK       bool          `json:"ok"`
	Code     ErrorCode     `json:"code,omitempty"`
	Note     string        `json:"note,omitempty"`
	Duration time.Duration `json:"duration"`
	// Synthetic marks steps the loop generated itself rather than the
	// planner (recovery actions, cleanup).
	Synthetic bool `json:"synthetic,omitempty"`
}

// Report is the final account of an episode.
type Report struct {
	Goal        string         `json:"goal"`
	Status      EpisodeStatus  `json:"status"`
	Code        ErrorCode      `json:"code,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Steps       []Step         `json:"steps"`
	ActionStats map[string]int `json:"action_stats"`
	StartTime   time.Time      `json:"start_time"`
	Duration    time.Duration  `json:"duration"`
}
