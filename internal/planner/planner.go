// Package planner asks a vision model what to do next. The planner sees the
// current screenshot plus a textual account of the episode so far and returns
// the model's raw reply; turning that reply into a typed action is the
// interpreter's job, not ours.
package planner

import (
	"context"
)

// Request carries everything the planner needs for one decision.
type Request struct {
	// Goal is the natural language objective for the whole episode.
	Goal string
	// Context is optional operator-supplied background for the goal.
	Context string
	// Instructions are standing rules merged from defaults and CLI flags.
	Instructions []string

	// Screenshot is the current screen as PNG bytes.
	Screenshot   []byte
	ScreenWidth  int
	ScreenHeight int

	ForegroundApp   string
	KeyboardVisible bool
	MustTypeNext    bool

	// History is the episode so far, oldest first.
	History []HistoryEntry
	// ActionStats counts executed actions by type name.
	ActionStats map[string]int

	// RepeatedAction names an action the agent keeps emitting, when the
	// tracker has flagged one. Empty otherwise.
	RepeatedAction string
	// StalledScreens is how many consecutive observations looked identical.
	StalledScreens int
}

// HistoryEntry is one prior step as the planner should see it.
type HistoryEntry struct {
	Step    int
	Action  string
	OK      bool
	Note    string
	Thought string
}

// Planner is the decision oracle. Implementations return the model's raw
// textual reply; an error means no reply could be obtained at all.
type Planner interface {
	PlanAction(ctx context.Context, req Request) (string, error)
}
