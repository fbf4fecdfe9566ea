package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildUserPrompt_FirstStep(t *testing.T) {
	req := Request{
		Goal:          "Open the settings app",
		ForegroundApp: "com.android.launcher3",
		ScreenWidth:   1080,
		ScreenHeight:  2340,
	}

	prompt := buildUserPrompt(req)

	assert.Contains(t, prompt, "GOAL: Open the settings app")
	assert.Contains(t, prompt, "Foreground app: com.android.launcher3")
	assert.Contains(t, prompt, "Screen: 1080x2340 px")
	assert.Contains(t, prompt, "HISTORY: none, this is the first step.")
	assert.NotContains(t, prompt, "WARNINGS")
	assert.NotContains(t, prompt, "ACTIONS SO FAR")
}

func TestBuildUserPrompt_HistoryWindow(t *testing.T) {
	req := Request{Goal: "g"}
	for i := 1; i <= 8; i++ {
		req.History = append(req.History, HistoryEntry{Step: i, Action: "tap", OK: true})
	}

	prompt := buildUserPrompt(req)

	// 8 steps, window of 5: steps 1-3 are summarized away.
	assert.Contains(t, prompt, "HISTORY (3 earlier steps omitted):")
	assert.NotContains(t, prompt, "step 3:")
	assert.Contains(t, prompt, "step 4:")
	assert.Contains(t, prompt, "step 8:")
}

func TestBuildUserPrompt_FailedStepsMarked(t *testing.T) {
	req := Request{
		Goal: "g",
		History: []HistoryEntry{
			{Step: 1, Action: "tap (500, 500)", OK: true},
			{Step: 2, Action: "type \"hello\"", OK: false, Note: "no focused field"},
		},
	}

	prompt := buildUserPrompt(req)

	assert.Contains(t, prompt, "step 1: tap (500, 500) [ok]")
	assert.Contains(t, prompt, "step 2: type \"hello\" [FAILED] (no focused field)")
}

func TestBuildUserPrompt_Warnings(t *testing.T) {
	req := Request{
		Goal:           "g",
		RepeatedAction: "tap (500, 500)",
		StalledScreens: 4,
	}

	prompt := buildUserPrompt(req)

	assert.Contains(t, prompt, "WARNINGS:")
	assert.Contains(t, prompt, `repeated "tap (500, 500)"`)
	assert.Contains(t, prompt, "not changed for 4 consecutive observations")
}

func TestBuildUserPrompt_StatsSortedAndInstructions(t *testing.T) {
	req := Request{
		Goal:         "g",
		Instructions: []string{"never open the camera", "prefer dark mode"},
		ActionStats:  map[string]int{"type": 1, "tap": 7, "press": 2},
	}

	prompt := buildUserPrompt(req)

	assert.Contains(t, prompt, "- never open the camera")
	assert.Contains(t, prompt, "- prefer dark mode")
	// Stats are emitted in a stable alphabetical order.
	assert.Contains(t, prompt, "ACTIONS SO FAR: press=2, tap=7, type=1")
}

func TestBuildUserPrompt_MustTypeHint(t *testing.T) {
	prompt := buildUserPrompt(Request{Goal: "g", MustTypeNext: true})
	assert.Contains(t, prompt, `expected next action is "type"`)

	prompt = buildUserPrompt(Request{Goal: "g"})
	assert.NotContains(t, prompt, "expected next action")
}

func TestSystemPrompt_DescribesActionSet(t *testing.T) {
	// Every action the interpreter understands should be offered to the
	// model, otherwise it can never choose it.
	for _, name := range []string{
		"tap", "type", "press", "swipe", "swipe_up", "swipe_down",
		"launch_app", "wait", "screenshot", "success", "failure",
	} {
		assert.True(t, strings.Contains(systemPrompt, name), "system prompt missing action %q", name)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"googleapi: Error 429: RESOURCE_EXHAUSTED", true},
		{"rpc error: code = Unavailable desc = transport closing", true},
		{"Post \"https://...\": dial tcp: connection refused", true},
		{"context deadline exceeded (timeout)", true},
		{"googleapi: Error 400: invalid argument", false},
		{"googleapi: Error 403: permission denied", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isRetryable(errString(tc.msg)), "msg: %s", tc.msg)
	}
	assert.False(t, isRetryable(nil))
}

type errString string

func (e errString) Error() string { return string(e) }
