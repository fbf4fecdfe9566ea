package planner

import (
	"fmt"
	"sort"
	"strings"
)

// historyWindow is how many trailing steps the user prompt replays in full.
const historyWindow = 5

const systemPrompt = `You are an expert Android automation operator. You control a real device
through discrete actions and you are shown a screenshot before every decision.

Reply with exactly one action as a fenced JSON block:

` + "```json" + `
{"action": "<name>", ...fields..., "thought": "<one sentence of reasoning>"}
` + "```" + `

Available actions:
- tap: {"action": "tap", "x": 0.5, "y": 0.3} where x and y are fractions of
  the screen in [0, 1], measured from the top-left corner.
- type: {"action": "type", "text": "..."} types into the focused input field.
  Only use this after tapping an input field and seeing the keyboard.
- press: {"action": "press", "key": "back"} or "home".
- swipe: {"action": "swipe", "start": {"x": 0.5, "y": 0.8}, "end": {"x": 0.5, "y": 0.2}}.
- swipe_up / swipe_down: scroll the screen without coordinates.
- launch_app: {"action": "launch_app", "package": "com.android.chrome"}.
- wait: {"action": "wait", "duration": 1000} pauses in milliseconds.
- screenshot: request a fresh observation without acting.
- success: declare the goal achieved. failure: declare it unreachable.

Rules:
- One action per reply. Never invent coordinates you cannot see.
- Tapping the same spot repeatedly will not fix an unresponsive element;
  change strategy instead.
- Declare success only when the screenshot proves the goal is complete.`

// buildUserPrompt renders the per-step message that accompanies the
// screenshot. The screenshot itself is attached as an image part.
func buildUserPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "GOAL: %s\n", req.Goal)
	if req.Context != "" {
		fmt.Fprintf(&b, "CONTEXT: %s\n", req.Context)
	}
	if len(req.Instructions) > 0 {
		b.WriteString("STANDING INSTRUCTIONS:\n")
		for _, ins := range req.Instructions {
			fmt.Fprintf(&b, "- %s\n", ins)
		}
	}

	b.WriteString("\nCURRENT STATE:\n")
	fmt.Fprintf(&b, "- Foreground app: %s\n", req.ForegroundApp)
	fmt.Fprintf(&b, "- Screen: %dx%d px\n", req.ScreenWidth, req.ScreenHeight)
	fmt.Fprintf(&b, "- Keyboard visible: %t\n", req.KeyboardVisible)
	if req.MustTypeNext {
		b.WriteString("- An input field was just focused. The expected next action is \"type\".\n")
	}

	writeHistory(&b, req.History)
	writeWarnings(&b, req)
	writeStats(&b, req.ActionStats)

	b.WriteString("\nThe current screenshot is attached. Decide the single next action.")
	return b.String()
}

func writeHistory(b *strings.Builder, history []HistoryEntry) {
	if len(history) == 0 {
		b.WriteString("\nHISTORY: none, this is the first step.\n")
		return
	}

	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
		fmt.Fprintf(b, "\nHISTORY (%d earlier steps omitted):\n", start)
	} else {
		b.WriteString("\nHISTORY:\n")
	}
	for _, h := range history[start:] {
		status := "ok"
		if !h.OK {
			status = "FAILED"
		}
		fmt.Fprintf(b, "- step %d: %s [%s]", h.Step, h.Action, status)
		if h.Note != "" {
			fmt.Fprintf(b, " (%s)", h.Note)
		}
		b.WriteString("\n")
	}
}

func writeWarnings(b *strings.Builder, req Request) {
	if req.RepeatedAction == "" && req.StalledScreens == 0 {
		return
	}
	b.WriteString("\nWARNINGS:\n")
	if req.RepeatedAction != "" {
		fmt.Fprintf(b, "- You have repeated %q several times without progress. Choose a different approach.\n", req.RepeatedAction)
	}
	if req.StalledScreens > 0 {
		fmt.Fprintf(b, "- The screen has not changed for %d consecutive observations. Your actions may not be landing.\n", req.StalledScreens)
	}
}

func writeStats(b *strings.Builder, stats map[string]int) {
	if len(stats) == 0 {
		return
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, stats[name]))
	}
	fmt.Fprintf(b, "\nACTIONS SO FAR: %s\n", strings.Join(parts, ", "))
}
