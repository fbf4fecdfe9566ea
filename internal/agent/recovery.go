// internal/agent/recovery.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"droidpilot/internal/action"
	"droidpilot/internal/config"
	"droidpilot/internal/device"
	"droidpilot/internal/planner"
)

// recoveryPlaceholder is the throwaway text typed to unstick a focused field.
const recoveryPlaceholder = " "

// launchTargets maps app mentions in the goal or context to launchable
// package ids, used to guess a stuck launch target during recovery. Checked
// in order; the first mention found wins.
var launchTargets = []struct {
	mention string
	pkg     string
}{
	{"chrome", "com.android.chrome"},
	{"firefox", "org.mozilla.firefox"},
	{"browser", "com.android.chrome"},
	{"gmail", "com.google.android.gm"},
	{"email", "com.google.android.gm"},
	{"messages", "com.android.messaging"},
	{"settings", "com.android.settings"},
	{"camera", "com.android.camera"},
	{"photos", "com.google.android.apps.photos"},
	{"maps", "com.google.android.apps.maps"},
	{"youtube", "com.google.android.youtube"},
	{"play store", "com.android.vending"},
}

// launchHint scans the goal and context for a mention of a known app that is
// not already in the foreground. Returns the empty string when nothing
// usable is found.
func launchHint(goal, contextText, foregroundApp string) string {
	text := strings.ToLower(goal + " " + contextText)
	for _, t := range launchTargets {
		if strings.Contains(text, t.mention) && t.pkg != foregroundApp {
			return t.pkg
		}
	}
	return ""
}

// recover walks the strategy ladder for one stall episode: launch a
// suspected stuck target and verify it came to the foreground, type a
// placeholder into a focused field, inject text directly at the last
// input-likely tap, and finally press back. Each attempt is tried at most
// once, recorded as a synthetic step, and the first success ends the
// episode's recovery. Returns false when no strategy succeeded.
func (a *Agent) recover(ctx context.Context, report *Report, history *[]planner.HistoryEntry,
	step int, snap *device.Snapshot, run config.RunConfig, cause string) bool {

	attempt := func(name string, act action.Action, err error) {
		a.logger.Info("Recovery strategy attempted",
			zap.Int("step", step),
			zap.String("strategy", name),
			zap.String("cause", cause),
			zap.Bool("ok", err == nil),
		)
		s := Step{
			Index: step, Action: act, OK: err == nil, Synthetic: true,
			Note: fmt.Sprintf("recovery %s: %s", name, cause),
		}
		if err != nil {
			s.Code = ErrCodeExecutionFailure
		}
		report.Steps = append(report.Steps, s)
		*history = append(*history, historyFrom(s))
	}

	if pkg := launchHint(run.Goal, run.Context, snap.ForegroundApp); pkg != "" {
		err := a.dev.LaunchApp(ctx, pkg, "")
		if err == nil {
			a.sleep(ctx, a.cfg.Pause)
			current, ferr := a.dev.ForegroundApp(ctx)
			if ferr != nil || current != pkg {
				err = fmt.Errorf("launched %s but foreground is %q", pkg, current)
			}
		}
		attempt("launch_target", action.NewLaunchApp(pkg, ""), err)
		if err == nil {
			return true
		}
	}

	if snap.KeyboardVisible {
		err := a.dev.TypeText(ctx, recoveryPlaceholder)
		attempt("placeholder_type", action.NewType(recoveryPlaceholder), err)
		if err == nil {
			return true
		}
	}

	if last := a.tracker.LastTap(); last != nil && a.tracker.LastTapWasInput() {
		x, y := last.PixelsIn(snap.Width, snap.Height)
		err := a.dev.DirectTextInject(ctx, recoveryPlaceholder, x, y)
		attempt("direct_inject", action.NewType(recoveryPlaceholder), err)
		if err == nil {
			return true
		}
	}

	err := a.dev.PressKey(ctx, int(action.KeyBack))
	attempt("press_back", action.NewPress(action.KeyBack), err)
	return err == nil
}
