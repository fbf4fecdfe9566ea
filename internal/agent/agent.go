// internal/agent/agent.go

// Package agent runs the episode loop: observe the device, ask the planner
// for a decision, validate it, execute it, and repeat until the goal is
// declared reached, declared unreachable, or the loop runs out of budget.
package agent

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"droidpilot/internal/action"
	"droidpilot/internal/config"
	"droidpilot/internal/device"
	"droidpilot/internal/interpret"
	"droidpilot/internal/planner"
	"droidpilot/internal/tracker"
)

// Agent owns one episode at a time. It is not safe for concurrent use.
type Agent struct {
	dev     device.Device
	oracle  planner.Planner
	interp  *interpret.Interpreter
	tracker *tracker.Tracker
	cfg     config.AgentConfig
	logger  *zap.Logger
	shots   *screenshotStore

	// confirm is the step-confirmation input, created once per agent so bytes
	// buffered past a newline survive to the next prompt.
	confirm *bufio.Reader
}

// New wires an agent from its collaborators. The interpreter and tracker are
// internal concerns and are built here rather than injected.
func New(dev device.Device, oracle planner.Planner, cfg config.AgentConfig, logger *zap.Logger) *Agent {
	log := logger.Named("agent")
	return &Agent{
		dev:    dev,
		oracle: oracle,
		interp: interpret.New(log),
		tracker: tracker.New(log, tracker.Thresholds{
			SameTapWarn: cfg.Tracker.SameTapWarn,
			SameTapVeto: cfg.Tracker.SameTapVeto,
			MaxAttempts: cfg.Tracker.MaxAttempts,
		}),
		cfg:    cfg,
		logger: log,
		shots:  newScreenshotStore(cfg.Screenshots, log),
	}
}

// Run drives one episode toward the goal and always returns a report, even
// when the episode fails. The error return is reserved for invalid input.
func (a *Agent) Run(ctx context.Context, run config.RunConfig) (*Report, error) {
	if run.Goal == "" {
		return nil, fmt.Errorf("a goal is required")
	}

	report := &Report{
		Goal:        run.Goal,
		Status:      StatusInitial,
		ActionStats: make(map[string]int),
		StartTime:   time.Now(),
	}
	defer func() { report.Duration = time.Since(report.StartTime) }()

	a.tracker.Reset()
	stall := NewStallDetector(a.cfg.Stall)

	var (
		history       []planner.HistoryEntry
		lastType      action.Type
		sameTypeCount int
		lastDesc      string
		sameDescCount int
	)

	fail := func(code ErrorCode, reason string) {
		report.Status = StatusFailed
		report.Code = code
		report.Reason = reason
		a.logger.Warn("Episode failed", zap.String("code", string(code)), zap.String("reason", reason))
	}

	a.logger.Info("Episode starting",
		zap.String("goal", run.Goal),
		zap.Int("max_steps", a.cfg.MaxSteps),
	)

	for step := 1; step <= a.cfg.MaxSteps && !report.Status.Terminal(); step++ {
		if ctx.Err() != nil {
			fail(ErrCodeAborted, "context canceled")
			break
		}

		stepStart := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, a.cfg.StepTimeout)

		// Observe. A failed observation is a driver fault: it burns the step
		// but never ends the run by itself.
		snap, err := device.TakeSnapshot(stepCtx, a.dev)
		if err != nil {
			cancel()
			a.logger.Error("Observation failed", zap.Int("step", step), zap.Error(err))
			report.Steps = append(report.Steps, Step{
				Index: step, OK: false, Synthetic: true,
				Code: ErrCodeObservationFailure, Note: err.Error(),
				Duration: time.Since(stepStart),
			})
			a.sleep(ctx, a.cfg.Pause)
			continue
		}
		if snap.Width <= 1 || snap.Height <= 1 {
			cancel()
			fail(ErrCodeDegenerateScreen, fmt.Sprintf("screen reported as %dx%d", snap.Width, snap.Height))
			break
		}
		state := stateFromSnapshot(step, snap)
		a.shots.save(step, snap.PNG)

		// Progress check. A stall paired with a run of same-type decisions
		// gets one recovery episode; a stall without that pattern, or one
		// recovery cannot break, fails the run.
		repeats := stall.Observe(snap)
		if stall.Stalled() {
			cause := fmt.Sprintf("state unchanged for %d observations", repeats)
			recovered := sameTypeCount >= 2 && a.recover(stepCtx, report, &history, step, snap, run, cause)
			cancel()
			if recovered {
				stall.Reset()
				a.sleep(ctx, a.cfg.Pause)
				continue
			}
			fail(ErrCodeStalled, cause+", recovery exhausted")
			break
		}

		if a.cfg.KeyboardCheck {
			a.tracker.SetKeyboardVisible(snap.KeyboardVisible)
		}

		// Decide.
		req := planner.Request{
			Goal:            run.Goal,
			Context:         run.Context,
			Instructions:    run.Instructions,
			Screenshot:      snap.PNG,
			ScreenWidth:     snap.Width,
			ScreenHeight:    snap.Height,
			ForegroundApp:   snap.ForegroundApp,
			KeyboardVisible: snap.KeyboardVisible,
			MustTypeNext:    a.tracker.MustTypeNext(),
			History:         history,
			ActionStats:     report.ActionStats,
			StalledScreens:  repeats,
		}
		if sameDescCount >= 2 {
			req.RepeatedAction = lastDesc
		}

		reply, err := a.oracle.PlanAction(stepCtx, req)
		if err != nil {
			cancel()
			fail(ErrCodePlannerFailure, err.Error())
			break
		}

		// Interpret.
		act := a.interp.Parse(reply)
		a.logger.Info("Planner decided",
			zap.Int("step", step),
			zap.String("action", act.Describe()),
			zap.String("thought", act.Thought),
		)
		if report.Status == StatusInitial {
			report.Status = StatusRunning
		}

		// Ceiling on consecutive same-type decisions. Terminal actions are
		// exempt: declaring the outcome is always allowed.
		if act.Type == lastType {
			sameTypeCount++
		} else {
			lastType = act.Type
			sameTypeCount = 1
		}
		if !act.Terminal() && sameTypeCount > a.cfg.MaxConsecutiveSameType {
			cancel()
			report.Steps = append(report.Steps, Step{
				Index: step, State: state, Action: act, OK: false,
				Code: ErrCodeRepeatCeiling, Duration: time.Since(stepStart),
				Note: fmt.Sprintf("%d consecutive %s decisions", sameTypeCount, act.Type),
			})
			fail(ErrCodeRepeatCeiling,
				fmt.Sprintf("planner emitted %q %d times in a row", act.Type, sameTypeCount))
			break
		}

		if act.Describe() == lastDesc {
			sameDescCount++
		} else {
			lastDesc = act.Describe()
			sameDescCount = 1
		}

		// Terminal declarations end the episode without touching the device.
		if act.Type == action.TypeSuccess {
			cancel()
			report.Steps = append(report.Steps, Step{
				Index: step, State: state, Action: act, OK: true, Duration: time.Since(stepStart),
			})
			report.Status = StatusSucceeded
			break
		}
		if act.Type == action.TypeFailure {
			cancel()
			report.Steps = append(report.Steps, Step{
				Index: step, State: state, Action: act, OK: true, Duration: time.Since(stepStart),
			})
			report.Status = StatusFailed
			report.Reason = "planner declared the goal unreachable"
			break
		}

		// Admit.
		verdict := a.tracker.Admit(act, snap.Width, snap.Height, snap.ForegroundApp)
		if !verdict.Admitted {
			cancel()
			s := Step{
				Index: step, State: state, Action: act, OK: false,
				Code: ErrCodeVetoed, Note: verdict.Reason, Duration: time.Since(stepStart),
			}
			report.Steps = append(report.Steps, s)
			history = append(history, historyFrom(s))
			a.logger.Warn("Action vetoed", zap.Int("step", step), zap.String("reason", verdict.Reason))
			continue
		}

		// Act.
		execErr := a.execute(stepCtx, act, snap, verdict)
		cancel()

		s := Step{
			Index: step, State: state, Action: act,
			OK: execErr == nil, Duration: time.Since(stepStart),
		}
		if execErr != nil {
			s.Code = ErrCodeExecutionFailure
			s.Note = execErr.Error()
			a.logger.Error("Action execution failed", zap.Int("step", step), zap.Error(execErr))
		}
		report.Steps = append(report.Steps, s)
		history = append(history, historyFrom(s))
		report.ActionStats[string(act.Type)]++

		if a.cfg.StepConfirm {
			a.confirmStep()
		}
		a.sleep(ctx, a.cfg.Pause)
	}

	if !report.Status.Terminal() {
		fail(ErrCodeStepBudget, fmt.Sprintf("no terminal decision within %d steps", a.cfg.MaxSteps))
	}

	a.cleanup(report)
	a.logReport(report)
	return report, nil
}

// execute translates one admitted action into device calls.
func (a *Agent) execute(ctx context.Context, act action.Action, snap *device.Snapshot, verdict tracker.Verdict) error {
	switch act.Type {
	case action.TypeTap:
		x, y := act.Coordinate.PixelsIn(snap.Width, snap.Height)
		return a.dev.Tap(ctx, x, y)

	case action.TypeType:
		return a.executeType(ctx, act, snap, verdict)

	case action.TypePress:
		return a.dev.PressKey(ctx, int(act.Key))

	case action.TypeSwipe:
		x1, y1 := act.Swipe.Start.PixelsIn(snap.Width, snap.Height)
		x2, y2 := act.Swipe.End.PixelsIn(snap.Width, snap.Height)
		return a.dev.Swipe(ctx, x1, y1, x2, y2, act.Swipe.Duration)

	case action.TypeSwipeUp:
		return a.dev.Swipe(ctx, snap.Width/2, snap.Height*7/10, snap.Width/2, snap.Height*3/10, action.DefaultSwipeDuration)

	case action.TypeSwipeDown:
		return a.dev.Swipe(ctx, snap.Width/2, snap.Height*3/10, snap.Width/2, snap.Height*7/10, action.DefaultSwipeDuration)

	case action.TypeLaunchApp:
		return a.dev.LaunchApp(ctx, act.Package, act.Activity)

	case action.TypeWait:
		a.sleep(ctx, act.Duration)
		return nil

	case action.TypeScreenshot:
		// A fresh observation opens the next cycle anyway.
		return nil
	}
	return fmt.Errorf("unexecutable action type %q", act.Type)
}

// executeType types text through the focused field, falling back to direct
// injection when the planner is typing blind and no keyboard is up.
func (a *Agent) executeType(ctx context.Context, act action.Action, snap *device.Snapshot, verdict tracker.Verdict) error {
	if verdict.TypedBlind && !snap.KeyboardVisible {
		x, y := -1, -1
		if last := a.tracker.LastTap(); last != nil {
			x, y = last.PixelsIn(snap.Width, snap.Height)
		}
		if err := a.dev.DirectTextInject(ctx, act.Text, x, y); err == nil {
			return nil
		}
		a.logger.Debug("Direct text injection unavailable, falling back to input text")
	}
	return a.dev.TypeText(ctx, act.Text)
}

// cleanup returns the device to a neutral state. Failures here are logged
// and ignored; the episode outcome is already decided.
func (a *Agent) cleanup(report *Report) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.dev.DismissKeyboard(ctx); err != nil {
		a.logger.Debug("Cleanup: dismiss keyboard failed", zap.Error(err))
	}
	if err := a.dev.PressKey(ctx, int(action.KeyHome)); err != nil {
		a.logger.Debug("Cleanup: press home failed", zap.Error(err))
	}
	a.shots.finish(report.Status)
}

func (a *Agent) logReport(report *Report) {
	fields := []zap.Field{
		zap.String("status", string(report.Status)),
		zap.Int("steps", len(report.Steps)),
		zap.Duration("duration", report.Duration),
	}
	for name, count := range report.ActionStats {
		fields = append(fields, zap.Int("actions."+name, count))
	}
	if report.Reason != "" {
		fields = append(fields, zap.String("reason", report.Reason))
	}
	a.logger.Info("Episode finished", fields...)
}

// confirmStep blocks until the operator presses enter. Only reached when the
// run was started with step confirmation on.
func (a *Agent) confirmStep() {
	if a.confirm == nil {
		a.confirm = bufio.NewReader(os.Stdin)
	}
	fmt.Fprint(os.Stderr, "press enter for the next step... ")
	_, _ = a.confirm.ReadString('\n')
}

// sleep waits the given duration unless the context dies first.
func (a *Agent) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func historyFrom(s Step) planner.HistoryEntry {
	return planner.HistoryEntry{
		Step:    s.Index,
		Action:  s.Action.Describe(),
		OK:      s.OK,
		Note:    s.Note,
		Thought: s.Action.Thought,
	}
}
