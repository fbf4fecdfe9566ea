package tracker

import (
	"go.uber.org/zap"

	"droidpilot/internal/action"
)

// Thresholds configures the tracker's veto points. Zero values fall back to
// the defaults below.
type Thresholds struct {
	// SameTapWarn is the consecutive identical-tap count after which the
	// tracker starts warning but still admits.
	SameTapWarn int
	// SameTapVeto is the consecutive identical-tap count after which taps at
	// that coordinate are vetoed to break a physical loop.
	SameTapVeto int
	// MaxAttempts is the per-action-type repeat ceiling without an
	// intervening different action.
	MaxAttempts int
}

const (
	defaultSameTapWarn = 5
	defaultSameTapVeto = 8
	defaultMaxAttempts = 10
)

func (t Thresholds) withDefaults() Thresholds {
	if t.SameTapWarn <= 0 {
		t.SameTapWarn = defaultSameTapWarn
	}
	if t.SameTapVeto <= 0 {
		t.SameTapVeto = defaultSameTapVeto
	}
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = defaultMaxAttempts
	}
	return t
}

// Verdict is the outcome of an admission check.
type Verdict struct {
	// Admitted reports whether the action may be executed.
	Admitted bool
	// Reason is a short explanation when the action was vetoed or admitted
	// with a caveat.
	Reason string
	// TypedBlind marks a Type action admitted without any focus evidence.
	// The permissive-admission policy lets it through anyway: a spurious
	// type against a non-input area is cheap, a vetoed legitimate one blocks
	// all progress.
	TypedBlind bool
}

// Tracker accumulates per-run admission state. It is owned by a single loop
// controller for the duration of one run; no internal locking.
type Tracker struct {
	logger     *zap.Logger
	thresholds Thresholds

	lastAction      action.Type
	attemptCounts   map[action.Type]int
	lastTap         *action.Coordinate
	sameTapCount    int
	inputBoxTapped  bool
	mustTypeNext    bool
	keyboardVisible bool
	typingAttempted bool
	lastTapWasInput bool
}

// New creates a tracker with the given thresholds.
func New(logger *zap.Logger, t Thresholds) *Tracker {
	return &Tracker{
		logger:        logger.Named("tracker"),
		thresholds:    t.withDefaults(),
		attemptCounts: map[action.Type]int{},
	}
}

// Reset clears all counters and flags. Called once at run start, never mid-run.
func (t *Tracker) Reset() {
	t.lastAction = ""
	t.attemptCounts = map[action.Type]int{}
	t.lastTap = nil
	t.sameTapCount = 0
	t.inputBoxTapped = false
	t.mustTypeNext = false
	t.keyboardVisible = false
	t.typingAttempted = false
	t.lastTapWasInput = false
}

// SetKeyboardVisible records the device's keyboard visibility. A visible
// keyboard is stronger evidence of input focus than any positional heuristic,
// so it forces the focus flags on.
func (t *Tracker) SetKeyboardVisible(visible bool) {
	t.keyboardVisible = visible
	if visible {
		t.inputBoxTapped = true
		t.mustTypeNext = true
		t.lastTapWasInput = true
	}
}

// MustTypeNext reports whether the last admitted tap landed on a likely input
// surface, meaning the planner should follow up with a Type action.
func (t *Tracker) MustTypeNext() bool { return t.mustTypeNext }

// KeyboardVisible reports the last keyboard visibility the tracker was told.
func (t *Tracker) KeyboardVisible() bool { return t.keyboardVisible }

// LastTapWasInput reports whether the most recent tap classified as input-likely.
func (t *Tracker) LastTapWasInput() bool { return t.lastTapWasInput }

// LastTap returns the coordinate of the most recent tap, or nil.
func (t *Tracker) LastTap() *action.Coordinate { return t.lastTap }

// Admit decides whether a proposed action may proceed and updates the
// tracker's counters and focus flags. The screen dimensions are needed to
// normalize absolute tap coordinates for region classification.
func (t *Tracker) Admit(a action.Action, screenW, screenH int, foregroundApp string) Verdict {
	t.attemptCounts[a.Type]++

	switch a.Type {
	case action.TypeType:
		return t.admitType()
	case action.TypeTap:
		return t.admitTap(a, screenW, screenH, foregroundApp)
	default:
		t.typingAttempted = false
		return t.admitOther(a)
	}
}

// admitType implements the deliberately permissive typing policy: typing is
// always admitted, but admissions without focus evidence are flagged so the
// caller can log them.
func (t *Tracker) admitType() Verdict {
	defer func() {
		// Consume the focus evidence either way.
		t.inputBoxTapped = false
		t.mustTypeNext = false
		t.typingAttempted = true
	}()

	if t.keyboardVisible || t.inputBoxTapped || t.lastTapWasInput {
		t.logger.Debug("Type admitted with focus evidence",
			zap.Bool("keyboard_visible", t.keyboardVisible),
			zap.Bool("input_box_tapped", t.inputBoxTapped))
		return Verdict{Admitted: true}
	}

	reason := "type requested without focus evidence"
	if t.typingAttempted {
		reason = "repeated type without keyboard"
	}
	t.logger.Warn("Type admitted blind", zap.String("reason", reason))
	return Verdict{Admitted: true, Reason: reason, TypedBlind: true}
}

func (t *Tracker) admitTap(a action.Action, screenW, screenH int, foregroundApp string) Verdict {
	t.typingAttempted = false
	coord := *a.Coordinate

	if t.lastTap != nil && coord.X == t.lastTap.X && coord.Y == t.lastTap.Y && coord.Mode == t.lastTap.Mode {
		t.sameTapCount++
		if t.sameTapCount > t.thresholds.SameTapVeto {
			t.logger.Warn("Vetoing tap: identical coordinate repeated beyond hard threshold",
				zap.Stringer("coordinate", coord),
				zap.Int("repeats", t.sameTapCount))
			return Verdict{Admitted: false, Reason: "identical tap repeated beyond hard threshold"}
		}
		if t.sameTapCount > t.thresholds.SameTapWarn {
			t.logger.Warn("Identical tap coordinate repeating",
				zap.Stringer("coordinate", coord),
				zap.Int("repeats", t.sameTapCount))
		}
	} else {
		t.sameTapCount = 0
		t.lastTap = &coord
	}

	fx, fy := coord.FractionalIn(screenW, screenH)
	region := Classify(fx, fy, foregroundApp)
	t.lastTapWasInput = region == RegionInputLikely
	if t.lastTapWasInput {
		t.logger.Debug("Tap classified input-likely",
			zap.Stringer("coordinate", coord),
			zap.String("app", foregroundApp))
		t.inputBoxTapped = true
		t.mustTypeNext = true
		// Optimistic; corrected by the next keyboard visibility probe.
		t.keyboardVisible = true
	}

	t.lastAction = a.Type
	return Verdict{Admitted: true}
}

func (t *Tracker) admitOther(a action.Action) Verdict {
	if v := t.checkRepeatCeiling(a.Type); !v.Admitted {
		return v
	}
	t.lastAction = a.Type
	return Verdict{Admitted: true}
}

// checkRepeatCeiling vetoes once when a single action type has repeated past
// the attempt ceiling with nothing different in between, then resets the
// counter so a single veto cannot deadlock the run.
func (t *Tracker) checkRepeatCeiling(typ action.Type) Verdict {
	if typ != t.lastAction {
		return Verdict{Admitted: true}
	}
	if t.attemptCounts[typ] <= t.thresholds.MaxAttempts {
		return Verdict{Admitted: true}
	}
	t.attemptCounts[typ] = 0
	t.logger.Warn("Vetoing action: type repeated beyond attempt ceiling",
		zap.String("type", string(typ)),
		zap.Int("ceiling", t.thresholds.MaxAttempts))
	return Verdict{Admitted: false, Reason: "action type repeated beyond attempt ceiling"}
}
