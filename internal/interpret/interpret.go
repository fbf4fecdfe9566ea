// Package interpret turns a semi-structured, occasionally malformed planner
// reply into a typed action. Parsing is two-phase: a structured payload block
// is preferred, then free-text inference, and a conservative default means the
// caller always gets a legal action back. Parse never fails.
package interpret

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"droidpilot/internal/action"
)

// canonicalNames maps normalized action-name substrings to action types.
// Matching is case-insensitive and substring-tolerant: "TAP_ON_ELEMENT"
// still resolves to a tap. Order matters where names overlap ("swipe_up"
// must be checked before "swipe").
var canonicalNames = []struct {
	name string
	typ  action.Type
}{
	{"swipe_up", action.TypeSwipeUp},
	{"swipe up", action.TypeSwipeUp},
	{"swipe_down", action.TypeSwipeDown},
	{"swipe down", action.TypeSwipeDown},
	{"swipe", action.TypeSwipe},
	{"drag", action.TypeSwipe},
	{"scroll_up", action.TypeSwipeUp},
	{"scroll_down", action.TypeSwipeDown},
	{"launch", action.TypeLaunchApp},
	{"open_app", action.TypeLaunchApp},
	{"tap", action.TypeTap},
	{"click", action.TypeTap},
	{"touch", action.TypeTap},
	{"type", action.TypeType},
	{"input", action.TypeType},
	{"write", action.TypeType},
	{"enter_text", action.TypeType},
	{"press", action.TypePress},
	{"wait", action.TypeWait},
	{"screenshot", action.TypeScreenshot},
	{"success", action.TypeSuccess},
	{"complete", action.TypeSuccess},
	{"done", action.TypeSuccess},
	{"failure", action.TypeFailure},
	{"fail", action.TypeFailure},
	{"back", action.TypePress},
	{"home", action.TypePress},
}

// Interpreter parses planner replies. It holds only a logger; parsing itself
// is stateless.
type Interpreter struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Interpreter {
	return &Interpreter{logger: logger.Named("interpret")}
}

// Parse converts a raw planner reply into an action. It never returns an
// error: a reply with no recognizable structure falls through the free-text
// rules and, in the worst case, lands on the conservative default Press(home),
// which is always legal and recoverable.
func (i *Interpreter) Parse(reply string) action.Action {
	if p := extractPayload(reply); p != nil {
		if a, ok := i.fromPayload(p); ok {
			return a
		}
		i.logger.Debug("Structured payload present but unusable, inferring from text")
	}
	return i.inferFromText(reply)
}

// fromPayload attempts Phase 1: build a validated action from the decoded
// payload record. Missing or non-convertible required fields reject the
// payload and punt to Phase 2.
func (i *Interpreter) fromPayload(p payload) (action.Action, bool) {
	name, ok := p.actionName()
	if !ok {
		return action.Action{}, false
	}

	typ, ok := resolveName(name)
	if !ok {
		i.logger.Debug("Unrecognized action name in payload", zap.String("name", name))
		return action.Action{}, false
	}

	var a action.Action
	switch typ {
	case action.TypeTap:
		x, y, ok := p.coordinate()
		if !ok {
			return action.Action{}, false
		}
		a = action.NewTap(action.NormalizeCoordinate(x, y))

	case action.TypeType:
		text, ok := p.text()
		if !ok {
			return action.Action{}, false
		}
		a = action.NewType(text)

	case action.TypePress:
		a, ok = pressFrom(p, name)
		if !ok {
			return action.Action{}, false
		}

	case action.TypeSwipe:
		sx, sy, ex, ey, ok := p.swipe()
		if !ok {
			return action.Action{}, false
		}
		d := action.DefaultSwipeDuration
		if ms, ok := p.durationMs(); ok {
			d = time.Duration(ms) * time.Millisecond
		}
		a = action.NewSwipe(action.NormalizeCoordinate(sx, sy), action.NormalizeCoordinate(ex, ey), d)

	case action.TypeSwipeUp:
		a = action.NewSwipeUp()
	case action.TypeSwipeDown:
		a = action.NewSwipeDown()

	case action.TypeLaunchApp:
		pkg, activity, ok := p.packageID()
		if !ok {
			return action.Action{}, false
		}
		a = action.NewLaunchApp(pkg, activity)

	case action.TypeWait:
		ms, ok := p.durationMs()
		if !ok {
			ms = 1000
		}
		a = action.NewWait(time.Duration(ms) * time.Millisecond)

	case action.TypeScreenshot:
		a = action.NewScreenshot()
	case action.TypeSuccess:
		a = action.NewSuccess()
	case action.TypeFailure:
		a = action.NewFailure()
	default:
		return action.Action{}, false
	}

	if err := a.Validate(); err != nil {
		i.logger.Debug("Payload action failed validation", zap.Error(err))
		return action.Action{}, false
	}
	a.Thought = p.thought()
	return a, true
}

// resolveName matches a reply's action name against the canonical table,
// exact first, then substring.
func resolveName(name string) (action.Type, bool) {
	for _, c := range canonicalNames {
		if name == c.name {
			return c.typ, true
		}
	}
	for _, c := range canonicalNames {
		if strings.Contains(name, c.name) {
			return c.typ, true
		}
	}
	return "", false
}

// pressFrom builds a Press action from the payload's key field, or from the
// action name itself when the name was "back"/"home".
func pressFrom(p payload, name string) (action.Action, bool) {
	if strings.Contains(name, "back") {
		return action.NewPress(action.KeyBack), true
	}
	if strings.Contains(name, "home") {
		return action.NewPress(action.KeyHome), true
	}
	key, ok := p.key()
	if !ok {
		return action.Action{}, false
	}
	switch key {
	case "back", "4":
		return action.NewPress(action.KeyBack), true
	case "home", "3":
		return action.NewPress(action.KeyHome), true
	}
	return action.Action{}, false
}

// -- Phase 2: free-text inference --

var (
	wholeWordHome = regexp.MustCompile(`\bhome\b`)
	wholeWordBack = regexp.MustCompile(`\bback\b`)
	// typeQuoted and launchQuoted run against the original-case reply so the
	// quoted capture keeps its case; the verb match itself is case-insensitive.
	typeQuoted   = regexp.MustCompile(`(?i:type|input|enter|write)[^'"]*['"]([^'"]+)['"]`)
	tapPair      = regexp.MustCompile(`(?:tap|click)[^\d-]*(-?\d+\.?\d*)\D+?(-?\d+\.?\d*)`)
	swipeQuad    = regexp.MustCompile(`swipe.*?from\D*(-?\d+\.?\d*)\D+?(-?\d+\.?\d*)\D*to\D*(-?\d+\.?\d*)\D+?(-?\d+\.?\d*)`)
	launchQuoted = regexp.MustCompile(`(?i:launch|open)[^'"]*['"]([^'"]+)['"]`)
)

// exactPhrases is scanned before any other rule; first hit wins.
var exactPhrases = []struct {
	phrase string
	make   func() action.Action
}{
	{"go home", func() action.Action { return action.NewPress(action.KeyHome) }},
	{"go back", func() action.Action { return action.NewPress(action.KeyBack) }},
	{"task completed", func() action.Action { return action.NewSuccess() }},
	{"task complete", func() action.Action { return action.NewSuccess() }},
	{"goal achieved", func() action.Action { return action.NewSuccess() }},
	{"mission accomplished", func() action.Action { return action.NewSuccess() }},
}

var (
	successKeywords = []string{"success", "done", "complete"}
	failureKeywords = []string{"fail", "cannot", "unable"}
)

// inferFromText is the ordered free-text rule list. The scan order is fixed;
// the first matching rule wins.
func (i *Interpreter) inferFromText(reply string) action.Action {
	text := strings.ToLower(reply)

	// 1. Exact phrases.
	for _, e := range exactPhrases {
		if strings.Contains(text, e.phrase) {
			return e.make()
		}
	}

	// 2. Success / failure keywords.
	for _, kw := range successKeywords {
		if strings.Contains(text, kw) {
			return action.NewSuccess()
		}
	}
	for _, kw := range failureKeywords {
		if strings.Contains(text, kw) {
			return action.NewFailure()
		}
	}

	// 3. Whole-word home / back.
	if wholeWordHome.MatchString(text) {
		return action.NewPress(action.KeyHome)
	}
	if wholeWordBack.MatchString(text) {
		return action.NewPress(action.KeyBack)
	}

	// 4. Quoted text after a typing verb.
	if m := typeQuoted.FindStringSubmatch(reply); len(m) > 1 {
		return action.NewType(m[1])
	}

	// 5. Numeric pair near a tap verb.
	if m := tapPair.FindStringSubmatch(text); len(m) > 2 {
		if x, xok := parseNum(m[1]); xok {
			if y, yok := parseNum(m[2]); yok {
				return action.NewTap(action.NormalizeCoordinate(x, y))
			}
		}
	}

	// 6. Four numbers near a swipe verb in from..to shape.
	if m := swipeQuad.FindStringSubmatch(text); len(m) > 4 {
		nums := make([]float64, 0, 4)
		valid := true
		for _, s := range m[1:5] {
			n, ok := parseNum(s)
			if !ok {
				valid = false
				break
			}
			nums = append(nums, n)
		}
		if valid {
			return action.NewSwipe(
				action.NormalizeCoordinate(nums[0], nums[1]),
				action.NormalizeCoordinate(nums[2], nums[3]),
				action.DefaultSwipeDuration)
		}
	}

	// 7. Swipe up / down phrases.
	if strings.Contains(text, "swipe up") {
		return action.NewSwipeUp()
	}
	if strings.Contains(text, "swipe down") {
		return action.NewSwipeDown()
	}

	// 8. Quoted text after a launch verb.
	if m := launchQuoted.FindStringSubmatch(reply); len(m) > 1 {
		return action.NewLaunchApp(m[1], "")
	}

	// 9. Conservative default: always legal, always recoverable.
	i.logger.Debug("No rule matched planner reply, defaulting to press home")
	return action.NewPress(action.KeyHome)
}

func parseNum(s string) (float64, bool) {
	n, ok := number(s)
	return n, ok
}
