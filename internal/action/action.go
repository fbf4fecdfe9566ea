// Package action defines the shared vocabulary of device actions the agent
// can decide upon and execute. It carries no behavior beyond construction
// and validation of the tagged variants.
package action

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Grid is the internal coordinate space. Fractional coordinates coming out of
// the planner are scaled onto a 0..Grid square at the parse boundary so that
// everything downstream works in one integer space.
const Grid = 1000

// Type enumerates every action the planner may request.
type Type string

const (
	TypeTap        Type = "tap"
	TypeType       Type = "type"
	TypePress      Type = "press"
	TypeSwipe      Type = "swipe"
	TypeSwipeUp    Type = "swipe_up"
	TypeSwipeDown  Type = "swipe_down"
	TypeLaunchApp  Type = "launch_app"
	TypeWait       Type = "wait"
	TypeScreenshot Type = "screenshot"
	TypeSuccess    Type = "success"
	TypeFailure    Type = "failure"
)

// KeyCode identifies a hardware key. Values match the Android keyevent codes
// the device transport ultimately issues.
type KeyCode int

const (
	KeyHome KeyCode = 3
	KeyBack KeyCode = 4
)

func (k KeyCode) String() string {
	switch k {
	case KeyHome:
		return "home"
	case KeyBack:
		return "back"
	default:
		return fmt.Sprintf("key(%d)", int(k))
	}
}

// CoordMode tags whether a coordinate value lives on the fractional grid or
// is an absolute pixel position. The mode is assigned exactly once, at the
// parse boundary; nothing downstream infers it from numeric range.
type CoordMode string

const (
	// ModeFractional means X and Y are grid units (fraction of screen * Grid).
	ModeFractional CoordMode = "fractional"
	// ModeAbsolute means X and Y are raw device pixels.
	ModeAbsolute CoordMode = "absolute"
)

// Coordinate is a screen position with an explicit mode tag.
type Coordinate struct {
	X    int       `json:"x"`
	Y    int       `json:"y"`
	Mode CoordMode `json:"mode"`
}

// FractionalIn converts the coordinate to the 0..1 square for a screen of the
// given pixel dimensions. Grid coordinates divide by the grid; absolute
// coordinates divide by the screen size.
func (c Coordinate) FractionalIn(width, height int) (fx, fy float64) {
	if c.Mode == ModeFractional {
		return float64(c.X) / Grid, float64(c.Y) / Grid
	}
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	return float64(c.X) / float64(width), float64(c.Y) / float64(height)
}

// PixelsIn resolves the coordinate to device pixels for a screen of the given
// dimensions.
func (c Coordinate) PixelsIn(width, height int) (px, py int) {
	if c.Mode == ModeFractional {
		return c.X * width / Grid, c.Y * height / Grid
	}
	return c.X, c.Y
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%d,%d %s)", c.X, c.Y, c.Mode)
}

// SwipeGesture describes a drag from Start to End over Duration.
type SwipeGesture struct {
	Start    Coordinate    `json:"start"`
	End      Coordinate    `json:"end"`
	Duration time.Duration `json:"duration"`
}

// DefaultSwipeDuration is used when the planner omits one.
const DefaultSwipeDuration = 100 * time.Millisecond

// Action is the tagged variant handed from the interpreter to the loop
// controller. Exactly one variant's fields are populated; the constructors
// below are the only sanctioned way to build one.
type Action struct {
	ID   string `json:"id"`
	Type Type   `json:"type"`

	Coordinate *Coordinate   `json:"coordinate,omitempty"` // tap
	Text       string        `json:"text,omitempty"`       // type
	Key        KeyCode       `json:"key,omitempty"`        // press
	Swipe      *SwipeGesture `json:"swipe,omitempty"`      // swipe
	Package    string        `json:"package,omitempty"`    // launch_app
	Activity   string        `json:"activity,omitempty"`   // launch_app
	Duration   time.Duration `json:"duration,omitempty"`   // wait

	// Thought is the planner's stated reasoning, kept for diagnostics only.
	Thought string `json:"thought,omitempty"`
}

func newAction(t Type) Action {
	return Action{ID: uuid.NewString(), Type: t}
}

func NewTap(c Coordinate) Action {
	a := newAction(TypeTap)
	a.Coordinate = &c
	return a
}

func NewType(text string) Action {
	a := newAction(TypeType)
	a.Text = text
	return a
}

func NewPress(key KeyCode) Action {
	a := newAction(TypePress)
	a.Key = key
	return a
}

func NewSwipe(start, end Coordinate, d time.Duration) Action {
	if d <= 0 {
		d = DefaultSwipeDuration
	}
	a := newAction(TypeSwipe)
	a.Swipe = &SwipeGesture{Start: start, End: end, Duration: d}
	return a
}

func NewSwipeUp() Action   { return newAction(TypeSwipeUp) }
func NewSwipeDown() Action { return newAction(TypeSwipeDown) }

func NewLaunchApp(pkg, activity string) Action {
	a := newAction(TypeLaunchApp)
	a.Package = pkg
	a.Activity = activity
	return a
}

func NewWait(d time.Duration) Action {
	a := newAction(TypeWait)
	a.Duration = d
	return a
}

func NewScreenshot() Action { return newAction(TypeScreenshot) }
func NewSuccess() Action    { return newAction(TypeSuccess) }
func NewFailure() Action    { return newAction(TypeFailure) }

// Validate checks the variant invariant: the fields the action's type requires
// must be populated.
func (a Action) Validate() error {
	switch a.Type {
	case TypeTap:
		if a.Coordinate == nil {
			return fmt.Errorf("tap action requires a coordinate")
		}
	case TypeType:
		if a.Text == "" {
			return fmt.Errorf("type action requires text")
		}
	case TypePress:
		if a.Key != KeyHome && a.Key != KeyBack {
			return fmt.Errorf("press action requires a known key, got %d", int(a.Key))
		}
	case TypeSwipe:
		if a.Swipe == nil {
			return fmt.Errorf("swipe action requires start and end coordinates")
		}
	case TypeLaunchApp:
		if a.Package == "" {
			return fmt.Errorf("launch_app action requires a package id")
		}
	case TypeSwipeUp, TypeSwipeDown, TypeWait, TypeScreenshot, TypeSuccess, TypeFailure:
		// No required fields.
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// Terminal reports whether the action ends the run.
func (a Action) Terminal() bool {
	return a.Type == TypeSuccess || a.Type == TypeFailure
}

// Describe renders a short human-readable summary for logs and planner history.
func (a Action) Describe() string {
	switch a.Type {
	case TypeTap:
		return fmt.Sprintf("tap %s", a.Coordinate)
	case TypeType:
		return fmt.Sprintf("type %q", a.Text)
	case TypePress:
		return fmt.Sprintf("press %s", a.Key)
	case TypeSwipe:
		return fmt.Sprintf("swipe %s -> %s", a.Swipe.Start, a.Swipe.End)
	case TypeLaunchApp:
		if a.Activity != "" {
			return fmt.Sprintf("launch %s/%s", a.Package, a.Activity)
		}
		return fmt.Sprintf("launch %s", a.Package)
	case TypeWait:
		return fmt.Sprintf("wait %s", a.Duration)
	default:
		return string(a.Type)
	}
}

// NormalizeCoordinate tags and scales a raw numeric pair. Pairs where both
// components lie inside [0,1] are treated as fractions of the screen and
// scaled onto the internal grid; anything else is passed through as absolute
// pixels. This is the single place the fractional-vs-absolute decision is made.
func NormalizeCoordinate(x, y float64) Coordinate {
	if x >= 0 && x <= 1 && y >= 0 && y <= 1 {
		return Coordinate{X: int(x * Grid), Y: int(y * Grid), Mode: ModeFractional}
	}
	return Coordinate{X: int(x), Y: int(y), Mode: ModeAbsolute}
}
