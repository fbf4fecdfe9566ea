package interpret

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"droidpilot/internal/action"
)

func newTestInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	return New(zaptest.NewLogger(t))
}

// ignoreIDs lets go-cmp compare actions while ignoring the generated uuid.
var ignoreIDs = cmpopts.IgnoreFields(action.Action{}, "ID")

func TestParse_FractionalTapScalesToGrid(t *testing.T) {
	i := newTestInterpreter(t)

	a := i.Parse("```json\n{\"action\": \"tap\", \"x\": 0.5, \"y\": 0.5}\n```")

	require.Equal(t, action.TypeTap, a.Type)
	require.NotNil(t, a.Coordinate)
	assert.Equal(t, 500, a.Coordinate.X)
	assert.Equal(t, 500, a.Coordinate.Y)
	assert.Equal(t, action.ModeFractional, a.Coordinate.Mode)
}

func TestParse_AbsoluteTapPassesThrough(t *testing.T) {
	i := newTestInterpreter(t)

	a := i.Parse(`{"action": "tap", "x": 500, "y": 600}`)

	require.Equal(t, action.TypeTap, a.Type)
	require.NotNil(t, a.Coordinate)
	assert.Equal(t, 500, a.Coordinate.X)
	assert.Equal(t, 600, a.Coordinate.Y)
	assert.Equal(t, action.ModeAbsolute, a.Coordinate.Mode)
}

func TestParse_ActionNameSynonyms(t *testing.T) {
	i := newTestInterpreter(t)

	cases := []struct {
		payload string
		want    action.Type
	}{
		{`{"action_type": "TAP", "x": 0.1, "y": 0.1}`, action.TypeTap},
		{`{"type": "click", "coordinate": {"x": 0.2, "y": 0.2}}`, action.TypeTap},
		{`{"action": "TAP_ON_ELEMENT", "coordinates": [0.3, 0.3]}`, action.TypeTap},
		{`{"action": "type", "text": "hello"}`, action.TypeType},
		{`{"action": "input_text", "value": "hello"}`, action.TypeType},
		{`{"action": "SWIPE_UP"}`, action.TypeSwipeUp},
		{`{"action": "launch_app", "package": "com.android.chrome"}`, action.TypeLaunchApp},
		{`{"action": "success"}`, action.TypeSuccess},
		{`{"action": "failure"}`, action.TypeFailure},
		{`{"action": "back"}`, action.TypePress},
		{`{"action": "press", "key": "home"}`, action.TypePress},
	}

	for _, tc := range cases {
		a := i.Parse(tc.payload)
		assert.Equal(t, tc.want, a.Type, "payload: %s", tc.payload)
	}
}

func TestParse_ExplicitActionFieldWins(t *testing.T) {
	i := newTestInterpreter(t)

	// "action_type" is the explicit field; the "type" synonym must lose.
	a := i.Parse(`{"action_type": "tap", "type": "swipe_up", "x": 0.5, "y": 0.5}`)
	assert.Equal(t, action.TypeTap, a.Type)
}

func TestParse_SwipeShapes(t *testing.T) {
	i := newTestInterpreter(t)

	nested := i.Parse(`{"action": "swipe", "start": {"x": 0.5, "y": 0.8}, "end": {"x": 0.5, "y": 0.2}, "duration": 250}`)
	require.Equal(t, action.TypeSwipe, nested.Type)
	require.NotNil(t, nested.Swipe)
	assert.Equal(t, 800, nested.Swipe.Start.Y)
	assert.Equal(t, 200, nested.Swipe.End.Y)

	flat := i.Parse(`{"action": "swipe", "start_x": 0.1, "start_y": 0.9, "end_x": 0.1, "end_y": 0.3}`)
	require.Equal(t, action.TypeSwipe, flat.Type)
	require.NotNil(t, flat.Swipe)
	assert.Equal(t, action.DefaultSwipeDuration, flat.Swipe.Duration)

	fromTo := i.Parse(`{"action": "swipe", "from": [0.5, 0.7], "to": [0.5, 0.3]}`)
	require.Equal(t, action.TypeSwipe, fromTo.Type)
	require.NotNil(t, fromTo.Swipe)
}

func TestParse_MalformedPayloadFallsToInference(t *testing.T) {
	i := newTestInterpreter(t)

	// Tap without coordinates is unusable; the surrounding text mentions
	// nothing actionable either, so the conservative default applies.
	a := i.Parse(`{"action": "tap"}`)
	assert.Equal(t, action.TypePress, a.Type)
	assert.Equal(t, action.KeyHome, a.Key)
}

func TestParse_FencedBlockInsideConversationalReply(t *testing.T) {
	i := newTestInterpreter(t)

	reply := "I can see the search bar at the top of the screen.\n" +
		"```action\n{\"action\": \"tap\", \"x\": 0.5, \"y\": 0.12}\n```\n" +
		"Tapping it should focus the input."
	a := i.Parse(reply)

	want := action.NewTap(action.Coordinate{X: 500, Y: 120, Mode: action.ModeFractional})
	if diff := cmp.Diff(want, a, ignoreIDs); diff != "" {
		t.Fatalf("parsed action mismatch (-want +got):\n%s", diff)
	}
}

func TestInferFromText_Rules(t *testing.T) {
	i := newTestInterpreter(t)

	cases := []struct {
		name  string
		reply string
		check func(t *testing.T, a action.Action)
	}{
		{"exact phrase go home", "We should go home and retry.", func(t *testing.T, a action.Action) {
			assert.Equal(t, action.TypePress, a.Type)
			assert.Equal(t, action.KeyHome, a.Key)
		}},
		{"success keyword", "The goal was achieved: task done.", func(t *testing.T, a action.Action) {
			assert.Equal(t, action.TypeSuccess, a.Type)
		}},
		{"failure keyword", "I am unable to proceed further.", func(t *testing.T, a action.Action) {
			assert.Equal(t, action.TypeFailure, a.Type)
		}},
		{"whole word back", "Let's navigate back now.", func(t *testing.T, a action.Action) {
			assert.Equal(t, action.TypePress, a.Type)
			assert.Equal(t, action.KeyBack, a.Key)
		}},
		{"quoted type", `Please type "hello world" in the field.`, func(t *testing.T, a action.Action) {
			assert.Equal(t, action.TypeType, a.Type)
			assert.Equal(t, "hello world", a.Text)
		}},
		{"capitalized typing verb", `Type "Hello World" into the search bar.`, func(t *testing.T, a action.Action) {
			assert.Equal(t, action.TypeType, a.Type)
			// The quoted text keeps its original case.
			assert.Equal(t, "Hello World", a.Text)
		}},
		{"tap pair fractional", "We should tap at 0.5, 0.25 next.", func(t *testing.T, a action.Action) {
			require.Equal(t, action.TypeTap, a.Type)
			assert.Equal(t, 500, a.Coordinate.X)
			assert.Equal(t, 250, a.Coordinate.Y)
			assert.Equal(t, action.ModeFractional, a.Coordinate.Mode)
		}},
		{"swipe quad", "Next, swipe from 0.5, 0.8 to 0.5, 0.2 to scroll.", func(t *testing.T, a action.Action) {
			require.Equal(t, action.TypeSwipe, a.Type)
			assert.Equal(t, 800, a.Swipe.Start.Y)
		}},
		{"swipe up phrase", "Just swipe up a little.", func(t *testing.T, a action.Action) {
			assert.Equal(t, action.TypeSwipeUp, a.Type)
		}},
		{"launch quoted", `We could launch "com.android.settings" instead.`, func(t *testing.T, a action.Action) {
			assert.Equal(t, action.TypeLaunchApp, a.Type)
			assert.Equal(t, "com.android.settings", a.Package)
		}},
		{"capitalized launch verb", `Launch "com.android.settings" and wait.`, func(t *testing.T, a action.Action) {
			assert.Equal(t, action.TypeLaunchApp, a.Type)
			assert.Equal(t, "com.android.settings", a.Package)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, i.Parse(tc.reply))
		})
	}
}

func TestParse_UnusableReplyReturnsDefault(t *testing.T) {
	i := newTestInterpreter(t)

	for _, reply := range []string{
		"",
		"lorem ipsum dolor sit amet",
		"??!",
		"{not even json",
	} {
		a := i.Parse(reply)
		assert.Equal(t, action.TypePress, a.Type, "reply: %q", reply)
		assert.Equal(t, action.KeyHome, a.Key, "reply: %q", reply)
		assert.NoError(t, a.Validate())
	}
}

func TestParse_AlwaysReturnsValidAction(t *testing.T) {
	i := newTestInterpreter(t)

	// A grab bag of adversarial replies; every one must produce an action
	// that passes variant validation.
	replies := []string{
		`{"action": "swipe"}`,
		`{"action": "launch_app"}`,
		`{"action": "press"}`,
		`{"action": "type"}`,
		`{"action": 42}`,
		"```json\n[1,2,3]\n```",
		fmt.Sprintf("{\"action\": \"tap\", \"x\": %q, \"y\": %q}", "0.5", "0.5"),
	}
	for _, reply := range replies {
		a := i.Parse(reply)
		assert.NoError(t, a.Validate(), "reply: %s", reply)
	}
}
