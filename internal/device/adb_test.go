package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScreenSize(t *testing.T) {
	w, h, err := parseScreenSize("Physical size: 1080x2340\n")
	require.NoError(t, err)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 2340, h)
}

func TestParseScreenSize_OverrideWins(t *testing.T) {
	out := "Physical size: 1080x2340\nOverride size: 720x1560\n"
	w, h, err := parseScreenSize(out)
	require.NoError(t, err)
	assert.Equal(t, 720, w)
	assert.Equal(t, 1560, h)
}

func TestParseScreenSize_Degenerate(t *testing.T) {
	for _, out := range []string{
		"Physical size: 1x1",
		"Physical size: 0x2340",
	} {
		_, _, err := parseScreenSize(out)
		assert.Error(t, err, "output: %q", out)
	}
}

func TestParseScreenSize_Garbage(t *testing.T) {
	_, _, err := parseScreenSize("error: no devices/emulators found")
	assert.Error(t, err)
}

func TestParseForegroundApp(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want string
	}{
		{
			"current focus",
			"  mCurrentFocus=Window{8b13a28 u0 com.android.chrome/com.google.android.apps.chrome.Main}",
			"com.android.chrome",
		},
		{
			"focused app fallback",
			"  mFocusedApp=ActivityRecord{d1f2f1 u0 com.google.android.gm/.ConversationListActivityGmail t123}",
			"com.google.android.gm",
		},
		{
			"no focus line",
			"WINDOW MANAGER WINDOWS (dumpsys window windows)",
			"unknown",
		},
		{
			"empty",
			"",
			"unknown",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseForegroundApp(tc.out))
		})
	}
}

func TestParseKeyboardVisible(t *testing.T) {
	assert.True(t, parseKeyboardVisible("  mInputShown=true mShowRequested=true"))
	assert.False(t, parseKeyboardVisible("  mInputShown=false"))
	assert.False(t, parseKeyboardVisible(""))
}

func TestEscapeInputText(t *testing.T) {
	assert.Equal(t, "hello%sworld", escapeInputText("hello world"))
	assert.Equal(t, "a\\&b", escapeInputText("a&b"))
	assert.Equal(t, "say%s\\'hi\\'", escapeInputText("say 'hi'"))
	assert.Equal(t, "plain", escapeInputText("plain"))
}
