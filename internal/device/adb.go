package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ADB drives an Android device through the adb binary. Every call shells out
// with a bounded context so a wedged adb server turns into a per-step failure
// instead of an indefinite hang.
type ADB struct {
	path        string
	logger      *zap.Logger
	callTimeout time.Duration
	// settle is how long the UI is given to react after an input event.
	settle time.Duration
}

var _ Device = (*ADB)(nil)

// ADBOption tweaks the ADB transport.
type ADBOption func(*ADB)

// WithCallTimeout bounds every individual adb invocation.
func WithCallTimeout(d time.Duration) ADBOption {
	return func(a *ADB) { a.callTimeout = d }
}

// WithSettleDelay overrides the post-input settle delay.
func WithSettleDelay(d time.Duration) ADBOption {
	return func(a *ADB) { a.settle = d }
}

// NewADB creates the transport. path is the adb executable.
func NewADB(path string, logger *zap.Logger, opts ...ADBOption) *ADB {
	a := &ADB{
		path:        path,
		logger:      logger.Named("adb"),
		callTimeout: 20 * time.Second,
		settle:      time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Check verifies the adb binary is runnable and a device is attached. Used
// for fail-fast validation before a run starts.
func (a *ADB) Check(ctx context.Context) error {
	out, err := a.run(ctx, "devices")
	if err != nil {
		return driverErr("check", err)
	}
	for _, line := range strings.Split(out, "\n")[1:] {
		fields := strings.Fields(line)
		if len(fields) == 2 && (fields[1] == "device" || strings.HasPrefix(fields[0], "emulator")) {
			return nil
		}
	}
	return driverErr("check", fmt.Errorf("no device attached: %q", strings.TrimSpace(out)))
}

// run executes an adb command and returns its combined stdout.
func (a *ADB) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.logger.Debug("adb", zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// pause waits out the settle delay unless the context dies first.
func (a *ADB) pause(ctx context.Context) {
	select {
	case <-time.After(a.settle):
	case <-ctx.Done():
	}
}

var screenSizeRegex = regexp.MustCompile(`(\d+)x(\d+)`)

// parseScreenSize extracts the resolution from `wm size` output. Override
// lines win over the physical size when present (last line, as adb prints).
func parseScreenSize(out string) (int, int, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	m := screenSizeRegex.FindStringSubmatch(lines[len(lines)-1])
	if m == nil {
		return 0, 0, fmt.Errorf("unparseable wm size output: %q", out)
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	// A degenerate resolution would make every fractional coordinate
	// meaningless; reject it outright rather than divide by it later.
	if w <= 1 || h <= 1 {
		return 0, 0, fmt.Errorf("degenerate screen size %dx%d", w, h)
	}
	return w, h, nil
}

func (a *ADB) ScreenSize(ctx context.Context) (int, int, error) {
	out, err := a.run(ctx, "shell", "wm", "size")
	if err != nil {
		return 0, 0, driverErr("screen_size", err)
	}
	w, h, err := parseScreenSize(out)
	if err != nil {
		return 0, 0, driverErr("screen_size", err)
	}
	return w, h, nil
}

func (a *ADB) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	// exec-out streams the raw PNG without the shell's newline mangling.
	cmd := exec.CommandContext(ctx, a.path, "exec-out", "screencap", "-p")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, driverErr("screenshot", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())))
	}
	png := stdout.Bytes()
	if len(png) == 0 {
		return nil, driverErr("screenshot", fmt.Errorf("empty screencap output"))
	}
	return png, nil
}

var foregroundRegex = regexp.MustCompile(`(?:mCurrentFocus|mFocusedApp)[^\n]*?\s([A-Za-z][\w.]+)/[\w.$]+`)

// parseForegroundApp extracts the foreground package from dumpsys window
// focus lines. Returns "unknown" when nothing matches.
func parseForegroundApp(out string) string {
	if m := foregroundRegex.FindStringSubmatch(out); m != nil {
		return m[1]
	}
	return "unknown"
}

func (a *ADB) ForegroundApp(ctx context.Context) (string, error) {
	out, err := a.run(ctx, "shell", "dumpsys", "window")
	if err != nil {
		return "", driverErr("foreground_app", err)
	}
	return parseForegroundApp(out), nil
}

// parseKeyboardVisible reads the mInputShown flag from dumpsys input_method.
func parseKeyboardVisible(out string) bool {
	return strings.Contains(out, "mInputShown=true")
}

func (a *ADB) KeyboardVisible(ctx context.Context) (bool, error) {
	out, err := a.run(ctx, "shell", "dumpsys", "input_method")
	if err != nil {
		return false, driverErr("keyboard_visible", err)
	}
	return parseKeyboardVisible(out), nil
}

func (a *ADB) Tap(ctx context.Context, x, y int) error {
	_, err := a.run(ctx, "shell", "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	if err != nil {
		return driverErr("tap", err)
	}
	a.pause(ctx)
	return nil
}

func (a *ADB) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	_, err := a.run(ctx, "shell", "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.Itoa(int(duration.Milliseconds())))
	if err != nil {
		return driverErr("swipe", err)
	}
	a.pause(ctx)
	return nil
}

// escapeInputText prepares text for `input text`, which treats spaces and
// shell metacharacters specially.
func escapeInputText(text string) string {
	replacer := strings.NewReplacer(
		" ", "%s",
		"\"", "\\\"",
		"'", "\\'",
		"&", "\\&",
		"<", "\\<",
		">", "\\>",
		"|", "\\|",
		";", "\\;",
		"(", "\\(",
		")", "\\)",
	)
	return replacer.Replace(text)
}

func (a *ADB) TypeText(ctx context.Context, text string) error {
	_, err := a.run(ctx, "shell", "input", "text", escapeInputText(text))
	if err != nil {
		return driverErr("type_text", err)
	}
	a.pause(ctx)
	return nil
}

func (a *ADB) PressKey(ctx context.Context, code int) error {
	_, err := a.run(ctx, "shell", "input", "keyevent", strconv.Itoa(code))
	if err != nil {
		return driverErr("press_key", err)
	}
	a.pause(ctx)
	return nil
}

func (a *ADB) LaunchApp(ctx context.Context, pkg, activity string) error {
	var err error
	if activity != "" {
		_, err = a.run(ctx, "shell", "am", "start", "-n", pkg+"/"+activity)
	} else {
		_, err = a.run(ctx, "shell", "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	}
	if err != nil {
		return driverErr("launch_app", err)
	}
	a.pause(ctx)
	return nil
}

// DirectTextInject drives the ADBKeyboard IME broadcast channel, optionally
// tapping the target point first to focus it. Best effort: devices without
// the IME installed simply fail the broadcast.
func (a *ADB) DirectTextInject(ctx context.Context, text string, x, y int) error {
	if x >= 0 && y >= 0 {
		if err := a.Tap(ctx, x, y); err != nil {
			return err
		}
	}
	_, err := a.run(ctx, "shell", "am", "broadcast", "-a", "ADB_INPUT_TEXT", "--es", "msg", text)
	if err != nil {
		return driverErr("direct_text_inject", err)
	}
	a.pause(ctx)
	return nil
}

func (a *ADB) DismissKeyboard(ctx context.Context) error {
	visible, err := a.KeyboardVisible(ctx)
	if err != nil {
		return err
	}
	if !visible {
		return nil
	}
	return a.PressKey(ctx, 4) // back key hides the IME
}
