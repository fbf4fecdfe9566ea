// Package device abstracts the transport to a remote touchscreen device. The
// agent core only consumes the Device capability set; the ADB implementation
// below is the one concrete transport.
package device

import (
	"context"
	"fmt"
	"time"
)

// Device is the capability set the agent consumes. Every call reports
// failure explicitly through its error return; implementations must not
// panic into the core.
type Device interface {
	// ScreenSize returns the device resolution in pixels.
	ScreenSize(ctx context.Context) (width, height int, err error)
	// CaptureScreenshot returns the current screen as PNG bytes.
	CaptureScreenshot(ctx context.Context) ([]byte, error)
	// ForegroundApp returns the package id of the foreground application,
	// or "unknown" when it cannot be determined.
	ForegroundApp(ctx context.Context) (string, error)
	// KeyboardVisible reports whether the soft keyboard is shown.
	KeyboardVisible(ctx context.Context) (bool, error)

	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, code int) error
	LaunchApp(ctx context.Context, pkg, activity string) error

	// DirectTextInject is a best-effort fallback channel that injects text
	// without relying on a focused input widget, optionally tapping the
	// given point first. Not all devices support it.
	DirectTextInject(ctx context.Context, text string, x, y int) error

	// DismissKeyboard hides the soft keyboard if it is visible.
	DismissKeyboard(ctx context.Context) error
}

// DriverError wraps a failed device call with the operation name so the loop
// controller can record it on the step without losing the cause.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

func driverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Op: op, Err: err}
}
