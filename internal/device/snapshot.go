package device

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Snapshot is a point-in-time observation of the device, gathered in a
// single pass so the agent reasons about one coherent moment.
type Snapshot struct {
	PNG             []byte
	Width           int
	Height          int
	ForegroundApp   string
	KeyboardVisible bool
	Taken           time.Time
}

// TakeSnapshot gathers the full observation concurrently. The screenshot,
// resolution, foreground app, and keyboard state are independent adb calls;
// any single failure fails the snapshot.
func TakeSnapshot(ctx context.Context, d Device) (*Snapshot, error) {
	snap := &Snapshot{Taken: time.Now()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		png, err := d.CaptureScreenshot(ctx)
		snap.PNG = png
		return err
	})
	g.Go(func() error {
		w, h, err := d.ScreenSize(ctx)
		snap.Width, snap.Height = w, h
		return err
	})
	g.Go(func() error {
		app, err := d.ForegroundApp(ctx)
		snap.ForegroundApp = app
		return err
	})
	g.Go(func() error {
		visible, err := d.KeyboardVisible(ctx)
		snap.KeyboardVisible = visible
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
