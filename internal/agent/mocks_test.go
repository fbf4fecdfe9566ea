// internal/agent/mocks_test.go
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"droidpilot/internal/planner"
)

// mockDevice is a scriptable in-memory Device. Observation methods are
// called concurrently by the snapshot gatherer, so every access locks.
type mockDevice struct {
	mu sync.Mutex

	width, height int
	app           string
	keyboard      bool
	// screenshotFn returns the PNG for the nth capture (1-based).
	screenshotFn func(call int) ([]byte, error)
	captureCalls int

	taps     [][2]int
	typed    []string
	injected []string
	keys     []int
	swipes   int
	launched []string

	pressErr error
}

func newMockDevice() *mockDevice {
	return &mockDevice{width: 1080, height: 2340, app: "com.example.app"}
}

func (m *mockDevice) ScreenSize(ctx context.Context) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width, m.height, nil
}

func (m *mockDevice) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureCalls++
	if m.screenshotFn != nil {
		return m.screenshotFn(m.captureCalls)
	}
	return []byte(fmt.Sprintf("png-%d", m.captureCalls)), nil
}

func (m *mockDevice) ForegroundApp(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.app, nil
}

func (m *mockDevice) KeyboardVisible(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keyboard, nil
}

func (m *mockDevice) Tap(ctx context.Context, x, y int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taps = append(m.taps, [2]int{x, y})
	return nil
}

func (m *mockDevice) Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swipes++
	return nil
}

func (m *mockDevice) TypeText(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typed = append(m.typed, text)
	return nil
}

func (m *mockDevice) PressKey(ctx context.Context, code int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pressErr != nil {
		return m.pressErr
	}
	m.keys = append(m.keys, code)
	return nil
}

// LaunchApp brings the launched package to the mock foreground, like a real
// device would after the settle delay.
func (m *mockDevice) LaunchApp(ctx context.Context, pkg, activity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launched = append(m.launched, pkg)
	m.app = pkg
	return nil
}

func (m *mockDevice) DirectTextInject(ctx context.Context, text string, x, y int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injected = append(m.injected, text)
	return nil
}

func (m *mockDevice) DismissKeyboard(ctx context.Context) error { return nil }

func (m *mockDevice) tapCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.taps)
}

// scriptedPlanner pops one canned reply per call and fails when the script
// runs dry, which doubles as a guard against unexpected extra calls.
type scriptedPlanner struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	lastReq planner.Request
}

func (p *scriptedPlanner) PlanAction(ctx context.Context, req planner.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastReq = req
	if p.err != nil {
		return "", p.err
	}
	if len(p.replies) == 0 {
		return "", fmt.Errorf("scripted planner exhausted after %d calls", p.calls)
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return reply, nil
}
