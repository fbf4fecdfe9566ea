// internal/agent/stall.go
package agent

import (
	"fmt"
	"math"
	"strings"
	"time"

	"droidpilot/internal/config"
	"droidpilot/internal/device"
)

// stallBucket is the width of the coarse time component in the state
// signature. Repeats only accumulate between observations that fall in the
// same bucket.
const stallBucket = time.Minute

// browserPackages and launcherSubstrings name contexts where an unchanged
// screen is ordinary (a loading page, the idle home screen) and the stall
// threshold is scaled up accordingly.
var (
	browserPackages = map[string]bool{
		"com.android.chrome":           true,
		"org.mozilla.firefox":          true,
		"com.brave.browser":            true,
		"com.opera.browser":            true,
		"com.microsoft.emmx":           true,
		"com.sec.android.app.sbrowser": true,
	}
	launcherSubstrings = []string{"launcher", "home"}
)

func isBrowser(app string) bool { return browserPackages[app] }

func isLauncher(app string) bool {
	for _, s := range launcherSubstrings {
		if strings.Contains(strings.ToLower(app), s) {
			return true
		}
	}
	return false
}

// isIdleSurface covers screens where dwelling is expected but unbounded
// dwelling still means the run is parked: launchers and unidentifiable apps.
func isIdleSurface(app string) bool {
	return app == "" || app == "unknown" || isLauncher(app)
}

// StallDetector counts consecutive identical coarse observations and decides
// when the episode has stopped making visible progress. The signature is
// deliberately coarse: foreground app, a time bucket relative to run start,
// and the screen dimensions. A separate dwell counter tracks consecutive
// launcher/unknown observations, since those survive the bucket boundaries
// that reset the repeat count.
type StallDetector struct {
	cfg     config.StallConfig
	start   time.Time
	lastSig string
	repeats int
	dwell   int
	lastApp string
}

func NewStallDetector(cfg config.StallConfig) *StallDetector {
	return &StallDetector{cfg: cfg, start: time.Now()}
}

// signature fingerprints an observation. Two observations with the same
// signature are treated as the same coarse state.
func (d *StallDetector) signature(snap *device.Snapshot) string {
	bucket := int64(snap.Taken.Sub(d.start) / stallBucket)
	return fmt.Sprintf("%s|%d|%dx%d", snap.ForegroundApp, bucket, snap.Width, snap.Height)
}

// Observe folds one snapshot into the detector and returns the number of
// consecutive repeats seen so far (0 for a fresh state).
func (d *StallDetector) Observe(snap *device.Snapshot) int {
	if isIdleSurface(snap.ForegroundApp) {
		d.dwell++
	} else {
		d.dwell = 0
	}

	sig := d.signature(snap)
	if sig == d.lastSig {
		d.repeats++
	} else {
		d.repeats = 0
		d.lastSig = sig
	}
	d.lastApp = snap.ForegroundApp
	return d.repeats
}

// Reset clears the counters, typically after a recovery action. The time
// origin is kept so bucket numbering stays stable across the run.
func (d *StallDetector) Reset() {
	d.lastSig = ""
	d.repeats = 0
	d.dwell = 0
}

// Repeats returns the current consecutive repeat count.
func (d *StallDetector) Repeats() int { return d.repeats }

// threshold returns the repeat count at which the current context counts as
// stalled. Browsers and launcher/unknown surfaces earn scaled allowances.
func (d *StallDetector) threshold() int {
	base := float64(d.cfg.MaxRepeatedStates)
	switch {
	case isBrowser(d.lastApp):
		base *= d.cfg.BrowserScale
	case isIdleSurface(d.lastApp):
		base *= d.cfg.LauncherScale
	}
	return int(math.Ceil(base))
}

// Stalled reports whether the repeat count has crossed the context-scaled
// threshold, or the run has been parked on a launcher/unknown surface longer
// than the launcher allowance permits.
func (d *StallDetector) Stalled() bool {
	if d.repeats >= d.threshold() {
		return true
	}
	return isIdleSurface(d.lastApp) && d.dwell > d.threshold()
}
