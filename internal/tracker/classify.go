// Package tracker owns the per-run admission state for the agent: it vetoes
// redundant or loop-prone actions and heuristically classifies screen regions
// as input-capable. Only a raster image and a foreground app id are available,
// so classification works on coarse positional priors, not UI semantics.
package tracker

// Region is the classifier's verdict for a screen point.
type Region int

const (
	// RegionAmbiguous means no heuristic matched; callers treat it as non-input.
	RegionAmbiguous Region = iota
	// RegionInputLikely means the point probably sits on a text-input surface.
	RegionInputLikely
	// RegionSystemOrIcon means the point falls in a reserved system band
	// (navigation strip, app icon row, status bar).
	RegionSystemOrIcon
)

func (r Region) String() string {
	switch r {
	case RegionInputLikely:
		return "input-likely"
	case RegionSystemOrIcon:
		return "system-or-icon"
	default:
		return "ambiguous"
	}
}

// box is a normalized bounding box, all components in [0,1].
type box struct {
	left, top, right, bottom float64
}

func (b box) contains(x, y float64) bool {
	return x >= b.left && x <= b.right && y >= b.top && y <= b.bottom
}

// Reserved bands where taps hit system chrome rather than app content.
var reservedBands = []box{
	{0, 0.8, 1.0, 1.0}, // bottom 20%: navigation bar and app icon row
	{0, 0, 1.0, 0.08},  // top status bar
}

// knownInputRegions corrects the worst false negatives of the generic bands
// for apps observed in practice. Keyed by foreground package id.
var knownInputRegions = map[string][]box{
	"com.android.chrome": {
		{0.05, 0.03, 0.95, 0.15}, // URL bar
		{0.05, 0.2, 0.95, 0.4},   // search box on the new-tab page
		{0.05, 0.4, 0.95, 0.6},   // forms in content
	},
	"com.google.android.gm": {
		{0.05, 0.1, 0.95, 0.3}, // search bar
		{0.05, 0.3, 0.95, 0.9}, // composition area
	},
	"com.android.messaging": {
		{0.05, 0.8, 0.8, 0.95}, // message composer
	},
}

// Generic positional priors, checked in priority order.
var (
	urlBarBand   = box{0.05, 0.05, 0.95, 0.2}  // address/search bars near the top
	middleBand   = box{0.05, 0.15, 0.95, 0.85} // wide middle: forms, search boxes
	composerBand = box{0.05, 0.75, 0.8, 0.95}  // bottom-left chat composer
)

// Classify labels a normalized point for the given foreground app. It is a
// pure function: same inputs, same verdict. Points outside [0,1] on either
// axis are clamped before evaluation.
func Classify(x, y float64, foregroundApp string) Region {
	x = clamp01(x)
	y = clamp01(y)

	for _, b := range reservedBands {
		if b.contains(x, y) {
			return RegionSystemOrIcon
		}
	}

	for _, b := range knownInputRegions[foregroundApp] {
		if b.contains(x, y) {
			return RegionInputLikely
		}
	}

	if urlBarBand.contains(x, y) {
		return RegionInputLikely
	}
	if middleBand.contains(x, y) {
		return RegionInputLikely
	}
	if composerBand.contains(x, y) {
		return RegionInputLikely
	}

	return RegionAmbiguous
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
