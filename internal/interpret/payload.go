package interpret

import (
	"regexp"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Regexes use \x60 for backticks because Go raw strings cannot contain them.
var (
	fencedPayloadRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|action)?\\s*({.*})\\s*\x60\x60\x60")
)

// payload is the lenient intermediate record a structured planner reply is
// decoded into. The oracle has used several historical field names for the
// same semantic; the synonym tables below normalize them in one place so the
// business logic never sees the variance.
type payload map[string]interface{}

// Field-name synonyms, in priority order. The first present key wins, which
// implements the tie-break rule: an explicit action-type field beats an
// ambiguous one further down the list.
var (
	actionNameKeys = []string{"action_type", "action", "type", "name", "command"}
	textKeys       = []string{"text", "input", "value", "content", "message"}
	packageKeys    = []string{"package", "package_name", "app", "app_name"}
	startKeys      = []string{"start", "from", "coordinate", "coordinates", "point", "position"}
	endKeys        = []string{"end", "to"}
	durationKeys   = []string{"duration", "duration_ms"}
)

// extractPayload locates a single delimited payload block in the reply and
// decodes it. A fenced block is preferred; failing that, the outermost brace
// pair embedded in conversational text is tried. Returns nil when no decodable
// block exists.
func extractPayload(reply string) payload {
	candidate := ""
	if m := fencedPayloadRegex.FindStringSubmatch(reply); len(m) > 1 {
		candidate = m[1]
	} else if fb, lb := strings.Index(reply, "{"), strings.LastIndex(reply, "}"); fb != -1 && lb > fb {
		candidate = reply[fb : lb+1]
	}
	if candidate == "" {
		return nil
	}

	var p payload
	if err := jsoniter.Unmarshal([]byte(candidate), &p); err != nil {
		return nil
	}
	return p
}

// lookup returns the first present key's value.
func (p payload) lookup(keys []string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// actionName returns the normalized action-name string, if any.
func (p payload) actionName() (string, bool) {
	v, ok := p.lookup(actionNameKeys)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(s)), true
}

func (p payload) text() (string, bool) {
	v, ok := p.lookup(textKeys)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func (p payload) packageID() (pkg, activity string, ok bool) {
	v, found := p.lookup(packageKeys)
	if !found {
		// LAUNCH_APP historically carried its target in the text field.
		if s, tok := p.text(); tok {
			return s, "", true
		}
		return "", "", false
	}
	s, sok := v.(string)
	if !sok || s == "" {
		return "", "", false
	}
	if a, aok := p["activity"].(string); aok {
		activity = a
	}
	return s, activity, true
}

func (p payload) key() (string, bool) {
	switch v := p["key"].(type) {
	case string:
		return strings.ToLower(v), true
	case float64:
		return strconv.Itoa(int(v)), true
	}
	return "", false
}

// number converts a payload scalar to float64, tolerating numeric strings.
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// pairFrom reads an {x,y} object or a two-element array.
func pairFrom(v interface{}) (x, y float64, ok bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		xv, xok := number(t["x"])
		yv, yok := number(t["y"])
		return xv, yv, xok && yok
	case []interface{}:
		if len(t) < 2 {
			return 0, 0, false
		}
		xv, xok := number(t[0])
		yv, yok := number(t[1])
		return xv, yv, xok && yok
	}
	return 0, 0, false
}

// coordinate resolves a point from top-level x/y or any nested synonym shape.
func (p payload) coordinate() (x, y float64, ok bool) {
	if xv, xok := number(p["x"]); xok {
		if yv, yok := number(p["y"]); yok {
			return xv, yv, true
		}
	}
	if v, found := p.lookup(startKeys); found {
		return pairFrom(v)
	}
	return 0, 0, false
}

// swipe resolves start and end points from nested shapes or the flat
// start_x/start_y/end_x/end_y spelling.
func (p payload) swipe() (sx, sy, ex, ey float64, ok bool) {
	if sv, sok := p.lookup(startKeys); sok {
		if ev, eok := p.lookup(endKeys); eok {
			sx, sy, sok = pairFrom(sv)
			ex, ey, eok = pairFrom(ev)
			if sok && eok {
				return sx, sy, ex, ey, true
			}
		}
	}
	sxv, a := number(p["start_x"])
	syv, b := number(p["start_y"])
	exv, c := number(p["end_x"])
	eyv, d := number(p["end_y"])
	if a && b && c && d {
		return sxv, syv, exv, eyv, true
	}
	return 0, 0, 0, 0, false
}

func (p payload) durationMs() (int, bool) {
	v, ok := p.lookup(durationKeys)
	if !ok {
		return 0, false
	}
	f, ok := number(v)
	if !ok || f <= 0 {
		return 0, false
	}
	return int(f), true
}

func (p payload) thought() string {
	for _, k := range []string{"thought", "reasoning", "rationale", "observation"} {
		if s, ok := p[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
