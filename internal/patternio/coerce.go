package patternio

import (
	"math"
	"strconv"
	"strings"
)

// toNumber converts a decoded value to a number the way a loosely typed
// document expects: numeric strings parse, booleans are 0 or 1, missing
// values are 0. Anything else is NaN.
func toNumber(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case []any:
		// A list of zero or one element reads as that element
		switch len(n) {
		case 0:
			return 0
		case 1:
			if _, nested := n[0].([]any); !nested {
				return toNumber(n[0])
			}
		}
	}
	return math.NaN()
}

// truthy reports whether a decoded value counts as "on"
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	case float64, float32, int, int64, uint64:
		f := toNumber(b)
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// asObject returns the fields of a decoded mapping
func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out, true
	}
	return nil, false
}
