package summary

import (
	"math"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Clean prunes a value bottom-up: strings are trimmed, non-finite numbers are
// dropped, and nil values, empty strings, empty arrays and empty objects are
// removed. It returns nil when nothing survives.
func Clean(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		return s
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil
		}
		return val
	case models.Document:
		return cleanMap(map[string]any(val))
	case map[string]any:
		return cleanMap(val)
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if cleaned := Clean(item); cleaned != nil {
				out = append(out, cleaned)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []string:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if cleaned := Clean(item); cleaned != nil {
				out = append(out, cleaned)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return val
	}
}

func cleanMap(m map[string]any) any {
	out := make(map[string]any, len(m))
	for k, item := range m {
		if cleaned := Clean(item); cleaned != nil {
			out[k] = cleaned
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
