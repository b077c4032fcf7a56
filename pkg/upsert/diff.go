package upsert

import (
	"github.com/Ramsey-B/fern/pkg/fingerprint"
)

// Diff returns the fields of desired that must be written to bring existing
// up to date. A field is included only when desired holds a non-empty value
// that differs from the existing one: objects and arrays are compared deeply,
// scalars directly. Fields missing from desired are never cleared.
func Diff(desired, existing map[string]any) map[string]any {
	patch := make(map[string]any)
	for field, want := range desired {
		if isEmpty(want) {
			continue
		}
		have, ok := existing[field]
		if ok && equal(want, have) {
			continue
		}
		patch[field] = want
	}
	return patch
}

func equal(a, b any) bool {
	if isStructured(a) || isStructured(b) {
		return fingerprint.Equal(map[string]any{"v": a}, map[string]any{"v": b}, nil)
	}
	return scalar(a) == scalar(b)
}

func isStructured(v any) bool {
	switch v.(type) {
	case map[string]any, []any, []string:
		return true
	}
	return false
}

// scalar folds numeric types so 1 and 1.0 compare equal.
func scalar(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	}
	return false
}
