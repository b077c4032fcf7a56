// Package extractor reads values and cross-references out of nested documents.
package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Extract returns the value at a dot-notation path.
// Supported syntax:
// - Simple path: "status", "shippingAddress.city"
// - Array access: "cart[0].sku"
// Missing keys and out-of-range indexes yield nil.
func Extract(data any, path string) any {
	if path == "" {
		return data
	}

	current := data
	for _, part := range parsePath(path) {
		current = extractPart(current, part)
		if current == nil {
			return nil
		}
	}
	return current
}

// ExtractString returns the trimmed string form of the value at path.
// Objects and arrays yield "".
func ExtractString(data any, path string) string {
	return strings.TrimSpace(ToString(Extract(data, path)))
}

// FirstString returns the first non-empty string found among the paths.
func FirstString(data any, paths ...string) string {
	for _, path := range paths {
		if s := ExtractString(data, path); s != "" {
			return s
		}
	}
	return ""
}

type pathPart struct {
	key        string
	isArray    bool
	arrayIndex int
}

func parsePath(path string) []pathPart {
	segments := strings.Split(path, ".")
	parts := make([]pathPart, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		part := pathPart{key: seg}
		if idx := strings.Index(seg, "["); idx != -1 && strings.HasSuffix(seg, "]") {
			part.key = seg[:idx]
			if i, err := strconv.Atoi(seg[idx+1 : len(seg)-1]); err == nil {
				part.isArray = true
				part.arrayIndex = i
			}
		}
		parts = append(parts, part)
	}
	return parts
}

func extractPart(data any, part pathPart) any {
	value := data
	if part.key != "" {
		obj, ok := AsObject(data)
		if !ok {
			return nil
		}
		value = obj[part.key]
	}

	if part.isArray {
		arr, ok := AsArray(value)
		if !ok || part.arrayIndex < 0 || part.arrayIndex >= len(arr) {
			return nil
		}
		return arr[part.arrayIndex]
	}
	return value
}

// AsObject returns v as a plain object when it is one.
func AsObject(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return obj, true
	case models.Document:
		return map[string]any(obj), true
	default:
		return nil, false
	}
}

// AsArray returns v as a slice when it is one.
func AsArray(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		result := make([]any, len(arr))
		for i, s := range arr {
			result[i] = s
		}
		return result, true
	case []map[string]any:
		result := make([]any, len(arr))
		for i, m := range arr {
			result[i] = m
		}
		return result, true
	default:
		return nil, false
	}
}

// ToString converts scalar values to a string. Objects and arrays yield "".
func ToString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return ""
	}
}
