// Package fingerprint hashes documents into stable content fingerprints.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Exclusions is a set of dot-notation paths left out of a fingerprint.
// Array elements share the path of their array, so "relationships.action"
// excludes the action of every relationship entry.
type Exclusions map[string]bool

// Generate returns the SHA256 hash of the canonical JSON form of data.
func Generate(data map[string]any) string {
	return GenerateWithExclusions(data, nil)
}

// GenerateWithExclusions returns the fingerprint of data without the excluded paths.
func GenerateWithExclusions(data map[string]any, exclude Exclusions) string {
	var b strings.Builder
	canonicalize(&b, data, exclude, "")
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// Equal reports whether two documents share a fingerprint.
func Equal(a, b map[string]any, exclude Exclusions) bool {
	return GenerateWithExclusions(a, exclude) == GenerateWithExclusions(b, exclude)
}

func canonicalize(b *strings.Builder, data any, exclude Exclusions, path string) {
	switch v := data.(type) {
	case models.Document:
		canonicalizeMap(b, map[string]any(v), exclude, path)
	case map[string]any:
		canonicalizeMap(b, v, exclude, path)
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalize(b, item, exclude, path)
		}
		b.WriteByte(']')
	default:
		raw, _ := json.Marshal(v)
		b.Write(raw)
	}
}

func canonicalizeMap(b *strings.Builder, m map[string]any, exclude Exclusions, path string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	first := true
	for _, k := range keys {
		fieldPath := k
		if path != "" {
			fieldPath = path + "." + k
		}
		if exclude.has(fieldPath) {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		keyJSON, _ := json.Marshal(k)
		b.Write(keyJSON)
		b.WriteByte(':')
		canonicalize(b, m[k], exclude, fieldPath)
	}
	b.WriteByte('}')
}

// has matches exact paths and descendants of excluded paths.
func (e Exclusions) has(fieldPath string) bool {
	if len(e) == 0 {
		return false
	}
	if e[fieldPath] {
		return true
	}
	for excluded := range e {
		if strings.HasPrefix(fieldPath, excluded+".") {
			return true
		}
	}
	return false
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}
