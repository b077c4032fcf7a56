package normalizer

import (
	"strings"
	"unicode"
)

// Transform is a function that normalizes a string value
type Transform func(string) string

var registry = make(map[string]Transform)

func init() {
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("email", Email)
}

// Register adds a transform to the registry
func Register(name string, fn Transform) {
	registry[name] = fn
}

// Get retrieves a transform by name
func Get(name string) (Transform, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named transform to a value. Unknown names leave the value untouched.
func Apply(value, name string) string {
	fn, ok := registry[name]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple transforms in sequence
func ApplyChain(value string, names ...string) string {
	result := value
	for _, name := range names {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace replaces runs of whitespace with a single space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Email normalizes an email address (lowercase, trim)
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsSafeIdentifier reports whether s is non-empty and made only of ASCII
// letters, digits and dashes.
func IsSafeIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			return false
		}
	}
	return true
}
