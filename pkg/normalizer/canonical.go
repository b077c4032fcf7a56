// Package normalizer maps heterogeneous source records onto a canonical view.
package normalizer

import (
	"fmt"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/models"
)

// StatusFields is the priority list of status-like fields. The first field
// holding a non-empty value wins.
var StatusFields = []string{"status", "state", "orderStatus", "paymentStatus"}

// TagFields lists the fields tags are read from, in order.
var TagFields = []string{"tags"}

// valueChain is applied to every status and tag value.
var valueChain = []string{"trim", "collapse_whitespace", "lowercase"}

// Canonical is the normalized view of a source record.
type Canonical struct {
	Status string
	Tags   []string
}

// HasTag reports whether any of the given tags is present.
func (c Canonical) HasTag(tags ...string) bool {
	for _, tag := range tags {
		if ectolinq.Contains(c.Tags, tag) {
			return true
		}
	}
	return false
}

// StatusIn reports whether the status is one of the given values.
func (c Canonical) StatusIn(statuses ...string) bool {
	if c.Status == "" {
		return false
	}
	return ectolinq.Contains(statuses, c.Status)
}

// Normalize builds the canonical view of a record. It never fails: values of
// unrecognized shapes are ignored.
func Normalize(doc models.Document) Canonical {
	return Canonical{
		Status: Status(doc),
		Tags:   Tags(doc),
	}
}

// Status returns the lower-cased value of the first non-empty status field.
func Status(doc models.Document) string {
	for _, field := range StatusFields {
		if value := ApplyChain(scalarString(doc[field]), valueChain...); value != "" {
			return value
		}
	}
	return ""
}

// Tags returns the de-duplicated, lower-cased tag set in first-seen order.
func Tags(doc models.Document) []string {
	seen := make(map[string]bool)
	tags := make([]string, 0)
	add := func(raw string) {
		for _, part := range strings.Split(raw, ",") {
			tag := ApplyChain(part, valueChain...)
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	for _, field := range TagFields {
		switch value := doc[field].(type) {
		case string:
			add(value)
		case []string:
			for _, item := range value {
				add(item)
			}
		case []any:
			for _, item := range value {
				add(tagString(item))
			}
		}
	}
	return tags
}

// tagString coerces a single tag item: a string or a {value|label} object.
func tagString(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case map[string]any:
		if s := scalarString(v["value"]); strings.TrimSpace(s) != "" {
			return s
		}
		return scalarString(v["label"])
	default:
		return ""
	}
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return fmt.Sprintf("%t", val)
	case float64, int, int64:
		return fmt.Sprint(val)
	default:
		return ""
	}
}
