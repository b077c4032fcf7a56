// Package summary builds the compact per-type summaries stored on mapping records.
package summary

import (
	"fmt"
	"sort"

	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	// MaxItems caps top-level collections such as cart lines and events.
	MaxItems = 25
	// MaxNested caps metadata entries and string arrays inside an item.
	MaxNested = 20
)

// DefaultShape is used for source types without a registered projection.
const DefaultShape = "default"

// Builder projects source documents into summaries using JMESPath expressions.
type Builder struct {
	projections map[string]*jmespath.JMESPath
	listFields  map[string][]string
}

// NewBuilder returns a builder loaded with the order, invoice, shipping label,
// product and default projections.
func NewBuilder() *Builder {
	b := &Builder{
		projections: make(map[string]*jmespath.JMESPath),
		listFields:  make(map[string][]string),
	}
	for docType, expr := range defaultProjections {
		b.projections[docType] = jmespath.MustCompile(expr)
	}
	b.listFields["order"] = []string{"cart", "events", "shippingLog"}
	return b
}

// Register sets or replaces the projection for a source type.
func (b *Builder) Register(docType, expression string) error {
	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return fmt.Errorf("invalid summary projection for %s: %w", docType, err)
	}
	b.projections[docType] = compiled
	return nil
}

// Build returns the cleaned summary of doc, or nil when nothing survives.
func (b *Builder) Build(sourceType string, doc models.Document) map[string]any {
	if doc == nil {
		return nil
	}

	projection, ok := b.projections[sourceType]
	if !ok {
		projection = b.projections[DefaultShape]
	}
	if projection == nil {
		return nil
	}

	// Projections only see plain maps.
	raw, err := projection.Search(map[string]any(doc.Clone()))
	if err != nil {
		return nil
	}

	shaped, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	for _, field := range b.listFields[sourceType] {
		shaped[field] = capItems(shaped[field])
	}

	cleaned, _ := Clean(shaped).(map[string]any)
	return cleaned
}

// capItems truncates a list to MaxItems and caps the nested lists and
// objects of each item to MaxNested entries.
func capItems(v any) any {
	items, ok := v.([]any)
	if !ok {
		return v
	}
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for k, field := range obj {
			obj[k] = capNested(field)
		}
		items[i] = obj
	}
	return items
}

func capNested(v any) any {
	switch val := v.(type) {
	case []any:
		if len(val) > MaxNested {
			return val[:MaxNested]
		}
		return val
	case map[string]any:
		if len(val) <= MaxNested {
			return val
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, MaxNested)
		for _, k := range keys[:MaxNested] {
			out[k] = val[k]
		}
		return out
	default:
		return v
	}
}
