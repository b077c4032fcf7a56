package extractor

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// MaxDepth bounds how deep References descends into a document.
const MaxDepth = 64

// markerFields carry reference metadata and are never searched for
// references themselves.
var markerFields = map[string]bool{
	models.FieldRef:        true,
	models.FieldType:       true,
	models.FieldKey:        true,
	"_weak":                true,
	"_strengthenOnPublish": true,
}

type frame struct {
	value any
	depth int
}

// References walks the document depth-first and returns every referenced id in
// first-seen order, without duplicates. Nodes below MaxDepth are not expanded;
// whatever was collected up to that point is still returned.
func References(doc models.Document) []string {
	refs := make([]string, 0)
	if doc == nil {
		return refs
	}

	seen := make(map[string]bool)
	stack := []frame{{value: map[string]any(doc), depth: 0}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if top.depth > MaxDepth {
			continue
		}

		switch node := top.value.(type) {
		case map[string]any:
			if id, ok := node[models.FieldRef].(string); ok {
				id = strings.TrimSpace(id)
				if id != "" && !seen[id] {
					seen[id] = true
					refs = append(refs, id)
				}
			}
			// Children are pushed in reverse so they pop in key order.
			keys := sortedKeys(node)
			for i := len(keys) - 1; i >= 0; i-- {
				if markerFields[keys[i]] {
					continue
				}
				stack = append(stack, frame{value: node[keys[i]], depth: top.depth + 1})
			}
		case models.Document:
			stack = append(stack, frame{value: map[string]any(node), depth: top.depth})
		case []any:
			for i := len(node) - 1; i >= 0; i-- {
				stack = append(stack, frame{value: node[i], depth: top.depth + 1})
			}
		}
	}

	return refs
}
