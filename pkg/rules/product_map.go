package rules

import (
	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizer"
)

// ProductMapRule keeps a productMap record for every product.
type ProductMapRule struct{}

func NewProductMapRule() *ProductMapRule {
	return &ProductMapRule{}
}

func (r *ProductMapRule) SourceType() string { return "product" }
func (r *ProductMapRule) TargetType() string { return "productMap" }

// ProductSlug returns the product slug, stored either as a string or as {current}.
func ProductSlug(product models.Document) string {
	return extractor.FirstString(product, "slug.current", "slug")
}

// ProductMapID returns the deterministic productMap id for a product.
func ProductMapID(product models.Document, productID string) string {
	if existing := product.RefID("productMapRef"); existing != "" {
		return models.PublishedID(existing)
	}
	if key := idSegment(ProductSlug(product), product.String("sku")); key != "" {
		return "map-product-" + key
	}
	return "map-product-" + productID
}

func (r *ProductMapRule) Evaluate(product models.Document, productID string, canonical normalizer.Canonical) Decision {
	fields := compact(map[string]any{
		"productRef": models.Reference(productID),
		"productId":  productID,
		"title":      extractor.FirstString(product, "title", "name"),
		"slug":       ProductSlug(product),
		"sku":        product.String("sku"),
		"price":      product["price"],
		"status":     canonical.Status,
	})

	return Decision{
		Triggered: true,
		Target: Target{
			ID:     ProductMapID(product, productID),
			Type:   r.TargetType(),
			Fields: fields,
		},
		BackReference: "productMapRef",
	}
}
