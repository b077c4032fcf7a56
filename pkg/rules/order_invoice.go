package rules

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizer"
)

// ReasonOrderNotInvoiceable is recorded when an order does not trigger an invoice.
const ReasonOrderNotInvoiceable = "Order not marked for invoicing"

// OrderInvoiceRule derives an invoice from an order.
type OrderInvoiceRule struct {
	policy   Policy
	numberer *Numberer
}

func NewOrderInvoiceRule(policy Policy, numberer *Numberer) *OrderInvoiceRule {
	return &OrderInvoiceRule{policy: policy, numberer: numberer}
}

func (r *OrderInvoiceRule) SourceType() string { return "order" }
func (r *OrderInvoiceRule) TargetType() string { return "invoice" }

// InvoiceID returns the deterministic invoice id for an order.
func InvoiceID(order models.Document, orderID string) string {
	if existing := order.RefID("invoiceRef"); existing != "" {
		return models.PublishedID(existing)
	}
	return "invoice-" + orderKey(order, orderID)
}

func orderKey(order models.Document, orderID string) string {
	if number := order.String("orderNumber"); normalizer.IsSafeIdentifier(number) {
		return number
	}
	return orderID
}

func (r *OrderInvoiceRule) Evaluate(order models.Document, orderID string, canonical normalizer.Canonical) Decision {
	if !canonical.HasTag(r.policy.Invoice.Tags...) && !canonical.StatusIn(r.policy.Invoice.Statuses...) {
		return Decision{Reason: ReasonOrderNotInvoiceable}
	}

	target := Target{
		ID:     InvoiceID(order, orderID),
		Type:   r.TargetType(),
		Fields: r.invoiceFields(order, orderID, canonical),
		CreateFields: map[string]any{
			"status": "pending",
		},
	}

	orderNumber := order.String("orderNumber")
	if normalizer.IsSafeIdentifier(orderNumber) {
		target.CreateFields["invoiceNumber"] = orderNumber
		target.CreateFields["title"] = "Invoice " + orderNumber
	} else if r.numberer != nil {
		target.OnCreate = func(ctx context.Context, create func(extra map[string]any) error) error {
			return r.numberer.WithNext(ctx, func(number string) error {
				return create(map[string]any{
					"invoiceNumber": number,
					"title":         "Invoice " + number,
				})
			})
		}
	}

	return Decision{
		Triggered:     true,
		Target:        target,
		BackReference: "invoiceRef",
	}
}

func (r *OrderInvoiceRule) invoiceFields(order models.Document, orderID string, canonical normalizer.Canonical) map[string]any {
	fields := map[string]any{
		"orderRef":         models.Reference(orderID),
		"orderNumber":      order.String("orderNumber"),
		"customerRef":      referenceOrNil(order.RefID("customerRef")),
		"customerName":     extractor.FirstString(order, "customerName", "customer.name", "shippingAddress.name"),
		"customerEmail":    extractor.FirstString(order, "customerEmail", "customer.email", "email"),
		"billTo":           copyValue(firstObject(order, "billingAddress", "shippingAddress")),
		"shipTo":           copyValue(firstObject(order, "shippingAddress")),
		"lineItems":        lineItems(order),
		"amountSubtotal":   order["amountSubtotal"],
		"amountTax":        order["amountTax"],
		"amountShipping":   order["amountShipping"],
		"total":            firstValue(order, "totalAmount", "total"),
		"currency":         order.String("currency"),
		"shippingCarrier":  extractor.FirstString(order, "shippingCarrier", "selectedService.carrier"),
		"trackingNumber":   extractor.FirstString(order, "trackingNumber", "fulfillment.trackingNumber"),
		"shippingLabelUrl": extractor.FirstString(order, "shippingLabelUrl", "fulfillment.labelUrl"),
		"weight":           copyValue(firstObject(order, "weight", "packageWeight")),
		"dimensions":       copyValue(firstObject(order, "dimensions", "packageDimensions")),
	}
	if canonical.StatusIn(r.policy.PaidStatuses...) {
		fields["status"] = "paid"
	}
	return compact(fields)
}

func lineItems(order models.Document) []any {
	cart, ok := extractor.AsArray(order["cart"])
	if !ok {
		return nil
	}
	items := make([]any, 0, len(cart))
	for _, line := range cart {
		obj, ok := extractor.AsObject(line)
		if !ok {
			continue
		}
		items = append(items, map[string]any{
			"_key":      obj["_key"],
			"name":      extractor.FirstString(obj, "name", "productName"),
			"sku":       extractor.ExtractString(obj, "sku"),
			"quantity":  obj["quantity"],
			"unitPrice": obj["price"],
			"lineTotal": firstValue(obj, "total", "lineTotal"),
		})
	}
	return items
}

func referenceOrNil(id string) any {
	if id == "" {
		return nil
	}
	return models.Reference(id)
}

func firstObject(doc map[string]any, fields ...string) map[string]any {
	for _, field := range fields {
		if obj, ok := extractor.AsObject(doc[field]); ok && len(obj) > 0 {
			return obj
		}
	}
	return nil
}

func firstValue(doc map[string]any, fields ...string) any {
	for _, field := range fields {
		if v, ok := doc[field]; ok && v != nil {
			return v
		}
	}
	return nil
}
