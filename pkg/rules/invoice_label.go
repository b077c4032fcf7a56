package rules

import (
	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizer"
)

// ReasonInvoiceNotShippable is recorded when an invoice does not trigger a label.
const ReasonInvoiceNotShippable = "Invoice not ready for shipping"

// InvoiceShippingLabelRule derives a shipping label from an invoice.
type InvoiceShippingLabelRule struct {
	policy Policy
}

func NewInvoiceShippingLabelRule(policy Policy) *InvoiceShippingLabelRule {
	return &InvoiceShippingLabelRule{policy: policy}
}

func (r *InvoiceShippingLabelRule) SourceType() string { return "invoice" }
func (r *InvoiceShippingLabelRule) TargetType() string { return "shippingLabel" }

// ShippingLabelID returns the deterministic label id for an invoice.
func ShippingLabelID(invoice models.Document, invoiceID string) string {
	if existing := invoice.RefID("shippingLabelRef"); existing != "" {
		return models.PublishedID(existing)
	}
	if number := idSegment(invoice.String("invoiceNumber")); number != "" {
		return "shippingLabel-" + number
	}
	return "shippingLabel-" + invoiceID
}

// inFlight reports whether the invoice already carries label data.
func inFlight(invoice models.Document) bool {
	return extractor.FirstString(invoice, "labelUrl", "shippingLabelUrl", "trackingNumber") != ""
}

func (r *InvoiceShippingLabelRule) Evaluate(invoice models.Document, invoiceID string, canonical normalizer.Canonical) Decision {
	if !canonical.HasTag(r.policy.ShippingLabel.Tags...) &&
		!canonical.StatusIn(r.policy.ShippingLabel.Statuses...) &&
		!inFlight(invoice) {
		return Decision{Reason: ReasonInvoiceNotShippable}
	}

	invoiceNumber := invoice.String("invoiceNumber")
	fields := compact(map[string]any{
		"invoiceRef":     models.Reference(invoiceID),
		"orderRef":       referenceOrNil(invoice.RefID("orderRef")),
		"shipTo":         copyValue(firstObject(invoice, "shipTo", "shippingAddress")),
		"weight":         copyValue(firstObject(invoice, "weight")),
		"dimensions":     copyValue(firstObject(invoice, "dimensions")),
		"carrier":        extractor.FirstString(invoice, "shippingCarrier", "carrier"),
		"serviceCode":    extractor.FirstString(invoice, "serviceCode", "selectedService.serviceCode"),
		"trackingNumber": invoice.String("trackingNumber"),
		"trackingUrl":    invoice.String("trackingUrl"),
		"labelUrl":       extractor.FirstString(invoice, "labelUrl", "shippingLabelUrl"),
		"metadata": map[string]any{
			"invoiceId":     invoiceID,
			"invoiceNumber": invoiceNumber,
			"orderId":       invoice.RefID("orderRef"),
			"orderNumber":   invoice.String("orderNumber"),
		},
	})

	createFields := map[string]any{
		"status":     "pending",
		"shipFrom":   copyValue(DefaultShipFrom),
		"shipTo":     copyValue(DefaultShipTo),
		"weight":     copyValue(DefaultWeight),
		"dimensions": copyValue(DefaultDimensions),
	}
	if invoiceNumber != "" {
		createFields["name"] = "Label " + invoiceNumber
	}

	return Decision{
		Triggered: true,
		Target: Target{
			ID:           ShippingLabelID(invoice, invoiceID),
			Type:         r.TargetType(),
			Fields:       fields,
			CreateFields: createFields,
		},
		BackReference: "shippingLabelRef",
	}
}
