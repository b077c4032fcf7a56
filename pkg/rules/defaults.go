package rules

// Fallbacks used when a shipping label is created for an invoice without
// physical shipping data.
var (
	DefaultShipFrom = map[string]any{
		"name":         "Fulfillment Center",
		"addressLine1": "Address pending",
		"city":         "Pending",
		"state":        "NA",
		"postalCode":   "00000",
		"country":      "US",
	}
	DefaultShipTo = map[string]any{
		"name":         "Recipient pending",
		"addressLine1": "Address pending",
		"city":         "Pending",
		"state":        "NA",
		"postalCode":   "00000",
		"country":      "US",
	}
	DefaultWeight = map[string]any{
		"value": 1.0,
		"unit":  "pound",
	}
	DefaultDimensions = map[string]any{
		"length": 10.0,
		"width":  8.0,
		"height": 4.0,
		"unit":   "inch",
	}
)
