package rules

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TriggerPolicy gates a relationship on tag or status membership.
type TriggerPolicy struct {
	Tags     []string `yaml:"tags"`
	Statuses []string `yaml:"statuses"`
}

// Policy holds the tunable parts of the relationship rules.
type Policy struct {
	InvoicePrefix string        `yaml:"invoicePrefix"`
	Invoice       TriggerPolicy `yaml:"invoice"`
	ShippingLabel TriggerPolicy `yaml:"shippingLabel"`
	// PaidStatuses mark an order as paid on its invoice.
	PaidStatuses []string `yaml:"paidStatuses"`
}

// DefaultPolicy returns the built-in triggers.
func DefaultPolicy() Policy {
	return Policy{
		InvoicePrefix: "INV",
		Invoice: TriggerPolicy{
			Tags:     []string{"requires-invoice", "needs-invoice"},
			Statuses: []string{"paid", "fulfilled", "shipped", "completed", "complete"},
		},
		ShippingLabel: TriggerPolicy{
			Tags:     []string{"requires-shipping", "ship-now"},
			Statuses: []string{"paid", "fulfilled", "ready-to-ship", "ready_to_ship"},
		},
		PaidStatuses: []string{"paid", "fulfilled", "shipped", "completed", "complete"},
	}
}

// LoadPolicy reads a YAML policy file over the defaults. Sections missing
// from the file keep their default values. An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, errors.Wrap(err, "failed to read rule policy")
	}

	var override Policy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return policy, errors.Wrap(err, "failed to parse rule policy")
	}

	if override.InvoicePrefix != "" {
		policy.InvoicePrefix = override.InvoicePrefix
	}
	policy.Invoice = mergeTrigger(policy.Invoice, override.Invoice)
	policy.ShippingLabel = mergeTrigger(policy.ShippingLabel, override.ShippingLabel)
	if len(override.PaidStatuses) > 0 {
		policy.PaidStatuses = override.PaidStatuses
	}
	return policy, nil
}

func mergeTrigger(base, override TriggerPolicy) TriggerPolicy {
	if len(override.Tags) > 0 {
		base.Tags = override.Tags
	}
	if len(override.Statuses) > 0 {
		base.Statuses = override.Statuses
	}
	return base
}
