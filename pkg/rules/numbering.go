package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const numberWidth = 6

// Locker serializes work across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Numberer allocates sequential invoice numbers such as INV-000042.
type Numberer struct {
	store   store.Store
	locker  Locker
	prefix  string
	lockTTL time.Duration
	logger  ectologger.Logger
}

// NewNumberer creates a Numberer. locker may be nil, in which case numbers are
// allocated without cross-process coordination.
func NewNumberer(s store.Store, locker Locker, prefix string, lockTTL time.Duration, logger ectologger.Logger) *Numberer {
	if prefix == "" {
		prefix = "INV"
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &Numberer{
		store:   s,
		locker:  locker,
		prefix:  prefix,
		lockTTL: lockTTL,
		logger:  logger,
	}
}

// Prefix returns the configured number prefix.
func (n *Numberer) Prefix() string {
	return n.prefix
}

// Next returns the number following the highest existing one with the same
// prefix, or the first number when none exists.
func (n *Numberer) Next(ctx context.Context) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "rules.Numberer.Next")
	defer span.End()

	lead := n.prefix + "-"
	invoices, err := n.store.FetchMany(ctx, store.Query{
		Type:   "invoice",
		Prefix: &store.PrefixFilter{Field: "invoiceNumber", Value: lead},
		Fields: []string{"invoiceNumber"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up invoice numbers: %w", err)
	}

	highest := 0
	for _, invoice := range invoices {
		suffix := strings.TrimPrefix(invoice.String("invoiceNumber"), lead)
		value, err := strconv.Atoi(suffix)
		if err != nil || value < 0 {
			continue
		}
		if value > highest {
			highest = value
		}
	}

	return FormatNumber(n.prefix, highest+1), nil
}

// WithNext allocates the next number and passes it to fn while holding the
// numbering lock, so the number is claimed before another process reads.
func (n *Numberer) WithNext(ctx context.Context, fn func(number string) error) error {
	run := func() error {
		number, err := n.Next(ctx)
		if err != nil {
			return err
		}
		n.logger.WithContext(ctx).Debugf("Allocated invoice number %s", number)
		return fn(number)
	}

	if n.locker == nil {
		return run()
	}
	return n.locker.WithLock(ctx, "invoice-number:"+n.prefix, n.lockTTL, run)
}

// FormatNumber renders prefix and sequence as PREFIX-000001.
func FormatNumber(prefix string, sequence int) string {
	return fmt.Sprintf("%s-%0*d", prefix, numberWidth, sequence)
}
