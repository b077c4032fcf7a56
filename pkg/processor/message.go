package processor

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/kafka"
)

// HandleMessage processes a change event consumed from Kafka. Only failures
// to write the source's mapping record are returned, which leaves the
// message uncommitted for redelivery.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	if msg.Event == nil {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"topic":  msg.Topic,
			"offset": msg.Offset,
			"key":    msg.Key,
		}).Debug("Message carries no change event, skipping")
		return nil
	}

	_, err := p.Process(ctx, *msg.Event)
	return err
}
