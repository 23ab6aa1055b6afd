package infrastructure

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// NoopMessagePublisher drops every message. It stands in for NATS when
// forwarding is not configured.
type NoopMessagePublisher struct{}

// NewNoopMessagePublisher creates a new no-op publisher
func NewNoopMessagePublisher() *NoopMessagePublisher {
	return &NoopMessagePublisher{}
}

// Publish logs the subject and discards the message
func (n *NoopMessagePublisher) Publish(ctx context.Context, subject, msgID string, data []byte) error {
	log.WithField("subject", subject).Trace("Dropping event, NATS forwarding disabled")
	return nil
}
