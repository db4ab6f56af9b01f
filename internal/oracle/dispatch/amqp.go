package dispatch

import (
	"context"
	"fmt"

	"github.com/pendergraft/revealer/internal/oracle/domain"
)

// JSONPublisher is satisfied by *queue.Publisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

// AMQPDispatcher publishes descriptors to a RabbitMQ exchange for oracle
// nodes subscribed to routingKey.
type AMQPDispatcher struct {
	pub        JSONPublisher
	routingKey string
}

// NewAMQPDispatcher creates a dispatcher publishing on routingKey.
func NewAMQPDispatcher(pub JSONPublisher, routingKey string) *AMQPDispatcher {
	return &AMQPDispatcher{pub: pub, routingKey: routingKey}
}

// Dispatch implements domain.Dispatcher.
func (a *AMQPDispatcher) Dispatch(ctx context.Context, d domain.Descriptor) error {
	if err := a.pub.PublishJSON(ctx, a.routingKey, d); err != nil {
		return fmt.Errorf("publishing descriptor %s: %w", d.RequestID.Hex(), err)
	}
	return nil
}
