package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pendergraft/revealer/internal/storage"
)

// EventAppender is the storage capability the event log needs.
type EventAppender interface {
	AppendEvent(ctx context.Context, e *storage.Event) error
}

// StorePublisher appends events to the queryable event log.
type StorePublisher struct {
	store EventAppender
}

// NewStorePublisher creates an event-log sink.
func NewStorePublisher(store EventAppender) *StorePublisher {
	return &StorePublisher{store: store}
}

// Publish implements Publisher.
func (p *StorePublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	rec := &storage.Event{
		Name:      string(e.Name),
		RequestID: e.RequestID.Hex(),
		Payload:   payload,
		CreatedAt: e.At.Unix(),
	}
	if err := p.store.AppendEvent(ctx, rec); err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

// JSONPublisher is satisfied by *queue.Publisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

// AMQPPublisher publishes events to a message broker, routed by
// "<prefix>.<event name in lowercase>".
type AMQPPublisher struct {
	pub    JSONPublisher
	prefix string
}

// NewAMQPPublisher creates a broker sink.
func NewAMQPPublisher(pub JSONPublisher, routingPrefix string) *AMQPPublisher {
	return &AMQPPublisher{pub: pub, prefix: routingPrefix}
}

// RoutingKey returns the key an event is published with.
func (p *AMQPPublisher) RoutingKey(name Name) string {
	return p.prefix + "." + strings.ToLower(string(name))
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	if err := p.pub.PublishJSON(ctx, p.RoutingKey(e.Name), e); err != nil {
		return fmt.Errorf("publishing %s: %w", e.Name, err)
	}
	return nil
}
