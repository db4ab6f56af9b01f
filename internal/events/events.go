// Package events carries the Requested and Fulfilled notifications to
// external consumers.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/observability/metrics"
	"github.com/pendergraft/revealer/internal/status"
)

// Name identifies an event kind.
type Name string

// Event kinds.
const (
	Requested Name = "Requested"
	Fulfilled Name = "Fulfilled"
)

// Event is an observable state change of a verification request.
type Event struct {
	Name       Name           `json:"name"`
	RequestID  common.Hash    `json:"requestId"`
	Requester  common.Address `json:"requester"`
	Revealee   common.Address `json:"revealee"`
	Expiration int64          `json:"expiration,omitempty"`
	// Status and KYCTimestamp are only set on Fulfilled.
	Status       string    `json:"status,omitempty"`
	KYCTimestamp uint64    `json:"kycTimestamp"`
	At           time.Time `json:"at"`
}

// NewRequested builds the creation event.
func NewRequested(id common.Hash, requester, revealee common.Address, expiration, at time.Time) Event {
	return Event{
		Name:       Requested,
		RequestID:  id,
		Requester:  requester,
		Revealee:   revealee,
		Expiration: expiration.Unix(),
		At:         at.UTC(),
	}
}

// NewFulfilled builds the accepted-fulfillment event.
func NewFulfilled(id common.Hash, requester, revealee common.Address, st status.Status, kycTimestamp uint64, at time.Time) Event {
	return Event{
		Name:         Fulfilled,
		RequestID:    id,
		Requester:    requester,
		Revealee:     revealee,
		Status:       st.String(),
		KYCTimestamp: kycTimestamp,
		At:           at.UTC(),
	}
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Sink is a named publisher, the name is used for metrics and logs.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Multi fans an event out to every sink. A failing sink does not stop
// delivery to the others.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMulti creates a fan-out publisher.
func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

// Publish implements Publisher.
func (m *Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.Publisher.Publish(ctx, e)
		metrics.EventPublish(s.Name, metrics.Outcome(err))
		if err != nil {
			m.logger.Error("event publish failed",
				"sink", s.Name,
				"event", e.Name,
				"request_id", e.RequestID.Hex(),
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a log sink.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	attrs := []any{
		"event", e.Name,
		"request_id", e.RequestID.Hex(),
		"requester", e.Requester.Hex(),
		"revealee", e.Revealee.Hex(),
	}
	switch e.Name {
	case Requested:
		attrs = append(attrs, "expiration", e.Expiration)
	case Fulfilled:
		attrs = append(attrs, "status", e.Status, "kyc_timestamp", e.KYCTimestamp)
	}
	p.logger.Info("event", attrs...)
	return nil
}

// Discard drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, Event) error { return nil }
