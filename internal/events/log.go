package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pendergraft/revealer/internal/storage"
)

// EventLister is the storage capability the event log reader needs.
type EventLister interface {
	ListEvents(ctx context.Context, filter storage.EventFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Event], error)
}

// Page is one page of the event log.
type Page struct {
	Events     []Event `json:"data"`
	HasMore    bool    `json:"hasMore"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// Log reads the event log for indexers.
type Log struct {
	store EventLister
}

// NewLog creates an event log reader.
func NewLog(store EventLister) *Log {
	return &Log{store: store}
}

// List returns events in the order they were emitted.
func (l *Log) List(ctx context.Context, filter storage.EventFilter, pagination storage.PaginationParams) (*Page, error) {
	result, err := l.store.ListEvents(ctx, filter, pagination)
	if err != nil {
		return nil, err
	}

	page := &Page{Events: make([]Event, 0, len(result.Data)), HasMore: result.HasMore, NextCursor: result.NextCursor}
	for _, rec := range result.Data {
		var e Event
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return nil, fmt.Errorf("decoding event %s: %w", rec.ID, err)
		}
		page.Events = append(page.Events, e)
	}
	return page, nil
}
