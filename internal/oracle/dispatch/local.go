// Package dispatch delivers oracle request descriptors to the oracle network.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/oracle/domain"
)

// LocalOperator queues descriptors in memory until the oracle claims them.
// Queued descriptors are lost on restart; the dispatch log keeps the record.
type LocalOperator struct {
	mu      sync.Mutex
	pending []domain.Descriptor
	logger  *slog.Logger
}

// NewLocalOperator creates an empty queue.
func NewLocalOperator(logger *slog.Logger) *LocalOperator {
	return &LocalOperator{logger: logger}
}

// Dispatch implements domain.Dispatcher.
func (o *LocalOperator) Dispatch(_ context.Context, d domain.Descriptor) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, d)
	o.logger.Debug("descriptor queued", "requestId", d.RequestID.Hex(), "oracle", d.Oracle.Hex(), "queued", len(o.pending))
	return nil
}

// Claim removes and returns up to max descriptors addressed to oracle, oldest
// first. max <= 0 means all of them.
func (o *LocalOperator) Claim(oracle common.Address, max int) []domain.Descriptor {
	o.mu.Lock()
	defer o.mu.Unlock()

	claimed := []domain.Descriptor{}
	kept := o.pending[:0]
	for _, d := range o.pending {
		if d.Oracle == oracle && (max <= 0 || len(claimed) < max) {
			claimed = append(claimed, d)
			continue
		}
		kept = append(kept, d)
	}
	o.pending = kept
	return claimed
}

// Len returns the number of queued descriptors.
func (o *LocalOperator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
