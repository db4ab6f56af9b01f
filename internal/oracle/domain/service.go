package domain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	admindomain "github.com/pendergraft/revealer/internal/admin/domain"
	"github.com/pendergraft/revealer/internal/ident"
	"github.com/pendergraft/revealer/internal/observability/metrics"
	requestsdomain "github.com/pendergraft/revealer/internal/requests/domain"
	"github.com/pendergraft/revealer/internal/status"
	"github.com/pendergraft/revealer/internal/storage"
)

// Common errors returned by the gateway.
var (
	ErrUnauthorized   = errors.New("caller is not the oracle of the request")
	ErrDispatchFailed = errors.New("oracle dispatch failed")
	ErrInvalidStatus  = status.ErrInvalidStatus
	ErrNotDispatched  = errors.New("no dispatch recorded for request")
)

// Settings is the admin capability the gateway needs.
type Settings interface {
	Get(ctx context.Context) (*admindomain.Settings, error)
	SetJobID(ctx context.Context, caller common.Address, jobID string) error
}

// Registry is the request registry capability the gateway needs.
type Registry interface {
	Create(ctx context.Context, p requestsdomain.CreateParams, afterCollect storage.TxHook) (*requestsdomain.Request, error)
	Resolve(ctx context.Context, id ident.RequestID, st status.Status, kycTimestamp uint64) (bool, error)
}

// DispatchStore defines the storage operations needed by the gateway.
type DispatchStore interface {
	NextNonce(ctx context.Context) (uint64, error)
	RecordDispatch(ctx context.Context, d *storage.Dispatch) error
	GetDispatch(ctx context.Context, requestID string) (*storage.Dispatch, error)
}

// Dispatcher hands a descriptor to the oracle network.
type Dispatcher interface {
	Dispatch(ctx context.Context, d Descriptor) error
}

type gateway struct {
	settings   Settings
	registry   Registry
	dispatches DispatchStore
	dispatcher Dispatcher
	consumer   common.Address
	now        func() time.Time
}

// NewGateway creates a new oracle gateway. consumer is the address results
// are delivered to and request ids are derived from.
func NewGateway(settings Settings, registry Registry, dispatches DispatchStore, dispatcher Dispatcher, consumer common.Address) *gateway {
	return &gateway{
		settings:   settings,
		registry:   registry,
		dispatches: dispatches,
		dispatcher: dispatcher,
		consumer:   consumer,
		now:        time.Now,
	}
}

// RequestStatus asks the oracle whether revealee is a verified human, paid
// for by requester. The request exists only if both the payment and the
// dispatch succeed.
func (g *gateway) RequestStatus(ctx context.Context, requester, revealee common.Address) (*requestsdomain.Request, error) {
	cfg, err := g.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	nonce, err := g.dispatches.NextNonce(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating request id: %w", err)
	}

	d := Descriptor{
		RequestID:        ident.DeriveRequestID(g.consumer, nonce),
		Oracle:           cfg.Oracle,
		JobID:            cfg.JobID.String(),
		CallbackAddress:  g.consumer,
		CallbackFunction: CallbackSignature,
		CallbackSelector: CallbackSelector,
		Payment:          cfg.Payment.String(),
		Requester:        requester,
		Revealee:         revealee,
		Nonce:            nonce,
		CreatedAt:        g.now().UTC(),
	}
	return g.registry.Create(ctx, requestsdomain.CreateParams{
		ID:        d.RequestID,
		Requester: requester,
		Revealee:  revealee,
		Payment:   new(big.Int).Set(cfg.Payment),
	}, func(ctx context.Context) error {
		// ctx carries the request's transaction; the record and the request
		// commit together.
		if err := g.dispatches.RecordDispatch(ctx, d.toStorage()); err != nil {
			return fmt.Errorf("recording dispatch: %w", err)
		}
		err := g.dispatcher.Dispatch(ctx, d)
		metrics.Dispatch(metrics.Outcome(err))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
		}
		return nil
	})
}

// Fulfill delivers an oracle result. oracle is the authenticated sender; it
// must be the oracle the request was dispatched to.
func (g *gateway) Fulfill(ctx context.Context, oracle common.Address, id ident.RequestID, ordinal, kycTimestamp uint64) (bool, error) {
	st, err := status.FromOrdinal(ordinal)
	if err != nil {
		return false, err
	}

	rec, err := g.dispatches.GetDispatch(ctx, id.Hex())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, ErrUnauthorized
		}
		return false, fmt.Errorf("reading dispatch: %w", err)
	}
	if common.HexToAddress(rec.Oracle) != oracle {
		return false, ErrUnauthorized
	}

	return g.registry.Resolve(ctx, id, st, kycTimestamp)
}

// SetJobID replaces the job identifier used for future requests.
func (g *gateway) SetJobID(ctx context.Context, caller common.Address, jobID string) error {
	return g.settings.SetJobID(ctx, caller, jobID)
}

// Dispatch returns the descriptor recorded for a request.
func (g *gateway) Dispatch(ctx context.Context, id ident.RequestID) (*Descriptor, error) {
	rec, err := g.dispatches.GetDispatch(ctx, id.Hex())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotDispatched
		}
		return nil, fmt.Errorf("reading dispatch: %w", err)
	}
	d := descriptorFromStorage(rec, g.consumer)
	return &d, nil
}
