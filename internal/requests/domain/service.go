package domain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/escrow"
	"github.com/pendergraft/revealer/internal/events"
	"github.com/pendergraft/revealer/internal/ident"
	"github.com/pendergraft/revealer/internal/observability/metrics"
	"github.com/pendergraft/revealer/internal/status"
	"github.com/pendergraft/revealer/internal/storage"
)

// DefaultExpirationWindow is how long a request stays non-cancelable.
const DefaultExpirationWindow = 5 * time.Minute

// Common errors returned by the registry.
var (
	ErrNotFound         = errors.New("request does not exist")
	ErrNoRequestsYet    = errors.New("no requests yet")
	ErrNotRequestOwner  = errors.New("not the owner of the request")
	ErrNotYetExpired    = errors.New("request is not expired")
	ErrAlreadyResolved  = errors.New("request already fulfilled or canceled")
	ErrDuplicateRequest = errors.New("request id already used")
	ErrPaymentFailed    = escrow.ErrPaymentFailed
)

// Fulfillment results used for metrics and logs.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)

// RequestStore defines the storage operations needed by the registry.
type RequestStore interface {
	InsertRequest(ctx context.Context, rec *storage.Request, hook storage.TxHook) error
	GetRequest(ctx context.Context, id string) (*storage.Request, error)
	RequestExists(ctx context.Context, id string) (bool, error)
	LatestRequestID(ctx context.Context, requester string) (string, error)
	CancelRequest(ctx context.Context, id string, at int64, hook storage.TxHook) error
	FulfillRequest(ctx context.Context, id string, f storage.Fulfillment) error
}

// Payments moves request payments in and out of escrow.
type Payments interface {
	Collect(ctx context.Context, payer common.Address, amount *big.Int) error
	Refund(ctx context.Context, payee common.Address, amount *big.Int) error
}

// Option configures the registry.
type Option func(*registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *registry) { r.now = now }
}

// WithExpirationWindow sets how long after creation a request becomes
// cancelable.
func WithExpirationWindow(d time.Duration) Option {
	return func(r *registry) { r.window = d }
}

type registry struct {
	mu       sync.Mutex
	store    RequestStore
	payments Payments
	events   events.Publisher
	now      func() time.Time
	window   time.Duration
}

// NewRegistry creates a new request registry.
func NewRegistry(store RequestStore, payments Payments, publisher events.Publisher, opts ...Option) *registry {
	r := &registry{
		store:    store,
		payments: payments,
		events:   publisher,
		now:      time.Now,
		window:   DefaultExpirationWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create escrows the payment and records a pending request. afterCollect
// runs once the payment is held and before the request is committed; if it
// fails the payment is refunded and nothing is recorded.
func (r *registry) Create(ctx context.Context, p CreateParams, afterCollect storage.TxHook) (req *Request, err error) {
	defer func() { metrics.RequestCreate(metrics.Outcome(err)) }()

	if p.Payment == nil || p.Payment.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid amount", ErrPaymentFailed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Timestamps have second granularity; expiration counts from the
	// recorded creation second.
	now := r.now().Truncate(time.Second)
	rec := &storage.Request{
		ID:         p.ID.Hex(),
		Requester:  p.Requester.Hex(),
		Revealee:   p.Revealee.Hex(),
		Payment:    p.Payment.String(),
		Expiration: now.Add(r.window).Unix(),
		CreatedAt:  now.Unix(),
	}

	collected := false
	err = r.store.InsertRequest(ctx, rec, func(ctx context.Context) error {
		if err := r.payments.Collect(ctx, p.Requester, p.Payment); err != nil {
			return err
		}
		collected = true
		if afterCollect != nil {
			return afterCollect(ctx)
		}
		return nil
	})
	if err != nil {
		if collected {
			if refundErr := r.payments.Refund(ctx, p.Requester, p.Payment); refundErr != nil {
				err = errors.Join(err, fmt.Errorf("returning payment: %w", refundErr))
			}
		}
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrDuplicateRequest
		}
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req, err = fromStorage(rec)
	if err != nil {
		return nil, err
	}
	// Delivery failures are logged by the publisher; the request stands.
	_ = r.events.Publish(ctx, events.NewRequested(req.ID, req.Requester, req.Revealee, req.Expiration, now))
	return req, nil
}

// Cancel marks an expired pending request canceled and refunds its payment
// to the requester. The flag and the refund succeed or fail together.
func (r *registry) Cancel(ctx context.Context, caller common.Address, id ident.RequestID) (req *Request, err error) {
	defer func() { metrics.RequestCancel(metrics.Outcome(err)) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	req, err = r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Requester != caller {
		return nil, ErrNotRequestOwner
	}
	now := r.now()
	if now.Before(req.Expiration) {
		return nil, ErrNotYetExpired
	}
	if req.Resolved() {
		return nil, ErrAlreadyResolved
	}

	err = r.store.CancelRequest(ctx, id.Hex(), now.Unix(), func(ctx context.Context) error {
		return r.payments.Refund(ctx, req.Requester, req.Payment)
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrConflict):
		return nil, ErrAlreadyResolved
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("canceling request: %w", err)
	}

	req.IsCanceled = true
	req.CanceledAt = time.Unix(now.Unix(), 0)
	return req, nil
}

// Resolve records an oracle result. An inconsistent (status, kycTimestamp)
// pair is rejected with accepted=false and leaves the request untouched.
func (r *registry) Resolve(ctx context.Context, id ident.RequestID, st status.Status, kycTimestamp uint64) (accepted bool, err error) {
	result := ResultRejected
	defer func() {
		if err != nil {
			result = metrics.StatusError
		}
		metrics.Fulfillment(result)
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	req, err := r.get(ctx, id)
	if err != nil {
		return false, err
	}
	if req.Resolved() {
		return false, ErrAlreadyResolved
	}
	if !status.Validate(st, kycTimestamp) {
		return false, nil
	}

	now := r.now()
	err = r.store.FulfillRequest(ctx, id.Hex(), storage.Fulfillment{
		IsHumanAndUnique: st.IsHumanAndUnique(),
		IsKYCUser:        st.IsKYCUser(),
		KYCTimestamp:     kycTimestamp,
		At:               now.Unix(),
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrConflict):
		return false, ErrAlreadyResolved
	case errors.Is(err, storage.ErrNotFound):
		return false, ErrNotFound
	default:
		return false, fmt.Errorf("fulfilling request: %w", err)
	}

	result = ResultAccepted
	_ = r.events.Publish(ctx, events.NewFulfilled(id, req.Requester, req.Revealee, st, kycTimestamp, now))
	return true, nil
}

// Get returns a request by id.
func (r *registry) Get(ctx context.Context, id ident.RequestID) (*Request, error) {
	return r.get(ctx, id)
}

// Exists reports whether a request with id was ever created.
func (r *registry) Exists(ctx context.Context, id ident.RequestID) (bool, error) {
	ok, err := r.store.RequestExists(ctx, id.Hex())
	if err != nil {
		return false, fmt.Errorf("checking request: %w", err)
	}
	return ok, nil
}

// LatestRequestID returns the id of the most recent request by requester.
func (r *registry) LatestRequestID(ctx context.Context, requester common.Address) (ident.RequestID, error) {
	id, err := r.store.LatestRequestID(ctx, requester.Hex())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ident.RequestID{}, ErrNoRequestsYet
		}
		return ident.RequestID{}, fmt.Errorf("getting latest request: %w", err)
	}
	return common.HexToHash(id), nil
}

func (r *registry) get(ctx context.Context, id ident.RequestID) (*Request, error) {
	rec, err := r.store.GetRequest(ctx, id.Hex())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting request: %w", err)
	}
	return fromStorage(rec)
}
