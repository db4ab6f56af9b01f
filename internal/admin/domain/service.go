package domain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/ident"
	"github.com/pendergraft/revealer/internal/observability/metrics"
	"github.com/pendergraft/revealer/internal/storage"
)

// Common errors returned by the admin service.
var (
	ErrNotOwner       = errors.New("caller is not the owner")
	ErrNotInitialized = errors.New("settings not initialized")
	ErrZeroAddress    = errors.New("zero address")
	ErrInvalidPayment = errors.New("invalid payment amount")
)

// SettingsStore defines the storage operations needed by the admin domain.
type SettingsStore interface {
	GetSettings(ctx context.Context) (*storage.Settings, error)
	SeedSettings(ctx context.Context, s *storage.Settings) (bool, error)
	SaveSettings(ctx context.Context, s *storage.Settings) error
}

type service struct {
	mu    sync.Mutex
	store SettingsStore
	now   func() time.Time
}

// NewService creates a new admin service.
func NewService(store SettingsStore) *service {
	return &service{store: store, now: time.Now}
}

// Seed stores initial as the settings unless settings already exist.
// The stored settings win over initial on every later start.
func (s *service) Seed(ctx context.Context, initial Settings) (bool, error) {
	if initial.Owner == (common.Address{}) {
		return false, fmt.Errorf("seeding owner: %w", ErrZeroAddress)
	}
	if initial.Payment == nil || initial.Payment.Sign() < 0 {
		return false, ErrInvalidPayment
	}
	if initial.JobID.IsZero() {
		return false, fmt.Errorf("seeding job id: %w", ident.ErrIncorrectLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	initial.UpdatedAt = s.now()
	created, err := s.store.SeedSettings(ctx, toStorage(initial))
	if err != nil {
		return false, fmt.Errorf("seeding settings: %w", err)
	}
	return created, nil
}

// Get returns the current settings.
func (s *service) Get(ctx context.Context) (*Settings, error) {
	rec, err := s.store.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("getting settings: %w", err)
	}
	return fromStorage(rec)
}

// TokenAddress returns the configured payment token.
func (s *service) TokenAddress(ctx context.Context) (common.Address, error) {
	cur, err := s.Get(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return cur.Link, nil
}

// SetOracle replaces the oracle address.
func (s *service) SetOracle(ctx context.Context, caller, oracle common.Address) error {
	return s.update(ctx, ParamOracle, caller, func(cur *Settings) error {
		cur.Oracle = oracle
		return nil
	})
}

// SetOraclePayment replaces the per-request payment.
func (s *service) SetOraclePayment(ctx context.Context, caller common.Address, payment *big.Int) error {
	return s.update(ctx, ParamPayment, caller, func(cur *Settings) error {
		if payment == nil || payment.Sign() < 0 {
			return ErrInvalidPayment
		}
		cur.Payment = new(big.Int).Set(payment)
		return nil
	})
}

// SetLink replaces the payment token address.
func (s *service) SetLink(ctx context.Context, caller, link common.Address) error {
	return s.update(ctx, ParamLink, caller, func(cur *Settings) error {
		cur.Link = link
		return nil
	})
}

// SetSignUpURL replaces the sign-up URL.
func (s *service) SetSignUpURL(ctx context.Context, caller common.Address, url string) error {
	return s.update(ctx, ParamSignUpURL, caller, func(cur *Settings) error {
		cur.SignUpURL = url
		return nil
	})
}

// SetJobID replaces the job identifier. Anything but exactly
// ident.JobIDLength characters fails with ident.ErrIncorrectLength.
func (s *service) SetJobID(ctx context.Context, caller common.Address, jobID string) error {
	return s.update(ctx, ParamJobID, caller, func(cur *Settings) error {
		id, err := ident.NewJobID(jobID)
		if err != nil {
			return err
		}
		cur.JobID = id
		return nil
	})
}

// TransferOwnership hands the owner role to newOwner.
func (s *service) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return s.update(ctx, ParamOwner, caller, func(cur *Settings) error {
		if newOwner == (common.Address{}) {
			return ErrZeroAddress
		}
		cur.Owner = newOwner
		return nil
	})
}

// update loads the settings, checks the owner gate, applies one change and
// saves. Nothing is written if apply fails.
func (s *service) update(ctx context.Context, param Param, caller common.Address, apply func(*Settings) error) (err error) {
	defer func() { metrics.AdminUpdate(string(param), metrics.Outcome(err)) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if caller != cur.Owner {
		return ErrNotOwner
	}
	if err := apply(cur); err != nil {
		return err
	}
	cur.UpdatedAt = s.now()

	if err := s.store.SaveSettings(ctx, toStorage(*cur)); err != nil {
		return fmt.Errorf("saving %s: %w", param, err)
	}
	return nil
}

func toStorage(s Settings) *storage.Settings {
	return &storage.Settings{
		Owner:     s.Owner.Hex(),
		Oracle:    s.Oracle.Hex(),
		Payment:   s.Payment.String(),
		Link:      s.Link.Hex(),
		SignUpURL: s.SignUpURL,
		JobID:     s.JobID.String(),
		UpdatedAt: s.UpdatedAt.Unix(),
	}
}

func fromStorage(rec *storage.Settings) (*Settings, error) {
	payment, ok := new(big.Int).SetString(rec.Payment, 10)
	if !ok {
		return nil, fmt.Errorf("stored payment %q is not an integer", rec.Payment)
	}
	jobID, err := ident.NewJobID(rec.JobID)
	if err != nil {
		return nil, fmt.Errorf("stored job id: %w", err)
	}
	return &Settings{
		Owner:     common.HexToAddress(rec.Owner),
		Oracle:    common.HexToAddress(rec.Oracle),
		Payment:   payment,
		Link:      common.HexToAddress(rec.Link),
		SignUpURL: rec.SignUpURL,
		JobID:     jobID,
		UpdatedAt: time.Unix(rec.UpdatedAt, 0),
	}, nil
}
