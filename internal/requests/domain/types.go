// Package domain contains the verification request state machine.
package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/ident"
	"github.com/pendergraft/revealer/internal/status"
	"github.com/pendergraft/revealer/internal/storage"
)

// State is the lifecycle position of a request.
type State string

const (
	StatePending   State = "pending"
	StateFulfilled State = "fulfilled"
	StateCanceled  State = "canceled"
)

// Request is a verification request. It is never deleted.
type Request struct {
	ID               ident.RequestID
	Requester        common.Address
	Revealee         common.Address
	Payment          *big.Int
	Expiration       time.Time
	IsCanceled       bool
	IsFulfilled      bool
	IsHumanAndUnique bool
	IsKYCUser        bool
	KYCTimestamp     uint64
	CreatedAt        time.Time
	CanceledAt       time.Time
	FulfilledAt      time.Time
}

// State derives the lifecycle position from the terminal flags.
func (r *Request) State() State {
	switch {
	case r.IsFulfilled:
		return StateFulfilled
	case r.IsCanceled:
		return StateCanceled
	default:
		return StatePending
	}
}

// Resolved reports whether the request reached a terminal state.
func (r *Request) Resolved() bool {
	return r.IsFulfilled || r.IsCanceled
}

// Outcome returns the accepted verification status of a fulfilled request.
func (r *Request) Outcome() (status.Status, bool) {
	if !r.IsFulfilled {
		return 0, false
	}
	switch {
	case r.IsKYCUser:
		return status.KYCUser, true
	case r.IsHumanAndUnique:
		return status.HumanAndUnique, true
	default:
		return status.NotFound, true
	}
}

// CreateParams are the inputs to Create. The id is assigned by the
// dispatch mechanism.
type CreateParams struct {
	ID        ident.RequestID
	Requester common.Address
	Revealee  common.Address
	Payment   *big.Int
}

func fromStorage(rec *storage.Request) (*Request, error) {
	payment, ok := new(big.Int).SetString(rec.Payment, 10)
	if !ok {
		return nil, fmt.Errorf("stored payment %q is not an integer", rec.Payment)
	}
	req := &Request{
		ID:               common.HexToHash(rec.ID),
		Requester:        common.HexToAddress(rec.Requester),
		Revealee:         common.HexToAddress(rec.Revealee),
		Payment:          payment,
		Expiration:       time.Unix(rec.Expiration, 0),
		IsCanceled:       rec.IsCanceled,
		IsFulfilled:      rec.IsFulfilled,
		IsHumanAndUnique: rec.IsHumanAndUnique,
		IsKYCUser:        rec.IsKYCUser,
		KYCTimestamp:     rec.KYCTimestamp,
		CreatedAt:        time.Unix(rec.CreatedAt, 0),
	}
	if rec.CanceledAt != 0 {
		req.CanceledAt = time.Unix(rec.CanceledAt, 0)
	}
	if rec.FulfilledAt != 0 {
		req.FulfilledAt = time.Unix(rec.FulfilledAt, 0)
	}
	return req, nil
}
