// Package escrow holds request payments between creation and resolution.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/token"
)

// ErrPaymentFailed wraps any token failure during collection or refund.
var ErrPaymentFailed = errors.New("payment failed")

// TokenSource resolves the currently configured payment token address.
type TokenSource interface {
	TokenAddress(ctx context.Context) (common.Address, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (common.Address, error)

// TokenAddress implements TokenSource.
func (f TokenSourceFunc) TokenAddress(ctx context.Context) (common.Address, error) {
	return f(ctx)
}

// Escrow moves payment between requesters and the consumer's balance.
type Escrow struct {
	token    token.Token
	tokens   TokenSource
	consumer common.Address
}

// New creates an escrow that holds funds at consumer.
func New(t token.Token, tokens TokenSource, consumer common.Address) *Escrow {
	return &Escrow{token: t, tokens: tokens, consumer: consumer}
}

// Consumer returns the address holding escrowed funds.
func (e *Escrow) Consumer() common.Address {
	return e.consumer
}

// Collect pulls amount from payer into escrow using payer's allowance.
func (e *Escrow) Collect(ctx context.Context, payer common.Address, amount *big.Int) error {
	addr, err := e.tokens.TokenAddress(ctx)
	if err != nil {
		return fmt.Errorf("resolving token: %w", err)
	}
	if err := e.token.TransferFrom(ctx, addr, payer, e.consumer, amount); err != nil {
		return fmt.Errorf("%w: collect %s from %s: %w", ErrPaymentFailed, amount, payer.Hex(), err)
	}
	return nil
}

// Refund pushes amount from escrow back to payee.
func (e *Escrow) Refund(ctx context.Context, payee common.Address, amount *big.Int) error {
	addr, err := e.tokens.TokenAddress(ctx)
	if err != nil {
		return fmt.Errorf("resolving token: %w", err)
	}
	if err := e.token.Transfer(ctx, addr, e.consumer, payee, amount); err != nil {
		return fmt.Errorf("%w: refund %s to %s: %w", ErrPaymentFailed, amount, payee.Hex(), err)
	}
	return nil
}
