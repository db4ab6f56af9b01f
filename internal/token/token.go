// Package token defines the fungible-token collaborator used to escrow request payments.
package token

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Errors reported by token implementations.
var (
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrTransferFailed        = errors.New("transfer failed")
)

// Token moves balances of an ERC-20 style token. Both operations are
// all-or-nothing: on error no balance has moved.
type Token interface {
	// TransferFrom pulls amount from owner to spender against the allowance
	// owner granted spender.
	TransferFrom(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error

	// Transfer pushes amount from holder to recipient.
	Transfer(ctx context.Context, token, holder, recipient common.Address, amount *big.Int) error
}
