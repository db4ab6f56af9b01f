package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is an in-memory multi-token balance sheet with allowances. It backs
// tests and local development when no RPC endpoint is configured.
type Ledger struct {
	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[allowanceKey]*big.Int
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[allowanceKey]*big.Int),
	}
}

// Mint credits amount to holder.
func (l *Ledger) Mint(token, holder common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balanceLocked(token, holder)
	bal.Add(bal, amount)
}

// Approve sets the allowance owner grants spender.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[token] == nil {
		l.allowances[token] = make(map[allowanceKey]*big.Int)
	}
	l.allowances[token][allowanceKey{owner, spender}] = new(big.Int).Set(amount)
}

// BalanceOf returns a copy of holder's balance.
func (l *Ledger) BalanceOf(token, holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(token, holder))
}

// Allowance returns a copy of the allowance owner granted spender.
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.allowances[token][allowanceKey{owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// TransferFrom implements Token.
func (l *Ledger) TransferFrom(_ context.Context, token, owner, spender common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance, ok := l.allowances[token][allowanceKey{owner, spender}]
	if !ok || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has not approved %s for %s", ErrInsufficientAllowance, owner.Hex(), spender.Hex(), amount)
	}
	if err := l.moveLocked(token, owner, spender, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

// Transfer implements Token.
func (l *Ledger) Transfer(_ context.Context, token, holder, recipient common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(token, holder, recipient, amount)
}

func (l *Ledger) moveLocked(token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", ErrTransferFailed)
	}
	src := l.balanceLocked(token, from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance of %s is %s, need %s", ErrTransferFailed, from.Hex(), src, amount)
	}
	src.Sub(src, amount)
	dst := l.balanceLocked(token, to)
	dst.Add(dst, amount)
	return nil
}

func (l *Ledger) balanceLocked(token, holder common.Address) *big.Int {
	if l.balances[token] == nil {
		l.balances[token] = make(map[common.Address]*big.Int)
	}
	bal, ok := l.balances[token][holder]
	if !ok {
		bal = new(big.Int)
		l.balances[token][holder] = bal
	}
	return bal
}
