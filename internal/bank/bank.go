// Package bank models the value-transfer layer the pool settles against.
// Balances are wei amounts keyed by address. A transfer either moves the
// full amount or fails, so callers can treat it as atomic.
package bank

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"CoverPool/internal/wei"
)

// Ledger tracks held balances per address.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]*big.Int),
	}
}

// Credit adds amount to addr. Used for funding test accounts and for
// value arriving with a payable call.
func (l *Ledger) Credit(addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add(addr, amount)
}

// Transfer moves amount from one address to another. Fails without any
// state change when the payer holds less than amount.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balanceLocked(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s wei from %s: balance %s", amount, from.Hex(), bal)
	}

	bal.Sub(bal, amount)
	l.add(to, amount)
	return nil
}

// Burn removes amount from addr. Fails when addr holds less than amount.
func (l *Ledger) Burn(addr common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balanceLocked(addr)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("burn %s wei from %s: balance %s", amount, addr.Hex(), bal)
	}
	bal.Sub(bal, amount)
	return nil
}

// BalanceOf returns the held balance of addr.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return wei.Clone(l.balanceLocked(addr))
}

func (l *Ledger) balanceLocked(addr common.Address) *big.Int {
	if bal, ok := l.balances[addr]; ok {
		return bal
	}
	bal := wei.Zero()
	l.balances[addr] = bal
	return bal
}

func (l *Ledger) add(addr common.Address, amount *big.Int) {
	l.balanceLocked(addr).Add(l.balances[addr], amount)
}
