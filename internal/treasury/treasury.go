// Package treasury is the protocol fee sink. It holds its own account in the
// bank ledger; the pool forwards protocol fees here and the owner withdraws.
package treasury

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"CoverPool/internal/bank"
	"CoverPool/internal/event"
	"CoverPool/internal/pool"
	"CoverPool/internal/wei"
)

// Ledger records fee inflow and owner withdrawals.
type Ledger struct {
	mu sync.Mutex

	owner common.Address
	addr  common.Address
	bank  *bank.Ledger

	totalReceived  *big.Int
	totalWithdrawn *big.Int

	// emit forwards treasury events into the pool's fan-out; nil disables.
	emit func(t event.Type, payload interface{})
}

func NewLedger(owner, addr common.Address, bank *bank.Ledger) *Ledger {
	return &Ledger{
		owner:          owner,
		addr:           addr,
		bank:           bank,
		totalReceived:  wei.Zero(),
		totalWithdrawn: wei.Zero(),
	}
}

// WithEmitter attaches an event sink for FundsWithdrawn. Fee inflows are
// recorded by the pool as part of the purchase that pays them.
func (l *Ledger) WithEmitter(emit func(t event.Type, payload interface{})) *Ledger {
	l.emit = emit
	return l
}

// Address returns the treasury's bank account.
func (l *Ledger) Address() common.Address { return l.addr }

// Receive moves amount from sender into the treasury. Zero amounts are
// rejected; a failed transfer leaves both sides untouched.
func (l *Ledger) Receive(sender common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !wei.IsPositive(amount) {
		return pool.ErrZeroAmount
	}
	if err := l.bank.Transfer(sender, l.addr, amount); err != nil {
		return pool.ErrTransferFailed
	}

	l.totalReceived.Add(l.totalReceived, amount)
	return nil
}

// Withdrawal sends amount from the treasury to `to`. Owner-only.
func (l *Ledger) Withdrawal(caller, to common.Address, amount *big.Int) error {
	l.mu.Lock()

	if caller != l.owner {
		l.mu.Unlock()
		return pool.ErrUnauthorized
	}
	if !wei.IsPositive(amount) {
		l.mu.Unlock()
		return pool.ErrZeroAmount
	}
	if err := l.bank.Transfer(l.addr, to, amount); err != nil {
		l.mu.Unlock()
		return pool.ErrTransferFailed
	}

	l.totalWithdrawn.Add(l.totalWithdrawn, amount)
	emit := l.emit
	// Emit outside the lock: the sink takes the pool engine's lock and the
	// engine calls Receive while holding it.
	l.mu.Unlock()

	if emit != nil {
		emit(event.TypeFundsWithdrawn, event.FundsWithdrawn{
			To:     to.Hex(),
			Amount: amount.String(),
		})
	}
	return nil
}

// Balance is the treasury's held balance.
func (l *Ledger) Balance() *big.Int {
	return l.bank.BalanceOf(l.addr)
}

// TotalReceived is the lifetime fee inflow.
func (l *Ledger) TotalReceived() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return wei.Clone(l.totalReceived)
}

// TotalWithdrawn is the lifetime withdrawal outflow.
func (l *Ledger) TotalWithdrawn() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return wei.Clone(l.totalWithdrawn)
}
