package pool

import (
	"math/big"
	"time"

	"CoverPool/internal/wei"
)

// Policy is the durable record of one coverage purchase. Coverage, premium
// and the validity window are fixed at creation; parameter updates never
// touch stored policies. Resolved transitions false->true exactly once.
type Policy struct {
	ID       uint64
	Coverage *big.Int
	Premium  *big.Int
	Start    time.Time
	End      time.Time
	Resolved bool
}

// PolicyLedger stores policies and the running total of locked coverage.
// Locked coverage is the sum of Coverage across unresolved policies.
type PolicyLedger struct {
	policies            map[uint64]*Policy
	totalLockedCoverage *big.Int
}

func NewPolicyLedger() *PolicyLedger {
	return &PolicyLedger{
		policies:            make(map[uint64]*Policy),
		totalLockedCoverage: wei.Zero(),
	}
}

// Store records a new policy and locks its coverage.
func (pl *PolicyLedger) Store(p *Policy) {
	pl.policies[p.ID] = p
	pl.totalLockedCoverage.Add(pl.totalLockedCoverage, p.Coverage)
}

// Remove deletes a policy and unlocks its coverage. Used only to undo a
// Store whose follow-up external transfer failed.
func (pl *PolicyLedger) Remove(id uint64) {
	p, ok := pl.policies[id]
	if !ok {
		return
	}
	pl.totalLockedCoverage.Sub(pl.totalLockedCoverage, p.Coverage)
	delete(pl.policies, id)
}

// Get returns the policy with the given id.
func (pl *PolicyLedger) Get(id uint64) (*Policy, bool) {
	p, ok := pl.policies[id]
	return p, ok
}

// Resolve marks the policy resolved and unlocks its coverage.
func (pl *PolicyLedger) Resolve(p *Policy) {
	p.Resolved = true
	pl.totalLockedCoverage.Sub(pl.totalLockedCoverage, p.Coverage)
}

// Unresolve reverts Resolve. Used only to undo a resolution whose payout
// transfer failed.
func (pl *PolicyLedger) Unresolve(p *Policy) {
	p.Resolved = false
	pl.totalLockedCoverage.Add(pl.totalLockedCoverage, p.Coverage)
}

// TotalLockedCoverage returns the sum of coverage across unresolved policies.
func (pl *PolicyLedger) TotalLockedCoverage() *big.Int {
	return wei.Clone(pl.totalLockedCoverage)
}

// Count returns the number of stored policies, resolved or not.
func (pl *PolicyLedger) Count() int {
	return len(pl.policies)
}
