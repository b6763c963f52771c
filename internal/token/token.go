// Package token implements the policy ownership registry. One token per
// policy, same id; only the bound insurance pool may mint or burn. Ownership
// transfers move the future payout beneficiary with the token.
package token

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"CoverPool/internal/pool"
)

// Registry tracks policy-token ownership.
type Registry struct {
	mu sync.Mutex

	owner common.Address
	pool  common.Address

	nextID  uint64
	owners  map[uint64]common.Address
	byOwner map[common.Address][]uint64
}

func NewRegistry(owner common.Address) *Registry {
	return &Registry{
		owner:   owner,
		owners:  make(map[uint64]common.Address),
		byOwner: make(map[common.Address][]uint64),
	}
}

// SetInsurancePool binds the authorized minter. Owner-only.
func (r *Registry) SetInsurancePool(caller, poolAddr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return pool.ErrUnauthorized
	}
	r.pool = poolAddr
	return nil
}

// Mint issues the next token id to `to`. Only the bound pool may mint.
func (r *Registry) Mint(caller, to common.Address) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.pool || r.pool == (common.Address{}) {
		return 0, pool.ErrNotInsurancePool
	}

	r.nextID++
	id := r.nextID
	r.owners[id] = to
	r.byOwner[to] = append(r.byOwner[to], id)
	return id, nil
}

// Burn destroys a token. Pool-only; exists so a failed purchase can roll the
// mint back. Burning the most recent id reclaims it, so a rolled-back mint
// leaves the id counter exactly where it was.
func (r *Registry) Burn(caller common.Address, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.pool {
		return pool.ErrNotInsurancePool
	}

	holder, ok := r.owners[tokenID]
	if !ok {
		return fmt.Errorf("token %d does not exist", tokenID)
	}

	delete(r.owners, tokenID)
	r.byOwner[holder] = removeID(r.byOwner[holder], tokenID)
	if tokenID == r.nextID {
		r.nextID--
	}
	return nil
}

// Transfer moves a token between holders.
func (r *Registry) Transfer(from, to common.Address, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	holder, ok := r.owners[tokenID]
	if !ok {
		return fmt.Errorf("token %d does not exist", tokenID)
	}
	if holder != from {
		return fmt.Errorf("token %d is not held by %s", tokenID, from.Hex())
	}

	r.owners[tokenID] = to
	r.byOwner[from] = removeID(r.byOwner[from], tokenID)
	r.byOwner[to] = append(r.byOwner[to], tokenID)
	return nil
}

// OwnerOf returns the current holder of tokenID.
func (r *Registry) OwnerOf(tokenID uint64) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	holder, ok := r.owners[tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("token %d does not exist", tokenID)
	}
	return holder, nil
}

// BalanceOf returns how many policy tokens `holder` owns.
func (r *Registry) BalanceOf(holder common.Address) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOwner[holder])
}

// PoliciesOfOwner returns holder's token ids in insertion order.
func (r *Registry) PoliciesOfOwner(holder common.Address) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byOwner[holder]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// Restore rebuilds ownership from durable policy rows after a restart.
// Owner-only and valid only on an empty registry. Ids are replayed in
// ascending order so per-holder listings stay deterministic.
func (r *Registry) Restore(caller common.Address, holders map[uint64]common.Address, nextID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return pool.ErrUnauthorized
	}
	if len(r.owners) != 0 || r.nextID != 0 {
		return fmt.Errorf("registry is not fresh")
	}

	ids := make([]uint64, 0, len(holders))
	for id := range holders {
		if id > nextID {
			return fmt.Errorf("token %d is beyond next id %d", id, nextID)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		holder := holders[id]
		r.owners[id] = holder
		r.byOwner[holder] = append(r.byOwner[holder], id)
	}
	r.nextID = nextID
	return nil
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
