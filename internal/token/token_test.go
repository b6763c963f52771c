package token_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"CoverPool/internal/pool"
	"CoverPool/internal/token"
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	buyer    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	other    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func bound(t *testing.T) *token.Registry {
	t.Helper()
	r := token.NewRegistry(owner)
	if err := r.SetInsurancePool(owner, poolAddr); err != nil {
		t.Fatalf("bind pool: %v", err)
	}
	return r
}

func TestMint_OnlyPoolMayMint(t *testing.T) {
	r := bound(t)

	if _, err := r.Mint(buyer, buyer); err != pool.ErrNotInsurancePool {
		t.Errorf("got %v, want NotInsurancePool", err)
	}

	id, err := r.Mint(poolAddr, buyer)
	if err != nil {
		t.Fatalf("pool mint failed: %v", err)
	}
	if id != 1 {
		t.Errorf("first token id = %d, want 1", id)
	}
}

func TestMint_RejectedWhenPoolUnbound(t *testing.T) {
	r := token.NewRegistry(owner)
	if _, err := r.Mint(poolAddr, buyer); err != pool.ErrNotInsurancePool {
		t.Errorf("got %v, want NotInsurancePool", err)
	}
}

func TestSetInsurancePool_OwnerOnly(t *testing.T) {
	r := token.NewRegistry(owner)
	if err := r.SetInsurancePool(buyer, poolAddr); err != pool.ErrUnauthorized {
		t.Errorf("got %v, want OwnableUnauthorizedAccount", err)
	}
}

func TestPoliciesOfOwner_InsertionOrder(t *testing.T) {
	r := bound(t)

	for i := 0; i < 3; i++ {
		if _, err := r.Mint(poolAddr, buyer); err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
	}

	ids := r.PoliciesOfOwner(buyer)
	want := []uint64{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
	if r.BalanceOf(buyer) != 3 {
		t.Errorf("balance = %d, want 3", r.BalanceOf(buyer))
	}
}

func TestTransfer_MovesOwnership(t *testing.T) {
	r := bound(t)
	id, _ := r.Mint(poolAddr, buyer)

	if err := r.Transfer(buyer, other, id); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	holder, err := r.OwnerOf(id)
	if err != nil {
		t.Fatal(err)
	}
	if holder != other {
		t.Errorf("holder = %s, want %s", holder.Hex(), other.Hex())
	}
	if r.BalanceOf(buyer) != 0 || r.BalanceOf(other) != 1 {
		t.Error("balances not updated after transfer")
	}
}

func TestTransfer_OnlyCurrentHolder(t *testing.T) {
	r := bound(t)
	id, _ := r.Mint(poolAddr, buyer)

	if err := r.Transfer(other, buyer, id); err == nil {
		t.Error("expected transfer by a non-holder to fail")
	}
}

func TestBurn_PoolOnlyAndRemoves(t *testing.T) {
	r := bound(t)
	id, _ := r.Mint(poolAddr, buyer)

	if err := r.Burn(buyer, id); err != pool.ErrNotInsurancePool {
		t.Errorf("got %v, want NotInsurancePool", err)
	}

	if err := r.Burn(poolAddr, id); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if _, err := r.OwnerOf(id); err == nil {
		t.Error("burned token should not resolve an owner")
	}
}

func TestBurn_TopIDReclaimed(t *testing.T) {
	r := bound(t)
	id, _ := r.Mint(poolAddr, buyer)

	// A rolled-back mint hands its id back: the next mint reissues it.
	if err := r.Burn(poolAddr, id); err != nil {
		t.Fatalf("burn: %v", err)
	}
	next, err := r.Mint(poolAddr, buyer)
	if err != nil {
		t.Fatalf("mint after rollback: %v", err)
	}
	if next != id {
		t.Errorf("next id = %d, want reclaimed %d", next, id)
	}
}

func TestBurn_NonTopIDDoesNotShiftCounter(t *testing.T) {
	r := bound(t)
	first, _ := r.Mint(poolAddr, buyer)
	second, _ := r.Mint(poolAddr, other)

	if err := r.Burn(poolAddr, first); err != nil {
		t.Fatalf("burn: %v", err)
	}

	next, err := r.Mint(poolAddr, buyer)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if next != second+1 {
		t.Errorf("next id = %d, want %d", next, second+1)
	}
}
