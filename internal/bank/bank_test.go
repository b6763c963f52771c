package bank_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"CoverPool/internal/bank"
	"CoverPool/internal/wei"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestLedger_CreditAndBalance(t *testing.T) {
	l := bank.NewLedger()

	if l.BalanceOf(alice).Sign() != 0 {
		t.Fatal("fresh account should hold 0")
	}

	l.Credit(alice, wei.FromEther(3))
	if l.BalanceOf(alice).Cmp(wei.FromEther(3)) != 0 {
		t.Errorf("got %s, want 3 ether", l.BalanceOf(alice))
	}
}

func TestLedger_Transfer(t *testing.T) {
	l := bank.NewLedger()
	l.Credit(alice, wei.FromEther(2))

	if err := l.Transfer(alice, bob, wei.FromEther(1)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if l.BalanceOf(alice).Cmp(wei.FromEther(1)) != 0 {
		t.Errorf("alice: got %s, want 1 ether", l.BalanceOf(alice))
	}
	if l.BalanceOf(bob).Cmp(wei.FromEther(1)) != 0 {
		t.Errorf("bob: got %s, want 1 ether", l.BalanceOf(bob))
	}
}

func TestLedger_TransferInsufficientLeavesStateUntouched(t *testing.T) {
	l := bank.NewLedger()
	l.Credit(alice, big.NewInt(10))

	if err := l.Transfer(alice, bob, big.NewInt(11)); err == nil {
		t.Fatal("expected transfer to fail")
	}

	if l.BalanceOf(alice).Cmp(big.NewInt(10)) != 0 {
		t.Error("failed transfer must not touch the payer balance")
	}
	if l.BalanceOf(bob).Sign() != 0 {
		t.Error("failed transfer must not touch the payee balance")
	}
}

func TestLedger_Burn(t *testing.T) {
	l := bank.NewLedger()
	l.Credit(alice, big.NewInt(10))

	if err := l.Burn(alice, big.NewInt(4)); err != nil {
		t.Fatalf("burn failed: %v", err)
	}
	if l.BalanceOf(alice).Cmp(big.NewInt(6)) != 0 {
		t.Errorf("got %s, want 6", l.BalanceOf(alice))
	}

	if err := l.Burn(alice, big.NewInt(7)); err == nil {
		t.Error("expected burn above balance to fail")
	}
}
