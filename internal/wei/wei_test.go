package wei_test

import (
	"math/big"
	"testing"

	"CoverPool/internal/wei"
)

func TestMulDiv_FloorsTowardZero(t *testing.T) {
	// 7 * 3 / 2 = 10.5 -> 10
	got := wei.MulDiv(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	if got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("got %s, want 10", got)
	}
}

func TestMulDiv_NoOverflowOnLargeOperands(t *testing.T) {
	// (1e18 * 1e18) overflows int64/uint64 but not big.Int.
	a := wei.FromEther(1)
	got := wei.MulDiv(a, a, wei.Ether)
	if got.Cmp(wei.FromEther(1)) != 0 {
		t.Errorf("got %s, want 1e18", got)
	}
}

func TestMulDivBps(t *testing.T) {
	tests := []struct {
		amount int64
		bps    uint64
		want   int64
	}{
		{10_000, 300, 300},
		{10_000, 10_000, 10_000},
		{33, 300, 0}, // 33*300/10000 = 0.99 -> floor 0
		{1, 10_000, 1},
	}
	for _, tc := range tests {
		got := wei.MulDivBps(big.NewInt(tc.amount), tc.bps)
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Errorf("MulDivBps(%d, %d) = %s, want %d", tc.amount, tc.bps, got, tc.want)
		}
	}
}

func TestClone_Independent(t *testing.T) {
	a := big.NewInt(5)
	b := wei.Clone(a)
	b.Add(b, big.NewInt(1))
	if a.Cmp(big.NewInt(5)) != 0 {
		t.Error("Clone must not alias the original")
	}
}
