package pool

import (
	"math/big"
	"testing"

	"CoverPool/internal/wei"
)

func TestSplitPremium_SumsExactly(t *testing.T) {
	cases := []struct {
		premium *big.Int
		feeBps  uint64
	}{
		{big.NewInt(10_000), 500},
		{big.NewInt(9_999), 500},
		{big.NewInt(1), 500},
		{big.NewInt(7), 3333},
		{wei.FromEther(3), 500},
	}
	for _, c := range cases {
		net, fee := SplitPremium(c.premium, c.feeBps)
		sum := new(big.Int).Add(net, fee)
		if sum.Cmp(c.premium) != 0 {
			t.Errorf("premium %s, fee %d bps: net %s + fee %s != premium", c.premium, c.feeBps, net, fee)
		}
		if fee.Sign() < 0 || net.Sign() < 0 {
			t.Errorf("premium %s: negative leg (net %s, fee %s)", c.premium, net, fee)
		}
	}
}

func TestSplitPremium_FeeIsFloored(t *testing.T) {
	// 9999 * 500 / 10000 = 499.95 -> 499, remainder 9500 to the pool.
	net, fee := SplitPremium(big.NewInt(9_999), 500)
	if fee.Cmp(big.NewInt(499)) != 0 {
		t.Errorf("fee = %s, want 499", fee)
	}
	if net.Cmp(big.NewInt(9_500)) != 0 {
		t.Errorf("net = %s, want 9500", net)
	}
}

func TestRequiredPremium(t *testing.T) {
	// 1 ether at 300 bps = 0.03 ether.
	want := new(big.Int).Mul(big.NewInt(3), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	if got := RequiredPremium(wei.FromEther(1), 300); got.Cmp(want) != 0 {
		t.Errorf("premium = %s, want %s", got, want)
	}

	// Small coverage floors toward zero.
	if got := RequiredPremium(big.NewInt(3), 300); got.Sign() != 0 {
		t.Errorf("premium = %s, want 0", got)
	}
}

func TestParamsValidate(t *testing.T) {
	good := Params{MaxCoverageBps: 2000, PremiumRateBps: 300, ProtocolFeeBps: 500}
	if err := good.Validate(); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}

	edge := Params{MaxCoverageBps: BPS, PremiumRateBps: 1, ProtocolFeeBps: BPS}
	if err := edge.Validate(); err != nil {
		t.Errorf("boundary params rejected: %v", err)
	}

	for _, bad := range []Params{
		{MaxCoverageBps: 0, PremiumRateBps: 300, ProtocolFeeBps: 500},
		{MaxCoverageBps: 2000, PremiumRateBps: 0, ProtocolFeeBps: 500},
		{MaxCoverageBps: 2000, PremiumRateBps: 300, ProtocolFeeBps: BPS + 1},
	} {
		if err := bad.Validate(); err != ErrInvalidBPS {
			t.Errorf("params %+v: got %v, want InvalidBPS", bad, err)
		}
	}
}
