package pool

import (
	"math/big"

	"CoverPool/internal/wei"
)

// SplitPremium divides a premium into the pool-retained net premium and the
// protocol fee forwarded to the treasury. Both legs use floor division; the
// fee is floored first and the net premium is the exact remainder, so
// net + fee == premium always holds.
func SplitPremium(premium *big.Int, protocolFeeBps uint64) (netPremium, protocolFee *big.Int) {
	protocolFee = wei.MulDivBps(premium, protocolFeeBps)
	netPremium = new(big.Int).Sub(premium, protocolFee)
	return netPremium, protocolFee
}

// RequiredPremium computes the exact premium a buyer must pay for coverage
// at the given rate: coverage * premiumRateBps / BPS, floored.
func RequiredPremium(coverage *big.Int, premiumRateBps uint64) *big.Int {
	return wei.MulDivBps(coverage, premiumRateBps)
}
