package pool

import "time"

// BPS is the basis-point denominator: 10000 = 100%.
const BPS uint64 = 10_000

// MaxPolicyDuration bounds buyPolicy durations. The original system accepted
// 7-day policies and rejected 100-day ones; 30 days sits inside that window
// and matches the product's monthly coverage cycles.
const MaxPolicyDuration = 30 * 24 * time.Hour

// Params are the three pool-wide basis-point parameters. They apply to
// policies created after the update only; stored policies are immutable.
type Params struct {
	MaxCoverageBps uint64 `json:"max_coverage_bps"`
	PremiumRateBps uint64 `json:"premium_rate_bps"`
	ProtocolFeeBps uint64 `json:"protocol_fee_bps"`
}

// Validate checks each value is in (0, BPS].
func (p Params) Validate() error {
	for _, v := range []uint64{p.MaxCoverageBps, p.PremiumRateBps, p.ProtocolFeeBps} {
		if v == 0 || v > BPS {
			return ErrInvalidBPS
		}
	}
	return nil
}
