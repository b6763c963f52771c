package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"CoverPool/internal/wei"
)

// Vault is the share-based accounting of pooled capital. Shares are
// 18-decimal fixed-point claims on totalAssets; price = totalAssets/totalShares.
// The vault never talks to the value-transfer layer; the engine does.
type Vault struct {
	shares      map[common.Address]*big.Int
	totalShares *big.Int
	totalAssets *big.Int
}

func NewVault() *Vault {
	return &Vault{
		shares:      make(map[common.Address]*big.Int),
		totalShares: wei.Zero(),
		totalAssets: wei.Zero(),
	}
}

// SharesForDeposit computes the shares a deposit of amount would mint at the
// current share price. First deposit mints 1:1.
func (v *Vault) SharesForDeposit(amount *big.Int) *big.Int {
	if v.totalShares.Sign() == 0 {
		return wei.Clone(amount)
	}
	return wei.MulDiv(amount, v.totalShares, v.totalAssets)
}

// AssetsForShares computes the wei value of sharesAmount at the current price.
func (v *Vault) AssetsForShares(sharesAmount *big.Int) *big.Int {
	if v.totalShares.Sign() == 0 {
		return wei.Zero()
	}
	return wei.MulDiv(sharesAmount, v.totalAssets, v.totalShares)
}

// Mint credits sharesAmount to lp and grows totals by the deposit.
func (v *Vault) Mint(lp common.Address, amount, sharesAmount *big.Int) {
	v.sharesOf(lp).Add(v.shares[lp], sharesAmount)
	v.totalShares.Add(v.totalShares, sharesAmount)
	v.totalAssets.Add(v.totalAssets, amount)
}

// Burn removes sharesAmount from lp and shrinks totals by ethAmount.
func (v *Vault) Burn(lp common.Address, ethAmount, sharesAmount *big.Int) {
	v.sharesOf(lp).Sub(v.shares[lp], sharesAmount)
	v.totalShares.Sub(v.totalShares, sharesAmount)
	v.totalAssets.Sub(v.totalAssets, ethAmount)
}

// AddAssets grows totalAssets without minting shares (net premium inflow).
// Existing LPs gain proportionally through the share price.
func (v *Vault) AddAssets(amount *big.Int) {
	v.totalAssets.Add(v.totalAssets, amount)
}

// SubAssets shrinks totalAssets without burning shares (coverage payout).
func (v *Vault) SubAssets(amount *big.Int) {
	v.totalAssets.Sub(v.totalAssets, amount)
}

// SharesOf returns lp's share balance.
func (v *Vault) SharesOf(lp common.Address) *big.Int {
	if s, ok := v.shares[lp]; ok {
		return wei.Clone(s)
	}
	return wei.Zero()
}

// TotalShares returns the sum of all LP shares.
func (v *Vault) TotalShares() *big.Int {
	return wei.Clone(v.totalShares)
}

// TotalAssets returns the pool's accounted capital.
func (v *Vault) TotalAssets() *big.Int {
	return wei.Clone(v.totalAssets)
}

// SumShares adds every LP's balance. Used by the invariant post-check
// (sum of sharesOf == totalShares).
func (v *Vault) SumShares() *big.Int {
	sum := wei.Zero()
	for _, s := range v.shares {
		sum.Add(sum, s)
	}
	return sum
}

func (v *Vault) sharesOf(lp common.Address) *big.Int {
	if s, ok := v.shares[lp]; ok {
		return s
	}
	s := wei.Zero()
	v.shares[lp] = s
	return s
}
