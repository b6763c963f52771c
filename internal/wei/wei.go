// Package wei provides integer math on wei-denominated amounts.
// All pool accounting uses floor division: any value lost to rounding
// stays in the pool rather than being redistributed.
package wei

import "math/big"

// Ether is the share/asset scale: 1e18 wei per unit.
var Ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Zero returns a fresh zero-valued amount.
func Zero() *big.Int {
	return new(big.Int)
}

// Clone returns an independent copy of v.
func Clone(v *big.Int) *big.Int {
	return new(big.Int).Set(v)
}

// MulDiv computes a * b / denom with floor rounding.
// The intermediate product is arbitrary precision, so a*b cannot overflow.
func MulDiv(a, b, denom *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Div(out, denom)
}

// MulDivBps computes amount * bps / 10000 with floor rounding.
func MulDivBps(amount *big.Int, bps uint64) *big.Int {
	return MulDiv(amount, new(big.Int).SetUint64(bps), big.NewInt(10_000))
}

// IsZero reports whether v == 0.
func IsZero(v *big.Int) bool {
	return v.Sign() == 0
}

// IsPositive reports whether v > 0.
func IsPositive(v *big.Int) bool {
	return v.Sign() > 0
}

// FromEther converts a whole-ether count to wei.
func FromEther(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Ether)
}
