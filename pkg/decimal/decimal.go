// Package decimal implements the fixed-point money type this domain
// requires: monetary values use a minimum of 28 significant digits and at
// most 6 decimal places, with no floating point in the arithmetic path.
// No dependency in reach covers that shape directly (see DESIGN.md), so
// this one package is built directly on math/big rather than reaching
// for float64.
package decimal

import (
	"fmt"
	"math"
	"math/big"
)

// MaxScale is the largest number of decimal places this type supports.
const MaxScale = 6

// Decimal is an arbitrary-precision fixed-point number: value == unscaled *
// 10^-scale. The zero value holds no integer and is not usable; construct
// values with New, Zero or FromFloat64.
type Decimal struct {
	unscaled *big.Int
	scale    int32
}

func bigTenPow(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// New constructs a Decimal from an unscaled integer and a scale (number of
// decimal places), e.g. New(12345, 2) == 123.45.
func New(unscaled int64, scale int32) Decimal {
	return Decimal{unscaled: big.NewInt(unscaled), scale: scale}
}

// Zero is the additive identity at the given scale.
func Zero(scale int32) Decimal {
	return Decimal{unscaled: big.NewInt(0), scale: scale}
}

// FromFloat64 converts a float64 into a Decimal rounded to scale decimal
// places. Intended only for ingesting externally-supplied config bounds
// (min/max of a distribution); never for representing a posted amount.
func FromFloat64(v float64, scale int32) Decimal {
	scaled := v * math.Pow10(int(scale))
	return Decimal{unscaled: big.NewInt(int64(math.Round(scaled))), scale: scale}
}

func (d Decimal) rescaled(scale int32) *big.Int {
	if d.scale == scale {
		return new(big.Int).Set(d.unscaled)
	}
	if d.scale < scale {
		return new(big.Int).Mul(d.unscaled, bigTenPow(scale-d.scale))
	}
	q := new(big.Int).Quo(d.unscaled, bigTenPow(d.scale-scale))
	return q
}

func commonScale(a, b Decimal) int32 {
	if a.scale > b.scale {
		return a.scale
	}
	return b.scale
}

// Add returns a+b at the larger of the two operands' scales.
func (a Decimal) Add(b Decimal) Decimal {
	s := commonScale(a, b)
	return Decimal{unscaled: new(big.Int).Add(a.rescaled(s), b.rescaled(s)), scale: s}
}

// Sub returns a-b at the larger of the two operands' scales.
func (a Decimal) Sub(b Decimal) Decimal {
	s := commonScale(a, b)
	return Decimal{unscaled: new(big.Int).Sub(a.rescaled(s), b.rescaled(s)), scale: s}
}

// Neg returns -a.
func (a Decimal) Neg() Decimal {
	return Decimal{unscaled: new(big.Int).Neg(a.unscaled), scale: a.scale}
}

// Mul returns a*b, scale = sum of operand scales (callers typically Round
// the result back down to a money scale).
func (a Decimal) Mul(b Decimal) Decimal {
	return Decimal{unscaled: new(big.Int).Mul(a.unscaled, b.unscaled), scale: a.scale + b.scale}
}

// MulInt64 multiplies by a plain integer without changing scale.
func (a Decimal) MulInt64(n int64) Decimal {
	return Decimal{unscaled: new(big.Int).Mul(a.unscaled, big.NewInt(n)), scale: a.scale}
}

// DivRat divides a by b using rational arithmetic and rounds the quotient to
// the requested scale (round-half-up).
func (a Decimal) DivRat(b Decimal, scale int32) Decimal {
	num := new(big.Rat).SetInt(a.unscaled)
	den := new(big.Rat).SetInt(b.unscaled)
	if a.scale != b.scale {
		if a.scale > b.scale {
			den.Mul(den, new(big.Rat).SetInt(bigTenPow(a.scale-b.scale)))
		} else {
			num.Mul(num, new(big.Rat).SetInt(bigTenPow(b.scale-a.scale)))
		}
	}
	q := new(big.Rat).Quo(num, den)
	scaleFactor := new(big.Rat).SetInt(bigTenPow(scale))
	q.Mul(q, scaleFactor)
	return Decimal{unscaled: roundRatToInt(q), scale: scale}
}

func roundRatToInt(r *big.Rat) *big.Int {
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	two := big.NewInt(2)
	neg := num.Sign() < 0
	if neg {
		num.Neg(num)
	}
	num.Mul(num, two)
	num.Add(num, den)
	q := new(big.Int).Quo(num, new(big.Int).Mul(den, two))
	if neg {
		q.Neg(q)
	}
	return q
}

// Round rounds to the given scale using round-half-up on the dropped digits.
func (a Decimal) Round(scale int32) Decimal {
	if a.scale <= scale {
		return Decimal{unscaled: a.rescaled(scale), scale: scale}
	}
	r := new(big.Rat).SetFrac(a.unscaled, bigTenPow(a.scale-scale))
	return Decimal{unscaled: roundRatToInt(r), scale: scale}
}

// RoundToNearest rounds the decimal to the nearest multiple of step (itself a
// Decimal at the same semantic scale), used by the round-number/nice-number
// amount sampler.
func (a Decimal) RoundToNearest(step Decimal) Decimal {
	s := commonScale(a, step)
	av := a.rescaled(s)
	sv := step.rescaled(s)
	if sv.Sign() == 0 {
		return Decimal{unscaled: av, scale: s}
	}
	r := new(big.Rat).SetFrac(av, sv)
	q := roundRatToInt(r)
	return Decimal{unscaled: new(big.Int).Mul(q, sv), scale: s}
}

// Cmp compares a to b, normalizing scale first.
func (a Decimal) Cmp(b Decimal) int {
	s := commonScale(a, b)
	return a.rescaled(s).Cmp(b.rescaled(s))
}

// IsZero reports whether the value is exactly zero.
func (a Decimal) IsZero() bool { return a.unscaled.Sign() == 0 }

// Sign returns -1, 0, or 1.
func (a Decimal) Sign() int { return a.unscaled.Sign() }

// Scale returns the number of decimal places this value is stored at.
func (a Decimal) Scale() int32 { return a.scale }

// Float64 converts to a float64 for use in features/probabilities/statistics
// only — never re-enters the monetary arithmetic path.
func (a Decimal) Float64() float64 {
	f := new(big.Float).SetInt(a.unscaled)
	f.Quo(f, new(big.Float).SetInt(bigTenPow(a.scale)))
	v, _ := f.Float64()
	return v
}

// String renders the value with its full scale, e.g. "123.40".
func (a Decimal) String() string {
	neg := a.unscaled.Sign() < 0
	u := new(big.Int).Abs(a.unscaled)
	s := u.String()
	if a.scale <= 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	for int32(len(s)) <= a.scale {
		s = "0" + s
	}
	intPart := s[:int32(len(s))-a.scale]
	fracPart := s[int32(len(s))-a.scale:]
	out := fmt.Sprintf("%s.%s", intPart, fracPart)
	if neg {
		return "-" + out
	}
	return out
}
