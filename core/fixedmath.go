package core

import (
	"errors"

	"github.com/holiman/uint256"
)

// All lot and bid quantities live in a 96-bit unsigned domain. Intermediate
// products are computed in 256 bits and rejected when a result does not fit
// back into 96 bits.

var (
	// MaxUint96 is the upper bound of the quantity/price domain. It doubles as
	// the sentinel marginal price for a settled lot that cleared nothing.
	MaxUint96 = uint256.MustFromHex("0xffffffffffffffffffffffff")

	// ErrOverflow reports an intermediate or final value outside the 96-bit domain.
	ErrOverflow = errors.New("value exceeds 96-bit domain")
)

// FitsUint96 reports whether x is within the 96-bit domain.
func FitsUint96(x *uint256.Int) bool {
	return x.Cmp(MaxUint96) <= 0
}

// MulDivDown computes x * y / d rounding toward zero. The product is computed
// in 256 bits, so it never wraps for inputs within the 96-bit domain.
func MulDivDown(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, errors.New("division by zero")
	}
	p, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return p.Div(p, d), nil
}

// MulDivUp computes x * y / d rounding away from zero.
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, errors.New("division by zero")
	}
	p, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	q, m := new(uint256.Int).DivMod(p, d, new(uint256.Int))
	if !m.IsZero() {
		q.AddUint64(q, 1)
	}
	return q, nil
}

// pow10 returns 10^n. Token decimals are capped at 18 so this always fits.
func pow10(n uint8) *uint256.Int {
	p := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		p.Mul(p, ten)
	}
	return p
}

// ScaleDecimals converts x from one token decimal precision to another.
// Scaling down truncates; scaling up errors if the result leaves the domain.
func ScaleDecimals(x *uint256.Int, from, to uint8) (*uint256.Int, error) {
	switch {
	case from == to:
		return new(uint256.Int).Set(x), nil
	case from > to:
		return new(uint256.Int).Div(x, pow10(from-to)), nil
	default:
		p, overflow := new(uint256.Int).MulOverflow(x, pow10(to-from))
		if overflow || !FitsUint96(p) {
			return nil, ErrOverflow
		}
		return p, nil
	}
}
