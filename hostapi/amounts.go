package hostapi

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooPrecise     = errors.New("amount has more fractional digits than the token supports")
	ErrAmountRange    = errors.New("amount does not fit the engine domain")
)

// ParseAmount converts a whole-token decimal string into smallest-unit
// integer form at the given token precision. "1.5" at 18 decimals becomes
// 1500000000000000000.
func ParseAmount(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q at %d decimals", ErrTooPrecise, s, decimals)
	}
	x, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %q", ErrAmountRange, s)
	}
	return x, nil
}

// RenderAmount converts a smallest-unit integer back into a whole-token
// decimal string at the given precision.
func RenderAmount(x *uint256.Int, decimals uint8) string {
	return decimal.NewFromBigInt(x.ToBig(), -int32(decimals)).String()
}
