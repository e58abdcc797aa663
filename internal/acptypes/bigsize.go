package acptypes

import (
	"encoding/json"
	"math/big"
)

// maxSafeInteger is the largest integer exactly representable in
// IEEE-754 double precision: 2^53 - 1.
var maxSafeInteger = big.NewInt(1<<53 - 1)

// BigSize carries a resource_link size using arbitrary-precision integer
// arithmetic, per spec section 9's "exact large sizes" design note: no
// ecosystem arbitrary-precision library appears anywhere in the retrieved
// pack, so this uses math/big directly (see DESIGN.md).
type BigSize struct {
	big.Int
}

// NewBigSize wraps an int64 byte count.
func NewBigSize(n int64) *BigSize {
	return &BigSize{Int: *big.NewInt(n)}
}

// ExceedsSafeInteger reports whether the value cannot be represented
// exactly as an IEEE-754 double.
func (b *BigSize) ExceedsSafeInteger() bool {
	abs := new(big.Int).Abs(&b.Int)
	return abs.Cmp(maxSafeInteger) > 0
}

// MarshalJSON emits the value as a bare JSON number when it fits within
// the IEEE-754 safe-integer range (the common case), else as a decimal
// string to avoid silent precision loss in JSON-number-as-float64
// decoders downstream.
func (b *BigSize) MarshalJSON() ([]byte, error) {
	if b.ExceedsSafeInteger() {
		return json.Marshal(b.Int.String())
	}
	return []byte(b.Int.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a decimal string.
func (b *BigSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		_, ok := b.Int.SetString(s, 10)
		if !ok {
			return &json.UnmarshalTypeError{Value: string(data), Type: nil}
		}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	_, ok := b.Int.SetString(n.String(), 10)
	if !ok {
		return &json.UnmarshalTypeError{Value: string(data), Type: nil}
	}
	return nil
}
