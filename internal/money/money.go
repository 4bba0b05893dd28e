// Package money holds wallet amounts as integer micro-units so balance arithmetic never drifts.
package money

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits an Amount can carry.
const Scale = 6

// Amount is a signed count of micro-units (1e-6 of a currency unit).
type Amount int64

var ErrInvalidAmount = errors.New("invalid_amount")

var (
	maxAmount = decimal.NewFromInt(math.MaxInt64)
	minAmount = decimal.NewFromInt(math.MinInt64)
)

// FromDecimal converts d exactly. Values with more than Scale fractional digits are rejected.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	shifted := d.Shift(Scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: more than %d fractional digits", ErrInvalidAmount, Scale)
	}
	if shifted.GreaterThan(maxAmount) || shifted.LessThan(minAmount) {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return Amount(shifted.IntPart()), nil
}

// Round converts d to an Amount, rounding half away from zero at Scale digits.
func Round(d decimal.Decimal) (Amount, error) {
	return FromDecimal(d.Round(Scale))
}

// Parse reads a decimal string such as "100" or "0.45".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

func (a Amount) String() string {
	return a.Decimal().String()
}

func (a Amount) IsPositive() bool { return a > 0 }

// MarshalJSON renders the amount as a JSON number with the shortest exact decimal form.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: null", ErrInvalidAmount)
	}
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		data = data[1 : len(data)-1]
	}
	if bytes.ContainsRune(data, '"') {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, data)
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
