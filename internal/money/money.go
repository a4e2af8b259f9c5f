package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// minorUnits is the number of fractional digits kept by an Amount.
const minorUnits = 2

var ErrPrecision = errors.New("amount has more than two decimal places")

// Amount is a monetary value counted in minor units (cents).
// Prices are decimals at the edges; all arithmetic happens on the integer.
type Amount int64

// FromCents builds an Amount from a count of minor units.
func FromCents(cents int64) Amount {
	return Amount(cents)
}

// FromDecimal converts a decimal price into minor units. It rejects values that
// cannot be represented exactly with two fractional digits.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	scaled := d.Shift(minorUnits)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrPrecision, d.String())
	}
	return Amount(scaled.IntPart()), nil
}

// Parse reads a decimal string such as "4.00" or "15".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return FromDecimal(d)
}

// MustParse is Parse for fixtures and constants; it panics on bad input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Cents() int64 {
	return int64(a)
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -minorUnits)
}

// Times returns the amount multiplied by a quantity.
func (a Amount) Times(quantity int) Amount {
	return a * Amount(quantity)
}

func (a Amount) IsNegative() bool {
	return a < 0
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(minorUnits)
}

// MarshalJSON encodes the amount as a fixed two-digit decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both quoted ("4.00") and bare (4.00) decimals.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	v, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
