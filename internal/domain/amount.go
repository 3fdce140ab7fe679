package domain

import (
	"fmt"
	"strconv"
)

// AmountScale is the number of micro-units per display unit. All balances and
// stakes are 6-decimal fixed point, stored as integer micro-units.
const AmountScale = 1_000_000

// Amount is a quantity of currency in micro-units (10^-6 of the display
// unit). Arithmetic on Amount is plain integer arithmetic; floats never touch
// money.
type Amount int64

// FromUnits converts a whole number of display units to an Amount.
func FromUnits(units int64) Amount {
	return Amount(units * AmountScale)
}

// Units returns the whole display units, truncating any fractional part.
func (a Amount) Units() int64 {
	return int64(a) / AmountScale
}

// String renders the amount as a decimal display value, e.g. "12.500000".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%06d", sign, v/AmountScale, v%AmountScale)
}

// MarshalJSON encodes the amount as a JSON number of micro-units so clients
// never lose precision to float formatting.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(a), 10)), nil
}

// UnmarshalJSON decodes a JSON number of micro-units.
func (a *Amount) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("amount: parse %q: %w", string(data), err)
	}
	*a = Amount(v)
	return nil
}

// Rake computes the platform fee on a in basis points using integer math.
func (a Amount) Rake(bps int64) Amount {
	return Amount(int64(a) * bps / 10_000)
}
