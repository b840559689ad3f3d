package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
)

// Amount is a fixed-point token amount denominated in the smallest unit
// (wei). All money values in the engine are integers; floating point is
// never used for amounts to avoid rounding drift.
//
// Amounts are immutable: every arithmetic method returns a new value and
// never mutates its receiver or operands.
type Amount struct {
	i big.Int
}

// NewAmount returns an Amount holding the given integer value.
func NewAmount(v int64) Amount {
	var a Amount
	a.i.SetInt64(v)
	return a
}

// NewAmountFromBig returns an Amount copying the given big integer.
// A nil input yields zero.
func NewAmountFromBig(v *big.Int) Amount {
	var a Amount
	if v != nil {
		a.i.Set(v)
	}
	return a
}

// ParseAmount parses a base-10 integer string into an Amount.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if _, ok := a.i.SetString(s, 10); !ok {
		return Amount{}, fmt.Errorf("invalid amount literal %q", s)
	}
	return a, nil
}

// MustParseAmount is ParseAmount for constants known to be valid.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// BigInt returns a copy of the underlying integer.
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(&a.i)
}

func (a Amount) String() string {
	return a.i.String()
}

// Cmp compares a and b, returning -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.i.Cmp(&b.i)
}

func (a Amount) Sign() int {
	return a.i.Sign()
}

func (a Amount) IsZero() bool {
	return a.i.Sign() == 0
}

func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.i.Add(&a.i, &b.i)
	return out
}

func (a Amount) Sub(b Amount) Amount {
	var out Amount
	out.i.Sub(&a.i, &b.i)
	return out
}

func (a Amount) Neg() Amount {
	var out Amount
	out.i.Neg(&a.i)
	return out
}

// Value implements driver.Valuer; amounts are persisted as decimal strings
// so sqlite never coerces them through floats.
func (a Amount) Value() (driver.Value, error) {
	return a.i.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		a.i.SetInt64(0)
		return nil
	case string:
		if v == "" {
			a.i.SetInt64(0)
			return nil
		}
		if _, ok := a.i.SetString(v, 10); !ok {
			return fmt.Errorf("cannot scan %q into Amount", v)
		}
		return nil
	case []byte:
		return a.Scan(string(v))
	case int64:
		a.i.SetInt64(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}

// GormDataType tells gorm to store amounts as text.
func (Amount) GormDataType() string {
	return "text"
}

// MarshalJSON encodes the amount as a JSON string to preserve precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.i.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return a.Scan(s)
}
