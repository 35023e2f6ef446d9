package value

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// MaxDecimalExponent bounds the power of ten a Decimal may carry. The
// canonical text has no exponent, so the bound also caps its length.
const MaxDecimalExponent = 1000

// Decimal is an exact decimal number held in its canonical text form:
// trailing fractional zeros removed, no exponent, no negative zero.
// Two Decimals are equal exactly when their texts are equal.
type Decimal struct {
	text string
}

func (Decimal) value() {}

// ParseDecimal parses s as an exact decimal and normalizes it.
// NaN and infinities are rejected.
func ParseDecimal(s string) (Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return DecimalFromApd(d)
}

// MustDecimal is like ParseDecimal but panics on error.
// Use only in tests or with literal inputs.
func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DecimalFromApd normalizes an apd decimal.
func DecimalFromApd(d *apd.Decimal) (Decimal, error) {
	if d.Form != apd.Finite {
		return Decimal{}, fmt.Errorf("decimal must be finite, got %s", d.String())
	}
	if d.IsZero() {
		return Decimal{text: "0"}, nil
	}
	var reduced apd.Decimal
	reduced.Reduce(d)
	if exp := reduced.Exponent; exp > MaxDecimalExponent || exp < -MaxDecimalExponent {
		return Decimal{}, fmt.Errorf("decimal exponent %d out of range [-%d, %d]", exp, MaxDecimalExponent, MaxDecimalExponent)
	}
	return Decimal{text: reduced.Text('f')}, nil
}

// String returns the canonical text.
func (d Decimal) String() string {
	if d.text == "" {
		return "0"
	}
	return d.text
}

// Apd returns a fresh apd representation for arithmetic.
func (d Decimal) Apd() *apd.Decimal {
	out, _, err := apd.NewFromString(d.String())
	if err != nil {
		// text is always produced by DecimalFromApd
		panic(fmt.Sprintf("corrupt decimal text %q: %v", d.text, err))
	}
	return out
}

// Int64 returns the integral value when d has no fractional part and fits.
func (d Decimal) Int64() (int64, bool) {
	n, err := d.Apd().Int64()
	if err != nil {
		return 0, false
	}
	return n, true
}

// MarshalJSON emits the canonical text as a JSON number.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

// Normalize folds integral Decimals that fit in int64 into Int so that
// equal numbers share one variant. Other values are returned unchanged.
func Normalize(v Value) Value {
	if d, ok := v.(Decimal); ok {
		if n, ok := d.Int64(); ok {
			return Int(n)
		}
	}
	return v
}
