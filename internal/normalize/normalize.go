package normalize

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// maxExponent bounds the decimal exponent of a parsed amount; larger values
// would expand into arbitrarily long digit strings when formatted.
const maxExponent = 30

var multipliers = map[byte]decimal.Decimal{
	'T': decimal.New(1, 12),
	'B': decimal.New(1, 9),
	'M': decimal.New(1, 6),
	'K': decimal.New(1, 3),
}

// ConversionError 表示单个金额 token 无法解析为数字。
type ConversionError struct {
	Token string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %q: %v", e.Token, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// IsCurrencyToken reports whether tok is a dollar amount such as "$1.2B" or "-$300K".
func IsCurrencyToken(tok string) bool {
	return strings.HasPrefix(tok, "$") || strings.HasPrefix(tok, "-$")
}

// StripCurrency removes every dollar sign from tok, keeping the sign.
func StripCurrency(tok string) string {
	return strings.ReplaceAll(tok, "$", "")
}

// Normalize expands a magnitude-suffixed amount ("-1.2B", "500M", "0") into a
// plain decimal string. Integral results keep one fractional digit ("-1200000000.0").
func Normalize(amount string) (string, error) {
	value, err := Parse(amount)
	if err != nil {
		return "", err
	}
	return Format(value), nil
}

// Parse expands a magnitude-suffixed amount into a decimal value.
func Parse(amount string) (decimal.Decimal, error) {
	body := strings.TrimSpace(amount)
	multiplier := decimal.New(1, 0)
	if n := len(body); n > 0 {
		if m, ok := multipliers[body[n-1]]; ok {
			multiplier = m
			body = body[:n-1]
		}
	}

	value, err := decimal.NewFromString(body)
	if err != nil {
		return decimal.Decimal{}, &ConversionError{Token: amount, Err: err}
	}
	value = value.Mul(multiplier)
	if exp := value.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Decimal{}, &ConversionError{Token: amount, Err: fmt.Errorf("exponent %d out of range", exp)}
	}
	return value, nil
}

// Format renders d the way the CSV log has always stored amounts.
func Format(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return d.StringFixed(1)
	}
	return d.String()
}
