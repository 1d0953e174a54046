package invoice

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount marks an amount that is not a positive finite number.
var ErrInvalidAmount = errors.New("invalid amount")

// MaxAmountDecimals is the finest precision the ledger hand-off accepts.
const MaxAmountDecimals int32 = 18

var (
	reCurrencySymbols = regexp.MustCompile(`[$€£¥₹₽]`)
	reCurrencyWords   = regexp.MustCompile(`(?i)\b(usd|eur|gbp|inr|us|dollars?|bucks|euros?|pounds?|rupees?)\b`)
)

// ParseAmount turns a user-facing money string such as "$5,000", "70 dollars"
// or "USD 12.50" into a decimal. Sign and magnitude are not checked here.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := reCurrencySymbols.ReplaceAllString(s, "")
	cleaned = reCurrencyWords.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.Join(strings.Fields(cleaned), "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: %q has no number", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// ValidateAmount rejects a present amount that is not strictly positive or
// that is finer than MaxAmountDecimals. An absent amount passes.
func ValidateAmount(d Draft) error {
	if !d.Amount.Valid {
		return nil
	}
	if d.Amount.Decimal.Sign() <= 0 {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidAmount, d.Amount.Decimal.String())
	}
	if !d.Amount.Decimal.Shift(MaxAmountDecimals).IsInteger() {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d.Amount.Decimal.String(), MaxAmountDecimals)
	}
	return nil
}
