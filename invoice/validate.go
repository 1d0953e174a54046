package invoice

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingFields marks a strict-mode draft lacking required fields.
var ErrMissingFields = errors.New("missing required invoice details")

// ValidationError reports exactly which required fields were missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingFields, strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrMissingFields }

// MissingFields lists the required fields absent from d, in the order
// amount, description, payer. A non-positive amount counts as missing.
func MissingFields(d Draft) []string {
	var missing []string
	if !d.Amount.Valid || d.Amount.Decimal.Sign() <= 0 {
		missing = append(missing, FieldAmount)
	}
	if strings.TrimSpace(deref(d.Description)) == "" {
		missing = append(missing, FieldDescription)
	}
	if strings.TrimSpace(deref(d.Payer)) == "" {
		missing = append(missing, FieldPayer)
	}
	return missing
}

// Validate applies the first-round checks. In strict mode every required
// field must be present; in every mode a present amount must be positive.
func Validate(d Draft, strict bool) error {
	if strict {
		if missing := MissingFields(d); len(missing) > 0 {
			return &ValidationError{Missing: missing}
		}
	}
	return ValidateAmount(d)
}
