// Package invoice holds the invoice draft built up during a conversation and
// the immutable record produced once the user approves it.
package invoice

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentStatusNotPaid is the status every draft is created with.
const PaymentStatusNotPaid = "not paid"

// Field names as they appear in drafts, prompts and missing-field reports.
const (
	FieldAmount       = "amount"
	FieldDescription  = "description"
	FieldPayer        = "payer"
	FieldRecipient    = "recipient"
	FieldWorkingHours = "workingHours"
)

// Draft is the mutable extraction of a user's invoice description.
// Absent fields are nil / invalid rather than zero values.
type Draft struct {
	Amount        decimal.NullDecimal
	Description   *string
	Payer         *string // owes payment
	Recipient     *string // did the work, is owed payment
	WorkingHours  *float64
	PaymentStatus string
	// AssumedFields lists fields the model estimated in assumption mode.
	AssumedFields []string
}

// NewDraft returns an empty draft.
func NewDraft() Draft {
	return Draft{PaymentStatus: PaymentStatusNotPaid}
}

// Str returns a pointer to s, or nil when s is blank.
func Str(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Hours returns a pointer to h.
func Hours(h float64) *float64 { return &h }

// Amount returns a valid NullDecimal holding the parsed value of s.
// It panics on malformed input and is meant for literals.
func Amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

type draftJSON struct {
	Amount        *json.Number `json:"amount"`
	Description   *string      `json:"description"`
	Payer         *string      `json:"payer"`
	Recipient     *string      `json:"recipient"`
	WorkingHours  *float64     `json:"workingHours"`
	PaymentStatus string       `json:"paymentStatus"`
	AssumedFields []string     `json:"assumedFields,omitempty"`
}

// MarshalJSON writes the amount as a JSON number and absent fields as null.
func (d Draft) MarshalJSON() ([]byte, error) {
	status := d.PaymentStatus
	if status == "" {
		status = PaymentStatusNotPaid
	}
	return json.Marshal(draftJSON{
		Amount:        amountNumber(d.Amount),
		Description:   d.Description,
		Payer:         d.Payer,
		Recipient:     d.Recipient,
		WorkingHours:  d.WorkingHours,
		PaymentStatus: status,
		AssumedFields: d.AssumedFields,
	})
}

// UnmarshalJSON reads the shape written by MarshalJSON.
func (d *Draft) UnmarshalJSON(b []byte) error {
	var raw draftJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	amount, err := amountFromNumber(raw.Amount)
	if err != nil {
		return err
	}
	*d = Draft{
		Amount:        amount,
		Description:   raw.Description,
		Payer:         raw.Payer,
		Recipient:     raw.Recipient,
		WorkingHours:  raw.WorkingHours,
		PaymentStatus: raw.PaymentStatus,
		AssumedFields: raw.AssumedFields,
	}
	return nil
}

func amountNumber(a decimal.NullDecimal) *json.Number {
	if !a.Valid {
		return nil
	}
	n := json.Number(a.Decimal.String())
	return &n
}

func amountFromNumber(n *json.Number) (decimal.NullDecimal, error) {
	if n == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
