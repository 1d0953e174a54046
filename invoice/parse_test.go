package invoice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDraft(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		amount    string
		payer     string
		recipient string
		hours     *float64
		wantErr   error
	}{
		{
			name:   "plain object",
			raw:    `{"amount": 500, "description": "Logo design", "payer": "Acme Corp", "recipient": null, "workingHours": null}`,
			amount: "500",
			payer:  "Acme Corp",
		},
		{
			name:   "surrounding whitespace",
			raw:    "\n\t  {\"amount\": 12.5, \"payer\": \"Bob\"}  \n",
			amount: "12.5",
			payer:  "Bob",
		},
		{
			name:   "string amount with symbol and separators",
			raw:    `{"amount": "$5,000", "payer": "Acme"}`,
			amount: "5000",
			payer:  "Acme",
		},
		{
			name:   "string amount with currency word",
			raw:    `{"amount": "70 dollars"}`,
			amount: "70",
		},
		{
			name:   "string amount with iso code",
			raw:    `{"amount": "USD 12.50"}`,
			amount: "12.5",
		},
		{
			name:      "aliases",
			raw:       `{"total": 300, "client": "Globex", "contractor": "Alice", "working_hours": 6}`,
			amount:    "300",
			payer:     "Globex",
			recipient: "Alice",
			hours:     Hours(6),
		},
		{
			name:  "hours as string",
			raw:   `{"hours": "5 hours"}`,
			hours: Hours(5),
		},
		{
			name: "negative hours dropped",
			raw:  `{"workingHours": -3}`,
		},
		{name: "fenced", raw: "```json\n{\"amount\": 1}\n```", wantErr: ErrMalformedReply},
		{name: "prose before object", raw: `Sure! {"amount": 1}`, wantErr: ErrMalformedReply},
		{name: "two objects", raw: `{"amount": 1}{"amount": 2}`, wantErr: ErrMalformedReply},
		{name: "array", raw: `[{"amount": 1}]`, wantErr: ErrMalformedReply},
		{name: "empty", raw: "   ", wantErr: ErrMalformedReply},
		{name: "unparseable amount", raw: `{"amount": "a lot"}`, wantErr: ErrInvalidAmount},
		{name: "boolean amount", raw: `{"amount": true}`, wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDraft(tt.raw)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			if tt.amount == "" {
				assert.False(t, d.Amount.Valid)
			} else {
				require.True(t, d.Amount.Valid)
				assert.Equal(t, tt.amount, d.Amount.Decimal.String())
			}
			assert.Equal(t, tt.payer, deref(d.Payer))
			assert.Equal(t, tt.recipient, deref(d.Recipient))
			assert.Equal(t, tt.hours, d.WorkingHours)
			assert.Equal(t, PaymentStatusNotPaid, d.PaymentStatus)
		})
	}
}

func TestParseDraftKeepsAssumedFields(t *testing.T) {
	d, err := ParseDraft(`{"amount": 400, "workingHours": 5, "assumedFields": ["amount", "workingHours"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"amount", "workingHours"}, d.AssumedFields)
}

func TestParseDraftIgnoresPaymentStatus(t *testing.T) {
	d, err := ParseDraft(`{"amount": 10, "paymentStatus": "paid"}`)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusNotPaid, d.PaymentStatus)
}
