package invoice

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultImageURI is the image attached to every record unless configured.
const DefaultImageURI = "https://ipfs.io/ipfs/bafkreiajzvukrl7agyfngjjhrstqcm3trwer66woe6zweoksdwuvcv6czy"

// recordTimeLayout is ISO-8601 in UTC with millisecond precision.
const recordTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is the immutable invoice produced on approval. Payee is the
// draft's payer.
type Record struct {
	Date         time.Time
	Recipient    *string
	Payee        *string
	Amount       decimal.Decimal
	WorkingHours *float64
	Description  *string
	Image        string
}

// NewRecord builds the record for an approved draft. The amount must be
// present and positive.
func NewRecord(d Draft, at time.Time, imageURI string) (Record, error) {
	if !d.Amount.Valid {
		return Record{}, fmt.Errorf("%w: amount is missing", ErrInvalidAmount)
	}
	if err := ValidateAmount(d); err != nil {
		return Record{}, err
	}
	if imageURI == "" {
		imageURI = DefaultImageURI
	}
	return Record{
		Date:         at.UTC().Truncate(time.Millisecond),
		Recipient:    d.Recipient,
		Payee:        d.Payer,
		Amount:       d.Amount.Decimal,
		WorkingHours: d.WorkingHours,
		Description:  d.Description,
		Image:        imageURI,
	}, nil
}

type recordJSON struct {
	Date         string      `json:"date"`
	Recipient    *string     `json:"recipient"`
	Payee        *string     `json:"payee"`
	Amount       json.Number `json:"amount"`
	WorkingHours *float64    `json:"workingHours"`
	Description  *string     `json:"description"`
	Image        string      `json:"image"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Date:         r.Date.UTC().Format(recordTimeLayout),
		Recipient:    r.Recipient,
		Payee:        r.Payee,
		Amount:       json.Number(r.Amount.String()),
		WorkingHours: r.WorkingHours,
		Description:  r.Description,
		Image:        r.Image,
	})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	at, err := time.Parse(time.RFC3339Nano, raw.Date)
	if err != nil {
		return fmt.Errorf("record date: %w", err)
	}
	amount, err := decimal.NewFromString(raw.Amount.String())
	if err != nil {
		return fmt.Errorf("record amount: %w", err)
	}
	*r = Record{
		Date:         at.UTC(),
		Recipient:    raw.Recipient,
		Payee:        raw.Payee,
		Amount:       amount,
		WorkingHours: raw.WorkingHours,
		Description:  raw.Description,
		Image:        raw.Image,
	}
	return nil
}

// Receipt is what the hand-off returns: where the record was pinned and
// the record itself.
type Receipt struct {
	CID      string    `json:"cid"`
	TokenURI string    `json:"tokenUri"`
	Record   Record    `json:"record"`
	PinnedAt time.Time `json:"pinnedAt"`
}

// Pinned reports whether the receipt points at pinned content.
func (r Receipt) Pinned() bool { return r.CID != "" }
