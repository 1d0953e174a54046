package extractor

import (
	"time"

	"invoice_nft_receipt/invoice"
)

// Turn records one extraction or feedback-driven revision.
type Turn struct {
	Feedback  string        `json:"feedback"`
	Draft     invoice.Draft `json:"draft"`
	Summary   string        `json:"summary"`
	CreatedAt time.Time     `json:"created_at"`
}
