package extractor

import "invoice_nft_receipt/invoice"

// PostProcess normalises a raw model reply into a draft. Every provider's
// output passes through here before the state machine sees it.
func PostProcess(raw string) (invoice.Draft, error) {
	return invoice.ParseDraft(raw)
}
