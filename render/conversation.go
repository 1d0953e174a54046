package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"invoice_nft_receipt/extractor"
)

// Conversation renders a session snapshot as the assistant's next chat
// message.
func Conversation(snap extractor.Snapshot) string {
	var sb strings.Builder
	switch snap.State {
	case extractor.StateAwaitingApproval:
		if snap.Draft != nil {
			sb.WriteString(Text(*snap.Draft, snap.Flags))
			sb.WriteString("\n")
		}
		if snap.Reason != "" {
			sb.WriteString(snap.Reason + "\n")
		}
		fmt.Fprintf(&sb, "Reply yes to approve, or tell me what to change (attempt %d of %d).", snap.Attempt, snap.MaxAttempts)
	case extractor.StateAwaitingInput:
		if snap.Reason == "" {
			sb.WriteString("Describe the work, the amount and who pays.")
			break
		}
		sb.WriteString(snap.Reason)
		if snap.CanRetry {
			sb.WriteString("\nSend /retry to try again.")
		}
	case extractor.StateApproved:
		sb.WriteString("Invoice approved.\n")
		if snap.Receipt != nil {
			if snap.Receipt.Pinned() {
				fmt.Fprintf(&sb, "Token URI: %s\n", snap.Receipt.TokenURI)
			} else {
				sb.WriteString("The record was not pinned.\n")
			}
			if body, err := json.MarshalIndent(snap.Receipt.Record, "", "  "); err == nil {
				sb.Write(body)
			}
		}
	case extractor.StateFailed:
		fmt.Fprintf(&sb, "Could not create the invoice: %s", snap.Reason)
	case extractor.StateCancelled:
		sb.WriteString("Cancelled. Send a new description to start over.")
	default:
		sb.WriteString("Working on it...")
	}
	return strings.TrimRight(sb.String(), "\n")
}
