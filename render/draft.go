// Package render presents drafts and receipts to people: Markdown and HTML
// previews, terminal text and a PDF receipt.
package render

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"invoice_nft_receipt/invoice"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

type row struct{ label, value string }

func draftRows(d invoice.Draft) []row {
	amount := "not specified"
	if d.Amount.Valid {
		amount = "$" + d.Amount.Decimal.StringFixed(2)
	}
	hours := "not specified"
	if d.WorkingHours != nil {
		hours = strconv.FormatFloat(*d.WorkingHours, 'f', -1, 64)
	}
	status := d.PaymentStatus
	if status == "" {
		status = invoice.PaymentStatusNotPaid
	}
	return []row{
		{"Amount", amount},
		{"Description", orDefault(d.Description)},
		{"Payer", orDefault(d.Payer)},
		{"Recipient", orDefault(d.Recipient)},
		{"Working hours", hours},
		{"Payment status", status},
	}
}

// Markdown renders the draft as a table plus any notes.
func Markdown(d invoice.Draft, flags []string) string {
	var sb strings.Builder
	sb.WriteString("# Invoice draft\n\n")
	sb.WriteString("| Field | Value |\n|---|---|\n")
	for _, r := range draftRows(d) {
		fmt.Fprintf(&sb, "| %s | %s |\n", r.label, escapeCell(r.value))
	}
	if len(d.AssumedFields) > 0 {
		fmt.Fprintf(&sb, "\n> Estimated by the assistant: %s\n", strings.Join(d.AssumedFields, ", "))
	}
	if len(flags) > 0 {
		sb.WriteString("\n**Check before approving:**\n\n")
		for _, f := range flags {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}
	return sb.String()
}

// HTML converts Markdown to HTML.
func HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Text renders the draft for a terminal or chat message.
func Text(d invoice.Draft, flags []string) string {
	var sb strings.Builder
	sb.WriteString("=== Invoice Details ===\n")
	for _, r := range draftRows(d) {
		fmt.Fprintf(&sb, "%s: %s\n", r.label, r.value)
	}
	if len(d.AssumedFields) > 0 {
		fmt.Fprintf(&sb, "\nEstimated by the assistant: %s\n", strings.Join(d.AssumedFields, ", "))
	}
	for _, f := range flags {
		fmt.Fprintf(&sb, "Note: %s\n", f)
	}
	return sb.String()
}

func orDefault(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "not specified"
	}
	return *s
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
