package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice_nft_receipt/invoice"
)

func sampleDraft() invoice.Draft {
	d := invoice.NewDraft()
	d.Amount = invoice.Amount("5000")
	d.Description = invoice.Str("Built a website | landing page")
	d.Payer = invoice.Str("Acme")
	d.WorkingHours = invoice.Hours(40)
	d.AssumedFields = []string{"workingHours"}
	return d
}

func TestMarkdownAndHTML(t *testing.T) {
	out := Markdown(sampleDraft(), []string{"payer was kept: the feedback did not ask to change it"})
	assert.Contains(t, out, "| Amount | $5000.00 |")
	assert.Contains(t, out, `Built a website \| landing page`)
	assert.Contains(t, out, "| Recipient | not specified |")
	assert.Contains(t, out, "Estimated by the assistant: workingHours")

	html, err := HTML(out)
	require.NoError(t, err)
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>$5000.00</td>")
	assert.Contains(t, html, "<li>payer was kept")
}

func TestText(t *testing.T) {
	out := Text(sampleDraft(), nil)
	assert.Contains(t, out, "Amount: $5000.00")
	assert.Contains(t, out, "Payer: Acme")
	assert.Contains(t, out, "Payment status: not paid")
	assert.Contains(t, out, "Working hours: 40")
}

func TestReceiptPDF(t *testing.T) {
	rec, err := invoice.NewRecord(sampleDraft(), time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	b, err := ReceiptPDF(invoice.Receipt{
		CID:      "bafkreiabc",
		TokenURI: "https://gateway.pinata.cloud/ipfs/bafkreiabc",
		Record:   rec,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")))

	n, err := api.PageCount(bytes.NewReader(b), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
