package render

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"invoice_nft_receipt/invoice"
)

// ReceiptPDF lays out a finalized receipt on one A4 page and checks the
// result with pdfcpu before returning it.
func ReceiptPDF(r invoice.Receipt) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Invoice receipt "+r.CID, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 12, "Invoice Receipt", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	rec := r.Record
	hours := "-"
	if rec.WorkingHours != nil {
		hours = strconv.FormatFloat(*rec.WorkingHours, 'f', -1, 64)
	}
	rows := []row{
		{"Date", rec.Date.UTC().Format("2006-01-02 15:04 MST")},
		{"Recipient", orDefault(rec.Recipient)},
		{"Payee", orDefault(rec.Payee)},
		{"Amount", "$" + rec.Amount.StringFixed(2)},
		{"Working hours", hours},
		{"Status", invoice.PaymentStatusNotPaid},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(45, 8, row.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 8, tr(row.value), "", 1, "L", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, "Description", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 6, tr(orDefault(rec.Description)), "", "L", false)

	if r.CID != "" {
		pdf.Ln(6)
		pdf.SetFont("Courier", "", 9)
		pdf.MultiCell(0, 5, "CID: "+r.CID, "", "L", false)
		pdf.MultiCell(0, 5, "Token URI: "+r.TokenURI, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(buf.Bytes()), conf); err != nil {
		return nil, fmt.Errorf("validate receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
