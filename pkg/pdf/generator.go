// Package pdf renders retirement certificates.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData is the content printed on a retirement certificate
type CertificateData struct {
	CertificateNumber string
	RetiredBy         string
	Beneficiary       string
	Amount            string // tCO2e
	Reason            string
	RetiredAt         time.Time
	AnchorReceipt     string
}

// Generator renders documents as PDF bytes
type Generator interface {
	Certificate(ctx context.Context, data CertificateData) ([]byte, error)
}

// Options control the certificate layout
type Options struct {
	Issuer     string
	FontFamily string
	Accent     Color
}

// Color is an RGB color
type Color struct {
	R, G, B int
}

// DefaultOptions returns the standard certificate layout
func DefaultOptions() Options {
	return Options{
		Issuer:     "CarbonScribe Registry",
		FontFamily: "Arial",
		Accent:     Color{R: 34, G: 110, B: 84},
	}
}

type certificateGenerator struct {
	options Options
}

func NewGenerator(options Options) Generator {
	return &certificateGenerator{options: options}
}

func (g *certificateGenerator) Certificate(ctx context.Context, data CertificateData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	font := g.options.FontFamily
	accent := g.options.Accent

	doc := gofpdf.New("L", "mm", "A4", "")
	doc.SetTitle("Retirement certificate "+data.CertificateNumber, true)
	doc.SetAuthor(g.options.Issuer, true)
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()

	width, height := doc.GetPageSize()
	doc.SetDrawColor(accent.R, accent.G, accent.B)
	doc.SetLineWidth(1.5)
	doc.Rect(10, 10, width-20, height-20, "D")
	doc.SetLineWidth(0.3)
	doc.Rect(14, 14, width-28, height-28, "D")

	doc.SetY(30)
	doc.SetTextColor(accent.R, accent.G, accent.B)
	doc.SetFont(font, "B", 30)
	doc.CellFormat(0, 14, "Certificate of Carbon Credit Retirement", "", 1, "C", false, 0, "")

	doc.SetTextColor(60, 60, 60)
	doc.SetFont(font, "", 12)
	doc.CellFormat(0, 8, "Certificate No. "+data.CertificateNumber, "", 1, "C", false, 0, "")
	doc.Ln(10)

	doc.SetFont(font, "", 14)
	doc.CellFormat(0, 8, "This certifies the permanent retirement of", "", 1, "C", false, 0, "")
	doc.SetTextColor(0, 0, 0)
	doc.SetFont(font, "B", 26)
	doc.CellFormat(0, 16, data.Amount+" tCO2e", "", 1, "C", false, 0, "")

	doc.SetTextColor(60, 60, 60)
	doc.SetFont(font, "", 14)
	beneficiary := data.Beneficiary
	if beneficiary == "" {
		beneficiary = data.RetiredBy
	}
	doc.CellFormat(0, 8, "on behalf of "+beneficiary, "", 1, "C", false, 0, "")
	doc.Ln(6)

	doc.SetFont(font, "I", 12)
	doc.MultiCell(0, 6, "Reason: "+data.Reason, "", "C", false)
	doc.Ln(8)

	doc.SetFont(font, "", 10)
	rows := [][2]string{
		{"Retired by", data.RetiredBy},
		{"Retired at", data.RetiredAt.UTC().Format("2 January 2006 15:04 MST")},
	}
	if data.AnchorReceipt != "" {
		rows = append(rows, [2]string{"Ledger anchor", data.AnchorReceipt})
	}
	for _, row := range rows {
		doc.SetX(50)
		doc.SetFont(font, "B", 10)
		doc.CellFormat(40, 6, row[0], "", 0, "L", false, 0, "")
		doc.SetFont(font, "", 10)
		doc.CellFormat(0, 6, row[1], "", 1, "L", false, 0, "")
	}

	doc.SetY(height - 30)
	doc.SetFont(font, "", 9)
	doc.SetTextColor(120, 120, 120)
	doc.CellFormat(0, 5, fmt.Sprintf("Issued by %s. Retired credits cannot be transferred or reused.", g.options.Issuer), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
