package retirement

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/domain"
)

const statementSheet = "Retirements"

var statementColumns = []string{"Certificate", "Retired At", "Amount (tCO2e)", "Reason", "Beneficiary", "Anchor Receipt"}

// Format is a statement file format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat maps a query value to a Format; empty means XLSX
func ParseFormat(v string) (Format, error) {
	switch Format(v) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", apperr.ValidationFields("unsupported export format", map[string]string{"format": "must be xlsx or csv"})
	}
}

// Export writes the buyer's retirement statement
func (s *Service) Export(ctx context.Context, p auth.Principal, format Format, w io.Writer) error {
	retirements, err := s.List(ctx, p)
	if err != nil {
		return err
	}
	switch format {
	case FormatCSV:
		err = WriteCSV(w, retirements)
	default:
		err = WriteStatement(w, p.UserID, retirements)
	}
	if err != nil {
		return apperr.Wrap(err, "failed to build statement")
	}
	return nil
}

// WriteCSV renders retirements as CSV with a header row and no total
func WriteCSV(w io.Writer, retirements []domain.Retirement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(statementColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range retirements {
		record := []string{
			r.CertificateNumber,
			r.RetiredAt.UTC().Format(time.RFC3339),
			r.Amount.StringFixed(3),
			r.Reason,
			r.Beneficiary,
			r.AnchorReceipt,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStatement renders retirements as a single-sheet workbook with a total row
func WriteStatement(w io.Writer, buyerID uuid.UUID, retirements []domain.Retirement) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", statementSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"226E54"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	amountFormat := "#,##0.000"
	amount, err := f.NewStyle(&excelize.Style{CustomNumFmt: &amountFormat})
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}
	timestamp, err := f.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	if err := f.SetCellValue(statementSheet, "A1", "Retirement statement for "+buyerID.String()); err != nil {
		return err
	}
	headerRow := make([]interface{}, len(statementColumns))
	for i, col := range statementColumns {
		headerRow[i] = col
	}
	if err := f.SetSheetRow(statementSheet, "A3", &headerRow); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(statementColumns))
	if err := f.SetCellStyle(statementSheet, "A3", lastCol+"3", header); err != nil {
		return err
	}

	row := 4
	for _, r := range retirements {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []interface{}{
			r.CertificateNumber,
			r.RetiredAt.UTC(),
			r.Amount.InexactFloat64(),
			r.Reason,
			r.Beneficiary,
			r.AnchorReceipt,
		}
		if err := f.SetSheetRow(statementSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		row++
	}
	if len(retirements) > 0 {
		_ = f.SetCellStyle(statementSheet, "B4", fmt.Sprintf("B%d", row-1), timestamp)
	}

	totalLabel, _ := excelize.CoordinatesToCellName(2, row)
	totalCell, _ := excelize.CoordinatesToCellName(3, row)
	if err := f.SetCellValue(statementSheet, totalLabel, "Total"); err != nil {
		return err
	}
	if err := f.SetCellValue(statementSheet, totalCell, Total(retirements).InexactFloat64()); err != nil {
		return err
	}
	_ = f.SetCellStyle(statementSheet, "C4", totalCell, amount)

	_ = f.SetColWidth(statementSheet, "A", "B", 24)
	_ = f.SetColWidth(statementSheet, "C", "C", 16)
	_ = f.SetColWidth(statementSheet, "D", "F", 40)
	_ = f.SetPanes(statementSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      3,
		TopLeftCell: "A4",
		ActivePane:  "bottomLeft",
	})

	return f.Write(w)
}
