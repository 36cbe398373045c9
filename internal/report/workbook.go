package report

import (
	"fmt"
	"io"

	"inventory-engine/internal/core"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Reconciliation"

var headings = []string{
	"Location", "Name", "Opening", "Receipts", "Transfers In", "Transfers Out", "Issues",
	"Closing", "Back Charges", "Credits", "Condemnations", "Adjustments", "Total Adjustments",
	"Consumption", "Mandays", "Manday Cost",
}

// ReconciliationWorkbook renders a period's close snapshots, one row per
// location, into an xlsx file. Money cells are written as numbers formatted
// to two decimals.
func ReconciliationWorkbook(period *core.Period, recs []core.Reconciliation) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	title := "Reconciliation"
	if period != nil {
		title = fmt.Sprintf("Reconciliation %s (%s to %s)", period.Name,
			period.StartDate.Format("2006-01-02"), period.EndDate.Format("2006-01-02"))
	}
	if err := f.SetCellValue(sheetName, "A1", title); err != nil {
		f.Close()
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}
	moneyFmt := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("money style: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A3", &headings); err != nil {
		f.Close()
		return nil, fmt.Errorf("write headings: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headings))
	if err := f.SetCellStyle(sheetName, "A3", lastCol+"3", headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	for i, r := range recs {
		row := i + 4
		var mandayCost any
		if r.MandayCost != nil {
			mandayCost = r.MandayCost.InexactFloat64()
		}
		values := []any{
			r.LocationCode, r.LocationName,
			r.OpeningStock.InexactFloat64(), r.Receipts.InexactFloat64(),
			r.TransfersIn.InexactFloat64(), r.TransfersOut.InexactFloat64(),
			r.Issues.InexactFloat64(), r.ClosingStock.InexactFloat64(),
			r.BackCharges.InexactFloat64(), r.Credits.InexactFloat64(),
			r.Condemnations.InexactFloat64(), r.Adjustments.InexactFloat64(),
			r.TotalAdjustments.InexactFloat64(), r.Consumption.InexactFloat64(),
			r.TotalMandays, mandayCost,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row for %s: %w", r.LocationCode, err)
		}
		from, _ := excelize.CoordinatesToCellName(3, row)
		to, _ := excelize.CoordinatesToCellName(14, row)
		if err := f.SetCellStyle(sheetName, from, to, moneyStyle); err != nil {
			f.Close()
			return nil, err
		}
		costCell, _ := excelize.CoordinatesToCellName(16, row)
		if err := f.SetCellStyle(sheetName, costCell, costCell, moneyStyle); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// WriteReconciliationWorkbook renders the workbook straight to w.
func WriteReconciliationWorkbook(w io.Writer, period *core.Period, recs []core.Reconciliation) error {
	f, err := ReconciliationWorkbook(period, recs)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
