package report_test

import (
	"bytes"
	"testing"
	"time"

	"inventory-engine/internal/core"
	"inventory-engine/internal/report"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteReconciliationWorkbook(t *testing.T) {
	cost := decimal.RequireFromString("16.43")
	period := &core.Period{
		Name:      "2026-03",
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	recs := []core.Reconciliation{
		{LocationCode: "KIT", LocationName: "Main Kitchen", Consumption: decimal.RequireFromString("34500.00"),
			TotalMandays: 2100, MandayCost: &cost},
		{LocationCode: "STR", LocationName: "Dry Store"},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteReconciliationWorkbook(&buf, period, recs))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Reconciliation", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Reconciliation 2026-03 (2026-03-01 to 2026-03-31)", title)

	cell := func(axis string) string {
		t.Helper()
		v, err := f.GetCellValue("Reconciliation", axis, excelize.Options{RawCellValue: true})
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "Location", cell("A3"))
	assert.Equal(t, "Manday Cost", cell("P3"))
	assert.Equal(t, "KIT", cell("A4"))
	assert.Equal(t, "34500", cell("N4"))
	assert.Equal(t, "2100", cell("O4"))
	assert.Equal(t, "16.43", cell("P4"))
	assert.Equal(t, "STR", cell("A5"))
	assert.Empty(t, cell("P5"), "manday cost stays blank without mandays")
}
