package core_test

import (
	"errors"
	"testing"
	"time"

	"inventory-engine/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateConsumption_Formula(t *testing.T) {
	res, err := core.CalculateConsumption(core.ReconciliationInput{
		OpeningStock:  d("125000"),
		Receipts:      d("45000"),
		TransfersIn:   d("5000"),
		TransfersOut:  d("3000"),
		ClosingStock:  d("137000"),
		BackCharges:   d("1000"),
		Credits:       d("500"),
		Condemnations: d("1000"),
	})
	require.NoError(t, err)

	assert.Equal(t, "34500.00", res.Consumption.StringFixed(core.MoneyPlaces))
	assert.Equal(t, "-500.00", res.TotalAdjustments.StringFixed(core.MoneyPlaces))
	assert.True(t, res.Breakdown.ClosingStock.Equal(d("137000")))
}

func TestCalculateConsumption_AdjustmentsMayBeNegative(t *testing.T) {
	res, err := core.CalculateConsumption(core.ReconciliationInput{
		OpeningStock:       d("100"),
		ClosingStock:       d("40"),
		BackCharges:        d("-10"),
		Credits:            d("-5.555"),
		GeneralAdjustments: d("2.004"),
	})
	require.NoError(t, err)

	// -10 + 5.555 + 2.004 = -2.441, rounded once at output.
	assert.Equal(t, "-2.44", res.TotalAdjustments.StringFixed(core.MoneyPlaces))
	assert.Equal(t, "57.56", res.Consumption.StringFixed(core.MoneyPlaces))
}

func TestCalculateConsumption_RejectsNegativeLedgerValues(t *testing.T) {
	fields := map[string]func(*core.ReconciliationInput){
		"openingStock": func(in *core.ReconciliationInput) { in.OpeningStock = d("-1") },
		"receipts":     func(in *core.ReconciliationInput) { in.Receipts = d("-1") },
		"transfersIn":  func(in *core.ReconciliationInput) { in.TransfersIn = d("-1") },
		"transfersOut": func(in *core.ReconciliationInput) { in.TransfersOut = d("-1") },
		"closingStock": func(in *core.ReconciliationInput) { in.ClosingStock = d("-0.01") },
	}
	for field, mutate := range fields {
		t.Run(field, func(t *testing.T) {
			var in core.ReconciliationInput
			mutate(&in)
			res, err := core.CalculateConsumption(in)

			var ve *core.ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, field, ve.Field)
			assert.True(t, res.Consumption.IsZero())
		})
	}
}

func TestCalculateMandayCost(t *testing.T) {
	cost, err := core.CalculateMandayCost(d("34500"), 2100)
	require.NoError(t, err)
	assert.Equal(t, "16.43", cost.StringFixed(core.MoneyPlaces))

	for _, mandays := range []int{0, -1, -2100} {
		for _, consumption := range []string{"0", "34500", "-12.5"} {
			_, err := core.CalculateMandayCost(d(consumption), mandays)
			var ve *core.ValidationError
			require.True(t, errors.As(err, &ve), "mandays=%d consumption=%s", mandays, consumption)
			assert.Equal(t, "totalMandays", ve.Field)
		}
	}
}

func TestCalculateReconciliation_CombinesBoth(t *testing.T) {
	res, err := core.CalculateReconciliation(core.ReconciliationInput{
		OpeningStock: d("1000"),
		Receipts:     d("500"),
		ClosingStock: d("800"),
	}, 30)
	require.NoError(t, err)
	assert.Equal(t, "700.00", res.Consumption.StringFixed(2))
	assert.Equal(t, "23.33", res.MandayCost.StringFixed(2))
	assert.Equal(t, 30, res.TotalMandays)

	_, err = core.CalculateReconciliation(core.ReconciliationInput{}, 0)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestTotalMandays(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []core.MandayEntry{
		{Date: day, CrewCount: 70, ExtraCount: 0},
		{Date: day.AddDate(0, 0, 1), CrewCount: 68, ExtraCount: 4},
		{Date: day.AddDate(0, 0, 2), CrewCount: 0, ExtraCount: 0},
	}
	assert.Equal(t, 142, core.TotalMandays(entries))
	assert.Equal(t, 0, core.TotalMandays(nil))
}

func TestParseAmount(t *testing.T) {
	v, err := core.ParseAmount("price", " 12.3456 ")
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("12.3456")))

	for _, raw := range []string{"", "   ", "NaN", "-Inf", "+infinity", "12,50", "abc"} {
		_, err := core.ParseAmount("price", raw)
		var ve *core.ValidationError
		require.True(t, errors.As(err, &ve), "input %q", raw)
		assert.Equal(t, "price", ve.Field)
	}
}
