package core_test

import (
	"errors"
	"testing"

	"inventory-engine/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateWAC_WeightedAverage(t *testing.T) {
	res, err := core.CalculateWAC(d("100"), d("10.00"), d("50"), d("12.00"))
	require.NoError(t, err)

	assert.Equal(t, "10.6667", res.NewWAC.String())
	assert.True(t, res.NewQuantity.Equal(d("150")), "new quantity %s", res.NewQuantity)
	assert.Equal(t, "1600.00", res.NewValue.StringFixed(core.MoneyPlaces))
	assert.Equal(t, "1000.00", res.CurrentValue.StringFixed(core.MoneyPlaces))
	assert.Equal(t, "600.00", res.ReceiptValue.StringFixed(core.MoneyPlaces))
}

func TestCalculateWAC_ZeroStockTakesReceiptPrice(t *testing.T) {
	cases := []struct {
		qty, price string
	}{
		{"1", "0"},
		{"0.5", "3.1415"},
		{"250", "12.00"},
		{"7", "99999.9999"},
	}
	for _, tc := range cases {
		t.Run(tc.qty+"@"+tc.price, func(t *testing.T) {
			// A stale WAC on an empty row must not leak into the new cost.
			res, err := core.CalculateWAC(decimal.Zero, d("8.50"), d(tc.qty), d(tc.price))
			require.NoError(t, err)
			assert.True(t, res.NewWAC.Equal(d(tc.price)), "got %s", res.NewWAC)
			assert.True(t, res.NewQuantity.Equal(d(tc.qty)))
		})
	}
}

func TestCalculateWAC_HalfAwayFromZeroAtCostScale(t *testing.T) {
	// (3·0.3333 + 3·0.3334) / 6 = 0.33335
	res, err := core.CalculateWAC(d("3"), d("0.3333"), d("3"), d("0.3334"))
	require.NoError(t, err)
	assert.Equal(t, "0.3334", res.NewWAC.String())
}

func TestCalculateWAC_RepeatedReceiptsAtSamePrice(t *testing.T) {
	qty, wac := decimal.Zero, decimal.Zero
	for i := 0; i < 3; i++ {
		res, err := core.CalculateWAC(qty, wac, d("3"), d("0.3333"))
		require.NoError(t, err)
		qty, wac = res.NewQuantity, res.NewWAC
	}
	assert.Equal(t, "0.3333", wac.String())
	assert.True(t, qty.Equal(d("9")))
}

func TestCalculateWAC_Validation(t *testing.T) {
	cases := []struct {
		name                          string
		curQty, curWAC, recvQty, price string
		field                         string
	}{
		{"negative current quantity", "-1", "1", "1", "1", "currentQty"},
		{"negative current wac", "1", "-0.01", "1", "1", "currentWAC"},
		{"zero receipt", "1", "1", "0", "1", "receivedQty"},
		{"negative receipt", "1", "1", "-5", "1", "receivedQty"},
		{"negative price", "1", "1", "1", "-2", "receiptPrice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := core.CalculateWAC(d(tc.curQty), d(tc.curWAC), d(tc.recvQty), d(tc.price))
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrValidation))

			var ve *core.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}
