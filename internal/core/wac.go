package core

import "github.com/shopspring/decimal"

// WACResult is the outcome of a receipt against a location-item.
// NewWAC is at cost scale; the value fields are at money scale.
type WACResult struct {
	NewWAC       decimal.Decimal `json:"new_wac"`
	NewQuantity  decimal.Decimal `json:"new_quantity"`
	NewValue     decimal.Decimal `json:"new_value"`
	CurrentValue decimal.Decimal `json:"current_value"`
	ReceiptValue decimal.Decimal `json:"receipt_value"`
}

// CalculateWAC recomputes the weighted average cost after receiving
// receivedQty units at receiptPrice:
//
//	newWAC = (currentQty·currentWAC + receivedQty·receiptPrice) / (currentQty + receivedQty)
//
// A receipt into zero stock takes the receipt price. A zero receipt is
// rejected. Rounding is applied only to the returned values.
func CalculateWAC(currentQty, currentWAC, receivedQty, receiptPrice decimal.Decimal) (WACResult, error) {
	if err := requireNonNegative("currentQty", currentQty); err != nil {
		return WACResult{}, err
	}
	if err := requireNonNegative("currentWAC", currentWAC); err != nil {
		return WACResult{}, err
	}
	if err := requirePositive("receivedQty", receivedQty); err != nil {
		return WACResult{}, err
	}
	if err := requireNonNegative("receiptPrice", receiptPrice); err != nil {
		return WACResult{}, err
	}

	currentValue := currentQty.Mul(currentWAC)
	receiptValue := receivedQty.Mul(receiptPrice)
	newQty := currentQty.Add(receivedQty)
	newValue := currentValue.Add(receiptValue)

	newWAC := receiptPrice
	if !currentQty.IsZero() {
		newWAC = newValue.Div(newQty)
	}

	return WACResult{
		NewWAC:       RoundCost(newWAC),
		NewQuantity:  newQty,
		NewValue:     RoundMoney(newValue),
		CurrentValue: RoundMoney(currentValue),
		ReceiptValue: RoundMoney(receiptValue),
	}, nil
}
