package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationInput holds the movement values of one location over a period.
// The first five fields are non-negative; the adjustment fields may carry either sign.
type ReconciliationInput struct {
	OpeningStock       decimal.Decimal `json:"opening_stock"`
	Receipts           decimal.Decimal `json:"receipts"`
	TransfersIn        decimal.Decimal `json:"transfers_in"`
	TransfersOut       decimal.Decimal `json:"transfers_out"`
	ClosingStock       decimal.Decimal `json:"closing_stock"`
	BackCharges        decimal.Decimal `json:"back_charges"`
	Credits            decimal.Decimal `json:"credits"`
	Condemnations      decimal.Decimal `json:"condemnations"`
	GeneralAdjustments decimal.Decimal `json:"general_adjustments"`
}

// ConsumptionBreakdown echoes the rounded inputs next to the result for audit display.
type ConsumptionBreakdown struct {
	OpeningStock       decimal.Decimal `json:"opening_stock"`
	Receipts           decimal.Decimal `json:"receipts"`
	TransfersIn        decimal.Decimal `json:"transfers_in"`
	TransfersOut       decimal.Decimal `json:"transfers_out"`
	ClosingStock       decimal.Decimal `json:"closing_stock"`
	BackCharges        decimal.Decimal `json:"back_charges"`
	Credits            decimal.Decimal `json:"credits"`
	Condemnations      decimal.Decimal `json:"condemnations"`
	GeneralAdjustments decimal.Decimal `json:"general_adjustments"`
}

// ConsumptionResult is returned by CalculateConsumption.
type ConsumptionResult struct {
	Consumption      decimal.Decimal      `json:"consumption"`
	TotalAdjustments decimal.Decimal      `json:"total_adjustments"`
	Breakdown        ConsumptionBreakdown `json:"breakdown"`
}

// ReconciliationResult combines consumption with the per-manday cost.
type ReconciliationResult struct {
	ConsumptionResult
	TotalMandays int             `json:"total_mandays"`
	MandayCost   decimal.Decimal `json:"manday_cost"`
}

// CalculateConsumption derives implied usage:
//
//	totalAdjustments = backCharges - credits - condemnations + generalAdjustments
//	consumption      = opening + receipts + transfersIn - transfersOut - closing + totalAdjustments
func CalculateConsumption(in ReconciliationInput) (ConsumptionResult, error) {
	nonNegative := []struct {
		field string
		v     decimal.Decimal
	}{
		{"openingStock", in.OpeningStock},
		{"receipts", in.Receipts},
		{"transfersIn", in.TransfersIn},
		{"transfersOut", in.TransfersOut},
		{"closingStock", in.ClosingStock},
	}
	for _, f := range nonNegative {
		if err := requireNonNegative(f.field, f.v); err != nil {
			return ConsumptionResult{}, err
		}
	}

	totalAdjustments := in.BackCharges.Sub(in.Credits).Sub(in.Condemnations).Add(in.GeneralAdjustments)
	consumption := in.OpeningStock.
		Add(in.Receipts).
		Add(in.TransfersIn).
		Sub(in.TransfersOut).
		Sub(in.ClosingStock).
		Add(totalAdjustments)

	return ConsumptionResult{
		Consumption:      RoundMoney(consumption),
		TotalAdjustments: RoundMoney(totalAdjustments),
		Breakdown: ConsumptionBreakdown{
			OpeningStock:       RoundMoney(in.OpeningStock),
			Receipts:           RoundMoney(in.Receipts),
			TransfersIn:        RoundMoney(in.TransfersIn),
			TransfersOut:       RoundMoney(in.TransfersOut),
			ClosingStock:       RoundMoney(in.ClosingStock),
			BackCharges:        RoundMoney(in.BackCharges),
			Credits:            RoundMoney(in.Credits),
			Condemnations:      RoundMoney(in.Condemnations),
			GeneralAdjustments: RoundMoney(in.GeneralAdjustments),
		},
	}, nil
}

// CalculateMandayCost divides consumption by the period's mandays.
// A non-positive manday count is rejected before any division.
func CalculateMandayCost(consumption decimal.Decimal, totalMandays int) (decimal.Decimal, error) {
	if totalMandays <= 0 {
		return decimal.Zero, &ValidationError{Field: "totalMandays", Reason: "must be greater than zero"}
	}
	return RoundMoney(consumption.Div(decimal.NewFromInt(int64(totalMandays)))), nil
}

// CalculateReconciliation is the read-only preview used by reporting.
func CalculateReconciliation(in ReconciliationInput, totalMandays int) (ReconciliationResult, error) {
	cr, err := CalculateConsumption(in)
	if err != nil {
		return ReconciliationResult{}, err
	}
	cost, err := CalculateMandayCost(cr.Consumption, totalMandays)
	if err != nil {
		return ReconciliationResult{}, err
	}
	return ReconciliationResult{ConsumptionResult: cr, TotalMandays: totalMandays, MandayCost: cost}, nil
}

// TotalMandays sums crew and extra counts over the given entries.
func TotalMandays(entries []MandayEntry) int {
	total := 0
	for _, e := range entries {
		total += e.CrewCount + e.ExtraCount
	}
	return total
}

// Reconciliation is the persisted period-end snapshot of one location. Immutable once written.
type Reconciliation struct {
	PeriodID         int              `json:"period_id"`
	LocationID       int              `json:"location_id"`
	LocationCode     string           `json:"location_code"`
	LocationName     string           `json:"location_name"`
	OpeningStock     decimal.Decimal  `json:"opening_stock"`
	Receipts         decimal.Decimal  `json:"receipts"`
	TransfersIn      decimal.Decimal  `json:"transfers_in"`
	TransfersOut     decimal.Decimal  `json:"transfers_out"`
	Issues           decimal.Decimal  `json:"issues"`
	ClosingStock     decimal.Decimal  `json:"closing_stock"`
	BackCharges      decimal.Decimal  `json:"back_charges"`
	Credits          decimal.Decimal  `json:"credits"`
	Condemnations    decimal.Decimal  `json:"condemnations"`
	Adjustments      decimal.Decimal  `json:"adjustments"`
	TotalAdjustments decimal.Decimal  `json:"total_adjustments"`
	Consumption      decimal.Decimal  `json:"consumption"`
	TotalMandays     int              `json:"total_mandays"`
	MandayCost       *decimal.Decimal `json:"manday_cost,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}
