package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ── Report types ──────────────────────────────────────────────────────────────

// ReconciliationPreview is the reconciliation of one location. For an OPEN or
// PENDING_CLOSE period it is live and unpersisted, with closing stock taken from
// the current stock value. For a CLOSED period it echoes the stored snapshot
// and Snapshot is true. MandayCost is nil while no mandays are recorded.
type ReconciliationPreview struct {
	PeriodID     int                 `json:"period_id"`
	LocationID   int                 `json:"location_id"`
	Snapshot     bool                `json:"snapshot"`
	Input        ReconciliationInput `json:"input"`
	Issues       decimal.Decimal     `json:"issues"`
	Result       ConsumptionResult   `json:"result"`
	TotalMandays int                 `json:"total_mandays"`
	MandayCost   *decimal.Decimal    `json:"manday_cost,omitempty"`
	NCRs         NCRSummary          `json:"ncrs"`
}

// ── Interface ─────────────────────────────────────────────────────────────────

// ReportingService provides read-only reconciliation queries. It never mutates
// engine state.
type ReportingService interface {
	// GetReconciliations returns the persisted close snapshots of a period,
	// one per location, ordered by location code.
	GetReconciliations(ctx context.Context, periodID int) ([]Reconciliation, error)

	// PreviewReconciliation computes what closing the period now would record
	// for the location, alongside its NCR summary. A CLOSED period returns its
	// stored snapshot; a DRAFT period has nothing to reconcile yet.
	PreviewReconciliation(ctx context.Context, periodID, locationID int) (*ReconciliationPreview, error)
}

type reportingService struct {
	pool *pgxpool.Pool
	ncrs NCRService
}

// NewReportingService constructs a ReportingService backed by PostgreSQL.
func NewReportingService(pool *pgxpool.Pool, ncrs NCRService) ReportingService {
	return &reportingService{pool: pool, ncrs: ncrs}
}

func (s *reportingService) GetReconciliations(ctx context.Context, periodID int) ([]Reconciliation, error) {
	if _, err := getPeriod(ctx, s.pool, periodID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT r.period_id, r.location_id, l.code, l.name,
		       r.opening_stock, r.receipts, r.transfers_in, r.transfers_out, r.issues, r.closing_stock,
		       r.back_charges, r.credits, r.condemnations, r.adjustments, r.total_adjustments,
		       r.consumption, r.total_mandays, r.manday_cost, r.created_at
		FROM reconciliations r
		JOIN locations l ON l.id = r.location_id
		WHERE r.period_id = $1
		ORDER BY l.code
	`, periodID)
	if err != nil {
		return nil, fmt.Errorf("query reconciliations for period %d: %w", periodID, err)
	}
	defer rows.Close()

	var out []Reconciliation
	for rows.Next() {
		var r Reconciliation
		if err := rows.Scan(&r.PeriodID, &r.LocationID, &r.LocationCode, &r.LocationName,
			&r.OpeningStock, &r.Receipts, &r.TransfersIn, &r.TransfersOut, &r.Issues, &r.ClosingStock,
			&r.BackCharges, &r.Credits, &r.Condemnations, &r.Adjustments, &r.TotalAdjustments,
			&r.Consumption, &r.TotalMandays, &r.MandayCost, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *reportingService) PreviewReconciliation(ctx context.Context, periodID, locationID int) (*ReconciliationPreview, error) {
	p, err := getPeriod(ctx, s.pool, periodID)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case PeriodClosed:
		return s.storedPreview(ctx, periodID, locationID)
	case PeriodDraft:
		return nil, &PeriodConflictError{PeriodID: periodID, Reason: "a DRAFT period has no movements to reconcile"}
	}

	in, issues, err := loadMovementTotals(ctx, s.pool, periodID, locationID)
	if err != nil {
		return nil, err
	}
	if err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(ROUND(on_hand * wac, 2)), 0) FROM location_stock WHERE location_id = $1
	`, locationID).Scan(&in.ClosingStock); err != nil {
		return nil, fmt.Errorf("sum stock value of location %d: %w", locationID, err)
	}

	adj, err := loadAdjustments(ctx, s.pool, periodID, locationID)
	if err != nil {
		return nil, err
	}
	in.BackCharges = adj.BackCharges
	in.Credits = adj.Credits
	in.Condemnations = adj.Condemnations
	in.GeneralAdjustments = adj.General

	var mandays int
	if err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(crew_count + extra_count), 0)
		FROM period_mandays WHERE period_id = $1 AND location_id = $2
	`, periodID, locationID).Scan(&mandays); err != nil {
		return nil, fmt.Errorf("sum mandays of location %d: %w", locationID, err)
	}

	preview := &ReconciliationPreview{PeriodID: periodID, LocationID: locationID, Input: in, Issues: RoundMoney(issues), TotalMandays: mandays}
	if mandays > 0 {
		rr, err := CalculateReconciliation(in, mandays)
		if err != nil {
			return nil, err
		}
		preview.Result = rr.ConsumptionResult
		preview.MandayCost = &rr.MandayCost
	} else {
		cr, err := CalculateConsumption(in)
		if err != nil {
			return nil, err
		}
		preview.Result = cr
	}

	sum, err := s.ncrs.GetAllNCRSummaryForPeriod(ctx, periodID, locationID)
	if err != nil {
		return nil, err
	}
	preview.NCRs = *sum
	return preview, nil
}

// storedPreview rebuilds the preview of a CLOSED period from its snapshot so it
// never drifts from what the close recorded.
func (s *reportingService) storedPreview(ctx context.Context, periodID, locationID int) (*ReconciliationPreview, error) {
	recs, err := s.GetReconciliations(ctx, periodID)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.LocationID != locationID {
			continue
		}
		in := ReconciliationInput{
			OpeningStock:       r.OpeningStock,
			Receipts:           r.Receipts,
			TransfersIn:        r.TransfersIn,
			TransfersOut:       r.TransfersOut,
			ClosingStock:       r.ClosingStock,
			BackCharges:        r.BackCharges,
			Credits:            r.Credits,
			Condemnations:      r.Condemnations,
			GeneralAdjustments: r.Adjustments,
		}
		preview := &ReconciliationPreview{
			PeriodID:   periodID,
			LocationID: locationID,
			Snapshot:   true,
			Input:      in,
			Issues:     r.Issues,
			Result: ConsumptionResult{
				Consumption:      r.Consumption,
				TotalAdjustments: r.TotalAdjustments,
				Breakdown:        ConsumptionBreakdown(in),
			},
			TotalMandays: r.TotalMandays,
			MandayCost:   r.MandayCost,
		}
		sum, err := s.ncrs.GetAllNCRSummaryForPeriod(ctx, periodID, locationID)
		if err != nil {
			return nil, err
		}
		preview.NCRs = *sum
		return preview, nil
	}
	return nil, notFound("reconciliation", fmt.Sprintf("%d/%d", periodID, locationID))
}
