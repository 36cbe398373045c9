package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var blockerRank = map[BlockerKind]int{
	BlockerDraftDelivery:   0,
	BlockerPendingDelivery: 1,
	BlockerDraftIssue:      2,
	BlockerDraftTransfer:   3,
	BlockerPendingTransfer: 4,
}

// EvaluateCloseReadiness orders blockers by kind then document id, and reports
// Ready when there are none. Warnings never block.
func EvaluateCloseReadiness(periodID int, blockers []CloseBlocker, warnings []CloseWarning) CloseReadiness {
	b := append([]CloseBlocker{}, blockers...)
	sort.SliceStable(b, func(i, j int) bool {
		if blockerRank[b[i].Kind] != blockerRank[b[j].Kind] {
			return blockerRank[b[i].Kind] < blockerRank[b[j].Kind]
		}
		return b[i].DocumentID < b[j].DocumentID
	})
	w := append([]CloseWarning{}, warnings...)
	sort.SliceStable(w, func(i, j int) bool { return w[i].DocumentID < w[j].DocumentID })
	return CloseReadiness{PeriodID: periodID, Ready: len(b) == 0, Blockers: b, Warnings: w}
}

func (s *periodService) CheckCloseReadiness(ctx context.Context, id int) (*CloseReadiness, error) {
	if _, err := getPeriod(ctx, s.pool, id); err != nil {
		return nil, err
	}
	return loadCloseReadiness(ctx, s.pool, id)
}

func loadCloseReadiness(ctx context.Context, q querier, periodID int) (*CloseReadiness, error) {
	rows, err := q.Query(ctx, `
		SELECT CASE status WHEN 'DRAFT' THEN 'DRAFT_DELIVERY' ELSE 'PENDING_APPROVAL_DELIVERY' END,
		       id, location_id, 'delivery ' || COALESCE(NULLIF(invoice_number, ''), id::text)
		FROM deliveries WHERE period_id = $1 AND status IN ('DRAFT', 'PENDING_APPROVAL')
		UNION ALL
		SELECT 'DRAFT_ISSUE', id, location_id, 'issue ' || id::text || ' (' || cost_centre || ')'
		FROM issues WHERE period_id = $1 AND status = 'DRAFT'
		UNION ALL
		SELECT CASE status WHEN 'DRAFT' THEN 'DRAFT_TRANSFER' ELSE 'PENDING_APPROVAL_TRANSFER' END,
		       id, source_location_id, 'transfer ' || id::text
		FROM transfers WHERE period_id = $1 AND status IN ('DRAFT', 'PENDING_APPROVAL')
	`, periodID)
	if err != nil {
		return nil, fmt.Errorf("query close blockers for period %d: %w", periodID, err)
	}
	defer rows.Close()

	var blockers []CloseBlocker
	for rows.Next() {
		var b CloseBlocker
		if err := rows.Scan(&b.Kind, &b.DocumentID, &b.LocationID, &b.Reference); err != nil {
			return nil, fmt.Errorf("scan close blocker: %w", err)
		}
		blockers = append(blockers, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate close blockers: %w", err)
	}

	open, err := loadPeriodNCRs(ctx, q, periodID, "\n\tAND n.status = 'OPEN'")
	if err != nil {
		return nil, err
	}
	warnings := make([]CloseWarning, 0, len(open))
	for _, n := range open {
		warnings = append(warnings, CloseWarning{
			Kind:       "OPEN_NCR",
			DocumentID: n.Item.ID,
			LocationID: n.LocationID,
			Value:      n.Item.Value,
			Message:    fmt.Sprintf("NCR %d is still OPEN: %s", n.Item.ID, n.Item.Reason),
		})
	}

	r := EvaluateCloseReadiness(periodID, blockers, warnings)
	return &r, nil
}

// ExecuteClose snapshots every active location and marks the period CLOSED in a
// single transaction. Any failure rolls everything back and leaves the period
// PENDING_CLOSE.
func (s *periodService) ExecuteClose(ctx context.Context, id int, actor string) (*CloseResult, error) {
	var res *CloseResult
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := lockPeriodTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := CheckPeriodTransition(id, p.Status, PeriodClosed); err != nil {
			return err
		}
		readiness, err := loadCloseReadiness(ctx, tx, id)
		if err != nil {
			return err
		}
		if !readiness.Ready {
			return &PeriodConflictError{PeriodID: id, Reason: fmt.Sprintf("%d document(s) block close", len(readiness.Blockers))}
		}

		locs, err := listActiveLocations(ctx, tx)
		if err != nil {
			return err
		}
		nextID, err := nextPeriodID(ctx, tx, p)
		if err != nil {
			return err
		}

		res = &CloseResult{PeriodID: id, NextPeriodID: nextID, Locations: make([]LocationCloseResult, 0, len(locs))}
		for _, loc := range locs {
			lr, err := closeLocationTx(ctx, tx, p.ID, loc)
			if err != nil {
				return &PartialCloseError{PeriodID: id, Expected: len(locs), Snapshotted: len(res.Locations), Cause: err}
			}
			res.Locations = append(res.Locations, lr)

			if nextID != nil {
				if _, err := tx.Exec(ctx, `
					INSERT INTO period_opening_balances (period_id, location_id, opening_value, source_period_id)
					VALUES ($1, $2, $3, $4)
					ON CONFLICT (period_id, location_id)
					DO UPDATE SET opening_value = EXCLUDED.opening_value, source_period_id = EXCLUDED.source_period_id
				`, *nextID, loc.ID, lr.ClosingStock, id); err != nil {
					return &PartialCloseError{PeriodID: id, Expected: len(locs), Snapshotted: len(res.Locations),
						Cause: fmt.Errorf("carry opening balance for location %d: %w", loc.ID, err)}
				}
			}
		}

		var written int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM reconciliations WHERE period_id = $1`, id).Scan(&written); err != nil {
			return fmt.Errorf("count reconciliations: %w", err)
		}
		if written != len(locs) {
			return &PartialCloseError{PeriodID: id, Expected: len(locs), Snapshotted: written}
		}

		if err := tx.QueryRow(ctx, `
			UPDATE periods SET status = 'CLOSED', closed_at = NOW(), closed_by = $2
			WHERE id = $1
			RETURNING closed_at
		`, id, actor).Scan(&res.ClosedAt); err != nil {
			return fmt.Errorf("mark period %d closed: %w", id, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPartialClose) {
			s.log.Error("period close aborted", zap.Int("period_id", id), zap.Error(err))
		}
		return nil, err
	}
	s.log.Info("period closed",
		zap.Int("period_id", id),
		zap.Int("locations", len(res.Locations)),
		zap.String("closed_by", actor),
	)
	return res, nil
}

// nextPeriodID finds the earliest non-CLOSED period starting after p.
func nextPeriodID(ctx context.Context, tx pgx.Tx, p *Period) (*int, error) {
	var id int
	err := tx.QueryRow(ctx, `
		SELECT id FROM periods
		WHERE start_date > $1 AND status <> 'CLOSED'
		ORDER BY start_date LIMIT 1
	`, p.EndDate).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find period after %d: %w", p.ID, err)
	}
	return &id, nil
}

// closeLocationTx locks the location's stock, writes the item snapshots and the
// reconciliation row, and returns the location's close result.
func closeLocationTx(ctx context.Context, tx pgx.Tx, periodID int, loc Location) (LocationCloseResult, error) {
	rows, err := tx.Query(ctx, `
		SELECT item_id, on_hand, wac FROM location_stock
		WHERE location_id = $1
		ORDER BY item_id
		FOR UPDATE
	`, loc.ID)
	if err != nil {
		return LocationCloseResult{}, fmt.Errorf("lock stock of location %d: %w", loc.ID, err)
	}
	var stock []LocationStock
	for rows.Next() {
		st := LocationStock{LocationID: loc.ID}
		if err := rows.Scan(&st.ItemID, &st.OnHand, &st.WAC); err != nil {
			rows.Close()
			return LocationCloseResult{}, fmt.Errorf("scan stock of location %d: %w", loc.ID, err)
		}
		stock = append(stock, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return LocationCloseResult{}, fmt.Errorf("iterate stock of location %d: %w", loc.ID, err)
	}

	closing := decimal.Zero
	for _, st := range stock {
		v := st.Value()
		closing = closing.Add(v)
		if _, err := tx.Exec(ctx, `
			INSERT INTO stock_snapshots (period_id, location_id, item_id, quantity, wac, value)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, periodID, loc.ID, st.ItemID, st.OnHand, st.WAC, v); err != nil {
			return LocationCloseResult{}, fmt.Errorf("snapshot item %d at location %d: %w", st.ItemID, loc.ID, err)
		}
	}

	in, issues, err := loadMovementTotals(ctx, tx, periodID, loc.ID)
	if err != nil {
		return LocationCloseResult{}, err
	}
	in.ClosingStock = closing

	adj, err := loadAdjustments(ctx, tx, periodID, loc.ID)
	if err != nil {
		return LocationCloseResult{}, err
	}
	in.BackCharges = adj.BackCharges
	in.Credits = adj.Credits
	in.Condemnations = adj.Condemnations
	in.GeneralAdjustments = adj.General

	var mandays int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(crew_count + extra_count), 0)
		FROM period_mandays WHERE period_id = $1 AND location_id = $2
	`, periodID, loc.ID).Scan(&mandays); err != nil {
		return LocationCloseResult{}, fmt.Errorf("sum mandays of location %d: %w", loc.ID, err)
	}

	cr, err := CalculateConsumption(in)
	if err != nil {
		return LocationCloseResult{}, err
	}
	// No mandays recorded leaves the cost unset rather than failing the close.
	var mandayCost *decimal.Decimal
	if mandays > 0 {
		c, err := CalculateMandayCost(cr.Consumption, mandays)
		if err != nil {
			return LocationCloseResult{}, err
		}
		mandayCost = &c
	}

	b := cr.Breakdown
	if _, err := tx.Exec(ctx, `
		INSERT INTO reconciliations (period_id, location_id, opening_stock, receipts, transfers_in, transfers_out,
			issues, closing_stock, back_charges, credits, condemnations, adjustments, total_adjustments,
			consumption, total_mandays, manday_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, periodID, loc.ID, b.OpeningStock, b.Receipts, b.TransfersIn, b.TransfersOut,
		RoundMoney(issues), b.ClosingStock, b.BackCharges, b.Credits, b.Condemnations, b.GeneralAdjustments,
		cr.TotalAdjustments, cr.Consumption, mandays, mandayCost); err != nil {
		return LocationCloseResult{}, fmt.Errorf("insert reconciliation for location %d: %w", loc.ID, err)
	}

	return LocationCloseResult{
		LocationID:   loc.ID,
		LocationCode: loc.Code,
		ClosingStock: b.ClosingStock,
		Consumption:  cr.Consumption,
		TotalMandays: mandays,
		MandayCost:   mandayCost,
	}, nil
}

// loadMovementTotals returns the ledger values of a location for a period
// (opening, receipts, transfers) plus the issued value, which the consumption
// formula does not take as input.
func loadMovementTotals(ctx context.Context, q querier, periodID, locationID int) (ReconciliationInput, decimal.Decimal, error) {
	var in ReconciliationInput
	err := q.QueryRow(ctx, `
		SELECT COALESCE((SELECT opening_value FROM period_opening_balances WHERE period_id = $1 AND location_id = $2), 0)
	`, periodID, locationID).Scan(&in.OpeningStock)
	if err != nil {
		return in, decimal.Zero, fmt.Errorf("fetch opening balance of location %d: %w", locationID, err)
	}

	rows, err := q.Query(ctx, `
		SELECT movement_type, COALESCE(SUM(total_value), 0)
		FROM stock_movements
		WHERE period_id = $1 AND location_id = $2
		GROUP BY movement_type
	`, periodID, locationID)
	if err != nil {
		return in, decimal.Zero, fmt.Errorf("sum movements of location %d: %w", locationID, err)
	}
	defer rows.Close()

	issues := decimal.Zero
	for rows.Next() {
		var typ MovementType
		var total decimal.Decimal
		if err := rows.Scan(&typ, &total); err != nil {
			return in, decimal.Zero, fmt.Errorf("scan movement total: %w", err)
		}
		switch typ {
		case MovementReceipt:
			in.Receipts = total
		case MovementTransferIn:
			in.TransfersIn = total
		case MovementTransferOut:
			in.TransfersOut = total
		case MovementIssue:
			issues = total
		}
	}
	return in, issues, rows.Err()
}

