package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// NCRService manages non-conformance reports and their reconciliation summary.
type NCRService interface {
	CreateManualNCR(ctx context.Context, in NCRInput) (*NCR, error)
	// UpdateNCRStatus applies one lifecycle step. impact must be non-nil exactly
	// when status is RESOLVED.
	UpdateNCRStatus(ctx context.Context, id int, status NCRStatus, impact *FinancialImpact) (*NCR, error)
	GetNCR(ctx context.Context, id int) (*NCR, error)
	// GetAllNCRSummaryForPeriod is read-only.
	GetAllNCRSummaryForPeriod(ctx context.Context, periodID, locationID int) (*NCRSummary, error)
}

type ncrService struct {
	pool *pgxpool.Pool
}

// NewNCRService constructs an NCRService backed by PostgreSQL.
func NewNCRService(pool *pgxpool.Pool) NCRService {
	return &ncrService{pool: pool}
}

// ClassifyNCRs buckets rows by financial outcome:
//
//	credited = CREDITED, or RESOLVED with impact CREDIT
//	losses   = REJECTED, or RESOLVED with impact LOSS
//	pending  = SENT
//	open     = OPEN
//
// RESOLVED with impact NONE lands in no bucket.
func ClassifyNCRs(periodID, locationID int, rows []NCRSummaryItem) NCRSummary {
	sum := NCRSummary{
		PeriodID:   periodID,
		LocationID: locationID,
		Credited:   NCRCategory{Total: decimal.Zero, Items: []NCRSummaryItem{}},
		Losses:     NCRCategory{Total: decimal.Zero, Items: []NCRSummaryItem{}},
		Pending:    NCRCategory{Total: decimal.Zero, Items: []NCRSummaryItem{}},
		Open:       NCRCategory{Total: decimal.Zero, Items: []NCRSummaryItem{}},
	}
	for _, it := range rows {
		switch {
		case it.Status == NCRCredited || resolvedAs(it, ImpactCredit):
			sum.Credited.add(it)
		case it.Status == NCRRejected || resolvedAs(it, ImpactLoss):
			sum.Losses.add(it)
		case it.Status == NCRSent:
			sum.Pending.add(it)
		case it.Status == NCROpen:
			sum.Open.add(it)
		}
	}
	sum.Credited.Total = RoundMoney(sum.Credited.Total)
	sum.Losses.Total = RoundMoney(sum.Losses.Total)
	sum.Pending.Total = RoundMoney(sum.Pending.Total)
	sum.Open.Total = RoundMoney(sum.Open.Total)
	return sum
}

func resolvedAs(it NCRSummaryItem, impact FinancialImpact) bool {
	return it.Status == NCRResolved && it.FinancialImpact != nil && *it.FinancialImpact == impact
}

// ncrPeriodQuery selects NCRs belonging to period $1: through the linked
// delivery's period, or by creation date when there is no delivery. The item
// name comes from the linked line, else the delivery's first line.
const ncrPeriodQuery = `
	SELECT n.id, n.location_id, n.type, n.status, n.financial_impact, n.value, n.reason,
	       n.delivery_id, d.invoice_number, s.name, li.item_name, n.created_at
	FROM ncrs n
	JOIN periods p ON p.id = $1
	LEFT JOIN deliveries d ON d.id = n.delivery_id
	LEFT JOIN suppliers s ON s.id = d.supplier_id
	LEFT JOIN LATERAL (
		SELECT i.name AS item_name
		FROM delivery_lines dl
		JOIN items i ON i.id = dl.item_id
		WHERE (n.delivery_line_id IS NOT NULL AND dl.id = n.delivery_line_id)
		   OR (n.delivery_line_id IS NULL AND dl.delivery_id = n.delivery_id)
		ORDER BY dl.id
		LIMIT 1
	) li ON true
	WHERE ((n.delivery_id IS NOT NULL AND d.period_id = p.id)
	    OR (n.delivery_id IS NULL AND n.created_at::date BETWEEN p.start_date AND p.end_date))`

type periodNCR struct {
	LocationID int
	Item       NCRSummaryItem
}

func loadPeriodNCRs(ctx context.Context, q querier, periodID int, extra string, args ...any) ([]periodNCR, error) {
	rows, err := q.Query(ctx, ncrPeriodQuery+extra+"\n\tORDER BY n.id", append([]any{periodID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query ncrs for period %d: %w", periodID, err)
	}
	defer rows.Close()

	var out []periodNCR
	for rows.Next() {
		var r periodNCR
		it := &r.Item
		if err := rows.Scan(&it.ID, &r.LocationID, &it.Type, &it.Status, &it.FinancialImpact, &it.Value, &it.Reason,
			&it.DeliveryID, &it.InvoiceNumber, &it.SupplierName, &it.ItemName, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ncr: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *ncrService) GetAllNCRSummaryForPeriod(ctx context.Context, periodID, locationID int) (*NCRSummary, error) {
	if _, err := getPeriod(ctx, s.pool, periodID); err != nil {
		return nil, err
	}
	rows, err := loadPeriodNCRs(ctx, s.pool, periodID, "\n\tAND n.location_id = $2", locationID)
	if err != nil {
		return nil, err
	}
	items := make([]NCRSummaryItem, len(rows))
	for i, r := range rows {
		items[i] = r.Item
	}
	sum := ClassifyNCRs(periodID, locationID, items)
	return &sum, nil
}

func (s *ncrService) CreateManualNCR(ctx context.Context, in NCRInput) (*NCR, error) {
	if in.LocationID <= 0 {
		return nil, &ValidationError{Field: "locationId", Reason: "is required"}
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, &ValidationError{Field: "reason", Reason: "is required"}
	}
	if err := requireNonNegative("value", in.Value); err != nil {
		return nil, err
	}

	var n *NCR
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var deliveryID *int
		if in.DeliveryLineID != nil {
			var id, locID int
			err := tx.QueryRow(ctx, `
				SELECT d.id, d.location_id FROM delivery_lines dl
				JOIN deliveries d ON d.id = dl.delivery_id
				WHERE dl.id = $1
			`, *in.DeliveryLineID).Scan(&id, &locID)
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound("delivery line", *in.DeliveryLineID)
			}
			if err != nil {
				return fmt.Errorf("fetch delivery line %d: %w", *in.DeliveryLineID, err)
			}
			if locID != in.LocationID {
				return &ValidationError{Field: "deliveryLineId", Reason: "belongs to a delivery at another location"}
			}
			deliveryID = &id
		}
		var err error
		n, err = insertNCRTx(ctx, tx, NCR{
			LocationID:     in.LocationID,
			Type:           NCRManual,
			Value:          RoundMoney(in.Value),
			Reason:         in.Reason,
			DeliveryID:     deliveryID,
			DeliveryLineID: in.DeliveryLineID,
			CreatedBy:      in.CreatedBy,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *ncrService) UpdateNCRStatus(ctx context.Context, id int, status NCRStatus, impact *FinancialImpact) (*NCR, error) {
	var n *NCR
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := scanNCR(tx.QueryRow(ctx, `SELECT `+ncrColumns+` FROM ncrs WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("ncr", id)
		}
		if err != nil {
			return fmt.Errorf("lock ncr %d: %w", id, err)
		}
		if err := CheckNCRTransition(id, cur.Status, status, impact); err != nil {
			return err
		}

		var resolvedAt *time.Time
		if status == NCRResolved || status == NCRCredited || status == NCRRejected {
			now := time.Now().UTC()
			resolvedAt = &now
		}
		n, err = scanNCR(tx.QueryRow(ctx, `
			UPDATE ncrs SET status = $1, financial_impact = $2, resolved_at = $3
			WHERE id = $4
			RETURNING `+ncrColumns, status, impact, resolvedAt, id))
		if err != nil {
			return fmt.Errorf("update ncr %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *ncrService) GetNCR(ctx context.Context, id int) (*NCR, error) {
	n, err := scanNCR(s.pool.QueryRow(ctx, `SELECT `+ncrColumns+` FROM ncrs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("ncr", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch ncr %d: %w", id, err)
	}
	return n, nil
}

const ncrColumns = `id, location_id, type, status, financial_impact, value, reason, delivery_id, delivery_line_id, created_by, resolved_at, created_at`

func scanNCR(row pgx.Row) (*NCR, error) {
	var n NCR
	if err := row.Scan(&n.ID, &n.LocationID, &n.Type, &n.Status, &n.FinancialImpact, &n.Value, &n.Reason,
		&n.DeliveryID, &n.DeliveryLineID, &n.CreatedBy, &n.ResolvedAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func insertNCRTx(ctx context.Context, tx pgx.Tx, n NCR) (*NCR, error) {
	out, err := scanNCR(tx.QueryRow(ctx, `
		INSERT INTO ncrs (location_id, type, status, value, reason, delivery_id, delivery_line_id, created_by)
		VALUES ($1, $2, 'OPEN', $3, $4, $5, $6, $7)
		RETURNING `+ncrColumns,
		n.LocationID, n.Type, n.Value, n.Reason, n.DeliveryID, n.DeliveryLineID, n.CreatedBy))
	if err != nil {
		return nil, fmt.Errorf("insert ncr: %w", err)
	}
	return out, nil
}

// PriceVarianceValue is (unit price − period price) × quantity at money scale.
// Positive means the supplier charged more than the locked price.
func PriceVarianceValue(unitPrice, periodPrice, qty decimal.Decimal) decimal.Decimal {
	return RoundMoney(unitPrice.Sub(periodPrice).Mul(qty))
}

// createPriceVarianceNCRTx records an automatic PRICE_VARIANCE NCR for a posted
// delivery line whose price differs from the locked period price.
func createPriceVarianceNCRTx(ctx context.Context, tx pgx.Tx, d *Delivery, line DeliveryLine, periodPrice decimal.Decimal) (*NCR, error) {
	deliveryID, lineID := d.ID, line.ID
	return insertNCRTx(ctx, tx, NCR{
		LocationID: d.LocationID,
		Type:       NCRPriceVariance,
		Value:      PriceVarianceValue(line.UnitPrice, periodPrice, line.Quantity).Abs(),
		Reason: fmt.Sprintf("%s invoiced at %s against period price %s",
			line.ItemCode, RoundCost(line.UnitPrice).String(), RoundCost(periodPrice).String()),
		DeliveryID:     &deliveryID,
		DeliveryLineID: &lineID,
		CreatedBy:      d.CreatedBy,
	})
}
