package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PurchaseOrderService manages the purchase orders deliveries are received against.
type PurchaseOrderService interface {
	CreatePO(ctx context.Context, supplierID int, poNumber string, lines []PurchaseOrderLineInput) (*PurchaseOrder, error)
	GetPO(ctx context.Context, id int) (*PurchaseOrder, error)
	// RemainingQuantity is ordered quantity less POSTED delivery quantity for the line.
	RemainingQuantity(ctx context.Context, poLineID int) (decimal.Decimal, error)
}

type purchaseOrderService struct {
	pool *pgxpool.Pool
}

// NewPurchaseOrderService constructs a PurchaseOrderService backed by PostgreSQL.
func NewPurchaseOrderService(pool *pgxpool.Pool) PurchaseOrderService {
	return &purchaseOrderService{pool: pool}
}

// CreatePO creates a purchase order with its lines.
func (s *purchaseOrderService) CreatePO(ctx context.Context, supplierID int, poNumber string, lines []PurchaseOrderLineInput) (*PurchaseOrder, error) {
	if strings.TrimSpace(poNumber) == "" {
		return nil, &ValidationError{Field: "poNumber", Reason: "is required"}
	}
	if len(lines) == 0 {
		return nil, &ValidationError{Field: "lines", Reason: "purchase order must have at least one line"}
	}
	for i, l := range lines {
		if l.ItemID <= 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].itemId", i), Reason: "is required"}
		}
		if err := requireQuantity(fmt.Sprintf("lines[%d].quantity", i), l.Quantity); err != nil {
			return nil, err
		}
		if err := requireNonNegative(fmt.Sprintf("lines[%d].unitPrice", i), l.UnitPrice); err != nil {
			return nil, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var supplierExists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1)", supplierID).Scan(&supplierExists); err != nil {
		return nil, fmt.Errorf("validate supplier: %w", err)
	}
	if !supplierExists {
		return nil, notFound("supplier", supplierID)
	}

	ids := make([]int, len(lines))
	for i, l := range lines {
		ids[i] = l.ItemID
	}
	if _, err := loadItemRefs(ctx, tx, ids); err != nil {
		return nil, err
	}

	var poID int
	if err := tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (supplier_id, po_number) VALUES ($1, $2)
		RETURNING id`,
		supplierID, poNumber,
	).Scan(&poID); err != nil {
		if isUniqueViolation(err, "") {
			return nil, &ValidationError{Field: "poNumber", Reason: fmt.Sprintf("purchase order %s already exists", poNumber)}
		}
		return nil, fmt.Errorf("insert purchase order: %w", err)
	}

	for i, l := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO purchase_order_lines (order_id, item_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)`,
			poID, l.ItemID, l.Quantity, RoundCost(l.UnitPrice),
		); err != nil {
			return nil, fmt.Errorf("insert purchase order line %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetPO(ctx, poID)
}

// GetPO returns the purchase order with per-line received and remaining quantities.
func (s *purchaseOrderService) GetPO(ctx context.Context, id int) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.pool.QueryRow(ctx, `
		SELECT po.id, po.supplier_id, s.code, po.po_number, po.created_at
		FROM purchase_orders po
		JOIN suppliers s ON s.id = po.supplier_id
		WHERE po.id = $1`, id,
	).Scan(&po.ID, &po.SupplierID, &po.SupplierCode, &po.PONumber, &po.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("purchase order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch purchase order %d: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT pol.id, pol.order_id, pol.item_id, i.code, pol.quantity, pol.unit_price,
		       COALESCE((
		           SELECT SUM(dl.quantity) FROM delivery_lines dl
		           JOIN deliveries d ON d.id = dl.delivery_id
		           WHERE dl.po_line_id = pol.id AND d.status = 'POSTED'
		       ), 0)
		FROM purchase_order_lines pol
		JOIN items i ON i.id = pol.item_id
		WHERE pol.order_id = $1
		ORDER BY pol.id`, id)
	if err != nil {
		return nil, fmt.Errorf("query purchase order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l PurchaseOrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ItemID, &l.ItemCode, &l.Quantity, &l.UnitPrice, &l.Received); err != nil {
			return nil, fmt.Errorf("scan purchase order line: %w", err)
		}
		l.Remaining = RemainingAfterReceipts(l.Quantity, l.Received)
		po.Lines = append(po.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase order lines: %w", err)
	}
	return &po, nil
}

func (s *purchaseOrderService) RemainingQuantity(ctx context.Context, poLineID int) (decimal.Decimal, error) {
	return remainingQuantity(ctx, s.pool, poLineID)
}

// RemainingAfterReceipts floors at zero: an approved over-delivery leaves nothing remaining.
func RemainingAfterReceipts(ordered, received decimal.Decimal) decimal.Decimal {
	rem := ordered.Sub(received)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// POLineState is what over-delivery detection needs about one PO line.
type POLineState struct {
	ID        int
	OrderID   int
	ItemID    int
	Remaining decimal.Decimal
}

func loadPOLines(ctx context.Context, q querier, ids []int) (map[int]POLineState, error) {
	rows, err := q.Query(ctx, `
		SELECT pol.id, pol.order_id, pol.item_id, pol.quantity,
		       COALESCE((
		           SELECT SUM(dl.quantity) FROM delivery_lines dl
		           JOIN deliveries d ON d.id = dl.delivery_id
		           WHERE dl.po_line_id = pol.id AND d.status = 'POSTED'
		       ), 0)
		FROM purchase_order_lines pol
		WHERE pol.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query purchase order lines: %w", err)
	}
	defer rows.Close()

	out := make(map[int]POLineState, len(ids))
	for rows.Next() {
		var st POLineState
		var ordered, received decimal.Decimal
		if err := rows.Scan(&st.ID, &st.OrderID, &st.ItemID, &ordered, &received); err != nil {
			return nil, fmt.Errorf("scan purchase order line: %w", err)
		}
		st.Remaining = RemainingAfterReceipts(ordered, received)
		out[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase order lines: %w", err)
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, notFound("purchase order line", id)
		}
	}
	return out, nil
}

func remainingQuantity(ctx context.Context, q querier, poLineID int) (decimal.Decimal, error) {
	lines, err := loadPOLines(ctx, q, []int{poLineID})
	if err != nil {
		return decimal.Zero, err
	}
	return lines[poLineID].Remaining, nil
}

// DetectOverDelivery returns the delivery lines whose quantity, summed per PO
// line, exceeds that PO line's remaining quantity. Lines without a PO link are ignored.
func DetectOverDelivery(lines []DeliveryLineInput, poLines map[int]POLineState) []OverDeliveredLine {
	requested := map[int]decimal.Decimal{}
	var order []int
	for _, l := range lines {
		if l.POLineID == nil {
			continue
		}
		id := *l.POLineID
		if _, seen := requested[id]; !seen {
			order = append(order, id)
		}
		requested[id] = requested[id].Add(l.Quantity)
	}
	var over []OverDeliveredLine
	for _, id := range order {
		st := poLines[id]
		if requested[id].GreaterThan(st.Remaining) {
			over = append(over, OverDeliveredLine{POLineID: id, ItemID: st.ItemID, Requested: requested[id], Remaining: st.Remaining})
		}
	}
	return over
}
