package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DeliveryService receives goods into a location.
type DeliveryService interface {
	// CreateDelivery stores a DRAFT delivery, or a PENDING_APPROVAL one when any
	// line exceeds the remaining quantity of its purchase order line.
	CreateDelivery(ctx context.Context, in DeliveryInput) (*DeliveryPostResult, error)
	// PostDelivery moves DRAFT → POSTED, updating stock and WAC per line. An
	// over-delivery found at posting time diverts to PENDING_APPROVAL instead.
	PostDelivery(ctx context.Context, id int) (*DeliveryPostResult, error)
	// ApproveOverDelivery posts a PENDING_APPROVAL delivery.
	ApproveOverDelivery(ctx context.Context, id int, approver string) (*DeliveryPostResult, error)
	// RejectOverDelivery is terminal: the delivery can never be posted.
	RejectOverDelivery(ctx context.Context, id int, approver, reason string) (*Delivery, error)
	GetDelivery(ctx context.Context, id int) (*Delivery, error)
	ListDeliveries(ctx context.Context, periodID int) ([]Delivery, error)
}

type deliveryService struct {
	pool *pgxpool.Pool
	inv  InventoryService
	log  *zap.Logger
}

// NewDeliveryService constructs a DeliveryService. log may be nil.
func NewDeliveryService(pool *pgxpool.Pool, inv InventoryService, log *zap.Logger) DeliveryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &deliveryService{pool: pool, inv: inv, log: log}
}

func validateDeliveryInput(in DeliveryInput) error {
	if in.PeriodID <= 0 {
		return &ValidationError{Field: "periodId", Reason: "is required"}
	}
	if in.LocationID <= 0 {
		return &ValidationError{Field: "locationId", Reason: "is required"}
	}
	if in.SupplierID <= 0 {
		return &ValidationError{Field: "supplierId", Reason: "is required"}
	}
	if in.DeliveryDate.IsZero() {
		return &ValidationError{Field: "deliveryDate", Reason: "is required"}
	}
	if len(in.Lines) == 0 {
		return &ValidationError{Field: "lines", Reason: "at least one line is required"}
	}
	for i, l := range in.Lines {
		if l.ItemID <= 0 {
			return &ValidationError{Field: fmt.Sprintf("lines[%d].itemId", i), Reason: "is required"}
		}
		if err := requireQuantity(fmt.Sprintf("lines[%d].quantity", i), l.Quantity); err != nil {
			return err
		}
		if err := requireNonNegative(fmt.Sprintf("lines[%d].unitPrice", i), l.UnitPrice); err != nil {
			return err
		}
		if l.POLineID != nil && in.PurchaseOrderID == nil {
			return &ValidationError{Field: fmt.Sprintf("lines[%d].poLineId", i), Reason: "requires purchaseOrderId on the delivery"}
		}
	}
	return nil
}

func poLineIDs(lines []DeliveryLineInput) []int {
	var ids []int
	for _, l := range lines {
		if l.POLineID != nil {
			ids = append(ids, *l.POLineID)
		}
	}
	return ids
}

// lockPOLinesTx serializes deliveries received against the same PO lines.
func lockPOLinesTx(ctx context.Context, tx pgx.Tx, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `SELECT id FROM purchase_order_lines WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids); err != nil {
		return fmt.Errorf("lock purchase order lines: %w", err)
	}
	return nil
}

func (s *deliveryService) CreateDelivery(ctx context.Context, in DeliveryInput) (*DeliveryPostResult, error) {
	if err := validateDeliveryInput(in); err != nil {
		return nil, err
	}

	var res *DeliveryPostResult
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := lockPostablePeriodTx(ctx, tx, in.PeriodID)
		if err != nil {
			return err
		}
		if err := requireDateInPeriod("deliveryDate", p, in.DeliveryDate); err != nil {
			return err
		}

		var supplierExists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1)`, in.SupplierID).Scan(&supplierExists); err != nil {
			return fmt.Errorf("validate supplier: %w", err)
		}
		if !supplierExists {
			return notFound("supplier", in.SupplierID)
		}

		itemIDs := make([]int, len(in.Lines))
		for i, l := range in.Lines {
			itemIDs[i] = l.ItemID
		}
		if _, err := loadItemRefs(ctx, tx, itemIDs); err != nil {
			return err
		}

		status := DeliveryDraft
		var over []OverDeliveredLine
		if ids := poLineIDs(in.Lines); len(ids) > 0 {
			if err := lockPOLinesTx(ctx, tx, ids); err != nil {
				return err
			}
			poLines, err := loadPOLines(ctx, tx, ids)
			if err != nil {
				return err
			}
			for i, l := range in.Lines {
				if l.POLineID == nil {
					continue
				}
				st := poLines[*l.POLineID]
				if st.OrderID != *in.PurchaseOrderID {
					return &ValidationError{Field: fmt.Sprintf("lines[%d].poLineId", i), Reason: "belongs to another purchase order"}
				}
				if st.ItemID != l.ItemID {
					return &ValidationError{Field: fmt.Sprintf("lines[%d].itemId", i), Reason: "does not match the purchase order line item"}
				}
			}
			over = DetectOverDelivery(in.Lines, poLines)
			if len(over) > 0 {
				status = DeliveryPendingApproval
			}
		}

		var id int
		if err := tx.QueryRow(ctx, `
			INSERT INTO deliveries (period_id, location_id, supplier_id, purchase_order_id, invoice_number, delivery_date, status, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, in.PeriodID, in.LocationID, in.SupplierID, in.PurchaseOrderID, strings.TrimSpace(in.InvoiceNumber),
			in.DeliveryDate, status, in.CreatedBy).Scan(&id); err != nil {
			return fmt.Errorf("insert delivery: %w", err)
		}
		for i, l := range in.Lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO delivery_lines (delivery_id, item_id, po_line_id, quantity, unit_price, line_value)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, id, l.ItemID, l.POLineID, l.Quantity, RoundCost(l.UnitPrice), lineValue(l.Quantity, l.UnitPrice)); err != nil {
				return fmt.Errorf("insert delivery line %d: %w", i+1, err)
			}
		}

		d, err := loadDelivery(ctx, tx, id, false)
		if err != nil {
			return err
		}
		res = &DeliveryPostResult{Delivery: d, RequiresApproval: status == DeliveryPendingApproval, OverDelivered: over}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.RequiresApproval {
		s.log.Info("over-delivery flagged",
			zap.Int("delivery_id", res.Delivery.ID),
			zap.Int("lines", len(res.OverDelivered)),
		)
	}
	return res, nil
}

func (s *deliveryService) PostDelivery(ctx context.Context, id int) (*DeliveryPostResult, error) {
	var res *DeliveryPostResult
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		d, err := loadDelivery(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := CheckDeliveryTransition(id, d.Status, DeliveryPosted); err != nil {
			return err
		}
		if d.Status != DeliveryDraft {
			// PENDING_APPROVAL deliveries post only through ApproveOverDelivery.
			return &StateTransitionError{Entity: "delivery", ID: id, From: string(d.Status), To: string(DeliveryPosted)}
		}
		if _, err := lockPostablePeriodTx(ctx, tx, d.PeriodID); err != nil {
			return err
		}

		inputs := make([]DeliveryLineInput, len(d.Lines))
		for i, l := range d.Lines {
			inputs[i] = DeliveryLineInput{ItemID: l.ItemID, POLineID: l.POLineID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
		}
		if ids := poLineIDs(inputs); len(ids) > 0 {
			if err := lockPOLinesTx(ctx, tx, ids); err != nil {
				return err
			}
			poLines, err := loadPOLines(ctx, tx, ids)
			if err != nil {
				return err
			}
			if over := DetectOverDelivery(inputs, poLines); len(over) > 0 {
				if _, err := tx.Exec(ctx, `UPDATE deliveries SET status = 'PENDING_APPROVAL' WHERE id = $1`, id); err != nil {
					return fmt.Errorf("flag delivery %d for approval: %w", id, err)
				}
				d.Status = DeliveryPendingApproval
				res = &DeliveryPostResult{Delivery: d, RequiresApproval: true, OverDelivered: over}
				return nil
			}
		}

		res, err = s.postDeliveryTx(ctx, tx, d, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logPosting(res)
	return res, nil
}

func (s *deliveryService) ApproveOverDelivery(ctx context.Context, id int, approver string) (*DeliveryPostResult, error) {
	var res *DeliveryPostResult
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		d, err := loadDelivery(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if d.Status != DeliveryPendingApproval {
			return &StateTransitionError{Entity: "delivery", ID: id, From: string(d.Status), To: string(DeliveryPosted)}
		}
		if _, err := lockPostablePeriodTx(ctx, tx, d.PeriodID); err != nil {
			return err
		}
		res, err = s.postDeliveryTx(ctx, tx, d, &approver)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logPosting(res)
	return res, nil
}

func (s *deliveryService) RejectOverDelivery(ctx context.Context, id int, approver, reason string) (*Delivery, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Reason: "is required"}
	}
	var d *Delivery
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := loadDelivery(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := CheckDeliveryTransition(id, cur.Status, DeliveryRejected); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE deliveries SET status = 'REJECTED', approved_by = $2, rejection_reason = $3
			WHERE id = $1
		`, id, approver, reason); err != nil {
			return fmt.Errorf("reject delivery %d: %w", id, err)
		}
		d, err = loadDelivery(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("over-delivery rejected", zap.Int("delivery_id", id), zap.String("by", approver))
	return d, nil
}

// postDeliveryTx receives every line into stock, captures the period price and
// raises a PRICE_VARIANCE NCR where the invoiced price differs from it.
func (s *deliveryService) postDeliveryTx(ctx context.Context, tx pgx.Tx, d *Delivery, approver *string) (*DeliveryPostResult, error) {
	res := &DeliveryPostResult{}
	itemIDs := make([]int, len(d.Lines))
	for i, line := range d.Lines {
		itemIDs[i] = line.ItemID
	}
	if err := lockReceiptRowsTx(ctx, tx, d.LocationID, itemIDs); err != nil {
		return nil, err
	}
	for _, line := range d.Lines {
		if _, err := s.inv.ReceiveStockTx(ctx, tx, StockMovement{
			PeriodID:      d.PeriodID,
			LocationID:    d.LocationID,
			ItemID:        line.ItemID,
			Type:          MovementReceipt,
			Quantity:      line.Quantity,
			UnitCost:      line.UnitPrice,
			ReferenceType: "delivery",
			ReferenceID:   d.ID,
		}); err != nil {
			return nil, fmt.Errorf("receive line %d of delivery %d: %w", line.ID, d.ID, err)
		}

		price, err := periodPrice(ctx, tx, d.PeriodID, line.ItemID)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `UPDATE delivery_lines SET period_price = $2 WHERE id = $1`, line.ID, price); err != nil {
			return nil, fmt.Errorf("capture period price on line %d: %w", line.ID, err)
		}
		if price != nil && !line.UnitPrice.Equal(*price) {
			ncr, err := createPriceVarianceNCRTx(ctx, tx, d, line, *price)
			if err != nil {
				return nil, err
			}
			res.PriceVariances = append(res.PriceVariances, *ncr)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE deliveries SET status = 'POSTED', posted_at = NOW(), approved_by = COALESCE($2, approved_by)
		WHERE id = $1
	`, d.ID, approver); err != nil {
		return nil, fmt.Errorf("mark delivery %d posted: %w", d.ID, err)
	}

	posted, err := loadDelivery(ctx, tx, d.ID, false)
	if err != nil {
		return nil, err
	}
	res.Delivery = posted
	return res, nil
}

func (s *deliveryService) logPosting(res *DeliveryPostResult) {
	if res.RequiresApproval {
		s.log.Info("over-delivery flagged at posting", zap.Int("delivery_id", res.Delivery.ID))
		return
	}
	s.log.Info("delivery posted", zap.Int("delivery_id", res.Delivery.ID), zap.Int("lines", len(res.Delivery.Lines)))
	for _, n := range res.PriceVariances {
		s.log.Info("price variance NCR generated",
			zap.Int("ncr_id", n.ID),
			zap.Int("delivery_id", res.Delivery.ID),
			zap.String("value", n.Value.StringFixed(MoneyPlaces)),
		)
	}
}

func (s *deliveryService) GetDelivery(ctx context.Context, id int) (*Delivery, error) {
	return loadDelivery(ctx, s.pool, id, false)
}

func (s *deliveryService) ListDeliveries(ctx context.Context, periodID int) ([]Delivery, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE period_id = $1 ORDER BY id`, periodID)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

const deliveryColumns = `id, period_id, location_id, supplier_id, purchase_order_id, invoice_number, delivery_date,
	status, created_by, approved_by, rejection_reason, posted_at, created_at`

func scanDelivery(row pgx.Row) (*Delivery, error) {
	var d Delivery
	if err := row.Scan(&d.ID, &d.PeriodID, &d.LocationID, &d.SupplierID, &d.PurchaseOrderID, &d.InvoiceNumber,
		&d.DeliveryDate, &d.Status, &d.CreatedBy, &d.ApprovedBy, &d.RejectionReason, &d.PostedAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// loadDelivery fetches a delivery with its lines, locking the header when forUpdate.
func loadDelivery(ctx context.Context, q querier, id int, forUpdate bool) (*Delivery, error) {
	sql := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	d, err := scanDelivery(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("delivery", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch delivery %d: %w", id, err)
	}

	rows, err := q.Query(ctx, `
		SELECT dl.id, dl.delivery_id, dl.item_id, i.code, i.name, dl.po_line_id,
		       dl.quantity, dl.unit_price, dl.period_price, dl.line_value
		FROM delivery_lines dl
		JOIN items i ON i.id = dl.item_id
		WHERE dl.delivery_id = $1
		ORDER BY dl.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query delivery lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l DeliveryLine
		if err := rows.Scan(&l.ID, &l.DeliveryID, &l.ItemID, &l.ItemCode, &l.ItemName, &l.POLineID,
			&l.Quantity, &l.UnitPrice, &l.PeriodPrice, &l.LineValue); err != nil {
			return nil, fmt.Errorf("scan delivery line: %w", err)
		}
		d.Lines = append(d.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery lines: %w", err)
	}
	return d, nil
}

