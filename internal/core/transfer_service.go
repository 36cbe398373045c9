package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferService moves stock between locations through an approval step.
type TransferService interface {
	CreateTransfer(ctx context.Context, in TransferInput) (*Transfer, error)
	SubmitTransfer(ctx context.Context, id int) (*Transfer, error)
	// ApproveTransfer re-validates source stock and moves every line in one
	// transaction: both ledgers change or neither does.
	ApproveTransfer(ctx context.Context, id int, approver string) (*Transfer, error)
	RejectTransfer(ctx context.Context, id int, approver, reason string) (*Transfer, error)
	GetTransfer(ctx context.Context, id int) (*Transfer, error)
}

type transferService struct {
	pool *pgxpool.Pool
	inv  InventoryService
	log  *zap.Logger
}

// NewTransferService constructs a TransferService. log may be nil.
func NewTransferService(pool *pgxpool.Pool, inv InventoryService, log *zap.Logger) TransferService {
	if log == nil {
		log = zap.NewNop()
	}
	return &transferService{pool: pool, inv: inv, log: log}
}

func (s *transferService) CreateTransfer(ctx context.Context, in TransferInput) (*Transfer, error) {
	if in.PeriodID <= 0 {
		return nil, &ValidationError{Field: "periodId", Reason: "is required"}
	}
	if in.SourceLocationID <= 0 {
		return nil, &ValidationError{Field: "sourceLocationId", Reason: "is required"}
	}
	if in.DestinationLocationID <= 0 {
		return nil, &ValidationError{Field: "destinationLocationId", Reason: "is required"}
	}
	if in.SourceLocationID == in.DestinationLocationID {
		return nil, &ValidationError{Field: "destinationLocationId", Reason: "must differ from sourceLocationId"}
	}
	if err := validateRequests(in.Lines); err != nil {
		return nil, err
	}

	var t *Transfer
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := lockPostablePeriodTx(ctx, tx, in.PeriodID); err != nil {
			return err
		}
		if _, err := loadItemRefs(ctx, tx, requestItemIDs(in.Lines)); err != nil {
			return err
		}

		var id int
		if err := tx.QueryRow(ctx, `
			INSERT INTO transfers (period_id, source_location_id, destination_location_id, status, created_by)
			VALUES ($1, $2, $3, 'DRAFT', $4)
			RETURNING id
		`, in.PeriodID, in.SourceLocationID, in.DestinationLocationID, in.CreatedBy).Scan(&id); err != nil {
			return fmt.Errorf("insert transfer: %w", err)
		}
		for i, l := range in.Lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO transfer_lines (transfer_id, item_id, quantity) VALUES ($1, $2, $3)
			`, id, l.ItemID, l.Quantity); err != nil {
				return fmt.Errorf("insert transfer line %d: %w", i+1, err)
			}
		}
		var err error
		t, err = loadTransfer(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *transferService) SubmitTransfer(ctx context.Context, id int) (*Transfer, error) {
	var t *Transfer
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := loadTransfer(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := CheckTransferTransition(id, cur.Status, TransferPendingApproval); err != nil {
			return err
		}
		if _, err := lockPostablePeriodTx(ctx, tx, cur.PeriodID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE transfers SET status = 'PENDING_APPROVAL' WHERE id = $1`, id); err != nil {
			return fmt.Errorf("submit transfer %d: %w", id, err)
		}
		t, err = loadTransfer(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *transferService) ApproveTransfer(ctx context.Context, id int, approver string) (*Transfer, error) {
	var t *Transfer
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := loadTransfer(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := CheckTransferTransition(id, cur.Status, TransferApproved); err != nil {
			return err
		}
		if _, err := lockPostablePeriodTx(ctx, tx, cur.PeriodID); err != nil {
			return err
		}

		reqs := make([]StockRequest, len(cur.Lines))
		for i, l := range cur.Lines {
			reqs[i] = StockRequest{ItemID: l.ItemID, Quantity: l.Quantity}
		}
		// Source rows first, then destination rows, each in item order.
		stock, err := ValidateSufficientStockTx(ctx, tx, cur.SourceLocationID, reqs)
		if err != nil {
			return err
		}
		if err := lockReceiptRowsTx(ctx, tx, cur.DestinationLocationID, requestItemIDs(reqs)); err != nil {
			return err
		}

		for _, l := range cur.Lines {
			wac := stock[l.ItemID].WAC
			if err := s.inv.ConsumeStockTx(ctx, tx, StockMovement{
				PeriodID:      cur.PeriodID,
				LocationID:    cur.SourceLocationID,
				ItemID:        l.ItemID,
				Type:          MovementTransferOut,
				Quantity:      l.Quantity,
				UnitCost:      wac,
				ReferenceType: "transfer",
				ReferenceID:   id,
			}); err != nil {
				return err
			}
			if _, err := s.inv.ReceiveStockTx(ctx, tx, StockMovement{
				PeriodID:      cur.PeriodID,
				LocationID:    cur.DestinationLocationID,
				ItemID:        l.ItemID,
				Type:          MovementTransferIn,
				Quantity:      l.Quantity,
				UnitCost:      wac,
				ReferenceType: "transfer",
				ReferenceID:   id,
			}); err != nil {
				return fmt.Errorf("receive transfer %d line %d at destination: %w", id, l.ID, err)
			}
			if _, err := tx.Exec(ctx, `
				UPDATE transfer_lines SET unit_cost = $2, line_value = $3 WHERE id = $1
			`, l.ID, wac, lineValue(l.Quantity, wac)); err != nil {
				return fmt.Errorf("capture cost on transfer line %d: %w", l.ID, err)
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE transfers SET status = 'APPROVED', decided_by = $2, decided_at = NOW() WHERE id = $1
		`, id, approver); err != nil {
			return fmt.Errorf("approve transfer %d: %w", id, err)
		}
		t, err = loadTransfer(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("transfer approved",
		zap.Int("transfer_id", id),
		zap.Int("source_location_id", t.SourceLocationID),
		zap.Int("destination_location_id", t.DestinationLocationID),
		zap.String("value", t.TotalValue().StringFixed(MoneyPlaces)),
	)
	return t, nil
}

func (s *transferService) RejectTransfer(ctx context.Context, id int, approver, reason string) (*Transfer, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Reason: "is required"}
	}
	var t *Transfer
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := loadTransfer(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := CheckTransferTransition(id, cur.Status, TransferRejected); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE transfers SET status = 'REJECTED', decided_by = $2, rejection_reason = $3, decided_at = NOW()
			WHERE id = $1
		`, id, approver, reason); err != nil {
			return fmt.Errorf("reject transfer %d: %w", id, err)
		}
		t, err = loadTransfer(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("transfer rejected", zap.Int("transfer_id", id), zap.String("by", approver))
	return t, nil
}

func (s *transferService) GetTransfer(ctx context.Context, id int) (*Transfer, error) {
	return loadTransfer(ctx, s.pool, id, false)
}

// TotalValue sums the captured line values; unapproved lines count as zero.
func (t *Transfer) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, l := range t.Lines {
		if l.LineValue != nil {
			total = total.Add(*l.LineValue)
		}
	}
	return RoundMoney(total)
}

func loadTransfer(ctx context.Context, q querier, id int, forUpdate bool) (*Transfer, error) {
	sql := `SELECT id, period_id, source_location_id, destination_location_id, status, created_by,
		decided_by, rejection_reason, decided_at, created_at
		FROM transfers WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var t Transfer
	err := q.QueryRow(ctx, sql, id).Scan(&t.ID, &t.PeriodID, &t.SourceLocationID, &t.DestinationLocationID,
		&t.Status, &t.CreatedBy, &t.DecidedBy, &t.RejectionReason, &t.DecidedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("transfer", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch transfer %d: %w", id, err)
	}

	rows, err := q.Query(ctx, `
		SELECT tl.id, tl.transfer_id, tl.item_id, i.code, tl.quantity, tl.unit_cost, tl.line_value
		FROM transfer_lines tl
		JOIN items i ON i.id = tl.item_id
		WHERE tl.transfer_id = $1
		ORDER BY tl.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query transfer lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l TransferLine
		if err := rows.Scan(&l.ID, &l.TransferID, &l.ItemID, &l.ItemCode, &l.Quantity, &l.UnitCost, &l.LineValue); err != nil {
			return nil, fmt.Errorf("scan transfer line: %w", err)
		}
		t.Lines = append(t.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer lines: %w", err)
	}
	return &t, nil
}
