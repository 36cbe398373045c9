package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IssueService consumes stock from a location at current WAC.
type IssueService interface {
	CreateIssue(ctx context.Context, in IssueInput) (*Issue, error)
	// PostIssue validates every line against on-hand under row locks, then
	// decrements stock. Any short line fails the whole issue.
	PostIssue(ctx context.Context, id int) (*Issue, error)
	GetIssue(ctx context.Context, id int) (*Issue, error)
}

type issueService struct {
	pool *pgxpool.Pool
	inv  InventoryService
	log  *zap.Logger
}

// NewIssueService constructs an IssueService. log may be nil.
func NewIssueService(pool *pgxpool.Pool, inv InventoryService, log *zap.Logger) IssueService {
	if log == nil {
		log = zap.NewNop()
	}
	return &issueService{pool: pool, inv: inv, log: log}
}

func (s *issueService) CreateIssue(ctx context.Context, in IssueInput) (*Issue, error) {
	if in.PeriodID <= 0 {
		return nil, &ValidationError{Field: "periodId", Reason: "is required"}
	}
	if in.LocationID <= 0 {
		return nil, &ValidationError{Field: "locationId", Reason: "is required"}
	}
	if !in.CostCentre.Valid() {
		return nil, &ValidationError{Field: "costCentre", Reason: "must be FOOD, CLEAN or OTHER"}
	}
	if in.IssueDate.IsZero() {
		return nil, &ValidationError{Field: "issueDate", Reason: "is required"}
	}
	if err := validateRequests(in.Lines); err != nil {
		return nil, err
	}

	var issue *Issue
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := lockPostablePeriodTx(ctx, tx, in.PeriodID)
		if err != nil {
			return err
		}
		if err := requireDateInPeriod("issueDate", p, in.IssueDate); err != nil {
			return err
		}
		if _, err := loadItemRefs(ctx, tx, requestItemIDs(in.Lines)); err != nil {
			return err
		}

		var id int
		if err := tx.QueryRow(ctx, `
			INSERT INTO issues (period_id, location_id, cost_centre, issue_date, status, created_by)
			VALUES ($1, $2, $3, $4, 'DRAFT', $5)
			RETURNING id
		`, in.PeriodID, in.LocationID, in.CostCentre, in.IssueDate, in.CreatedBy).Scan(&id); err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
		for i, l := range in.Lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO issue_lines (issue_id, item_id, quantity) VALUES ($1, $2, $3)
			`, id, l.ItemID, l.Quantity); err != nil {
				return fmt.Errorf("insert issue line %d: %w", i+1, err)
			}
		}
		issue, err = loadIssue(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *issueService) PostIssue(ctx context.Context, id int) (*Issue, error) {
	var issue *Issue
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := loadIssue(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := CheckIssueTransition(id, cur.Status, IssuePosted); err != nil {
			return err
		}
		if _, err := lockPostablePeriodTx(ctx, tx, cur.PeriodID); err != nil {
			return err
		}

		reqs := make([]StockRequest, len(cur.Lines))
		for i, l := range cur.Lines {
			reqs[i] = StockRequest{ItemID: l.ItemID, Quantity: l.Quantity}
		}
		stock, err := ValidateSufficientStockTx(ctx, tx, cur.LocationID, reqs)
		if err != nil {
			return err
		}

		for _, l := range cur.Lines {
			wac := stock[l.ItemID].WAC
			if err := s.inv.ConsumeStockTx(ctx, tx, StockMovement{
				PeriodID:      cur.PeriodID,
				LocationID:    cur.LocationID,
				ItemID:        l.ItemID,
				Type:          MovementIssue,
				Quantity:      l.Quantity,
				UnitCost:      wac,
				ReferenceType: "issue",
				ReferenceID:   id,
			}); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				UPDATE issue_lines SET unit_cost = $2, line_value = $3 WHERE id = $1
			`, l.ID, wac, lineValue(l.Quantity, wac)); err != nil {
				return fmt.Errorf("capture cost on issue line %d: %w", l.ID, err)
			}
		}

		if _, err := tx.Exec(ctx, `UPDATE issues SET status = 'POSTED', posted_at = NOW() WHERE id = $1`, id); err != nil {
			return fmt.Errorf("mark issue %d posted: %w", id, err)
		}
		issue, err = loadIssue(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("issue posted",
		zap.Int("issue_id", id),
		zap.Int("location_id", issue.LocationID),
		zap.String("value", issue.TotalValue().StringFixed(MoneyPlaces)),
	)
	return issue, nil
}

func (s *issueService) GetIssue(ctx context.Context, id int) (*Issue, error) {
	return loadIssue(ctx, s.pool, id, false)
}

// TotalValue sums the captured line values; unposted lines count as zero.
func (i *Issue) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, l := range i.Lines {
		if l.LineValue != nil {
			total = total.Add(*l.LineValue)
		}
	}
	return RoundMoney(total)
}

func loadIssue(ctx context.Context, q querier, id int, forUpdate bool) (*Issue, error) {
	sql := `SELECT id, period_id, location_id, cost_centre, issue_date, status, created_by, posted_at, created_at
		FROM issues WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var is Issue
	err := q.QueryRow(ctx, sql, id).Scan(&is.ID, &is.PeriodID, &is.LocationID, &is.CostCentre, &is.IssueDate,
		&is.Status, &is.CreatedBy, &is.PostedAt, &is.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("issue", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch issue %d: %w", id, err)
	}

	rows, err := q.Query(ctx, `
		SELECT il.id, il.issue_id, il.item_id, i.code, il.quantity, il.unit_cost, il.line_value
		FROM issue_lines il
		JOIN items i ON i.id = il.item_id
		WHERE il.issue_id = $1
		ORDER BY il.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query issue lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l IssueLine
		if err := rows.Scan(&l.ID, &l.IssueID, &l.ItemID, &l.ItemCode, &l.Quantity, &l.UnitCost, &l.LineValue); err != nil {
			return nil, fmt.Errorf("scan issue line: %w", err)
		}
		is.Lines = append(is.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issue lines: %w", err)
	}
	return &is, nil
}
