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
	"go.uber.org/zap"
)

// PeriodService drives the period lifecycle DRAFT → OPEN → PENDING_CLOSE → CLOSED
// and owns the data attached to a period (prices, mandays, adjustments).
type PeriodService interface {
	CreatePeriod(ctx context.Context, name string, start, end time.Time) (*Period, error)
	GetPeriod(ctx context.Context, id int) (*Period, error)
	ListPeriods(ctx context.Context) ([]Period, error)
	// GetCurrentPeriod returns the OPEN period, or ErrNotFound.
	GetCurrentPeriod(ctx context.Context) (*Period, error)

	// SetPeriodPrice is allowed only while the period is DRAFT.
	SetPeriodPrice(ctx context.Context, periodID, itemID int, price decimal.Decimal) error
	// CopyPrices copies every price of from into the DRAFT period to. Existing
	// prices in to are overwritten. Returns the number of prices copied.
	CopyPrices(ctx context.Context, fromPeriodID, toPeriodID int) (int, error)
	ListPeriodPrices(ctx context.Context, periodID int) ([]PeriodPrice, error)

	// OpenPeriod moves DRAFT → OPEN and locks the period's prices. Fails with
	// PeriodConflictError while another period is OPEN or PENDING_CLOSE.
	OpenPeriod(ctx context.Context, id int) (*Period, error)
	CheckCloseReadiness(ctx context.Context, id int) (*CloseReadiness, error)
	// RequestClose moves OPEN → PENDING_CLOSE. When documents block the close
	// the readiness report is returned together with a PeriodConflictError.
	RequestClose(ctx context.Context, id int) (*CloseReadiness, error)
	// ExecuteClose moves PENDING_CLOSE → CLOSED, snapshotting every location in
	// one transaction. CLOSED is irreversible.
	ExecuteClose(ctx context.Context, id int, actor string) (*CloseResult, error)

	RecordMandays(ctx context.Context, e MandayEntry) error
	ListMandays(ctx context.Context, periodID, locationID int) ([]MandayEntry, error)
	SaveAdjustments(ctx context.Context, a Adjustments) error
	GetAdjustments(ctx context.Context, periodID, locationID int) (*Adjustments, error)
}

type periodService struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewPeriodService constructs a PeriodService backed by PostgreSQL. log may be nil.
func NewPeriodService(pool *pgxpool.Pool, log *zap.Logger) PeriodService {
	if log == nil {
		log = zap.NewNop()
	}
	return &periodService{pool: pool, log: log}
}

const periodColumns = `id, name, start_date, end_date, status, opened_at, close_requested_at, closed_at, closed_by, created_at`

func scanPeriod(row pgx.Row) (*Period, error) {
	var p Period
	if err := row.Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.Status,
		&p.OpenedAt, &p.CloseRequestedAt, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func getPeriod(ctx context.Context, q querier, id int) (*Period, error) {
	p, err := scanPeriod(q.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("period", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch period %d: %w", id, err)
	}
	return p, nil
}

// lockPeriodTx takes an exclusive lock on the period row for a lifecycle step.
func lockPeriodTx(ctx context.Context, tx pgx.Tx, id int) (*Period, error) {
	p, err := scanPeriod(tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("period", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock period %d: %w", id, err)
	}
	return p, nil
}

// lockPostablePeriodTx takes a shared lock on the period row and fails unless it
// is OPEN. Concurrent postings proceed together; a lifecycle step waits for them.
func lockPostablePeriodTx(ctx context.Context, tx pgx.Tx, id int) (*Period, error) {
	p, err := scanPeriod(tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = $1 FOR SHARE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("period", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock period %d: %w", id, err)
	}
	if !p.Status.acceptsPostings() {
		return nil, &PeriodConflictError{PeriodID: id, Reason: fmt.Sprintf("period is %s; transactions require an OPEN period", p.Status)}
	}
	return p, nil
}

// requireDateInPeriod fails with a ValidationError when t lies outside p.
func requireDateInPeriod(field string, p *Period, t time.Time) error {
	if !p.Contains(t) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must fall inside period %s (%s to %s)",
			p.Name, p.StartDate.Format(time.DateOnly), p.EndDate.Format(time.DateOnly))}
	}
	return nil
}

func (s *periodService) CreatePeriod(ctx context.Context, name string, start, end time.Time) (*Period, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "is required"}
	}
	if start.IsZero() || end.IsZero() {
		return nil, &ValidationError{Field: "startDate", Reason: "start and end dates are required"}
	}
	if end.Before(start) {
		return nil, &ValidationError{Field: "endDate", Reason: "must not precede startDate"}
	}

	var p *Period
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Serialize period creation so the overlap check cannot race.
		if _, err := tx.Exec(ctx, `LOCK TABLE periods IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock periods: %w", err)
		}
		var overlapID int
		err := tx.QueryRow(ctx, `
			SELECT id FROM periods WHERE start_date <= $2 AND end_date >= $1
			ORDER BY id LIMIT 1
		`, start, end).Scan(&overlapID)
		if err == nil {
			return &PeriodConflictError{PeriodID: overlapID, Reason: "new period overlaps an existing period"}
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check period overlap: %w", err)
		}

		p, err = scanPeriod(tx.QueryRow(ctx, `
			INSERT INTO periods (name, start_date, end_date, status)
			VALUES ($1, $2, $3, 'DRAFT')
			RETURNING `+periodColumns, name, start, end))
		if err != nil {
			if isUniqueViolation(err, "") {
				return &ValidationError{Field: "name", Reason: fmt.Sprintf("period %s already exists", name)}
			}
			return fmt.Errorf("insert period: %w", err)
		}

		// Opening balances come from the latest CLOSED period's closing snapshot.
		if _, err := tx.Exec(ctx, `
			WITH prev AS (
				SELECT id FROM periods
				WHERE status = 'CLOSED' AND end_date < $2
				ORDER BY end_date DESC LIMIT 1
			)
			INSERT INTO period_opening_balances (period_id, location_id, opening_value, source_period_id)
			SELECT $1, l.id, COALESCE(r.closing_stock, 0), (SELECT id FROM prev)
			FROM locations l
			LEFT JOIN reconciliations r ON r.location_id = l.id AND r.period_id = (SELECT id FROM prev)
			WHERE l.is_active = true
		`, p.ID, start); err != nil {
			return fmt.Errorf("seed opening balances for period %d: %w", p.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("period created", zap.Int("period_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

func (s *periodService) GetPeriod(ctx context.Context, id int) (*Period, error) {
	return getPeriod(ctx, s.pool, id)
}

func (s *periodService) ListPeriods(ctx context.Context) ([]Period, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+periodColumns+` FROM periods ORDER BY start_date`)
	if err != nil {
		return nil, fmt.Errorf("query periods: %w", err)
	}
	defer rows.Close()

	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		periods = append(periods, *p)
	}
	return periods, rows.Err()
}

func (s *periodService) GetCurrentPeriod(ctx context.Context) (*Period, error) {
	p, err := scanPeriod(s.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE status = 'OPEN'`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("open period: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch open period: %w", err)
	}
	return p, nil
}

// ── Prices ────────────────────────────────────────────────────────────────────

func requirePricesEditable(p *Period) error {
	if p.Status != PeriodDraft {
		return &PeriodConflictError{PeriodID: p.ID, Reason: fmt.Sprintf("period prices are locked (status %s)", p.Status)}
	}
	return nil
}

func (s *periodService) SetPeriodPrice(ctx context.Context, periodID, itemID int, price decimal.Decimal) error {
	if err := requireNonNegative("price", price); err != nil {
		return err
	}
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := lockPeriodTx(ctx, tx, periodID)
		if err != nil {
			return err
		}
		if err := requirePricesEditable(p); err != nil {
			return err
		}
		if _, err := loadItemRefs(ctx, tx, []int{itemID}); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO period_prices (period_id, item_id, price)
			VALUES ($1, $2, $3)
			ON CONFLICT (period_id, item_id) DO UPDATE SET price = EXCLUDED.price, updated_at = NOW()
		`, periodID, itemID, RoundCost(price)); err != nil {
			return fmt.Errorf("upsert price for period %d item %d: %w", periodID, itemID, err)
		}
		return nil
	})
}

func (s *periodService) CopyPrices(ctx context.Context, fromPeriodID, toPeriodID int) (int, error) {
	if fromPeriodID == toPeriodID {
		return 0, &ValidationError{Field: "fromPeriodId", Reason: "must differ from the target period"}
	}
	var copied int
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := getPeriod(ctx, tx, fromPeriodID); err != nil {
			return err
		}
		to, err := lockPeriodTx(ctx, tx, toPeriodID)
		if err != nil {
			return err
		}
		if err := requirePricesEditable(to); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO period_prices (period_id, item_id, price)
			SELECT $2, item_id, price FROM period_prices WHERE period_id = $1
			ON CONFLICT (period_id, item_id) DO UPDATE SET price = EXCLUDED.price, updated_at = NOW()
		`, fromPeriodID, toPeriodID)
		if err != nil {
			return fmt.Errorf("copy prices %d -> %d: %w", fromPeriodID, toPeriodID, err)
		}
		copied = int(tag.RowsAffected())
		return nil
	})
	return copied, err
}

func (s *periodService) ListPeriodPrices(ctx context.Context, periodID int) ([]PeriodPrice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pp.period_id, pp.item_id, i.code, pp.price
		FROM period_prices pp
		JOIN items i ON i.id = pp.item_id
		WHERE pp.period_id = $1
		ORDER BY i.code
	`, periodID)
	if err != nil {
		return nil, fmt.Errorf("query prices for period %d: %w", periodID, err)
	}
	defer rows.Close()

	var prices []PeriodPrice
	for rows.Next() {
		var pp PeriodPrice
		if err := rows.Scan(&pp.PeriodID, &pp.ItemID, &pp.ItemCode, &pp.Price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		prices = append(prices, pp)
	}
	return prices, rows.Err()
}

// periodPrice returns the locked price of an item, or nil when none was set.
func periodPrice(ctx context.Context, q querier, periodID, itemID int) (*decimal.Decimal, error) {
	var price decimal.Decimal
	err := q.QueryRow(ctx, `SELECT price FROM period_prices WHERE period_id = $1 AND item_id = $2`,
		periodID, itemID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch period price for item %d: %w", itemID, err)
	}
	return &price, nil
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func (s *periodService) OpenPeriod(ctx context.Context, id int) (*Period, error) {
	var p *Period
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := lockPeriodTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := CheckPeriodTransition(id, cur.Status, PeriodOpen); err != nil {
			return err
		}

		// A PENDING_CLOSE period has not snapshotted the ledger yet; postings
		// into a newer period would land in its closing stock.
		var liveID int
		var liveStatus PeriodStatus
		err = tx.QueryRow(ctx, `
			SELECT id, status FROM periods
			WHERE status IN ('OPEN', 'PENDING_CLOSE')
			ORDER BY id LIMIT 1
			FOR UPDATE`).Scan(&liveID, &liveStatus)
		if err == nil {
			return &PeriodConflictError{PeriodID: id, Reason: fmt.Sprintf("period %d is %s", liveID, liveStatus)}
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check open period: %w", err)
		}

		p, err = scanPeriod(tx.QueryRow(ctx, `
			UPDATE periods SET status = 'OPEN', opened_at = NOW()
			WHERE id = $1
			RETURNING `+periodColumns, id))
		if err != nil {
			// Two openers that both passed the check above meet the partial unique index.
			if isUniqueViolation(err, "periods_single_live") {
				return &PeriodConflictError{PeriodID: id, Reason: "another period is OPEN or PENDING_CLOSE"}
			}
			return fmt.Errorf("open period %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("period opened", zap.Int("period_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

func (s *periodService) RequestClose(ctx context.Context, id int) (*CloseReadiness, error) {
	var readiness *CloseReadiness
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := lockPeriodTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := CheckPeriodTransition(id, cur.Status, PeriodPendingClose); err != nil {
			return err
		}
		readiness, err = loadCloseReadiness(ctx, tx, id)
		if err != nil {
			return err
		}
		if !readiness.Ready {
			return &PeriodConflictError{PeriodID: id, Reason: fmt.Sprintf("%d document(s) must be posted or resolved before close", len(readiness.Blockers))}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE periods SET status = 'PENDING_CLOSE', close_requested_at = NOW() WHERE id = $1
		`, id); err != nil {
			return fmt.Errorf("request close of period %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return readiness, err
	}
	s.log.Info("period close requested", zap.Int("period_id", id), zap.Int("warnings", len(readiness.Warnings)))
	return readiness, nil
}

// ── Mandays & adjustments ─────────────────────────────────────────────────────

func (s *periodService) RecordMandays(ctx context.Context, e MandayEntry) error {
	if e.CrewCount < 0 {
		return &ValidationError{Field: "crewCount", Reason: "must be non-negative"}
	}
	if e.ExtraCount < 0 {
		return &ValidationError{Field: "extraCount", Reason: "must be non-negative"}
	}
	if e.LocationID <= 0 {
		return &ValidationError{Field: "locationId", Reason: "is required"}
	}
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := lockPeriodTx(ctx, tx, e.PeriodID)
		if err != nil {
			return err
		}
		if p.Status == PeriodClosed {
			return &PeriodConflictError{PeriodID: p.ID, Reason: "period is CLOSED"}
		}
		if err := requireDateInPeriod("date", p, e.Date); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO period_mandays (period_id, location_id, entry_date, crew_count, extra_count)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (period_id, location_id, entry_date)
			DO UPDATE SET crew_count = EXCLUDED.crew_count, extra_count = EXCLUDED.extra_count
		`, e.PeriodID, e.LocationID, e.Date, e.CrewCount, e.ExtraCount); err != nil {
			return fmt.Errorf("record mandays: %w", err)
		}
		return nil
	})
}

func (s *periodService) ListMandays(ctx context.Context, periodID, locationID int) ([]MandayEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT period_id, location_id, entry_date, crew_count, extra_count
		FROM period_mandays
		WHERE period_id = $1 AND location_id = $2
		ORDER BY entry_date
	`, periodID, locationID)
	if err != nil {
		return nil, fmt.Errorf("query mandays: %w", err)
	}
	defer rows.Close()

	var entries []MandayEntry
	for rows.Next() {
		var e MandayEntry
		if err := rows.Scan(&e.PeriodID, &e.LocationID, &e.Date, &e.CrewCount, &e.ExtraCount); err != nil {
			return nil, fmt.Errorf("scan mandays: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *periodService) SaveAdjustments(ctx context.Context, a Adjustments) error {
	if a.LocationID <= 0 {
		return &ValidationError{Field: "locationId", Reason: "is required"}
	}
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := lockPeriodTx(ctx, tx, a.PeriodID)
		if err != nil {
			return err
		}
		if p.Status != PeriodOpen && p.Status != PeriodPendingClose {
			return &PeriodConflictError{PeriodID: p.ID, Reason: fmt.Sprintf("adjustments require an OPEN or PENDING_CLOSE period, got %s", p.Status)}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reconciliation_adjustments (period_id, location_id, back_charges, credits, condemnations, general)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (period_id, location_id) DO UPDATE SET
				back_charges = EXCLUDED.back_charges,
				credits = EXCLUDED.credits,
				condemnations = EXCLUDED.condemnations,
				general = EXCLUDED.general,
				updated_at = NOW()
		`, a.PeriodID, a.LocationID, RoundMoney(a.BackCharges), RoundMoney(a.Credits),
			RoundMoney(a.Condemnations), RoundMoney(a.General)); err != nil {
			return fmt.Errorf("save adjustments: %w", err)
		}
		return nil
	})
}

func (s *periodService) GetAdjustments(ctx context.Context, periodID, locationID int) (*Adjustments, error) {
	return loadAdjustments(ctx, s.pool, periodID, locationID)
}

// loadAdjustments returns zero adjustments when none were entered.
func loadAdjustments(ctx context.Context, q querier, periodID, locationID int) (*Adjustments, error) {
	a := Adjustments{PeriodID: periodID, LocationID: locationID}
	err := q.QueryRow(ctx, `
		SELECT back_charges, credits, condemnations, general
		FROM reconciliation_adjustments
		WHERE period_id = $1 AND location_id = $2
	`, periodID, locationID).Scan(&a.BackCharges, &a.Credits, &a.Condemnations, &a.General)
	if errors.Is(err, pgx.ErrNoRows) {
		return &a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch adjustments: %w", err)
	}
	return &a, nil
}
