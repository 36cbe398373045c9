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

// InventoryService owns the per-location stock ledger and the item/location master data.
type InventoryService interface {
	// Standalone operations (manage their own transactions).
	CreateItem(ctx context.Context, in ItemInput) (*Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	CreateLocation(ctx context.Context, code, name string, typ LocationType) (*Location, error)
	ListLocations(ctx context.Context) ([]Location, error)
	CreateSupplier(ctx context.Context, code, name, email string) (*Supplier, error)
	GetStock(ctx context.Context, locationID, itemID int) (*LocationStock, error)
	GetStockLevels(ctx context.Context, locationID int) ([]StockLevel, error)
	// ValidateSufficientStock is a read-only pre-check for entry screens. Postings
	// re-run the check under row locks via ValidateSufficientStockTx.
	ValidateSufficientStock(ctx context.Context, locationID int, reqs []StockRequest) ([]StockValidationResult, error)

	// TX-scoped operations: work within a caller-provided transaction.

	// ReceiveStockTx adds qty at unitPrice and recalculates WAC.
	ReceiveStockTx(ctx context.Context, tx pgx.Tx, mv StockMovement) (WACResult, error)
	// ConsumeStockTx decrements on-hand for lines already validated by
	// ValidateSufficientStockTx in the same transaction.
	ConsumeStockTx(ctx context.Context, tx pgx.Tx, mv StockMovement) error
}

// StockMovement is one ledger posting. UnitCost is the receipt price for
// inbound movements and the WAC at the time of posting for outbound ones.
type StockMovement struct {
	PeriodID      int
	LocationID    int
	ItemID        int
	Type          MovementType
	Quantity      decimal.Decimal
	UnitCost      decimal.Decimal
	ReferenceType string
	ReferenceID   int
}

type inventoryService struct {
	pool *pgxpool.Pool
}

// NewInventoryService constructs an InventoryService backed by PostgreSQL.
func NewInventoryService(pool *pgxpool.Pool) InventoryService {
	return &inventoryService{pool: pool}
}

// ── Master data ───────────────────────────────────────────────────────────────

func (s *inventoryService) CreateItem(ctx context.Context, in ItemInput) (*Item, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, &ValidationError{Field: "code", Reason: "is required"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "is required"}
	}
	if !in.Unit.Valid() {
		return nil, &ValidationError{Field: "unit", Reason: fmt.Sprintf("unknown unit %q", in.Unit)}
	}
	if in.MinStock != nil && in.MaxStock != nil && in.MinStock.GreaterThan(*in.MaxStock) {
		return nil, &ValidationError{Field: "minStock", Reason: "must not exceed maxStock"}
	}

	it := Item{Code: in.Code, Name: in.Name, Unit: in.Unit, Category: in.Category, MinStock: in.MinStock, MaxStock: in.MaxStock, IsActive: true}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO items (code, name, unit, category, min_stock, max_stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, in.Code, in.Name, in.Unit, in.Category, in.MinStock, in.MaxStock).Scan(&it.ID, &it.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, &ValidationError{Field: "code", Reason: fmt.Sprintf("item %s already exists", in.Code)}
		}
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return &it, nil
}

func (s *inventoryService) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, unit, category, min_stock, max_stock, is_active, created_at
		FROM items
		WHERE is_active = true
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Code, &it.Name, &it.Unit, &it.Category, &it.MinStock, &it.MaxStock, &it.IsActive, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *inventoryService) CreateLocation(ctx context.Context, code, name string, typ LocationType) (*Location, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &ValidationError{Field: "code", Reason: "is required"}
	}
	if !typ.Valid() {
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown location type %q", typ)}
	}
	loc := Location{Code: code, Name: name, Type: typ, IsActive: true}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO locations (code, name, type) VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, code, name, typ).Scan(&loc.ID, &loc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, &ValidationError{Field: "code", Reason: fmt.Sprintf("location %s already exists", code)}
		}
		return nil, fmt.Errorf("insert location: %w", err)
	}
	return &loc, nil
}

func (s *inventoryService) ListLocations(ctx context.Context) ([]Location, error) {
	return listActiveLocations(ctx, s.pool)
}

func listActiveLocations(ctx context.Context, q querier) ([]Location, error) {
	rows, err := q.Query(ctx, `
		SELECT id, code, name, type, is_active, created_at
		FROM locations
		WHERE is_active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	var locs []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.Type, &l.IsActive, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locs = append(locs, l)
	}
	return locs, rows.Err()
}

func (s *inventoryService) CreateSupplier(ctx context.Context, code, name, email string) (*Supplier, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &ValidationError{Field: "code", Reason: "is required"}
	}
	sup := Supplier{Code: code, Name: name, Email: email}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO suppliers (code, name, email) VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, code, name, email).Scan(&sup.ID, &sup.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, &ValidationError{Field: "code", Reason: fmt.Sprintf("supplier %s already exists", code)}
		}
		return nil, fmt.Errorf("insert supplier: %w", err)
	}
	return &sup, nil
}

// ── Stock reads ───────────────────────────────────────────────────────────────

func (s *inventoryService) GetStock(ctx context.Context, locationID, itemID int) (*LocationStock, error) {
	st := LocationStock{LocationID: locationID, ItemID: itemID}
	err := s.pool.QueryRow(ctx, `
		SELECT on_hand, wac, updated_at FROM location_stock
		WHERE location_id = $1 AND item_id = $2
	`, locationID, itemID).Scan(&st.OnHand, &st.WAC, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// No ledger row means nothing on hand.
		return &st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch stock for location %d item %d: %w", locationID, itemID, err)
	}
	return &st, nil
}

func (s *inventoryService) GetStockLevels(ctx context.Context, locationID int) ([]StockLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ls.location_id, i.id, i.code, i.name, i.unit, ls.on_hand, ls.wac, i.min_stock, i.max_stock
		FROM location_stock ls
		JOIN items i ON i.id = ls.item_id
		WHERE ls.location_id = $1
		ORDER BY i.code
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		var minStock, maxStock *decimal.Decimal
		if err := rows.Scan(&sl.LocationID, &sl.ItemID, &sl.ItemCode, &sl.ItemName, &sl.Unit,
			&sl.OnHand, &sl.WAC, &minStock, &maxStock); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		sl.Value = lineValue(sl.OnHand, sl.WAC)
		sl.BelowMinimum = minStock != nil && sl.OnHand.LessThan(*minStock)
		sl.AboveMaximum = maxStock != nil && sl.OnHand.GreaterThan(*maxStock)
		levels = append(levels, sl)
	}
	return levels, rows.Err()
}

func (s *inventoryService) ValidateSufficientStock(ctx context.Context, locationID int, reqs []StockRequest) ([]StockValidationResult, error) {
	if err := validateRequests(reqs); err != nil {
		return nil, err
	}
	ids := requestItemIDs(reqs)
	refs, err := loadItemRefs(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT item_id, on_hand FROM location_stock
		WHERE location_id = $1 AND item_id = ANY($2)
	`, locationID, ids)
	if err != nil {
		return nil, fmt.Errorf("query on-hand: %w", err)
	}
	defer rows.Close()

	onHand := make(map[int]decimal.Decimal, len(ids))
	for rows.Next() {
		var id int
		var qty decimal.Decimal
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, fmt.Errorf("scan on-hand: %w", err)
		}
		onHand[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate on-hand: %w", err)
	}
	return EvaluateStock(reqs, onHand, refs), nil
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

// ReceiveStockTx upserts and locks the (location, item) row, applies the WAC
// engine, writes the new quantity and cost, and appends the movement.
func (s *inventoryService) ReceiveStockTx(ctx context.Context, tx pgx.Tx, mv StockMovement) (WACResult, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO location_stock (location_id, item_id, on_hand, wac)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (location_id, item_id) DO NOTHING
	`, mv.LocationID, mv.ItemID); err != nil {
		return WACResult{}, fmt.Errorf("upsert stock row for location %d item %d: %w", mv.LocationID, mv.ItemID, err)
	}

	stock, err := lockStockTx(ctx, tx, mv.LocationID, []int{mv.ItemID})
	if err != nil {
		return WACResult{}, err
	}
	cur := stock[mv.ItemID]

	res, err := CalculateWAC(cur.OnHand, cur.WAC, mv.Quantity, mv.UnitCost)
	if err != nil {
		return WACResult{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE location_stock
		SET on_hand = $1, wac = $2, updated_at = NOW()
		WHERE location_id = $3 AND item_id = $4
	`, res.NewQuantity, res.NewWAC, mv.LocationID, mv.ItemID); err != nil {
		return WACResult{}, fmt.Errorf("update stock for location %d item %d: %w", mv.LocationID, mv.ItemID, err)
	}

	if err := insertMovementTx(ctx, tx, mv); err != nil {
		return WACResult{}, err
	}
	return res, nil
}

// ConsumeStockTx decrements on-hand. The UPDATE re-asserts on_hand >= qty so a
// caller that skipped validation still cannot drive stock negative.
func (s *inventoryService) ConsumeStockTx(ctx context.Context, tx pgx.Tx, mv StockMovement) error {
	if err := requirePositive("quantity", mv.Quantity); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE location_stock
		SET on_hand = on_hand - $1, updated_at = NOW()
		WHERE location_id = $2 AND item_id = $3 AND on_hand >= $1
	`, mv.Quantity, mv.LocationID, mv.ItemID)
	if err != nil {
		return fmt.Errorf("decrement stock for location %d item %d: %w", mv.LocationID, mv.ItemID, err)
	}
	if tag.RowsAffected() != 1 {
		return &InsufficientStockError{LocationID: mv.LocationID, Items: []StockShortfall{{
			ItemID: mv.ItemID, Requested: mv.Quantity, Available: decimal.Zero, Shortfall: mv.Quantity,
		}}}
	}
	return insertMovementTx(ctx, tx, mv)
}

func insertMovementTx(ctx context.Context, tx pgx.Tx, mv StockMovement) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (period_id, location_id, item_id, movement_type, quantity, unit_cost, total_value, reference_type, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, mv.PeriodID, mv.LocationID, mv.ItemID, mv.Type, mv.Quantity, mv.UnitCost,
		lineValue(mv.Quantity, mv.UnitCost), mv.ReferenceType, mv.ReferenceID)
	if err != nil {
		return fmt.Errorf("insert %s movement for item %d: %w", mv.Type, mv.ItemID, err)
	}
	return nil
}
