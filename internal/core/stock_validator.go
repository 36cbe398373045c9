package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// itemRef is the item master data a shortfall report needs.
type itemRef struct {
	ID   int
	Code string
	Name string
	Unit UnitOfMeasure
}

// mergeRequests sums requested quantities per item and returns them ordered by item id.
func mergeRequests(reqs []StockRequest) []StockRequest {
	byItem := make(map[int]decimal.Decimal, len(reqs))
	for _, r := range reqs {
		byItem[r.ItemID] = byItem[r.ItemID].Add(r.Quantity)
	}
	out := make([]StockRequest, 0, len(byItem))
	for id, qty := range byItem {
		out = append(out, StockRequest{ItemID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// EvaluateStock compares requested quantities with on-hand stock. An item with
// no ledger row counts as zero available. Requests for the same item are summed.
func EvaluateStock(reqs []StockRequest, onHand map[int]decimal.Decimal, items map[int]itemRef) []StockValidationResult {
	merged := mergeRequests(reqs)
	results := make([]StockValidationResult, 0, len(merged))
	for _, r := range merged {
		available := onHand[r.ItemID]
		ref := items[r.ItemID]
		res := StockValidationResult{
			ItemID:            r.ItemID,
			ItemCode:          ref.Code,
			ItemName:          ref.Name,
			Unit:              ref.Unit,
			Requested:         r.Quantity,
			AvailableQuantity: available,
			Shortfall:         decimal.Zero,
			IsValid:           available.GreaterThanOrEqual(r.Quantity),
		}
		if !res.IsValid {
			res.Shortfall = r.Quantity.Sub(available)
		}
		results = append(results, res)
	}
	return results
}

// ShortfallError returns an InsufficientStockError listing every invalid
// result, or nil when all are valid.
func ShortfallError(locationID int, results []StockValidationResult) error {
	var short []StockShortfall
	for _, r := range results {
		if r.IsValid {
			continue
		}
		short = append(short, StockShortfall{
			ItemID:    r.ItemID,
			ItemCode:  r.ItemCode,
			ItemName:  r.ItemName,
			Unit:      r.Unit,
			Requested: r.Requested,
			Available: r.AvailableQuantity,
			Shortfall: r.Shortfall,
		})
	}
	if len(short) == 0 {
		return nil
	}
	return &InsufficientStockError{LocationID: locationID, Items: short}
}

// validateRequests rejects empty request lists, non-positive quantities and
// quantities finer than QuantityPlaces.
func validateRequests(reqs []StockRequest) error {
	if len(reqs) == 0 {
		return &ValidationError{Field: "lines", Reason: "at least one line is required"}
	}
	for i, r := range reqs {
		if r.ItemID <= 0 {
			return &ValidationError{Field: fmt.Sprintf("lines[%d].itemId", i), Reason: "is required"}
		}
		if err := requireQuantity(fmt.Sprintf("lines[%d].quantity", i), r.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func requestItemIDs(reqs []StockRequest) []int {
	merged := mergeRequests(reqs)
	ids := make([]int, len(merged))
	for i, r := range merged {
		ids[i] = r.ItemID
	}
	return ids
}

// loadItemRefs fetches code/name/unit for ids. A missing id is ErrNotFound.
func loadItemRefs(ctx context.Context, q querier, ids []int) (map[int]itemRef, error) {
	rows, err := q.Query(ctx, `SELECT id, code, name, unit FROM items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	refs := make(map[int]itemRef, len(ids))
	for rows.Next() {
		var r itemRef
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.Unit); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		refs[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	for _, id := range ids {
		if _, ok := refs[id]; !ok {
			return nil, notFound("item", id)
		}
	}
	return refs, nil
}

// lockStockTx locks the location_stock rows of (locationID, itemIDs) in item
// order and returns them keyed by item id. Absent rows are simply not returned.
func lockStockTx(ctx context.Context, tx pgx.Tx, locationID int, itemIDs []int) (map[int]LocationStock, error) {
	rows, err := tx.Query(ctx, `
		SELECT location_id, item_id, on_hand, wac, updated_at
		FROM location_stock
		WHERE location_id = $1 AND item_id = ANY($2)
		ORDER BY item_id
		FOR UPDATE
	`, locationID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("lock stock rows for location %d: %w", locationID, err)
	}
	defer rows.Close()

	stock := make(map[int]LocationStock, len(itemIDs))
	for rows.Next() {
		var s LocationStock
		if err := rows.Scan(&s.LocationID, &s.ItemID, &s.OnHand, &s.WAC, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stock row: %w", err)
		}
		stock[s.ItemID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock rows: %w", err)
	}
	return stock, nil
}

// lockReceiptRowsTx creates any missing location_stock rows for itemIDs and
// locks them all, both in item id order. Receipts take their locks here before
// touching any row so they order the same way as issues and transfers.
func lockReceiptRowsTx(ctx context.Context, tx pgx.Tx, locationID int, itemIDs []int) error {
	ids := append([]int(nil), itemIDs...)
	sort.Ints(ids)
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO location_stock (location_id, item_id, on_hand, wac)
			VALUES ($1, $2, 0, 0)
			ON CONFLICT (location_id, item_id) DO NOTHING
		`, locationID, id); err != nil {
			return fmt.Errorf("upsert stock row for location %d item %d: %w", locationID, id, err)
		}
	}
	_, err := lockStockTx(ctx, tx, locationID, ids)
	return err
}

// ValidateSufficientStockTx locks the requested rows and fails with an
// InsufficientStockError naming every short item. It must run in the same
// transaction as the mutation that consumes the stock.
func ValidateSufficientStockTx(ctx context.Context, tx pgx.Tx, locationID int, reqs []StockRequest) (map[int]LocationStock, error) {
	if err := validateRequests(reqs); err != nil {
		return nil, err
	}
	ids := requestItemIDs(reqs)
	refs, err := loadItemRefs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	stock, err := lockStockTx(ctx, tx, locationID, ids)
	if err != nil {
		return nil, err
	}
	onHand := make(map[int]decimal.Decimal, len(stock))
	for id, s := range stock {
		onHand[id] = s.OnHand
	}
	if err := ShortfallError(locationID, EvaluateStock(reqs, onHand, refs)); err != nil {
		return nil, err
	}
	return stock, nil
}
