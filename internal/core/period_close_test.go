package core_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"inventory-engine/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCloseReadiness_OrdersAndIsIdempotent(t *testing.T) {
	blockers := []core.CloseBlocker{
		{Kind: core.BlockerPendingTransfer, DocumentID: 4},
		{Kind: core.BlockerDraftDelivery, DocumentID: 9},
		{Kind: core.BlockerDraftIssue, DocumentID: 2},
		{Kind: core.BlockerDraftDelivery, DocumentID: 3},
		{Kind: core.BlockerPendingDelivery, DocumentID: 1},
	}
	warnings := []core.CloseWarning{{Kind: "OPEN_NCR", DocumentID: 8}, {Kind: "OPEN_NCR", DocumentID: 5}}

	first := core.EvaluateCloseReadiness(12, blockers, warnings)
	second := core.EvaluateCloseReadiness(12, blockers, warnings)

	assert.False(t, first.Ready)
	assert.Equal(t, first, second)

	var got []string
	for _, b := range first.Blockers {
		got = append(got, fmt.Sprintf("%s/%d", b.Kind, b.DocumentID))
	}
	assert.Equal(t, []string{
		"DRAFT_DELIVERY/3",
		"DRAFT_DELIVERY/9",
		"PENDING_APPROVAL_DELIVERY/1",
		"DRAFT_ISSUE/2",
		"PENDING_APPROVAL_TRANSFER/4",
	}, got)
	assert.Equal(t, 5, first.Warnings[0].DocumentID)

	// The caller's slice is left untouched.
	assert.Equal(t, core.BlockerPendingTransfer, blockers[0].Kind)
}

func TestEvaluateCloseReadiness_WarningsDoNotBlock(t *testing.T) {
	r := core.EvaluateCloseReadiness(1, nil, []core.CloseWarning{{Kind: "OPEN_NCR", DocumentID: 1}})
	assert.True(t, r.Ready)
	assert.Empty(t, r.Blockers)
	assert.NotNil(t, r.Blockers)
	assert.Len(t, r.Warnings, 1)
}

func TestPeriodContains(t *testing.T) {
	p := core.Period{
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	assert.True(t, p.Contains(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.Contains(time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("insert reconciliation: connection reset")
	pc := &core.PartialCloseError{PeriodID: 4, Expected: 3, Snapshotted: 1, Cause: cause}
	assert.ErrorIs(t, pc, core.ErrPartialClose)
	assert.ErrorIs(t, pc, cause)
	assert.Contains(t, pc.Error(), "snapshotted 1 of 3")

	ise := &core.InsufficientStockError{LocationID: 2, Items: []core.StockShortfall{
		{ItemCode: "RICE", Requested: d("10"), Available: d("4")},
		{ItemCode: "OIL", Requested: d("2"), Available: d("0")},
	}}
	assert.ErrorIs(t, ise, core.ErrInsufficientStock)
	assert.Contains(t, ise.Error(), "RICE")
	assert.Contains(t, ise.Error(), "OIL")

	assert.True(t, core.IsBusinessError(fmt.Errorf("approve: %w", ise)))
	assert.True(t, core.IsBusinessError(&core.PeriodConflictError{Reason: "x"}))
	assert.True(t, core.IsBusinessError(&core.StateTransitionError{Entity: "transfer"}))
	assert.False(t, core.IsBusinessError(&core.ValidationError{Field: "f"}))
	assert.False(t, core.IsBusinessError(pc))

	var pce *core.PeriodConflictError
	require.True(t, errors.As(fmt.Errorf("wrap: %w", &core.PeriodConflictError{PeriodID: 9, Reason: "r"}), &pce))
	assert.Equal(t, 9, pce.PeriodID)
}
