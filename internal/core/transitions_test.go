package core_test

import (
	"errors"
	"testing"

	"inventory-engine/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPeriodTransition(t *testing.T) {
	all := []core.PeriodStatus{core.PeriodDraft, core.PeriodOpen, core.PeriodPendingClose, core.PeriodClosed}
	allowed := map[[2]core.PeriodStatus]bool{
		{core.PeriodDraft, core.PeriodOpen}:         true,
		{core.PeriodOpen, core.PeriodPendingClose}:  true,
		{core.PeriodPendingClose, core.PeriodClosed}: true,
	}
	for _, from := range all {
		for _, to := range all {
			err := core.CheckPeriodTransition(7, from, to)
			if allowed[[2]core.PeriodStatus{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			require.Error(t, err, "%s -> %s", from, to)
			var se *core.StateTransitionError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, "period", se.Entity)
			assert.Equal(t, 7, se.ID)
		}
	}
}

func TestCheckTransferTransition_TerminalStates(t *testing.T) {
	assert.NoError(t, core.CheckTransferTransition(1, core.TransferDraft, core.TransferPendingApproval))
	assert.NoError(t, core.CheckTransferTransition(1, core.TransferPendingApproval, core.TransferApproved))
	assert.NoError(t, core.CheckTransferTransition(1, core.TransferPendingApproval, core.TransferRejected))

	for _, to := range []core.TransferStatus{core.TransferApproved, core.TransferPendingApproval, core.TransferDraft} {
		assert.ErrorIs(t, core.CheckTransferTransition(1, core.TransferRejected, to), core.ErrInvalidTransition)
	}
	assert.ErrorIs(t, core.CheckTransferTransition(1, core.TransferApproved, core.TransferRejected), core.ErrInvalidTransition)
	assert.ErrorIs(t, core.CheckTransferTransition(1, core.TransferDraft, core.TransferApproved), core.ErrInvalidTransition)
}

func TestCheckDeliveryTransition(t *testing.T) {
	assert.NoError(t, core.CheckDeliveryTransition(1, core.DeliveryDraft, core.DeliveryPosted))
	assert.NoError(t, core.CheckDeliveryTransition(1, core.DeliveryDraft, core.DeliveryPendingApproval))
	assert.NoError(t, core.CheckDeliveryTransition(1, core.DeliveryPendingApproval, core.DeliveryRejected))

	assert.ErrorIs(t, core.CheckDeliveryTransition(1, core.DeliveryRejected, core.DeliveryPosted), core.ErrInvalidTransition)
	assert.ErrorIs(t, core.CheckDeliveryTransition(1, core.DeliveryPosted, core.DeliveryDraft), core.ErrInvalidTransition)
	assert.ErrorIs(t, core.CheckDeliveryTransition(1, core.DeliveryDraft, core.DeliveryRejected), core.ErrInvalidTransition)
}

func TestCheckIssueTransition(t *testing.T) {
	assert.NoError(t, core.CheckIssueTransition(1, core.IssueDraft, core.IssuePosted))
	assert.ErrorIs(t, core.CheckIssueTransition(1, core.IssuePosted, core.IssuePosted), core.ErrInvalidTransition)
}

func TestCheckNCRTransition(t *testing.T) {
	cases := []struct {
		name    string
		from    core.NCRStatus
		to      core.NCRStatus
		impact  *core.FinancialImpact
		wantErr error
	}{
		{"open to sent", core.NCROpen, core.NCRSent, nil, nil},
		{"open to resolved with impact", core.NCROpen, core.NCRResolved, impact(core.ImpactNone), nil},
		{"sent to credited", core.NCRSent, core.NCRCredited, nil, nil},
		{"sent to rejected", core.NCRSent, core.NCRRejected, nil, nil},
		{"sent to resolved as loss", core.NCRSent, core.NCRResolved, impact(core.ImpactLoss), nil},
		{"resolved without impact", core.NCRSent, core.NCRResolved, nil, core.ErrValidation},
		{"impact on non-resolved", core.NCROpen, core.NCRSent, impact(core.ImpactCredit), core.ErrValidation},
		{"unknown impact", core.NCROpen, core.NCRResolved, impact("PARTIAL"), core.ErrValidation},
		{"open straight to credited", core.NCROpen, core.NCRCredited, nil, core.ErrInvalidTransition},
		{"credited is terminal", core.NCRCredited, core.NCRResolved, impact(core.ImpactCredit), core.ErrInvalidTransition},
		{"resolved is terminal", core.NCRResolved, core.NCRSent, nil, core.ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := core.CheckNCRTransition(3, tc.from, tc.to, tc.impact)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
