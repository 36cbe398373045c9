package core

import "slices"

var periodTransitions = map[PeriodStatus][]PeriodStatus{
	PeriodDraft:        {PeriodOpen},
	PeriodOpen:         {PeriodPendingClose},
	PeriodPendingClose: {PeriodClosed},
}

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryDraft:           {DeliveryPosted, DeliveryPendingApproval},
	DeliveryPendingApproval: {DeliveryPosted, DeliveryRejected},
}

var issueTransitions = map[IssueStatus][]IssueStatus{
	IssueDraft: {IssuePosted},
}

var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferDraft:           {TransferPendingApproval},
	TransferPendingApproval: {TransferApproved, TransferRejected},
}

var ncrTransitions = map[NCRStatus][]NCRStatus{
	NCROpen: {NCRSent, NCRResolved},
	NCRSent: {NCRCredited, NCRRejected, NCRResolved},
}

func canTransition[S ~string](table map[S][]S, from, to S) bool {
	return slices.Contains(table[from], to)
}

func checkTransition[S ~string](table map[S][]S, entity string, id int, from, to S) error {
	if canTransition(table, from, to) {
		return nil
	}
	return &StateTransitionError{Entity: entity, ID: id, From: string(from), To: string(to)}
}

// CheckPeriodTransition validates a period lifecycle step.
func CheckPeriodTransition(id int, from, to PeriodStatus) error {
	return checkTransition(periodTransitions, "period", id, from, to)
}

// CheckDeliveryTransition validates a delivery status change.
func CheckDeliveryTransition(id int, from, to DeliveryStatus) error {
	return checkTransition(deliveryTransitions, "delivery", id, from, to)
}

// CheckIssueTransition validates an issue status change.
func CheckIssueTransition(id int, from, to IssueStatus) error {
	return checkTransition(issueTransitions, "issue", id, from, to)
}

// CheckTransferTransition validates a transfer status change.
func CheckTransferTransition(id int, from, to TransferStatus) error {
	return checkTransition(transferTransitions, "transfer", id, from, to)
}

// CheckNCRTransition validates an NCR status change together with its
// financial impact: impact is required for RESOLVED and forbidden otherwise.
func CheckNCRTransition(id int, from, to NCRStatus, impact *FinancialImpact) error {
	if err := checkTransition(ncrTransitions, "ncr", id, from, to); err != nil {
		return err
	}
	if to == NCRResolved {
		if impact == nil {
			return &ValidationError{Field: "financialImpact", Reason: "is required when status is RESOLVED"}
		}
		switch *impact {
		case ImpactCredit, ImpactLoss, ImpactNone:
		default:
			return &ValidationError{Field: "financialImpact", Reason: "must be CREDIT, LOSS or NONE"}
		}
		return nil
	}
	if impact != nil {
		return &ValidationError{Field: "financialImpact", Reason: "may only be set when status is RESOLVED"}
	}
	return nil
}

// acceptsPostings reports whether documents dated in a period with this status may post.
func (s PeriodStatus) acceptsPostings() bool {
	return s == PeriodOpen
}
