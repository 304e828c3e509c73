package lifecycle

import (
	"github.com/meritbase/badgetrack/internal/models"
)

// Actions on a badge application.
type ApplicationAction string

const (
	AppSubmit   ApplicationAction = "submit"
	AppAccept   ApplicationAction = "accept"
	AppReject   ApplicationAction = "reject"
	AppReopen   ApplicationAction = "reopen"
	AppDelete   ApplicationAction = "delete"
	AppMarkUsed ApplicationAction = "mark_used_in_promotion"
)

// Actions on a promotion.
type PromotionAction string

const (
	PromoAddBadge    PromotionAction = "add_badge"
	PromoRemoveBadge PromotionAction = "remove_badge"
	PromoSubmit      PromotionAction = "submit"
	PromoApprove     PromotionAction = "approve"
	PromoReject      PromotionAction = "reject"
	PromoDelete      PromotionAction = "delete"
)

// Removed marks transitions whose effect is deleting the row rather than
// moving to another status.
const Removed = ""

type appTransition struct {
	From   models.ApplicationStatus
	Action ApplicationAction
	To     models.ApplicationStatus
}

// Every legal badge-application transition. Anything not listed here fails
// with invalid_status before any row is touched, so adding a transition is a
// one-line, reviewable change.
var applicationTransitions = []appTransition{
	{From: models.ApplicationDraft, Action: AppSubmit, To: models.ApplicationSubmitted},
	{From: models.ApplicationSubmitted, Action: AppAccept, To: models.ApplicationAccepted},
	{From: models.ApplicationSubmitted, Action: AppReject, To: models.ApplicationRejected},
	// Owners may fix and resubmit a rejected application.
	{From: models.ApplicationRejected, Action: AppReopen, To: models.ApplicationDraft},
	{From: models.ApplicationDraft, Action: AppDelete, To: Removed},
	// Reached only through promotion approval, never a direct user action.
	{From: models.ApplicationAccepted, Action: AppMarkUsed, To: models.ApplicationUsed},
}

type promoTransition struct {
	From   models.PromotionStatus
	Action PromotionAction
	To     models.PromotionStatus
}

// Every legal promotion transition. add/remove badge keep the promotion in
// draft; they appear here so the closure check covers them too.
var promotionTransitions = []promoTransition{
	{From: models.PromotionDraft, Action: PromoAddBadge, To: models.PromotionDraft},
	{From: models.PromotionDraft, Action: PromoRemoveBadge, To: models.PromotionDraft},
	{From: models.PromotionDraft, Action: PromoSubmit, To: models.PromotionSubmitted},
	{From: models.PromotionSubmitted, Action: PromoApprove, To: models.PromotionApproved},
	{From: models.PromotionSubmitted, Action: PromoReject, To: models.PromotionRejected},
	{From: models.PromotionDraft, Action: PromoDelete, To: Removed},
}

// ApplicationNext returns the target status for (from, action), or ok=false
// when the transition is not legal.
func ApplicationNext(from models.ApplicationStatus, action ApplicationAction) (models.ApplicationStatus, bool) {
	for _, t := range applicationTransitions {
		if t.From == from && t.Action == action {
			return t.To, true
		}
	}
	return "", false
}

// PromotionNext returns the target status for (from, action), or ok=false
// when the transition is not legal.
func PromotionNext(from models.PromotionStatus, action PromotionAction) (models.PromotionStatus, bool) {
	for _, t := range promotionTransitions {
		if t.From == from && t.Action == action {
			return t.To, true
		}
	}
	return "", false
}
