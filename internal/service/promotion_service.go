package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meritbase/badgetrack/internal/auth"
	"github.com/meritbase/badgetrack/internal/domain"
	"github.com/meritbase/badgetrack/internal/events"
	"github.com/meritbase/badgetrack/internal/lifecycle"
	"github.com/meritbase/badgetrack/internal/models"
	"github.com/meritbase/badgetrack/internal/rules"
	"github.com/meritbase/badgetrack/internal/store"
)

// PromotionService drives the promotion state machine. It consults the rule
// engine before submission and delegates the multi-row side effects of
// approve/reject/delete to the store's atomic operations.
type PromotionService struct {
	store  store.Store
	events *events.Producer
}

func NewPromotionService(st store.Store, producer *events.Producer) *PromotionService {
	return &PromotionService{store: st, events: producer}
}

// PromotionDetail is a promotion together with its reserved badges and the
// live rule-validation report.
type PromotionDetail struct {
	Promotion  models.Promotion       `json:"promotion"`
	Badges     []models.ReservedBadge `json:"badges"`
	Validation rules.Result           `json:"validation"`
}

// Create opens a draft promotion from an active template.
func (s *PromotionService) Create(ctx context.Context, actor auth.Actor, templateID uuid.UUID) (models.Promotion, error) {
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Promotion{}, domain.NotFoundf("template %s not found", templateID)
		}
		return models.Promotion{}, fmt.Errorf("load template: %w", err)
	}
	if !tmpl.IsActive {
		return models.Promotion{}, domain.Validationf("template %s is no longer active", templateID)
	}
	promo, err := s.store.CreatePromotion(ctx, store.PromotionInput{
		TemplateID: templateID,
		OwnerID:    actor.ID,
	})
	if err != nil {
		return models.Promotion{}, fmt.Errorf("create promotion: %w", err)
	}
	return promo, nil
}

// Get returns a promotion with its reservations and validation report.
// Owner or admin.
func (s *PromotionService) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (PromotionDetail, error) {
	promo, err := s.loadPromotion(ctx, id)
	if err != nil {
		return PromotionDetail{}, err
	}
	if promo.OwnerID != actor.ID && !actor.Admin {
		return PromotionDetail{}, domain.Forbiddenf("promotion %s does not belong to you", id)
	}
	return s.detail(ctx, promo)
}

func (s *PromotionService) detail(ctx context.Context, promo models.Promotion) (PromotionDetail, error) {
	reserved, err := s.store.ListReservedBadges(ctx, promo.ID)
	if err != nil {
		return PromotionDetail{}, fmt.Errorf("list reserved badges: %w", err)
	}
	result, err := s.validate(ctx, promo, reserved)
	if err != nil {
		return PromotionDetail{}, err
	}
	return PromotionDetail{Promotion: promo, Badges: reserved, Validation: result}, nil
}

func (s *PromotionService) validate(ctx context.Context, promo models.Promotion, reserved []models.ReservedBadge) (rules.Result, error) {
	tmpl, err := s.store.GetTemplate(ctx, promo.TemplateID)
	if err != nil {
		return rules.Result{}, fmt.Errorf("load template: %w", err)
	}
	ruleSet, err := rules.Parse(tmpl.Rules)
	if err != nil {
		return rules.Result{}, fmt.Errorf("template %s rules corrupted: %w", tmpl.ID, err)
	}
	badges := make([]rules.Badge, 0, len(reserved))
	for _, rb := range reserved {
		badges = append(badges, rules.Badge{Category: rb.Category, Level: rb.Level})
	}
	return rules.Evaluate(ruleSet, badges), nil
}

// AddBadge reserves an accepted badge application for a draft promotion. The
// exclusivity of the claim is decided by the storage constraint; a losing
// race surfaces as domain.ReservationConflict naming the holder.
func (s *PromotionService) AddBadge(ctx context.Context, actor auth.Actor, promotionID, badgeApplicationID uuid.UUID) (models.Reservation, error) {
	promo, err := s.loadPromotion(ctx, promotionID)
	if err != nil {
		return models.Reservation{}, err
	}
	if promo.OwnerID != actor.ID && !actor.Admin {
		return models.Reservation{}, domain.Forbiddenf("promotion %s does not belong to you", promotionID)
	}
	if _, ok := lifecycle.PromotionNext(promo.Status, lifecycle.PromoAddBadge); !ok {
		return models.Reservation{}, domain.InvalidStatus("promotion", "add badge to", string(promo.Status))
	}

	app, err := s.store.GetApplication(ctx, badgeApplicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Reservation{}, domain.NotFoundf("badge application %s not found", badgeApplicationID)
		}
		return models.Reservation{}, fmt.Errorf("load application: %w", err)
	}
	if app.OwnerID != promo.OwnerID {
		return models.Reservation{}, domain.Forbiddenf("badge application %s does not belong to the promotion owner", badgeApplicationID)
	}
	if app.Status != models.ApplicationAccepted {
		return models.Reservation{}, domain.InvalidStatus("badge application", "reserve", string(app.Status))
	}

	resv, err := s.store.Reserve(ctx, promotionID, badgeApplicationID)
	if err != nil {
		var conflict *domain.ReservationConflict
		if errors.As(err, &conflict) {
			return models.Reservation{}, conflict
		}
		return models.Reservation{}, fmt.Errorf("reserve badge: %w", err)
	}
	return resv, nil
}

// RemoveBadge releases a reservation from a draft promotion.
func (s *PromotionService) RemoveBadge(ctx context.Context, actor auth.Actor, promotionID, badgeApplicationID uuid.UUID) error {
	promo, err := s.loadPromotion(ctx, promotionID)
	if err != nil {
		return err
	}
	if promo.OwnerID != actor.ID && !actor.Admin {
		return domain.Forbiddenf("promotion %s does not belong to you", promotionID)
	}
	if _, ok := lifecycle.PromotionNext(promo.Status, lifecycle.PromoRemoveBadge); !ok {
		return domain.InvalidStatus("promotion", "remove badge from", string(promo.Status))
	}
	if err := s.store.ReleaseReservation(ctx, promotionID, badgeApplicationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFoundf("badge application %s is not reserved by promotion %s", badgeApplicationID, promotionID)
		}
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

// Submit validates the promotion against its template and, if every rule is
// satisfied, moves it to submitted. On shortfall nothing changes and the
// missing badges are reported.
func (s *PromotionService) Submit(ctx context.Context, actor auth.Actor, id uuid.UUID) (PromotionDetail, error) {
	promo, err := s.loadPromotion(ctx, id)
	if err != nil {
		return PromotionDetail{}, err
	}
	if promo.OwnerID != actor.ID {
		return PromotionDetail{}, domain.Forbiddenf("only the owner may submit a promotion")
	}
	next, ok := lifecycle.PromotionNext(promo.Status, lifecycle.PromoSubmit)
	if !ok {
		return PromotionDetail{}, domain.InvalidStatus("promotion", "submit", string(promo.Status))
	}

	reserved, err := s.store.ListReservedBadges(ctx, id)
	if err != nil {
		return PromotionDetail{}, fmt.Errorf("list reserved badges: %w", err)
	}
	result, err := s.validate(ctx, promo, reserved)
	if err != nil {
		return PromotionDetail{}, err
	}
	if !result.IsValid {
		return PromotionDetail{}, &domain.ValidationFailed{Missing: result.Missing}
	}

	if err := s.store.SetPromotionStatus(ctx, id, promo.Status, next); err != nil {
		return PromotionDetail{}, promotionTransitionErr(ctx, s.store, err, id, "submit")
	}
	s.events.Emit(ctx, events.DecisionEvent{
		Type:     events.TypePromotionSubmitted,
		EntityID: id.String(),
		OwnerID:  promo.OwnerID,
		ActorID:  actor.ID,
	})
	promo, err = s.loadPromotion(ctx, id)
	if err != nil {
		return PromotionDetail{}, err
	}
	return PromotionDetail{Promotion: promo, Badges: reserved, Validation: result}, nil
}

// Approve finalizes a submitted promotion. Admin only. The status change,
// reservation consumption and badge transitions commit in one transaction.
func (s *PromotionService) Approve(ctx context.Context, actor auth.Actor, id uuid.UUID, note *string) (PromotionDetail, error) {
	if !actor.Admin {
		return PromotionDetail{}, domain.Forbiddenf("only an admin may approve promotions")
	}
	promo, err := s.loadPromotion(ctx, id)
	if err != nil {
		return PromotionDetail{}, err
	}
	if _, ok := lifecycle.PromotionNext(promo.Status, lifecycle.PromoApprove); !ok {
		return PromotionDetail{}, domain.InvalidStatus("promotion", "approve", string(promo.Status))
	}
	dec := store.Decision{DecidedBy: actor.ID, Note: note, At: time.Now().UTC()}
	if err := s.store.ApprovePromotion(ctx, id, dec); err != nil {
		return PromotionDetail{}, promotionTransitionErr(ctx, s.store, err, id, "approve")
	}
	s.events.Emit(ctx, events.DecisionEvent{
		Type:     events.TypePromotionApproved,
		EntityID: id.String(),
		OwnerID:  promo.OwnerID,
		ActorID:  actor.ID,
	})
	promo, err = s.loadPromotion(ctx, id)
	if err != nil {
		return PromotionDetail{}, err
	}
	return s.detail(ctx, promo)
}

// Reject declines a submitted promotion. Admin only; a non-empty reason is
// required. Every reservation the promotion held is released atomically with
// the status change.
func (s *PromotionService) Reject(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (PromotionDetail, error) {
	if !actor.Admin {
		return PromotionDetail{}, domain.Forbiddenf("only an admin may reject promotions")
	}
	if reason == "" {
		return PromotionDetail{}, domain.Validationf("a rejection reason is required")
	}
	promo, err := s.loadPromotion(ctx, id)
	if err != nil {
		return PromotionDetail{}, err
	}
	if _, ok := lifecycle.PromotionNext(promo.Status, lifecycle.PromoReject); !ok {
		return PromotionDetail{}, domain.InvalidStatus("promotion", "reject", string(promo.Status))
	}
	dec := store.Decision{DecidedBy: actor.ID, Note: &reason, At: time.Now().UTC()}
	if err := s.store.RejectPromotion(ctx, id, dec); err != nil {
		return PromotionDetail{}, promotionTransitionErr(ctx, s.store, err, id, "reject")
	}
	s.events.Emit(ctx, events.DecisionEvent{
		Type:     events.TypePromotionRejected,
		EntityID: id.String(),
		OwnerID:  promo.OwnerID,
		ActorID:  actor.ID,
	})
	promo, err = s.loadPromotion(ctx, id)
	if err != nil {
		return PromotionDetail{}, err
	}
	return s.detail(ctx, promo)
}

// Delete removes a draft promotion and frees its badges. Owner only.
func (s *PromotionService) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	promo, err := s.loadPromotion(ctx, id)
	if err != nil {
		return err
	}
	if promo.OwnerID != actor.ID {
		return domain.Forbiddenf("only the owner may delete a promotion")
	}
	if _, ok := lifecycle.PromotionNext(promo.Status, lifecycle.PromoDelete); !ok {
		return domain.InvalidStatus("promotion", "delete", string(promo.Status))
	}
	if err := s.store.DeletePromotion(ctx, id); err != nil {
		return promotionTransitionErr(ctx, s.store, err, id, "delete")
	}
	return nil
}

// ListMine returns the actor's own promotions.
func (s *PromotionService) ListMine(ctx context.Context, actor auth.Actor) ([]models.Promotion, error) {
	return s.store.ListPromotionsByOwner(ctx, actor.ID)
}

// ListForDecision returns submitted promotions awaiting an admin decision.
func (s *PromotionService) ListForDecision(ctx context.Context, actor auth.Actor) ([]models.Promotion, error) {
	if !actor.Admin {
		return nil, domain.Forbiddenf("only an admin may list promotions for decision")
	}
	return s.store.ListPromotionsByStatus(ctx, models.PromotionSubmitted)
}

// Stats returns true per-status counts. Admin only.
func (s *PromotionService) Stats(ctx context.Context, actor auth.Actor) (models.StatusCounts, error) {
	if !actor.Admin {
		return models.StatusCounts{}, domain.Forbiddenf("only an admin may view stats")
	}
	return s.store.CountsByStatus(ctx)
}

func (s *PromotionService) loadPromotion(ctx context.Context, id uuid.UUID) (models.Promotion, error) {
	promo, err := s.store.GetPromotion(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Promotion{}, domain.NotFoundf("promotion %s not found", id)
		}
		return models.Promotion{}, fmt.Errorf("load promotion: %w", err)
	}
	return promo, nil
}

func promotionTransitionErr(ctx context.Context, st store.Store, err error, id uuid.UUID, action string) error {
	if errors.Is(err, store.ErrStaleStatus) {
		current := "unknown"
		if promo, rerr := st.GetPromotion(ctx, id); rerr == nil {
			current = string(promo.Status)
		}
		return domain.InvalidStatus("promotion", action, current)
	}
	return fmt.Errorf("%s promotion: %w", action, err)
}
