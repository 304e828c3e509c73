package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meritbase/badgetrack/internal/auth"
	"github.com/meritbase/badgetrack/internal/domain"
	"github.com/meritbase/badgetrack/internal/models"
	"github.com/meritbase/badgetrack/internal/rules"
	"github.com/meritbase/badgetrack/internal/service"
	"github.com/meritbase/badgetrack/internal/store"
)

type promotionHarness struct {
	store      *store.MemoryStore
	badges     *service.BadgeService
	templates  *service.TemplateService
	promotions *service.PromotionService
	templateID uuid.UUID
}

// newPromotionHarness wires the three services over one MemoryStore and
// creates a template requiring 2x (technical, gold) plus 1x gold of any
// category.
func newPromotionHarness(t *testing.T) *promotionHarness {
	t.Helper()
	st := store.NewMemoryStore()
	h := &promotionHarness{
		store:      st,
		badges:     service.NewBadgeService(st, nil),
		templates:  service.NewTemplateService(st),
		promotions: service.NewPromotionService(st, nil),
	}
	tmpl, err := h.templates.Create(context.Background(), admin, service.CreateTemplateRequest{
		CareerPath: "engineering",
		FromLevel:  "senior",
		ToLevel:    "staff",
		Rules: []byte(`[
			{"category": "technical", "level": "gold", "count": 2},
			{"category": "any", "level": "gold", "count": 1}
		]`),
	})
	require.NoError(t, err)
	h.templateID = tmpl.ID
	return h
}

// acceptedBadge walks a new application through draft, submit and accept.
func (h *promotionHarness) acceptedBadge(t *testing.T, actor auth.Actor, category, level string) models.BadgeApplication {
	t.Helper()
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	app, err := h.badges.Create(ctx, actor, service.CreateApplicationRequest{
		BadgeID:         "badge-" + category + "-" + level,
		BadgeTitle:      category + " " + level,
		Category:        category,
		Level:           level,
		ApplicationDate: &date,
	})
	require.NoError(t, err)
	_, err = h.badges.Submit(ctx, actor, app.ID)
	require.NoError(t, err)
	app, err = h.badges.Accept(ctx, admin, app.ID, nil)
	require.NoError(t, err)
	return app
}

func (h *promotionHarness) draftPromotion(t *testing.T, actor auth.Actor) models.Promotion {
	t.Helper()
	promo, err := h.promotions.Create(context.Background(), actor, h.templateID)
	require.NoError(t, err)
	return promo
}

func TestPromotionApprovalFlow(t *testing.T) {
	ctx := context.Background()
	h := newPromotionHarness(t)

	b1 := h.acceptedBadge(t, owner, "technical", "gold")
	b2 := h.acceptedBadge(t, owner, "technical", "gold")
	b3 := h.acceptedBadge(t, owner, "organizational", "gold")

	promo := h.draftPromotion(t, owner)
	for _, b := range []models.BadgeApplication{b1, b2, b3} {
		_, err := h.promotions.AddBadge(ctx, owner, promo.ID, b.ID)
		require.NoError(t, err)
	}

	detail, err := h.promotions.Get(ctx, owner, promo.ID)
	require.NoError(t, err)
	assert.True(t, detail.Validation.IsValid)
	assert.Len(t, detail.Badges, 3)

	detail, err = h.promotions.Submit(ctx, owner, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PromotionSubmitted, detail.Promotion.Status)

	detail, err = h.promotions.Approve(ctx, admin, promo.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PromotionApproved, detail.Promotion.Status)
	require.NotNil(t, detail.Promotion.DecidedBy)
	assert.Equal(t, admin.ID, *detail.Promotion.DecidedBy)

	// Approval consumed the reservations and spent the badges.
	for _, rb := range detail.Badges {
		assert.True(t, rb.Consumed)
	}
	for _, b := range []models.BadgeApplication{b1, b2, b3} {
		got, err := h.badges.Get(ctx, owner, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ApplicationUsed, got.Status)
	}

	// Terminal: no second decision.
	_, err = h.promotions.Approve(ctx, admin, promo.ID, nil)
	assert.Equal(t, domain.KindInvalidStatus, kindOf(t, err))
	_, err = h.promotions.Reject(ctx, admin, promo.ID, "late")
	assert.Equal(t, domain.KindInvalidStatus, kindOf(t, err))
}

func TestAddBadgeExclusivity(t *testing.T) {
	ctx := context.Background()
	h := newPromotionHarness(t)

	badge := h.acceptedBadge(t, owner, "technical", "gold")
	first := h.draftPromotion(t, owner)
	second := h.draftPromotion(t, owner)

	_, err := h.promotions.AddBadge(ctx, owner, first.ID, badge.ID)
	require.NoError(t, err)

	_, err = h.promotions.AddBadge(ctx, owner, second.ID, badge.ID)
	require.Error(t, err)
	de := domain.AsError(err)
	assert.Equal(t, domain.KindReservationConflict, de.Kind)

	var conflict *domain.ReservationConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.HeldBy)

	// Releasing frees the badge for the second promotion.
	require.NoError(t, h.promotions.RemoveBadge(ctx, owner, first.ID, badge.ID))
	_, err = h.promotions.AddBadge(ctx, owner, second.ID, badge.ID)
	assert.NoError(t, err)
}

func TestAddBadgeGuards(t *testing.T) {
	ctx := context.Background()
	h := newPromotionHarness(t)

	promo := h.draftPromotion(t, owner)

	// Unknown badge.
	_, err := h.promotions.AddBadge(ctx, owner, promo.ID, uuid.New())
	assert.Equal(t, domain.KindNotFound, kindOf(t, err))

	// Badge not yet accepted.
	date := time.Now().UTC()
	draft, err := h.badges.Create(ctx, owner, service.CreateApplicationRequest{
		BadgeID: "badge-x", BadgeTitle: "X", Category: "technical", Level: "gold",
		ApplicationDate: &date,
	})
	require.NoError(t, err)
	_, err = h.promotions.AddBadge(ctx, owner, promo.ID, draft.ID)
	assert.Equal(t, domain.KindInvalidStatus, kindOf(t, err))

	// Someone else's badge.
	foreign := h.acceptedBadge(t, other, "technical", "gold")
	_, err = h.promotions.AddBadge(ctx, owner, promo.ID, foreign.ID)
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))
}

func TestSubmitShortfall(t *testing.T) {
	ctx := context.Background()
	h := newPromotionHarness(t)

	badge := h.acceptedBadge(t, owner, "technical", "gold")
	promo := h.draftPromotion(t, owner)
	_, err := h.promotions.AddBadge(ctx, owner, promo.ID, badge.ID)
	require.NoError(t, err)

	_, err = h.promotions.Submit(ctx, owner, promo.ID)
	require.Error(t, err)

	// The lone badge counts toward the wildcard after the specific rule
	// releases it, so only the specific gap is reported.
	var failed *domain.ValidationFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, []rules.Shortfall{
		{Category: "technical", Level: "gold", Count: 1},
	}, failed.Missing)

	// Nothing changed: the promotion is still an editable draft.
	detail, err := h.promotions.Get(ctx, owner, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PromotionDraft, detail.Promotion.Status)
}

func TestRejectReleasesBadges(t *testing.T) {
	ctx := context.Background()
	h := newPromotionHarness(t)

	b1 := h.acceptedBadge(t, owner, "technical", "gold")
	b2 := h.acceptedBadge(t, owner, "technical", "gold")
	b3 := h.acceptedBadge(t, owner, "leadership", "gold")

	promo := h.draftPromotion(t, owner)
	for _, b := range []models.BadgeApplication{b1, b2, b3} {
		_, err := h.promotions.AddBadge(ctx, owner, promo.ID, b.ID)
		require.NoError(t, err)
	}
	_, err := h.promotions.Submit(ctx, owner, promo.ID)
	require.NoError(t, err)

	// A reason is mandatory.
	_, err = h.promotions.Reject(ctx, admin, promo.ID, "")
	assert.Equal(t, domain.KindValidation, kindOf(t, err))

	detail, err := h.promotions.Reject(ctx, admin, promo.ID, "not enough breadth")
	require.NoError(t, err)
	assert.Equal(t, models.PromotionRejected, detail.Promotion.Status)
	assert.Empty(t, detail.Badges)

	// The badges stay accepted and are free for another attempt.
	got, err := h.badges.Get(ctx, owner, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationAccepted, got.Status)

	retry := h.draftPromotion(t, owner)
	_, err = h.promotions.AddBadge(ctx, owner, retry.ID, b1.ID)
	assert.NoError(t, err)
}

func TestDeletePromotionFreesBadges(t *testing.T) {
	ctx := context.Background()
	h := newPromotionHarness(t)

	badge := h.acceptedBadge(t, owner, "technical", "gold")
	promo := h.draftPromotion(t, owner)
	_, err := h.promotions.AddBadge(ctx, owner, promo.ID, badge.ID)
	require.NoError(t, err)

	// Owner only, even for admins.
	err = h.promotions.Delete(ctx, admin, promo.ID)
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))

	require.NoError(t, h.promotions.Delete(ctx, owner, promo.ID))
	_, err = h.promotions.Get(ctx, owner, promo.ID)
	assert.Equal(t, domain.KindNotFound, kindOf(t, err))

	next := h.draftPromotion(t, owner)
	_, err = h.promotions.AddBadge(ctx, owner, next.ID, badge.ID)
	assert.NoError(t, err)
}

func TestCreatePromotionRequiresActiveTemplate(t *testing.T) {
	ctx := context.Background()
	h := newPromotionHarness(t)

	_, err := h.promotions.Create(ctx, owner, uuid.New())
	assert.Equal(t, domain.KindNotFound, kindOf(t, err))

	require.NoError(t, h.templates.Deactivate(ctx, admin, h.templateID))
	_, err = h.promotions.Create(ctx, owner, h.templateID)
	assert.Equal(t, domain.KindValidation, kindOf(t, err))
}

func TestPromotionDecisionGuards(t *testing.T) {
	ctx := context.Background()
	h := newPromotionHarness(t)

	promo := h.draftPromotion(t, owner)

	// Drafts cannot be decided.
	_, err := h.promotions.Approve(ctx, admin, promo.ID, nil)
	assert.Equal(t, domain.KindInvalidStatus, kindOf(t, err))

	// Non-admins cannot decide at all.
	_, err = h.promotions.Approve(ctx, owner, promo.ID, nil)
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))
	_, err = h.promotions.Reject(ctx, owner, promo.ID, "nope")
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	h := newPromotionHarness(t)

	h.acceptedBadge(t, owner, "technical", "gold")
	h.draftPromotion(t, owner)

	_, err := h.promotions.Stats(ctx, owner)
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))

	counts, err := h.promotions.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Applications[models.ApplicationAccepted])
	assert.Equal(t, 1, counts.Promotions[models.PromotionDraft])
}

func TestTemplateValidation(t *testing.T) {
	ctx := context.Background()
	h := newPromotionHarness(t)

	_, err := h.templates.Create(ctx, owner, service.CreateTemplateRequest{
		CareerPath: "engineering", FromLevel: "senior", ToLevel: "staff",
		Rules: []byte(`[{"category": "technical", "level": "gold", "count": 1}]`),
	})
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))

	_, err = h.templates.Create(ctx, admin, service.CreateTemplateRequest{
		CareerPath: "engineering", FromLevel: "senior", ToLevel: "staff",
		Rules: []byte(`[]`),
	})
	assert.Equal(t, domain.KindValidation, kindOf(t, err))

	_, err = h.templates.Create(ctx, admin, service.CreateTemplateRequest{
		CareerPath: "engineering", FromLevel: "senior", ToLevel: "staff",
		Rules: []byte(`[
			{"category": "technical", "level": "gold", "count": 1},
			{"category": "Technical", "level": "Gold", "count": 2}
		]`),
	})
	assert.Equal(t, domain.KindValidation, kindOf(t, err))
}
