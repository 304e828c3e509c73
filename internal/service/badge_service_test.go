package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meritbase/badgetrack/internal/auth"
	"github.com/meritbase/badgetrack/internal/domain"
	"github.com/meritbase/badgetrack/internal/models"
	"github.com/meritbase/badgetrack/internal/service"
	"github.com/meritbase/badgetrack/internal/store"
)

var (
	owner = auth.Actor{ID: "user-1"}
	other = auth.Actor{ID: "user-2"}
	admin = auth.Actor{ID: "admin-1", Admin: true}
)

func newBadgeService() (*service.BadgeService, *store.MemoryStore) {
	st := store.NewMemoryStore()
	return service.NewBadgeService(st, nil), st
}

func draftApplication(t *testing.T, svc *service.BadgeService, actor auth.Actor) models.BadgeApplication {
	t.Helper()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	app, err := svc.Create(context.Background(), actor, service.CreateApplicationRequest{
		BadgeID:         "badge-k8s",
		BadgeTitle:      "Kubernetes Operator",
		Category:        "technical",
		Level:           "gold",
		ApplicationDate: &date,
	})
	require.NoError(t, err)
	return app
}

func kindOf(t *testing.T, err error) domain.Kind {
	t.Helper()
	require.Error(t, err)
	return domain.AsError(err).Kind
}

func TestApplicationLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBadgeService()

	app := draftApplication(t, svc, owner)
	assert.Equal(t, models.ApplicationDraft, app.Status)
	assert.Equal(t, owner.ID, app.OwnerID)
	assert.Equal(t, 1, app.BadgeVersion)

	app, err := svc.Submit(ctx, owner, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationSubmitted, app.Status)

	// Submitting twice is an illegal transition.
	_, err = svc.Submit(ctx, owner, app.ID)
	assert.Equal(t, domain.KindInvalidStatus, kindOf(t, err))

	note := "well documented"
	app, err = svc.Accept(ctx, admin, app.ID, &note)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationAccepted, app.Status)
	require.NotNil(t, app.ReviewerID)
	assert.Equal(t, admin.ID, *app.ReviewerID)
	require.NotNil(t, app.ReviewNote)
	assert.Equal(t, note, *app.ReviewNote)
	assert.NotNil(t, app.ReviewedAt)
}

func TestSubmitRequiresApplicationDate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBadgeService()

	app, err := svc.Create(ctx, owner, service.CreateApplicationRequest{
		BadgeID:    "badge-k8s",
		BadgeTitle: "Kubernetes Operator",
		Category:   "technical",
		Level:      "gold",
	})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, owner, app.ID)
	assert.Equal(t, domain.KindValidation, kindOf(t, err))

	date := time.Now().UTC()
	_, err = svc.UpdateDraft(ctx, owner, app.ID, service.UpdateDraftRequest{ApplicationDate: &date})
	require.NoError(t, err)

	app, err = svc.Submit(ctx, owner, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationSubmitted, app.Status)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBadgeService()

	_, err := svc.Create(ctx, owner, service.CreateApplicationRequest{BadgeTitle: "x", Category: "technical", Level: "gold"})
	assert.Equal(t, domain.KindValidation, kindOf(t, err))

	_, err = svc.Create(ctx, owner, service.CreateApplicationRequest{BadgeID: "b", BadgeTitle: "x", Level: "gold"})
	assert.Equal(t, domain.KindValidation, kindOf(t, err))
}

func TestApplicationOwnership(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBadgeService()

	app := draftApplication(t, svc, owner)

	_, err := svc.Get(ctx, other, app.ID)
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))

	// Admins may read anything.
	_, err = svc.Get(ctx, admin, app.ID)
	assert.NoError(t, err)

	_, err = svc.Submit(ctx, other, app.ID)
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))

	comment := "mine now"
	_, err = svc.UpdateDraft(ctx, other, app.ID, service.UpdateDraftRequest{Comment: &comment})
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))
}

func TestReviewIsAdminOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBadgeService()

	app := draftApplication(t, svc, owner)
	_, err := svc.Submit(ctx, owner, app.ID)
	require.NoError(t, err)

	_, err = svc.Accept(ctx, owner, app.ID, nil)
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))
	_, err = svc.Reject(ctx, other, app.ID, nil)
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))
}

func TestRejectAndReopen(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBadgeService()

	app := draftApplication(t, svc, owner)
	_, err := svc.Submit(ctx, owner, app.ID)
	require.NoError(t, err)

	note := "evidence missing"
	app, err = svc.Reject(ctx, admin, app.ID, &note)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationRejected, app.Status)

	_, err = svc.Reopen(ctx, other, app.ID)
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))

	app, err = svc.Reopen(ctx, owner, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationDraft, app.Status)
	// Reopen clears the previous review.
	assert.Nil(t, app.ReviewerID)
	assert.Nil(t, app.ReviewedAt)
	assert.Nil(t, app.ReviewNote)
}

func TestDeleteApplication(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBadgeService()

	app := draftApplication(t, svc, owner)
	require.NoError(t, svc.Delete(ctx, owner, app.ID))

	_, err := svc.Get(ctx, owner, app.ID)
	assert.Equal(t, domain.KindNotFound, kindOf(t, err))

	// Only drafts can be deleted.
	app = draftApplication(t, svc, owner)
	_, err = svc.Submit(ctx, owner, app.ID)
	require.NoError(t, err)
	err = svc.Delete(ctx, owner, app.ID)
	assert.Equal(t, domain.KindInvalidStatus, kindOf(t, err))
}

func TestListForReview(t *testing.T) {
	ctx := context.Background()
	svc, _ := newBadgeService()

	first := draftApplication(t, svc, owner)
	second := draftApplication(t, svc, other)
	_, err := svc.Submit(ctx, owner, first.ID)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, other, second.ID)
	require.NoError(t, err)

	_, err = svc.ListForReview(ctx, owner)
	assert.Equal(t, domain.KindForbidden, kindOf(t, err))

	pending, err := svc.ListForReview(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	mine, err := svc.ListMine(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)
}
