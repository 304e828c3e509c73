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
	"github.com/meritbase/badgetrack/internal/store"
)

// BadgeService drives the badge-application state machine. Every mutation
// consults the lifecycle transition table and the actor's ownership/role
// before any row is touched.
type BadgeService struct {
	store  store.Store
	events *events.Producer
}

func NewBadgeService(st store.Store, producer *events.Producer) *BadgeService {
	return &BadgeService{store: st, events: producer}
}

// CreateApplicationRequest carries the frozen catalog-badge snapshot for a
// new draft.
type CreateApplicationRequest struct {
	BadgeID         string
	BadgeTitle      string
	Category        string
	Level           string
	BadgeVersion    int
	ApplicationDate *time.Time
	Comment         string
}

func (s *BadgeService) Create(ctx context.Context, actor auth.Actor, req CreateApplicationRequest) (models.BadgeApplication, error) {
	if req.BadgeID == "" || req.BadgeTitle == "" {
		return models.BadgeApplication{}, domain.Validationf("badgeId and badgeTitle are required")
	}
	if req.Category == "" || req.Level == "" {
		return models.BadgeApplication{}, domain.Validationf("category and level are required")
	}
	app, err := s.store.CreateApplication(ctx, store.ApplicationInput{
		OwnerID:         actor.ID,
		BadgeID:         req.BadgeID,
		BadgeTitle:      req.BadgeTitle,
		Category:        req.Category,
		Level:           req.Level,
		BadgeVersion:    req.BadgeVersion,
		ApplicationDate: req.ApplicationDate,
		Comment:         req.Comment,
	})
	if err != nil {
		return models.BadgeApplication{}, fmt.Errorf("create application: %w", err)
	}
	return app, nil
}

func (s *BadgeService) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (models.BadgeApplication, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return models.BadgeApplication{}, applicationStoreErr(err, id)
	}
	if app.OwnerID != actor.ID && !actor.Admin {
		return models.BadgeApplication{}, domain.Forbiddenf("badge application %s does not belong to you", id)
	}
	return app, nil
}

// UpdateDraftRequest patches a draft application; nil fields are untouched.
type UpdateDraftRequest struct {
	ApplicationDate *time.Time
	Comment         *string
}

func (s *BadgeService) UpdateDraft(ctx context.Context, actor auth.Actor, id uuid.UUID, req UpdateDraftRequest) (models.BadgeApplication, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return models.BadgeApplication{}, applicationStoreErr(err, id)
	}
	if app.OwnerID != actor.ID {
		return models.BadgeApplication{}, domain.Forbiddenf("badge application %s does not belong to you", id)
	}
	if app.Status != models.ApplicationDraft {
		return models.BadgeApplication{}, domain.InvalidStatus("badge application", "update", string(app.Status))
	}
	updated, err := s.store.UpdateApplicationDraft(ctx, id, store.ApplicationUpdate{
		ApplicationDate: req.ApplicationDate,
		Comment:         req.Comment,
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return models.BadgeApplication{}, domain.InvalidStatus("badge application", "update", string(app.Status))
		}
		return models.BadgeApplication{}, fmt.Errorf("update application: %w", err)
	}
	return updated, nil
}

// Submit moves a draft application into review. Owner only; the application
// date must already be populated.
func (s *BadgeService) Submit(ctx context.Context, actor auth.Actor, id uuid.UUID) (models.BadgeApplication, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return models.BadgeApplication{}, applicationStoreErr(err, id)
	}
	if app.OwnerID != actor.ID {
		return models.BadgeApplication{}, domain.Forbiddenf("only the owner may submit a badge application")
	}
	next, ok := lifecycle.ApplicationNext(app.Status, lifecycle.AppSubmit)
	if !ok {
		return models.BadgeApplication{}, domain.InvalidStatus("badge application", "submit", string(app.Status))
	}
	if app.ApplicationDate == nil {
		return models.BadgeApplication{}, domain.Validationf("applicationDate must be set before submitting")
	}
	if err := s.store.SetApplicationStatus(ctx, id, app.Status, next, nil); err != nil {
		return models.BadgeApplication{}, applicationTransitionErr(ctx, s.store, err, id, "submit")
	}
	return s.store.GetApplication(ctx, id)
}

// Accept approves a submitted application. Admin only.
func (s *BadgeService) Accept(ctx context.Context, actor auth.Actor, id uuid.UUID, note *string) (models.BadgeApplication, error) {
	return s.review(ctx, actor, id, lifecycle.AppAccept, note)
}

// Reject declines a submitted application. Admin only.
func (s *BadgeService) Reject(ctx context.Context, actor auth.Actor, id uuid.UUID, note *string) (models.BadgeApplication, error) {
	return s.review(ctx, actor, id, lifecycle.AppReject, note)
}

func (s *BadgeService) review(ctx context.Context, actor auth.Actor, id uuid.UUID, action lifecycle.ApplicationAction, note *string) (models.BadgeApplication, error) {
	if !actor.Admin {
		return models.BadgeApplication{}, domain.Forbiddenf("only an admin may review badge applications")
	}
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return models.BadgeApplication{}, applicationStoreErr(err, id)
	}
	next, ok := lifecycle.ApplicationNext(app.Status, action)
	if !ok {
		return models.BadgeApplication{}, domain.InvalidStatus("badge application", string(action), string(app.Status))
	}
	review := &store.Review{ReviewerID: actor.ID, Note: note, At: time.Now().UTC()}
	if err := s.store.SetApplicationStatus(ctx, id, app.Status, next, review); err != nil {
		return models.BadgeApplication{}, applicationTransitionErr(ctx, s.store, err, id, string(action))
	}

	eventType := events.TypeApplicationAccepted
	if action == lifecycle.AppReject {
		eventType = events.TypeApplicationRejected
	}
	s.events.Emit(ctx, events.DecisionEvent{
		Type:     eventType,
		EntityID: id.String(),
		OwnerID:  app.OwnerID,
		ActorID:  actor.ID,
	})
	return s.store.GetApplication(ctx, id)
}

// Reopen returns a rejected application to its owner's drafts for editing
// and resubmission. The previous review is cleared.
func (s *BadgeService) Reopen(ctx context.Context, actor auth.Actor, id uuid.UUID) (models.BadgeApplication, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return models.BadgeApplication{}, applicationStoreErr(err, id)
	}
	if app.OwnerID != actor.ID {
		return models.BadgeApplication{}, domain.Forbiddenf("only the owner may reopen a badge application")
	}
	next, ok := lifecycle.ApplicationNext(app.Status, lifecycle.AppReopen)
	if !ok {
		return models.BadgeApplication{}, domain.InvalidStatus("badge application", "reopen", string(app.Status))
	}
	if err := s.store.SetApplicationStatus(ctx, id, app.Status, next, nil); err != nil {
		return models.BadgeApplication{}, applicationTransitionErr(ctx, s.store, err, id, "reopen")
	}
	return s.store.GetApplication(ctx, id)
}

// Delete removes a draft application. Owner or admin.
func (s *BadgeService) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return applicationStoreErr(err, id)
	}
	if app.OwnerID != actor.ID && !actor.Admin {
		return domain.Forbiddenf("badge application %s does not belong to you", id)
	}
	if _, ok := lifecycle.ApplicationNext(app.Status, lifecycle.AppDelete); !ok {
		return domain.InvalidStatus("badge application", "delete", string(app.Status))
	}
	if err := s.store.DeleteApplication(ctx, id); err != nil {
		if errors.Is(err, store.ErrApplicationReserved) {
			return &domain.Error{
				Kind:    domain.KindReservationConflict,
				Message: fmt.Sprintf("badge application %s is still referenced by an active reservation", id),
			}
		}
		return applicationTransitionErr(ctx, s.store, err, id, "delete")
	}
	return nil
}

// ListMine returns the actor's own applications.
func (s *BadgeService) ListMine(ctx context.Context, actor auth.Actor) ([]models.BadgeApplication, error) {
	return s.store.ListApplicationsByOwner(ctx, actor.ID)
}

// ListForReview returns the submitted applications awaiting review. Admin
// only.
func (s *BadgeService) ListForReview(ctx context.Context, actor auth.Actor) ([]models.BadgeApplication, error) {
	if !actor.Admin {
		return nil, domain.Forbiddenf("only an admin may list applications for review")
	}
	return s.store.ListApplicationsByStatus(ctx, models.ApplicationSubmitted)
}

func applicationStoreErr(err error, id uuid.UUID) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFoundf("badge application %s not found", id)
	}
	return fmt.Errorf("load application: %w", err)
}

// applicationTransitionErr maps a failed status-guarded write. When the guard
// lost a race the row is re-read so the error names the status the entity
// actually has now.
func applicationTransitionErr(ctx context.Context, st store.Store, err error, id uuid.UUID, action string) error {
	if errors.Is(err, store.ErrStaleStatus) {
		current := "unknown"
		if app, rerr := st.GetApplication(ctx, id); rerr == nil {
			current = string(app.Status)
		}
		return domain.InvalidStatus("badge application", action, current)
	}
	return fmt.Errorf("%s application: %w", action, err)
}
