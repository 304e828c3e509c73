package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/meritbase/badgetrack/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrStaleStatus means a status-guarded write matched zero rows: the row
	// moved to another status between the caller's read and the write.
	ErrStaleStatus = errors.New("status changed concurrently")

	// ErrApplicationReserved blocks deleting an application that an
	// unconsumed reservation still references.
	ErrApplicationReserved = errors.New("application is referenced by an active reservation")
)

// ApplicationInput creates a draft badge application. Category, level and
// version are the frozen snapshot of the catalog badge.
type ApplicationInput struct {
	ID              uuid.UUID
	OwnerID         string
	BadgeID         string
	BadgeTitle      string
	Category        string
	Level           string
	BadgeVersion    int
	ApplicationDate *time.Time
	Comment         string
}

// ApplicationUpdate patches a draft application; nil fields are untouched.
type ApplicationUpdate struct {
	ApplicationDate *time.Time
	Comment         *string
}

// Review carries the reviewer metadata written by accept/reject.
type Review struct {
	ReviewerID string
	Note       *string
	At         time.Time
}

// TemplateInput creates a promotion template. Rules is the validated JSON
// snapshot.
type TemplateInput struct {
	ID         uuid.UUID
	CareerPath string
	FromLevel  string
	ToLevel    string
	Rules      json.RawMessage
}

// PromotionInput creates a draft promotion.
type PromotionInput struct {
	ID         uuid.UUID
	TemplateID uuid.UUID
	OwnerID    string
}

// Decision carries the admin metadata written by approve/reject.
type Decision struct {
	DecidedBy string
	Note      *string
	At        time.Time
}

// Store is the persistence contract for the badge and promotion subsystem.
// Multi-row operations (ApprovePromotion, RejectPromotion, DeletePromotion,
// DeleteApplication) are atomic: all rows change together or none do.
type Store interface {
	// Badge applications.
	CreateApplication(ctx context.Context, in ApplicationInput) (models.BadgeApplication, error)
	GetApplication(ctx context.Context, id uuid.UUID) (models.BadgeApplication, error)
	UpdateApplicationDraft(ctx context.Context, id uuid.UUID, upd ApplicationUpdate) (models.BadgeApplication, error)
	// SetApplicationStatus performs a status-guarded transition. A non-nil
	// review sets the reviewer metadata; the rejected->draft reopen clears it.
	SetApplicationStatus(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, review *Review) error
	DeleteApplication(ctx context.Context, id uuid.UUID) error
	ListApplicationsByOwner(ctx context.Context, ownerID string) ([]models.BadgeApplication, error)
	ListApplicationsByStatus(ctx context.Context, status models.ApplicationStatus) ([]models.BadgeApplication, error)

	// Templates.
	CreateTemplate(ctx context.Context, in TemplateInput) (models.PromotionTemplate, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (models.PromotionTemplate, error)
	ListActiveTemplates(ctx context.Context) ([]models.PromotionTemplate, error)
	DeactivateTemplate(ctx context.Context, id uuid.UUID) error

	// Promotions.
	CreatePromotion(ctx context.Context, in PromotionInput) (models.Promotion, error)
	GetPromotion(ctx context.Context, id uuid.UUID) (models.Promotion, error)
	ListPromotionsByOwner(ctx context.Context, ownerID string) ([]models.Promotion, error)
	ListPromotionsByStatus(ctx context.Context, status models.PromotionStatus) ([]models.Promotion, error)
	SetPromotionStatus(ctx context.Context, id uuid.UUID, from, to models.PromotionStatus) error

	// Reservation ledger.
	Reserve(ctx context.Context, promotionID, badgeApplicationID uuid.UUID) (models.Reservation, error)
	ReleaseReservation(ctx context.Context, promotionID, badgeApplicationID uuid.UUID) error
	ListReservedBadges(ctx context.Context, promotionID uuid.UUID) ([]models.ReservedBadge, error)
	FindActiveReservation(ctx context.Context, badgeApplicationID uuid.UUID) (models.Reservation, error)

	// Atomic promotion decisions.
	ApprovePromotion(ctx context.Context, id uuid.UUID, dec Decision) error
	RejectPromotion(ctx context.Context, id uuid.UUID, dec Decision) error
	DeletePromotion(ctx context.Context, id uuid.UUID) error

	CountsByStatus(ctx context.Context) (models.StatusCounts, error)
	Ping(ctx context.Context) error
}
