package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ApplicationStatus is the lifecycle status of a badge application.
type ApplicationStatus string

const (
	ApplicationDraft     ApplicationStatus = "draft"
	ApplicationSubmitted ApplicationStatus = "submitted"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationUsed      ApplicationStatus = "used_in_promotion"
)

// PromotionStatus is the lifecycle status of a promotion.
type PromotionStatus string

const (
	PromotionDraft     PromotionStatus = "draft"
	PromotionSubmitted PromotionStatus = "submitted"
	PromotionApproved  PromotionStatus = "approved"
	PromotionRejected  PromotionStatus = "rejected"
)

// BadgeApplication is a user's claim to have earned a catalog badge. The badge
// category, level and version are frozen at creation time so later catalog
// edits never change the eligibility of an in-flight promotion.
type BadgeApplication struct {
	ID              uuid.UUID         `json:"id"`
	OwnerID         string            `json:"ownerId"`
	BadgeID         string            `json:"badgeId"`
	BadgeTitle      string            `json:"badgeTitle"`
	Category        string            `json:"category"`
	Level           string            `json:"level"`
	BadgeVersion    int               `json:"badgeVersion"`
	ApplicationDate *time.Time        `json:"applicationDate,omitempty"`
	Comment         string            `json:"comment,omitempty"`
	Status          ApplicationStatus `json:"status"`
	ReviewerID      *string           `json:"reviewerId,omitempty"`
	ReviewedAt      *time.Time        `json:"reviewedAt,omitempty"`
	ReviewNote      *string           `json:"reviewNote,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// PromotionTemplate fixes the rule set a promotion must satisfy. Rules are
// stored as the raw JSON snapshot taken at creation; templates are never
// edited, only deactivated.
type PromotionTemplate struct {
	ID         uuid.UUID       `json:"id"`
	CareerPath string          `json:"careerPath"`
	FromLevel  string          `json:"fromLevel"`
	ToLevel    string          `json:"toLevel"`
	Rules      json.RawMessage `json:"rules"`
	IsActive   bool            `json:"isActive"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Promotion bundles reserved badge applications into an advancement request.
type Promotion struct {
	ID           uuid.UUID       `json:"id"`
	TemplateID   uuid.UUID       `json:"templateId"`
	OwnerID      string          `json:"ownerId"`
	Status       PromotionStatus `json:"status"`
	DecidedBy    *string         `json:"decidedBy,omitempty"`
	DecidedAt    *time.Time      `json:"decidedAt,omitempty"`
	DecisionNote *string         `json:"decisionNote,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Reservation is the join row through which a promotion claims an accepted
// badge application. While consumed is false the claim is exclusive: the
// storage layer guarantees at most one unconsumed row per badge application.
type Reservation struct {
	ID                 uuid.UUID `json:"id"`
	PromotionID        uuid.UUID `json:"promotionId"`
	BadgeApplicationID uuid.UUID `json:"badgeApplicationId"`
	Consumed           bool      `json:"consumed"`
	CreatedAt          time.Time `json:"createdAt"`
}

// ReservedBadge is a reservation joined with the frozen badge attributes the
// rule engine needs. Ordered by reservation time.
type ReservedBadge struct {
	Reservation
	OwnerID    string `json:"ownerId"`
	BadgeTitle string `json:"badgeTitle"`
	Category   string `json:"category"`
	Level      string `json:"level"`
}

// StatusCounts reports true per-status totals for the admin dashboard.
type StatusCounts struct {
	Applications map[ApplicationStatus]int `json:"applications"`
	Promotions   map[PromotionStatus]int   `json:"promotions"`
}
