package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meritbase/badgetrack/internal/domain"
	"github.com/meritbase/badgetrack/internal/models"
)

// MemoryStore is an in-process Store used for local development and service
// tests. It upholds the same invariants as PGStore, including reservation
// exclusivity, behind a single mutex; it is not suitable for multi-process
// deployments.
type MemoryStore struct {
	mu           sync.RWMutex
	applications map[uuid.UUID]models.BadgeApplication
	templates    map[uuid.UUID]models.PromotionTemplate
	promotions   map[uuid.UUID]models.Promotion
	reservations map[uuid.UUID]models.Reservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		applications: map[uuid.UUID]models.BadgeApplication{},
		templates:    map[uuid.UUID]models.PromotionTemplate{},
		promotions:   map[uuid.UUID]models.Promotion{},
		reservations: map[uuid.UUID]models.Reservation{},
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) CreateApplication(ctx context.Context, in ApplicationInput) (models.BadgeApplication, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.BadgeVersion <= 0 {
		in.BadgeVersion = 1
	}
	now := time.Now().UTC()
	app := models.BadgeApplication{
		ID:              in.ID,
		OwnerID:         in.OwnerID,
		BadgeID:         in.BadgeID,
		BadgeTitle:      in.BadgeTitle,
		Category:        in.Category,
		Level:           in.Level,
		BadgeVersion:    in.BadgeVersion,
		ApplicationDate: in.ApplicationDate,
		Comment:         in.Comment,
		Status:          models.ApplicationDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applications[app.ID] = app
	return app, nil
}

func (m *MemoryStore) GetApplication(ctx context.Context, id uuid.UUID) (models.BadgeApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.applications[id]
	if !ok {
		return models.BadgeApplication{}, ErrNotFound
	}
	return app, nil
}

func (m *MemoryStore) UpdateApplicationDraft(ctx context.Context, id uuid.UUID, upd ApplicationUpdate) (models.BadgeApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.applications[id]
	if !ok || app.Status != models.ApplicationDraft {
		return models.BadgeApplication{}, ErrStaleStatus
	}
	if upd.ApplicationDate != nil {
		d := *upd.ApplicationDate
		app.ApplicationDate = &d
	}
	if upd.Comment != nil {
		app.Comment = *upd.Comment
	}
	app.UpdatedAt = time.Now().UTC()
	m.applications[id] = app
	return app, nil
}

func (m *MemoryStore) SetApplicationStatus(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, review *Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setApplicationStatusLocked(id, from, to, review)
}

func (m *MemoryStore) setApplicationStatusLocked(id uuid.UUID, from, to models.ApplicationStatus, review *Review) error {
	app, ok := m.applications[id]
	if !ok || app.Status != from {
		return ErrStaleStatus
	}
	app.Status = to
	app.UpdatedAt = time.Now().UTC()
	if review != nil {
		reviewer := review.ReviewerID
		at := review.At
		app.ReviewerID = &reviewer
		app.ReviewedAt = &at
		app.ReviewNote = review.Note
	} else if to == models.ApplicationDraft {
		app.ReviewerID = nil
		app.ReviewedAt = nil
		app.ReviewNote = nil
	}
	m.applications[id] = app
	return nil
}

func (m *MemoryStore) DeleteApplication(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, resv := range m.reservations {
		if resv.BadgeApplicationID == id && !resv.Consumed {
			return ErrApplicationReserved
		}
	}
	app, ok := m.applications[id]
	if !ok || app.Status != models.ApplicationDraft {
		return ErrStaleStatus
	}
	delete(m.applications, id)
	return nil
}

func (m *MemoryStore) ListApplicationsByOwner(ctx context.Context, ownerID string) ([]models.BadgeApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var apps []models.BadgeApplication
	for _, app := range m.applications {
		if app.OwnerID == ownerID {
			apps = append(apps, app)
		}
	}
	sortApplications(apps)
	return apps, nil
}

func (m *MemoryStore) ListApplicationsByStatus(ctx context.Context, status models.ApplicationStatus) ([]models.BadgeApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var apps []models.BadgeApplication
	for _, app := range m.applications {
		if app.Status == status {
			apps = append(apps, app)
		}
	}
	sortApplications(apps)
	return apps, nil
}

func sortApplications(apps []models.BadgeApplication) {
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.Before(apps[j].CreatedAt) })
}

func (m *MemoryStore) CreateTemplate(ctx context.Context, in TemplateInput) (models.PromotionTemplate, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	tmpl := models.PromotionTemplate{
		ID:         in.ID,
		CareerPath: in.CareerPath,
		FromLevel:  in.FromLevel,
		ToLevel:    in.ToLevel,
		Rules:      append(json.RawMessage(nil), in.Rules...),
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tmpl.ID] = tmpl
	return tmpl, nil
}

func (m *MemoryStore) GetTemplate(ctx context.Context, id uuid.UUID) (models.PromotionTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tmpl, ok := m.templates[id]
	if !ok {
		return models.PromotionTemplate{}, ErrNotFound
	}
	return tmpl, nil
}

func (m *MemoryStore) ListActiveTemplates(ctx context.Context) ([]models.PromotionTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var tmpls []models.PromotionTemplate
	for _, tmpl := range m.templates {
		if tmpl.IsActive {
			tmpls = append(tmpls, tmpl)
		}
	}
	sort.Slice(tmpls, func(i, j int) bool { return tmpls[i].CreatedAt.Before(tmpls[j].CreatedAt) })
	return tmpls, nil
}

func (m *MemoryStore) DeactivateTemplate(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tmpl, ok := m.templates[id]
	if !ok {
		return ErrNotFound
	}
	tmpl.IsActive = false
	m.templates[id] = tmpl
	return nil
}

func (m *MemoryStore) CreatePromotion(ctx context.Context, in PromotionInput) (models.Promotion, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	now := time.Now().UTC()
	promo := models.Promotion{
		ID:         in.ID,
		TemplateID: in.TemplateID,
		OwnerID:    in.OwnerID,
		Status:     models.PromotionDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promotions[promo.ID] = promo
	return promo, nil
}

func (m *MemoryStore) GetPromotion(ctx context.Context, id uuid.UUID) (models.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	promo, ok := m.promotions[id]
	if !ok {
		return models.Promotion{}, ErrNotFound
	}
	return promo, nil
}

func (m *MemoryStore) ListPromotionsByOwner(ctx context.Context, ownerID string) ([]models.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var promos []models.Promotion
	for _, promo := range m.promotions {
		if promo.OwnerID == ownerID {
			promos = append(promos, promo)
		}
	}
	sortPromotions(promos)
	return promos, nil
}

func (m *MemoryStore) ListPromotionsByStatus(ctx context.Context, status models.PromotionStatus) ([]models.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var promos []models.Promotion
	for _, promo := range m.promotions {
		if promo.Status == status {
			promos = append(promos, promo)
		}
	}
	sortPromotions(promos)
	return promos, nil
}

func sortPromotions(promos []models.Promotion) {
	sort.Slice(promos, func(i, j int) bool { return promos[i].CreatedAt.Before(promos[j].CreatedAt) })
}

func (m *MemoryStore) SetPromotionStatus(ctx context.Context, id uuid.UUID, from, to models.PromotionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	promo, ok := m.promotions[id]
	if !ok || promo.Status != from {
		return ErrStaleStatus
	}
	promo.Status = to
	promo.UpdatedAt = time.Now().UTC()
	m.promotions[id] = promo
	return nil
}

func (m *MemoryStore) Reserve(ctx context.Context, promotionID, badgeApplicationID uuid.UUID) (models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, resv := range m.reservations {
		if resv.BadgeApplicationID == badgeApplicationID && !resv.Consumed {
			return models.Reservation{}, &domain.ReservationConflict{
				BadgeApplicationID: badgeApplicationID,
				HeldBy:             resv.PromotionID,
			}
		}
	}
	resv := models.Reservation{
		ID:                 uuid.New(),
		PromotionID:        promotionID,
		BadgeApplicationID: badgeApplicationID,
		CreatedAt:          time.Now().UTC(),
	}
	m.reservations[resv.ID] = resv
	return resv, nil
}

func (m *MemoryStore) ReleaseReservation(ctx context.Context, promotionID, badgeApplicationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, resv := range m.reservations {
		if resv.PromotionID == promotionID && resv.BadgeApplicationID == badgeApplicationID && !resv.Consumed {
			delete(m.reservations, id)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) ListReservedBadges(ctx context.Context, promotionID uuid.UUID) ([]models.ReservedBadge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listReservedBadgesLocked(promotionID), nil
}

func (m *MemoryStore) listReservedBadgesLocked(promotionID uuid.UUID) []models.ReservedBadge {
	var reserved []models.ReservedBadge
	for _, resv := range m.reservations {
		if resv.PromotionID != promotionID {
			continue
		}
		app, ok := m.applications[resv.BadgeApplicationID]
		if !ok {
			continue
		}
		reserved = append(reserved, models.ReservedBadge{
			Reservation: resv,
			OwnerID:     app.OwnerID,
			BadgeTitle:  app.BadgeTitle,
			Category:    app.Category,
			Level:       app.Level,
		})
	}
	sort.Slice(reserved, func(i, j int) bool { return reserved[i].CreatedAt.Before(reserved[j].CreatedAt) })
	return reserved
}

func (m *MemoryStore) FindActiveReservation(ctx context.Context, badgeApplicationID uuid.UUID) (models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, resv := range m.reservations {
		if resv.BadgeApplicationID == badgeApplicationID && !resv.Consumed {
			return resv, nil
		}
	}
	return models.Reservation{}, ErrNotFound
}

func (m *MemoryStore) ApprovePromotion(ctx context.Context, id uuid.UUID, dec Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	promo, ok := m.promotions[id]
	if !ok || promo.Status != models.PromotionSubmitted {
		return ErrStaleStatus
	}

	// Validate every reserved badge first so the whole operation applies or
	// nothing does, mirroring the single Postgres transaction.
	var held []uuid.UUID
	for rid, resv := range m.reservations {
		if resv.PromotionID != id || resv.Consumed {
			continue
		}
		app, ok := m.applications[resv.BadgeApplicationID]
		if !ok || app.Status != models.ApplicationAccepted {
			return ErrStaleStatus
		}
		held = append(held, rid)
	}

	for _, rid := range held {
		resv := m.reservations[rid]
		resv.Consumed = true
		m.reservations[rid] = resv
		app := m.applications[resv.BadgeApplicationID]
		app.Status = models.ApplicationUsed
		app.UpdatedAt = dec.At
		m.applications[resv.BadgeApplicationID] = app
	}

	decidedBy := dec.DecidedBy
	at := dec.At
	promo.Status = models.PromotionApproved
	promo.DecidedBy = &decidedBy
	promo.DecidedAt = &at
	promo.DecisionNote = dec.Note
	promo.UpdatedAt = at
	m.promotions[id] = promo
	return nil
}

func (m *MemoryStore) RejectPromotion(ctx context.Context, id uuid.UUID, dec Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	promo, ok := m.promotions[id]
	if !ok || promo.Status != models.PromotionSubmitted {
		return ErrStaleStatus
	}
	m.releaseAllLocked(id)

	decidedBy := dec.DecidedBy
	at := dec.At
	promo.Status = models.PromotionRejected
	promo.DecidedBy = &decidedBy
	promo.DecidedAt = &at
	promo.DecisionNote = dec.Note
	promo.UpdatedAt = at
	m.promotions[id] = promo
	return nil
}

func (m *MemoryStore) DeletePromotion(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	promo, ok := m.promotions[id]
	if !ok || promo.Status != models.PromotionDraft {
		return ErrStaleStatus
	}
	m.releaseAllLocked(id)
	delete(m.promotions, id)
	return nil
}

func (m *MemoryStore) releaseAllLocked(promotionID uuid.UUID) {
	for rid, resv := range m.reservations {
		if resv.PromotionID == promotionID && !resv.Consumed {
			delete(m.reservations, rid)
		}
	}
}

func (m *MemoryStore) CountsByStatus(ctx context.Context) (models.StatusCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := models.StatusCounts{
		Applications: map[models.ApplicationStatus]int{},
		Promotions:   map[models.PromotionStatus]int{},
	}
	for _, app := range m.applications {
		counts.Applications[app.Status]++
	}
	for _, promo := range m.promotions {
		counts.Promotions[promo.Status]++
	}
	return counts, nil
}
