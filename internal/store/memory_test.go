package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meritbase/badgetrack/internal/domain"
	"github.com/meritbase/badgetrack/internal/models"
	"github.com/meritbase/badgetrack/internal/store"
)

func TestReserveConcurrentExclusivity(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore()
	badgeID := uuid.New()

	const racers = 8
	promoIDs := make([]uuid.UUID, racers)
	for i := range promoIDs {
		promoIDs[i] = uuid.New()
	}

	// All racers fire at once; the mutex decides the winner the way the
	// partial unique index does in Postgres.
	var (
		start      sync.WaitGroup
		done       sync.WaitGroup
		mu         sync.Mutex
		winners    []uuid.UUID
		conflict   []*domain.ReservationConflict
		unexpected []error
	)
	start.Add(1)
	for i := 0; i < racers; i++ {
		done.Add(1)
		go func(promoID uuid.UUID) {
			defer done.Done()
			start.Wait()
			resv, err := m.Reserve(ctx, promoID, badgeID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, resv.PromotionID)
				return
			}
			var rc *domain.ReservationConflict
			if errors.As(err, &rc) {
				conflict = append(conflict, rc)
				return
			}
			unexpected = append(unexpected, err)
		}(promoIDs[i])
	}
	start.Done()
	done.Wait()

	// Exactly one reservation exists; every loser saw the winner as holder.
	require.Empty(t, unexpected)
	require.Len(t, winners, 1)
	assert.Len(t, conflict, racers-1)
	for _, rc := range conflict {
		assert.Equal(t, badgeID, rc.BadgeApplicationID)
		assert.Equal(t, winners[0], rc.HeldBy)
	}

	held, err := m.FindActiveReservation(ctx, badgeID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], held.PromotionID)
}

func TestMemoryReserveAfterConsumeIsAllowed(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore()

	app, err := m.CreateApplication(ctx, store.ApplicationInput{OwnerID: "user-1", BadgeID: "b", BadgeTitle: "B", Category: "technical", Level: "gold"})
	require.NoError(t, err)
	require.NoError(t, m.SetApplicationStatus(ctx, app.ID, models.ApplicationDraft, models.ApplicationSubmitted, nil))
	require.NoError(t, m.SetApplicationStatus(ctx, app.ID, models.ApplicationSubmitted, models.ApplicationAccepted, nil))

	tmpl, err := m.CreateTemplate(ctx, store.TemplateInput{CareerPath: "eng", FromLevel: "senior", ToLevel: "staff", Rules: []byte(`[]`)})
	require.NoError(t, err)
	promo, err := m.CreatePromotion(ctx, store.PromotionInput{TemplateID: tmpl.ID, OwnerID: "user-1"})
	require.NoError(t, err)

	_, err = m.Reserve(ctx, promo.ID, app.ID)
	require.NoError(t, err)
	require.NoError(t, m.SetPromotionStatus(ctx, promo.ID, models.PromotionDraft, models.PromotionSubmitted))
	require.NoError(t, m.ApprovePromotion(ctx, promo.ID, store.Decision{DecidedBy: "admin-1"}))

	// Exclusivity binds unconsumed rows only. A consumed reservation no
	// longer blocks, matching the WHERE NOT consumed partial index.
	other, err := m.CreatePromotion(ctx, store.PromotionInput{TemplateID: tmpl.ID, OwnerID: "user-1"})
	require.NoError(t, err)
	_, err = m.Reserve(ctx, other.ID, app.ID)
	assert.NoError(t, err)
}
