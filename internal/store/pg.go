package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/meritbase/badgetrack/internal/domain"
	"github.com/meritbase/badgetrack/internal/models"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// activeBadgeConstraint is the partial unique index over unconsumed
// reservations; a violation here is the reservation race losing.
const activeBadgeConstraint = "reservations_active_badge_key"

// PGStore is the Postgres-backed Store.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *PGStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const applicationColumns = `id, owner_id, badge_id, badge_title, category, level, badge_version,
	application_date, comment, status, reviewer_id, reviewed_at, review_note, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (models.BadgeApplication, error) {
	var (
		app             models.BadgeApplication
		applicationDate sql.NullTime
		reviewerID      sql.NullString
		reviewedAt      sql.NullTime
		reviewNote      sql.NullString
	)
	err := row.Scan(
		&app.ID,
		&app.OwnerID,
		&app.BadgeID,
		&app.BadgeTitle,
		&app.Category,
		&app.Level,
		&app.BadgeVersion,
		&applicationDate,
		&app.Comment,
		&app.Status,
		&reviewerID,
		&reviewedAt,
		&reviewNote,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return models.BadgeApplication{}, err
	}
	if applicationDate.Valid {
		t := applicationDate.Time
		app.ApplicationDate = &t
	}
	if reviewerID.Valid {
		app.ReviewerID = &reviewerID.String
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		app.ReviewedAt = &t
	}
	if reviewNote.Valid {
		app.ReviewNote = &reviewNote.String
	}
	return app, nil
}

func (s *PGStore) CreateApplication(ctx context.Context, in ApplicationInput) (models.BadgeApplication, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.BadgeVersion <= 0 {
		in.BadgeVersion = 1
	}
	query := `
		INSERT INTO badge_applications
		  (id, owner_id, badge_id, badge_title, category, level, badge_version, application_date, comment, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at
	`
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
	}
	if err := s.db.QueryRowContext(ctx, query,
		in.ID, in.OwnerID, in.BadgeID, in.BadgeTitle, in.Category, in.Level,
		in.BadgeVersion, in.ApplicationDate, in.Comment, models.ApplicationDraft,
	).Scan(&app.CreatedAt, &app.UpdatedAt); err != nil {
		return models.BadgeApplication{}, fmt.Errorf("insert application: %w", err)
	}
	return app, nil
}

func (s *PGStore) GetApplication(ctx context.Context, id uuid.UUID) (models.BadgeApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM badge_applications WHERE id = $1`
	app, err := scanApplication(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.BadgeApplication{}, ErrNotFound
		}
		return models.BadgeApplication{}, fmt.Errorf("select application: %w", err)
	}
	return app, nil
}

func (s *PGStore) UpdateApplicationDraft(ctx context.Context, id uuid.UUID, upd ApplicationUpdate) (models.BadgeApplication, error) {
	query := `
		UPDATE badge_applications
		SET application_date = COALESCE($2, application_date),
		    comment = COALESCE($3, comment),
		    updated_at = $4
		WHERE id = $1 AND status = 'draft'
		RETURNING ` + applicationColumns
	app, err := scanApplication(s.db.QueryRowContext(ctx, query, id, upd.ApplicationDate, upd.Comment, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.BadgeApplication{}, ErrStaleStatus
		}
		return models.BadgeApplication{}, fmt.Errorf("update application: %w", err)
	}
	return app, nil
}

func (s *PGStore) SetApplicationStatus(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, review *Review) error {
	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	switch {
	case review != nil:
		query := `
			UPDATE badge_applications
			SET status = $3, reviewer_id = $4, reviewed_at = $5, review_note = $6, updated_at = $5
			WHERE id = $1 AND status = $2
		`
		res, err = s.db.ExecContext(ctx, query, id, from, to, review.ReviewerID, review.At, review.Note)
	case to == models.ApplicationDraft:
		// Reopen clears the previous review.
		query := `
			UPDATE badge_applications
			SET status = $3, reviewer_id = NULL, reviewed_at = NULL, review_note = NULL, updated_at = $4
			WHERE id = $1 AND status = $2
		`
		res, err = s.db.ExecContext(ctx, query, id, from, to, now)
	default:
		query := `
			UPDATE badge_applications
			SET status = $3, updated_at = $4
			WHERE id = $1 AND status = $2
		`
		res, err = s.db.ExecContext(ctx, query, id, from, to, now)
	}
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	return requireOneRow(res, "update application status")
}

func (s *PGStore) DeleteApplication(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reservations WHERE badge_application_id = $1 AND NOT consumed`, id,
		).Scan(&active); err != nil {
			return fmt.Errorf("count active reservations: %w", err)
		}
		if active > 0 {
			return ErrApplicationReserved
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM badge_applications WHERE id = $1 AND status = 'draft'`, id)
		if err != nil {
			return fmt.Errorf("delete application: %w", err)
		}
		return requireOneRow(res, "delete application")
	})
}

func (s *PGStore) listApplications(ctx context.Context, query string, arg interface{}) ([]models.BadgeApplication, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	var apps []models.BadgeApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("applications rows err: %w", err)
	}
	return apps, nil
}

func (s *PGStore) ListApplicationsByOwner(ctx context.Context, ownerID string) ([]models.BadgeApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM badge_applications WHERE owner_id = $1 ORDER BY created_at ASC`
	return s.listApplications(ctx, query, ownerID)
}

func (s *PGStore) ListApplicationsByStatus(ctx context.Context, status models.ApplicationStatus) ([]models.BadgeApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM badge_applications WHERE status = $1 ORDER BY created_at ASC`
	return s.listApplications(ctx, query, status)
}

func (s *PGStore) CreateTemplate(ctx context.Context, in TemplateInput) (models.PromotionTemplate, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	query := `
		INSERT INTO promotion_templates (id, career_path, from_level, to_level, rules)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`
	tmpl := models.PromotionTemplate{
		ID:         in.ID,
		CareerPath: in.CareerPath,
		FromLevel:  in.FromLevel,
		ToLevel:    in.ToLevel,
		Rules:      in.Rules,
		IsActive:   true,
	}
	if err := s.db.QueryRowContext(ctx, query,
		in.ID, in.CareerPath, in.FromLevel, in.ToLevel, []byte(in.Rules),
	).Scan(&tmpl.CreatedAt); err != nil {
		return models.PromotionTemplate{}, fmt.Errorf("insert template: %w", err)
	}
	return tmpl, nil
}

func (s *PGStore) GetTemplate(ctx context.Context, id uuid.UUID) (models.PromotionTemplate, error) {
	query := `
		SELECT id, career_path, from_level, to_level, rules, is_active, created_at
		FROM promotion_templates WHERE id = $1
	`
	var (
		tmpl  models.PromotionTemplate
		rules []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&tmpl.ID, &tmpl.CareerPath, &tmpl.FromLevel, &tmpl.ToLevel, &rules, &tmpl.IsActive, &tmpl.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PromotionTemplate{}, ErrNotFound
		}
		return models.PromotionTemplate{}, fmt.Errorf("select template: %w", err)
	}
	tmpl.Rules = append([]byte(nil), rules...)
	return tmpl, nil
}

func (s *PGStore) ListActiveTemplates(ctx context.Context) ([]models.PromotionTemplate, error) {
	query := `
		SELECT id, career_path, from_level, to_level, rules, is_active, created_at
		FROM promotion_templates WHERE is_active ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var tmpls []models.PromotionTemplate
	for rows.Next() {
		var (
			tmpl  models.PromotionTemplate
			rules []byte
		)
		if err := rows.Scan(&tmpl.ID, &tmpl.CareerPath, &tmpl.FromLevel, &tmpl.ToLevel, &rules, &tmpl.IsActive, &tmpl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		tmpl.Rules = append([]byte(nil), rules...)
		tmpls = append(tmpls, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("templates rows err: %w", err)
	}
	return tmpls, nil
}

func (s *PGStore) DeactivateTemplate(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE promotion_templates SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate template rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) CreatePromotion(ctx context.Context, in PromotionInput) (models.Promotion, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	query := `
		INSERT INTO promotions (id, template_id, owner_id, status)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at
	`
	promo := models.Promotion{
		ID:         in.ID,
		TemplateID: in.TemplateID,
		OwnerID:    in.OwnerID,
		Status:     models.PromotionDraft,
	}
	if err := s.db.QueryRowContext(ctx, query,
		in.ID, in.TemplateID, in.OwnerID, models.PromotionDraft,
	).Scan(&promo.CreatedAt, &promo.UpdatedAt); err != nil {
		return models.Promotion{}, fmt.Errorf("insert promotion: %w", err)
	}
	return promo, nil
}

const promotionColumns = `id, template_id, owner_id, status, decided_by, decided_at, decision_note, created_at, updated_at`

func scanPromotion(row rowScanner) (models.Promotion, error) {
	var (
		promo        models.Promotion
		decidedBy    sql.NullString
		decidedAt    sql.NullTime
		decisionNote sql.NullString
	)
	err := row.Scan(
		&promo.ID,
		&promo.TemplateID,
		&promo.OwnerID,
		&promo.Status,
		&decidedBy,
		&decidedAt,
		&decisionNote,
		&promo.CreatedAt,
		&promo.UpdatedAt,
	)
	if err != nil {
		return models.Promotion{}, err
	}
	if decidedBy.Valid {
		promo.DecidedBy = &decidedBy.String
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		promo.DecidedAt = &t
	}
	if decisionNote.Valid {
		promo.DecisionNote = &decisionNote.String
	}
	return promo, nil
}

func (s *PGStore) GetPromotion(ctx context.Context, id uuid.UUID) (models.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`
	promo, err := scanPromotion(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Promotion{}, ErrNotFound
		}
		return models.Promotion{}, fmt.Errorf("select promotion: %w", err)
	}
	return promo, nil
}

func (s *PGStore) listPromotions(ctx context.Context, query string, arg interface{}) ([]models.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query promotions: %w", err)
	}
	defer rows.Close()

	var promos []models.Promotion
	for rows.Next() {
		promo, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		promos = append(promos, promo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("promotions rows err: %w", err)
	}
	return promos, nil
}

func (s *PGStore) ListPromotionsByOwner(ctx context.Context, ownerID string) ([]models.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE owner_id = $1 ORDER BY created_at ASC`
	return s.listPromotions(ctx, query, ownerID)
}

func (s *PGStore) ListPromotionsByStatus(ctx context.Context, status models.PromotionStatus) ([]models.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE status = $1 ORDER BY created_at ASC`
	return s.listPromotions(ctx, query, status)
}

func (s *PGStore) SetPromotionStatus(ctx context.Context, id uuid.UUID, from, to models.PromotionStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE promotions SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update promotion status: %w", err)
	}
	return requireOneRow(res, "update promotion status")
}

// Reserve inserts an unconsumed reservation row. The exclusivity invariant is
// enforced by the partial unique index, not a check-then-insert: when two
// transactions race for the same badge, exactly one insert commits and the
// loser's 23505 is translated into a domain.ReservationConflict naming the
// holder.
func (s *PGStore) Reserve(ctx context.Context, promotionID, badgeApplicationID uuid.UUID) (models.Reservation, error) {
	id := uuid.New()
	query := `
		INSERT INTO reservations (id, promotion_id, badge_application_id, consumed)
		VALUES ($1,$2,$3,FALSE)
		RETURNING created_at
	`
	resv := models.Reservation{
		ID:                 id,
		PromotionID:        promotionID,
		BadgeApplicationID: badgeApplicationID,
	}
	err := s.db.QueryRowContext(ctx, query, id, promotionID, badgeApplicationID).Scan(&resv.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation && pqErr.Constraint == activeBadgeConstraint {
			conflict := &domain.ReservationConflict{BadgeApplicationID: badgeApplicationID}
			if holder, herr := s.FindActiveReservation(ctx, badgeApplicationID); herr == nil {
				conflict.HeldBy = holder.PromotionID
			}
			return models.Reservation{}, conflict
		}
		return models.Reservation{}, fmt.Errorf("insert reservation: %w", err)
	}
	return resv, nil
}

func (s *PGStore) ReleaseReservation(ctx context.Context, promotionID, badgeApplicationID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM reservations
		WHERE promotion_id = $1 AND badge_application_id = $2 AND NOT consumed
	`, promotionID, badgeApplicationID)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reservation rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListReservedBadges(ctx context.Context, promotionID uuid.UUID) ([]models.ReservedBadge, error) {
	query := `
		SELECT r.id, r.promotion_id, r.badge_application_id, r.consumed, r.created_at,
		       a.owner_id, a.badge_title, a.category, a.level
		FROM reservations r
		JOIN badge_applications a ON a.id = r.badge_application_id
		WHERE r.promotion_id = $1
		ORDER BY r.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, promotionID)
	if err != nil {
		return nil, fmt.Errorf("query reserved badges: %w", err)
	}
	defer rows.Close()

	var reserved []models.ReservedBadge
	for rows.Next() {
		var rb models.ReservedBadge
		if err := rows.Scan(
			&rb.ID, &rb.PromotionID, &rb.BadgeApplicationID, &rb.Consumed, &rb.CreatedAt,
			&rb.OwnerID, &rb.BadgeTitle, &rb.Category, &rb.Level,
		); err != nil {
			return nil, fmt.Errorf("scan reserved badge: %w", err)
		}
		reserved = append(reserved, rb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reserved badges rows err: %w", err)
	}
	return reserved, nil
}

func (s *PGStore) FindActiveReservation(ctx context.Context, badgeApplicationID uuid.UUID) (models.Reservation, error) {
	query := `
		SELECT id, promotion_id, badge_application_id, consumed, created_at
		FROM reservations
		WHERE badge_application_id = $1 AND NOT consumed
	`
	var resv models.Reservation
	err := s.db.QueryRowContext(ctx, query, badgeApplicationID).Scan(
		&resv.ID, &resv.PromotionID, &resv.BadgeApplicationID, &resv.Consumed, &resv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reservation{}, ErrNotFound
		}
		return models.Reservation{}, fmt.Errorf("select active reservation: %w", err)
	}
	return resv, nil
}

// ApprovePromotion finalizes a submitted promotion in one transaction:
// promotion status, reservation consumption and the badge transitions to
// used_in_promotion all commit together or not at all.
func (s *PGStore) ApprovePromotion(ctx context.Context, id uuid.UUID, dec Decision) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE promotions
			SET status = 'approved', decided_by = $2, decided_at = $3, decision_note = $4, updated_at = $3
			WHERE id = $1 AND status = 'submitted'
		`, id, dec.DecidedBy, dec.At, dec.Note)
		if err != nil {
			return fmt.Errorf("approve promotion: %w", err)
		}
		if err := requireOneRow(res, "approve promotion"); err != nil {
			return err
		}

		badgeRes, err := tx.ExecContext(ctx, `
			UPDATE badge_applications
			SET status = 'used_in_promotion', updated_at = $2
			WHERE status = 'accepted' AND id IN (
				SELECT badge_application_id FROM reservations
				WHERE promotion_id = $1 AND NOT consumed
			)
		`, id, dec.At)
		if err != nil {
			return fmt.Errorf("mark badges used: %w", err)
		}
		badges, err := badgeRes.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark badges used rows: %w", err)
		}

		consumeRes, err := tx.ExecContext(ctx, `
			UPDATE reservations SET consumed = TRUE
			WHERE promotion_id = $1 AND NOT consumed
		`, id)
		if err != nil {
			return fmt.Errorf("consume reservations: %w", err)
		}
		consumed, err := consumeRes.RowsAffected()
		if err != nil {
			return fmt.Errorf("consume reservations rows: %w", err)
		}

		// Every unconsumed reservation must map to exactly one accepted
		// badge; a mismatch means the data drifted and nothing may commit.
		if badges != consumed {
			return fmt.Errorf("approve promotion %s: %d reservations but %d accepted badges", id, consumed, badges)
		}
		return nil
	})
}

// RejectPromotion stores the decision and releases every reservation the
// promotion held, atomically.
func (s *PGStore) RejectPromotion(ctx context.Context, id uuid.UUID, dec Decision) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE promotions
			SET status = 'rejected', decided_by = $2, decided_at = $3, decision_note = $4, updated_at = $3
			WHERE id = $1 AND status = 'submitted'
		`, id, dec.DecidedBy, dec.At, dec.Note)
		if err != nil {
			return fmt.Errorf("reject promotion: %w", err)
		}
		if err := requireOneRow(res, "reject promotion"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM reservations WHERE promotion_id = $1 AND NOT consumed
		`, id); err != nil {
			return fmt.Errorf("release reservations: %w", err)
		}
		return nil
	})
}

// DeletePromotion removes a draft promotion and releases its reservations,
// atomically.
func (s *PGStore) DeletePromotion(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM reservations WHERE promotion_id = $1 AND NOT consumed
		`, id); err != nil {
			return fmt.Errorf("release reservations: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			DELETE FROM promotions WHERE id = $1 AND status = 'draft'
		`, id)
		if err != nil {
			return fmt.Errorf("delete promotion: %w", err)
		}
		return requireOneRow(res, "delete promotion")
	})
}

func (s *PGStore) CountsByStatus(ctx context.Context) (models.StatusCounts, error) {
	counts := models.StatusCounts{
		Applications: map[models.ApplicationStatus]int{},
		Promotions:   map[models.PromotionStatus]int{},
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM badge_applications GROUP BY status`)
	if err != nil {
		return models.StatusCounts{}, fmt.Errorf("count applications: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status models.ApplicationStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return models.StatusCounts{}, fmt.Errorf("scan application count: %w", err)
		}
		counts.Applications[status] = n
	}
	if err := rows.Err(); err != nil {
		return models.StatusCounts{}, fmt.Errorf("application counts rows err: %w", err)
	}

	promoRows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM promotions GROUP BY status`)
	if err != nil {
		return models.StatusCounts{}, fmt.Errorf("count promotions: %w", err)
	}
	defer promoRows.Close()
	for promoRows.Next() {
		var (
			status models.PromotionStatus
			n      int
		)
		if err := promoRows.Scan(&status, &n); err != nil {
			return models.StatusCounts{}, fmt.Errorf("scan promotion count: %w", err)
		}
		counts.Promotions[status] = n
	}
	if err := promoRows.Err(); err != nil {
		return models.StatusCounts{}, fmt.Errorf("promotion counts rows err: %w", err)
	}
	return counts, nil
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}
