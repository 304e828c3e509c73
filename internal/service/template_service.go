package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/meritbase/badgetrack/internal/auth"
	"github.com/meritbase/badgetrack/internal/domain"
	"github.com/meritbase/badgetrack/internal/models"
	"github.com/meritbase/badgetrack/internal/rules"
	"github.com/meritbase/badgetrack/internal/store"
)

// TemplateService manages promotion templates. Templates are immutable after
// creation: deactivation only hides them from new promotions, so existing
// promotions keep the rule snapshot they were created against.
type TemplateService struct {
	store store.Store
}

func NewTemplateService(st store.Store) *TemplateService {
	return &TemplateService{store: st}
}

// CreateTemplateRequest carries a new template and its raw rule list.
type CreateTemplateRequest struct {
	CareerPath string
	FromLevel  string
	ToLevel    string
	Rules      []byte
}

func (s *TemplateService) Create(ctx context.Context, actor auth.Actor, req CreateTemplateRequest) (models.PromotionTemplate, error) {
	if !actor.Admin {
		return models.PromotionTemplate{}, domain.Forbiddenf("only an admin may create templates")
	}
	if req.CareerPath == "" || req.FromLevel == "" || req.ToLevel == "" {
		return models.PromotionTemplate{}, domain.Validationf("careerPath, fromLevel and toLevel are required")
	}
	parsed, err := rules.Parse(req.Rules)
	if err != nil {
		return models.PromotionTemplate{}, domain.Validationf("invalid rules: %v", err)
	}
	if err := rules.ValidateTemplate(parsed); err != nil {
		return models.PromotionTemplate{}, domain.Validationf("invalid rules: %v", err)
	}
	// Re-marshal so the stored snapshot is the normalized wire form.
	normalized, err := rules.Marshal(parsed)
	if err != nil {
		return models.PromotionTemplate{}, fmt.Errorf("marshal rules: %w", err)
	}
	tmpl, err := s.store.CreateTemplate(ctx, store.TemplateInput{
		CareerPath: req.CareerPath,
		FromLevel:  req.FromLevel,
		ToLevel:    req.ToLevel,
		Rules:      normalized,
	})
	if err != nil {
		return models.PromotionTemplate{}, fmt.Errorf("create template: %w", err)
	}
	return tmpl, nil
}

func (s *TemplateService) ListActive(ctx context.Context) ([]models.PromotionTemplate, error) {
	return s.store.ListActiveTemplates(ctx)
}

func (s *TemplateService) Deactivate(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if !actor.Admin {
		return domain.Forbiddenf("only an admin may deactivate templates")
	}
	if err := s.store.DeactivateTemplate(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFoundf("template %s not found", id)
		}
		return fmt.Errorf("deactivate template: %w", err)
	}
	return nil
}
