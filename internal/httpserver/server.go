package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/meritbase/badgetrack/internal/auth"
	"github.com/meritbase/badgetrack/internal/config"
	"github.com/meritbase/badgetrack/internal/domain"
	"github.com/meritbase/badgetrack/internal/service"
	"github.com/meritbase/badgetrack/internal/store"
)

type Server struct {
	cfg        config.Config
	db         store.Store
	badges     *service.BadgeService
	templates  *service.TemplateService
	promotions *service.PromotionService
}

func New(cfg config.Config, db store.Store, badges *service.BadgeService, templates *service.TemplateService, promotions *service.PromotionService) *Server {
	return &Server{
		cfg:        cfg,
		db:         db,
		badges:     badges,
		templates:  templates,
		promotions: promotions,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware([]byte(s.cfg.AuthSecret), s.cfg.AllowDebugActor))

		r.Route("/badges", func(r chi.Router) {
			r.Post("/", s.handleCreateBadge)
			r.Get("/", s.handleListMyBadges)
			r.Get("/review", s.handleListBadgesForReview)
			r.Get("/{id}", s.handleGetBadge)
			r.Patch("/{id}", s.handleUpdateBadge)
			r.Delete("/{id}", s.handleDeleteBadge)
			r.Post("/{id}/submit", s.handleSubmitBadge)
			r.Post("/{id}/accept", s.handleAcceptBadge)
			r.Post("/{id}/reject", s.handleRejectBadge)
			r.Post("/{id}/reopen", s.handleReopenBadge)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Post("/", s.handleCreateTemplate)
			r.Get("/", s.handleListTemplates)
			r.Post("/{id}/deactivate", s.handleDeactivateTemplate)
		})

		r.Route("/promotions", func(r chi.Router) {
			r.Post("/", s.handleCreatePromotion)
			r.Get("/", s.handleListMyPromotions)
			r.Get("/review", s.handleListPromotionsForDecision)
			r.Get("/{id}", s.handleGetPromotion)
			r.Delete("/{id}", s.handleDeletePromotion)
			r.Post("/{id}/badges", s.handleAddBadgeToPromotion)
			r.Delete("/{id}/badges/{badgeApplicationId}", s.handleRemoveBadgeFromPromotion)
			r.Post("/{id}/submit", s.handleSubmitPromotion)
			r.Post("/{id}/approve", s.handleApprovePromotion)
			r.Post("/{id}/reject", s.handleRejectPromotion)
		})

		r.Get("/admin/stats", s.handleStats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.db.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = "down"
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["db"] = "up"
	respondJSON(w, http.StatusOK, status)
}

type createBadgeRequest struct {
	BadgeID         string     `json:"badgeId"`
	BadgeTitle      string     `json:"badgeTitle"`
	Category        string     `json:"category"`
	Level           string     `json:"level"`
	BadgeVersion    int        `json:"badgeVersion"`
	ApplicationDate *time.Time `json:"applicationDate"`
	Comment         string     `json:"comment"`
}

func (s *Server) handleCreateBadge(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createBadgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDomainError(w, domain.Validationf("invalid request body: %v", err))
		return
	}
	app, err := s.badges.Create(r.Context(), actor, service.CreateApplicationRequest{
		BadgeID:         req.BadgeID,
		BadgeTitle:      req.BadgeTitle,
		Category:        req.Category,
		Level:           req.Level,
		BadgeVersion:    req.BadgeVersion,
		ApplicationDate: req.ApplicationDate,
		Comment:         req.Comment,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, app)
}

func (s *Server) handleListMyBadges(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	apps, err := s.badges.ListMine(r.Context(), actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"applications": apps})
}

func (s *Server) handleListBadgesForReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	apps, err := s.badges.ListForReview(r.Context(), actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"applications": apps})
}

func (s *Server) handleGetBadge(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	app, err := s.badges.Get(r.Context(), actor, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

type updateBadgeRequest struct {
	ApplicationDate *time.Time `json:"applicationDate"`
	Comment         *string    `json:"comment"`
}

func (s *Server) handleUpdateBadge(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	var req updateBadgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDomainError(w, domain.Validationf("invalid request body: %v", err))
		return
	}
	app, err := s.badges.UpdateDraft(r.Context(), actor, id, service.UpdateDraftRequest{
		ApplicationDate: req.ApplicationDate,
		Comment:         req.Comment,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleDeleteBadge(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	if err := s.badges.Delete(r.Context(), actor, id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSubmitBadge(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	app, err := s.badges.Submit(r.Context(), actor, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

type reviewBadgeRequest struct {
	Note *string `json:"note"`
}

func (s *Server) handleAcceptBadge(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	var req reviewBadgeRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		respondDomainError(w, domain.Validationf("invalid request body: %v", err))
		return
	}
	app, err := s.badges.Accept(r.Context(), actor, id, req.Note)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleRejectBadge(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	var req reviewBadgeRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		respondDomainError(w, domain.Validationf("invalid request body: %v", err))
		return
	}
	app, err := s.badges.Reject(r.Context(), actor, id, req.Note)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleReopenBadge(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	app, err := s.badges.Reopen(r.Context(), actor, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

type createTemplateRequest struct {
	CareerPath string          `json:"careerPath"`
	FromLevel  string          `json:"fromLevel"`
	ToLevel    string          `json:"toLevel"`
	Rules      json.RawMessage `json:"rules"`
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createTemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDomainError(w, domain.Validationf("invalid request body: %v", err))
		return
	}
	tmpl, err := s.templates.Create(r.Context(), actor, service.CreateTemplateRequest{
		CareerPath: req.CareerPath,
		FromLevel:  req.FromLevel,
		ToLevel:    req.ToLevel,
		Rules:      req.Rules,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, tmpl)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}
	tmpls, err := s.templates.ListActive(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"templates": tmpls})
}

func (s *Server) handleDeactivateTemplate(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	if err := s.templates.Deactivate(r.Context(), actor, id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

type createPromotionRequest struct {
	TemplateID string `json:"templateId"`
}

func (s *Server) handleCreatePromotion(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createPromotionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDomainError(w, domain.Validationf("invalid request body: %v", err))
		return
	}
	templateID, err := uuid.Parse(req.TemplateID)
	if err != nil {
		respondDomainError(w, domain.Validationf("invalid templateId"))
		return
	}
	promo, err := s.promotions.Create(r.Context(), actor, templateID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, promo)
}

func (s *Server) handleListMyPromotions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	promos, err := s.promotions.ListMine(r.Context(), actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"promotions": promos})
}

func (s *Server) handleListPromotionsForDecision(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	promos, err := s.promotions.ListForDecision(r.Context(), actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"promotions": promos})
}

func (s *Server) handleGetPromotion(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	detail, err := s.promotions.Get(r.Context(), actor, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeletePromotion(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	if err := s.promotions.Delete(r.Context(), actor, id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type addBadgeRequest struct {
	BadgeApplicationID string `json:"badgeApplicationId"`
}

func (s *Server) handleAddBadgeToPromotion(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	var req addBadgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondDomainError(w, domain.Validationf("invalid request body: %v", err))
		return
	}
	badgeID, err := uuid.Parse(req.BadgeApplicationID)
	if err != nil {
		respondDomainError(w, domain.Validationf("invalid badgeApplicationId"))
		return
	}
	resv, err := s.promotions.AddBadge(r.Context(), actor, id, badgeID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resv)
}

func (s *Server) handleRemoveBadgeFromPromotion(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	badgeID, err := uuid.Parse(chi.URLParam(r, "badgeApplicationId"))
	if err != nil {
		respondDomainError(w, domain.Validationf("invalid badge application id"))
		return
	}
	if err := s.promotions.RemoveBadge(r.Context(), actor, id, badgeID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (s *Server) handleSubmitPromotion(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	detail, err := s.promotions.Submit(r.Context(), actor, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

type approvePromotionRequest struct {
	Note *string `json:"note"`
}

func (s *Server) handleApprovePromotion(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	var req approvePromotionRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		respondDomainError(w, domain.Validationf("invalid request body: %v", err))
		return
	}
	detail, err := s.promotions.Approve(r.Context(), actor, id, req.Note)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

type rejectPromotionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRejectPromotion(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r)
	if !ok {
		return
	}
	var req rejectPromotionRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		respondDomainError(w, domain.Validationf("invalid request body: %v", err))
		return
	}
	detail, err := s.promotions.Reject(r.Context(), actor, id, req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	counts, err := s.promotions.Stats(r.Context(), actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// Helpers.

func actorFrom(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		respondDomainError(w, domain.Forbiddenf("no actor in request context"))
		return auth.Actor{}, false
	}
	return actor, true
}

func actorAndID(w http.ResponseWriter, r *http.Request) (auth.Actor, uuid.UUID, bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return auth.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, domain.Validationf("invalid id"))
		return auth.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// decodeOptionalJSON tolerates an empty body for endpoints whose payload is
// entirely optional.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidStatus, domain.KindReservationConflict, domain.KindValidationFailed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondDomainError(w http.ResponseWriter, err error) {
	de := domain.AsError(err)
	if de.Kind == domain.KindInternal {
		log.Printf("[http] internal error: %v", err)
	}
	payload := map[string]interface{}{
		"error":   string(de.Kind),
		"message": de.Message,
	}
	if de.Details != nil {
		payload["details"] = de.Details
	}
	respondJSON(w, statusFor(de.Kind), payload)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
