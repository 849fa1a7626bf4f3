// Package handler exposes the admin surface of the partner directory.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"haven/internal/partner"
	"haven/internal/platform/middleware"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/httputil"
)

// Service defines the partner directory operations the transport needs.
type Service interface {
	Register(ctx context.Context, req partner.RegisterRequest) (*partner.CrisisPartner, error)
	Deactivate(ctx context.Context, id domain.PartnerID) error
	List(ctx context.Context) ([]partner.CrisisPartner, error)
}

type Handler struct {
	partners  Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(partners Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{partners: partners, logger: logger, validator: validator}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.validator, "admin", h.logger))
		r.Get("/admin/partners", h.handleList)
		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Post("/admin/partners", h.handleRegister)
		})
		r.Delete("/admin/partners/{id}", h.handleDeactivate)
	})
}

type registerRequest struct {
	Name          string   `json:"name"`
	WebhookURL    string   `json:"webhook_url"`
	APIKey        string   `json:"api_key"`
	Jurisdictions []string `json:"jurisdictions"`
	Capabilities  []string `json:"capabilities"`
	Priority      int      `json:"priority"`
}

type partnerResponse struct {
	PartnerID     string    `json:"partner_id"`
	Name          string    `json:"name"`
	WebhookURL    string    `json:"webhook_url"`
	Jurisdictions []string  `json:"jurisdictions"`
	Capabilities  []string  `json:"capabilities"`
	Priority      int       `json:"priority"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

func toResponse(p partner.CrisisPartner) partnerResponse {
	jurisdictions := make([]string, 0, len(p.Jurisdictions))
	for _, j := range p.Jurisdictions {
		jurisdictions = append(jurisdictions, j.String())
	}
	capabilities := make([]string, 0, len(p.Capabilities))
	for _, c := range p.Capabilities {
		capabilities = append(capabilities, string(c))
	}
	return partnerResponse{
		PartnerID:     p.ID.String(),
		Name:          p.Name,
		WebhookURL:    p.WebhookURL,
		Jurisdictions: jurisdictions,
		Capabilities:  capabilities,
		Priority:      p.Priority,
		Active:        p.Active,
		CreatedAt:     p.CreatedAt,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	created, err := h.partners.Register(ctx, partner.RegisterRequest{
		Name:          req.Name,
		WebhookURL:    req.WebhookURL,
		RawAPIKey:     req.APIKey,
		Jurisdictions: req.Jurisdictions,
		Capabilities:  req.Capabilities,
		Priority:      req.Priority,
	})
	if err != nil {
		h.writeError(ctx, w, "failed to register partner", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(*created))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partners, err := h.partners.List(ctx)
	if err != nil {
		h.writeError(ctx, w, "failed to list partners", err)
		return
	}
	out := make([]partnerResponse, 0, len(partners))
	for _, p := range partners {
		out = append(out, toResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParsePartnerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid partner id"))
		return
	}
	if err := h.partners.Deactivate(ctx, id); err != nil {
		h.writeError(ctx, w, "failed to deactivate partner", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	requestID := middleware.GetRequestID(ctx)
	var dErr *dErrors.Error
	if errors.As(err, &dErr) && dErr.Code != dErrors.CodeInternal {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err.Error())
	httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, msg))
}
