// Package handler exposes the blackout window endpoints: admin status reads
// and partner-authorized extensions.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"haven/internal/blackout"
	"haven/internal/platform/middleware"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/httputil"
)

// Manager defines the blackout operations the transport needs.
type Manager interface {
	Status(ctx context.Context, signalID domain.SignalID) (*blackout.WindowStatus, error)
	Extend(ctx context.Context, signalID domain.SignalID, additionalHours int, partnerID domain.PartnerID) (*blackout.Record, error)
}

type Handler struct {
	manager   Manager
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(manager Manager, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{manager: manager, logger: logger, validator: validator}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.validator, "admin", h.logger))
		r.Get("/admin/signals/{id}/blackout", h.handleStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireRole(h.validator, "delivery", h.logger))
		r.Post("/signals/{id}/blackout/extend", h.handleExtend)
	})
}

type statusResponse struct {
	Active         bool    `json:"active"`
	RemainingHours float64 `json:"remaining_hours"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseSignalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signal id"))
		return
	}
	status, err := h.manager.Status(ctx, id)
	if err != nil {
		h.writeError(ctx, w, "failed to read blackout status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{
		Active:         status.Active,
		RemainingHours: status.RemainingHours,
	})
}

type extendRequest struct {
	AdditionalHours int `json:"additional_hours"`
}

type extendResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// handleExtend extends the window on behalf of the authenticated partner.
// The partner identity comes from the delivery token, never from the body.
func (h *Handler) handleExtend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseSignalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signal id"))
		return
	}
	partnerID, err := domain.ParsePartnerID(middleware.GetActor(ctx))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Partner authorization required"))
		return
	}

	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	record, err := h.manager.Extend(ctx, id, req.AdditionalHours, partnerID)
	if err != nil {
		h.writeError(ctx, w, "failed to extend blackout", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, extendResponse{ExpiresAt: record.ExpiresAt})
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
