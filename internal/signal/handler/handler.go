// Package handler exposes the signal trigger and admin re-route endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"haven/internal/platform/metrics"
	"haven/internal/platform/middleware"
	"haven/internal/routing"
	"haven/internal/signal"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/httputil"
)

// Service defines the orchestrator operations the transport needs.
type Service interface {
	Create(ctx context.Context, req signal.CreateRequest) (*signal.CreateResult, error)
	Get(ctx context.Context, id domain.SignalID) (*signal.SafetySignal, error)
	Reroute(ctx context.Context, signalID domain.SignalID) (domain.ResultID, error)
}

type Handler struct {
	signals        Service
	logger         *slog.Logger
	metrics        *metrics.Metrics
	validator      middleware.TokenValidator
	triggerLimiter func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithTriggerLimiter rate-limits the public trigger endpoint. The other
// routes are either read-only or behind auth and do not need one.
func WithTriggerLimiter(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.triggerLimiter = mw }
}

func New(signals Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator, opts ...Option) *Handler {
	h := &Handler{
		signals:   signals,
		logger:    logger,
		metrics:   m,
		validator: validator,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the signal routes. The trigger endpoint deliberately has
// no auth middleware: a child in crisis must never be blocked by an expired
// session, and the payload carries no credentials to validate anyway. Reads
// are operator-only; even confirming a signal id exists is information the
// family must not get.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		if h.triggerLimiter != nil {
			r.Use(h.triggerLimiter)
		}
		r.Post("/signals", h.handleCreate)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.validator, "admin", h.logger))
		r.Get("/signals/{id}", h.handleGet)
		r.Post("/admin/signals/{id}/reroute", h.handleReroute)
	})
}

type createRequest struct {
	ChildID       string  `json:"child_id"`
	FamilyID      string  `json:"family_id"`
	TriggerMethod string  `json:"trigger_method"`
	Platform      string  `json:"platform"`
	DeviceID      *string `json:"device_id,omitempty"`
}

type createResponse struct {
	SignalID  string    `json:"signal_id"`
	ResultID  string    `json:"result_id"`
	Routed    bool      `json:"routed"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	createReq, err := parseCreateRequest(req)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid signal create request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.signals.Create(ctx, *createReq)
	if err != nil {
		var noPartner *routing.ErrNoPartner
		if errors.As(err, &noPartner) {
			h.logger.ErrorContext(ctx, "signal not routed, no partner coverage",
				"request_id", requestID,
				"jurisdiction", noPartner.Jurisdiction.String(),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, noPartner.Error()))
			return
		}
		h.writeServiceError(ctx, w, requestID, "failed to create signal", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, createResponse{
		SignalID:  result.Signal.ID.String(),
		ResultID:  result.ResultID.String(),
		Routed:    result.Routed,
		CreatedAt: result.Signal.CreatedAt,
	})
}

type signalResponse struct {
	SignalID      string    `json:"signal_id"`
	TriggerMethod string    `json:"trigger_method"`
	Platform      string    `json:"platform"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseSignalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signal id"))
		return
	}
	sig, err := h.signals.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, middleware.GetRequestID(ctx), "failed to load signal", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, signalResponse{
		SignalID:      sig.ID.String(),
		TriggerMethod: sig.TriggerMethod.String(),
		Platform:      sig.Platform.String(),
		CreatedAt:     sig.CreatedAt,
	})
}

func (h *Handler) handleReroute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	id, err := domain.ParseSignalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signal id"))
		return
	}
	resultID, err := h.signals.Reroute(ctx, id)
	if err != nil {
		var noPartner *routing.ErrNoPartner
		if errors.As(err, &noPartner) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, noPartner.Error()))
			return
		}
		h.writeServiceError(ctx, w, requestID, "failed to reroute signal", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"result_id": resultID.String()})
}

func parseCreateRequest(req createRequest) (*signal.CreateRequest, error) {
	childID, err := domain.ParseChildID(req.ChildID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid child id")
	}
	familyID, err := domain.ParseFamilyID(req.FamilyID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid family id")
	}
	method, err := signal.ParseTriggerMethod(req.TriggerMethod)
	if err != nil {
		return nil, err
	}
	platform, err := signal.ParsePlatform(req.Platform)
	if err != nil {
		return nil, err
	}
	return &signal.CreateRequest{
		ChildID:       childID,
		FamilyID:      familyID,
		TriggerMethod: method,
		Platform:      platform,
		DeviceID:      req.DeviceID,
	}, nil
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, requestID, msg string, err error) {
	var dErr *dErrors.Error
	if errors.As(err, &dErr) && dErr.Code != dErrors.CodeInternal {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err.Error())
	httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, msg))
}
