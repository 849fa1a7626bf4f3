// Package handler exposes the partner acknowledgement callback and the admin
// view of the routing ledger.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"haven/internal/platform/middleware"
	"haven/internal/routing"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/httputil"
)

// Service defines the routing operations the transport needs.
type Service interface {
	Result(ctx context.Context, resultID domain.ResultID) (*routing.Result, error)
	Acknowledge(ctx context.Context, resultID domain.ResultID, partnerRef string) error
	ResultsForSignal(ctx context.Context, signalID domain.SignalID) ([]routing.Result, error)
}

type Handler struct {
	routing   Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(routing Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{routing: routing, logger: logger, validator: validator}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireRole(h.validator, "delivery", h.logger))
		r.Post("/partners/ack", h.handleAcknowledge)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.validator, "admin", h.logger))
		r.Get("/admin/signals/{id}/results", h.handleResults)
	})
}

type ackRequest struct {
	ResultID   string `json:"result_id"`
	PartnerRef string `json:"partner_ref"`
}

// handleAcknowledge records a partner acknowledgement. The callback token is
// minted per delivery with the partner as subject; a partner can only
// acknowledge results addressed to it.
func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	resultID, err := domain.ParseResultID(req.ResultID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid result id"))
		return
	}
	if req.PartnerRef == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "partner_ref is required"))
		return
	}

	result, err := h.routing.Result(ctx, resultID)
	if err != nil {
		h.writeError(ctx, w, "failed to load routing result", err)
		return
	}
	if result.PartnerID.String() != middleware.GetActor(ctx) {
		h.logger.WarnContext(ctx, "acknowledgement for foreign result rejected",
			"request_id", requestID,
			"result_id", resultID.String(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "routing result not found"))
		return
	}

	if err := h.routing.Acknowledge(ctx, resultID, req.PartnerRef); err != nil {
		h.writeError(ctx, w, "failed to acknowledge", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resultResponse struct {
	ResultID       string     `json:"result_id"`
	PartnerID      string     `json:"partner_id"`
	Jurisdiction   string     `json:"jurisdiction"`
	Status         string     `json:"status"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	PartnerRef     *string    `json:"partner_ref,omitempty"`
	RetryCount     int        `json:"retry_count"`
	LastError      *string    `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	signalID, err := domain.ParseSignalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signal id"))
		return
	}
	results, err := h.routing.ResultsForSignal(ctx, signalID)
	if err != nil {
		h.writeError(ctx, w, "failed to list routing results", err)
		return
	}
	out := make([]resultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, resultResponse{
			ResultID:       res.ID.String(),
			PartnerID:      res.PartnerID.String(),
			Jurisdiction:   res.Jurisdiction.String(),
			Status:         res.Status.String(),
			Acknowledged:   res.Acknowledged,
			AcknowledgedAt: res.AcknowledgedAt,
			PartnerRef:     res.PartnerRef,
			RetryCount:     res.RetryCount,
			LastError:      res.LastError,
			CreatedAt:      res.CreatedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
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
