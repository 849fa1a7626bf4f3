// Package handler exposes the sealing and legal-access endpoints. Everything
// here is admin-gated; there is no family-facing route into sealed data.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"haven/internal/isolation"
	"haven/internal/platform/middleware"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/httputil"
)

// Service defines the isolation operations the transport needs.
type Service interface {
	Seal(ctx context.Context, signalID domain.SignalID, reason isolation.SealReason, actorID string) (*isolation.IsolatedSignal, error)
	IsSealed(ctx context.Context, signalID domain.SignalID) (bool, error)
	VerifyIsolation(ctx context.Context, signalID domain.SignalID, familyID domain.FamilyID) (bool, error)
	GetForLegalRequest(ctx context.Context, signalID domain.SignalID, legalRequestID domain.LegalRequestID) (*isolation.IsolatedSignal, error)
}

type Handler struct {
	isolation Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(svc Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{isolation: svc, logger: logger, validator: validator}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(h.validator, "admin", h.logger))
		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Post("/admin/signals/{id}/seal", h.handleSeal)
		})
		r.Get("/admin/signals/{id}/isolation", h.handleVerify)
		r.Get("/admin/sealed/{id}", h.handleLegalRead)
	})
}

type sealRequest struct {
	Reason string `json:"reason"`
}

type sealedResponse struct {
	SignalID          string    `json:"signal_id"`
	AnonymizedChildID string    `json:"anonymized_child_id"`
	Jurisdiction      string    `json:"jurisdiction"`
	OriginalStatus    string    `json:"original_status"`
	OriginalCreatedAt time.Time `json:"original_created_at"`
	SealedAt          time.Time `json:"sealed_at"`
	SealReason        string    `json:"seal_reason"`
	PayloadRef        string    `json:"encrypted_payload_ref"`
	EncryptionKeyID   string    `json:"encryption_key_id"`
}

func toResponse(s isolation.IsolatedSignal) sealedResponse {
	return sealedResponse{
		SignalID:          s.ID.String(),
		AnonymizedChildID: string(s.AnonymizedChildID),
		Jurisdiction:      s.Jurisdiction.String(),
		OriginalStatus:    s.OriginalStatus,
		OriginalCreatedAt: s.OriginalCreatedAt,
		SealedAt:          s.SealedAt,
		SealReason:        s.SealReason.String(),
		PayloadRef:        s.EncryptedPayloadRef,
		EncryptionKeyID:   s.EncryptionKeyID,
	}
}

func (h *Handler) handleSeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	signalID, err := domain.ParseSignalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signal id"))
		return
	}
	var req sealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	reason, err := isolation.ParseSealReason(req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sealed, err := h.isolation.Seal(ctx, signalID, reason, middleware.GetActor(ctx))
	if err != nil {
		h.writeError(ctx, w, "failed to seal signal", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(*sealed))
}

type verifyResponse struct {
	Sealed   bool `json:"sealed"`
	Isolated bool `json:"isolated"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	signalID, err := domain.ParseSignalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signal id"))
		return
	}
	familyID, err := domain.ParseFamilyID(r.URL.Query().Get("family_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "family_id is required"))
		return
	}
	isolated, err := h.isolation.VerifyIsolation(ctx, signalID, familyID)
	if err != nil {
		h.writeError(ctx, w, "failed to verify isolation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse{Sealed: true, Isolated: isolated})
}

func (h *Handler) handleLegalRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	signalID, err := domain.ParseSignalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signal id"))
		return
	}
	legalRequestID, err := domain.ParseLegalRequestID(r.URL.Query().Get("legal_request_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "legal_request_id is required"))
		return
	}
	sealed, err := h.isolation.GetForLegalRequest(ctx, signalID, legalRequestID)
	if err != nil {
		h.writeError(ctx, w, "failed to read sealed record", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(*sealed))
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
