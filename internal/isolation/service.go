package isolation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"haven/internal/anonymize"
	"haven/internal/audit"
	"haven/internal/platform/metrics"
	"haven/internal/routing"
	"haven/internal/signal"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
)

// Service owns the one-way seal and its audit primitives. Once Seal returns
// successfully the family can never observe that the signal existed; the
// only remaining read path is the legal-request gate.
type Service struct {
	signals    signal.Store
	ledger     routing.Store
	sealed     SealedStore
	family     FamilyVisibleStore
	legal      LegalRequestGate
	anonymizer *anonymize.Anonymizer
	uow        UnitOfWork
	logger     *slog.Logger
	metrics    *metrics.Metrics
	publisher  audit.Publisher
	keyID      string
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditPublisher sets the compliance publisher. Sealing is fail-closed
// on it: if the audit write fails the whole seal rolls back.
func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithEncryptionKeyID names the vault key under which sealed payloads are
// stored. The vault owns the scheme; we only record the reference.
func WithEncryptionKeyID(keyID string) Option {
	return func(s *Service) { s.keyID = keyID }
}

func withClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(
	signals signal.Store,
	ledger routing.Store,
	sealed SealedStore,
	family FamilyVisibleStore,
	legal LegalRequestGate,
	anonymizer *anonymize.Anonymizer,
	uow UnitOfWork,
	opts ...Option,
) (*Service, error) {
	if signals == nil || ledger == nil || sealed == nil {
		return nil, fmt.Errorf("signal, ledger, and sealed stores are required")
	}
	if family == nil {
		return nil, fmt.Errorf("family-visible store is required")
	}
	if legal == nil {
		return nil, fmt.Errorf("legal request gate is required")
	}
	if anonymizer == nil {
		return nil, fmt.Errorf("anonymizer is required")
	}
	if uow == nil {
		return nil, fmt.Errorf("unit of work is required")
	}
	svc := &Service{
		signals:    signals,
		ledger:     ledger,
		sealed:     sealed,
		family:     family,
		legal:      legal,
		anonymizer: anonymizer,
		uow:        uow,
		keyID:      "sealed-v1",
		tracer:     otel.Tracer("haven/isolation"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Seal performs the terminal, one-way isolation of a signal:
//
//  1. Reject unknown signals and re-sealing.
//  2. Derive the anonymized child id and build the sealed record with only
//     the allow-listed fields.
//  3. In one unit of work: write the sealed record, purge every
//     family-visible collection, delete the signal row and its routing
//     results, and append the compliance audit event. A failure anywhere
//     rolls back everything; a partial purge is a correctness violation,
//     so none is ever visible.
func (s *Service) Seal(ctx context.Context, signalID domain.SignalID, reason SealReason, actorID string) (*IsolatedSignal, error) {
	ctx, span := s.tracer.Start(ctx, "isolation.seal")
	defer span.End()
	start := s.now()

	if !reason.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid seal reason")
	}

	already, err := s.sealed.Exists(ctx, signalID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check sealed store")
	}
	if already {
		return nil, dErrors.Wrap(sentinel.ErrAlreadySealed, dErrors.CodeConflict, "signal already sealed")
	}

	sig, err := s.signals.Get(ctx, signalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "signal not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load signal")
	}

	anonID, err := s.anonymizer.AnonymizeChild(sig.ChildID)
	if err != nil {
		return nil, err
	}

	jurisdiction, status := s.routingSnapshot(ctx, sig.ID)
	sealed := IsolatedSignal{
		ID:                sig.ID,
		AnonymizedChildID: anonID,
		FamilyID:          sig.FamilyID,
		Jurisdiction:      jurisdiction,
		OriginalStatus:    status,
		OriginalCreatedAt: sig.CreatedAt,
		SealedAt:          start,
		SealReason:        reason,
		EncryptedPayloadRef: fmt.Sprintf("vault://sealed-signals/%s", sig.ID),
		EncryptionKeyID:     s.keyID,
	}

	err = s.uow(ctx, func(ctx context.Context) error {
		if err := s.sealed.Create(ctx, sealed); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(sentinel.ErrAlreadySealed, dErrors.CodeConflict, "signal already sealed")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write sealed record")
		}
		for _, collection := range FamilyCollections {
			refs, err := s.family.FindBySignal(ctx, collection, sig.ID, sig.FamilyID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to enumerate %s", collection))
			}
			if len(refs) == 0 {
				continue
			}
			if err := s.family.DeleteMany(ctx, refs); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to purge %s", collection))
			}
		}
		if err := s.ledger.DeleteBySignal(ctx, sig.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge routing results")
		}
		if err := s.signals.Delete(ctx, sig.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge signal")
		}
		// Compliance audit is part of the unit: no seal without its trail.
		if s.publisher != nil {
			event := audit.Event{
				Category: audit.CategoryCompliance,
				Action:   audit.EventSignalSealed,
				SignalID: sig.ID.String(),
				ActorID:  actorID,
				Reason:   reason.String(),
			}
			if err := s.publisher.Emit(ctx, event); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "compliance audit failed, seal aborted")
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SignalsSealed.Inc()
		s.metrics.SealDuration.Observe(time.Since(start).Seconds())
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "signal sealed",
			"signal_id", sig.ID.String(),
			"reason", reason.String(),
		)
	}
	return &sealed, nil
}

// IsSealed reports whether the signal has been through the one-way seal.
func (s *Service) IsSealed(ctx context.Context, signalID domain.SignalID) (bool, error) {
	sealed, err := s.sealed.Exists(ctx, signalID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check sealed store")
	}
	return sealed, nil
}

// VerifyIsolation proves the purge: zero references to the signal remain in
// any family-visible collection, the signal row is gone, and the ledger has
// no family-readable entries. Collections are checked in parallel.
func (s *Service) VerifyIsolation(ctx context.Context, signalID domain.SignalID, familyID domain.FamilyID) (bool, error) {
	sealed, err := s.IsSealed(ctx, signalID)
	if err != nil {
		return false, err
	}
	if !sealed {
		return false, dErrors.New(dErrors.CodeNotFound, "signal not sealed")
	}

	g, ctx := errgroup.WithContext(ctx)
	leaks := make([]int, len(FamilyCollections))
	for i, collection := range FamilyCollections {
		g.Go(func() error {
			refs, err := s.family.FindBySignal(ctx, collection, signalID, familyID)
			if err != nil {
				return fmt.Errorf("verify %s: %w", collection, err)
			}
			leaks[i] = len(refs)
			return nil
		})
	}
	g.Go(func() error {
		_, err := s.signals.Get(ctx, signalID)
		if err == nil {
			return fmt.Errorf("signal row still present")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		results, err := s.ledger.ListBySignal(ctx, signalID)
		if err != nil {
			return err
		}
		if len(results) > 0 {
			return fmt.Errorf("routing results still present")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "isolation verification failed",
				"signal_id", signalID.String(),
				"error", err.Error(),
			)
		}
		return false, nil
	}
	for _, n := range leaks {
		if n > 0 {
			return false, nil
		}
	}
	return true, nil
}

// GetForLegalRequest is the only read path into a sealed record. The legal
// request must exist, be approved or fulfilled, and explicitly list the
// signal id. Every other combination is the same "not found" so callers
// cannot distinguish a missing record from a denied one.
func (s *Service) GetForLegalRequest(ctx context.Context, signalID domain.SignalID, legalRequestID domain.LegalRequestID) (*IsolatedSignal, error) {
	notFound := dErrors.New(dErrors.CodeNotFound, "not found")

	req, err := s.legal.Get(ctx, legalRequestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check legal request")
	}
	if !req.Status.Grants() || !req.Covers(signalID) {
		return nil, notFound
	}

	sealed, err := s.sealed.Get(ctx, signalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read sealed record")
	}

	// Accesses to sealed records are themselves compliance events.
	if s.publisher != nil {
		event := audit.Event{
			Category: audit.CategoryCompliance,
			Action:   audit.EventSealedRecordAccessed,
			SignalID: signalID.String(),
			ActorID:  legalRequestID.String(),
		}
		if err := s.publisher.Emit(ctx, event); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "compliance audit failed, access denied")
		}
	}
	return sealed, nil
}

// routingSnapshot captures the jurisdiction and latest delivery status from
// the ledger before the purge removes it. Unrouted signals seal with an
// empty jurisdiction and status "unrouted".
func (s *Service) routingSnapshot(ctx context.Context, signalID domain.SignalID) (domain.Jurisdiction, string) {
	results, err := s.ledger.ListBySignal(ctx, signalID)
	if err != nil || len(results) == 0 {
		return "", "unrouted"
	}
	latest := results[len(results)-1]
	return latest.Jurisdiction, latest.Status.String()
}
