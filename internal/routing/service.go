package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"haven/internal/audit"
	"haven/internal/partner"
	"haven/internal/platform/metrics"
	"haven/internal/signal"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
)

// ErrNoPartner is returned when no registered partner covers the signal's
// jurisdiction. Routing never guesses a fallback or silently drops a signal;
// the caller must surface this.
type ErrNoPartner struct {
	Jurisdiction domain.Jurisdiction
}

func (e *ErrNoPartner) Error() string {
	return fmt.Sprintf("No partner available for jurisdiction: %s", e.Jurisdiction)
}

// ErrRetriesExhausted marks a result that has hit MaxDeliveryAttempts.
var ErrRetriesExhausted = errors.New("delivery retries exhausted")

// Deliverer is the webhook transport collaborator. It posts the payload to
// the partner and returns an optional partner-supplied reference.
// Implementations own signing and encryption-in-transit; the routing core
// only needs deliver-then-report semantics.
type Deliverer interface {
	Deliver(ctx context.Context, p partner.CrisisPartner, payload *Payload) (partnerRef string, err error)
}

// Service routes signals and owns the ledger's delivery-state transitions.
type Service struct {
	partners  partner.Store
	ledger    Store
	deliverer Deliverer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher audit.Publisher
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithDeliverer(d Deliverer) Option {
	return func(s *Service) { s.deliverer = d }
}

func withClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(partners partner.Store, ledger Store, opts ...Option) (*Service, error) {
	if partners == nil {
		return nil, fmt.Errorf("partner store is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("routing ledger store is required")
	}
	svc := &Service{
		partners: partners,
		ledger:   ledger,
		tracer:   otel.Tracer("haven/routing"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RouteSignalToPartner selects a partner, builds the privacy-minimized
// payload, and creates a pending ledger entry. No partner covering the
// jurisdiction is a hard failure and creates no entry at all.
//
// The ledger is append-only per attempt: calling this again for the same
// signal (re-routing after a partner deactivation, admin-driven retry)
// creates a new entry rather than mutating the old one.
func (s *Service) RouteSignalToPartner(ctx context.Context, sig signal.SafetySignal, profile signal.ChildProfile, jurisdiction domain.Jurisdiction) (*Result, *Payload, error) {
	ctx, span := s.tracer.Start(ctx, "routing.route_signal_to_partner")
	defer span.End()
	span.SetAttributes(attribute.String("jurisdiction", jurisdiction.String()))

	payload, err := BuildPayload(sig, profile.BirthDate, profile.FamilyStructure, jurisdiction)
	if err != nil {
		return nil, nil, err
	}

	partners, err := s.partners.ListActive(ctx)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load partner directory")
	}
	selected := Select(jurisdiction, partners)
	if selected == nil {
		if s.metrics != nil {
			s.metrics.RoutingNoPartner.Inc()
		}
		span.RecordError(&ErrNoPartner{Jurisdiction: jurisdiction})
		return nil, nil, &ErrNoPartner{Jurisdiction: jurisdiction}
	}

	now := s.now()
	result := Result{
		ID:           domain.NewResultID(),
		SignalID:     sig.ID,
		PartnerID:    selected.ID,
		Jurisdiction: jurisdiction,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.ledger.Create(ctx, result); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create routing result")
	}

	if s.metrics != nil {
		match := "country"
		if selected.Covers(jurisdiction) == partner.CoverageExact {
			match = "exact"
		}
		s.metrics.SignalsRouted.WithLabelValues(match).Inc()
	}
	audit.Log(ctx, s.logger, s.publisher, audit.EventSignalRouted,
		"signal_id", sig.ID.String(),
		"partner_id", selected.ID.String(),
		"jurisdiction", jurisdiction.String(),
	)
	return &result, payload, nil
}

// Deliver hands the payload to the transport collaborator and records the
// outcome. It performs exactly one attempt; retries are explicit caller
// re-invocations.
func (s *Service) Deliver(ctx context.Context, resultID domain.ResultID, p partner.CrisisPartner, payload *Payload) error {
	result, err := s.load(ctx, resultID)
	if err != nil {
		return err
	}
	if s.deliverer == nil {
		return dErrors.New(dErrors.CodeUnavailable, "no webhook deliverer configured")
	}
	if err := result.MarkSent(s.now()); err != nil {
		return s.transitionError(err)
	}
	if err := s.ledger.Update(ctx, *result); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update routing result")
	}

	partnerRef, deliverErr := s.deliverer.Deliver(ctx, p, payload)
	if deliverErr != nil {
		return s.recordFailure(ctx, result, deliverErr)
	}

	audit.Log(ctx, s.logger, s.publisher, audit.EventDeliverySent,
		"signal_id", result.SignalID.String(),
		"partner_id", result.PartnerID.String(),
	)
	// A synchronous partner reference acknowledges immediately; otherwise
	// the result stays sent until the callback arrives.
	if partnerRef != "" {
		return s.Acknowledge(ctx, resultID, partnerRef)
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, result *Result, deliveryErr error) error {
	ferr := result.MarkFailed(deliveryErr.Error(), s.now())
	if updateErr := s.ledger.Update(ctx, *result); updateErr != nil {
		return dErrors.Wrap(updateErr, dErrors.CodeInternal, "failed to record delivery failure")
	}
	if s.metrics != nil {
		s.metrics.DeliveryFailures.Inc()
	}
	audit.Log(ctx, s.logger, s.publisher, audit.EventDeliveryFailed,
		"signal_id", result.SignalID.String(),
		"partner_id", result.PartnerID.String(),
		"error", deliveryErr.Error(),
		"retry_count", fmt.Sprintf("%d", result.RetryCount),
	)
	if errors.Is(ferr, ErrRetriesExhausted) {
		return dErrors.Wrap(ErrRetriesExhausted, dErrors.CodeUnavailable, "delivery retries exhausted")
	}
	return dErrors.Wrap(deliveryErr, dErrors.CodeUnavailable, "webhook delivery failed")
}

// Acknowledge records a partner acknowledgement with its case reference.
// Terminal: the result permits no further transitions afterward.
func (s *Service) Acknowledge(ctx context.Context, resultID domain.ResultID, partnerRef string) error {
	result, err := s.load(ctx, resultID)
	if err != nil {
		return err
	}
	if err := result.MarkAcknowledged(partnerRef, s.now()); err != nil {
		return s.transitionError(err)
	}
	if err := s.ledger.Update(ctx, *result); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update routing result")
	}
	if s.metrics != nil {
		s.metrics.Acknowledgements.Inc()
	}
	audit.Log(ctx, s.logger, s.publisher, audit.EventSignalAcknowledged,
		"signal_id", result.SignalID.String(),
		"partner_id", result.PartnerID.String(),
		"partner_ref", partnerRef,
	)
	return nil
}

// Result returns a single ledger entry.
func (s *Service) Result(ctx context.Context, resultID domain.ResultID) (*Result, error) {
	return s.load(ctx, resultID)
}

// ResultsForSignal returns the full attempt history for a signal.
func (s *Service) ResultsForSignal(ctx context.Context, signalID domain.SignalID) ([]Result, error) {
	results, err := s.ledger.ListBySignal(ctx, signalID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list routing results")
	}
	return results, nil
}

func (s *Service) load(ctx context.Context, resultID domain.ResultID) (*Result, error) {
	result, err := s.ledger.Get(ctx, resultID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "routing result not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load routing result")
	}
	return result, nil
}

func (s *Service) transitionError(err error) error {
	switch {
	case errors.Is(err, ErrRetriesExhausted):
		return dErrors.Wrap(err, dErrors.CodeConflict, "delivery retries exhausted")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, "invalid delivery state transition")
	default:
		return err
	}
}
