package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"haven/internal/audit"
	"haven/internal/platform/metrics"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
)

// Router is the routing collaborator the orchestrator drives. Implemented by
// internal/routing.Service; declared here so this package depends on the
// seam, not the vertical.
type Router interface {
	Route(ctx context.Context, sig SafetySignal, profile ChildProfile, jurisdiction domain.Jurisdiction) (resultID domain.ResultID, err error)
}

// BlackoutStarter opens the family-notification suppression window.
type BlackoutStarter interface {
	Start(ctx context.Context, signalID domain.SignalID) error
}

// ProfileDirectory resolves the derived child attributes (birth date, family
// structure) and the family's jurisdiction. Owned by the account subsystem;
// the signal core only reads the minimum it needs to route.
type ProfileDirectory interface {
	ChildProfile(ctx context.Context, childID domain.ChildID) (*ChildProfile, error)
	FamilyJurisdiction(ctx context.Context, familyID domain.FamilyID) (domain.Jurisdiction, error)
}

// Service creates signals and drives the routing pipeline: persist the
// signal, open the blackout, then route. A routing failure (no covering
// partner) surfaces to the caller; the signal itself is already persisted so
// an operator can re-route once coverage exists.
type Service struct {
	store     Store
	profiles  ProfileDirectory
	router    Router
	blackout  BlackoutStarter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher audit.Publisher
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

func withClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, profiles ProfileDirectory, router Router, blackout BlackoutStarter, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("signal store is required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile directory is required")
	}
	if router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if blackout == nil {
		return nil, fmt.Errorf("blackout starter is required")
	}
	svc := &Service{
		store:    store,
		profiles: profiles,
		router:   router,
		blackout: blackout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateRequest is the trigger input from the client endpoint.
type CreateRequest struct {
	ChildID       domain.ChildID
	FamilyID      domain.FamilyID
	TriggerMethod TriggerMethod
	Platform      Platform
	DeviceID      *string
}

// CreateResult reports what happened to a newly triggered signal.
type CreateResult struct {
	Signal   SafetySignal
	ResultID domain.ResultID
	Routed   bool
}

// Create persists the signal, starts the blackout, and routes it. The
// blackout starts regardless of routing outcome: suppression protects the
// child whether or not a partner picked the signal up yet.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	sig := SafetySignal{
		ID:            domain.NewSignalID(),
		ChildID:       req.ChildID,
		FamilyID:      req.FamilyID,
		TriggerMethod: req.TriggerMethod,
		Platform:      req.Platform,
		DeviceID:      req.DeviceID,
		CreatedAt:     s.now(),
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, sig); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "signal already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist signal")
	}
	if s.metrics != nil {
		s.metrics.SignalsCreated.Inc()
	}
	audit.Log(ctx, s.logger, s.publisher, audit.EventSignalCreated,
		"signal_id", sig.ID.String(),
		"trigger_method", sig.TriggerMethod.String(),
		"platform", sig.Platform.String(),
	)

	if err := s.blackout.Start(ctx, sig.ID); err != nil {
		// The blackout is the child's protection; a signal without one is
		// worse than a failed request.
		return nil, err
	}

	profile, err := s.profiles.ChildProfile(ctx, sig.ChildID)
	if err != nil {
		return nil, err
	}
	jurisdiction, err := s.profiles.FamilyJurisdiction(ctx, sig.FamilyID)
	if err != nil {
		return nil, err
	}

	resultID, err := s.router.Route(ctx, sig, *profile, jurisdiction)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Signal: sig, ResultID: resultID, Routed: true}, nil
}

// Reroute runs the routing pipeline again for an existing signal. Used after
// a partner deactivation or a failed delivery; each invocation appends a new
// ledger entry.
func (s *Service) Reroute(ctx context.Context, signalID domain.SignalID) (domain.ResultID, error) {
	sig, err := s.Get(ctx, signalID)
	if err != nil {
		return domain.ResultID{}, err
	}
	profile, err := s.profiles.ChildProfile(ctx, sig.ChildID)
	if err != nil {
		return domain.ResultID{}, err
	}
	jurisdiction, err := s.profiles.FamilyJurisdiction(ctx, sig.FamilyID)
	if err != nil {
		return domain.ResultID{}, err
	}
	return s.router.Route(ctx, *sig, *profile, jurisdiction)
}

// Get returns a family-visible signal. Sealed signals are gone from this
// store entirely, so they are indistinguishable from never having existed.
func (s *Service) Get(ctx context.Context, id domain.SignalID) (*SafetySignal, error) {
	sig, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "signal not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load signal")
	}
	return sig, nil
}
