// Package adapters bridges the signal orchestrator to the routing and
// blackout verticals. The orchestrator sees narrow local interfaces; the
// mapping to the concrete services lives here so the packages stay
// decoupled at the boundary.
package adapters

import (
	"context"
	"errors"
	"log/slog"

	"haven/internal/blackout"
	"haven/internal/partner"
	"haven/internal/routing"
	"haven/internal/signal"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
)

// partnerGetter is the slice of partner.Store the delivery router needs.
type partnerGetter interface {
	Get(ctx context.Context, id domain.PartnerID) (*partner.CrisisPartner, error)
}

// DeliveryRouter adapts routing.Service to signal.Router: it routes the
// signal and immediately attempts the first delivery. A delivery failure is
// recorded in the ledger but does not fail the signal; the routing result
// already exists and the attempt can be retried. A routing failure (no
// covering partner) does fail the signal.
type DeliveryRouter struct {
	routing  *routing.Service
	partners partnerGetter
	logger   *slog.Logger
}

func NewDeliveryRouter(svc *routing.Service, partners partnerGetter, logger *slog.Logger) *DeliveryRouter {
	return &DeliveryRouter{routing: svc, partners: partners, logger: logger}
}

func (a *DeliveryRouter) Route(ctx context.Context, sig signal.SafetySignal, profile signal.ChildProfile, jurisdiction domain.Jurisdiction) (domain.ResultID, error) {
	result, payload, err := a.routing.RouteSignalToPartner(ctx, sig, profile, jurisdiction)
	if err != nil {
		return domain.ResultID{}, err
	}

	p, err := a.partners.Get(ctx, result.PartnerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return result.ID, dErrors.New(dErrors.CodeInternal, "selected partner vanished")
		}
		return result.ID, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load selected partner")
	}

	if err := a.routing.Deliver(ctx, result.ID, *p, payload); err != nil {
		// The ledger already holds the failed attempt; surfacing it here
		// would roll back a signal that is otherwise fully registered.
		if a.logger != nil {
			a.logger.WarnContext(ctx, "initial delivery attempt failed",
				"signal_id", sig.ID.String(),
				"result_id", result.ID.String(),
				"error", err.Error(),
			)
		}
	}
	return result.ID, nil
}

// blackoutStarter is the slice of blackout.Manager the adapter wraps.
type blackoutStarter interface {
	Start(ctx context.Context, signalID domain.SignalID) (*blackout.Record, error)
}

// BlackoutStart adapts blackout.Manager to signal.BlackoutStarter, discarding
// the record the orchestrator has no use for.
type BlackoutStart struct {
	manager blackoutStarter
}

func NewBlackoutStart(manager blackoutStarter) *BlackoutStart {
	return &BlackoutStart{manager: manager}
}

func (a *BlackoutStart) Start(ctx context.Context, signalID domain.SignalID) error {
	_, err := a.manager.Start(ctx, signalID)
	return err
}
