package routing

import (
	"context"

	"haven/pkg/domain"
)

// Store persists the routing ledger. The ledger is append-only per attempt:
// one Result per call to RouteSignalToPartner, updated in place only by
// delivery-state transitions. Implementations return sentinel.ErrNotFound
// for unknown results.
type Store interface {
	Create(ctx context.Context, result Result) error
	Get(ctx context.Context, id domain.ResultID) (*Result, error)
	Update(ctx context.Context, result Result) error
	ListBySignal(ctx context.Context, signalID domain.SignalID) ([]Result, error)
	// DeleteBySignal removes all ledger entries for a signal. Only the
	// sealing operation calls this, inside its purge transaction.
	DeleteBySignal(ctx context.Context, signalID domain.SignalID) error
}
