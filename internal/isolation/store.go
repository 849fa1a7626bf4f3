package isolation

import (
	"context"

	"haven/pkg/domain"
)

// SealedStore persists isolated signals. Access control is entirely separate
// from the family data graph: in production this is a different database
// role with no family-facing query path. Create returns
// sentinel.ErrConflict when the signal is already sealed; there is no
// update or delete.
type SealedStore interface {
	Create(ctx context.Context, sealed IsolatedSignal) error
	Get(ctx context.Context, id domain.SignalID) (*IsolatedSignal, error)
	Exists(ctx context.Context, id domain.SignalID) (bool, error)
}

// UnitOfWork runs fn atomically: the sealed-record write and the
// family-visible purge inside fn either all land or none do.
type UnitOfWork func(ctx context.Context, fn func(ctx context.Context) error) error

// Snapshotter is implemented by the in-memory stores so MemoryUnitOfWork can
// roll a failed seal back. Snapshot captures the store's current contents
// and returns the function that restores them.
type Snapshotter interface {
	Snapshot() (restore func())
}
