package blackout

import (
	"context"
	"time"

	"haven/pkg/domain"
)

// Store persists blackout windows. Update is guarded by the expiry the
// caller read (optimistic concurrency): two partners extending concurrently
// cannot silently overwrite each other's authorization record.
// Implementations return sentinel.ErrNotFound for unknown signals,
// sentinel.ErrConflict on a stale guard, and sentinel.ErrConflict from
// Create when a window already exists.
type Store interface {
	Create(ctx context.Context, record Record) error
	Get(ctx context.Context, signalID domain.SignalID) (*Record, error)
	Update(ctx context.Context, record Record, expectedExpiry time.Time) error
}
