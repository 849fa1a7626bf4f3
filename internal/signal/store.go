package signal

import (
	"context"

	"haven/pkg/domain"
)

// Store persists safety signals. Implementations return
// sentinel.ErrNotFound for unknown ids and sentinel.ErrConflict when a
// signal id is created twice.
type Store interface {
	Create(ctx context.Context, sig SafetySignal) error
	Get(ctx context.Context, id domain.SignalID) (*SafetySignal, error)
	ListByFamily(ctx context.Context, familyID domain.FamilyID) ([]SafetySignal, error)
	// Delete removes the family-visible signal row. Only the sealing
	// operation calls this, inside its purge transaction.
	Delete(ctx context.Context, id domain.SignalID) error
}
