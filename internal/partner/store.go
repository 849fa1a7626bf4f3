package partner

import (
	"context"

	"haven/pkg/domain"
)

// Store persists the partner directory. Implementations return
// sentinel.ErrNotFound for unknown partners.
type Store interface {
	Save(ctx context.Context, p CrisisPartner) error
	Get(ctx context.Context, id domain.PartnerID) (*CrisisPartner, error)
	List(ctx context.Context) ([]CrisisPartner, error)
	// ListActive returns only partners eligible for routing.
	ListActive(ctx context.Context) ([]CrisisPartner, error)
}
