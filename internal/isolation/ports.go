package isolation

import (
	"context"

	"haven/pkg/domain"
)

// Collection names a family-visible collection that can reference a signal.
// Sealing must purge, and VerifyIsolation must check, every one of them.
type Collection string

const (
	CollectionNotifications Collection = "notifications"
	CollectionActivityLogs  Collection = "activity_logs"
	CollectionAuditTrails   Collection = "audit_trails"
)

// FamilyCollections is the fixed, enumerated set sealing iterates. Adding a
// new family-visible collection means adding it here, which automatically
// pulls it into both the purge and the verification paths.
var FamilyCollections = []Collection{
	CollectionNotifications,
	CollectionActivityLogs,
	CollectionAuditTrails,
}

// Ref identifies one family-visible document referencing a signal.
type Ref struct {
	Collection Collection
	ID         string
}

// FamilyVisibleStore is the collaborator owning the family-facing data
// graph. Sealing purges through it; it must actually delete, not simulate.
// DeleteMany is expected to be transactional with the caller's context
// transaction where the backend supports it.
type FamilyVisibleStore interface {
	FindBySignal(ctx context.Context, collection Collection, signalID domain.SignalID, familyID domain.FamilyID) ([]Ref, error)
	DeleteMany(ctx context.Context, refs []Ref) error
}

// LegalRequestStatus is the approval state of a legal access request.
type LegalRequestStatus string

const (
	LegalRequestPending   LegalRequestStatus = "pending"
	LegalRequestApproved  LegalRequestStatus = "approved"
	LegalRequestFulfilled LegalRequestStatus = "fulfilled"
	LegalRequestDenied    LegalRequestStatus = "denied"
)

// Grants reports whether the status permits sealed-record access.
func (s LegalRequestStatus) Grants() bool {
	return s == LegalRequestApproved || s == LegalRequestFulfilled
}

// LegalRequest is the gate's view of an access authorization.
type LegalRequest struct {
	ID        domain.LegalRequestID
	Status    LegalRequestStatus
	SignalIDs []domain.SignalID
}

// Covers reports whether the request explicitly lists the signal.
func (r LegalRequest) Covers(signalID domain.SignalID) bool {
	for _, id := range r.SignalIDs {
		if id == signalID {
			return true
		}
	}
	return false
}

// LegalRequestGate is the collaborator owning the legal approval workflow.
// Implementations return sentinel.ErrNotFound for unknown requests.
type LegalRequestGate interface {
	Get(ctx context.Context, id domain.LegalRequestID) (*LegalRequest, error)
}
