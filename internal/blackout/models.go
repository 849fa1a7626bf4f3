package blackout

import (
	"time"

	"haven/pkg/domain"
)

// Record is a per-signal family-notification suppression window. Any
// component deciding whether to notify the family checks it. Deliberately
// decoupled from delivery state: the window protects the child during the
// response period regardless of whether the partner has acknowledged.
type Record struct {
	SignalID  domain.SignalID
	StartedAt time.Time
	ExpiresAt time.Time
	// ExtendedBy records the partner that authorized the latest extension.
	ExtendedBy *domain.PartnerID
}

// ActiveAt reports whether the window suppresses notification at t.
func (r Record) ActiveAt(t time.Time) bool {
	return t.Before(r.ExpiresAt)
}

// WindowStatus is the read-only query result.
type WindowStatus struct {
	Active         bool
	RemainingHours float64
}
