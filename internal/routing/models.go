package routing

import (
	"time"

	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
)

// Status is the delivery lifecycle state of one routing attempt.
type Status string

const (
	// StatusPending: result created, delivery not yet attempted.
	StatusPending Status = "pending"
	// StatusSent: payload handed to the transport, awaiting acknowledgement.
	StatusSent Status = "sent"
	// StatusAcknowledged: terminal success. Requires a partner reference id.
	StatusAcknowledged Status = "acknowledged"
	// StatusFailed: delivery failed. Retryable back through sent until the
	// attempt ceiling is reached.
	StatusFailed Status = "failed"
)

// IsValid checks if the status is one of the supported enum values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusAcknowledged, StatusFailed:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// MaxDeliveryAttempts caps caller-driven retries recorded in the ledger.
// Backoff and scheduling belong to the transport collaborator; the ledger
// only refuses to record attempts past the ceiling.
const MaxDeliveryAttempts = 5

// Result is one routing-ledger entry: a single attempt to hand a signal to a
// partner, plus its delivery lifecycle. Entries are append-only per attempt
// and are never deleted except when the originating signal is sealed.
type Result struct {
	ID             domain.ResultID
	SignalID       domain.SignalID
	PartnerID      domain.PartnerID
	Jurisdiction   domain.Jurisdiction
	Status         Status
	Acknowledged   bool
	AcknowledgedAt *time.Time
	// PartnerRef is the partner-side case reference supplied on
	// acknowledgement.
	PartnerRef *string
	RetryCount int
	LastError  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MarkSent transitions pending or failed into sent.
func (r *Result) MarkSent(now time.Time) error {
	if r.Status == StatusAcknowledged {
		return sentinel.ErrInvalidState
	}
	if r.Status == StatusFailed && r.RetryCount >= MaxDeliveryAttempts {
		return ErrRetriesExhausted
	}
	if r.Status != StatusPending && r.Status != StatusFailed {
		return sentinel.ErrInvalidState
	}
	r.Status = StatusSent
	r.UpdatedAt = now
	return nil
}

// MarkFailed records a delivery failure: status failed, retry count
// incremented, last error overwritten. Past the attempt ceiling the result
// is terminally failed and ErrRetriesExhausted is returned.
func (r *Result) MarkFailed(deliveryErr string, now time.Time) error {
	if r.Status != StatusSent {
		return sentinel.ErrInvalidState
	}
	r.Status = StatusFailed
	r.RetryCount++
	r.LastError = &deliveryErr
	r.UpdatedAt = now
	if r.RetryCount >= MaxDeliveryAttempts {
		return ErrRetriesExhausted
	}
	return nil
}

// MarkAcknowledged terminally completes the attempt. A partner reference id
// is mandatory; once acknowledged no further transition is permitted.
func (r *Result) MarkAcknowledged(partnerRef string, now time.Time) error {
	if r.Status == StatusAcknowledged {
		return sentinel.ErrInvalidState
	}
	if r.Status != StatusSent {
		return sentinel.ErrInvalidState
	}
	if partnerRef == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "partner reference id is required for acknowledgement")
	}
	r.Status = StatusAcknowledged
	r.Acknowledged = true
	ackAt := now
	r.AcknowledgedAt = &ackAt
	r.PartnerRef = &partnerRef
	r.UpdatedAt = now
	return nil
}
