package audit

import (
	"time"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
//
// This store is part of the operator trust domain. It is NOT one of the
// family-visible collections purged at seal time; those live behind
// isolation.FamilyVisibleStore.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Action    Action
	// SignalID correlates events across the routing/blackout/seal pipeline.
	SignalID string
	// ActorID is who performed the action: an admin subject, a partner id,
	// or "system".
	ActorID string
	Reason  string
	// Attrs carries action-specific detail. Never include child or family
	// identifying data here; use derived ids.
	Attrs map[string]any
	// RequestID is the HTTP correlation id when the event originated in a
	// request handler.
	RequestID string
}

// Action names an auditable pipeline action.
type Action string

const (
	EventSignalCreated        Action = "signal_created"
	EventSignalRouted         Action = "signal_routed"
	EventDeliverySent         Action = "delivery_sent"
	EventDeliveryFailed       Action = "delivery_failed"
	EventSignalAcknowledged   Action = "signal_acknowledged"
	EventBlackoutStarted      Action = "blackout_started"
	EventBlackoutExtended     Action = "blackout_extended"
	EventSignalSealed         Action = "signal_sealed"
	EventSealedRecordAccessed Action = "sealed_record_accessed"
	EventPartnerRegistered    Action = "partner_registered"
	EventPartnerDeactivated   Action = "partner_deactivated"
)

// CategoryOf returns the category an action belongs to.
func CategoryOf(action Action) EventCategory {
	switch action {
	case EventSignalSealed, EventSealedRecordAccessed, EventSignalCreated:
		return CategoryCompliance
	case EventPartnerRegistered, EventPartnerDeactivated:
		return CategorySecurity
	default:
		return CategoryOperations
	}
}
