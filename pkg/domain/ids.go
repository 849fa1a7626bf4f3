// Package domain holds shared domain primitives: typed identifiers and the
// jurisdiction code. IDs are distinct types over uuid.UUID so a ChildID can
// never be passed where a PartnerID is expected; parsing happens once, at
// trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "haven/pkg/domain-errors"
)

type (
	// SignalID identifies a safety signal.
	SignalID uuid.UUID
	// ChildID identifies the reporting child. Never sent externally raw;
	// see internal/anonymize.
	ChildID uuid.UUID
	// FamilyID identifies the family account.
	FamilyID uuid.UUID
	// PartnerID identifies a registered crisis-response partner.
	PartnerID uuid.UUID
	// ResultID identifies one routing-ledger entry.
	ResultID uuid.UUID
	// LegalRequestID identifies an approved legal access request.
	LegalRequestID uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s: not a UUID", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be the nil UUID", kind)
	}
	return u, nil
}

// ParseSignalID validates and returns a SignalID.
func ParseSignalID(s string) (SignalID, error) {
	u, err := parseUUID(s, "signal id")
	return SignalID(u), err
}

// ParseChildID validates and returns a ChildID.
func ParseChildID(s string) (ChildID, error) {
	u, err := parseUUID(s, "child id")
	return ChildID(u), err
}

// ParseFamilyID validates and returns a FamilyID.
func ParseFamilyID(s string) (FamilyID, error) {
	u, err := parseUUID(s, "family id")
	return FamilyID(u), err
}

// ParseResultID validates and returns a ResultID.
func ParseResultID(s string) (ResultID, error) {
	u, err := parseUUID(s, "result id")
	return ResultID(u), err
}

// ParsePartnerID validates and returns a PartnerID.
func ParsePartnerID(s string) (PartnerID, error) {
	u, err := parseUUID(s, "partner id")
	return PartnerID(u), err
}

// ParseLegalRequestID validates and returns a LegalRequestID.
func ParseLegalRequestID(s string) (LegalRequestID, error) {
	u, err := parseUUID(s, "legal request id")
	return LegalRequestID(u), err
}

func (id SignalID) String() string       { return uuid.UUID(id).String() }
func (id ChildID) String() string        { return uuid.UUID(id).String() }
func (id FamilyID) String() string       { return uuid.UUID(id).String() }
func (id PartnerID) String() string      { return uuid.UUID(id).String() }
func (id ResultID) String() string       { return uuid.UUID(id).String() }
func (id LegalRequestID) String() string { return uuid.UUID(id).String() }

func (id SignalID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ChildID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id FamilyID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id PartnerID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ResultID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id LegalRequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewSignalID generates a fresh SignalID.
func NewSignalID() SignalID { return SignalID(uuid.New()) }

// NewPartnerID generates a fresh PartnerID.
func NewPartnerID() PartnerID { return PartnerID(uuid.New()) }

// NewResultID generates a fresh ResultID.
func NewResultID() ResultID { return ResultID(uuid.New()) }
