package isolation

import (
	"time"

	"haven/internal/anonymize"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
)

// SealReason is why a signal was sealed.
type SealReason string

const (
	// ReasonLegalRequirement: sealing mandated by the responding
	// jurisdiction (e.g. an active protective case).
	ReasonLegalRequirement SealReason = "legal_requirement"
	// ReasonPartnerRequest: the crisis partner requested isolation to
	// protect the reporting child.
	ReasonPartnerRequest SealReason = "partner_request"
	// ReasonChildProtection: internal safety review decision.
	ReasonChildProtection SealReason = "child_protection"
)

// IsValid checks if the seal reason is one of the supported enum values.
func (r SealReason) IsValid() bool {
	switch r {
	case ReasonLegalRequirement, ReasonPartnerRequest, ReasonChildProtection:
		return true
	}
	return false
}

// ParseSealReason creates a SealReason from a string, validating it.
func ParseSealReason(s string) (SealReason, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "seal reason cannot be empty")
	}
	r := SealReason(s)
	if !r.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid seal reason: %s", s)
	}
	return r, nil
}

func (r SealReason) String() string { return string(r) }

// IsolatedSignal is the sealed, terminal form of a signal. It lives in a
// separate trust domain from the family's data graph: the child id is the
// one-way derived form, and the family id is retained ONLY so
// VerifyIsolation can prove the purge, never for display. No name, contact,
// or other family-identifying field is ever copied in.
type IsolatedSignal struct {
	ID                domain.SignalID
	AnonymizedChildID anonymize.AnonymizedID
	FamilyID          domain.FamilyID
	Jurisdiction      domain.Jurisdiction
	OriginalStatus    string
	OriginalCreatedAt time.Time
	SealedAt          time.Time
	SealReason        SealReason
	// EncryptedPayloadRef points at the encrypted payload blob in the
	// isolation vault; the encryption scheme itself is a vault concern.
	EncryptedPayloadRef string
	EncryptionKeyID     string
}
