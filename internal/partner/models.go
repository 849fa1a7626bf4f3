package partner

import (
	"net/url"
	"time"

	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
)

// Capability tags what a crisis-response partner can do. Selection does not
// rank on capabilities today; they are surfaced to administrators.
type Capability string

const (
	CapabilityCrisisIntervention Capability = "crisis_intervention"
	CapabilityCounseling         Capability = "counseling"
	CapabilityLawEnforcement     Capability = "law_enforcement_liaison"
	CapabilityShelterReferral    Capability = "shelter_referral"
)

// IsValid checks if the capability is one of the supported enum values.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityCrisisIntervention, CapabilityCounseling, CapabilityLawEnforcement, CapabilityShelterReferral:
		return true
	}
	return false
}

func (c Capability) String() string { return string(c) }

// CrisisPartner is a registered external responder. Administrators own these
// records; the routing core reads them only.
type CrisisPartner struct {
	ID            domain.PartnerID
	Name          string
	WebhookURL    string
	APIKeyHash    string
	Jurisdictions []domain.Jurisdiction
	Capabilities  []Capability
	// Priority ranks partners within equal jurisdiction specificity.
	// Lower value wins.
	Priority  int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Covers reports how the partner's jurisdiction set matches the target:
// exact subdivision match, country-level fallback, or not at all.
func (p CrisisPartner) Covers(j domain.Jurisdiction) CoverageLevel {
	country := j.Country()
	level := CoverageNone
	for _, owned := range p.Jurisdictions {
		if owned == j {
			return CoverageExact
		}
		if owned == country {
			level = CoverageCountry
		}
	}
	return level
}

// CoverageLevel orders jurisdiction match specificity.
type CoverageLevel int

const (
	CoverageNone CoverageLevel = iota
	CoverageCountry
	CoverageExact
)

// Validate enforces registration invariants.
func (p CrisisPartner) Validate() error {
	if p.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "partner id is required")
	}
	if p.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "partner name is required")
	}
	u, err := url.Parse(p.WebhookURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "webhook url must be a valid https endpoint")
	}
	if p.APIKeyHash == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "api key hash is required")
	}
	if len(p.Jurisdictions) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one jurisdiction is required")
	}
	for _, c := range p.Capabilities {
		if !c.IsValid() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "invalid capability: %s", c)
		}
	}
	if p.Priority < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "priority cannot be negative")
	}
	return nil
}
