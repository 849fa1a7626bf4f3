package routing

import (
	"bytes"
	"encoding/json"
	"time"

	"haven/internal/signal"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
)

// Payload is the ONLY data ever sent to a crisis-response partner. The type
// is closed: fields are unexported, population happens exclusively through
// BuildPayload, and the JSON shape is the fixed allow-list below. A field
// added to SafetySignal or the child profile cannot reach the wire without
// being added here explicitly.
//
// Never present: parent contact fields, screenshots, activity or browsing
// data, raw birthdate, sibling or family-member references, geolocation.
type Payload struct {
	signalID        domain.SignalID
	childAge        int
	familyStructure signal.FamilyStructure
	jurisdiction    domain.Jurisdiction
	platform        signal.Platform
	triggerMethod   signal.TriggerMethod
	deviceID        *string
}

// payloadWire is the closed wire shape. Kept private so handler code cannot
// marshal a payload any other way.
type payloadWire struct {
	SignalID        string  `json:"signal_id"`
	ChildAge        int     `json:"child_age"`
	FamilyStructure string  `json:"family_structure"`
	Jurisdiction    string  `json:"jurisdiction"`
	Platform        string  `json:"platform"`
	TriggerMethod   string  `json:"trigger_method"`
	DeviceID        *string `json:"device_id"`
}

// BuildPayload constructs the outbound payload. It fails closed: any missing
// or invalid input produces no payload at all, never a partial one.
func BuildPayload(sig signal.SafetySignal, childBirthDate time.Time, familyStructure signal.FamilyStructure, jurisdiction domain.Jurisdiction) (*Payload, error) {
	return buildPayloadAt(sig, childBirthDate, familyStructure, jurisdiction, time.Now())
}

func buildPayloadAt(sig signal.SafetySignal, childBirthDate time.Time, familyStructure signal.FamilyStructure, jurisdiction domain.Jurisdiction, now time.Time) (*Payload, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	if childBirthDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "child birth date is required")
	}
	if childBirthDate.After(now) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "child birth date is in the future")
	}
	if !familyStructure.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid family structure")
	}
	if jurisdiction.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "jurisdiction is required")
	}
	return &Payload{
		signalID:        sig.ID,
		childAge:        ageInYears(childBirthDate, now),
		familyStructure: familyStructure,
		jurisdiction:    jurisdiction,
		platform:        sig.Platform,
		triggerMethod:   sig.TriggerMethod,
		deviceID:        sig.DeviceID,
	}, nil
}

// ageInYears computes whole years with the standard birthday rule: the year
// does not increment until the month/day has been reached.
func ageInYears(birthDate, now time.Time) int {
	years := now.Year() - birthDate.Year()
	anniversary := time.Date(now.Year(), birthDate.Month(), birthDate.Day(), 0, 0, 0, 0, now.Location())
	if now.Before(anniversary) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

func (p *Payload) SignalID() domain.SignalID                { return p.signalID }
func (p *Payload) ChildAge() int                            { return p.childAge }
func (p *Payload) FamilyStructure() signal.FamilyStructure  { return p.familyStructure }
func (p *Payload) Jurisdiction() domain.Jurisdiction        { return p.jurisdiction }
func (p *Payload) Platform() signal.Platform                { return p.platform }
func (p *Payload) TriggerMethod() signal.TriggerMethod      { return p.triggerMethod }
func (p *Payload) DeviceID() *string                        { return p.deviceID }

// MarshalJSON emits exactly the allow-listed keys.
func (p *Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(payloadWire{
		SignalID:        p.signalID.String(),
		ChildAge:        p.childAge,
		FamilyStructure: p.familyStructure.String(),
		Jurisdiction:    p.jurisdiction.String(),
		Platform:        p.platform.String(),
		TriggerMethod:   p.triggerMethod.String(),
		DeviceID:        p.deviceID,
	})
}

// ParsePayload strictly decodes a wire payload. Unknown keys are rejected,
// not ignored, so an extra field injected anywhere upstream fails loudly
// instead of leaking through.
func ParsePayload(data []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var wire payloadWire
	if err := dec.Decode(&wire); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid routing payload")
	}
	// Reject trailing JSON values too.
	if dec.More() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid routing payload: trailing data")
	}

	signalID, err := domain.ParseSignalID(wire.SignalID)
	if err != nil {
		return nil, err
	}
	familyStructure, err := signal.ParseFamilyStructure(wire.FamilyStructure)
	if err != nil {
		return nil, err
	}
	jurisdiction, err := domain.ParseJurisdiction(wire.Jurisdiction)
	if err != nil {
		return nil, err
	}
	platform, err := signal.ParsePlatform(wire.Platform)
	if err != nil {
		return nil, err
	}
	triggerMethod, err := signal.ParseTriggerMethod(wire.TriggerMethod)
	if err != nil {
		return nil, err
	}
	if wire.ChildAge < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "child age cannot be negative")
	}
	return &Payload{
		signalID:        signalID,
		childAge:        wire.ChildAge,
		familyStructure: familyStructure,
		jurisdiction:    jurisdiction,
		platform:        platform,
		triggerMethod:   triggerMethod,
		deviceID:        wire.DeviceID,
	}, nil
}
