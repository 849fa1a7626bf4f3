package signal

import (
	"time"

	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
)

// TriggerMethod is how the child invoked the safety trigger.
type TriggerMethod string

const (
	TriggerButton      TriggerMethod = "button"
	TriggerGesture     TriggerMethod = "gesture"
	TriggerKeyword     TriggerMethod = "keyword"
	TriggerCheckInMiss TriggerMethod = "check_in_miss"
)

// IsValid checks if the trigger method is one of the supported enum values.
func (m TriggerMethod) IsValid() bool {
	switch m {
	case TriggerButton, TriggerGesture, TriggerKeyword, TriggerCheckInMiss:
		return true
	}
	return false
}

// ParseTriggerMethod creates a TriggerMethod from a string, validating it.
func ParseTriggerMethod(s string) (TriggerMethod, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "trigger method cannot be empty")
	}
	m := TriggerMethod(s)
	if !m.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid trigger method: %s", s)
	}
	return m, nil
}

func (m TriggerMethod) String() string { return string(m) }

// Platform is the client platform the signal originated from.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
	PlatformDesktop Platform = "desktop"
)

// IsValid checks if the platform is one of the supported enum values.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb, PlatformDesktop:
		return true
	}
	return false
}

// ParsePlatform creates a Platform from a string, validating it.
func ParsePlatform(s string) (Platform, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "platform cannot be empty")
	}
	p := Platform(s)
	if !p.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid platform: %s", s)
	}
	return p, nil
}

func (p Platform) String() string { return string(p) }

// SafetySignal is a child-initiated crisis trigger event. Immutable once
// created; owned by this subsystem until sealed.
type SafetySignal struct {
	ID            domain.SignalID
	ChildID       domain.ChildID
	FamilyID      domain.FamilyID
	TriggerMethod TriggerMethod
	Platform      Platform
	DeviceID      *string
	CreatedAt     time.Time
}

// Validate enforces the creation invariants. A signal with missing identity
// fields is rejected outright; there is no partial signal.
func (s SafetySignal) Validate() error {
	if s.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "signal id is required")
	}
	if s.ChildID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "child id is required")
	}
	if s.FamilyID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "family id is required")
	}
	if !s.TriggerMethod.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid trigger method")
	}
	if !s.Platform.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid platform")
	}
	return nil
}

// ChildProfile carries the derived child attributes routing needs. It is the
// only view of the child the routing core ever sees.
type ChildProfile struct {
	ChildID         domain.ChildID
	BirthDate       time.Time
	FamilyStructure FamilyStructure
}

// FamilyStructure is the coarse household classification shared with
// partners for response-context purposes.
type FamilyStructure string

const (
	FamilyTwoParent    FamilyStructure = "two_parent"
	FamilySingleParent FamilyStructure = "single_parent"
	FamilyGuardian     FamilyStructure = "guardian"
	FamilyFoster       FamilyStructure = "foster"
	FamilyOther        FamilyStructure = "other"
)

// IsValid checks if the family structure is one of the supported enum values.
func (f FamilyStructure) IsValid() bool {
	switch f {
	case FamilyTwoParent, FamilySingleParent, FamilyGuardian, FamilyFoster, FamilyOther:
		return true
	}
	return false
}

// ParseFamilyStructure creates a FamilyStructure from a string, validating it.
func ParseFamilyStructure(s string) (FamilyStructure, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "family structure cannot be empty")
	}
	f := FamilyStructure(s)
	if !f.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid family structure: %s", s)
	}
	return f, nil
}

func (f FamilyStructure) String() string { return string(f) }
