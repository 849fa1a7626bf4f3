package domain

import (
	"strings"

	dErrors "haven/pkg/domain-errors"
)

// Jurisdiction is a region code: a country code, optionally followed by a
// hyphen and a subdivision ("US", "US-CA", "UK"). It determines which
// crisis-response partner a signal is routed to.
type Jurisdiction string

// ParseJurisdiction validates and normalizes a jurisdiction code to upper case.
// Accepted shapes are COUNTRY or COUNTRY-REGION, letters and digits only.
func ParseJurisdiction(s string) (Jurisdiction, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "jurisdiction cannot be empty")
	}
	code := strings.ToUpper(strings.TrimSpace(s))
	parts := strings.Split(code, "-")
	if len(parts) > 2 {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid jurisdiction: %s", s)
	}
	for _, part := range parts {
		if part == "" || !isAlnum(part) {
			return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid jurisdiction: %s", s)
		}
	}
	return Jurisdiction(code), nil
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// Country returns the country-level prefix: "US-CA" -> "US", "UK" -> "UK".
func (j Jurisdiction) Country() Jurisdiction {
	if i := strings.IndexByte(string(j), '-'); i >= 0 {
		return j[:i]
	}
	return j
}

// IsRegional reports whether the code carries a subdivision.
func (j Jurisdiction) IsRegional() bool {
	return strings.IndexByte(string(j), '-') >= 0
}

func (j Jurisdiction) String() string { return string(j) }

func (j Jurisdiction) IsNil() bool { return j == "" }
