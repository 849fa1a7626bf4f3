// Package anonymize derives one-way identifiers. Sealed records and partner
// payloads correlate on these derived ids so the originals never leave the
// family trust domain.
package anonymize

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mssola/useragent"

	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
)

// AnonymizedID is a fixed-width, hex-encoded derived identifier.
type AnonymizedID string

// FingerprintID is a stable device fingerprint derived from coarse user-agent
// signals plus a hashed IP.
type FingerprintID string

// Anonymizer derives identifiers with keyed HMAC-SHA256. Deterministic per
// secret for operational correlation; not reversible without the secret, and
// fixed-width so nothing about the source id's length or content leaks.
type Anonymizer struct {
	secret []byte
}

// New creates an Anonymizer. The secret must be non-empty; a missing secret
// would silently degrade the derivation to an unkeyed hash.
func New(secret string) (*Anonymizer, error) {
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "anonymization secret is required")
	}
	return &Anonymizer{secret: []byte(secret)}, nil
}

// AnonymizeChild derives the anonymized form of a child id.
func (a *Anonymizer) AnonymizeChild(childID domain.ChildID) (AnonymizedID, error) {
	if childID.IsNil() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "child id is required")
	}
	return AnonymizedID(a.derive("child:" + childID.String())), nil
}

// Fingerprint combines parsed device signals with a hashed IP into a stable
// fingerprint id. The raw user agent is reduced to browser name, OS, and
// device class before hashing so incidental UA churn (minor versions) does
// not fragment the fingerprint.
func (a *Anonymizer) Fingerprint(userAgent, ipHash string) (FingerprintID, error) {
	if ipHash == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "ip hash is required")
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	device := "desktop"
	switch {
	case ua.Bot():
		device = "bot"
	case ua.Mobile():
		device = "mobile"
	}
	stable := strings.ToLower(fmt.Sprintf("%s|%s|%s|%s", browser, ua.OS(), device, ipHash))
	return FingerprintID(a.derive("fp:" + stable)), nil
}

func (a *Anonymizer) derive(input string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(input))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashIP hashes an IP address with a salt. Deterministic per salt so repeat
// visits correlate; raw IPs are never persisted.
func HashIP(ip, salt string) (string, error) {
	if ip == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "ip is required")
	}
	if salt == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "ip salt is required")
	}
	sum := sha256.Sum256([]byte(salt + ":" + ip))
	return hex.EncodeToString(sum[:]), nil
}
