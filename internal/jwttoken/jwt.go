package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"haven/internal/platform/middleware"
	dErrors "haven/pkg/domain-errors"
)

// Claims represents the JWT claims for haven service tokens. Role is "admin"
// for operators and legal reviewers, "delivery" for crisis-response partners
// acknowledging deliveries; delivery tokens handed to partners additionally
// carry the key-hash binding claim.
type Claims struct {
	Role    string `json:"role"`
	KeyHash string `json:"key_hash,omitempty"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewService(signingKey string, issuer string, audience string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateToken mints a role-scoped token for the given subject.
func (s *Service) GenerateToken(subject, role string, expiresIn time.Duration) (string, error) {
	return s.generate(Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
}

// GenerateDeliveryToken mints the short-lived token attached to an outbound
// webhook delivery. Subject is the partner id; key_hash lets the partner
// verify which registered API key the delivery was issued against.
func (s *Service) GenerateDeliveryToken(partnerID, keyHash string, expiresIn time.Duration) (string, error) {
	return s.generate(Claims{
		Role:    "delivery",
		KeyHash: keyHash,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   partnerID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
}

func (s *Service) generate(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// ValidateToken parses and verifies a token, returning the middleware-facing
// claims. Satisfies middleware.TokenValidator.
func (s *Service) ValidateToken(tokenString string) (*middleware.TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return &middleware.TokenClaims{Subject: claims.RegisteredClaims.Subject, Role: claims.Role}, nil
}
