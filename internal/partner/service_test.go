package partner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
)

type PartnerServiceSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
	svc   *Service
}

func TestPartnerServiceSuite(t *testing.T) {
	suite.Run(t, new(PartnerServiceSuite))
}

func (s *PartnerServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()

	svc, err := New(s.store)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *PartnerServiceSuite) registerRequest() RegisterRequest {
	return RegisterRequest{
		Name:          "CA Crisis Line",
		WebhookURL:    "https://partner.example.com/hook",
		RawAPIKey:     "raw-key-123",
		Jurisdictions: []string{"us-ca"},
		Capabilities:  []string{"crisis_intervention"},
		Priority:      1,
	}
}

func (s *PartnerServiceSuite) TestRegisterHashesKeyAndActivates() {
	p, err := s.svc.Register(s.ctx, s.registerRequest())
	s.Require().NoError(err)
	s.True(p.Active)
	s.Equal([]domain.Jurisdiction{"US-CA"}, p.Jurisdictions)

	// The raw key never lands in the record; only a bcrypt hash does.
	s.NotContains(p.APIKeyHash, "raw-key-123")
	s.NoError(bcrypt.CompareHashAndPassword([]byte(p.APIKeyHash), []byte("raw-key-123")))

	stored, err := s.store.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.APIKeyHash, stored.APIKeyHash)
}

func (s *PartnerServiceSuite) TestRegisterValidation() {
	req := s.registerRequest()
	req.RawAPIKey = ""
	_, err := s.svc.Register(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	req = s.registerRequest()
	req.Jurisdictions = []string{"not a code"}
	_, err = s.svc.Register(s.ctx, req)
	s.Error(err)

	req = s.registerRequest()
	req.Capabilities = []string{"mind_reading"}
	_, err = s.svc.Register(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	req = s.registerRequest()
	req.Name = ""
	_, err = s.svc.Register(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *PartnerServiceSuite) TestRegisterDedupesCoverage() {
	req := s.registerRequest()
	req.Jurisdictions = []string{"us-ca", " us-ca", "us-ca"}
	req.Capabilities = []string{"Crisis_Intervention", "crisis_intervention", ""}

	p, err := s.svc.Register(s.ctx, req)
	s.Require().NoError(err)
	s.Equal([]domain.Jurisdiction{"US-CA"}, p.Jurisdictions)
	s.Equal([]Capability{CapabilityCrisisIntervention}, p.Capabilities)
}

func (s *PartnerServiceSuite) TestVerifyAPIKey() {
	p, err := s.svc.Register(s.ctx, s.registerRequest())
	s.Require().NoError(err)

	s.NoError(s.svc.VerifyAPIKey(s.ctx, p.ID, "raw-key-123"))

	err = s.svc.VerifyAPIKey(s.ctx, p.ID, "wrong-key")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	err = s.svc.VerifyAPIKey(s.ctx, domain.NewPartnerID(), "raw-key-123")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *PartnerServiceSuite) TestDeactivate() {
	p, err := s.svc.Register(s.ctx, s.registerRequest())
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Deactivate(s.ctx, p.ID))
	stored, err := s.store.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.False(stored.Active)

	// Idempotent.
	s.NoError(s.svc.Deactivate(s.ctx, p.ID))

	err = s.svc.Deactivate(s.ctx, domain.NewPartnerID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *PartnerServiceSuite) TestList() {
	_, err := s.svc.Register(s.ctx, s.registerRequest())
	s.Require().NoError(err)
	second := s.registerRequest()
	second.Name = "US National Line"
	second.Jurisdictions = []string{"us"}
	_, err = s.svc.Register(s.ctx, second)
	s.Require().NoError(err)

	partners, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	s.Len(partners, 2)
}
