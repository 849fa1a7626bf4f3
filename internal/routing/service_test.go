package routing_test

//go:generate mockgen -source=service.go -destination=mocks/routing-mocks.go -package=mocks Deliverer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"haven/internal/partner"
	"haven/internal/routing"
	"haven/internal/routing/mocks"
	"haven/internal/signal"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
)

type RoutingServiceSuite struct {
	suite.Suite
	ctx       context.Context
	partners  partner.Store
	ledger    routing.Store
	deliverer *mocks.MockDeliverer
	svc       *routing.Service
}

func TestRoutingServiceSuite(t *testing.T) {
	suite.Run(t, new(RoutingServiceSuite))
}

func (s *RoutingServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.partners = partner.NewInMemoryStore()
	s.ledger = routing.NewInMemoryStore()

	ctrl := gomock.NewController(s.T())
	s.deliverer = mocks.NewMockDeliverer(ctrl)

	svc, err := routing.New(s.partners, s.ledger, routing.WithDeliverer(s.deliverer))
	s.Require().NoError(err)
	s.svc = svc
}

func (s *RoutingServiceSuite) addPartner(name string, jurisdictions []domain.Jurisdiction, priority int) partner.CrisisPartner {
	p := partner.CrisisPartner{
		ID:            domain.NewPartnerID(),
		Name:          name,
		WebhookURL:    "https://" + name + ".example.com/hook",
		APIKeyHash:    "hash",
		Jurisdictions: jurisdictions,
		Capabilities:  []partner.Capability{partner.CapabilityCrisisIntervention},
		Priority:      priority,
		Active:        true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	s.Require().NoError(s.partners.Save(s.ctx, p))
	return p
}

func (s *RoutingServiceSuite) newSignal() (signal.SafetySignal, signal.ChildProfile) {
	sig := signal.SafetySignal{
		ID:            domain.NewSignalID(),
		ChildID:       domain.ChildID(domain.NewSignalID()),
		FamilyID:      domain.FamilyID(domain.NewSignalID()),
		TriggerMethod: signal.TriggerButton,
		Platform:      signal.PlatformIOS,
		CreatedAt:     time.Now(),
	}
	profile := signal.ChildProfile{
		ChildID:         sig.ChildID,
		BirthDate:       time.Date(2014, 1, 20, 0, 0, 0, 0, time.UTC),
		FamilyStructure: signal.FamilyTwoParent,
	}
	return sig, profile
}

func (s *RoutingServiceSuite) TestRouteSelectsExactOverCountry() {
	s.addPartner("national", []domain.Jurisdiction{"US"}, 0)
	state := s.addPartner("state", []domain.Jurisdiction{"US-CA"}, 5)
	sig, profile := s.newSignal()

	result, payload, err := s.svc.RouteSignalToPartner(s.ctx, sig, profile, "US-CA")
	s.Require().NoError(err)
	s.Equal(state.ID, result.PartnerID)
	s.Equal(routing.StatusPending, result.Status)
	s.Equal(domain.Jurisdiction("US-CA"), result.Jurisdiction)
	s.NotNil(payload)

	stored, err := s.ledger.Get(s.ctx, result.ID)
	s.Require().NoError(err)
	s.Equal(routing.StatusPending, stored.Status)
}

func (s *RoutingServiceSuite) TestRouteNoPartnerCreatesNoEntry() {
	s.addPartner("national", []domain.Jurisdiction{"US"}, 0)
	sig, profile := s.newSignal()

	_, _, err := s.svc.RouteSignalToPartner(s.ctx, sig, profile, "FR")
	s.Require().Error(err)

	var noPartner *routing.ErrNoPartner
	s.Require().ErrorAs(err, &noPartner)
	s.Equal("No partner available for jurisdiction: FR", err.Error())

	results, err := s.ledger.ListBySignal(s.ctx, sig.ID)
	s.Require().NoError(err)
	s.Empty(results, "a failed route must leave no ledger entry")
}

func (s *RoutingServiceSuite) TestDeliverWithSynchronousAck() {
	s.addPartner("state", []domain.Jurisdiction{"US-CA"}, 0)
	sig, profile := s.newSignal()
	result, payload, err := s.svc.RouteSignalToPartner(s.ctx, sig, profile, "US-CA")
	s.Require().NoError(err)

	p, err := s.partners.Get(s.ctx, result.PartnerID)
	s.Require().NoError(err)

	s.deliverer.EXPECT().
		Deliver(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("CASE-99", nil)

	s.Require().NoError(s.svc.Deliver(s.ctx, result.ID, *p, payload))

	stored, err := s.ledger.Get(s.ctx, result.ID)
	s.Require().NoError(err)
	s.Equal(routing.StatusAcknowledged, stored.Status)
	s.True(stored.Acknowledged)
	s.Require().NotNil(stored.PartnerRef)
	s.Equal("CASE-99", *stored.PartnerRef)
}

func (s *RoutingServiceSuite) TestDeliverWithoutSynchronousAckStaysSent() {
	s.addPartner("state", []domain.Jurisdiction{"US-CA"}, 0)
	sig, profile := s.newSignal()
	result, payload, err := s.svc.RouteSignalToPartner(s.ctx, sig, profile, "US-CA")
	s.Require().NoError(err)

	p, err := s.partners.Get(s.ctx, result.PartnerID)
	s.Require().NoError(err)

	s.deliverer.EXPECT().
		Deliver(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", nil)

	s.Require().NoError(s.svc.Deliver(s.ctx, result.ID, *p, payload))

	stored, err := s.ledger.Get(s.ctx, result.ID)
	s.Require().NoError(err)
	s.Equal(routing.StatusSent, stored.Status)
	s.False(stored.Acknowledged)
}

func (s *RoutingServiceSuite) TestDeliveryFailureRecordsRetry() {
	s.addPartner("state", []domain.Jurisdiction{"US-CA"}, 0)
	sig, profile := s.newSignal()
	result, payload, err := s.svc.RouteSignalToPartner(s.ctx, sig, profile, "US-CA")
	s.Require().NoError(err)

	p, err := s.partners.Get(s.ctx, result.PartnerID)
	s.Require().NoError(err)

	s.deliverer.EXPECT().
		Deliver(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", errors.New("connection refused"))

	err = s.svc.Deliver(s.ctx, result.ID, *p, payload)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	stored, err := s.ledger.Get(s.ctx, result.ID)
	s.Require().NoError(err)
	s.Equal(routing.StatusFailed, stored.Status)
	s.Equal(1, stored.RetryCount)
	s.Require().NotNil(stored.LastError)
	s.Contains(*stored.LastError, "connection refused")
}

func (s *RoutingServiceSuite) TestAcknowledgeCallback() {
	s.addPartner("state", []domain.Jurisdiction{"US-CA"}, 0)
	sig, profile := s.newSignal()
	result, payload, err := s.svc.RouteSignalToPartner(s.ctx, sig, profile, "US-CA")
	s.Require().NoError(err)

	p, err := s.partners.Get(s.ctx, result.PartnerID)
	s.Require().NoError(err)

	s.deliverer.EXPECT().
		Deliver(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", nil)
	s.Require().NoError(s.svc.Deliver(s.ctx, result.ID, *p, payload))

	s.Require().NoError(s.svc.Acknowledge(s.ctx, result.ID, "CASE-7"))

	// Acknowledged is terminal: a second ack is a conflict.
	err = s.svc.Acknowledge(s.ctx, result.ID, "CASE-8")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	stored, err := s.ledger.Get(s.ctx, result.ID)
	s.Require().NoError(err)
	s.Equal("CASE-7", *stored.PartnerRef)
}

func (s *RoutingServiceSuite) TestAcknowledgeUnknownResult() {
	err := s.svc.Acknowledge(s.ctx, domain.NewResultID(), "CASE-1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
