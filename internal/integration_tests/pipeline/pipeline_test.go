//go:build integration

// Package pipeline exercises the full crisis-signal path against real
// backends: Postgres for the stores, Redis for the blackout windows, and a
// TLS test server standing in for the partner webhook.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"haven/internal/anonymize"
	"haven/internal/audit"
	"haven/internal/blackout"
	"haven/internal/isolation"
	"haven/internal/jwttoken"
	"haven/internal/partner"
	"haven/internal/routing"
	"haven/internal/signal"
	"haven/internal/signal/adapters"
	"haven/internal/webhook"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/testutil/containers"
)

type PipelineSuite struct {
	suite.Suite
	ctx context.Context

	pg     *containers.PostgresContainer
	rd     *containers.RedisContainer
	server *httptest.Server

	delivered chan []byte

	partnerSvc   *partner.Service
	routingSvc   *routing.Service
	blackoutMgr  *blackout.Manager
	signalSvc    *signal.Service
	isolationSvc *isolation.Service

	childID  domain.ChildID
	familyID domain.FamilyID
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.rd = containers.NewRedisContainer(s.T())

	s.delivered = make(chan []byte, 8)
	s.server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.delivered <- body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"partner_ref":"CASE-99"}`))
	}))
}

func (s *PipelineSuite) TearDownSuite() {
	s.server.Close()
	_ = s.pg.DB.Close()
	_ = s.pg.Container.Terminate(s.ctx)
	_ = s.rd.Client.Close()
	_ = s.rd.Container.Terminate(s.ctx)
}

func (s *PipelineSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx))
	s.Require().NoError(s.rd.Client.FlushAll(s.ctx).Err())

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditStore := audit.NewInMemoryStore()
	publisher := audit.NewStorePublisher(auditStore)

	anonymizer, err := anonymize.New("integration-secret")
	s.Require().NoError(err)
	tokens := jwttoken.NewService("integration-signing-key", "haven", "haven-api")

	signalStore := signal.NewPostgresStore(s.pg.DB)
	partnerStore := partner.NewPostgresStore(s.pg.DB)
	ledgerStore := routing.NewPostgresStore(s.pg.DB)

	deliverer, err := webhook.New(tokens,
		webhook.WithHTTPClient(s.server.Client()),
		webhook.WithTimeout(5*time.Second),
	)
	s.Require().NoError(err)

	s.partnerSvc, err = partner.New(partnerStore, partner.WithLogger(log))
	s.Require().NoError(err)
	s.routingSvc, err = routing.New(partnerStore, ledgerStore,
		routing.WithLogger(log),
		routing.WithDeliverer(deliverer),
	)
	s.Require().NoError(err)
	s.blackoutMgr, err = blackout.New(blackout.NewRedisStore(s.rd.Client),
		blackout.WithLogger(log),
	)
	s.Require().NoError(err)
	s.isolationSvc, err = isolation.New(
		signalStore, ledgerStore,
		isolation.NewPostgresSealedStore(s.pg.DB),
		isolation.NewPostgresFamilyStore(s.pg.DB),
		isolation.NewPostgresLegalGate(s.pg.DB),
		anonymizer,
		isolation.NewSQLUnitOfWork(s.pg.DB),
		isolation.WithAuditPublisher(publisher),
	)
	s.Require().NoError(err)
	s.signalSvc, err = signal.New(signalStore,
		signal.NewPostgresProfileDirectory(s.pg.DB),
		adapters.NewDeliveryRouter(s.routingSvc, partnerStore, log),
		adapters.NewBlackoutStart(s.blackoutMgr),
		signal.WithLogger(log),
	)
	s.Require().NoError(err)

	s.seedFamily()
}

func (s *PipelineSuite) seedFamily() {
	s.childID = domain.ChildID(domain.NewSignalID())
	s.familyID = domain.FamilyID(domain.NewSignalID())

	_, err := s.pg.DB.ExecContext(s.ctx,
		`INSERT INTO families (id, jurisdiction) VALUES ($1, $2)`,
		s.familyID.String(), "US-CA")
	s.Require().NoError(err)
	_, err = s.pg.DB.ExecContext(s.ctx,
		`INSERT INTO child_profiles (child_id, birth_date, family_structure) VALUES ($1, $2, $3)`,
		s.childID.String(), time.Date(2014, 1, 20, 0, 0, 0, 0, time.UTC), "two_parent")
	s.Require().NoError(err)
}

func (s *PipelineSuite) registerPartner(name, jurisdiction string, priority int) *partner.CrisisPartner {
	p, err := s.partnerSvc.Register(s.ctx, partner.RegisterRequest{
		Name:          name,
		WebhookURL:    s.server.URL,
		RawAPIKey:     "integration-key",
		Jurisdictions: []string{jurisdiction},
		Capabilities:  []string{"crisis_intervention"},
		Priority:      priority,
	})
	s.Require().NoError(err)
	return p
}

func (s *PipelineSuite) trigger() *signal.CreateResult {
	result, err := s.signalSvc.Create(s.ctx, signal.CreateRequest{
		ChildID:       s.childID,
		FamilyID:      s.familyID,
		TriggerMethod: signal.TriggerButton,
		Platform:      signal.PlatformIOS,
	})
	s.Require().NoError(err)
	return result
}

func (s *PipelineSuite) TestSignalRoutesToExactJurisdictionPartner() {
	caPartner := s.registerPartner("CA Crisis Line", "us-ca", 0)
	s.registerPartner("US National Line", "us", 5)

	result := s.trigger()
	s.True(result.Routed)

	ledger, err := s.routingSvc.ResultsForSignal(s.ctx, result.Signal.ID)
	s.Require().NoError(err)
	s.Require().Len(ledger, 1)
	s.Equal(caPartner.ID, ledger[0].PartnerID)
	s.Equal(routing.StatusAcknowledged, ledger[0].Status)
	s.Require().NotNil(ledger[0].PartnerRef)
	s.Equal("CASE-99", *ledger[0].PartnerRef)

	select {
	case body := <-s.delivered:
		s.Contains(string(body), `"jurisdiction":"US-CA"`)
		s.NotContains(string(body), s.childID.String())
	case <-time.After(5 * time.Second):
		s.Fail("no webhook delivery observed")
	}

	active, err := s.blackoutMgr.IsActive(s.ctx, result.Signal.ID)
	s.Require().NoError(err)
	s.True(active)
}

func (s *PipelineSuite) TestNoCoverageSurfacesExactError() {
	s.registerPartner("DE Crisis Line", "de", 0)

	_, err := s.signalSvc.Create(s.ctx, signal.CreateRequest{
		ChildID:       s.childID,
		FamilyID:      s.familyID,
		TriggerMethod: signal.TriggerButton,
		Platform:      signal.PlatformIOS,
	})
	s.Require().Error(err)
	s.Equal("No partner available for jurisdiction: US-CA", err.Error())
}

func (s *PipelineSuite) TestSealPurgesAndGatesLegalAccess() {
	s.registerPartner("CA Crisis Line", "us-ca", 0)
	result := s.trigger()
	<-s.delivered
	signalID := result.Signal.ID

	for _, table := range []string{"notifications", "activity_logs", "audit_trails"} {
		_, err := s.pg.DB.ExecContext(s.ctx,
			`INSERT INTO `+table+` (id, signal_id, family_id) VALUES ($1, $2, $3)`,
			domain.NewSignalID().String(), signalID.String(), s.familyID.String())
		s.Require().NoError(err)
	}

	sealed, err := s.isolationSvc.Seal(s.ctx, signalID, isolation.ReasonLegalRequirement, "operator-1")
	s.Require().NoError(err)
	s.Equal(domain.Jurisdiction("US-CA"), sealed.Jurisdiction)

	// Everything family-visible is gone in one transaction.
	_, err = s.signalSvc.Get(s.ctx, signalID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	ledger, err := s.routingSvc.ResultsForSignal(s.ctx, signalID)
	s.Require().NoError(err)
	s.Empty(ledger)
	for _, table := range []string{"notifications", "activity_logs", "audit_trails"} {
		var count int
		s.Require().NoError(s.pg.DB.QueryRowContext(s.ctx,
			`SELECT count(*) FROM `+table+` WHERE signal_id = $1`, signalID.String()).Scan(&count))
		s.Zero(count, table)
	}

	clean, err := s.isolationSvc.VerifyIsolation(s.ctx, signalID, s.familyID)
	s.Require().NoError(err)
	s.True(clean)

	// Only an approved legal request covering the signal can read the record.
	requestID := domain.LegalRequestID(domain.NewSignalID())
	_, err = s.pg.DB.ExecContext(s.ctx,
		`INSERT INTO legal_requests (id, status, signal_ids) VALUES ($1, 'approved', ARRAY[$2]::uuid[])`,
		requestID.String(), signalID.String())
	s.Require().NoError(err)

	record, err := s.isolationSvc.GetForLegalRequest(s.ctx, signalID, requestID)
	s.Require().NoError(err)
	s.Equal(signalID, record.ID)

	_, err = s.isolationSvc.GetForLegalRequest(s.ctx, signalID, domain.LegalRequestID(domain.NewSignalID()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *PipelineSuite) TestBlackoutExtensionSurvivesInRedis() {
	caPartner := s.registerPartner("CA Crisis Line", "us-ca", 0)
	result := s.trigger()
	<-s.delivered

	before, err := s.blackoutMgr.Status(s.ctx, result.Signal.ID)
	s.Require().NoError(err)

	extended, err := s.blackoutMgr.Extend(s.ctx, result.Signal.ID, 24, caPartner.ID)
	s.Require().NoError(err)

	after, err := s.blackoutMgr.Status(s.ctx, result.Signal.ID)
	s.Require().NoError(err)
	s.Greater(after.RemainingHours, before.RemainingHours)
	s.Require().NotNil(extended.ExtendedBy)
	s.Equal(caPartner.ID, *extended.ExtendedBy)
}
