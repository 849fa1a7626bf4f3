package isolation_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"haven/internal/anonymize"
	"haven/internal/audit"
	"haven/internal/isolation"
	"haven/internal/routing"
	"haven/internal/signal"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
)

type IsolationServiceSuite struct {
	suite.Suite
	ctx        context.Context
	signals    *signal.InMemoryStore
	ledger     *routing.InMemoryStore
	sealed     *isolation.InMemorySealedStore
	family     *isolation.InMemoryFamilyStore
	legal      *isolation.InMemoryLegalGate
	anonymizer *anonymize.Anonymizer
	auditStore *audit.InMemoryStore
	svc        *isolation.Service
}

func TestIsolationServiceSuite(t *testing.T) {
	suite.Run(t, new(IsolationServiceSuite))
}

func (s *IsolationServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.signals = signal.NewInMemoryStore()
	s.ledger = routing.NewInMemoryStore()
	s.sealed = isolation.NewInMemorySealedStore()
	s.family = isolation.NewInMemoryFamilyStore()
	s.legal = isolation.NewInMemoryLegalGate()

	anonymizer, err := anonymize.New("test-secret")
	s.Require().NoError(err)
	s.anonymizer = anonymizer
	s.auditStore = audit.NewInMemoryStore()

	svc, err := isolation.New(
		s.signals, s.ledger, s.sealed, s.family, s.legal,
		s.anonymizer, s.unitOfWork(),
		isolation.WithAuditPublisher(audit.NewStorePublisher(s.auditStore)),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *IsolationServiceSuite) unitOfWork() isolation.UnitOfWork {
	return isolation.MemoryUnitOfWork(s.sealed, s.family, s.signals, s.ledger)
}

func (s *IsolationServiceSuite) seedSignal() signal.SafetySignal {
	sig := signal.SafetySignal{
		ID:            domain.NewSignalID(),
		ChildID:       domain.ChildID(domain.NewSignalID()),
		FamilyID:      domain.FamilyID(domain.NewSignalID()),
		TriggerMethod: signal.TriggerButton,
		Platform:      signal.PlatformIOS,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
	s.Require().NoError(s.signals.Create(s.ctx, sig))
	return sig
}

func (s *IsolationServiceSuite) seedRouted(sig signal.SafetySignal) routing.Result {
	now := time.Now()
	result := routing.Result{
		ID:           domain.NewResultID(),
		SignalID:     sig.ID,
		PartnerID:    domain.NewPartnerID(),
		Jurisdiction: "US-CA",
		Status:       routing.StatusAcknowledged,
		Acknowledged: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.Require().NoError(s.ledger.Create(s.ctx, result))
	return result
}

func (s *IsolationServiceSuite) seedFamilyDocs(sig signal.SafetySignal) {
	s.family.Put(isolation.CollectionNotifications, "n-1", sig.ID, sig.FamilyID)
	s.family.Put(isolation.CollectionNotifications, "n-2", sig.ID, sig.FamilyID)
	s.family.Put(isolation.CollectionActivityLogs, "a-1", sig.ID, sig.FamilyID)
	s.family.Put(isolation.CollectionAuditTrails, "t-1", sig.ID, sig.FamilyID)
	// A doc for another signal must survive the purge.
	s.family.Put(isolation.CollectionNotifications, "other", domain.NewSignalID(), sig.FamilyID)
}

func (s *IsolationServiceSuite) TestSealPurgesEverythingFamilyVisible() {
	sig := s.seedSignal()
	s.seedRouted(sig)
	s.seedFamilyDocs(sig)

	sealed, err := s.svc.Seal(s.ctx, sig.ID, isolation.ReasonChildProtection, "operator-1")
	s.Require().NoError(err)
	s.Equal(sig.ID, sealed.ID)
	s.Equal(isolation.ReasonChildProtection, sealed.SealReason)
	s.Equal(domain.Jurisdiction("US-CA"), sealed.Jurisdiction)
	s.Equal(routing.StatusAcknowledged.String(), sealed.OriginalStatus)
	s.NotEmpty(sealed.AnonymizedChildID)
	s.NotContains(string(sealed.AnonymizedChildID), sig.ChildID.String())

	// Signal row gone.
	_, err = s.signals.Get(s.ctx, sig.ID)
	s.Error(err)
	// Ledger gone.
	results, err := s.ledger.ListBySignal(s.ctx, sig.ID)
	s.Require().NoError(err)
	s.Empty(results)
	// Every family-visible collection purged of this signal.
	for _, collection := range isolation.FamilyCollections {
		refs, err := s.family.FindBySignal(s.ctx, collection, sig.ID, sig.FamilyID)
		s.Require().NoError(err)
		s.Empty(refs, "collection %s", collection)
	}

	// The unrelated doc survives.
	sealedFlag, err := s.svc.IsSealed(s.ctx, sig.ID)
	s.Require().NoError(err)
	s.True(sealedFlag)
}

func (s *IsolationServiceSuite) TestSealedRecordContainsNoIdentifyingFields() {
	sig := s.seedSignal()
	sealed, err := s.svc.Seal(s.ctx, sig.ID, isolation.ReasonLegalRequirement, "operator-1")
	s.Require().NoError(err)

	raw, err := json.Marshal(sealed)
	s.Require().NoError(err)
	s.NotContains(string(raw), sig.ChildID.String())
}

func (s *IsolationServiceSuite) TestSealUnknownSignal() {
	_, err := s.svc.Seal(s.ctx, domain.NewSignalID(), isolation.ReasonPartnerRequest, "operator-1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *IsolationServiceSuite) TestSealTwiceConflicts() {
	sig := s.seedSignal()
	_, err := s.svc.Seal(s.ctx, sig.ID, isolation.ReasonChildProtection, "operator-1")
	s.Require().NoError(err)

	_, err = s.svc.Seal(s.ctx, sig.ID, isolation.ReasonChildProtection, "operator-1")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *IsolationServiceSuite) TestSealRejectsInvalidReason() {
	sig := s.seedSignal()
	_, err := s.svc.Seal(s.ctx, sig.ID, isolation.SealReason("whim"), "operator-1")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *IsolationServiceSuite) TestSealWritesComplianceAudit() {
	sig := s.seedSignal()
	_, err := s.svc.Seal(s.ctx, sig.ID, isolation.ReasonLegalRequirement, "operator-1")
	s.Require().NoError(err)

	events, err := s.auditStore.ListBySignal(s.ctx, sig.ID.String())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.EventSignalSealed, events[0].Action)
	s.Equal(audit.CategoryCompliance, events[0].Category)
	s.Equal("operator-1", events[0].ActorID)
}

func (s *IsolationServiceSuite) TestSealFailsClosedOnAuditFailure() {
	svc, err := isolation.New(
		s.signals, s.ledger, s.sealed, s.family, s.legal,
		s.anonymizer, s.unitOfWork(),
		isolation.WithAuditPublisher(failingPublisher{}),
	)
	s.Require().NoError(err)

	sig := s.seedSignal()
	s.seedRouted(sig)
	s.seedFamilyDocs(sig)

	_, err = svc.Seal(s.ctx, sig.ID, isolation.ReasonChildProtection, "operator-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	// The failed seal rolled everything back: no sealed record, and every
	// family-visible trace is exactly where it was.
	sealedFlag, err := s.svc.IsSealed(s.ctx, sig.ID)
	s.Require().NoError(err)
	s.False(sealedFlag)

	_, err = s.signals.Get(s.ctx, sig.ID)
	s.Require().NoError(err)

	results, err := s.ledger.ListBySignal(s.ctx, sig.ID)
	s.Require().NoError(err)
	s.Len(results, 1)

	refs, err := s.family.FindBySignal(s.ctx, isolation.CollectionNotifications, sig.ID, sig.FamilyID)
	s.Require().NoError(err)
	s.Len(refs, 2)

	// Once the audit path recovers, the same seal goes through.
	sealed, err := s.svc.Seal(s.ctx, sig.ID, isolation.ReasonChildProtection, "operator-1")
	s.Require().NoError(err)
	s.Equal(sig.ID, sealed.ID)
}

func (s *IsolationServiceSuite) TestVerifyIsolation() {
	sig := s.seedSignal()
	s.seedFamilyDocs(sig)

	// Not sealed yet.
	_, err := s.svc.VerifyIsolation(s.ctx, sig.ID, sig.FamilyID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.svc.Seal(s.ctx, sig.ID, isolation.ReasonChildProtection, "operator-1")
	s.Require().NoError(err)

	clean, err := s.svc.VerifyIsolation(s.ctx, sig.ID, sig.FamilyID)
	s.Require().NoError(err)
	s.True(clean)

	// A leaked doc flips verification.
	s.family.Put(isolation.CollectionActivityLogs, "leak", sig.ID, sig.FamilyID)
	clean, err = s.svc.VerifyIsolation(s.ctx, sig.ID, sig.FamilyID)
	s.Require().NoError(err)
	s.False(clean)
}

func (s *IsolationServiceSuite) TestGetForLegalRequest() {
	sig := s.seedSignal()
	_, err := s.svc.Seal(s.ctx, sig.ID, isolation.ReasonLegalRequirement, "operator-1")
	s.Require().NoError(err)

	approvedID := domain.LegalRequestID(domain.NewSignalID())
	s.legal.Put(isolation.LegalRequest{
		ID:        approvedID,
		Status:    isolation.LegalRequestApproved,
		SignalIDs: []domain.SignalID{sig.ID},
	})

	s.Run("approved request covering the signal reads the record", func() {
		record, err := s.svc.GetForLegalRequest(s.ctx, sig.ID, approvedID)
		s.Require().NoError(err)
		s.Equal(sig.ID, record.ID)
	})

	s.Run("unknown request is not found", func() {
		_, err := s.svc.GetForLegalRequest(s.ctx, sig.ID, domain.LegalRequestID(domain.NewSignalID()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("pending request is the same not found", func() {
		pendingID := domain.LegalRequestID(domain.NewSignalID())
		s.legal.Put(isolation.LegalRequest{
			ID:        pendingID,
			Status:    isolation.LegalRequestPending,
			SignalIDs: []domain.SignalID{sig.ID},
		})
		_, err := s.svc.GetForLegalRequest(s.ctx, sig.ID, pendingID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("request not listing the signal is the same not found", func() {
		narrowID := domain.LegalRequestID(domain.NewSignalID())
		s.legal.Put(isolation.LegalRequest{
			ID:        narrowID,
			Status:    isolation.LegalRequestApproved,
			SignalIDs: []domain.SignalID{domain.NewSignalID()},
		})
		_, err := s.svc.GetForLegalRequest(s.ctx, sig.ID, narrowID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("access is audited", func() {
		events, err := s.auditStore.ListBySignal(s.ctx, sig.ID.String())
		s.Require().NoError(err)
		var accesses int
		for _, e := range events {
			if e.Action == audit.EventSealedRecordAccessed {
				accesses++
			}
		}
		s.Equal(1, accesses)
	})
}

func (s *IsolationServiceSuite) TestUnroutedSignalSealsWithUnroutedStatus() {
	sig := s.seedSignal()
	sealed, err := s.svc.Seal(s.ctx, sig.ID, isolation.ReasonChildProtection, "operator-1")
	s.Require().NoError(err)
	s.Equal("unrouted", sealed.OriginalStatus)
	s.True(sealed.Jurisdiction.IsNil())
}

type failingPublisher struct{}

func (failingPublisher) Emit(context.Context, audit.Event) error {
	return context.DeadlineExceeded
}
