package partner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"haven/internal/audit"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
	platformstrings "haven/pkg/platform/strings"
)

// Service is the administrative surface over the partner directory. The
// routing core never mutates partners; it reads through the Store directly.
type Service struct {
	store     Store
	logger    *slog.Logger
	publisher audit.Publisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("partner store is required")
	}
	svc := &Service{store: store}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RegisterRequest carries the raw registration input. RawAPIKey is hashed
// before storage and never persisted.
type RegisterRequest struct {
	Name          string
	WebhookURL    string
	RawAPIKey     string
	Jurisdictions []string
	Capabilities  []string
	Priority      int
}

// Register validates, hashes the API key, and stores a new active partner.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*CrisisPartner, error) {
	if req.RawAPIKey == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "api key is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.RawAPIKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash api key")
	}

	rawJurisdictions := platformstrings.DedupeAndTrim(req.Jurisdictions)
	jurisdictions := make([]domain.Jurisdiction, 0, len(rawJurisdictions))
	for _, raw := range rawJurisdictions {
		j, err := domain.ParseJurisdiction(raw)
		if err != nil {
			return nil, err
		}
		jurisdictions = append(jurisdictions, j)
	}
	rawCapabilities := platformstrings.DedupeAndTrimLower(req.Capabilities)
	capabilities := make([]Capability, 0, len(rawCapabilities))
	for _, raw := range rawCapabilities {
		c := Capability(raw)
		if !c.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid capability: %s", raw)
		}
		capabilities = append(capabilities, c)
	}

	now := time.Now()
	p := CrisisPartner{
		ID:            domain.NewPartnerID(),
		Name:          req.Name,
		WebhookURL:    req.WebhookURL,
		APIKeyHash:    string(hash),
		Jurisdictions: jurisdictions,
		Capabilities:  capabilities,
		Priority:      req.Priority,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save partner")
	}

	audit.Log(ctx, s.logger, s.publisher, audit.EventPartnerRegistered,
		"partner_id", p.ID.String(),
		"name", p.Name,
	)
	return &p, nil
}

// Deactivate removes a partner from routing eligibility without deleting its
// record; the routing ledger keeps referencing it for past attempts.
func (s *Service) Deactivate(ctx context.Context, id domain.PartnerID) error {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "partner not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load partner")
	}
	if !p.Active {
		return nil
	}
	p.Active = false
	p.UpdatedAt = time.Now()
	if err := s.store.Save(ctx, *p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save partner")
	}
	audit.Log(ctx, s.logger, s.publisher, audit.EventPartnerDeactivated,
		"partner_id", id.String(),
	)
	return nil
}

// List returns the full directory, active or not.
func (s *Service) List(ctx context.Context) ([]CrisisPartner, error) {
	partners, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list partners")
	}
	return partners, nil
}

// VerifyAPIKey checks a presented raw key against the stored hash.
func (s *Service) VerifyAPIKey(ctx context.Context, id domain.PartnerID, rawKey string) error {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "partner not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load partner")
	}
	if bcrypt.CompareHashAndPassword([]byte(p.APIKeyHash), []byte(rawKey)) != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
	}
	return nil
}
