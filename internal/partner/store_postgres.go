package partner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"haven/pkg/domain"
	"haven/pkg/platform/sentinel"
)

// PostgresStore persists the partner directory in PostgreSQL. Jurisdiction
// and capability sets are stored as text arrays.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, p CrisisPartner) error {
	jurisdictions := make([]string, len(p.Jurisdictions))
	for i, j := range p.Jurisdictions {
		jurisdictions[i] = j.String()
	}
	capabilities := make([]string, len(p.Capabilities))
	for i, c := range p.Capabilities {
		capabilities[i] = c.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crisis_partners (id, name, webhook_url, api_key_hash, jurisdictions, capabilities, priority, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			webhook_url = EXCLUDED.webhook_url,
			api_key_hash = EXCLUDED.api_key_hash,
			jurisdictions = EXCLUDED.jurisdictions,
			capabilities = EXCLUDED.capabilities,
			priority = EXCLUDED.priority,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		p.ID.String(), p.Name, p.WebhookURL, p.APIKeyHash,
		pq.Array(jurisdictions), pq.Array(capabilities),
		p.Priority, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save partner: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.PartnerID) (*CrisisPartner, error) {
	row := s.db.QueryRowContext(ctx, selectPartner+` WHERE id = $1`, id.String())
	p, err := scanPartner(row)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]CrisisPartner, error) {
	return s.list(ctx, selectPartner+` ORDER BY priority, name`)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]CrisisPartner, error) {
	return s.list(ctx, selectPartner+` WHERE active ORDER BY priority, name`)
}

const selectPartner = `
	SELECT id, name, webhook_url, api_key_hash, jurisdictions, capabilities, priority, active, created_at, updated_at
	FROM crisis_partners`

func (s *PostgresStore) list(ctx context.Context, query string) ([]CrisisPartner, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	defer rows.Close()

	var out []CrisisPartner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPartner(row rowScanner) (*CrisisPartner, error) {
	var (
		p                            CrisisPartner
		idS                          string
		jurisdictions, capabilities  pq.StringArray
	)
	err := row.Scan(&idS, &p.Name, &p.WebhookURL, &p.APIKeyHash,
		&jurisdictions, &capabilities, &p.Priority, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan partner: %w", err)
	}
	id, err := domain.ParsePartnerID(idS)
	if err != nil {
		return nil, err
	}
	p.ID = id
	p.Jurisdictions = make([]domain.Jurisdiction, len(jurisdictions))
	for i, j := range jurisdictions {
		p.Jurisdictions[i] = domain.Jurisdiction(j)
	}
	p.Capabilities = make([]Capability, len(capabilities))
	for i, c := range capabilities {
		p.Capabilities[i] = Capability(c)
	}
	return &p, nil
}
