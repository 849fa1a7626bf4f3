package signal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
	"haven/pkg/platform/tx"
)

// InMemoryProfileDirectory is the in-memory ProfileDirectory used in tests
// and single-node deployments without Postgres.
type InMemoryProfileDirectory struct {
	mu            sync.RWMutex
	profiles      map[domain.ChildID]ChildProfile
	jurisdictions map[domain.FamilyID]domain.Jurisdiction
}

func NewInMemoryProfileDirectory() *InMemoryProfileDirectory {
	return &InMemoryProfileDirectory{
		profiles:      make(map[domain.ChildID]ChildProfile),
		jurisdictions: make(map[domain.FamilyID]domain.Jurisdiction),
	}
}

func (d *InMemoryProfileDirectory) PutProfile(profile ChildProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[profile.ChildID] = profile
}

func (d *InMemoryProfileDirectory) PutFamily(familyID domain.FamilyID, jurisdiction domain.Jurisdiction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jurisdictions[familyID] = jurisdiction
}

func (d *InMemoryProfileDirectory) ChildProfile(_ context.Context, childID domain.ChildID) (*ChildProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profile, ok := d.profiles[childID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "child profile not found")
	}
	return &profile, nil
}

func (d *InMemoryProfileDirectory) FamilyJurisdiction(_ context.Context, familyID domain.FamilyID) (domain.Jurisdiction, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	j, ok := d.jurisdictions[familyID]
	if !ok {
		return "", dErrors.New(dErrors.CodeNotFound, "family jurisdiction not found")
	}
	return j, nil
}

// PostgresProfileDirectory reads child and family attributes from the
// account tables. Read-only: account management owns the writes.
type PostgresProfileDirectory struct {
	db *sql.DB
}

func NewPostgresProfileDirectory(db *sql.DB) *PostgresProfileDirectory {
	return &PostgresProfileDirectory{db: db}
}

func (d *PostgresProfileDirectory) ChildProfile(ctx context.Context, childID domain.ChildID) (*ChildProfile, error) {
	q := tx.Resolve(ctx, d.db)
	var (
		birthDate time.Time
		structure string
	)
	err := q.QueryRowContext(ctx, `
		SELECT birth_date, family_structure
		FROM child_profiles WHERE child_id = $1`, childID.String(),
	).Scan(&birthDate, &structure)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "child profile not found")
		}
		return nil, fmt.Errorf("load child profile: %w", err)
	}
	fs, err := ParseFamilyStructure(structure)
	if err != nil {
		return nil, err
	}
	return &ChildProfile{ChildID: childID, BirthDate: birthDate, FamilyStructure: fs}, nil
}

func (d *PostgresProfileDirectory) FamilyJurisdiction(ctx context.Context, familyID domain.FamilyID) (domain.Jurisdiction, error) {
	q := tx.Resolve(ctx, d.db)
	var code string
	err := q.QueryRowContext(ctx, `
		SELECT jurisdiction FROM families WHERE id = $1`, familyID.String(),
	).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "family jurisdiction not found")
		}
		return "", fmt.Errorf("load family jurisdiction: %w", err)
	}
	return domain.ParseJurisdiction(code)
}
