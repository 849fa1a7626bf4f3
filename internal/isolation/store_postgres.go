package isolation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"haven/internal/anonymize"
	"haven/pkg/domain"
	"haven/pkg/platform/sentinel"
	"haven/pkg/platform/tx"
)

// PostgresSealedStore persists isolated signals. The sealed_signals table is
// expected to live under a separate database role from the family-facing
// tables; this store only ever sees the restricted connection.
type PostgresSealedStore struct {
	db *sql.DB
}

func NewPostgresSealedStore(db *sql.DB) *PostgresSealedStore {
	return &PostgresSealedStore{db: db}
}

// NewSQLUnitOfWork wraps seal operations in a database transaction carried
// through context so every participating store shares it.
func NewSQLUnitOfWork(db *sql.DB) UnitOfWork {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return tx.Within(ctx, db, fn)
	}
}

func (s *PostgresSealedStore) Create(ctx context.Context, sealed IsolatedSignal) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO sealed_signals (id, anonymized_child_id, family_id, jurisdiction, original_status, original_created_at, sealed_at, seal_reason, encrypted_payload_ref, encryption_key_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sealed.ID.String(), string(sealed.AnonymizedChildID), sealed.FamilyID.String(),
		sealed.Jurisdiction.String(), sealed.OriginalStatus, sealed.OriginalCreatedAt,
		sealed.SealedAt, sealed.SealReason.String(), sealed.EncryptedPayloadRef, sealed.EncryptionKeyID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create sealed signal: %w", err)
	}
	return nil
}

func (s *PostgresSealedStore) Get(ctx context.Context, id domain.SignalID) (*IsolatedSignal, error) {
	q := tx.Resolve(ctx, s.db)
	row := q.QueryRowContext(ctx, `
		SELECT id, anonymized_child_id, family_id, jurisdiction, original_status, original_created_at, sealed_at, seal_reason, encrypted_payload_ref, encryption_key_id
		FROM sealed_signals WHERE id = $1`, id.String())

	var (
		sealed           IsolatedSignal
		idS, famS, anon  string
		jurisdiction, reason string
	)
	err := row.Scan(&idS, &anon, &famS, &jurisdiction, &sealed.OriginalStatus,
		&sealed.OriginalCreatedAt, &sealed.SealedAt, &reason,
		&sealed.EncryptedPayloadRef, &sealed.EncryptionKeyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan sealed signal: %w", err)
	}
	signalID, err := domain.ParseSignalID(idS)
	if err != nil {
		return nil, err
	}
	familyID, err := domain.ParseFamilyID(famS)
	if err != nil {
		return nil, err
	}
	sealed.ID, sealed.FamilyID = signalID, familyID
	sealed.AnonymizedChildID = anonymize.AnonymizedID(anon)
	sealed.Jurisdiction = domain.Jurisdiction(jurisdiction)
	sealed.SealReason = SealReason(reason)
	return &sealed, nil
}

func (s *PostgresSealedStore) Exists(ctx context.Context, id domain.SignalID) (bool, error) {
	q := tx.Resolve(ctx, s.db)
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sealed_signals WHERE id = $1)`, id.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check sealed signal: %w", err)
	}
	return exists, nil
}

// PostgresFamilyStore purges family-visible rows. Each Collection maps to a
// table with (id, signal_id, family_id) columns; deletions join the caller's
// context transaction so the purge is atomic with the seal.
type PostgresFamilyStore struct {
	db *sql.DB
}

func NewPostgresFamilyStore(db *sql.DB) *PostgresFamilyStore {
	return &PostgresFamilyStore{db: db}
}

// tableFor guards against SQL injection through the Collection type: only
// the enumerated collections map to a table name.
func tableFor(collection Collection) (string, error) {
	switch collection {
	case CollectionNotifications, CollectionActivityLogs, CollectionAuditTrails:
		return string(collection), nil
	default:
		return "", fmt.Errorf("unknown family collection: %s", collection)
	}
}

func (s *PostgresFamilyStore) FindBySignal(ctx context.Context, collection Collection, signalID domain.SignalID, familyID domain.FamilyID) ([]Ref, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}
	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE signal_id = $1 AND family_id = $2`, table),
		signalID.String(), familyID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("find %s refs: %w", collection, err)
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s ref: %w", collection, err)
		}
		refs = append(refs, Ref{Collection: collection, ID: id})
	}
	return refs, rows.Err()
}

func (s *PostgresFamilyStore) DeleteMany(ctx context.Context, refs []Ref) error {
	q := tx.Resolve(ctx, s.db)
	byCollection := make(map[Collection][]string)
	for _, ref := range refs {
		byCollection[ref.Collection] = append(byCollection[ref.Collection], ref.ID)
	}
	for collection, ids := range byCollection {
		table, err := tableFor(collection)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, table),
			pq.Array(ids),
		)
		if err != nil {
			return fmt.Errorf("delete %s refs: %w", collection, err)
		}
	}
	return nil
}

// PostgresLegalGate reads legal access requests. Read-only: the legal
// workflow system owns the writes.
type PostgresLegalGate struct {
	db *sql.DB
}

func NewPostgresLegalGate(db *sql.DB) *PostgresLegalGate {
	return &PostgresLegalGate{db: db}
}

func (g *PostgresLegalGate) Get(ctx context.Context, id domain.LegalRequestID) (*LegalRequest, error) {
	q := tx.Resolve(ctx, g.db)
	var (
		status  string
		rawIDs  []string
	)
	err := q.QueryRowContext(ctx, `
		SELECT status, signal_ids FROM legal_requests WHERE id = $1`, id.String(),
	).Scan(&status, pq.Array(&rawIDs))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load legal request: %w", err)
	}
	req := LegalRequest{ID: id, Status: LegalRequestStatus(status)}
	for _, raw := range rawIDs {
		signalID, err := domain.ParseSignalID(raw)
		if err != nil {
			return nil, err
		}
		req.SignalIDs = append(req.SignalIDs, signalID)
	}
	return &req, nil
}
