package signal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"haven/pkg/domain"
	"haven/pkg/platform/sentinel"
	"haven/pkg/platform/tx"
)

// PostgresStore persists safety signals in PostgreSQL. Writes participate in
// a context transaction when one is present (see pkg/platform/tx), which the
// seal purge relies on.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, sig SafetySignal) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO safety_signals (id, child_id, family_id, trigger_method, platform, device_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sig.ID.String(), sig.ChildID.String(), sig.FamilyID.String(),
		sig.TriggerMethod.String(), sig.Platform.String(), sig.DeviceID, sig.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create signal: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.SignalID) (*SafetySignal, error) {
	q := tx.Resolve(ctx, s.db)
	row := q.QueryRowContext(ctx, `
		SELECT id, child_id, family_id, trigger_method, platform, device_id, created_at
		FROM safety_signals WHERE id = $1`, id.String())
	return scanSignal(row)
}

func (s *PostgresStore) ListByFamily(ctx context.Context, familyID domain.FamilyID) ([]SafetySignal, error) {
	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT id, child_id, family_id, trigger_method, platform, device_id, created_at
		FROM safety_signals WHERE family_id = $1 ORDER BY created_at`, familyID.String())
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []SafetySignal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sig)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.SignalID) error {
	q := tx.Resolve(ctx, s.db)
	res, err := q.ExecContext(ctx, `DELETE FROM safety_signals WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete signal: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (*SafetySignal, error) {
	var (
		sig                      SafetySignal
		idS, childS, famS, tm, p string
		device                   sql.NullString
	)
	err := row.Scan(&idS, &childS, &famS, &tm, &p, &device, &sig.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan signal: %w", err)
	}
	sigID, err := domain.ParseSignalID(idS)
	if err != nil {
		return nil, err
	}
	childID, err := domain.ParseChildID(childS)
	if err != nil {
		return nil, err
	}
	famID, err := domain.ParseFamilyID(famS)
	if err != nil {
		return nil, err
	}
	sig.ID, sig.ChildID, sig.FamilyID = sigID, childID, famID
	sig.TriggerMethod, sig.Platform = TriggerMethod(tm), Platform(p)
	if device.Valid {
		sig.DeviceID = &device.String
	}
	return &sig, nil
}
