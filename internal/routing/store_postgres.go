package routing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"haven/pkg/domain"
	"haven/pkg/platform/sentinel"
	"haven/pkg/platform/tx"
)

// PostgresStore persists the routing ledger in PostgreSQL. DeleteBySignal
// participates in the seal transaction via pkg/platform/tx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, result Result) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO routing_results (id, signal_id, partner_id, jurisdiction, status, acknowledged, acknowledged_at, partner_ref, retry_count, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		result.ID.String(), result.SignalID.String(), result.PartnerID.String(),
		result.Jurisdiction.String(),
		result.Status.String(), result.Acknowledged, result.AcknowledgedAt,
		result.PartnerRef, result.RetryCount, result.LastError,
		result.CreatedAt, result.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create routing result: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.ResultID) (*Result, error) {
	q := tx.Resolve(ctx, s.db)
	row := q.QueryRowContext(ctx, selectResult+` WHERE id = $1`, id.String())
	return scanResult(row)
}

func (s *PostgresStore) Update(ctx context.Context, result Result) error {
	q := tx.Resolve(ctx, s.db)
	res, err := q.ExecContext(ctx, `
		UPDATE routing_results
		SET status = $2, acknowledged = $3, acknowledged_at = $4, partner_ref = $5, retry_count = $6, last_error = $7, updated_at = $8
		WHERE id = $1`,
		result.ID.String(), result.Status.String(), result.Acknowledged,
		result.AcknowledgedAt, result.PartnerRef, result.RetryCount,
		result.LastError, result.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update routing result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update routing result: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListBySignal(ctx context.Context, signalID domain.SignalID) ([]Result, error) {
	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx, selectResult+` WHERE signal_id = $1 ORDER BY created_at`, signalID.String())
	if err != nil {
		return nil, fmt.Errorf("list routing results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteBySignal(ctx context.Context, signalID domain.SignalID) error {
	q := tx.Resolve(ctx, s.db)
	if _, err := q.ExecContext(ctx, `DELETE FROM routing_results WHERE signal_id = $1`, signalID.String()); err != nil {
		return fmt.Errorf("delete routing results: %w", err)
	}
	return nil
}

const selectResult = `
	SELECT id, signal_id, partner_id, jurisdiction, status, acknowledged, acknowledged_at, partner_ref, retry_count, last_error, created_at, updated_at
	FROM routing_results`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*Result, error) {
	var (
		r                          Result
		idS, sigS, partS, jur, st  string
		ackAt                      sql.NullTime
		partnerRef, lastErr        sql.NullString
	)
	err := row.Scan(&idS, &sigS, &partS, &jur, &st, &r.Acknowledged, &ackAt,
		&partnerRef, &r.RetryCount, &lastErr, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan routing result: %w", err)
	}
	signalID, err := domain.ParseSignalID(sigS)
	if err != nil {
		return nil, err
	}
	partnerID, err := domain.ParsePartnerID(partS)
	if err != nil {
		return nil, err
	}
	resultID, err := domain.ParseResultID(idS)
	if err != nil {
		return nil, err
	}
	r.ID = resultID
	r.SignalID, r.PartnerID, r.Status = signalID, partnerID, Status(st)
	r.Jurisdiction = domain.Jurisdiction(jur)
	if ackAt.Valid {
		r.AcknowledgedAt = &ackAt.Time
	}
	if partnerRef.Valid {
		r.PartnerRef = &partnerRef.String
	}
	if lastErr.Valid {
		r.LastError = &lastErr.String
	}
	return &r, nil
}
