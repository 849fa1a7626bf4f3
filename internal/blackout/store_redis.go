package blackout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"haven/pkg/domain"
	"haven/pkg/platform/sentinel"
)

var extendConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "haven_blackout_extend_conflicts_total",
	Help: "Optimistic-concurrency conflicts on blackout extension",
})

const (
	blackoutKeyPrefix = "blackout:signal:"

	// recordRetention keeps expired windows readable for audit queries
	// after the suppression itself has lapsed.
	recordRetention = 30 * 24 * time.Hour
)

// RedisStore is the production blackout store for distributed deployments:
// multiple instances share suppression state, and WATCH gives the
// read-then-write extension its optimistic-concurrency guard.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(signalID domain.SignalID) string {
	return blackoutKeyPrefix + signalID.String()
}

type redisRecord struct {
	SignalID   string    `json:"signal_id"`
	StartedAt  time.Time `json:"started_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	ExtendedBy *string   `json:"extended_by,omitempty"`
}

func toRedis(r Record) redisRecord {
	out := redisRecord{
		SignalID:  r.SignalID.String(),
		StartedAt: r.StartedAt,
		ExpiresAt: r.ExpiresAt,
	}
	if r.ExtendedBy != nil {
		s := r.ExtendedBy.String()
		out.ExtendedBy = &s
	}
	return out
}

func fromRedis(raw []byte) (*Record, error) {
	var rr redisRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("decode blackout record: %w", err)
	}
	signalID, err := domain.ParseSignalID(rr.SignalID)
	if err != nil {
		return nil, err
	}
	record := &Record{SignalID: signalID, StartedAt: rr.StartedAt, ExpiresAt: rr.ExpiresAt}
	if rr.ExtendedBy != nil {
		partnerID, err := domain.ParsePartnerID(*rr.ExtendedBy)
		if err != nil {
			return nil, err
		}
		record.ExtendedBy = &partnerID
	}
	return record, nil
}

func (s *RedisStore) Create(ctx context.Context, record Record) error {
	raw, err := json.Marshal(toRedis(record))
	if err != nil {
		return fmt.Errorf("encode blackout record: %w", err)
	}
	ttl := time.Until(record.ExpiresAt) + recordRetention
	ok, err := s.client.SetNX(ctx, key(record.SignalID), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("create blackout record: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, signalID domain.SignalID) (*Record, error) {
	raw, err := s.client.Get(ctx, key(signalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blackout record: %w", err)
	}
	return fromRedis(raw)
}

// Update rewrites the record only if the stored expiry still matches
// expectedExpiry, using WATCH so a concurrent extension aborts the
// transaction instead of being overwritten.
func (s *RedisStore) Update(ctx context.Context, record Record, expectedExpiry time.Time) error {
	k := key(record.SignalID)
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		raw, err := rtx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := fromRedis(raw)
		if err != nil {
			return err
		}
		if !current.ExpiresAt.Equal(expectedExpiry) {
			return sentinel.ErrConflict
		}
		encoded, err := json.Marshal(toRedis(record))
		if err != nil {
			return err
		}
		ttl := time.Until(record.ExpiresAt) + recordRetention
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, encoded, ttl)
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		extendConflicts.Inc()
		return sentinel.ErrConflict
	}
	if errors.Is(err, sentinel.ErrConflict) {
		extendConflicts.Inc()
	}
	return err
}
