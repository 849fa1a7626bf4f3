package blackout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"haven/internal/audit"
	"haven/internal/platform/metrics"
	"haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
)

// DefaultWindow is the suppression window started when a signal is routed.
const DefaultWindow = 48 * time.Hour

// Manager owns the blackout lifecycle. It is intentionally independent of
// routing state; it shares only the signal id.
type Manager struct {
	store     Store
	window    time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher audit.Publisher
	now       func() time.Time
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(m *Manager) { m.publisher = publisher }
}

// WithWindow overrides the default 48h window.
func WithWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.window = d
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("blackout store is required")
	}
	m := &Manager{
		store:  store,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start opens the suppression window for a signal. Starting twice for the
// same signal is a conflict, not a silent reset.
func (m *Manager) Start(ctx context.Context, signalID domain.SignalID) (*Record, error) {
	if signalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signal id is required")
	}
	now := m.now()
	record := Record{
		SignalID:  signalID,
		StartedAt: now,
		ExpiresAt: now.Add(m.window),
	}
	if err := m.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "blackout already active for signal")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start blackout")
	}
	if m.metrics != nil {
		m.metrics.BlackoutsStarted.Inc()
	}
	audit.Log(ctx, m.logger, m.publisher, audit.EventBlackoutStarted,
		"signal_id", signalID.String(),
		"expires_at", record.ExpiresAt.Format(time.RFC3339),
	)
	return &record, nil
}

// IsActive reports whether family notification is currently suppressed for
// the signal. Unknown signals have no blackout.
func (m *Manager) IsActive(ctx context.Context, signalID domain.SignalID) (bool, error) {
	record, err := m.store.Get(ctx, signalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read blackout")
	}
	return record.ActiveAt(m.now()), nil
}

// Status returns the window state and remaining hours.
func (m *Manager) Status(ctx context.Context, signalID domain.SignalID) (*WindowStatus, error) {
	record, err := m.store.Get(ctx, signalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no blackout for signal")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read blackout")
	}
	now := m.now()
	status := &WindowStatus{Active: record.ActiveAt(now)}
	if status.Active {
		status.RemainingHours = record.ExpiresAt.Sub(now).Hours()
	}
	return status, nil
}

// Extend lengthens the window. Extension requires partner authorization and
// strictly increases the expiry; it never shortens a window. Concurrent
// extensions are serialized by the store's optimistic guard: on conflict the
// read-then-write is retried once with fresh state, then surfaced.
func (m *Manager) Extend(ctx context.Context, signalID domain.SignalID, additionalHours int, partnerID domain.PartnerID) (*Record, error) {
	if partnerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "Partner authorization required")
	}
	if additionalHours <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "extension must add at least one hour")
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		record, err := m.store.Get(ctx, signalID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "no blackout for signal")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read blackout")
		}
		expectedExpiry := record.ExpiresAt
		record.ExpiresAt = expectedExpiry.Add(time.Duration(additionalHours) * time.Hour)
		record.ExtendedBy = &partnerID

		err = m.store.Update(ctx, *record, expectedExpiry)
		if err == nil {
			if m.metrics != nil {
				m.metrics.BlackoutsExtended.Inc()
			}
			audit.Log(ctx, m.logger, m.publisher, audit.EventBlackoutExtended,
				"signal_id", signalID.String(),
				"actor_id", partnerID.String(),
				"additional_hours", fmt.Sprintf("%d", additionalHours),
				"expires_at", record.ExpiresAt.Format(time.RFC3339),
			)
			return record, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to extend blackout")
		}
		lastErr = err
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeConflict, "concurrent blackout extension, retry")
}
