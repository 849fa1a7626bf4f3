package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"haven/pkg/attrs"
)

// Publisher emits audit events. The store publisher is fail-closed for
// compliance events: the calling operation must not proceed if Emit fails.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store is the append-only persistence behind the fail-closed publisher.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySignal(ctx context.Context, signalID string) ([]Event, error)
}

// StorePublisher writes events synchronously to the audit store.
// The caller blocks until the write succeeds or fails.
type StorePublisher struct {
	store  Store
	logger *slog.Logger
}

type Option func(*StorePublisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *StorePublisher) { p.logger = logger }
}

func NewStorePublisher(store Store, opts ...Option) *StorePublisher {
	p := &StorePublisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously persists an event. For compliance-category events the
// caller MUST fail its operation on error.
func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = CategoryOf(event.Action)
	}
	if err := p.store.Append(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "audit persistence failed",
				"action", event.Action,
				"signal_id", event.SignalID,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}
	return nil
}

// Log emits an operations audit event and mirrors it to the logger. Used for
// best-effort events where publishing is optional; errors are logged, not
// propagated. Compliance events go through Publisher.Emit directly.
func Log(ctx context.Context, logger *slog.Logger, publisher Publisher, action Action, kv ...any) {
	if logger != nil {
		logger.InfoContext(ctx, string(action), kv...)
	}
	if publisher == nil {
		return
	}
	event := Event{
		Action:   action,
		SignalID: attrs.ExtractString(kv, "signal_id"),
		ActorID:  attrs.ExtractString(kv, "actor_id"),
		Attrs:    attrs.ToMap(kv),
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}
