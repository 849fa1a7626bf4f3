package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreSlidingWindow(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 3 {
		result, err := store.Allow(ctx, "key", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 2-i, result.Remaining)
	}

	result, err := store.Allow(ctx, "key", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// A different key is unaffected.
	result, err = store.Allow(ctx, "other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	// The window slides: once the oldest timestamp ages out, capacity
	// returns.
	now = now.Add(61 * time.Second)
	result, err = store.Allow(ctx, "key", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestInMemoryStoreReset(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_, err := store.Allow(ctx, "key", 1, time.Minute)
	require.NoError(t, err)
	result, err := store.Allow(ctx, "key", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	require.NoError(t, store.Reset(ctx, "key"))
	result, err = store.Allow(ctx, "key", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestNewLimiterValidation(t *testing.T) {
	_, err := NewLimiter(nil, 1, time.Minute)
	assert.Error(t, err)
	_, err = NewLimiter(NewInMemoryStore(), 0, time.Minute)
	assert.Error(t, err)
	_, err = NewLimiter(NewInMemoryStore(), 1, 0)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	limiter, err := NewLimiter(NewInMemoryStore(), 2, time.Minute)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var served int
	handler := Middleware(limiter, "test-salt", logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		served++
		w.WriteHeader(http.StatusCreated)
	}))

	do := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/signals", nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, do("203.0.113.9:1234").Code)
	assert.Equal(t, http.StatusCreated, do("203.0.113.9:5678").Code)

	blocked := do("203.0.113.9:9999")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	assert.Equal(t, 2, served)

	// A different client address has its own budget.
	assert.Equal(t, http.StatusCreated, do("198.51.100.4:1234").Code)
}

type brokenStore struct{}

func (brokenStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, context.DeadlineExceeded
}
func (brokenStore) Reset(context.Context, string) error { return nil }

func TestMiddlewareFailsOpen(t *testing.T) {
	limiter, err := NewLimiter(brokenStore{}, 1, time.Minute)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := Middleware(limiter, "test-salt", logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/signals", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusCreated, w.Code)
	}
}
