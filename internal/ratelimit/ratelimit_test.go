package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactbook/apiserver/config"
)

func newTestLimiter(store Store) *Limiter {
	return New(store, config.RateLimitConfig{
		AuthLimit:     5,
		ContactsLimit: 10,
		DefaultLimit:  60,
		Window:        time.Minute,
	})
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	limiter := newTestLimiter(NewMemoryStore())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		result, err := limiter.Check(ctx, "1.2.3.4", ClassAuth)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 5, result.Limit)
		assert.Equal(t, 5-i, result.Remaining)
	}

	result, err := limiter.Check(ctx, "1.2.3.4", ClassAuth)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestCheckIsolatesIdentitiesAndClasses(t *testing.T) {
	limiter := newTestLimiter(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := limiter.Check(ctx, "1.2.3.4", ClassAuth)
		require.NoError(t, err)
	}

	// A different identity in the same class is unaffected.
	result, err := limiter.Check(ctx, "5.6.7.8", ClassAuth)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	// The same identity in a different class is unaffected.
	result, err = limiter.Check(ctx, "1.2.3.4", ClassContacts)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestCheckWindowElapses(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	limiter := newTestLimiter(store)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := limiter.Check(ctx, "1.2.3.4", ClassAuth)
		require.NoError(t, err)
	}
	result, err := limiter.Check(ctx, "1.2.3.4", ClassAuth)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	now = now.Add(61 * time.Second)

	result, err = limiter.Check(ctx, "1.2.3.4", ClassAuth)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 4, result.Remaining)
}

func TestCheckUnknownClassUsesDefault(t *testing.T) {
	limiter := newTestLimiter(NewMemoryStore())

	result, err := limiter.Check(context.Background(), "1.2.3.4", Class("unknown"))
	require.NoError(t, err)
	assert.Equal(t, 60, result.Limit)
}

func TestCheckConcurrent(t *testing.T) {
	limiter := newTestLimiter(NewMemoryStore())
	ctx := context.Background()

	const requests = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	errs := make(chan error, requests)

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := limiter.Check(ctx, "1.2.3.4", ClassAuth)
			if err != nil {
				errs <- err
				return
			}
			if result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 5, allowed)
}

func TestReset(t *testing.T) {
	limiter := newTestLimiter(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := limiter.Check(ctx, "1.2.3.4", ClassAuth)
		require.NoError(t, err)
	}

	require.NoError(t, limiter.Reset(ctx, "1.2.3.4", ClassAuth))

	result, err := limiter.Check(ctx, "1.2.3.4", ClassAuth)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 4, result.Remaining)

	// Resetting a key with no window is a no-op.
	require.NoError(t, limiter.Reset(ctx, "9.9.9.9", ClassAuth))
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}

func (failingStore) Reset(context.Context, string) error {
	return errors.New("connection refused")
}

func TestCheckStoreUnavailable(t *testing.T) {
	limiter := newTestLimiter(failingStore{})

	_, err := limiter.Check(context.Background(), "1.2.3.4", ClassAuth)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	err = limiter.Reset(context.Background(), "1.2.3.4", ClassAuth)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
