package infra

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"firewall-gateway/middleware/firewall/domain"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

// downStore falha em tudo e conta as chamadas.
type downStore struct{ calls atomic.Int32 }

func (d *downStore) Get(context.Context, string) ([]byte, error) {
	d.calls.Add(1)
	return nil, errDown
}

func (d *downStore) Set(context.Context, string, []byte, time.Duration) error {
	d.calls.Add(1)
	return errDown
}

func (d *downStore) Delete(context.Context, string) error {
	d.calls.Add(1)
	return errDown
}

func (d *downStore) Increment(context.Context, string, time.Duration) (int64, error) {
	d.calls.Add(1)
	return 0, errDown
}

func (d *downStore) Expire(context.Context, string, time.Duration) (bool, error) {
	d.calls.Add(1)
	return false, errDown
}

func TestBreakerStore_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &downStore{}
	s := NewBreakerStore(inner, BreakerOptions{ConsecutiveFailures: 2, OpenTimeout: time.Minute})
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, errDown)
	_, err = s.Increment(ctx, "k", time.Second)
	require.ErrorIs(t, err, errDown)
	assert.Equal(t, gobreaker.StateOpen, s.State())

	err = s.Set(ctx, "k", []byte("v"), time.Second)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestBreakerStore_NotFoundDoesNotTrip(t *testing.T) {
	s := NewBreakerStore(NewMemoryStore(), BreakerOptions{ConsecutiveFailures: 1})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Get(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, s.State())
}

func TestBreakerStore_PassesThrough(t *testing.T) {
	s := NewBreakerStore(NewMemoryStore(), BreakerOptions{})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "request_time:1", []byte("{}"), time.Minute))
	n, err := s.Increment(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := s.Expire(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := s.ScanPrefix(ctx, domain.KeyRequestTime)
	require.NoError(t, err)
	assert.Equal(t, []string{"request_time:1"}, keys)

	require.NoError(t, s.Delete(ctx, "c"))
}

func TestBreakerStore_ScanRequiresCapableInner(t *testing.T) {
	s := NewBreakerStore(&downStore{}, BreakerOptions{})
	_, err := s.ScanPrefix(context.Background(), "x")
	require.Error(t, err)
}
