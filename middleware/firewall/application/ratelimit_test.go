package application

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(f *fixture) *RateLimiter {
	l := NewRateLimiter(f.store, NewBanRegistry(f.store), f.provider(), nil)
	l.Now = f.clock.Now
	return l
}

func TestWeight(t *testing.T) {
	assert.Equal(t, 1.0, Weight(0, 11))
	assert.InDelta(t, 10.0/11.0, Weight(1, 11), 1e-12)
	assert.InDelta(t, 1.0/11.0, Weight(10, 11), 1e-12)
}

func TestRateLimiter_WeightedSumMatchesDecay(t *testing.T) {
	f := newFixture()
	l := newLimiter(f)
	ctx := context.Background()
	ip := "198.51.100.1"

	current := f.clock.Now().Unix() / 11
	want := 0.0
	for i := 0; i < 11; i++ {
		count := i + 1
		require.NoError(t, f.store.Set(ctx, bucketKey(ip, current-int64(i)), []byte(strconv.Itoa(count)), time.Minute))
		want += float64(count) * (1 - float64(i)/11)
	}
	// fora da janela: não conta
	require.NoError(t, f.store.Set(ctx, bucketKey(ip, current-11), []byte("100"), time.Minute))

	res, err := l.CheckAndAdmit(ctx, ip)
	require.NoError(t, err)
	assert.InDelta(t, want, res.Weighted, 1e-9)
	assert.Equal(t, want >= 30, !res.Admitted)
}

func TestRateLimiter_RequestsDecayAcrossBuckets(t *testing.T) {
	f := newFixture()
	l := newLimiter(f)
	ctx := context.Background()
	ip := "198.51.100.2"

	for i := 0; i < 5; i++ {
		res, err := l.CheckAndAdmit(ctx, ip)
		require.NoError(t, err)
		require.True(t, res.Admitted)
	}

	f.clock.Advance(11 * time.Second)
	res, err := l.CheckAndAdmit(ctx, ip)
	require.NoError(t, err)
	assert.InDelta(t, 5*10.0/11.0, res.Weighted, 1e-9)

	f.clock.Advance(11 * time.Second)
	res, err = l.CheckAndAdmit(ctx, ip)
	require.NoError(t, err)
	assert.InDelta(t, 5*9.0/11.0+1*10.0/11.0, res.Weighted, 1e-9)
}

func TestRateLimiter_CrossingThresholdBans(t *testing.T) {
	f := newFixture()
	l := newLimiter(f)
	ctx := context.Background()
	ip := "198.51.100.3"

	for i := 0; i < 30; i++ {
		res, err := l.CheckAndAdmit(ctx, ip)
		require.NoError(t, err)
		require.Truef(t, res.Admitted, "request %d", i+1)
	}

	res, err := l.CheckAndAdmit(ctx, ip)
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.True(t, res.Banned)
	assert.Equal(t, 30.0, res.Weighted)

	banned, err := l.Bans.IsBanned(ctx, ip)
	require.NoError(t, err)
	assert.True(t, banned)

	// limitada não incrementa
	raw, err := f.store.Get(ctx, bucketKey(ip, f.clock.Now().Unix()/11))
	require.NoError(t, err)
	assert.Equal(t, "30", string(raw))
}

func TestRateLimiter_LimitWithoutBan(t *testing.T) {
	f := newFixture()
	f.cfg.RateLimiting.MaxRequests = 2
	f.cfg.RateLimiting.BanOnLimit = false
	l := newLimiter(f)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.CheckAndAdmit(ctx, "198.51.100.4")
		require.NoError(t, err)
		require.True(t, res.Admitted)
	}
	res, err := l.CheckAndAdmit(ctx, "198.51.100.4")
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.False(t, res.Banned)

	banned, err := l.Bans.IsBanned(ctx, "198.51.100.4")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestRateLimiter_RefreshesExistingBucketTTL(t *testing.T) {
	f := newFixture()
	l := newLimiter(f)
	ctx := context.Background()
	ip := "198.51.100.5"

	first := f.clock.Now().Unix() / 11
	_, err := l.CheckAndAdmit(ctx, ip)
	require.NoError(t, err)

	// ainda dentro da janela de 11 buckets; a leitura renova o TTL para 121s
	f.clock.Advance(100 * time.Second)
	_, err = l.CheckAndAdmit(ctx, ip)
	require.NoError(t, err)

	f.clock.Advance(50 * time.Second)
	raw, err := f.store.Get(ctx, bucketKey(ip, first))
	require.NoError(t, err)
	assert.Equal(t, "1", string(raw))
}

func TestRateLimiter_IsolatesIPs(t *testing.T) {
	f := newFixture()
	f.cfg.RateLimiting.MaxRequests = 1
	l := newLimiter(f)
	ctx := context.Background()

	res, err := l.CheckAndAdmit(ctx, "198.51.100.6")
	require.NoError(t, err)
	require.True(t, res.Admitted)

	res, err = l.CheckAndAdmit(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, res.Admitted)
}

func TestRateLimiter_StoreError(t *testing.T) {
	f := newFixture()
	l := NewRateLimiter(failingStore{}, NewBanRegistry(failingStore{}), f.provider(), nil)
	_, err := l.CheckAndAdmit(context.Background(), "198.51.100.8")
	require.ErrorIs(t, err, errBoom)
}
