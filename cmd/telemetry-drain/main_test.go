package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"firewall-gateway/middleware/firewall/domain"
	"firewall-gateway/middleware/firewall/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSink(t *testing.T) *infra.StoreSink {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return infra.NewStoreSink(infra.NewRedisStore(rdb), time.Hour)
}

func TestDrainOnce_WritesJSONLines(t *testing.T) {
	ctx := context.Background()
	sink := newSink(t)
	require.NoError(t, sink.Append(ctx, domain.Record{IP: "203.0.113.1", Path: "/a", Status: 200}))
	require.NoError(t, sink.Append(ctx, domain.Record{IP: "203.0.113.2", Path: "/b", Status: 429, IsRateLimited: true}))

	var buf bytes.Buffer
	n, err := drainOnce(ctx, sink, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ips := map[string]bool{}
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var rec domain.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		ips[rec.IP] = true
	}
	assert.Equal(t, map[string]bool{"203.0.113.1": true, "203.0.113.2": true}, ips)

	n, err = drainOnce(ctx, sink, &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDrainOnce_KeepsRecordsWhenWriteFails(t *testing.T) {
	ctx := context.Background()
	sink := newSink(t)
	require.NoError(t, sink.Append(ctx, domain.Record{IP: "203.0.113.1"}))

	_, err := drainOnce(ctx, sink, brokenWriter{})
	require.Error(t, err)

	var buf bytes.Buffer
	n, err := drainOnce(ctx, sink, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunMain_MissingRedisAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	assert.Equal(t, 1, runMain())
}
