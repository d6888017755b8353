package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"firewall-gateway/middleware/firewall/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var redisStoreOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "firewall_store_operations_total",
		Help: "Total number of shared store operations against Redis",
	},
	[]string{"operation", "status"},
)

// incrementScript incrementa e renova o TTL em uma única ida ao Redis.
// KEYS[1] = chave, ARGV[1] = TTL em milissegundos
var incrementScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	return current
`)

// RedisStore implementa domain.Store (e domain.PrefixScanner) sobre Redis.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string

	scanCount int64
}

type RedisStoreOption func(*RedisStore)

func WithStorePrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = strings.TrimRight(prefix, ":") + ":"
	}
}

func WithScanCount(n int64) RedisStoreOption {
	return func(s *RedisStore) { s.scanCount = n }
}

func NewRedisStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:       rdb,
		prefix:    "firewall:",
		scanCount: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func observe(op string, err error) {
	status := "success"
	if err != nil && !errors.Is(err, redis.Nil) {
		status = "error"
	}
	redisStoreOperationsTotal.WithLabelValues(op, status).Inc()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	observe("get", err)
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.rdb.Set(ctx, s.key(key), value, ttl).Err()
	observe("set", err)
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	err := s.rdb.Del(ctx, s.key(key)).Err()
	observe("delete", err)
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	n, err := incrementScript.Run(ctx, s.rdb, []string{s.key(key)}, ms).Int64()
	observe("increment", err)
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.PExpire(ctx, s.key(key), ttl).Result()
	observe("expire", err)
	if err != nil {
		return false, fmt.Errorf("redis pexpire: %w", err)
	}
	return ok, nil
}

// ScanPrefix usa SCAN (nunca KEYS) e devolve as chaves sem o prefixo do store.
func (s *RedisStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	match := s.key(prefix) + "*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, s.scanCount).Result()
		observe("scan", err)
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

// Ping verifica a conexão (usado no boot do gateway).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
