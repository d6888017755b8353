package infra

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"firewall-gateway/middleware/firewall/domain"
)

// MemoryStore é uma implementação em memória do store com TTL e limpeza periódica.
// Útil para testes, desenvolvimento e instâncias únicas.
type MemoryStore struct {
	mu           sync.Mutex
	entries      map[string]*memoryEntry
	now          domain.Clock
	cleanupEvery time.Duration
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type MemoryStoreOption func(*MemoryStore)

func WithClock(now domain.Clock) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:      make(map[string]*memoryEntry),
		now:          time.Now,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// live retorna a entrada se existir e não tiver expirado. Chamar com mu travado.
func (s *MemoryStore) live(key string, now time.Time) (*memoryEntry, bool) {
	ent, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !ent.expiresAt.IsZero() && !now.Before(ent.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return ent, true
}

func (s *MemoryStore) expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.live(key, s.now())
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]byte, len(ent.value))
	copy(out, ent.value)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &memoryEntry{value: v, expiresAt: s.expiry(s.now(), ttl)}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if ent, ok := s.live(key, now); ok {
		cur, err := strconv.ParseInt(string(ent.value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("increment %q: value is not an integer: %w", key, err)
		}
		n = cur
	}
	n++
	s.entries[key] = &memoryEntry{
		value:     []byte(strconv.FormatInt(n, 10)),
		expiresAt: s.expiry(now, ttl),
	}
	return n, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.live(key, now)
	if !ok {
		return false, nil
	}
	ent.expiresAt = s.expiry(now, ttl)
	return true, nil
}

// ScanPrefix implementa domain.PrefixScanner. Retorna as chaves em ordem.
func (s *MemoryStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k := range s.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if _, ok := s.live(k, now); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Cleanup remove as entradas expiradas.
func (s *MemoryStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.entries {
		s.live(k, now)
	}
}

// Len retorna o número de entradas (inclusive expiradas ainda não limpas).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor inicia uma goroutine que limpa chaves expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
