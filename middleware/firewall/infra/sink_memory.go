package infra

import (
	"context"
	"sync"

	"firewall-gateway/middleware/firewall/domain"
)

type Counters struct {
	Allowed     int64
	Challenged  int64
	BannedBot   int64
	RateLimited int64
}

func (c *Counters) add(rec domain.Record) {
	switch {
	case rec.IsRateLimited:
		c.RateLimited++
	case rec.IsBannedBot:
		c.BannedBot++
	case rec.IsChallenge:
		c.Challenged++
	default:
		c.Allowed++
	}
}

// MemorySink é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemorySink struct {
	mu      sync.Mutex
	total   Counters
	byPath  map[string]Counters
	byIP    map[string]Counters
	records []domain.Record

	trackIPs   bool
	keepRecent int
}

type MemorySinkOption func(*MemorySink)

func WithTrackIPs(track bool) MemorySinkOption {
	return func(s *MemorySink) { s.trackIPs = track }
}

// WithKeepRecent guarda os últimos n registros completos (0 desliga).
func WithKeepRecent(n int) MemorySinkOption {
	return func(s *MemorySink) { s.keepRecent = n }
}

func NewMemorySink(opts ...MemorySinkOption) *MemorySink {
	s := &MemorySink{
		byPath: make(map[string]Counters),
		byIP:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemorySink) Append(_ context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(rec)
	c := s.byPath[rec.Path]
	c.add(rec)
	s.byPath[rec.Path] = c
	if s.trackIPs {
		k := s.byIP[rec.IP]
		k.add(rec)
		s.byIP[rec.IP] = k
	}
	if s.keepRecent > 0 {
		s.records = append(s.records, rec)
		if over := len(s.records) - s.keepRecent; over > 0 {
			s.records = append([]domain.Record(nil), s.records[over:]...)
		}
	}
	return nil
}

func (s *MemorySink) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemorySink) ByPath() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byPath))
	for k, v := range s.byPath {
		out[k] = v
	}
	return out
}

func (s *MemorySink) ByIP() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byIP))
	for k, v := range s.byIP {
		out[k] = v
	}
	return out
}

func (s *MemorySink) Records() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Record(nil), s.records...)
}
