package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"firewall-gateway/middleware/firewall/domain"

	"github.com/google/uuid"
)

// StoreSink bufferiza cada registro no store compartilhado sob domain.KeyRequestTime,
// de onde um job em lote drena para armazenamento histórico.
type StoreSink struct {
	store domain.Store
	ttl   time.Duration
}

// NewStoreSink cria o sink. ttl limita quanto tempo um registro não drenado sobrevive.
func NewStoreSink(store domain.Store, ttl time.Duration) *StoreSink {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StoreSink{store: store, ttl: ttl}
}

func (s *StoreSink) Append(ctx context.Context, rec domain.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal telemetry record: %w", err)
	}
	return s.store.Set(ctx, domain.KeyRequestTime+uuid.NewString(), b, s.ttl)
}

// Drain percorre os registros bufferizados, entrega cada um a fn e apaga os entregues.
// Se fn falhar, o registro fica no store para a próxima rodada.
func (s *StoreSink) Drain(ctx context.Context, fn func(domain.Record) error) (int, error) {
	sc, ok := s.store.(domain.PrefixScanner)
	if !ok {
		return 0, errors.New("store does not support prefix scan")
	}
	keys, err := sc.ScanPrefix(ctx, domain.KeyRequestTime)
	if err != nil {
		return 0, fmt.Errorf("scan telemetry keys: %w", err)
	}

	drained := 0
	for _, k := range keys {
		raw, err := s.store.Get(ctx, k)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return drained, fmt.Errorf("read telemetry %q: %w", k, err)
		}
		var rec domain.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			// registro corrompido não tem conserto; descarta
			_ = s.store.Delete(ctx, k)
			continue
		}
		if err := fn(rec); err != nil {
			return drained, err
		}
		if err := s.store.Delete(ctx, k); err != nil {
			return drained, fmt.Errorf("delete telemetry %q: %w", k, err)
		}
		drained++
	}
	return drained, nil
}
