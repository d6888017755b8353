package infra

import (
	"context"
	"errors"
	"time"

	"firewall-gateway/middleware/firewall/domain"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerStore envolve um store com circuit breaker. Com o circuito aberto as
// chamadas falham imediatamente com domain.ErrStoreUnavailable, sem esperar timeout
// de rede; o gate aplica então a política de falha configurada.
type BreakerStore struct {
	inner domain.Store
	cb    *gobreaker.CircuitBreaker
}

type BreakerOptions struct {
	Name string
	// ConsecutiveFailures abre o circuito após N falhas seguidas.
	ConsecutiveFailures uint32
	// OpenTimeout é quanto tempo o circuito fica aberto antes de testar de novo.
	OpenTimeout time.Duration
	Logger      *zap.Logger
}

func NewBreakerStore(inner domain.Store, opts BreakerOptions) *BreakerStore {
	if opts.Name == "" {
		opts.Name = "firewall-store"
	}
	if opts.ConsecutiveFailures == 0 {
		opts.ConsecutiveFailures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	threshold := opts.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    opts.Name,
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// Miss e cancelamento do cliente não indicam store fora do ar.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerStore{inner: inner, cb: cb}
}

func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(domain.ErrStoreUnavailable, err)
	}
	return err
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.cb.Execute(func() (interface{}, error) { return b.inner.Get(ctx, key) })
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return v.([]byte), nil
}

func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (interface{}, error) { return nil, b.inner.Set(ctx, key, value, ttl) })
	return mapBreakerErr(err)
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() (interface{}, error) { return nil, b.inner.Delete(ctx, key) })
	return mapBreakerErr(err)
}

func (b *BreakerStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	v, err := b.cb.Execute(func() (interface{}, error) { return b.inner.Increment(ctx, key, ttl) })
	if err != nil {
		return 0, mapBreakerErr(err)
	}
	return v.(int64), nil
}

func (b *BreakerStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	v, err := b.cb.Execute(func() (interface{}, error) { return b.inner.Expire(ctx, key, ttl) })
	if err != nil {
		return false, mapBreakerErr(err)
	}
	return v.(bool), nil
}

// ScanPrefix repassa ao store interno se ele souber varrer por prefixo.
func (b *BreakerStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	sc, ok := b.inner.(domain.PrefixScanner)
	if !ok {
		return nil, errors.New("inner store does not support prefix scan")
	}
	v, err := b.cb.Execute(func() (interface{}, error) { return sc.ScanPrefix(ctx, prefix) })
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return v.([]string), nil
}
