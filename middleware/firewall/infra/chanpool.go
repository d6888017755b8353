package infra

import (
	"context"

	"firewall-gateway/middleware/firewall/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewSlotPool cria um semáforo baseado em channel com capacidade `max`.
// Limita requests em voo (ConcurrencyService) e lookups DNS simultâneos (DNSResolver).
func NewSlotPool(max int) domain.SlotPool {
	if max <= 0 {
		max = 1
	}
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}
