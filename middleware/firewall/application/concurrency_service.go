package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"firewall-gateway/middleware/firewall/domain"
)

// ConcurrencyService limita trabalho simultâneo com espera máxima, sem saber nada
// sobre HTTP. Mantém contadores de vagas ocupadas e de recusas para métricas.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration

	inFlight atomic.Int64
	rejected atomic.Int64
}

// Acquire tenta ocupar uma vaga.
//   - AcquireTimeout <= 0: espera até o ctx encerrar.
//   - AcquireTimeout > 0: desiste após o timeout.
//
// O release retornado é idempotente. Com ok=false nenhuma vaga foi ocupada.
func (s *ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if !ok {
		s.rejected.Add(1)
		return func() {}, false
	}
	s.inFlight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.inFlight.Add(-1)
			release()
		})
	}, true
}

func (s *ConcurrencyService) InFlight() int64 { return s.inFlight.Load() }

func (s *ConcurrencyService) Rejected() int64 { return s.rejected.Load() }
