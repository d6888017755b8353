package infra

import (
	"context"
	"fmt"
	"net"
	"time"

	"firewall-gateway/middleware/firewall/domain"

	"golang.org/x/time/rate"
)

// DNSResolver envolve um domain.Resolver (normalmente net.DefaultResolver) com
// timeout por lookup, limite de lookups/s e limite de lookups simultâneos.
//
// O cache de 24h fica no store; estes limites só protegem o caminho frio.
type DNSResolver struct {
	inner   domain.Resolver
	timeout time.Duration
	limiter *rate.Limiter
	pool    domain.SlotPool
}

type DNSResolverOption func(*DNSResolver)

func WithLookupTimeout(d time.Duration) DNSResolverOption {
	return func(r *DNSResolver) { r.timeout = d }
}

// WithLookupRate limita lookups por segundo (token bucket). rps <= 0 desliga.
func WithLookupRate(rps float64, burst int) DNSResolverOption {
	return func(r *DNSResolver) {
		if rps <= 0 {
			r.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithMaxInflight(n int) DNSResolverOption {
	return func(r *DNSResolver) {
		if n <= 0 {
			r.pool = nil
			return
		}
		r.pool = NewSlotPool(n)
	}
}

func NewDNSResolver(inner domain.Resolver, opts ...DNSResolverOption) *DNSResolver {
	if inner == nil {
		inner = net.DefaultResolver
	}
	r := &DNSResolver{
		inner:   inner,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *DNSResolver) Timeout() time.Duration { return r.timeout }

// admit aplica timeout, limite de taxa e semáforo. O release deve ser chamado sempre.
func (r *DNSResolver) admit(ctx context.Context) (context.Context, func(), error) {
	lctx, cancel := ctx, func() {}
	if r.timeout > 0 {
		lctx, cancel = context.WithTimeout(ctx, r.timeout)
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(lctx); err != nil {
			cancel()
			return nil, func() {}, fmt.Errorf("%w: %v", domain.ErrLookupDeferred, err)
		}
	}

	release := func() {}
	if r.pool != nil {
		rel, ok := r.pool.Acquire(lctx)
		if !ok {
			cancel()
			return nil, func() {}, fmt.Errorf("%w: no free slot", domain.ErrLookupDeferred)
		}
		release = rel
	}

	return lctx, func() { release(); cancel() }, nil
}

func (r *DNSResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	lctx, done, err := r.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return r.inner.LookupAddr(lctx, addr)
}

func (r *DNSResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	lctx, done, err := r.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return r.inner.LookupIP(lctx, network, host)
}
