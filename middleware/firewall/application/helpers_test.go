package application

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"firewall-gateway/middleware/firewall/domain"
	"firewall-gateway/middleware/firewall/infra"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

// newFakeClock começa num instante alinhado ao bucket de 11s.
func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(11*100000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeResolver struct {
	mu      sync.Mutex
	ptr     map[string][]string
	fwd     map[string][]net.IP
	err     error
	reverse int
	forward int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{ptr: map[string][]string{}, fwd: map[string][]net.IP{}}
}

func (r *fakeResolver) host(ip, name string, addrs ...string) {
	r.ptr[ip] = []string{name}
	for _, a := range addrs {
		r.fwd[name] = append(r.fwd[name], net.ParseIP(a))
	}
}

func (r *fakeResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reverse++
	if r.err != nil {
		return nil, r.err
	}
	names, ok := r.ptr[addr]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: addr, IsNotFound: true}
	}
	return names, nil
}

func (r *fakeResolver) LookupIP(_ context.Context, network, host string) ([]net.IP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forward++
	if r.err != nil {
		return nil, r.err
	}
	var out []net.IP
	for _, ip := range r.fwd[host] {
		is4 := ip.To4() != nil
		if (network == "ip4" && is4) || (network == "ip6" && !is4) {
			out = append(out, ip)
		}
	}
	if len(out) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return out, nil
}

func (r *fakeResolver) calls() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reverse, r.forward
}

var errBoom = errors.New("boom")

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errBoom }
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errBoom
}
func (failingStore) Delete(context.Context, string) error { return errBoom }
func (failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errBoom
}
func (failingStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errBoom
}

type fixture struct {
	clock    *fakeClock
	store    *infra.MemoryStore
	resolver *fakeResolver
	cfg      domain.Config
}

func newFixture() *fixture {
	clock := newFakeClock()
	return &fixture{
		clock:    clock,
		store:    infra.NewMemoryStore(infra.WithClock(clock.Now)),
		resolver: newFakeResolver(),
		cfg:      domain.DefaultConfig(),
	}
}

func (f *fixture) provider() domain.ConfigProvider { return infra.NewStaticConfig(f.cfg) }

func (f *fixture) gate() *Gate {
	g := NewGate(f.store, f.resolver, f.provider(), nil)
	g.Now = f.clock.Now
	g.Limiter.Now = f.clock.Now
	return g
}
