package firewall

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"firewall-gateway/middleware/firewall/application"
	"firewall-gateway/middleware/firewall/domain"
	"firewall-gateway/middleware/firewall/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chromeUA    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

type stubResolver struct {
	ptr map[string]string
}

func (s stubResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if name, ok := s.ptr[addr]; ok {
		return []string{name}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: addr, IsNotFound: true}
}

func (s stubResolver) LookupIP(_ context.Context, network, host string) ([]net.IP, error) {
	for ip, name := range s.ptr {
		if name == host && network == "ip4" {
			return []net.IP{net.ParseIP(ip)}, nil
		}
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

type harness struct {
	store *infra.MemoryStore
	sink  *infra.MemorySink
	gate  *application.Gate
	calls int
	h     http.Handler
}

func newHarness(t *testing.T, cfg domain.Config, upstream http.HandlerFunc) *harness {
	t.Helper()
	require.NoError(t, cfg.Validate())

	hs := &harness{
		store: infra.NewMemoryStore(),
		sink:  infra.NewMemorySink(infra.WithTrackIPs(true), infra.WithKeepRecent(100)),
	}
	resolver := stubResolver{ptr: map[string]string{"66.249.66.1": "crawl-66-249-66-1.googlebot.com"}}
	hs.gate = application.NewGate(hs.store, resolver, infra.NewStaticConfig(cfg), nil)

	if upstream == nil {
		upstream = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Upstream", "yes")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "ok")
		}
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs.calls++
		upstream(w, r)
	})
	hs.h = Middleware(Options{Gate: hs.gate, Sink: hs.sink, DebugHeaders: true})(next)
	return hs
}

func (hs *harness) do(ip, ua, path string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example"+path, nil)
	r.RemoteAddr = ip + ":40000"
	r.Header.Set("User-Agent", ua)
	for _, m := range mutate {
		m(r)
	}
	w := httptest.NewRecorder()
	hs.h.ServeHTTP(w, r)
	return w
}

func assertPrivate(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	cc := w.Header().Get("Cache-Control")
	assert.Contains(t, cc, "private")
	assert.Contains(t, cc, "no-store")
	assert.Contains(t, cc, "s-maxage=0")
}

func TestMiddleware_ChallengesBrowsers(t *testing.T) {
	hs := newHarness(t, domain.DefaultConfig(), nil)

	w := hs.do("10.0.0.1", chromeUA, "/article?id=1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assertPrivate(t, w)
	body := w.Body.String()
	assert.Contains(t, body, "challengeToken=")
	assert.Contains(t, body, "X-Challenge-Id")
	assert.Contains(t, body, "navigator.webdriver")
	assert.Equal(t, string(application.StateIssueChallenge), w.Header().Get("X-Firewall-State"))
	assert.Zero(t, hs.calls)

	recs := hs.sink.Records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].IsChallenge)
	assert.Equal(t, "/article", recs[0].Path)
	assert.Equal(t, "id=1", recs[0].Query)
	assert.Equal(t, "10.0.0.1", recs[0].IP)
}

func solvedPair(t *testing.T, hs *harness, ip string) (string, string) {
	t.Helper()
	hs.do(ip, chromeUA, "/")
	id, ok, err := hs.gate.Challenges.Pending(context.Background(), ip)
	require.NoError(t, err)
	require.True(t, ok)
	return id, application.Descramble(id, "!")
}

func TestMiddleware_SolvedChallengeViaCookies(t *testing.T) {
	hs := newHarness(t, domain.DefaultConfig(), nil)
	id, token := solvedPair(t, hs, "10.0.0.2")

	w := hs.do("10.0.0.2", chromeUA, "/", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "challengeId", Value: id})
		r.AddCookie(&http.Cookie{Name: "challengeToken", Value: token})
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Upstream"))
	assert.Equal(t, 1, hs.calls)
}

func TestMiddleware_SolvedChallengeViaHeaders(t *testing.T) {
	hs := newHarness(t, domain.DefaultConfig(), nil)
	id, token := solvedPair(t, hs, "10.0.0.3")

	w := hs.do("10.0.0.3", chromeUA, "/api/items", func(r *http.Request) {
		r.Header.Set("X-Challenge-Id", id)
		r.Header.Set("X-Challenge-Token", token)
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, hs.calls)
}

func TestMiddleware_BannedIPGets403(t *testing.T) {
	hs := newHarness(t, domain.DefaultConfig(), nil)
	require.NoError(t, hs.gate.Bans.Ban(context.Background(), "10.0.0.4", time.Hour))

	w := hs.do("10.0.0.4", chromeUA, "/")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Unauthorized bot access", w.Body.String())
	assertPrivate(t, w)
	assert.Zero(t, hs.calls)
}

func TestMiddleware_UsesForwardedClientIP(t *testing.T) {
	hs := newHarness(t, domain.DefaultConfig(), nil)
	require.NoError(t, hs.gate.Bans.Ban(context.Background(), "1.2.3.4", time.Hour))

	w := hs.do("10.0.0.5", chromeUA, "/", func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.5")
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMiddleware_Bots(t *testing.T) {
	hs := newHarness(t, domain.DefaultConfig(), nil)

	w := hs.do("66.249.66.1", googlebotUA, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, hs.calls)

	w = hs.do("10.0.0.6", googlebotUA, "/")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Unauthorized bot access", w.Body.String())
	assertPrivate(t, w)

	// banido para qualquer User-Agent
	w = hs.do("10.0.0.6", chromeUA, "/media/logo.svg")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, hs.calls)

	recs := hs.sink.Records()
	require.Len(t, recs, 3)
	assert.True(t, recs[0].IsBotAgent)
	assert.False(t, recs[0].IsBannedBot)
	assert.True(t, recs[1].IsBannedBot)
}

func TestMiddleware_ExemptPathPassesThrough(t *testing.T) {
	hs := newHarness(t, domain.DefaultConfig(), nil)

	w := hs.do("10.0.0.7", chromeUA, "/assets/app.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Upstream"))
	assert.Equal(t, string(application.StateExemptPass), w.Header().Get("X-Firewall-State"))
}

func TestMiddleware_EligibleResponseStreams(t *testing.T) {
	const chunk = 64 << 10
	var rec *httptest.ResponseRecorder
	var bodyDuringHandler int
	var flushedDuringHandler bool

	hs := newHarness(t, domain.DefaultConfig(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(bytes.Repeat([]byte("x"), chunk))
		w.(http.Flusher).Flush()
		bodyDuringHandler = rec.Body.Len()
		flushedDuringHandler = rec.Flushed
		_, _ = w.Write(bytes.Repeat([]byte("y"), chunk))
	})

	r := httptest.NewRequest(http.MethodGet, "http://example/media/big.mp4", nil)
	r.RemoteAddr = "10.0.0.12:40000"
	r.Header.Set("User-Agent", chromeUA)
	rec = httptest.NewRecorder()
	hs.h.ServeHTTP(rec, r)

	assert.Equal(t, string(application.StateExemptPass), rec.Header().Get("X-Firewall-State"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, chunk, bodyDuringHandler)
	assert.True(t, flushedDuringHandler)
	assert.Equal(t, 2*chunk, rec.Body.Len())
}

func TestMiddleware_FourthRequestGets429(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.RateLimiting = domain.RateLimitConfig{
		Window: 60, MaxRequests: 3, BucketSize: 60, BucketCount: 1, BanDuration: 600, BanOnLimit: true,
	}
	cfg.Challenge.EnabledForNonBots = false
	hs := newHarness(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	for i := 0; i < 3; i++ {
		w := hs.do("10.0.0.8", chromeUA, "/missing")
		require.Equalf(t, http.StatusNotFound, w.Code, "request %d", i+1)
	}

	w := hs.do("10.0.0.8", chromeUA, "/missing")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too Many Requests", w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "600", w.Header().Get("Retry-After"))
	assertPrivate(t, w)

	banned, err := hs.gate.Bans.IsBanned(context.Background(), "10.0.0.8")
	require.NoError(t, err)
	assert.True(t, banned)

	w = hs.do("10.0.0.8", chromeUA, "/missing")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 4, hs.calls)

	total := hs.sink.Total()
	assert.Equal(t, int64(1), total.RateLimited)
}

func TestMiddleware_FastSuccessIsNotCounted(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.RateLimiting.MaxRequests = 1
	cfg.Challenge.EnabledForNonBots = false
	hs := newHarness(t, cfg, nil)

	for i := 0; i < 5; i++ {
		w := hs.do("10.0.0.9", chromeUA, "/")
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMiddleware_StoreFailClosedGives503(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Store.FailureMode = domain.FailClosed
	hs := newHarness(t, cfg, nil)
	hs.gate.Bans.Store = brokenStore{}

	w := hs.do("10.0.0.10", chromeUA, "/")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assertPrivate(t, w)
	assert.Zero(t, hs.calls)
}

func TestMiddleware_SinkFailureDoesNotAffectResponse(t *testing.T) {
	cfg := domain.DefaultConfig()
	store := infra.NewMemoryStore()
	gate := application.NewGate(store, stubResolver{}, infra.NewStaticConfig(cfg), nil)
	h := Middleware(Options{Gate: gate, Sink: failingSink{}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example/style.css", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "ok"))
}

var errBroken = errors.New("store down")

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error)              { return nil, errBroken }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error { return errBroken }
func (brokenStore) Delete(context.Context, string) error                     { return errBroken }
func (brokenStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errBroken
}
func (brokenStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errBroken
}

type failingSink struct{}

func (failingSink) Append(context.Context, domain.Record) error { return errors.New("sink down") }
