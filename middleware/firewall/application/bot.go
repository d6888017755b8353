package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"firewall-gateway/middleware/firewall/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// BotVerdict é o resultado da autenticação de um crawler declarado.
type BotVerdict int

const (
	// BotUnverified: DNS não confirmou a identidade. O chamador bane e nega.
	BotUnverified BotVerdict = iota
	// BotVerified: reverse + forward DNS confirmaram.
	BotVerified
	// BotTrusted: validação desligada para esse tipo; o User-Agent basta.
	BotTrusted
	// BotDeferred: o lookup nem foi tentado (limites locais). Não é cacheado nem punido.
	BotDeferred
)

func (v BotVerdict) String() string {
	switch v {
	case BotVerified:
		return "verified"
	case BotTrusted:
		return "trusted"
	case BotDeferred:
		return "deferred"
	default:
		return "unverified"
	}
}

// Accepted reporta se o bot pode seguir sem challenge.
func (v BotVerdict) Accepted() bool { return v == BotVerified || v == BotTrusted }

// validator confirma se um IP pertence a um bot.
type validator interface {
	validate(ctx context.Context, ip string) (bool, error)
}

// forwardConfirmedDNS é o método recomendado pelos buscadores:
// reverse DNS → sufixo esperado → forward DNS contém o IP original.
type forwardConfirmedDNS struct {
	identity domain.BotIdentity
	resolver domain.Resolver
}

func (f forwardConfirmedDNS) validate(ctx context.Context, ip string) (bool, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false, nil
	}
	addr = addr.Unmap()

	names, err := f.resolver.LookupAddr(ctx, ip)
	if err != nil {
		if deferred(ctx, err) {
			return false, fmt.Errorf("reverse lookup %s: %w", ip, domain.ErrLookupDeferred)
		}
		return false, nil
	}

	host := ""
	for _, n := range names {
		n = strings.TrimSuffix(n, ".")
		if n != "" && n != ip {
			host = n
			break
		}
	}
	if host == "" || !f.identity.HasSuffix(host) {
		return false, nil
	}

	networks := []string{"ip4"}
	if addr.Is6() {
		networks = append(networks, "ip6")
	}
	for _, network := range networks {
		ips, err := f.resolver.LookupIP(ctx, network, host)
		if err != nil {
			if deferred(ctx, err) {
				return false, fmt.Errorf("forward lookup %s: %w", host, domain.ErrLookupDeferred)
			}
			continue
		}
		if containsAddr(ips, addr) {
			return true, nil
		}
	}
	return false, nil
}

// deferred separa "o DNS respondeu que não" de "o lookup não terminou". Só o
// primeiro caso pode virar veredito cacheado e ban.
func deferred(ctx context.Context, err error) bool {
	var dnsErr *net.DNSError
	return ctx.Err() != nil ||
		errors.Is(err, domain.ErrLookupDeferred) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &dnsErr) && dnsErr.IsTimeout)
}

func containsAddr(ips []net.IP, want netip.Addr) bool {
	for _, raw := range ips {
		got, ok := netip.AddrFromSlice(raw)
		if ok && got.Unmap() == want {
			return true
		}
	}
	return false
}

// BotAuthenticator valida crawlers declarados via DNS, com cache no store.
// Validações simultâneas do mesmo bot e IP compartilham um único lookup.
type BotAuthenticator struct {
	Store    domain.Store
	Resolver domain.Resolver
	Config   domain.ConfigProvider
	Logger   *zap.Logger

	inflight singleflight.Group
}

func NewBotAuthenticator(store domain.Store, resolver domain.Resolver, cfg domain.ConfigProvider, logger *zap.Logger) *BotAuthenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotAuthenticator{Store: store, Resolver: resolver, Config: cfg, Logger: logger}
}

func (a *BotAuthenticator) validator(id domain.BotIdentity) validator {
	switch id.Kind {
	case domain.BotGoogle, domain.BotTwitter, domain.BotFacebook, domain.BotBing, domain.BotLinkedIn:
		return forwardConfirmedDNS{identity: id, resolver: a.Resolver}
	default:
		return nil
	}
}

func botCacheKey(kind domain.BotKind, ip string) string {
	return domain.KeyBotValid + kind.String() + ":" + ip
}

// Authenticate decide se o IP é mesmo o bot que o User-Agent declara.
// Falhas de store no cache são logadas e tratadas como miss; nunca viram erro.
func (a *BotAuthenticator) Authenticate(ctx context.Context, id domain.BotIdentity, ip string) BotVerdict {
	cfg := a.Config.Config().Bots
	if !cfg.BotValidationEnabled(id.Kind) {
		return BotTrusted
	}

	key := botCacheKey(id.Kind, ip)
	raw, err := a.Store.Get(ctx, key)
	switch {
	case err == nil:
		if string(raw) == "1" {
			return BotVerified
		}
		return BotUnverified
	case !errors.Is(err, domain.ErrNotFound):
		a.Logger.Warn("bot verification cache read failed", zap.String("ip", ip), zap.Error(err))
	}

	v := a.validator(id)
	if v == nil {
		return BotUnverified
	}
	// o lookup compartilhado não herda o cancelamento de quem chegou primeiro;
	// o timeout do resolver continua valendo
	shared := context.WithoutCancel(ctx)
	ch := a.inflight.DoChan(key, func() (any, error) {
		ok, err := v.validate(shared, ip)
		if err != nil {
			return false, err
		}
		val := []byte("0")
		if ok {
			val = []byte("1")
		}
		if err := a.Store.Set(shared, key, val, cfg.CacheTTLDuration()); err != nil {
			a.Logger.Warn("bot verification cache write failed", zap.String("ip", ip), zap.Error(err))
		}
		return ok, nil
	})

	var res any
	select {
	case r := <-ch:
		res, err = r.Val, r.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		a.Logger.Warn("bot verification deferred", zap.String("ip", ip), zap.Stringer("bot", id.Kind), zap.Error(err))
		return BotDeferred
	}

	if ok, _ := res.(bool); ok {
		return BotVerified
	}
	return BotUnverified
}
