package domain

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrLookupDeferred indica que o lookup não foi feito por limite local
// (sem vaga ou sem token). Não é falha de DNS e não deve ser punido.
var ErrLookupDeferred = errors.New("dns lookup deferred by local limits")

// BotKind enumera os crawlers conhecidos cuja identidade é validada por DNS.
type BotKind int

const (
	BotNone BotKind = iota
	BotGoogle
	BotTwitter
	BotFacebook
	BotBing
	BotLinkedIn
)

func (k BotKind) String() string {
	switch k {
	case BotGoogle:
		return "google"
	case BotTwitter:
		return "twitter"
	case BotFacebook:
		return "facebook"
	case BotBing:
		return "bing"
	case BotLinkedIn:
		return "linkedin"
	default:
		return "none"
	}
}

// BotIdentity descreve como reconhecer e validar um crawler.
type BotIdentity struct {
	Kind BotKind
	// UASubstrings são comparadas sem diferenciar maiúsculas.
	UASubstrings []string
	// Suffixes são os domínios esperados no reverse DNS (com ponto inicial).
	Suffixes []string
}

// KnownBots é a tabela fixa. A ordem importa: o primeiro match vence.
var KnownBots = []BotIdentity{
	{Kind: BotGoogle, UASubstrings: []string{"googlebot"}, Suffixes: []string{".googlebot.com", ".google.com"}},
	{Kind: BotTwitter, UASubstrings: []string{"twitterbot"}, Suffixes: []string{".twitter.com"}},
	{Kind: BotFacebook, UASubstrings: []string{"facebookexternalhit", "facebot"}, Suffixes: []string{".facebook.com"}},
	{Kind: BotBing, UASubstrings: []string{"bingbot", "bingpreview"}, Suffixes: []string{".search.msn.com"}},
	{Kind: BotLinkedIn, UASubstrings: []string{"linkedinbot"}, Suffixes: []string{".linkedin.com"}},
}

// MatchBot retorna a identidade cujo User-Agent bate, ou false.
func MatchBot(userAgent string) (BotIdentity, bool) {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return BotIdentity{}, false
	}
	for _, id := range KnownBots {
		for _, sub := range id.UASubstrings {
			if strings.Contains(ua, sub) {
				return id, true
			}
		}
	}
	return BotIdentity{}, false
}

// HasSuffix reporta se o hostname termina com algum sufixo esperado.
// Aceita o nome com ou sem o ponto final do FQDN.
func (b BotIdentity) HasSuffix(hostname string) bool {
	h := strings.ToLower(strings.TrimSuffix(hostname, "."))
	for _, s := range b.Suffixes {
		if strings.HasSuffix(h, s) {
			return true
		}
	}
	return false
}

// Resolver é o subconjunto de *net.Resolver usado na validação de bots.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}
