package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indica chave ausente ou expirada.
	ErrNotFound = errors.New("key not found")
	// ErrStoreUnavailable indica que o store está fora (ex: circuito aberto).
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Store é o key-value compartilhado com TTL, único ponto de sincronização entre requests.
//
// Toda escrita é uma sobrescrita completa com TTL próprio; nada exige limpeza posterior.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Increment soma 1 de forma atômica (cria com 1 se ausente) e aplica o TTL.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Expire renova o TTL de uma chave existente. Retorna false se a chave não existe.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// PrefixScanner lista chaves por prefixo. É uma capacidade separada porque só o
// drain de telemetria precisa dela; o núcleo do firewall nunca varre o store.
type PrefixScanner interface {
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Clock permite injetar o relógio (testes de TTL e de janela).
type Clock func() time.Time

// Namespaces das chaves no store.
const (
	KeyBan              = "bot_ban:"
	KeyRateBucket       = "rate_bucket:"
	KeyChallengeSecret  = "challenge_secret:"
	KeyChallengePending = "challenge_pending:"
	KeyVerified         = "challenge_verified:"
	KeyBotValid         = "bot_valid:"
	KeyRequestTime      = "request_time:"
)
