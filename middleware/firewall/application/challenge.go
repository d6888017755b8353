package application

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"firewall-gateway/middleware/firewall/domain"

	"go.uber.org/zap"
)

// ChallengeService gera, embaralha e verifica o challenge de navegador.
//
// O servidor nunca precisa da lógica de descramble do cliente: a verificação
// compara apenas os bytes do segredo.
type ChallengeService struct {
	Store  domain.Store
	Config domain.ConfigProvider
	Logger *zap.Logger
	// Rand é a fonte de aleatoriedade (crypto/rand.Reader por padrão).
	Rand io.Reader
}

func NewChallengeService(store domain.Store, cfg domain.ConfigProvider, logger *zap.Logger) *ChallengeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengeService{Store: store, Config: cfg, Logger: logger, Rand: rand.Reader}
}

func (s *ChallengeService) random() io.Reader {
	if s.Rand == nil {
		return rand.Reader
	}
	return s.Rand
}

func challengeKey(id string) string { return domain.KeyChallengeSecret + id }
func pendingKey(ip string) string   { return domain.KeyChallengePending + ip }
func verifiedKey(ip string) string  { return domain.KeyVerified + ip }

// Generate cria um challenge novo e grava o segredo indexado pelo ID.
// Colisão de ID sobrescreve a anterior (last write wins).
func (s *ChallengeService) Generate(ctx context.Context) (domain.Challenge, error) {
	cfg := s.Config.Config().Challenge

	secret := make([]byte, cfg.SecretLength)
	if _, err := io.ReadFull(s.random(), secret); err != nil {
		return domain.Challenge{}, fmt.Errorf("challenge secret: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(secret)

	broken, err := Scramble(s.random(), encoded, cfg.DummyRatio, cfg.DummyChar)
	if err != nil {
		return domain.Challenge{}, err
	}

	rec, err := json.Marshal(domain.ChallengeRecord{
		Secret:  secret,
		Method:  domain.MethodReverseFilterDummy,
		Encoded: encoded,
	})
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("marshal challenge: %w", err)
	}
	if err := s.Store.Set(ctx, challengeKey(broken), rec, cfg.TTLDuration()); err != nil {
		return domain.Challenge{}, fmt.Errorf("store challenge: %w", err)
	}

	return domain.Challenge{ID: broken, Broken: broken, Method: domain.MethodReverseFilterDummy}, nil
}

// Scramble inverte a string e insere floor(len*ratio) caracteres dummy em posições
// uniformes. A i-ésima inserção escolhe uma posição em [0, len+i].
func Scramble(rnd io.Reader, encoded string, ratio float64, dummy string) (string, error) {
	reversed := reverse(encoded)
	n := len(reversed)
	dummies := int(float64(n) * ratio)

	var b strings.Builder
	b.Grow(n + dummies*len(dummy))
	out := reversed
	for i := 0; i < dummies; i++ {
		pos, err := rand.Int(rnd, big.NewInt(int64(n+i+1)))
		if err != nil {
			return "", fmt.Errorf("dummy position: %w", err)
		}
		p := int(pos.Int64())
		b.Reset()
		b.WriteString(out[:p])
		b.WriteString(dummy)
		b.WriteString(out[p:])
		out = b.String()
	}
	return out, nil
}

// Descramble é o algoritmo entregue ao cliente: inverter e remover os dummies.
// O resultado é o payload base64 original.
func Descramble(broken, dummy string) string {
	return strings.ReplaceAll(reverse(broken), dummy, "")
}

func reverse(s string) string {
	r := []byte(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// Verify confere o token enviado contra o segredo guardado. Em caso de sucesso
// marca o IP como verificado. O challenge não é consumido: vale até expirar.
//
// Só falhas de store viram erro; token inválido ou ID desconhecido retornam false.
func (s *ChallengeService) Verify(ctx context.Context, id, token, ip string) (bool, error) {
	cfg := s.Config.Config().Challenge

	raw, err := s.Store.Get(ctx, challengeKey(id))
	if errors.Is(err, domain.ErrNotFound) {
		s.Logger.Debug("challenge verify failed: unknown or expired id", zap.String("ip", ip))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("challenge lookup: %w", err)
	}

	var rec domain.ChallengeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.Logger.Warn("challenge verify failed: corrupt record", zap.String("ip", ip), zap.Error(err))
		return false, nil
	}

	submitted, err := base64.StdEncoding.Strict().DecodeString(token)
	if err != nil {
		s.Logger.Debug("challenge verify failed: invalid base64 token", zap.String("ip", ip))
		return false, nil
	}
	if len(submitted) != cfg.SecretLength || subtle.ConstantTimeCompare(submitted, rec.Secret) != 1 {
		s.Logger.Debug("challenge verify failed: secret mismatch", zap.String("ip", ip))
		return false, nil
	}

	if err := s.Store.Set(ctx, verifiedKey(ip), []byte("1"), cfg.VerifiedTTLDuration()); err != nil {
		return false, fmt.Errorf("mark verified: %w", err)
	}
	return true, nil
}

// IsVerified reporta se o IP resolveu um challenge dentro do verified_ttl.
func (s *ChallengeService) IsVerified(ctx context.Context, ip string) (bool, error) {
	_, err := s.Store.Get(ctx, verifiedKey(ip))
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("verified lookup: %w", err)
	}
	return true, nil
}

// SetPending registra o challenge emitido para o IP (informativo).
func (s *ChallengeService) SetPending(ctx context.Context, ip, id string) error {
	ttl := s.Config.Config().Challenge.TTLDuration()
	return s.Store.Set(ctx, pendingKey(ip), []byte(id), ttl)
}

// Pending retorna o último challenge emitido para o IP, se houver.
func (s *ChallengeService) Pending(ctx context.Context, ip string) (string, bool, error) {
	raw, err := s.Store.Get(ctx, pendingKey(ip))
	if errors.Is(err, domain.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

func (s *ChallengeService) ClearPending(ctx context.Context, ip string) error {
	return s.Store.Delete(ctx, pendingKey(ip))
}
