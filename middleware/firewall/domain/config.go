package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FailMode define o que acontece quando o store compartilhado falha.
type FailMode string

const (
	// FailOpen admite a request como se a checagem tivesse passado (disponibilidade).
	FailOpen FailMode = "open"
	// FailClosed nega a request com 503 (segurança).
	FailClosed FailMode = "closed"
)

// Config é o payload do ConfigProvider. Tempos em segundos, como no arquivo YAML.
type Config struct {
	RateLimiting       RateLimitConfig `yaml:"rate_limiting"`
	Challenge          ChallengeConfig `yaml:"challenge"`
	Bots               BotsConfig      `yaml:"bots"`
	Exemptions         ExemptionConfig `yaml:"exemptions"`
	EnableRateLimiting bool            `yaml:"enable_rate_limiting"`
	Gate               GateConfig      `yaml:"gate"`
	Store              StoreConfig     `yaml:"store"`
}

type RateLimitConfig struct {
	Window      int `yaml:"window"`
	MaxRequests int `yaml:"max_requests"`
	BucketSize  int `yaml:"bucket_size"`
	BucketCount int `yaml:"bucket_count"`
	BanDuration int `yaml:"ban_duration"`
	// BanOnLimit separa a resposta ao estouro de janela do ban por bot falso.
	BanOnLimit bool `yaml:"ban_on_limit"`
}

type ChallengeConfig struct {
	TTL                  int     `yaml:"ttl"`
	VerifiedTTL          int     `yaml:"verified_ttl"`
	SecretLength         int     `yaml:"secret_length"`
	DummyRatio           float64 `yaml:"dummy_ratio"`
	DummyChar            string  `yaml:"dummy_char"`
	EnabledForNonBots    bool    `yaml:"enabled_for_non_bots"`
	TrustVerifiedSession bool    `yaml:"trust_verified_session"`
}

type BotsConfig struct {
	GoogleEnabled   bool `yaml:"google_enabled"`
	TwitterEnabled  bool `yaml:"twitter_enabled"`
	FacebookEnabled bool `yaml:"facebook_enabled"`
	BingEnabled     bool `yaml:"bing_enabled"`
	LinkedInEnabled bool `yaml:"linkedin_enabled"`

	BanUnverified bool `yaml:"ban_unverified"`
	BanDuration   int  `yaml:"ban_duration"`
	CacheTTL      int  `yaml:"cache_ttl"`
}

type ExemptionConfig struct {
	Paths []string `yaml:"paths"`
}

type GateConfig struct {
	// SlowThreshold em segundos (fracionário) a partir do qual a request conta no rate limit.
	SlowThreshold float64 `yaml:"slow_threshold"`
}

type StoreConfig struct {
	FailureMode FailMode `yaml:"failure_mode"`
}

// DefaultConfig retorna os valores padrão.
func DefaultConfig() Config {
	return Config{
		RateLimiting: RateLimitConfig{
			Window:      121,
			MaxRequests: 30,
			BucketSize:  11,
			BucketCount: 11,
			BanDuration: 3600,
			BanOnLimit:  true,
		},
		Challenge: ChallengeConfig{
			TTL:               300,
			VerifiedTTL:       1800,
			SecretLength:      16,
			DummyRatio:        0.2,
			DummyChar:         "!",
			EnabledForNonBots: true,
		},
		Bots: BotsConfig{
			GoogleEnabled:   true,
			TwitterEnabled:  true,
			FacebookEnabled: true,
			BingEnabled:     true,
			LinkedInEnabled: true,
			BanUnverified:   true,
			BanDuration:     3600,
			CacheTTL:        86400,
		},
		Exemptions: ExemptionConfig{
			Paths: []string{"/media/", "/assets/", ".css", ".js", ".png", ".jpg"},
		},
		EnableRateLimiting: true,
		Gate:               GateConfig{SlowThreshold: 0.1},
		Store:              StoreConfig{FailureMode: FailOpen},
	}
}

// Validate verifica a configuração.
func (c Config) Validate() error {
	var errs []error
	rl := c.RateLimiting
	if rl.BucketSize <= 0 {
		errs = append(errs, errors.New("rate_limiting.bucket_size must be > 0"))
	}
	if rl.BucketCount <= 0 {
		errs = append(errs, errors.New("rate_limiting.bucket_count must be > 0"))
	}
	if rl.MaxRequests <= 0 {
		errs = append(errs, errors.New("rate_limiting.max_requests must be > 0"))
	}
	if rl.Window <= 0 {
		errs = append(errs, errors.New("rate_limiting.window must be > 0"))
	}
	if rl.BanDuration <= 0 {
		errs = append(errs, errors.New("rate_limiting.ban_duration must be > 0"))
	}

	ch := c.Challenge
	if ch.TTL <= 0 || ch.VerifiedTTL <= 0 {
		errs = append(errs, errors.New("challenge.ttl and challenge.verified_ttl must be > 0"))
	}
	if ch.SecretLength <= 0 {
		errs = append(errs, errors.New("challenge.secret_length must be > 0"))
	}
	if ch.DummyRatio < 0 {
		errs = append(errs, errors.New("challenge.dummy_ratio must be >= 0"))
	}
	if len(ch.DummyChar) != 1 || strings.ContainsAny(ch.DummyChar, base64Alphabet) {
		errs = append(errs, fmt.Errorf("challenge.dummy_char %q must be a single character outside the base64 alphabet", ch.DummyChar))
	}

	if c.Bots.BanDuration <= 0 || c.Bots.CacheTTL <= 0 {
		errs = append(errs, errors.New("bots.ban_duration and bots.cache_ttl must be > 0"))
	}
	if c.Gate.SlowThreshold < 0 {
		errs = append(errs, errors.New("gate.slow_threshold must be >= 0"))
	}
	switch c.Store.FailureMode {
	case FailOpen, FailClosed:
	default:
		errs = append(errs, fmt.Errorf("store.failure_mode %q must be %q or %q", c.Store.FailureMode, FailOpen, FailClosed))
	}
	return errors.Join(errs...)
}

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/="

// BotValidationEnabled diz se a validação DNS está ligada para o tipo de bot.
func (b BotsConfig) BotValidationEnabled(kind BotKind) bool {
	switch kind {
	case BotGoogle:
		return b.GoogleEnabled
	case BotTwitter:
		return b.TwitterEnabled
	case BotFacebook:
		return b.FacebookEnabled
	case BotBing:
		return b.BingEnabled
	case BotLinkedIn:
		return b.LinkedInEnabled
	default:
		return false
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (r RateLimitConfig) WindowDuration() time.Duration      { return seconds(r.Window) }
func (r RateLimitConfig) BanDurationValue() time.Duration    { return seconds(r.BanDuration) }
func (c ChallengeConfig) TTLDuration() time.Duration         { return seconds(c.TTL) }
func (c ChallengeConfig) VerifiedTTLDuration() time.Duration { return seconds(c.VerifiedTTL) }
func (b BotsConfig) BanDurationValue() time.Duration         { return seconds(b.BanDuration) }
func (b BotsConfig) CacheTTLDuration() time.Duration         { return seconds(b.CacheTTL) }

func (g GateConfig) SlowThresholdDuration() time.Duration {
	return time.Duration(g.SlowThreshold * float64(time.Second))
}

// ConfigProvider entrega a configuração corrente. Implementações podem recarregar em runtime.
type ConfigProvider interface {
	Config() Config
}
