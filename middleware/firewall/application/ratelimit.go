package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"firewall-gateway/middleware/firewall/domain"

	"go.uber.org/zap"
)

// RateResult é a decisão do rate limiter.
type RateResult struct {
	Admitted bool
	// Weighted é a soma ponderada da janela antes desta request.
	Weighted float64
	// Banned indica que o estouro gerou ban global.
	Banned bool
}

// RateLimiter é uma janela deslizante aproximada por bucket_count buckets de
// bucket_size segundos com peso linear decrescente (o mais antigo tende a 0).
//
// Leitura, renovação de TTL e incremento não são uma transação: corridas entre
// requests do mesmo IP podem errar a conta por poucas unidades perto do limite.
// O incremento em si é atômico no store.
type RateLimiter struct {
	Store  domain.Store
	Bans   *BanRegistry
	Config domain.ConfigProvider
	Logger *zap.Logger
	Now    domain.Clock
}

func NewRateLimiter(store domain.Store, bans *BanRegistry, cfg domain.ConfigProvider, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{Store: store, Bans: bans, Config: cfg, Logger: logger, Now: time.Now}
}

func bucketKey(ip string, index int64) string {
	return domain.KeyRateBucket + ip + ":" + strconv.FormatInt(index, 10)
}

// Weight é o peso do bucket i (0 = atual) numa janela de n buckets.
func Weight(i, n int) float64 {
	return 1 - float64(i)/float64(n)
}

// CheckAndAdmit soma a janela ponderada; se atingir max_requests, bane (quando
// configurado) e reporta limitado. Senão incrementa o bucket atual.
func (r *RateLimiter) CheckAndAdmit(ctx context.Context, ip string) (RateResult, error) {
	cfg := r.Config.Config().RateLimiting
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	window := cfg.WindowDuration()
	current := now().Unix() / int64(cfg.BucketSize)

	var total float64
	for i := 0; i < cfg.BucketCount; i++ {
		key := bucketKey(ip, current-int64(i))
		raw, err := r.Store.Get(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return RateResult{}, fmt.Errorf("read rate bucket: %w", err)
		}
		count, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			r.Logger.Warn("ignoring corrupt rate bucket", zap.String("key", key), zap.Error(err))
			continue
		}
		total += float64(count) * Weight(i, cfg.BucketCount)

		if _, err := r.Store.Expire(ctx, key, window); err != nil {
			return RateResult{}, fmt.Errorf("refresh rate bucket: %w", err)
		}
	}

	if total >= float64(cfg.MaxRequests) {
		res := RateResult{Weighted: total}
		if cfg.BanOnLimit {
			if err := r.Bans.Ban(ctx, ip, cfg.BanDurationValue()); err != nil {
				return res, err
			}
			res.Banned = true
		}
		r.Logger.Warn("rate limit exceeded",
			zap.String("ip", ip),
			zap.Float64("weighted", total),
			zap.Int("max_requests", cfg.MaxRequests),
			zap.Bool("banned", res.Banned),
		)
		return res, nil
	}

	if _, err := r.Store.Increment(ctx, bucketKey(ip, current), window); err != nil {
		return RateResult{}, fmt.Errorf("increment rate bucket: %w", err)
	}
	return RateResult{Admitted: true, Weighted: total}, nil
}
