package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firewall-gateway/middleware/firewall"
	"firewall-gateway/middleware/firewall/application"
	"firewall-gateway/middleware/firewall/domain"
	"firewall-gateway/middleware/firewall/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	os.Exit(runMain())
}

// runMain devolve o código de saída; os defers (logger.Sync) rodam antes do os.Exit.
func runMain() int {
	cfg, err := readConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	logger, err := newLogger(cfg.logLevel, cfg.logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		zc.Encoding = "console"
	}
	return zc.Build()
}

func run(cfg config, logger *zap.Logger) error {
	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := openFirewallConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}

	resolver := infra.NewDNSResolver(nil,
		infra.WithLookupTimeout(cfg.dnsTimeout),
		infra.WithLookupRate(cfg.dnsRPS, cfg.dnsBurst),
		infra.WithMaxInflight(cfg.dnsMaxInflight),
	)
	gate := application.NewGate(store, resolver, provider, logger.Named("gate"))

	promSink, err := infra.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	sink := infra.MultiSink{infra.NewLogSink(logger.Named("telemetry")), promSink}
	if cfg.telemetryBuffer {
		sink = append(sink, infra.NewStoreSink(store, cfg.telemetryTTL))
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	clientIP := firewall.RemoteIP
	if cfg.trustXFF {
		clientIP = firewall.ClientIP
	}

	h := http.Handler(proxy)
	h = firewall.ConcurrencyMiddleware(firewall.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
		Registerer:     prometheus.DefaultRegisterer,
	})(h)
	h = firewall.Middleware(firewall.Options{
		Gate:         gate,
		Sink:         sink,
		Logger:       logger.Named("firewall"),
		ClientIP:     clientIP,
		DebugHeaders: cfg.debugHeaders,
	})(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	servers := []*http.Server{srv}

	if cfg.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: cfg.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		servers = append(servers, metricsSrv)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
	}()

	fw := provider.Config()
	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()),
		zap.String("metrics_addr", cfg.metricsAddr),
		zap.Bool("trust_xff", cfg.trustXFF),
	)
	logger.Info("firewall policy",
		zap.Int("max_requests", fw.RateLimiting.MaxRequests),
		zap.Int("window", fw.RateLimiting.Window),
		zap.Bool("rate_limiting", fw.EnableRateLimiting),
		zap.Bool("challenge_non_bots", fw.Challenge.EnabledForNonBots),
		zap.String("failure_mode", string(fw.Store.FailureMode)),
	)
	logger.Info("concurrency", zap.Int("max", cfg.concurrencyMax), zap.Duration("acquire_timeout", cfg.concurrencyTimeout))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// openStore escolhe Redis (compartilhado entre instâncias) ou memória, sempre atrás do breaker.
func openStore(ctx context.Context, cfg config, logger *zap.Logger) (domain.Store, func(), error) {
	breaker := infra.BreakerOptions{
		ConsecutiveFailures: uint32(cfg.breakerFailures),
		OpenTimeout:         cfg.breakerOpenTimeout,
		Logger:              logger.Named("store"),
	}

	if cfg.redisAddr == "" {
		mem := infra.NewMemoryStore()
		mem.StartJanitor(ctx)
		logger.Warn("REDIS_ADDR not set, using in-memory store")
		return infra.NewBreakerStore(mem, breaker), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	rs := infra.NewRedisStore(rdb, infra.WithStorePrefix(cfg.redisPrefix))

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	err := rs.Ping(pingCtx)
	cancel()
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return infra.NewBreakerStore(rs, breaker), func() { _ = rdb.Close() }, nil
}

func openFirewallConfig(ctx context.Context, cfg config, logger *zap.Logger) (domain.ConfigProvider, error) {
	if cfg.firewallConfig == "" {
		return infra.NewStaticConfig(domain.DefaultConfig()), nil
	}
	fc, err := infra.NewFileConfig(cfg.firewallConfig, infra.WithConfigLogger(logger.Named("config")))
	if err != nil {
		return nil, err
	}
	if err := fc.Watch(ctx); err != nil {
		logger.Warn("firewall config watch disabled", zap.Error(err))
	}
	return fc, nil
}
