package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firewall-gateway/middleware/firewall"
	"firewall-gateway/middleware/firewall/application"
	"firewall-gateway/middleware/firewall/domain"
	"firewall-gateway/middleware/firewall/infra"

	"go.uber.org/zap"
)

func main() {
	// Exemplo: injetando o firewall diretamente no seu webserver (sem proxy),
	// com estado em memória e telemetria só em log.
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryStore()
	store.StartJanitor(ctx)

	policy := domain.DefaultConfig()
	policy.Store.FailureMode = domain.FailClosed
	gate := application.NewGate(store, infra.NewDNSResolver(nil), infra.NewStaticConfig(policy), logger)
	stats := infra.NewMemorySink(infra.WithTrackIPs(true))

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		t := stats.Total()
		logger.Info("stats",
			zap.Int64("allowed", t.Allowed),
			zap.Int64("challenged", t.Challenged),
			zap.Int64("banned_bot", t.BannedBot),
			zap.Int64("rate_limited", t.RateLimited),
		)
		w.WriteHeader(http.StatusNoContent)
	})

	h := http.Handler(mux)
	h = firewall.ConcurrencyMiddleware(firewall.ConcurrencyOptions{Max: 50})(h)
	h = firewall.Middleware(firewall.Options{
		Gate:         gate,
		Sink:         infra.MultiSink{stats, infra.NewLogSink(logger)},
		Logger:       logger,
		ClientIP:     firewall.RemoteIP,
		DebugHeaders: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
