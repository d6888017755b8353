// telemetry-drain esvazia os registros de telemetria bufferizados no Redis pelo gateway
// (TELEMETRY_BUFFER=true) e os grava como JSON, um por linha.
//
// Sem DRAIN_INTERVAL roda uma vez e sai, próprio para cron. Com intervalo fica em loop
// até SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"firewall-gateway/middleware/firewall/domain"
	"firewall-gateway/middleware/firewall/infra"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Error("telemetry drain failed", zap.Error(err))
		return 1
	}
	return 0
}

func run(logger *zap.Logger) error {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return errors.New("REDIS_ADDR is required")
	}
	db, err := strconv.Atoi(getenv("REDIS_DB", "0"))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	interval, err := time.ParseDuration(getenv("DRAIN_INTERVAL", "0s"))
	if err != nil {
		return fmt.Errorf("invalid DRAIN_INTERVAL: %w", err)
	}

	out := io.Writer(os.Stdout)
	if p := os.Getenv("OUTPUT_PATH"); p != "" {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		out = f
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})
	defer func() { _ = rdb.Close() }()

	store := infra.NewRedisStore(rdb, infra.WithStorePrefix(getenv("REDIS_PREFIX", "firewall:")))
	sink := infra.NewStoreSink(store, 0)

	for {
		n, err := drainOnce(ctx, sink, out)
		if err != nil {
			return err
		}
		logger.Info("telemetry drained", zap.Int("records", n))

		if interval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// drainOnce grava cada registro pendente em out. Registro só sai do store depois de escrito.
func drainOnce(ctx context.Context, sink *infra.StoreSink, out io.Writer) (int, error) {
	enc := json.NewEncoder(out)
	n, err := sink.Drain(ctx, func(rec domain.Record) error {
		return enc.Encode(rec)
	})
	if err != nil {
		return n, fmt.Errorf("drain: %w", err)
	}
	return n, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
