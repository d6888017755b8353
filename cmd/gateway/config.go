package main

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	listenAddr     string
	upstreamURL    string
	firewallConfig string
	trustXFF       bool
	debugHeaders   bool

	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string

	breakerFailures    int
	breakerOpenTimeout time.Duration

	metricsAddr string
	logLevel    string
	logFormat   string

	concurrencyMax     int
	concurrencyTimeout time.Duration

	dnsTimeout     time.Duration
	dnsRPS         float64
	dnsBurst       int
	dnsMaxInflight int

	telemetryBuffer bool
	telemetryTTL    time.Duration
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.firewallConfig = os.Getenv("FIREWALL_CONFIG")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", true)
	cfg.debugHeaders = getenvBoolDefault("FIREWALL_DEBUG_HEADERS", false)

	// sem REDIS_ADDR o estado fica em memória (uma instância só)
	cfg.redisAddr = os.Getenv("REDIS_ADDR")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.redisPrefix = getenvDefault("REDIS_PREFIX", "firewall")

	cfg.breakerFailures = getenvIntDefault("STORE_BREAKER_FAILURES", 5)
	cfg.breakerOpenTimeout = getenvDurationDefault("STORE_BREAKER_OPEN_TIMEOUT", 10*time.Second)

	cfg.metricsAddr = getenvDefault("METRICS_ADDR", ":9090")
	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.logFormat = getenvDefault("LOG_FORMAT", "json")

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.dnsTimeout = getenvDurationDefault("DNS_TIMEOUT", 2*time.Second)
	cfg.dnsRPS = getenvFloatDefault("DNS_RPS", 20)
	cfg.dnsBurst = getenvIntDefault("DNS_BURST", 10)
	cfg.dnsMaxInflight = getenvIntDefault("DNS_MAX_INFLIGHT", 16)

	cfg.telemetryBuffer = getenvBoolDefault("TELEMETRY_BUFFER", false)
	cfg.telemetryTTL = getenvDurationDefault("TELEMETRY_TTL", 24*time.Hour)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if u, err := url.Parse(cfg.upstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		return config{}, errors.New("UPSTREAM_URL must be an absolute URL")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.dnsTimeout <= 0 {
		return config{}, errors.New("DNS_TIMEOUT must be > 0")
	}
	if cfg.breakerFailures <= 0 {
		return config{}, errors.New("STORE_BREAKER_FAILURES must be > 0")
	}
	if cfg.telemetryBuffer && strings.TrimSpace(cfg.redisAddr) == "" {
		return config{}, errors.New("REDIS_ADDR is required when TELEMETRY_BUFFER=true")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
