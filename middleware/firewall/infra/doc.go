// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryStore / RedisStore: store compartilhado com TTL (RedisStore usa go-redis)
//   - BreakerStore: isola falhas do store com sony/gobreaker
//   - DNSResolver: lookups com timeout, limite de taxa (x/time/rate) e de concorrência
//   - Sinks de telemetria: log (zap), Prometheus, buffer no store
//   - FileConfig: configuração YAML recarregada via fsnotify
package infra
