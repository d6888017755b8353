// Package firewall fornece o adapter HTTP (net/http) do firewall de admissão e o
// limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos, config e tipos (sem dependência de net/http)
//   - application: ban, bots, challenge, rate limit e a máquina de estados do gate
//   - infra: stores (memória, Redis, circuit breaker), resolver DNS, sinks, config
//   - firewall (este pacote): middlewares HTTP + IP do cliente + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Resolve o IP do cliente (X-Forwarded-For válido ou RemoteAddr)
//  2. Chama o gate para a decisão pré-aplicação
//  3. Se negado, responde 403/503 ou a página de challenge, sem chamar a aplicação
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
//  5. Para requests elegíveis, roda o rate limit com a resposta em mãos e troca por 429 se estourou
//  6. Registra a telemetria no sink
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o wiring,
// como FIREWALL_CONFIG, REDIS_ADDR, CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package firewall
