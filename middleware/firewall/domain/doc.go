// Package domain define contratos e tipos de domínio do firewall de admissão.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Aqui ficam o contrato do store compartilhado com TTL, a tabela de bots conhecidos,
// a configuração (payload do ConfigProvider) e o registro de telemetria.
package domain
