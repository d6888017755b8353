package domain

import (
	"context"
	"time"
)

// Record é o registro de telemetria emitido para toda request que passa pelo gate.
//
// Cuidado com cardinalidade: IP, Path e Agent não devem virar labels de métricas.
type Record struct {
	IP                  string  `json:"ip"`
	Path                string  `json:"path"`
	Query               string  `json:"query"`
	Agent               string  `json:"agent"`
	FirewallTimeSeconds float64 `json:"firewallTime"`
	ResponseTimeSeconds float64 `json:"responseTime"`
	IsBotAgent          bool    `json:"isBotAgent"`
	IsBannedBot         bool    `json:"isBannedBot"`
	IsChallenge         bool    `json:"isChallenge"`
	IsRateLimited       bool    `json:"isRateLimited"`
	Status              int     `json:"status"`

	At time.Time `json:"at"`
}

// Sink recebe os registros. O middleware trata erro como best-effort.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}
