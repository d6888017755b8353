package infra

import (
	"context"

	"firewall-gateway/middleware/firewall/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink agrega os registros em métricas de baixa cardinalidade
// (sem IP, path ou user-agent como label).
type PrometheusSink struct {
	requests     *prometheus.CounterVec
	firewallTime prometheus.Histogram
	responseTime prometheus.Histogram
}

func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firewall_requests_total",
			Help: "Requests seen by the firewall gate, by outcome",
		}, []string{"outcome", "bot_agent"}),
		firewallTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "firewall_decision_seconds",
			Help:    "Time spent in the firewall before the request reached the application",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "firewall_response_seconds",
			Help:    "Total time until the response was produced",
			Buckets: prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{s.requests, s.firewallTime, s.responseTime} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Outcome classifica o registro. Rate limit vence porque sobrescreve a resposta.
func Outcome(rec domain.Record) string {
	switch {
	case rec.IsRateLimited:
		return "rate_limited"
	case rec.IsBannedBot:
		return "denied"
	case rec.IsChallenge:
		return "challenged"
	default:
		return "allowed"
	}
}

func (s *PrometheusSink) Append(_ context.Context, rec domain.Record) error {
	bot := "false"
	if rec.IsBotAgent {
		bot = "true"
	}
	s.requests.WithLabelValues(Outcome(rec), bot).Inc()
	s.firewallTime.Observe(rec.FirewallTimeSeconds)
	s.responseTime.Observe(rec.ResponseTimeSeconds)
	return nil
}
