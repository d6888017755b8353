package firewall

import (
	"net/http"
	"time"

	"firewall-gateway/middleware/firewall/application"
	"firewall-gateway/middleware/firewall/infra"

	"github.com/prometheus/client_golang/prometheus"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Registerer recebe firewall_inflight_requests e firewall_concurrency_rejected_total (opcional).
	Registerer prometheus.Registerer
}

// ConcurrencyMiddleware limita requests simultâneas. Max <= 0 desliga o limite.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := &application.ConcurrencyService{
		Pool:           infra.NewSlotPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "firewall_inflight_requests",
				Help: "Requests currently holding a concurrency slot",
			}, func() float64 { return float64(svc.InFlight()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "firewall_concurrency_rejected_total",
				Help: "Requests rejected because no concurrency slot was free in time",
			}, func() float64 { return float64(svc.Rejected()) }),
		)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				writeText(w, opts.RejectStatus, http.StatusText(opts.RejectStatus))
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
