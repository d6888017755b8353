package firewall

import (
	"context"
	"net/http"
	"time"

	"firewall-gateway/middleware/firewall/application"
	"firewall-gateway/middleware/firewall/domain"

	"go.uber.org/zap"
)

type Options struct {
	Gate     *application.Gate
	Sink     domain.Sink
	Logger   *zap.Logger
	ClientIP ClientIPFunc
	// DebugHeaders expõe X-Firewall-State e X-Firewall-Time na resposta.
	DebugHeaders bool
	// Now é o relógio da telemetria (time.Now por padrão).
	Now domain.Clock
}

// Middleware coloca o gate na frente do handler. Negações, challenge e 429 nunca
// chegam ao próximo handler. O 429 substitui a resposta da aplicação antes do
// primeiro byte sair; depois disso o corpo é repassado sem buffer.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.ClientIP == nil {
		opts.ClientIP = ClientIP
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := opts.Now()
			ctx := r.Context()

			id, token := challengeCredentials(r)
			adm := opts.Gate.Admit(ctx, application.Request{
				IP:             opts.ClientIP(r),
				UserAgent:      r.UserAgent(),
				Path:           r.URL.Path,
				ChallengeID:    id,
				ChallengeToken: token,
			})

			if opts.DebugHeaders {
				w.Header().Set("X-Firewall-State", string(adm.State))
				w.Header().Set("X-Firewall-Time", formatSeconds(adm.FirewallTime))
			}

			if !adm.Eligible {
				sw := &statusWriter{ResponseWriter: w}
				serve(opts, adm, sw, next, r)
				record(ctx, opts, adm, r, sw.Status(), opts.Now().Sub(start))
				return
			}

			// elegível: status e headers ficam retidos até a fase de rate limit,
			// o corpo passa direto
			status := 0
			gw := newGatedWriter(w, func(code int) bool {
				status = code
				switch opts.Gate.Complete(ctx, adm, code) {
				case application.VerdictRateLimited:
					status = http.StatusTooManyRequests
					w.Header().Set("Retry-After", formatInt(opts.Gate.Config.Config().RateLimiting.BanDuration))
					writeText(w, status, bodyRateLimited)
					return true
				case application.VerdictUnavailable:
					status = http.StatusServiceUnavailable
					writeText(w, status, bodyUnavailable)
					return true
				}
				return false
			})
			serve(opts, adm, gw, next, r)
			gw.finish()
			responseTime := opts.Now().Sub(start)

			record(ctx, opts, adm, r, status, responseTime)
		})
	}
}

func serve(opts Options, adm *application.Admission, w http.ResponseWriter, next http.Handler, r *http.Request) {
	switch adm.Verdict {
	case application.VerdictDeny:
		writeText(w, http.StatusForbidden, bodyDenied)
	case application.VerdictUnavailable:
		writeText(w, http.StatusServiceUnavailable, bodyUnavailable)
	case application.VerdictChallenge:
		cfg := opts.Gate.Config.Config().Challenge
		if err := renderChallenge(w, *adm.Challenge, cfg); err != nil {
			opts.Logger.Error("render challenge failed", zap.Error(err))
		}
	default:
		next.ServeHTTP(w, r)
	}
}

// record envia a telemetria. Falha no sink é logada e não afeta a resposta.
func record(ctx context.Context, opts Options, adm *application.Admission, r *http.Request, status int, responseTime time.Duration) {
	if opts.Sink == nil {
		return
	}
	rec := domain.Record{
		IP:                  adm.Request.IP,
		Path:                r.URL.Path,
		Query:               r.URL.RawQuery,
		Agent:               r.UserAgent(),
		FirewallTimeSeconds: adm.FirewallTime.Seconds(),
		ResponseTimeSeconds: responseTime.Seconds(),
		IsBotAgent:          adm.BotAgent,
		IsBannedBot:         adm.Banned,
		IsChallenge:         adm.Challenge != nil,
		IsRateLimited:       adm.Limited,
		Status:              status,
		At:                  adm.Start,
	}
	if err := opts.Sink.Append(context.WithoutCancel(ctx), rec); err != nil {
		opts.Logger.Warn("telemetry append failed", zap.String("ip", rec.IP), zap.Error(err))
	}
}
