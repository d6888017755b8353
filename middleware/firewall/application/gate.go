package application

import (
	"context"
	"errors"
	"time"

	"firewall-gateway/middleware/firewall/domain"

	"github.com/mssola/useragent"
	"go.uber.org/zap"
)

// State identifica onde a máquina de admissão terminou.
type State string

const (
	StateStart           State = "START"
	StateChallengeVerify State = "CHALLENGE_VERIFY"
	StateBanCheck        State = "BAN_CHECK"
	StateBotMatch        State = "BOT_MATCH"
	StateNoMatch         State = "NO_MATCH"
	StatePass            State = "PASS"
	StateDeny            State = "DENY"
	StateDenyUnverified  State = "DENY_UNVERIFIED"
	StatePassAsBot       State = "PASS_AS_BOT"
	StateExemptPass      State = "EXEMPT_PASS"
	StateIssueChallenge  State = "ISSUE_CHALLENGE"
	StateMarkEligible    State = "MARK_RATE_LIMIT_ELIGIBLE"
	StateUnavailable     State = "UNAVAILABLE"
)

// Verdict é o que a camada HTTP deve fazer com a request.
type Verdict int

const (
	// VerdictAllow: segue para a aplicação.
	VerdictAllow Verdict = iota
	// VerdictDeny: 403.
	VerdictDeny
	// VerdictChallenge: página de challenge, a aplicação não roda.
	VerdictChallenge
	// VerdictUnavailable: 503 (store fora com fail-closed, ou verificação de bot adiada).
	VerdictUnavailable
	// VerdictRateLimited: 429, só na fase pós-resposta.
	VerdictRateLimited
)

// Terminal reporta se o veredito substitui a aplicação.
func (v Verdict) Terminal() bool { return v != VerdictAllow }

// Request é a visão da request que o gate precisa (sem net/http).
type Request struct {
	IP             string
	UserAgent      string
	Path           string
	ChallengeID    string
	ChallengeToken string
}

// Admission é o estado por request, criado no início do pipeline e passado
// às duas fases. Nada aqui é compartilhado entre requests.
type Admission struct {
	Request Request
	Start   time.Time

	State   State
	Verdict Verdict

	// Eligible marca a request para o rate limit pós-resposta.
	Eligible bool
	// Challenge é preenchido quando um challenge foi emitido nesta request.
	Challenge *domain.Challenge

	Bot        domain.BotKind
	BotVerdict BotVerdict
	BotAgent   bool
	Banned     bool
	Limited    bool

	// FirewallTime é o tempo gasto na fase de admissão.
	FirewallTime time.Duration
}

// Gate orquestra ban, bots, challenge, exemptions e rate limit numa decisão única.
type Gate struct {
	Bans       *BanRegistry
	Bots       *BotAuthenticator
	Challenges *ChallengeService
	Limiter    *RateLimiter
	Config     domain.ConfigProvider
	Logger     *zap.Logger
	Now        domain.Clock
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Gate) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// storeFault aplica a política de falha do store. Retorna true se a request
// deve parar como indisponível.
func (g *Gate) storeFault(adm *Admission, step string, err error) bool {
	mode := g.Config.Config().Store.FailureMode
	fields := []zap.Field{
		zap.String("ip", adm.Request.IP),
		zap.String("step", step),
		zap.String("failure_mode", string(mode)),
		zap.Bool("breaker_open", errors.Is(err, domain.ErrStoreUnavailable)),
		zap.Error(err),
	}
	if mode == domain.FailClosed {
		g.logger().Error("store failure, denying request", fields...)
		adm.State, adm.Verdict = StateUnavailable, VerdictUnavailable
		return true
	}
	g.logger().Warn("store failure, admitting request", fields...)
	return false
}

// Admit roda a fase pré-aplicação.
func (g *Gate) Admit(ctx context.Context, req Request) *Admission {
	adm := &Admission{Request: req, Start: g.now(), State: StateStart}
	g.admit(ctx, adm)
	adm.FirewallTime = g.now().Sub(adm.Start)
	return adm
}

func (g *Gate) admit(ctx context.Context, adm *Admission) {
	req := adm.Request
	cfg := g.Config.Config()
	log := g.logger()

	id, isBot := domain.MatchBot(req.UserAgent)
	adm.BotAgent = isBot || (req.UserAgent != "" && useragent.New(req.UserAgent).Bot())

	// CHALLENGE_VERIFY
	adm.State = StateChallengeVerify
	if req.ChallengeToken != "" && req.ChallengeID != "" {
		ok, err := g.Challenges.Verify(ctx, req.ChallengeID, req.ChallengeToken, req.IP)
		if err != nil && g.storeFault(adm, "challenge_verify", err) {
			return
		}
		if ok {
			adm.State, adm.Verdict, adm.Eligible = StatePass, VerdictAllow, true
			return
		}
	}

	// BAN_CHECK
	adm.State = StateBanCheck
	banned, err := g.Bans.IsBanned(ctx, req.IP)
	if err != nil && g.storeFault(adm, "ban_check", err) {
		return
	}
	if banned {
		log.Info("globally banned ip", zap.String("ip", req.IP))
		adm.State, adm.Verdict, adm.Banned = StateDeny, VerdictDeny, true
		return
	}

	// BOT_MATCH
	adm.State = StateBotMatch
	if isBot {
		adm.Bot = id.Kind
		adm.BotVerdict = g.Bots.Authenticate(ctx, id, req.IP)
		switch {
		case adm.BotVerdict.Accepted():
			adm.State, adm.Verdict = StatePassAsBot, VerdictAllow
		case adm.BotVerdict == BotDeferred:
			adm.State, adm.Verdict = StateUnavailable, VerdictUnavailable
		default:
			log.Warn("fake bot detected",
				zap.String("ip", req.IP),
				zap.Stringer("bot", id.Kind),
				zap.String("user_agent", req.UserAgent),
			)
			if cfg.Bots.BanUnverified {
				if err := g.Bans.Ban(ctx, req.IP, cfg.Bots.BanDurationValue()); err != nil {
					log.Error("ban failed", zap.String("ip", req.IP), zap.Error(err))
				}
			}
			adm.State, adm.Verdict, adm.Banned = StateDenyUnverified, VerdictDeny, true
		}
		return
	}

	// NO_MATCH: todo tráfego comum entra no rate limit.
	adm.State = StateNoMatch
	adm.Eligible = true

	if PathExempt(req.Path, cfg.Exemptions.Paths) {
		adm.State, adm.Verdict = StateExemptPass, VerdictAllow
		return
	}
	if !cfg.Challenge.EnabledForNonBots {
		adm.State, adm.Verdict = StateMarkEligible, VerdictAllow
		return
	}
	if cfg.Challenge.TrustVerifiedSession {
		verified, err := g.Challenges.IsVerified(ctx, req.IP)
		if err != nil && g.storeFault(adm, "verified_session", err) {
			return
		}
		if verified {
			adm.State, adm.Verdict = StateMarkEligible, VerdictAllow
			return
		}
	}

	ch, err := g.Challenges.Generate(ctx)
	if err != nil {
		if !g.storeFault(adm, "issue_challenge", err) {
			adm.State, adm.Verdict = StateMarkEligible, VerdictAllow
		}
		return
	}
	if err := g.Challenges.SetPending(ctx, req.IP, ch.ID); err != nil {
		log.Warn("set pending challenge failed", zap.String("ip", req.IP), zap.Error(err))
	}
	adm.Challenge = &ch
	adm.State, adm.Verdict = StateIssueChallenge, VerdictChallenge
	log.Debug("challenge issued", zap.String("ip", req.IP))
}

// Complete roda a fase RATE_LIMIT_CHECK depois que a resposta foi produzida.
// Retorna o veredito final: o original, VerdictRateLimited ou VerdictUnavailable.
func (g *Gate) Complete(ctx context.Context, adm *Admission, status int) Verdict {
	cfg := g.Config.Config()
	if !adm.Eligible || !cfg.EnableRateLimiting {
		return adm.Verdict
	}

	elapsed := g.now().Sub(adm.Start)
	triggered := status/100 != 2 ||
		elapsed > cfg.Gate.SlowThresholdDuration() ||
		adm.Challenge != nil
	if !triggered {
		return adm.Verdict
	}

	res, err := g.Limiter.CheckAndAdmit(ctx, adm.Request.IP)
	if err != nil {
		g.storeFault(adm, "rate_limit", err)
		return adm.Verdict
	}
	if !res.Admitted {
		adm.Limited = true
		adm.Verdict = VerdictRateLimited
	}
	return adm.Verdict
}

// NewGate monta o gate e os serviços sobre um único store e resolver.
func NewGate(store domain.Store, resolver domain.Resolver, cfg domain.ConfigProvider, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	bans := NewBanRegistry(store)
	return &Gate{
		Bans:       bans,
		Bots:       NewBotAuthenticator(store, resolver, cfg, logger),
		Challenges: NewChallengeService(store, cfg, logger),
		Limiter:    NewRateLimiter(store, bans, cfg, logger),
		Config:     cfg,
		Logger:     logger,
		Now:        time.Now,
	}
}
