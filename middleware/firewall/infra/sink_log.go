package infra

import (
	"context"
	"errors"

	"firewall-gateway/middleware/firewall/domain"

	"go.uber.org/zap"
)

// LogSink escreve cada registro como log estruturado em nível debug.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(_ context.Context, rec domain.Record) error {
	s.logger.Debug("firewall request",
		zap.String("ip", rec.IP),
		zap.String("path", rec.Path),
		zap.String("query", rec.Query),
		zap.String("agent", rec.Agent),
		zap.Int("status", rec.Status),
		zap.Float64("firewall_time", rec.FirewallTimeSeconds),
		zap.Float64("response_time", rec.ResponseTimeSeconds),
		zap.Bool("bot_agent", rec.IsBotAgent),
		zap.Bool("banned_bot", rec.IsBannedBot),
		zap.Bool("challenge", rec.IsChallenge),
		zap.Bool("rate_limited", rec.IsRateLimited),
	)
	return nil
}

// MultiSink repassa o registro a todos os sinks, mesmo se algum falhar.
type MultiSink []domain.Sink

func (m MultiSink) Append(ctx context.Context, rec domain.Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
