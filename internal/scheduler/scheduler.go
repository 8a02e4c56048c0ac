package scheduler

import (
	"context"
	"time"

	"github.com/craftbase/meridian/internal/clock"
	"github.com/craftbase/meridian/internal/settlement/runner"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config controls the settlement loop interval.
type Config struct {
	RunInterval time.Duration
}

func DefaultConfig() Config {
	return Config{RunInterval: time.Hour}
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = DefaultConfig().RunInterval
	}
	return c
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Runner *runner.Runner
	Config Config `optional:"true"`
}

// Scheduler drives the monthly settlement pass. The pass itself is
// idempotent per owner and period, so running it every interval is safe:
// once a month is settled every further attempt is a no-op skip.
type Scheduler struct {
	log    *zap.Logger
	cfg    Config
	clock  clock.Clock
	runner *runner.Runner
}

func New(p Params) *Scheduler {
	return &Scheduler{
		log:    p.Log.Named("scheduler"),
		cfg:    p.Config.withDefaults(),
		clock:  p.Clock,
		runner: p.Runner,
	}
}

// RunOnce executes one settlement pass over the previous calendar month.
// Per-unit failures stay inside the report; only setup failures return.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	report, err := s.runner.RunMonthly(ctx)
	if err != nil {
		return err
	}

	failed := report.Errors()
	if len(failed) > 0 {
		s.log.Warn("settlement pass had unit failures",
			zap.Int("failed", len(failed)),
			zap.Time("period_start", report.PeriodStart),
			zap.Time("period_end", report.PeriodEnd),
		)
	}
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("settlement pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
