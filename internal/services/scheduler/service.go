// Package scheduler runs presence evaluations at a fixed period.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
	"github.com/thibaut1304/Wake-on-lan/internal/services/monitor"
	"github.com/thibaut1304/Wake-on-lan/internal/services/narrator"
)

// Service defines the interface for the polling loop.
type Service interface {
	Run(ctx context.Context) error
}

// Impl implements the scheduler Service interface.
type Impl struct {
	monitor  monitor.Service
	narrator *narrator.Narrator
	targets  []models.Target
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a new scheduler.
func New(
	logger zerolog.Logger,
	monitorSvc monitor.Service,
	narr *narrator.Narrator,
	targets []models.Target,
	interval time.Duration,
) *Impl {
	return &Impl{
		monitor:  monitorSvc,
		narrator: narr,
		targets:  targets,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run evaluates every target immediately and then once per interval until
// ctx is cancelled. The next wait starts only after the current evaluation
// has finished, so ticks never overlap and missed ticks are not caught up.
func (s *Impl) Run(ctx context.Context) error {
	s.logger.Info().
		Int("targets", len(s.targets)).
		Dur("interval", s.interval).
		Msg("starting presence polling")

	for {
		s.Tick(ctx)

		if ctx.Err() != nil {
			return nil
		}

		next := s.now().Add(s.interval)
		s.narrator.Infof(ctx, "Next status update scheduled at %s", next.Format("15:04:05"))

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("presence polling stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Tick evaluates every target once, in configuration order.
func (s *Impl) Tick(ctx context.Context) {
	for _, target := range s.targets {
		if ctx.Err() != nil {
			return
		}
		s.monitor.EvaluateAndPublish(ctx, target)
	}
}
