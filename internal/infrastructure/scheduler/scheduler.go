package scheduler

import (
	"context"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"github.com/janhq/flow-api/internal/utils/platformerrors"
)

// SessionReaper is the part of the session service the scheduler drives.
type SessionReaper interface {
	ReapIdle(maxIdle time.Duration) int
}

// Config holds the reaper schedule.
type Config struct {
	Expression  string
	IdleTimeout time.Duration
}

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	ctab   *crontab.Crontab
	reaper SessionReaper
	cfg    Config
	log    zerolog.Logger
}

func New(reaper SessionReaper, cfg Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		ctab:   crontab.New(),
		reaper: reaper,
		cfg:    cfg,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Run registers the jobs and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.IdleTimeout <= 0 || s.cfg.Expression == "" {
		s.log.Info().Msg("Session reaper disabled")
		<-ctx.Done()
		return nil
	}

	if err := s.ctab.AddJob(s.cfg.Expression, s.reapIdleSessions); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add session reaper job")
	}
	s.log.Info().Str("schedule", s.cfg.Expression).Dur("idle_timeout", s.cfg.IdleTimeout).Msg("Session reaper scheduled")

	<-ctx.Done()
	s.ctab.Shutdown()
	return nil
}

func (s *Scheduler) reapIdleSessions() {
	if n := s.reaper.ReapIdle(s.cfg.IdleTimeout); n > 0 {
		s.log.Debug().Int("sessions", n).Msg("reaped idle sessions")
	}
}
