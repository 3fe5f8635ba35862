package alert

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// Sweeper runs one evaluation pass.
type Sweeper interface {
	Sweep(ctx context.Context) SweepResult
}

// Scheduler runs a Sweeper on a fixed interval. Start and Stop are
// idempotent; the sweep can be started at most once per Scheduler, so a
// Start after Stop does nothing.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cron    *gocron.Scheduler
	started bool
	stopped bool
}

// NewScheduler creates a Scheduler.
func NewScheduler(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   observability.OrNop(logger),
	}
}

// Start schedules the sweep. The first sweep runs one interval after Start.
// Calls after the first are no-ops.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	cron := gocron.NewScheduler(time.UTC)
	_, err := cron.Every(s.interval).SingletonMode().WaitForSchedule().Do(s.run)
	if err != nil {
		return err
	}
	cron.StartAsync()

	s.cron = cron
	s.started = true
	s.logger.Info("alert scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop prevents future sweeps from starting. A sweep already running is
// left to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return
	}
	s.stopped = true
	s.cron.Stop()
	s.logger.Info("alert scheduler stopped")
}

// Running reports whether the sweep is scheduled.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

func (s *Scheduler) run() {
	res := s.sweeper.Sweep(context.Background())
	if res.Failed > 0 {
		s.logger.Warn("alert sweep had failures",
			zap.Int("evaluated", res.Evaluated),
			zap.Int("failed", res.Failed),
		)
	}
}
