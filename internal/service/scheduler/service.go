// Package scheduler runs the periodic matchmaking, queue cleanup and rank
// decay jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"

	"github.com/aimd54/ranked-matchmaking/internal/config"
	prommetrics "github.com/aimd54/ranked-matchmaking/internal/metrics"
	"github.com/aimd54/ranked-matchmaking/internal/models"
	"github.com/aimd54/ranked-matchmaking/internal/service/matchmaking"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
)

// Job names used in logs and metrics.
const (
	JobMatchmaking = "matchmaking"
	JobCleanup     = "queue_cleanup"
	JobDecay       = "rank_decay"
)

// Matchmaker runs pairing passes.
type Matchmaker interface {
	RunPass(ctx context.Context, format string) ([]models.Competition, error)
	Formats() []string
}

// QueueCleaner expires stale queue entries.
type QueueCleaner interface {
	CleanExpiredEntries(ctx context.Context) (int64, error)
}

// RankDecayer applies inactivity decay.
type RankDecayer interface {
	DecayInactiveUsers(ctx context.Context, inactiveDays int) (int, error)
}

// Service owns the cron scheduler.
type Service struct {
	config            config.SchedulerConfig
	decayInactiveDays int
	matchmaker        Matchmaker
	cleaner           QueueCleaner
	decayer           RankDecayer
	log               *logger.Logger
	cron              *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(
	cfg *config.Config,
	matchmaker Matchmaker,
	cleaner QueueCleaner,
	decayer RankDecayer,
	log *logger.Logger,
) *Service {
	return &Service{
		config:            cfg.Scheduler,
		decayInactiveDays: cfg.Ranking.DecayInactiveDays,
		matchmaker:        matchmaker,
		cleaner:           cleaner,
		decayer:           decayer,
		log:               log,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	if err := validateSchedules(s.config); err != nil {
		return err
	}

	// A pass that overruns its interval is skipped rather than stacked.
	s.cron = cron.New(
		cron.WithLocation(location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context)
	}{
		{JobMatchmaking, s.config.MatchmakingSchedule, func(ctx context.Context) { _, _ = s.RunMatchmaking(ctx) }},
		{JobCleanup, s.config.CleanupSchedule, func(ctx context.Context) { _, _ = s.RunCleanup(ctx) }},
		{JobDecay, s.config.DecaySchedule, func(ctx context.Context) { _, _ = s.RunDecay(ctx) }},
	}

	for _, job := range jobs {
		if job.schedule == "" {
			s.log.Info().Str("job", job.name).Msg("Job has no schedule, not registered")
			continue
		}
		run := job.run
		if _, err := s.cron.AddFunc(job.schedule, func() { run(context.Background()) }); err != nil {
			return fmt.Errorf("failed to register %s job: %w", job.name, err)
		}
		s.log.Info().
			Str("job", job.name).
			Str("schedule", job.schedule).
			Msg("Job registered")
	}

	s.cron.Start()

	s.log.Info().
		Str("timezone", s.config.Timezone).
		Int("jobs", len(s.cron.Entries())).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// validateSchedules checks every configured cron expression.
func validateSchedules(cfg config.SchedulerConfig) error {
	for name, expr := range map[string]string{
		JobMatchmaking: cfg.MatchmakingSchedule,
		JobCleanup:     cfg.CleanupSchedule,
		JobDecay:       cfg.DecaySchedule,
	} {
		if expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, expr, err)
		}
	}
	return nil
}

// RunMatchmaking runs one pass per enabled format on a worker pool and
// returns how many competitions were created. A format whose pass is already
// running elsewhere is skipped.
func (s *Service) RunMatchmaking(ctx context.Context) (int, error) {
	var created atomic.Int32

	err := s.track(JobMatchmaking, func() error {
		formats := s.matchmaker.Formats()

		workers := s.config.Workers
		if workers <= 0 {
			workers = 1
		}
		pool, err := ants.NewPool(workers)
		if err != nil {
			return fmt.Errorf("failed to create worker pool: %w", err)
		}
		defer pool.Release()

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for _, format := range formats {
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()

				competitions, err := s.matchmaker.RunPass(ctx, format)
				if errors.Is(err, matchmaking.ErrPassInProgress) {
					s.log.Debug().Str("format", format).Msg("Pass already running, skipping format")
					return
				}
				if err != nil {
					s.log.Error().Err(err).Str("format", format).Msg("Matchmaking pass failed")
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", format, err))
					mu.Unlock()
					return
				}
				created.Add(int32(len(competitions)))
			}); err != nil {
				wg.Done()
				return fmt.Errorf("failed to submit matchmaking pass: %w", err)
			}
		}
		wg.Wait()

		return errors.Join(errs...)
	})

	return int(created.Load()), err
}

// RunCleanup expires stale queue entries.
func (s *Service) RunCleanup(ctx context.Context) (int64, error) {
	var expired int64
	err := s.track(JobCleanup, func() error {
		n, err := s.cleaner.CleanExpiredEntries(ctx)
		expired = n
		return err
	})
	return expired, err
}

// RunDecay applies rank decay to inactive users.
func (s *Service) RunDecay(ctx context.Context) (int, error) {
	var decayed int
	err := s.track(JobDecay, func() error {
		n, err := s.decayer.DecayInactiveUsers(ctx, s.decayInactiveDays)
		decayed = n
		return err
	})
	return decayed, err
}

// track runs fn with job metrics and logging.
func (s *Service) track(job string, fn func() error) error {
	start := time.Now()

	defer func() {
		prommetrics.ObserveSchedulerJobDuration(job, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(job)
	}()

	if err := fn(); err != nil {
		s.log.Error().
			Err(err).
			Str("job", job).
			Dur("duration", time.Since(start)).
			Msg("Scheduled job failed")
		prommetrics.RecordSchedulerJobRun(job, "error")
		return err
	}

	prommetrics.RecordSchedulerJobRun(job, "success")
	s.log.Debug().
		Str("job", job).
		Dur("duration", time.Since(start)).
		Msg("Scheduled job completed")
	return nil
}
