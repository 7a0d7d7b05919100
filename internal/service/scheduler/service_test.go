package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/ranked-matchmaking/internal/config"
	prommetrics "github.com/aimd54/ranked-matchmaking/internal/metrics"
	"github.com/aimd54/ranked-matchmaking/internal/models"
	"github.com/aimd54/ranked-matchmaking/internal/service/matchmaking"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
)

type fakeMatchmaker struct {
	mu      sync.Mutex
	formats []string
	results map[string]int
	errs    map[string]error
	calls   []string
}

func (f *fakeMatchmaker) Formats() []string { return f.formats }

func (f *fakeMatchmaker) RunPass(_ context.Context, format string) ([]models.Competition, error) {
	f.mu.Lock()
	f.calls = append(f.calls, format)
	f.mu.Unlock()

	if err := f.errs[format]; err != nil {
		return nil, err
	}
	return make([]models.Competition, f.results[format]), nil
}

type fakeCleaner struct {
	n   int64
	err error
}

func (f *fakeCleaner) CleanExpiredEntries(context.Context) (int64, error) { return f.n, f.err }

type fakeDecayer struct {
	gotDays int
	n       int
}

func (f *fakeDecayer) DecayInactiveUsers(_ context.Context, days int) (int, error) {
	f.gotDays = days
	return f.n, nil
}

func newTestConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{
			Enabled:             true,
			Timezone:            "UTC",
			MatchmakingSchedule: "@every 10s",
			CleanupSchedule:     "@every 1m",
			DecaySchedule:       "0 3 * * 1",
			Workers:             2,
		},
		Ranking: config.RankingConfig{DecayInactiveDays: 14},
	}
}

func TestValidateSchedules(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.SchedulerConfig)
		wantErr bool
	}{
		{name: "defaults", modify: func(*config.SchedulerConfig) {}},
		{name: "empty schedule disables job", modify: func(c *config.SchedulerConfig) { c.DecaySchedule = "" }},
		{name: "bad descriptor", modify: func(c *config.SchedulerConfig) { c.MatchmakingSchedule = "@every banana" }, wantErr: true},
		{name: "too few fields", modify: func(c *config.SchedulerConfig) { c.CleanupSchedule = "* *" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig().Scheduler
			tt.modify(&cfg)

			err := validateSchedules(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSchedules() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunMatchmaking(t *testing.T) {
	prommetrics.SchedulerJobsRunTotal.Reset()

	mm := &fakeMatchmaker{
		formats: []string{models.Format1v1, models.Format2v2, models.Format3v3, models.FormatBattleRoyal},
		results: map[string]int{models.Format1v1: 2, models.Format2v2: 1},
		errs: map[string]error{
			models.Format3v3:         fmt.Errorf("%w: 3v3", matchmaking.ErrPassInProgress),
			models.FormatBattleRoyal: errors.New("database unavailable"),
		},
	}
	svc := NewService(newTestConfig(), mm, &fakeCleaner{}, &fakeDecayer{}, logger.NewNop())

	created, err := svc.RunMatchmaking(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "battle_royal")
	assert.NotContains(t, err.Error(), "3v3", "a busy format is not a failure")
	assert.Equal(t, 3, created)
	assert.ElementsMatch(t, mm.formats, mm.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(prommetrics.SchedulerJobsRunTotal.WithLabelValues(JobMatchmaking, "error")))

	delete(mm.errs, models.FormatBattleRoyal)
	created, err = svc.RunMatchmaking(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, created)
	assert.Equal(t, float64(1), testutil.ToFloat64(prommetrics.SchedulerJobsRunTotal.WithLabelValues(JobMatchmaking, "success")))
}

func TestRunCleanup(t *testing.T) {
	cleaner := &fakeCleaner{n: 4}
	svc := NewService(newTestConfig(), &fakeMatchmaker{}, cleaner, &fakeDecayer{}, logger.NewNop())

	n, err := svc.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	cleaner.n, cleaner.err = 0, errors.New("boom")
	_, err = svc.RunCleanup(context.Background())
	assert.Error(t, err)
}

func TestRunDecay(t *testing.T) {
	decayer := &fakeDecayer{n: 7}
	svc := NewService(newTestConfig(), &fakeMatchmaker{}, &fakeCleaner{}, decayer, logger.NewNop())

	n, err := svc.RunDecay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 14, decayer.gotDays)
}

func TestStartStop(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.Scheduler.Enabled = false
		svc := NewService(cfg, &fakeMatchmaker{}, &fakeCleaner{}, &fakeDecayer{}, logger.NewNop())

		require.NoError(t, svc.Start())
		assert.Nil(t, svc.cron)
		svc.Stop()
	})

	t.Run("registers every scheduled job", func(t *testing.T) {
		svc := NewService(newTestConfig(), &fakeMatchmaker{}, &fakeCleaner{}, &fakeDecayer{}, logger.NewNop())

		require.NoError(t, svc.Start())
		assert.Len(t, svc.cron.Entries(), 3)
		svc.Stop()
	})

	t.Run("invalid timezone", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.Scheduler.Timezone = "Mars/Olympus_Mons"
		svc := NewService(cfg, &fakeMatchmaker{}, &fakeCleaner{}, &fakeDecayer{}, logger.NewNop())

		assert.Error(t, svc.Start())
	})

	t.Run("invalid schedule", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.Scheduler.DecaySchedule = "not a schedule"
		svc := NewService(cfg, &fakeMatchmaker{}, &fakeCleaner{}, &fakeDecayer{}, logger.NewNop())

		assert.Error(t, svc.Start())
	})
}
