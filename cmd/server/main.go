// Command server runs the ranked matchmaking API, the periodic matchmaking
// jobs and the Prometheus metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aimd54/ranked-matchmaking/internal/api/ranked"
	"github.com/aimd54/ranked-matchmaking/internal/cache"
	"github.com/aimd54/ranked-matchmaking/internal/config"
	"github.com/aimd54/ranked-matchmaking/internal/notifier"
	"github.com/aimd54/ranked-matchmaking/internal/repository"
	"github.com/aimd54/ranked-matchmaking/internal/service/leaderboard"
	"github.com/aimd54/ranked-matchmaking/internal/service/matchmaking"
	"github.com/aimd54/ranked-matchmaking/internal/service/queue"
	"github.com/aimd54/ranked-matchmaking/internal/service/ranking"
	"github.com/aimd54/ranked-matchmaking/internal/service/scheduler"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(log); err != nil {
		return err
	}

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	tiers, err := loadTiers(cfg.Ranking.TiersFile)
	if err != nil {
		return err
	}

	webhook := notifier.NewClient(&cfg.Notifications, log.Component("notifier"))

	rankingRepo := repository.NewRankingRepository(db)
	queueService := queue.NewService(repository.NewQueueRepository(db), cfg.Matchmaking, log.Component("queue"))
	rankingService := ranking.NewService(rankingRepo, tiers, cfg.Ranking.DefaultSeasonID, log.Component("ranking")).
		WithNotifier(webhook)
	leaderboardService := leaderboard.NewService(rankingRepo, rankingService, log.Component("leaderboard"))
	matchmakingService := matchmaking.NewService(
		queueService,
		repository.NewMatchRepository(db),
		locker,
		cfg.Matchmaking,
		log.Component("matchmaking"),
	).WithNotifier(webhook)

	jobs := scheduler.NewService(cfg, matchmakingService, queueService, rankingService, log.Component("scheduler"))
	if err := jobs.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer jobs.Stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := ranked.NewHandler(queueService, matchmakingService, rankingService, leaderboardService, ranked.Options{
		AdminToken:              cfg.Server.AdminToken,
		DefaultSeasonID:         cfg.Ranking.DefaultSeasonID,
		RecentTransactionsLimit: cfg.Ranking.RecentTransactionsLimit,
	}, log.Component("api"))
	handler.RegisterRoutes(router)

	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.Metrics.Prometheus.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Prometheus.Path, promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Prometheus.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("addr", srv.Addr).Msg("Graceful shutdown failed")
		}
	}

	log.Info().Msg("Server stopped")
	return nil
}

// newLocker returns the Redis locker when Redis is enabled, otherwise an
// in-process one.
func newLocker(ctx context.Context, cfg *config.Config, log *logger.Logger) (cache.Locker, func(), error) {
	if !cfg.Database.Redis.Enabled {
		log.Warn().Msg("Redis disabled, matchmaking passes are only serialized within this process")
		return cache.NewLocalLocker(), func() {}, nil
	}

	client, err := cache.NewRedisClient(ctx, &cfg.Database.Redis)
	if err != nil {
		return nil, nil, err
	}
	log.Info().
		Str("host", cfg.Database.Redis.Host).
		Int("port", cfg.Database.Redis.Port).
		Msg("Connected to Redis")

	return cache.NewRedisLocker(client, log.Component("lock")), func() { _ = client.Close() }, nil
}

// loadTiers returns the built-in tier table unless an override file is configured.
func loadTiers(path string) (*ranking.TierTable, error) {
	if path == "" {
		return ranking.MustDefaultTierTable(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tier table: %w", err)
	}
	defer f.Close()

	return ranking.LoadTierTable(f)
}
