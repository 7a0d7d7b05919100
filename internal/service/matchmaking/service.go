// Package matchmaking runs pairing passes over the searching pool of a format
// and materializes every pair it finds into a pending ranked competition.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aimd54/ranked-matchmaking/internal/cache"
	"github.com/aimd54/ranked-matchmaking/internal/config"
	"github.com/aimd54/ranked-matchmaking/internal/metrics"
	"github.com/aimd54/ranked-matchmaking/internal/models"
	"github.com/aimd54/ranked-matchmaking/internal/repository"
	"github.com/aimd54/ranked-matchmaking/internal/service/queue"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
)

// Score weights. Lower scores are better matches.
const (
	xpDiffWeight   = 0.7
	waitTimeWeight = 0.0003 // per millisecond waited
)

// Matchmaking errors.
var (
	ErrPassInProgress      = errors.New("matchmaking pass already in progress for format")
	ErrCompetitionNotFound = errors.New("competition not found")
)

// Queue is the part of the queue store a pass reads and mutates.
type Queue interface {
	GetSearchingEntries(ctx context.Context, format string) ([]models.QueueEntry, error)
	ExpandEntry(ctx context.Context, entry *models.QueueEntry) (*models.QueueEntry, bool, error)
	Now() time.Time
}

// MatchRepository persists materialized matches.
type MatchRepository interface {
	Materialize(ctx context.Context, competition *models.Competition, first, second *models.QueueEntry, now time.Time) error
	RecentOpponents(ctx context.Context, userID string, since time.Time) (map[string]struct{}, error)
	GetCompetition(ctx context.Context, id string) (*models.Competition, error)
}

// Notifier announces new matches.
type Notifier interface {
	NotifyMatchFound(ctx context.Context, competition *models.Competition, first, second *models.QueueEntry) error
}

// Service runs matchmaking passes.
type Service struct {
	queue    Queue
	matches  MatchRepository
	locker   cache.Locker
	notifier Notifier
	cfg      config.MatchmakingConfig
	log      *logger.Logger
}

// NewService creates a matchmaking service from concrete dependencies.
func NewService(
	queueService *queue.Service,
	matchRepo *repository.MatchRepository,
	locker cache.Locker,
	cfg config.MatchmakingConfig,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(queueService, matchRepo, locker, cfg, log)
}

// NewServiceWithInterfaces creates a matchmaking service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(q Queue, matches MatchRepository, locker cache.Locker, cfg config.MatchmakingConfig, log *logger.Logger) *Service {
	return &Service{
		queue:   q,
		matches: matches,
		locker:  locker,
		cfg:     cfg,
		log:     log,
	}
}

// WithNotifier sets the match-found notifier.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Formats returns the formats passes may run for.
func (s *Service) Formats() []string {
	return s.cfg.Formats
}

// RunPass pairs the searching pool of one format and returns the competitions
// it created. Only one pass per format runs at a time; a concurrent call gets
// ErrPassInProgress.
func (s *Service) RunPass(ctx context.Context, format string) ([]models.Competition, error) {
	if !models.IsValidFormat(format) || !s.cfg.IsFormatEnabled(format) {
		return nil, fmt.Errorf("%w: %q", queue.ErrInvalidFormat, format)
	}

	unlock, ok, err := s.locker.TryLock(ctx, "pass:"+format, s.cfg.LockTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire pass lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPassInProgress, format)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.Error().Err(err).Str("format", format).Msg("Failed to release pass lock")
		}
	}()

	start := time.Now()
	defer func() {
		metrics.ObservePairingPassDuration(format, time.Since(start).Seconds())
	}()

	return s.pair(ctx, format)
}

func (s *Service) pair(ctx context.Context, format string) ([]models.Competition, error) {
	pool, err := s.queue.GetSearchingEntries(ctx, format)
	if err != nil {
		return nil, err
	}
	metrics.SetSearchingEntries(format, len(pool))

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].SearchStartedAt.Before(pool[j].SearchStartedAt)
	})

	now := s.queue.Now()
	matched := make(map[string]struct{}, len(pool))
	competitions := make([]models.Competition, 0)

	s.log.Debug().
		Str("format", format).
		Int("searching", len(pool)).
		Msg("Starting matchmaking pass")

	for i := range pool {
		entry := &pool[i]
		if _, done := matched[entry.ID]; done {
			continue
		}

		opponent := s.findOpponent(ctx, entry, pool, matched, now)
		if opponent == nil {
			// The widened band applies from the next pass; pool keeps the snapshot.
			if _, _, err := s.queue.ExpandEntry(ctx, entry); err != nil {
				return competitions, err
			}
			continue
		}

		competition, err := s.materialize(ctx, entry, opponent, now)
		matched[entry.ID] = struct{}{}
		matched[opponent.ID] = struct{}{}
		if errors.Is(err, repository.ErrClaimConflict) {
			// Another pass got to one of them first; both are re-read next pass.
			metrics.RecordClaimConflict(format)
			s.log.Warn().
				Str("format", format).
				Str("entry_id", entry.ID).
				Str("opponent_entry_id", opponent.ID).
				Msg("Queue entries already claimed, skipping pair")
			continue
		}
		if err != nil {
			return competitions, err
		}

		competitions = append(competitions, *competition)
	}

	if len(competitions) > 0 {
		s.log.Info().
			Str("format", format).
			Int("matches", len(competitions)).
			Int("searching", len(pool)).
			Msg("Matchmaking pass completed")
	}

	return competitions, nil
}

// findOpponent returns the best compatible opponent for entry, preferring
// players it has not met within the rematch cooldown.
func (s *Service) findOpponent(
	ctx context.Context,
	entry *models.QueueEntry,
	pool []models.QueueEntry,
	matched map[string]struct{},
	now time.Time,
) *models.QueueEntry {
	var candidates []*models.QueueEntry
	for i := range pool {
		candidate := &pool[i]
		if candidate.ID == entry.ID || candidate.UserID == entry.UserID {
			continue
		}
		if _, done := matched[candidate.ID]; done {
			continue
		}
		if Compatible(entry, candidate) {
			candidates = append(candidates, candidate)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	if fresh := s.withoutRecentOpponents(ctx, entry, candidates, now); len(fresh) > 0 {
		candidates = fresh
	} else {
		s.log.Debug().
			Str("user_id", entry.UserID).
			Int("candidates", len(candidates)).
			Msg("Only recent opponents available, allowing rematch")
	}

	return BestCandidate(entry, candidates, now)
}

func (s *Service) withoutRecentOpponents(
	ctx context.Context,
	entry *models.QueueEntry,
	candidates []*models.QueueEntry,
	now time.Time,
) []*models.QueueEntry {
	recent, err := s.matches.RecentOpponents(ctx, entry.UserID, now.Add(-s.cfg.RematchCooldown()))
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", entry.UserID).Msg("Failed to load recent opponents, ignoring rematch cooldown")
		return candidates
	}

	fresh := make([]*models.QueueEntry, 0, len(candidates))
	for _, c := range candidates {
		if _, seen := recent[c.UserID]; !seen {
			fresh = append(fresh, c)
		}
	}
	return fresh
}

// Compatible reports whether each entry's XP falls inside the other's band.
func Compatible(a, b *models.QueueEntry) bool {
	return a.Format == b.Format && a.AcceptsXP(b.XP) && b.AcceptsXP(a.XP)
}

// Score rates candidate as an opponent for entry. Lower is better. XP
// distance dominates; the candidate's wait adds a small time term.
func Score(entry, candidate *models.QueueEntry, now time.Time) float64 {
	xpDiff := math.Abs(float64(entry.XP - candidate.XP))
	waitMs := float64(candidate.WaitTime(now).Milliseconds())
	return xpDiffWeight*xpDiff + waitTimeWeight*waitMs
}

// BestCandidate returns the lowest-scoring candidate, the earliest one on ties.
func BestCandidate(entry *models.QueueEntry, candidates []*models.QueueEntry, now time.Time) *models.QueueEntry {
	var best *models.QueueEntry
	bestScore := math.Inf(1)
	for _, c := range candidates {
		if score := Score(entry, c, now); score < bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// NewCompetition builds the pending ranked competition for a pair. The
// initiating entry decides the duration.
func NewCompetition(first, second *models.QueueEntry, now time.Time) *models.Competition {
	return &models.Competition{
		Name:            fmt.Sprintf("Ranked %s Match", strings.ToUpper(first.Format)),
		Description:     fmt.Sprintf("Algorithmic matchmaking: %s vs %s", first.Rank, second.Rank),
		CompetitionType: first.Format,
		IsRanked:        true,
		IsCustom:        false,
		DurationHours:   first.DurationHours,
		StartTime:       now,
		EndTime:         now.Add(time.Duration(first.DurationHours) * time.Hour),
		MaxParticipants: 2,
		Status:          models.CompetitionStatusPending,
		AutoGenerated:   true,
		AverageXP:       int(math.Floor(float64(first.XP+second.XP)/2 + 0.5)),
		XPRangeMin:      min(first.XP, second.XP),
		XPRangeMax:      max(first.XP, second.XP),
	}
}

func (s *Service) materialize(ctx context.Context, first, second *models.QueueEntry, now time.Time) (*models.Competition, error) {
	competition := NewCompetition(first, second, now)
	if err := s.matches.Materialize(ctx, competition, first, second, now); err != nil {
		if errors.Is(err, repository.ErrClaimConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to materialize match: %w", err)
	}

	xpDiff := competition.XPRangeMax - competition.XPRangeMin
	metrics.RecordMatchCreated(first.Format, xpDiff)
	metrics.RecordQueueTransition(models.QueueStatusMatchFound, 2)
	metrics.ObserveMatchWait(first.Format, first.WaitTime(now).Seconds())
	metrics.ObserveMatchWait(second.Format, second.WaitTime(now).Seconds())

	s.log.Info().
		Str("competition_id", competition.ID).
		Str("format", first.Format).
		Str("user_id", first.UserID).
		Str("opponent_id", second.UserID).
		Int("xp", first.XP).
		Int("opponent_xp", second.XP).
		Msg("Match created")

	if s.notifier != nil {
		if err := s.notifier.NotifyMatchFound(ctx, competition, first, second); err != nil {
			s.log.Warn().Err(err).Str("competition_id", competition.ID).Msg("Failed to send match notification")
		}
	}

	return competition, nil
}

// GetCompetition returns a materialized competition with its participants.
func (s *Service) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	competition, err := s.matches.GetCompetition(ctx, id)
	if err != nil {
		return nil, err
	}
	if competition == nil {
		return nil, ErrCompetitionNotFound
	}
	return competition, nil
}
