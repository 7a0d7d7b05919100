// Package queue manages the matchmaking queue: joins, leaves, search window
// expansion and match accept/decline transitions.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/aimd54/ranked-matchmaking/internal/config"
	"github.com/aimd54/ranked-matchmaking/internal/metrics"
	"github.com/aimd54/ranked-matchmaking/internal/models"
	"github.com/aimd54/ranked-matchmaking/internal/repository"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
)

// Queue errors.
var (
	ErrInvalidRequest  = errors.New("invalid queue request")
	ErrInvalidFormat   = errors.New("invalid match format")
	ErrInvalidDuration = errors.New("invalid competition duration")
	ErrEntryNotFound   = errors.New("queue entry not found")
	ErrEntryNotMatched = errors.New("queue entry has no pending match")
)

// Repository is the persistence the queue needs.
type Repository interface {
	Create(ctx context.Context, entry *models.QueueEntry) error
	GetByID(ctx context.Context, id string) (*models.QueueEntry, error)
	GetActiveByUserID(ctx context.Context, userID string) (*models.QueueEntry, error)
	ListSearching(ctx context.Context, format string) ([]models.QueueEntry, error)
	CancelSearching(ctx context.Context, userID string, now time.Time) (int64, error)
	UpdateSearchRange(ctx context.Context, entry *models.QueueEntry, now time.Time) (bool, error)
	MarkMatchFound(ctx context.Context, entryIDs []string, competitionID string, now time.Time) error
	TransitionOwned(ctx context.Context, entryID, userID, from, to string, now time.Time) (bool, error)
	ExpireSearching(ctx context.Context, now time.Time) (int64, error)
}

// JoinRequest is a player's request to start searching.
type JoinRequest struct {
	UserID        string `validate:"required,max=64"`
	XP            int    `validate:"gte=0"`
	Rank          string `validate:"required,max=50"`
	Format        string `validate:"required"`
	DurationHours int    // 0 selects the configured default
}

// Service implements the matchmaking queue store.
type Service struct {
	repo     Repository
	cfg      config.MatchmakingConfig
	validate *validator.Validate
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a queue service backed by the concrete repository.
func NewService(repo *repository.QueueRepository, cfg config.MatchmakingConfig, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(repo, cfg, log)
}

// NewServiceWithInterfaces creates a queue service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo Repository, cfg config.MatchmakingConfig, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		cfg:      cfg,
		validate: validator.New(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// JoinQueue starts a search for the user. If the user already holds a
// searching or match_found entry, that entry is returned unchanged and the
// boolean is true.
func (s *Service) JoinQueue(ctx context.Context, req JoinRequest) (*models.QueueEntry, bool, error) {
	if err := s.validateJoin(ctx, &req); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.GetActiveByUserID(ctx, req.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check queue status: %w", err)
	}
	if existing != nil {
		s.logExistingJoin(existing)
		return existing, true, nil
	}

	now := s.now()
	entry := &models.QueueEntry{
		UserID:          req.UserID,
		Format:          req.Format,
		DurationHours:   req.DurationHours,
		XP:              req.XP,
		Rank:            req.Rank,
		XPRangeMin:      max(0, req.XP-s.cfg.BaseWindow),
		XPRangeMax:      req.XP + s.cfg.BaseWindow,
		SearchStartedAt: now,
		ExpiresAt:       now.Add(s.cfg.QueueTTL()),
		Status:          models.QueueStatusSearching,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		// Lost a race with a concurrent join for the same user.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, getErr := s.repo.GetActiveByUserID(ctx, req.UserID)
			if getErr == nil && existing != nil {
				s.logExistingJoin(existing)
				return existing, true, nil
			}
		}
		return nil, false, fmt.Errorf("failed to join queue: %w", err)
	}

	metrics.RecordQueueJoin(entry.Format, false)
	s.log.Info().
		Str("user_id", entry.UserID).
		Str("entry_id", entry.ID).
		Str("format", entry.Format).
		Int("xp", entry.XP).
		Int("xp_range_min", entry.XPRangeMin).
		Int("xp_range_max", entry.XPRangeMax).
		Msg("User joined matchmaking queue")

	return entry, false, nil
}

func (s *Service) logExistingJoin(entry *models.QueueEntry) {
	metrics.RecordQueueJoin(entry.Format, true)
	s.log.Info().
		Str("user_id", entry.UserID).
		Str("entry_id", entry.ID).
		Str("status", entry.Status).
		Msg("User already in queue, returning existing entry")
}

func (s *Service) validateJoin(ctx context.Context, req *JoinRequest) error {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "Format" {
					return fmt.Errorf("%w: format is required", ErrInvalidFormat)
				}
			}
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if !models.IsValidFormat(req.Format) || !s.cfg.IsFormatEnabled(req.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, req.Format)
	}

	if req.DurationHours == 0 {
		req.DurationHours = s.cfg.DefaultDurationHours
	}
	if req.DurationHours < 0 || req.DurationHours > s.cfg.MaxDurationHours {
		return fmt.Errorf("%w: must be between 1 and %d hours", ErrInvalidDuration, s.cfg.MaxDurationHours)
	}

	return nil
}

// LeaveQueue cancels the user's searching entry. No-op if there is none.
func (s *Service) LeaveQueue(ctx context.Context, userID string) error {
	n, err := s.repo.CancelSearching(ctx, userID, s.now())
	if err != nil {
		return fmt.Errorf("failed to leave queue: %w", err)
	}
	if n > 0 {
		metrics.RecordQueueTransition(models.QueueStatusCancelled, int(n))
		s.log.Info().Str("user_id", userID).Msg("User left matchmaking queue")
	}
	return nil
}

// GetUserQueueEntry returns the user's searching or match_found entry, or nil.
func (s *Service) GetUserQueueEntry(ctx context.Context, userID string) (*models.QueueEntry, error) {
	entry, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return entry, nil
}

// GetSearchingEntries returns the searching pool of a format, oldest first.
func (s *Service) GetSearchingEntries(ctx context.Context, format string) ([]models.QueueEntry, error) {
	entries, err := s.repo.ListSearching(ctx, format)
	if err != nil {
		return nil, fmt.Errorf("failed to get searching entries: %w", err)
	}
	return entries, nil
}

// ExpandSearchRange widens the entry's XP band if its wait has crossed the
// next unclaimed threshold of the expansion ladder.
func (s *Service) ExpandSearchRange(ctx context.Context, entryID string) (*models.QueueEntry, error) {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}

	expanded, _, err := s.ExpandEntry(ctx, entry)
	return expanded, err
}

// ExpandEntry is ExpandSearchRange for an entry the caller already holds. The
// boolean reports whether a new level was persisted; otherwise entry is
// returned unchanged.
func (s *Service) ExpandEntry(ctx context.Context, entry *models.QueueEntry) (*models.QueueEntry, bool, error) {
	now := s.now()
	next, ok := NextExpansion(*entry, s.cfg.Expansion, now)
	if !ok || entry.Status != models.QueueStatusSearching {
		return entry, false, nil
	}

	applied, err := s.repo.UpdateSearchRange(ctx, &next, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to expand search range: %w", err)
	}
	if !applied {
		return entry, false, nil
	}

	metrics.RecordSearchExpansion(next.Format)
	s.log.Info().
		Str("entry_id", next.ID).
		Str("user_id", next.UserID).
		Int("level", next.SearchExpandedCount).
		Int("xp_range_min", next.XPRangeMin).
		Int("xp_range_max", next.XPRangeMax).
		Msg("Expanded search range")

	next.UpdatedAt = now
	return &next, true, nil
}

// NextExpansion returns entry widened by one ladder level if its wait has
// reached that level's threshold. The band is centered on the entry's
// snapshot XP and never narrows.
func NextExpansion(entry models.QueueEntry, ladder []config.ExpansionStep, now time.Time) (models.QueueEntry, bool) {
	level := entry.SearchExpandedCount
	if level < 0 || level >= len(ladder) {
		return entry, false
	}

	step := ladder[level]
	if entry.WaitTime(now) < time.Duration(step.AfterSeconds)*time.Second {
		return entry, false
	}

	entry.SearchExpandedCount = level + 1
	entry.XPRangeMin = min(entry.XPRangeMin, max(0, entry.XP-step.XPWindow))
	entry.XPRangeMax = max(entry.XPRangeMax, entry.XP+step.XPWindow)
	return entry, true
}

// MarkMatchFound moves the given searching entries to match_found atomically.
func (s *Service) MarkMatchFound(ctx context.Context, entryIDs []string, competitionID string) error {
	if err := s.repo.MarkMatchFound(ctx, entryIDs, competitionID, s.now()); err != nil {
		return fmt.Errorf("failed to mark match found: %w", err)
	}
	metrics.RecordQueueTransition(models.QueueStatusMatchFound, len(entryIDs))
	return nil
}

// AcceptMatch accepts the match offered on the caller's entry.
func (s *Service) AcceptMatch(ctx context.Context, userID, entryID string) (*models.QueueEntry, error) {
	return s.respond(ctx, userID, entryID, models.QueueStatusAccepted)
}

// DeclineMatch declines the match offered on the caller's entry.
func (s *Service) DeclineMatch(ctx context.Context, userID, entryID string) (*models.QueueEntry, error) {
	return s.respond(ctx, userID, entryID, models.QueueStatusDeclined)
}

func (s *Service) respond(ctx context.Context, userID, entryID, status string) (*models.QueueEntry, error) {
	ok, err := s.repo.TransitionOwned(ctx, entryID, userID, models.QueueStatusMatchFound, status, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to respond to match: %w", err)
	}

	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	// Someone else's entry is reported exactly like a missing one.
	if entry == nil || entry.UserID != userID {
		return nil, ErrEntryNotFound
	}
	if !ok {
		return nil, fmt.Errorf("%w: entry is %s", ErrEntryNotMatched, entry.Status)
	}

	metrics.RecordQueueTransition(status, 1)
	s.log.Info().
		Str("user_id", userID).
		Str("entry_id", entryID).
		Str("status", status).
		Msg("User responded to match")

	return entry, nil
}

// CleanExpiredEntries expires every searching entry past its deadline and
// returns how many were affected.
func (s *Service) CleanExpiredEntries(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireSearching(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired entries: %w", err)
	}

	metrics.RecordQueueTransition(models.QueueStatusExpired, int(n))
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("Expired stale queue entries")
	}
	return n, nil
}
