package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/aimd54/ranked-matchmaking/internal/metrics"
	"github.com/aimd54/ranked-matchmaking/internal/models"
	"github.com/aimd54/ranked-matchmaking/internal/repository"
	"github.com/aimd54/ranked-matchmaking/internal/service/xp"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
)

// Settlement errors.
var (
	ErrInvalidResult         = errors.New("invalid competition result")
	ErrResultAlreadyRecorded = errors.New("competition result already recorded")
)

var validate = validator.New()

// Repository is the persistence the ledger needs.
type Repository interface {
	GetOrCreate(ctx context.Context, seed *models.UserRanking) (*models.UserRanking, error)
	ApplyXPChange(ctx context.Context, seed *models.UserRanking,
		mutate func(*models.UserRanking) (*models.XPTransaction, error)) (*models.UserRanking, *models.XPTransaction, error)
	Update(ctx context.Context, seed *models.UserRanking, mutate func(*models.UserRanking) error) (*models.UserRanking, error)
	ListXPTransactions(ctx context.Context, userID string, limit int) ([]models.XPTransaction, error)
	ListInactiveSince(ctx context.Context, cutoff time.Time) ([]models.UserRanking, error)
}

// Notifier announces rank promotions. Failures are logged, never returned.
type Notifier interface {
	NotifyRankUp(ctx context.Context, userID, fromRank, toRank string, xp int) error
}

// DefaultHistoryLimit is used when callers ask for XP history without a limit.
const DefaultHistoryLimit = 20

// XPChange is a request to move a user's XP.
type XPChange struct {
	UserID        string
	Delta         int
	Reason        string
	CompetitionID *string
	Details       map[string]interface{}
}

// CompetitionResult is one user's outcome in a finished competition.
type CompetitionResult struct {
	UserID            string `validate:"required,max=64"`
	CompetitionID     string `validate:"required,max=36"`
	Format            string `validate:"required"`
	Placement         int    `validate:"gte=0"` // head-to-head formats derive 0 as 1 for a win, 2 for a loss
	TotalParticipants int    `validate:"gte=0"`
	UserPnL           float64
	AveragePnL        float64
	Won               bool
}

// NormalizeResult validates a result and fills in the derived placement.
// Battle royal results must carry their placement; only first place wins.
func NormalizeResult(result CompetitionResult) (CompetitionResult, error) {
	if err := validate.Struct(result); err != nil {
		return result, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if !models.IsValidFormat(result.Format) {
		return result, fmt.Errorf("%w: unknown format %q", ErrInvalidResult, result.Format)
	}

	if result.Placement == 0 {
		if result.Format == models.FormatBattleRoyal {
			return result, fmt.Errorf("%w: placement is required for %s", ErrInvalidResult, result.Format)
		}
		result.Placement = 2
		if result.Won {
			result.Placement = 1
		}
	}

	if result.TotalParticipants > 0 && result.Placement > result.TotalParticipants {
		return result, fmt.Errorf("%w: placement %d exceeds %d participants",
			ErrInvalidResult, result.Placement, result.TotalParticipants)
	}
	if result.Won != (result.Placement == 1) {
		return result, fmt.Errorf("%w: placement %d does not match won=%t", ErrInvalidResult, result.Placement, result.Won)
	}

	return result, nil
}

// Service is the single writer of user rankings.
type Service struct {
	repo     Repository
	tiers    *TierTable
	notifier Notifier
	seasonID int
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a ranking service backed by the concrete repository.
func NewService(repo *repository.RankingRepository, tiers *TierTable, seasonID int, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(repo, tiers, seasonID, log)
}

// NewServiceWithInterfaces creates a ranking service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo Repository, tiers *TierTable, seasonID int, log *logger.Logger) *Service {
	if tiers == nil {
		tiers = MustDefaultTierTable()
	}
	return &Service{
		repo:     repo,
		tiers:    tiers,
		seasonID: seasonID,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithNotifier sets the rank-up notifier.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Tiers returns the tier table in use.
func (s *Service) Tiers() *TierTable {
	return s.tiers
}

func (s *Service) seed(userID string) *models.UserRanking {
	lowest := s.tiers.Lowest()
	return &models.UserRanking{
		UserID:      userID,
		CurrentXP:   0,
		CurrentRank: lowest.Name,
		RankTier:    lowest.Number,
		PeakRank:    lowest.Name,
		SeasonID:    s.seasonID,
	}
}

// GetOrCreateUserRanking returns the user's ranking, creating it at zero XP.
func (s *Service) GetOrCreateUserRanking(ctx context.Context, userID string) (*models.UserRanking, error) {
	ranking, err := s.repo.GetOrCreate(ctx, s.seed(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get ranking: %w", err)
	}
	return ranking, nil
}

// UpdateUserXP applies a delta, floors XP at zero, re-derives the rank and
// records the transaction, all under the ranking row lock.
func (s *Service) UpdateUserXP(ctx context.Context, change XPChange) (*models.UserRanking, *models.XPTransaction, error) {
	details, err := encodeDetails(change.Details)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	ranking, txn, err := s.repo.ApplyXPChange(ctx, s.seed(change.UserID), func(r *models.UserRanking) (*models.XPTransaction, error) {
		return s.applyDelta(r, change.Delta, change.Reason, change.CompetitionID, details, now), nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update xp: %w", err)
	}

	s.afterXPChange(ctx, txn)
	return ranking, txn, nil
}

// applyDelta mutates r in place and returns the matching transaction.
func (s *Service) applyDelta(r *models.UserRanking, delta int, reason string, competitionID *string, details string, now time.Time) *models.XPTransaction {
	xpBefore := r.CurrentXP
	rankBefore := r.CurrentRank
	tierBefore := r.RankTier
	if t, ok := s.tiers.ByName(rankBefore); ok {
		tierBefore = t.Number
	}

	xpAfter := max(0, xpBefore+delta)
	tier := s.lookup(xpAfter)

	r.CurrentXP = xpAfter
	r.CurrentRank = tier.Name
	r.RankTier = tier.Number
	r.SeasonXP = max(0, r.SeasonXP+(xpAfter-xpBefore))

	if xpAfter > r.PeakXP {
		r.PeakXP = xpAfter
	}
	peakNumber := 0
	if peak, ok := s.tiers.ByName(r.PeakRank); ok {
		peakNumber = peak.Number
	}
	if tier.Number > peakNumber {
		r.PeakRank = tier.Name
		r.PeakRankAchievedAt = &now
	}
	r.UpdatedAt = now

	return &models.XPTransaction{
		UserID:        r.UserID,
		CompetitionID: competitionID,
		XPChange:      delta,
		XPBefore:      xpBefore,
		XPAfter:       xpAfter,
		Reason:        reason,
		ReasonDetails: details,
		RankBefore:    rankBefore,
		RankAfter:     tier.Name,
		RankUp:        tier.Number > tierBefore,
		RankDown:      tier.Number < tierBefore,
		CreatedAt:     now,
	}
}

func (s *Service) lookup(xpValue int) Tier {
	tier, ok := s.tiers.Lookup(xpValue)
	if !ok {
		s.log.Warn().
			Int("xp", xpValue).
			Str("fallback_rank", tier.Name).
			Msg("No rank tier matched XP, using lowest tier")
	}
	return tier
}

func (s *Service) afterXPChange(ctx context.Context, txn *models.XPTransaction) {
	if txn == nil {
		return
	}

	metrics.RecordXPChange(txn.Reason, txn.RankUp, txn.RankDown, txn.RankAfter)

	s.log.Info().
		Str("user_id", txn.UserID).
		Str("reason", txn.Reason).
		Int("xp_change", txn.XPChange).
		Int("xp_before", txn.XPBefore).
		Int("xp_after", txn.XPAfter).
		Msg("User XP updated")

	switch {
	case txn.RankUp:
		s.log.Info().
			Str("user_id", txn.UserID).
			Str("from", txn.RankBefore).
			Str("to", txn.RankAfter).
			Msg("User ranked up")
		if s.notifier != nil {
			if err := s.notifier.NotifyRankUp(ctx, txn.UserID, txn.RankBefore, txn.RankAfter, txn.XPAfter); err != nil {
				s.log.Warn().Err(err).Str("user_id", txn.UserID).Msg("Failed to send rank up notification")
			}
		}
	case txn.RankDown:
		s.log.Info().
			Str("user_id", txn.UserID).
			Str("from", txn.RankBefore).
			Str("to", txn.RankAfter).
			Msg("User ranked down")
	}
}

// UpdateCompetitionStats records a win or loss and maintains streaks.
func (s *Service) UpdateCompetitionStats(ctx context.Context, userID string, won bool) (*models.UserRanking, error) {
	now := s.now()
	ranking, err := s.repo.Update(ctx, s.seed(userID), func(r *models.UserRanking) error {
		applyOutcome(r, won, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update competition stats: %w", err)
	}
	return ranking, nil
}

func applyOutcome(r *models.UserRanking, won bool, now time.Time) {
	r.TotalCompetitions++
	if won {
		r.Wins++
		r.SeasonWins++
		r.CurrentWinStreak++
		r.CurrentLossStreak = 0
		if r.CurrentWinStreak > r.BestWinStreak {
			r.BestWinStreak = r.CurrentWinStreak
		}
	} else {
		r.Losses++
		r.CurrentLossStreak++
		r.CurrentWinStreak = 0
	}
	r.WinRate = math.Round(float64(r.Wins)/float64(r.TotalCompetitions)*10000) / 100
	r.LastCompetitionAt = &now
	r.UpdatedAt = now
}

// RecordCompetitionResult settles one user's competition outcome: stats and
// streaks first, then the XP award computed from the updated streaks, in one
// transaction. A competition is settled at most once per user.
func (s *Service) RecordCompetitionResult(ctx context.Context, result CompetitionResult) (*models.UserRanking, *models.XPTransaction, xp.Breakdown, error) {
	result, err := NormalizeResult(result)
	if err != nil {
		return nil, nil, xp.Breakdown{}, err
	}
	placement := result.Placement

	now := s.now()
	competitionID := result.CompetitionID
	var breakdown xp.Breakdown

	ranking, txn, err := s.repo.ApplyXPChange(ctx, s.seed(result.UserID), func(r *models.UserRanking) (*models.XPTransaction, error) {
		applyOutcome(r, result.Won, now)

		breakdown = xp.CalculateCompetitionXP(xp.Input{
			Format:             result.Format,
			Placement:          placement,
			TotalParticipants:  result.TotalParticipants,
			UserPnL:            result.UserPnL,
			AveragePnL:         result.AveragePnL,
			CurrentWinStreak:   r.CurrentWinStreak,
			DaysActiveThisWeek: r.DaysActiveThisWeek,
		})

		delta := breakdown.TotalXP
		if delta < 0 {
			delta = xp.ApplyLossProtection(delta, r.CurrentLossStreak)
		} else {
			delta = xp.ApplyHotStreakDampening(delta, r.CurrentWinStreak)
		}

		reason := models.ReasonCompetitionLoss
		if result.Won {
			reason = models.ReasonCompetitionWin
		}

		details, err := encodeDetails(map[string]interface{}{
			"breakdown": breakdown,
			"placement": placement,
			"format":    result.Format,
		})
		if err != nil {
			return nil, err
		}

		return s.applyDelta(r, delta, reason, &competitionID, details, now), nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, nil, xp.Breakdown{}, fmt.Errorf("%w: user %s, competition %s",
			ErrResultAlreadyRecorded, result.UserID, result.CompetitionID)
	}
	if err != nil {
		return nil, nil, xp.Breakdown{}, fmt.Errorf("failed to record competition result: %w", err)
	}

	s.afterXPChange(ctx, txn)
	return ranking, txn, breakdown, nil
}

// RecordDailyActivity counts the first activity of each day: it bumps the
// weekly active-day counter (reset on a new ISO week) and awards the daily
// activity XP. Later calls on the same day change nothing and return false.
func (s *Service) RecordDailyActivity(ctx context.Context, userID string) (*models.UserRanking, bool, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	ranking, txn, err := s.repo.ApplyXPChange(ctx, s.seed(userID), func(r *models.UserRanking) (*models.XPTransaction, error) {
		if r.LastActiveDate != nil && sameDay(r.LastActiveDate.UTC(), today) {
			return nil, nil
		}

		if r.LastActiveDate != nil && sameISOWeek(r.LastActiveDate.UTC(), today) {
			r.DaysActiveThisWeek++
		} else {
			r.DaysActiveThisWeek = 1
		}
		r.LastActiveDate = &today

		return s.applyDelta(r, xp.DailyActivityXP, models.ReasonDailyActivity, nil, "", now), nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to record daily activity: %w", err)
	}

	s.afterXPChange(ctx, txn)
	return ranking, txn != nil, nil
}

// GetXPToNextRank returns the next tier and the XP still needed to reach it.
// ok is false at the top tier.
func (s *Service) GetXPToNextRank(currentXP int) (next Tier, xpNeeded int, ok bool) {
	current := s.lookup(currentXP)
	next, ok = s.tiers.Next(current)
	if !ok {
		return Tier{}, 0, false
	}
	return next, next.MinXP - currentXP, true
}

// ProcessRankDecay applies the inactivity penalty. Returns nil when the user
// has not been inactive long enough to decay.
func (s *Service) ProcessRankDecay(ctx context.Context, userID string, daysSinceLastActivity int) (*models.XPTransaction, error) {
	amount := xp.DecayAmount(daysSinceLastActivity)
	if amount == 0 {
		return nil, nil
	}

	_, txn, err := s.UpdateUserXP(ctx, XPChange{
		UserID:  userID,
		Delta:   amount,
		Reason:  models.ReasonRankDecay,
		Details: map[string]interface{}{"days_since_last_activity": daysSinceLastActivity},
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// DecayInactiveUsers applies rank decay to every user idle for at least
// inactiveDays. A user is idle from the later of their last daily activity and
// their last settled competition. Per-user failures are logged and skipped.
func (s *Service) DecayInactiveUsers(ctx context.Context, inactiveDays int) (int, error) {
	now := s.now()
	cutoff := now.Add(-time.Duration(inactiveDays) * 24 * time.Hour)

	rankings, err := s.repo.ListInactiveSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list inactive users: %w", err)
	}

	decayed := 0
	for _, r := range rankings {
		lastSeen := r.LastSeenAt()
		if lastSeen == nil {
			continue
		}
		days := int(now.Sub(*lastSeen).Hours() / 24)
		txn, err := s.ProcessRankDecay(ctx, r.UserID, days)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", r.UserID).Msg("Failed to apply rank decay")
			continue
		}
		if txn != nil {
			decayed++
		}
	}

	return decayed, nil
}

// GetXPHistory returns the user's recent XP transactions, newest first.
func (s *Service) GetXPHistory(ctx context.Context, userID string, limit int) ([]models.XPTransaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	txns, err := s.repo.ListXPTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get xp history: %w", err)
	}
	return txns, nil
}

func encodeDetails(details map[string]interface{}) (string, error) {
	if len(details) == 0 {
		return "", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("failed to encode reason details: %w", err)
	}
	return string(b), nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameISOWeek(a, b time.Time) bool {
	ay, aw := a.ISOWeek()
	by, bw := b.ISOWeek()
	return ay == by && aw == bw
}
