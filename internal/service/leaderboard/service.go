// Package leaderboard provides season leaderboards and rank progress views.
package leaderboard

import (
	"context"
	"fmt"
	"math"

	"github.com/aimd54/ranked-matchmaking/internal/models"
	"github.com/aimd54/ranked-matchmaking/internal/repository"
	"github.com/aimd54/ranked-matchmaking/internal/service/ranking"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
)

// Leaderboard paging defaults.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// RankingRepository interface for season ranking reads.
type RankingRepository interface {
	ListBySeason(ctx context.Context, seasonID, limit, offset int) ([]models.UserRanking, error)
	CountBySeason(ctx context.Context, seasonID int) (int64, error)
}

// Ledger interface for the ranking operations progress views need.
type Ledger interface {
	GetOrCreateUserRanking(ctx context.Context, userID string) (*models.UserRanking, error)
	GetXPHistory(ctx context.Context, userID string, limit int) ([]models.XPTransaction, error)
	Tiers() *ranking.TierTable
}

// Entry represents a single entry in a leaderboard.
type Entry struct {
	Position      int     `json:"position"`
	UserID        string  `json:"user_id"`
	CurrentXP     int     `json:"current_xp"`
	CurrentRank   string  `json:"current_rank"`
	RankTier      int     `json:"rank_tier"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"`
	BestWinStreak int     `json:"best_win_streak"`
	SeasonXP      int     `json:"season_xp"`
}

// Page is one slice of a season leaderboard.
type Page struct {
	SeasonID int     `json:"season_id"`
	Entries  []Entry `json:"entries"`
	Total    int64   `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
}

// Progress describes how far a user is through their current tier.
type Progress struct {
	UserID             string                 `json:"user_id"`
	CurrentXP          int                    `json:"current_xp"`
	CurrentRank        string                 `json:"current_rank"`
	RankTier           int                    `json:"rank_tier"`
	NextRank           *string                `json:"next_rank"`
	XPNeeded           *int                   `json:"xp_needed"`
	ProgressPercent    float64                `json:"progress_percent"`
	RecentTransactions []models.XPTransaction `json:"recent_transactions"`
}

// Service builds leaderboard and progress read models.
type Service struct {
	rankingRepo RankingRepository
	ledger      Ledger
	log         *logger.Logger
}

// NewService creates a new leaderboard service with concrete dependencies.
func NewService(rankingRepo *repository.RankingRepository, ledger *ranking.Service, log *logger.Logger) *Service {
	return &Service{
		rankingRepo: rankingRepo,
		ledger:      ledger,
		log:         log,
	}
}

// NewServiceWithInterfaces creates a new leaderboard service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(rankingRepo RankingRepository, ledger Ledger, log *logger.Logger) *Service {
	return &Service{
		rankingRepo: rankingRepo,
		ledger:      ledger,
		log:         log,
	}
}

// GetGlobalLeaderboard returns a season's rankings ordered by XP, with
// 1-based positions that account for the offset.
func (s *Service) GetGlobalLeaderboard(ctx context.Context, seasonID, limit, offset int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	rankings, err := s.rankingRepo.ListBySeason(ctx, seasonID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}

	total, err := s.rankingRepo.CountBySeason(ctx, seasonID)
	if err != nil {
		s.log.Warn().Err(err).Int("season_id", seasonID).Msg("Failed to count season rankings")
		total = int64(offset + len(rankings))
	}

	entries := make([]Entry, 0, len(rankings))
	for i, r := range rankings {
		entries = append(entries, Entry{
			Position:      offset + i + 1,
			UserID:        r.UserID,
			CurrentXP:     r.CurrentXP,
			CurrentRank:   r.CurrentRank,
			RankTier:      r.RankTier,
			Wins:          r.Wins,
			Losses:        r.Losses,
			WinRate:       r.WinRate,
			BestWinStreak: r.BestWinStreak,
			SeasonXP:      r.SeasonXP,
		})
	}

	return &Page{
		SeasonID: seasonID,
		Entries:  entries,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// GetRankProgress returns the user's next rank, XP still needed and recent
// XP transactions.
func (s *Service) GetRankProgress(ctx context.Context, userID string, recentLimit int) (*Progress, error) {
	r, err := s.ledger.GetOrCreateUserRanking(ctx, userID)
	if err != nil {
		return nil, err
	}

	recent, err := s.ledger.GetXPHistory(ctx, userID, recentLimit)
	if err != nil {
		return nil, err
	}

	progress := &Progress{
		UserID:             userID,
		CurrentXP:          r.CurrentXP,
		CurrentRank:        r.CurrentRank,
		RankTier:           r.RankTier,
		ProgressPercent:    100,
		RecentTransactions: recent,
	}

	tiers := s.ledger.Tiers()
	current, _ := tiers.Lookup(r.CurrentXP)
	next, ok := tiers.Next(current)
	if !ok {
		return progress, nil
	}

	needed := next.MinXP - r.CurrentXP
	progress.NextRank = &next.Name
	progress.XPNeeded = &needed

	span := next.MinXP - current.MinXP
	done := r.CurrentXP - current.MinXP
	progress.ProgressPercent = math.Round(float64(done)/float64(span)*10000) / 100

	return progress, nil
}
