package mocks

import (
	"context"

	"github.com/aimd54/ranked-matchmaking/internal/models"
	"github.com/aimd54/ranked-matchmaking/internal/service/leaderboard"
	"github.com/aimd54/ranked-matchmaking/internal/service/queue"
	"github.com/aimd54/ranked-matchmaking/internal/service/ranking"
	"github.com/aimd54/ranked-matchmaking/internal/service/xp"
)

// MockQueueService is a simple mock for the queue service
type MockQueueService struct {
	JoinQueueFunc           func(ctx context.Context, req queue.JoinRequest) (*models.QueueEntry, bool, error)
	LeaveQueueFunc          func(ctx context.Context, userID string) error
	GetUserQueueEntryFunc   func(ctx context.Context, userID string) (*models.QueueEntry, error)
	AcceptMatchFunc         func(ctx context.Context, userID, entryID string) (*models.QueueEntry, error)
	DeclineMatchFunc        func(ctx context.Context, userID, entryID string) (*models.QueueEntry, error)
	CleanExpiredEntriesFunc func(ctx context.Context) (int64, error)
}

func (m *MockQueueService) JoinQueue(ctx context.Context, req queue.JoinRequest) (*models.QueueEntry, bool, error) {
	if m.JoinQueueFunc != nil {
		return m.JoinQueueFunc(ctx, req)
	}
	return &models.QueueEntry{UserID: req.UserID, Format: req.Format, Status: models.QueueStatusSearching}, false, nil
}

func (m *MockQueueService) LeaveQueue(ctx context.Context, userID string) error {
	if m.LeaveQueueFunc != nil {
		return m.LeaveQueueFunc(ctx, userID)
	}
	return nil
}

func (m *MockQueueService) GetUserQueueEntry(ctx context.Context, userID string) (*models.QueueEntry, error) {
	if m.GetUserQueueEntryFunc != nil {
		return m.GetUserQueueEntryFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockQueueService) AcceptMatch(ctx context.Context, userID, entryID string) (*models.QueueEntry, error) {
	if m.AcceptMatchFunc != nil {
		return m.AcceptMatchFunc(ctx, userID, entryID)
	}
	return &models.QueueEntry{ID: entryID, UserID: userID, Status: models.QueueStatusAccepted}, nil
}

func (m *MockQueueService) DeclineMatch(ctx context.Context, userID, entryID string) (*models.QueueEntry, error) {
	if m.DeclineMatchFunc != nil {
		return m.DeclineMatchFunc(ctx, userID, entryID)
	}
	return &models.QueueEntry{ID: entryID, UserID: userID, Status: models.QueueStatusDeclined}, nil
}

func (m *MockQueueService) CleanExpiredEntries(ctx context.Context) (int64, error) {
	if m.CleanExpiredEntriesFunc != nil {
		return m.CleanExpiredEntriesFunc(ctx)
	}
	return 0, nil
}

// MockMatchmakingService is a simple mock for the matchmaking service
type MockMatchmakingService struct {
	RunPassFunc        func(ctx context.Context, format string) ([]models.Competition, error)
	GetCompetitionFunc func(ctx context.Context, id string) (*models.Competition, error)
}

func (m *MockMatchmakingService) RunPass(ctx context.Context, format string) ([]models.Competition, error) {
	if m.RunPassFunc != nil {
		return m.RunPassFunc(ctx, format)
	}
	return []models.Competition{}, nil
}

func (m *MockMatchmakingService) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	if m.GetCompetitionFunc != nil {
		return m.GetCompetitionFunc(ctx, id)
	}
	return nil, nil
}

// MockRankingService is a simple mock for the rank ledger
type MockRankingService struct {
	GetOrCreateUserRankingFunc  func(ctx context.Context, userID string) (*models.UserRanking, error)
	UpdateUserXPFunc            func(ctx context.Context, change ranking.XPChange) (*models.UserRanking, *models.XPTransaction, error)
	UpdateCompetitionStatsFunc  func(ctx context.Context, userID string, won bool) (*models.UserRanking, error)
	RecordCompetitionResultFunc func(ctx context.Context, result ranking.CompetitionResult) (*models.UserRanking, *models.XPTransaction, xp.Breakdown, error)
	RecordDailyActivityFunc     func(ctx context.Context, userID string) (*models.UserRanking, bool, error)
	GetXPHistoryFunc            func(ctx context.Context, userID string, limit int) ([]models.XPTransaction, error)
	TierTable                   *ranking.TierTable
}

func (m *MockRankingService) GetOrCreateUserRanking(ctx context.Context, userID string) (*models.UserRanking, error) {
	if m.GetOrCreateUserRankingFunc != nil {
		return m.GetOrCreateUserRankingFunc(ctx, userID)
	}
	return &models.UserRanking{UserID: userID, CurrentRank: "Bronze III", RankTier: 1, SeasonID: 1}, nil
}

func (m *MockRankingService) UpdateUserXP(ctx context.Context, change ranking.XPChange) (*models.UserRanking, *models.XPTransaction, error) {
	if m.UpdateUserXPFunc != nil {
		return m.UpdateUserXPFunc(ctx, change)
	}
	return &models.UserRanking{UserID: change.UserID, CurrentXP: max(0, change.Delta)},
		&models.XPTransaction{UserID: change.UserID, XPChange: change.Delta, Reason: change.Reason}, nil
}

func (m *MockRankingService) UpdateCompetitionStats(ctx context.Context, userID string, won bool) (*models.UserRanking, error) {
	if m.UpdateCompetitionStatsFunc != nil {
		return m.UpdateCompetitionStatsFunc(ctx, userID, won)
	}
	return &models.UserRanking{UserID: userID, TotalCompetitions: 1}, nil
}

func (m *MockRankingService) RecordCompetitionResult(
	ctx context.Context,
	result ranking.CompetitionResult,
) (*models.UserRanking, *models.XPTransaction, xp.Breakdown, error) {
	if m.RecordCompetitionResultFunc != nil {
		return m.RecordCompetitionResultFunc(ctx, result)
	}
	return &models.UserRanking{UserID: result.UserID}, &models.XPTransaction{UserID: result.UserID}, xp.Breakdown{}, nil
}

func (m *MockRankingService) RecordDailyActivity(ctx context.Context, userID string) (*models.UserRanking, bool, error) {
	if m.RecordDailyActivityFunc != nil {
		return m.RecordDailyActivityFunc(ctx, userID)
	}
	return &models.UserRanking{UserID: userID, CurrentXP: xp.DailyActivityXP, DaysActiveThisWeek: 1}, true, nil
}

func (m *MockRankingService) GetXPHistory(ctx context.Context, userID string, limit int) ([]models.XPTransaction, error) {
	if m.GetXPHistoryFunc != nil {
		return m.GetXPHistoryFunc(ctx, userID, limit)
	}
	return []models.XPTransaction{}, nil
}

func (m *MockRankingService) Tiers() *ranking.TierTable {
	if m.TierTable != nil {
		return m.TierTable
	}
	return ranking.MustDefaultTierTable()
}

// MockLeaderboardService is a simple mock for the leaderboard service
type MockLeaderboardService struct {
	GetGlobalLeaderboardFunc func(ctx context.Context, seasonID, limit, offset int) (*leaderboard.Page, error)
	GetRankProgressFunc      func(ctx context.Context, userID string, recentLimit int) (*leaderboard.Progress, error)
}

func (m *MockLeaderboardService) GetGlobalLeaderboard(ctx context.Context, seasonID, limit, offset int) (*leaderboard.Page, error) {
	if m.GetGlobalLeaderboardFunc != nil {
		return m.GetGlobalLeaderboardFunc(ctx, seasonID, limit, offset)
	}
	return &leaderboard.Page{SeasonID: seasonID, Entries: []leaderboard.Entry{}, Limit: limit, Offset: offset}, nil
}

func (m *MockLeaderboardService) GetRankProgress(ctx context.Context, userID string, recentLimit int) (*leaderboard.Progress, error) {
	if m.GetRankProgressFunc != nil {
		return m.GetRankProgressFunc(ctx, userID, recentLimit)
	}
	return &leaderboard.Progress{UserID: userID}, nil
}
