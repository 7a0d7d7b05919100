package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/ranked-matchmaking/internal/models"
)

// MatchRepository persists materialized competitions and match history.
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new match repository instance.
func NewMatchRepository(db *DB) *MatchRepository {
	return &MatchRepository{
		db: db.DB,
	}
}

// Materialize writes the competition, both participants, both directed history
// rows and the queue claim in a single transaction. If either entry is no
// longer searching the whole write is rolled back with ErrClaimConflict.
func (r *MatchRepository) Materialize(
	ctx context.Context,
	competition *models.Competition,
	first, second *models.QueueEntry,
	now time.Time,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(competition).Error; err != nil {
			return fmt.Errorf("failed to create competition: %w", err)
		}

		participants := []models.CompetitionParticipant{
			{CompetitionID: competition.ID, UserID: first.UserID, XPBefore: first.XP, JoinedAt: now},
			{CompetitionID: competition.ID, UserID: second.UserID, XPBefore: second.XP, JoinedAt: now},
		}
		if err := tx.Create(&participants).Error; err != nil {
			return fmt.Errorf("failed to enroll participants in competition %s: %w", competition.ID, err)
		}

		err := tx.Model(&models.Competition{}).
			Where("id = ?", competition.ID).
			Update("current_participants", len(participants)).Error
		if err != nil {
			return fmt.Errorf("failed to update participant count for competition %s: %w", competition.ID, err)
		}
		competition.CurrentParticipants = len(participants)
		competition.Participants = participants

		xpDiff := first.XP - second.XP
		if xpDiff < 0 {
			xpDiff = -xpDiff
		}
		history := []models.MatchHistory{
			{UserID: first.UserID, OpponentID: second.UserID, CompetitionID: competition.ID, XPDiff: xpDiff, MatchedAt: now},
			{UserID: second.UserID, OpponentID: first.UserID, CompetitionID: competition.ID, XPDiff: xpDiff, MatchedAt: now},
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to record match history for competition %s: %w", competition.ID, err)
		}

		if err := markMatchFoundTx(tx, []string{first.ID, second.ID}, competition.ID, now); err != nil {
			return err
		}

		for _, pair := range [][2]*models.QueueEntry{{first, second}, {second, first}} {
			err := tx.Model(&models.QueueEntry{}).
				Where("id = ?", pair[0].ID).
				Update("matched_with", pair[1].UserID).Error
			if err != nil {
				return fmt.Errorf("failed to record opponent for entry %s: %w", pair[0].ID, err)
			}
		}

		return nil
	})
}

// RecentOpponents returns the set of users the given user was matched against
// at or after since.
func (r *MatchRepository) RecentOpponents(ctx context.Context, userID string, since time.Time) (map[string]struct{}, error) {
	var opponents []string
	err := r.db.WithContext(ctx).
		Model(&models.MatchHistory{}).
		Where("user_id = ? AND matched_at >= ?", userID, since).
		Distinct().
		Pluck("opponent_id", &opponents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recent opponents for user %s: %w", userID, err)
	}

	set := make(map[string]struct{}, len(opponents))
	for _, id := range opponents {
		set[id] = struct{}{}
	}
	return set, nil
}

// GetCompetition retrieves a competition with its participants. Returns nil,
// nil when absent.
func (r *MatchRepository) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	var competition models.Competition
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("id = ?", id).
		First(&competition).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get competition %s: %w", id, err)
	}
	return &competition, nil
}
