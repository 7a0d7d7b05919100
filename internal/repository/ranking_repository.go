package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/ranked-matchmaking/internal/models"
)

// RankingRepository handles user ranking and XP transaction persistence.
type RankingRepository struct {
	db *gorm.DB
}

// NewRankingRepository creates a new ranking repository instance.
func NewRankingRepository(db *DB) *RankingRepository {
	return &RankingRepository{
		db: db.DB,
	}
}

// GetByUserID retrieves a user's ranking. Returns nil, nil when absent.
func (r *RankingRepository) GetByUserID(ctx context.Context, userID string) (*models.UserRanking, error) {
	var ranking models.UserRanking
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&ranking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ranking for user %s: %w", userID, err)
	}
	return &ranking, nil
}

// GetOrCreate returns the user's ranking, inserting seed first if none exists.
func (r *RankingRepository) GetOrCreate(ctx context.Context, seed *models.UserRanking) (*models.UserRanking, error) {
	var ranking *models.UserRanking
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ranking, err = lockRanking(tx, seed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ranking, nil
}

// ApplyXPChange runs mutate against the user's ranking row while holding a row
// lock, then saves the ranking and appends the transaction mutate returns, if
// any. Concurrent calls for the same user are serialized by the lock.
func (r *RankingRepository) ApplyXPChange(
	ctx context.Context,
	seed *models.UserRanking,
	mutate func(ranking *models.UserRanking) (*models.XPTransaction, error),
) (*models.UserRanking, *models.XPTransaction, error) {
	var (
		ranking *models.UserRanking
		txn     *models.XPTransaction
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ranking, err = lockRanking(tx, seed)
		if err != nil {
			return err
		}

		txn, err = mutate(ranking)
		if err != nil {
			return err
		}

		if err := tx.Save(ranking).Error; err != nil {
			return fmt.Errorf("failed to save ranking for user %s: %w", ranking.UserID, err)
		}
		if txn == nil {
			return nil
		}
		if err := tx.Create(txn).Error; err != nil {
			return fmt.Errorf("failed to record xp transaction for user %s: %w", ranking.UserID, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return ranking, txn, nil
}

// Update runs mutate against the locked ranking row and saves the result.
func (r *RankingRepository) Update(
	ctx context.Context,
	seed *models.UserRanking,
	mutate func(ranking *models.UserRanking) error,
) (*models.UserRanking, error) {
	var ranking *models.UserRanking

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ranking, err = lockRanking(tx, seed)
		if err != nil {
			return err
		}
		if err := mutate(ranking); err != nil {
			return err
		}
		if err := tx.Save(ranking).Error; err != nil {
			return fmt.Errorf("failed to save ranking for user %s: %w", ranking.UserID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ranking, nil
}

// lockRanking inserts seed if the user has no ranking yet, then reads the row
// with SELECT ... FOR UPDATE.
func lockRanking(tx *gorm.DB, seed *models.UserRanking) (*models.UserRanking, error) {
	insert := *seed
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&insert).Error
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ranking for user %s: %w", seed.UserID, err)
	}

	var ranking models.UserRanking
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", seed.UserID).
		First(&ranking).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock ranking for user %s: %w", seed.UserID, err)
	}

	return &ranking, nil
}

// ListXPTransactions returns the user's most recent XP transactions, newest first.
func (r *RankingRepository) ListXPTransactions(ctx context.Context, userID string, limit int) ([]models.XPTransaction, error) {
	var txns []models.XPTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list xp transactions for user %s: %w", userID, err)
	}
	return txns, nil
}

// ListBySeason returns a page of a season's rankings ordered by XP.
func (r *RankingRepository) ListBySeason(ctx context.Context, seasonID, limit, offset int) ([]models.UserRanking, error) {
	var rankings []models.UserRanking
	err := r.db.WithContext(ctx).
		Where("season_id = ?", seasonID).
		Order("current_xp DESC").
		Order("user_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rankings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rankings for season %d: %w", seasonID, err)
	}
	return rankings, nil
}

// CountBySeason returns how many users are ranked in a season.
func (r *RankingRepository) CountBySeason(ctx context.Context, seasonID int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserRanking{}).
		Where("season_id = ?", seasonID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count rankings for season %d: %w", seasonID, err)
	}
	return count, nil
}

// ListInactiveSince returns users with XP who have been seen at least once,
// either through daily activity or a settled competition, and not since cutoff.
func (r *RankingRepository) ListInactiveSince(ctx context.Context, cutoff time.Time) ([]models.UserRanking, error) {
	var rankings []models.UserRanking
	err := r.db.WithContext(ctx).
		Where("current_xp > 0").
		Where("last_active_date IS NOT NULL OR last_competition_at IS NOT NULL").
		Where("last_active_date IS NULL OR last_active_date < ?", cutoff).
		Where("last_competition_at IS NULL OR last_competition_at < ?", cutoff).
		Order("user_id ASC").
		Find(&rankings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list inactive rankings: %w", err)
	}
	return rankings, nil
}
