package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/ranked-matchmaking/internal/models"
)

// QueueRepository handles matchmaking queue persistence.
type QueueRepository struct {
	db *gorm.DB
}

// NewQueueRepository creates a new queue repository instance.
func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{
		db: db.DB,
	}
}

// Create inserts a new queue entry. A concurrent duplicate active entry for the
// same user surfaces as gorm.ErrDuplicatedKey.
func (r *QueueRepository) Create(ctx context.Context, entry *models.QueueEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create queue entry for user %s: %w", entry.UserID, err)
	}
	return nil
}

// GetByID retrieves a queue entry by ID. Returns nil, nil when absent.
func (r *QueueRepository) GetByID(ctx context.Context, id string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry %s: %w", id, err)
	}
	return &entry, nil
}

// GetActiveByUserID retrieves the user's most recent searching or match_found
// entry. Returns nil, nil when the user is not in the queue.
func (r *QueueRepository) GetActiveByUserID(ctx context.Context, userID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, models.ActiveQueueStatuses).
		Order("search_started_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active queue entry for user %s: %w", userID, err)
	}
	return &entry, nil
}

// ListSearching returns every searching entry of a format, oldest first.
func (r *QueueRepository) ListSearching(ctx context.Context, format string) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("format = ? AND status = ?", format, models.QueueStatusSearching).
		Order("search_started_at ASC").
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list searching entries for format %s: %w", format, err)
	}
	return entries, nil
}

// CancelSearching moves the user's searching entry to cancelled.
func (r *QueueRepository) CancelSearching(ctx context.Context, userID string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("user_id = ? AND status = ?", userID, models.QueueStatusSearching).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusCancelled,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cancel queue entry for user %s: %w", userID, result.Error)
	}
	return result.RowsAffected, nil
}

// UpdateSearchRange persists a widened XP band. The update only applies while
// the entry is still searching and below the new expansion level, so the
// level never moves backwards.
func (r *QueueRepository) UpdateSearchRange(ctx context.Context, entry *models.QueueEntry, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("id = ? AND status = ? AND search_expanded_count < ?",
			entry.ID, models.QueueStatusSearching, entry.SearchExpandedCount).
		Updates(map[string]interface{}{
			"xp_range_min":          entry.XPRangeMin,
			"xp_range_max":          entry.XPRangeMax,
			"search_expanded_count": entry.SearchExpandedCount,
			"updated_at":            now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to expand search range for entry %s: %w", entry.ID, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// MarkMatchFound atomically moves all given searching entries to match_found.
// Returns ErrClaimConflict and changes nothing if any entry is not searching.
func (r *QueueRepository) MarkMatchFound(ctx context.Context, entryIDs []string, competitionID string, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return markMatchFoundTx(tx, entryIDs, competitionID, now)
	})
}

func markMatchFoundTx(tx *gorm.DB, entryIDs []string, competitionID string, now time.Time) error {
	result := tx.Model(&models.QueueEntry{}).
		Where("id IN ? AND status = ?", entryIDs, models.QueueStatusSearching).
		Updates(map[string]interface{}{
			"status":         models.QueueStatusMatchFound,
			"match_found_at": now,
			"competition_id": competitionID,
			"updated_at":     now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark entries as match found: %w", result.Error)
	}
	if result.RowsAffected != int64(len(entryIDs)) {
		return ErrClaimConflict
	}
	return nil
}

// TransitionOwned moves the caller's entry from one status to another. It
// returns false when no entry with that id, owner and current status exists.
func (r *QueueRepository) TransitionOwned(ctx context.Context, entryID, userID, from, to string, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	if to == models.QueueStatusAccepted {
		updates["match_accepted_at"] = now
	}

	result := r.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("id = ? AND user_id = ? AND status = ?", entryID, userID, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to move entry %s to %s: %w", entryID, to, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ExpireSearching moves every searching entry past its deadline to expired.
func (r *QueueRepository) ExpireSearching(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("status = ? AND expires_at < ?", models.QueueStatusSearching, now).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusExpired,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire queue entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
