// Package models defines domain models for the ranked matchmaking system.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Match formats. The queue never pairs across formats.
const (
	Format1v1         = "1v1"
	Format2v2         = "2v2"
	Format3v3         = "3v3"
	FormatBattleRoyal = "battle_royal"
)

// AllFormats lists every supported format in display order.
var AllFormats = []string{Format1v1, Format2v2, Format3v3, FormatBattleRoyal}

// IsValidFormat reports whether f is a known match format.
func IsValidFormat(f string) bool {
	for _, known := range AllFormats {
		if f == known {
			return true
		}
	}
	return false
}

// QueueStatus constants.
const (
	QueueStatusSearching  = "searching"
	QueueStatusMatchFound = "match_found"
	QueueStatusAccepted   = "accepted"
	QueueStatusDeclined   = "declined"
	QueueStatusCancelled  = "cancelled"
	QueueStatusExpired    = "expired"
)

// ActiveQueueStatuses are the statuses a user may hold at most one entry in.
var ActiveQueueStatuses = []string{QueueStatusSearching, QueueStatusMatchFound}

// QueueEntry is one player's search for a match. Entries are never deleted.
type QueueEntry struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"size:64;not null;uniqueIndex:idx_queue_active_user,where:status = 'searching' OR status = 'match_found'" json:"user_id"`
	Format string `gorm:"size:20;not null;index:idx_queue_format_status,priority:1" json:"format"`
	// Competition length requested by the player, in hours.
	DurationHours int `gorm:"not null" json:"duration_hours"`

	// Skill snapshot captured at join time.
	XP   int    `gorm:"column:xp;not null" json:"xp"`
	Rank string `gorm:"size:50;not null" json:"rank"`

	XPRangeMin          int `gorm:"column:xp_range_min;not null" json:"xp_range_min"`
	XPRangeMax          int `gorm:"column:xp_range_max;not null" json:"xp_range_max"`
	SearchExpandedCount int `gorm:"not null;default:0" json:"search_expanded_count"`

	SearchStartedAt time.Time  `gorm:"not null;index:idx_queue_format_status,priority:3" json:"search_started_at"`
	ExpiresAt       time.Time  `gorm:"not null;index" json:"expires_at"`
	MatchFoundAt    *time.Time `json:"match_found_at,omitempty"`
	MatchAcceptedAt *time.Time `json:"match_accepted_at,omitempty"`

	Status        string  `gorm:"size:20;not null;index:idx_queue_format_status,priority:2" json:"status"`
	CompetitionID *string `gorm:"size:36" json:"competition_id,omitempty"`
	MatchedWith   *string `gorm:"size:64" json:"matched_with,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for QueueEntry model.
func (QueueEntry) TableName() string {
	return "matchmaking_queue"
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (e *QueueEntry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// AcceptsXP reports whether xp falls inside the entry's current XP band.
func (e *QueueEntry) AcceptsXP(xp int) bool {
	return xp >= e.XPRangeMin && xp <= e.XPRangeMax
}

// WaitTime returns how long the entry has been searching as of now.
func (e *QueueEntry) WaitTime(now time.Time) time.Duration {
	d := now.Sub(e.SearchStartedAt)
	if d < 0 {
		return 0
	}
	return d
}
