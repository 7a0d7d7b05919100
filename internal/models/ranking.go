package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// XP transaction reasons.
const (
	ReasonCompetitionWin   = "competition_win"
	ReasonCompetitionLoss  = "competition_loss"
	ReasonDailyActivity    = "daily_activity"
	ReasonRankDecay        = "rank_decay"
	ReasonManualAdjustment = "manual_adjustment"
)

// UserRanking holds a user's XP, derived rank and competition aggregates.
// Only the rank ledger writes to it.
type UserRanking struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"size:64;not null;uniqueIndex" json:"user_id"`

	CurrentXP   int    `gorm:"column:current_xp;not null;default:0;index:idx_rankings_season_xp,priority:2,sort:desc" json:"current_xp"`
	CurrentRank string `gorm:"size:50;not null" json:"current_rank"`
	RankTier    int    `gorm:"not null;default:1" json:"rank_tier"`

	TotalCompetitions int     `gorm:"not null;default:0" json:"total_competitions"`
	Wins              int     `gorm:"not null;default:0" json:"wins"`
	Losses            int     `gorm:"not null;default:0" json:"losses"`
	WinRate           float64 `gorm:"not null;default:0" json:"win_rate"`
	CurrentWinStreak  int     `gorm:"not null;default:0" json:"current_win_streak"`
	CurrentLossStreak int     `gorm:"not null;default:0" json:"current_loss_streak"`
	BestWinStreak     int     `gorm:"not null;default:0" json:"best_win_streak"`

	PeakXP             int        `gorm:"column:peak_xp;not null;default:0" json:"peak_xp"`
	PeakRank           string     `gorm:"size:50" json:"peak_rank"`
	PeakRankAchievedAt *time.Time `json:"peak_rank_achieved_at,omitempty"`

	DaysActiveThisWeek int        `gorm:"not null;default:0" json:"days_active_this_week"`
	LastActiveDate     *time.Time `gorm:"index" json:"last_active_date,omitempty"`
	LastCompetitionAt  *time.Time `json:"last_competition_at,omitempty"`

	SeasonID   int `gorm:"not null;default:1;index:idx_rankings_season_xp,priority:1" json:"season_id"`
	SeasonXP   int `gorm:"column:season_xp;not null;default:0" json:"season_xp"`
	SeasonWins int `gorm:"not null;default:0" json:"season_wins"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LastSeenAt returns the later of the last daily activity and the last
// settled competition, or nil if the user has neither.
func (r *UserRanking) LastSeenAt() *time.Time {
	switch {
	case r.LastActiveDate == nil:
		return r.LastCompetitionAt
	case r.LastCompetitionAt == nil || r.LastActiveDate.After(*r.LastCompetitionAt):
		return r.LastActiveDate
	default:
		return r.LastCompetitionAt
	}
}

// TableName specifies the table name for UserRanking model.
func (UserRanking) TableName() string {
	return "user_rankings"
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (r *UserRanking) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// XPTransaction is an append-only audit record of one XP change.
type XPTransaction struct {
	ID            string  `gorm:"primaryKey;size:36" json:"id"`
	UserID        string  `gorm:"size:64;not null;index:idx_xp_tx_user_created,priority:1;uniqueIndex:idx_xp_tx_user_competition,priority:1" json:"user_id"`
	CompetitionID *string `gorm:"size:36;index;uniqueIndex:idx_xp_tx_user_competition,priority:2,where:competition_id IS NOT NULL" json:"competition_id,omitempty"`

	XPChange int `gorm:"column:xp_change;not null" json:"xp_change"`
	XPBefore int `gorm:"column:xp_before;not null" json:"xp_before"`
	XPAfter  int `gorm:"column:xp_after;not null" json:"xp_after"`

	Reason        string `gorm:"size:50;not null" json:"reason"`
	ReasonDetails string `gorm:"type:text" json:"reason_details,omitempty"`

	RankBefore string `gorm:"size:50" json:"rank_before"`
	RankAfter  string `gorm:"size:50" json:"rank_after"`
	RankUp     bool   `gorm:"not null;default:false" json:"rank_up"`
	RankDown   bool   `gorm:"not null;default:false" json:"rank_down"`

	CreatedAt time.Time `gorm:"index:idx_xp_tx_user_created,priority:2" json:"created_at"`
}

// TableName specifies the table name for XPTransaction model.
func (XPTransaction) TableName() string {
	return "xp_transactions"
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (t *XPTransaction) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
