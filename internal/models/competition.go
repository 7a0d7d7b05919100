package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CompetitionStatusPending is the status of a freshly materialized match.
// Later lifecycle states belong to the competition engine.
const CompetitionStatusPending = "pending"

// Competition is a materialized ranked match.
type Competition struct {
	ID              string  `gorm:"primaryKey;size:36" json:"id"`
	Name            string  `gorm:"size:255;not null" json:"name"`
	Description     string  `gorm:"type:text" json:"description"`
	CompetitionType string  `gorm:"size:20;not null" json:"competition_type"`
	IsRanked        bool    `gorm:"not null;default:false" json:"is_ranked"`
	IsCustom        bool    `gorm:"not null;default:false" json:"is_custom"`
	CreatorID       *string `gorm:"size:64" json:"creator_id,omitempty"`

	DurationHours int       `gorm:"not null" json:"duration_hours"`
	StartTime     time.Time `gorm:"not null" json:"start_time"`
	EndTime       time.Time `gorm:"not null" json:"end_time"`

	EntryFee            int `gorm:"not null;default:0" json:"entry_fee"`
	PrizePool           int `gorm:"not null;default:0" json:"prize_pool"`
	MaxParticipants     int `gorm:"not null" json:"max_participants"`
	CurrentParticipants int `gorm:"not null;default:0" json:"current_participants"`

	Status        string `gorm:"size:20;not null;index" json:"status"`
	AutoGenerated bool   `gorm:"not null;default:false" json:"auto_generated"`

	AverageXP  int `gorm:"column:average_xp" json:"average_xp"`
	XPRangeMin int `gorm:"column:xp_range_min" json:"xp_range_min"`
	XPRangeMax int `gorm:"column:xp_range_max" json:"xp_range_max"`

	Participants []CompetitionParticipant `gorm:"foreignKey:CompetitionID" json:"participants,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Competition model.
func (Competition) TableName() string {
	return "competitions"
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (c *Competition) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// CompetitionParticipant enrolls one user in a competition.
type CompetitionParticipant struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	CompetitionID string    `gorm:"size:36;not null;uniqueIndex:idx_participant_competition_user,priority:1" json:"competition_id"`
	UserID        string    `gorm:"size:64;not null;uniqueIndex:idx_participant_competition_user,priority:2" json:"user_id"`
	XPBefore      int       `gorm:"column:xp_before;not null" json:"xp_before"`
	JoinedAt      time.Time `gorm:"not null" json:"joined_at"`
}

// TableName specifies the table name for CompetitionParticipant model.
func (CompetitionParticipant) TableName() string {
	return "competition_participants"
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (p *CompetitionParticipant) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// MatchHistory records one directed (user, opponent) pairing for rematch avoidance.
type MatchHistory struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	UserID        string    `gorm:"size:64;not null;index:idx_match_history_user_time,priority:1" json:"user_id"`
	OpponentID    string    `gorm:"size:64;not null" json:"opponent_id"`
	CompetitionID string    `gorm:"size:36;not null;index" json:"competition_id"`
	XPDiff        int       `gorm:"column:xp_diff;not null" json:"xp_diff"`
	MatchedAt     time.Time `gorm:"not null;index:idx_match_history_user_time,priority:2" json:"matched_at"`
}

// TableName specifies the table name for MatchHistory model.
func (MatchHistory) TableName() string {
	return "match_history"
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (h *MatchHistory) BeforeCreate(_ *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}
