// Package xp computes XP awards for finished competitions. Everything here is
// pure and deterministic.
package xp

import (
	"math"

	"github.com/aimd54/ranked-matchmaking/internal/models"
)

// Base XP by format and placement.
const (
	BaseWin1v1            = 50
	BaseLoss1v1           = -25
	BaseWinTeam           = 40
	BaseLossTeam          = -15
	BaseBattleRoyalTop3   = 60
	BaseBattleRoyalTop10  = 20
	BaseBattleRoyalBottom = -10
)

// Bonuses and adjustments.
const (
	DailyActivityXP   = 2
	WinStreak3Bonus   = 15
	WinStreak5Bonus   = 30
	MinPerformanceMul = 0.5
	MaxPerformanceMul = 2.0

	lossProtectionStreak = 3
	hotStreakThreshold   = 5
)

// Input describes one participant's finished competition.
type Input struct {
	Format             string
	Placement          int
	TotalParticipants  int
	UserPnL            float64
	AveragePnL         float64
	CurrentWinStreak   int
	DaysActiveThisWeek int
}

// Breakdown is the itemized XP award, kept for audit trails.
type Breakdown struct {
	BaseXP                int     `json:"base_xp"`
	PerformanceMultiplier float64 `json:"performance_multiplier"`
	StreakBonus           int     `json:"streak_bonus"`
	ConsistencyBonus      int     `json:"consistency_bonus"`
	TotalXP               int     `json:"total_xp"`
}

// CalculateCompetitionXP computes the XP change for one competition result.
func CalculateCompetitionXP(in Input) Breakdown {
	base := BaseXP(in.Format, in.Placement)
	multiplier := PerformanceMultiplier(in.Placement, in.UserPnL, in.AveragePnL)
	streak := StreakBonus(in.Placement, in.CurrentWinStreak)
	consistency := ConsistencyBonus(in.DaysActiveThisWeek)

	return Breakdown{
		BaseXP:                base,
		PerformanceMultiplier: multiplier,
		StreakBonus:           streak,
		ConsistencyBonus:      consistency,
		TotalXP:               roundHalfUp(float64(base)*multiplier + float64(streak) + float64(consistency)),
	}
}

// BaseXP returns the fixed award for a placement. Unknown formats earn nothing.
func BaseXP(format string, placement int) int {
	switch format {
	case models.Format1v1:
		if placement == 1 {
			return BaseWin1v1
		}
		return BaseLoss1v1
	case models.Format2v2, models.Format3v3:
		if placement == 1 {
			return BaseWinTeam
		}
		return BaseLossTeam
	case models.FormatBattleRoyal:
		switch {
		case placement <= 3:
			return BaseBattleRoyalTop3
		case placement <= 10:
			return BaseBattleRoyalTop10
		default:
			return BaseBattleRoyalBottom
		}
	default:
		return 0
	}
}

// PerformanceMultiplier scales the winner's base XP by P/L relative to the
// field average, clamped to [0.5, 2.0]. Everyone else gets 1.0.
func PerformanceMultiplier(placement int, userPnL, averagePnL float64) float64 {
	if placement != 1 || averagePnL == 0 {
		return 1.0
	}
	return math.Max(MinPerformanceMul, math.Min(MaxPerformanceMul, userPnL/averagePnL))
}

// StreakBonus returns the winner's bonus for the current win streak.
func StreakBonus(placement, currentWinStreak int) int {
	if placement != 1 {
		return 0
	}
	switch {
	case currentWinStreak >= 5:
		return WinStreak5Bonus
	case currentWinStreak >= 3:
		return WinStreak3Bonus
	default:
		return 0
	}
}

// ConsistencyBonus rewards days active this week, win or lose.
func ConsistencyBonus(daysActiveThisWeek int) int {
	return daysActiveThisWeek * DailyActivityXP
}

// ApplyLossProtection halves an XP loss once the loss streak reaches 3.
func ApplyLossProtection(xpLoss, currentLossStreak int) int {
	if currentLossStreak >= lossProtectionStreak {
		return roundHalfUp(float64(xpLoss) * 0.5)
	}
	return xpLoss
}

// ApplyHotStreakDampening trims an XP gain by 10% once the win streak reaches 5.
func ApplyHotStreakDampening(xpGain, currentWinStreak int) int {
	if currentWinStreak >= hotStreakThreshold {
		return roundHalfUp(float64(xpGain) * 0.9)
	}
	return xpGain
}

// DecayAmount returns the (non-positive) XP change for an inactivity period.
func DecayAmount(daysSinceLastActivity int) int {
	switch {
	case daysSinceLastActivity >= 30:
		return -100
	case daysSinceLastActivity >= 14:
		return -50
	default:
		return 0
	}
}

// roundHalfUp rounds .5 towards positive infinity, so -12.5 becomes -12.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
