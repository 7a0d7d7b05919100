// Package ranked provides REST API handlers for the ranked matchmaking queue,
// rankings, leaderboards and the operational triggers.
package ranked

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/ranked-matchmaking/internal/models"
	"github.com/aimd54/ranked-matchmaking/internal/service/leaderboard"
	"github.com/aimd54/ranked-matchmaking/internal/service/matchmaking"
	"github.com/aimd54/ranked-matchmaking/internal/service/queue"
	"github.com/aimd54/ranked-matchmaking/internal/service/ranking"
	"github.com/aimd54/ranked-matchmaking/internal/service/xp"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
)

// Request headers supplied by the upstream auth layer.
const (
	HeaderUserID     = "X-User-ID"
	HeaderAdminToken = "X-Admin-Token"

	userIDKey = "user_id"
)

// QueueService interface for queue operations.
type QueueService interface {
	JoinQueue(ctx context.Context, req queue.JoinRequest) (*models.QueueEntry, bool, error)
	LeaveQueue(ctx context.Context, userID string) error
	GetUserQueueEntry(ctx context.Context, userID string) (*models.QueueEntry, error)
	AcceptMatch(ctx context.Context, userID, entryID string) (*models.QueueEntry, error)
	DeclineMatch(ctx context.Context, userID, entryID string) (*models.QueueEntry, error)
	CleanExpiredEntries(ctx context.Context) (int64, error)
}

// MatchmakingService interface for pairing passes and competitions.
type MatchmakingService interface {
	RunPass(ctx context.Context, format string) ([]models.Competition, error)
	GetCompetition(ctx context.Context, id string) (*models.Competition, error)
}

// RankingService interface for the rank ledger.
type RankingService interface {
	GetOrCreateUserRanking(ctx context.Context, userID string) (*models.UserRanking, error)
	UpdateUserXP(ctx context.Context, change ranking.XPChange) (*models.UserRanking, *models.XPTransaction, error)
	UpdateCompetitionStats(ctx context.Context, userID string, won bool) (*models.UserRanking, error)
	RecordCompetitionResult(ctx context.Context, result ranking.CompetitionResult) (*models.UserRanking, *models.XPTransaction, xp.Breakdown, error)
	RecordDailyActivity(ctx context.Context, userID string) (*models.UserRanking, bool, error)
	GetXPHistory(ctx context.Context, userID string, limit int) ([]models.XPTransaction, error)
	Tiers() *ranking.TierTable
}

// LeaderboardService interface for leaderboard operations.
type LeaderboardService interface {
	GetGlobalLeaderboard(ctx context.Context, seasonID, limit, offset int) (*leaderboard.Page, error)
	GetRankProgress(ctx context.Context, userID string, recentLimit int) (*leaderboard.Progress, error)
}

// Options carries the handler settings taken from configuration.
type Options struct {
	AdminToken              string
	DefaultSeasonID         int
	RecentTransactionsLimit int
}

// Handler handles ranked API requests.
type Handler struct {
	queue       QueueService
	matchmaking MatchmakingService
	ranking     RankingService
	leaderboard LeaderboardService
	opts        Options
	log         *logger.Logger
}

// NewHandler creates a new ranked handler.
func NewHandler(
	queueService *queue.Service,
	matchmakingService *matchmaking.Service,
	rankingService *ranking.Service,
	leaderboardService *leaderboard.Service,
	opts Options,
	log *logger.Logger,
) *Handler {
	return NewHandlerWithInterfaces(queueService, matchmakingService, rankingService, leaderboardService, opts, log)
}

// NewHandlerWithInterfaces creates a new ranked handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	queueService QueueService,
	matchmakingService MatchmakingService,
	rankingService RankingService,
	leaderboardService LeaderboardService,
	opts Options,
	log *logger.Logger,
) *Handler {
	return &Handler{
		queue:       queueService,
		matchmaking: matchmakingService,
		ranking:     rankingService,
		leaderboard: leaderboardService,
		opts:        opts,
		log:         log,
	}
}

// RegisterRoutes mounts every ranked endpoint under /api/v1/ranked.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api/v1/ranked")

	api.GET("/leaderboard", h.GetLeaderboard)
	api.GET("/ranks", h.GetRanks)
	api.GET("/competitions/:id", h.GetCompetition)

	user := api.Group("", h.requireUser())
	user.POST("/queue", h.JoinQueue)
	user.DELETE("/queue", h.LeaveQueue)
	user.GET("/queue", h.GetQueueStatus)
	user.POST("/queue/:id/accept", h.AcceptMatch)
	user.POST("/queue/:id/decline", h.DeclineMatch)
	user.GET("/ranking", h.GetRanking)
	user.GET("/ranking/progress", h.GetRankProgress)
	user.POST("/ranking/activity", h.RecordActivity)
	user.GET("/xp/history", h.GetXPHistory)

	admin := api.Group("/admin", h.requireAdmin())
	admin.POST("/matchmaking/:format/run", h.RunMatchmaking)
	admin.POST("/queue/cleanup", h.CleanExpiredEntries)
	admin.POST("/competitions/:id/results", h.RecordResults)
	admin.POST("/rankings/:user_id/adjust", h.AdjustXP)
}

type joinQueueRequest struct {
	Format        string `json:"format"`
	DurationHours int    `json:"duration_hours"`
}

// JoinQueue enqueues the caller using their current XP and rank.
// POST /api/v1/ranked/queue.
func (h *Handler) JoinQueue(c *gin.Context) {
	userID := c.GetString(userIDKey)

	var body joinQueueRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	userRanking, err := h.ranking.GetOrCreateUserRanking(ctx, userID)
	if err != nil {
		h.handleError(c, err, "Failed to load ranking")
		return
	}

	entry, existing, err := h.queue.JoinQueue(ctx, queue.JoinRequest{
		UserID:        userID,
		XP:            userRanking.CurrentXP,
		Rank:          userRanking.CurrentRank,
		Format:        body.Format,
		DurationHours: body.DurationHours,
	})
	if err != nil {
		h.handleError(c, err, "Failed to join queue")
		return
	}

	status := http.StatusCreated
	if existing {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"entry":          entry,
		"already_queued": existing,
	})
}

// LeaveQueue cancels the caller's search.
// DELETE /api/v1/ranked/queue.
func (h *Handler) LeaveQueue(c *gin.Context) {
	if err := h.queue.LeaveQueue(c.Request.Context(), c.GetString(userIDKey)); err != nil {
		h.handleError(c, err, "Failed to leave queue")
		return
	}
	c.Status(http.StatusNoContent)
}

// GetQueueStatus returns the caller's active queue entry, if any.
// GET /api/v1/ranked/queue.
func (h *Handler) GetQueueStatus(c *gin.Context) {
	entry, err := h.queue.GetUserQueueEntry(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.handleError(c, err, "Failed to retrieve queue status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"in_queue": entry != nil,
		"entry":    entry,
	})
}

// AcceptMatch accepts the match offered on the caller's entry.
// POST /api/v1/ranked/queue/:id/accept.
func (h *Handler) AcceptMatch(c *gin.Context) {
	h.respondToMatch(c, h.queue.AcceptMatch)
}

// DeclineMatch declines the match offered on the caller's entry.
// POST /api/v1/ranked/queue/:id/decline.
func (h *Handler) DeclineMatch(c *gin.Context) {
	h.respondToMatch(c, h.queue.DeclineMatch)
}

func (h *Handler) respondToMatch(c *gin.Context, respond func(ctx context.Context, userID, entryID string) (*models.QueueEntry, error)) {
	entryID := c.Param("id")
	if entryID == "" {
		h.errorResponse(c, http.StatusBadRequest, "entry id is required")
		return
	}

	entry, err := respond(c.Request.Context(), c.GetString(userIDKey), entryID)
	if err != nil {
		h.handleError(c, err, "Failed to respond to match")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// GetRanking returns the caller's ranking, creating it on first access.
// GET /api/v1/ranked/ranking.
func (h *Handler) GetRanking(c *gin.Context) {
	userRanking, err := h.ranking.GetOrCreateUserRanking(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.handleError(c, err, "Failed to retrieve ranking")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ranking": userRanking})
}

// GetRankProgress returns the caller's progress towards the next rank.
// GET /api/v1/ranked/ranking/progress?limit=10.
func (h *Handler) GetRankProgress(c *gin.Context) {
	limit, err := h.parseIntQuery(c, "limit", h.opts.RecentTransactionsLimit, 1, 100)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	progress, err := h.leaderboard.GetRankProgress(c.Request.Context(), c.GetString(userIDKey), limit)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve rank progress")
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

// RecordActivity counts the caller's daily activity. Only the first call of a
// day awards XP.
// POST /api/v1/ranked/ranking/activity.
func (h *Handler) RecordActivity(c *gin.Context) {
	userRanking, awarded, err := h.ranking.RecordDailyActivity(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.handleError(c, err, "Failed to record activity")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ranking": userRanking,
		"awarded": awarded,
	})
}

// GetXPHistory returns the caller's recent XP transactions, newest first.
// GET /api/v1/ranked/xp/history?limit=20.
func (h *Handler) GetXPHistory(c *gin.Context) {
	limit, err := h.parseIntQuery(c, "limit", ranking.DefaultHistoryLimit, 1, 100)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	txns, err := h.ranking.GetXPHistory(c.Request.Context(), c.GetString(userIDKey), limit)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve XP history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"count":        len(txns),
	})
}

// GetLeaderboard returns a page of the season leaderboard.
// GET /api/v1/ranked/leaderboard?season_id=1&limit=100&offset=0.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	seasonID, err := h.parseIntQuery(c, "season_id", h.opts.DefaultSeasonID, 1, 1<<31-1)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.parseIntQuery(c, "limit", leaderboard.DefaultLimit, 1, leaderboard.MaxLimit)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := h.parseIntQuery(c, "offset", 0, 0, 1<<31-1)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.leaderboard.GetGlobalLeaderboard(c.Request.Context(), seasonID, limit, offset)
	if err != nil {
		h.handleError(c, err, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":  page,
		"generated_at": time.Now().UTC(),
	})
}

// GetRanks returns the static rank tier table.
// GET /api/v1/ranked/ranks.
func (h *Handler) GetRanks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ranks": h.ranking.Tiers().All()})
}

// GetCompetition returns a materialized competition.
// GET /api/v1/ranked/competitions/:id.
func (h *Handler) GetCompetition(c *gin.Context) {
	competition, err := h.matchmaking.GetCompetition(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err, "Failed to retrieve competition")
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition": competition})
}

// RunMatchmaking triggers a pairing pass for one format.
// POST /api/v1/ranked/admin/matchmaking/:format/run.
func (h *Handler) RunMatchmaking(c *gin.Context) {
	format := c.Param("format")

	competitions, err := h.matchmaking.RunPass(c.Request.Context(), format)
	if err != nil {
		h.handleError(c, err, "Failed to run matchmaking")
		return
	}

	h.log.Info().
		Str("format", format).
		Int("matches", len(competitions)).
		Msg("Manual matchmaking pass completed")

	c.JSON(http.StatusOK, gin.H{
		"format":       format,
		"competitions": competitions,
		"count":        len(competitions),
	})
}

// CleanExpiredEntries expires stale queue entries.
// POST /api/v1/ranked/admin/queue/cleanup.
func (h *Handler) CleanExpiredEntries(c *gin.Context) {
	n, err := h.queue.CleanExpiredEntries(c.Request.Context())
	if err != nil {
		h.handleError(c, err, "Failed to clean expired entries")
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

type participantResult struct {
	UserID     string  `json:"user_id"`
	Placement  int     `json:"placement"`
	Won        bool    `json:"won"`
	UserPnL    float64 `json:"user_pnl"`
	AveragePnL float64 `json:"average_pnl"`
}

type recordResultsRequest struct {
	Results []participantResult `json:"results"`
}

// Settlement outcome per participant.
const (
	settlementRecorded        = "recorded"
	settlementAlreadyRecorded = "already_recorded"
)

type settledResult struct {
	UserID      string                `json:"user_id"`
	Status      string                `json:"status"`
	Ranking     *models.UserRanking   `json:"ranking,omitempty"`
	Transaction *models.XPTransaction `json:"transaction,omitempty"`
	Breakdown   *xp.Breakdown         `json:"breakdown,omitempty"`
}

// RecordResults settles a finished competition. Ranked competitions award XP
// through the ledger; unranked ones only update win/loss stats. Participants
// already settled are reported and skipped, so a failed call can be retried.
// POST /api/v1/ranked/admin/competitions/:id/results.
func (h *Handler) RecordResults(c *gin.Context) {
	var body recordResultsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Results) == 0 {
		h.errorResponse(c, http.StatusBadRequest, "at least one result is required")
		return
	}

	ctx := c.Request.Context()
	competition, err := h.matchmaking.GetCompetition(ctx, c.Param("id"))
	if err != nil {
		h.handleError(c, err, "Failed to retrieve competition")
		return
	}

	results, err := buildResults(competition, body.Results)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	settled := make([]settledResult, 0, len(results))
	for _, result := range results {
		if !competition.IsRanked {
			userRanking, err := h.ranking.UpdateCompetitionStats(ctx, result.UserID, result.Won)
			if err != nil {
				h.handleError(c, err, "Failed to record competition stats")
				return
			}
			settled = append(settled, settledResult{UserID: result.UserID, Status: settlementRecorded, Ranking: userRanking})
			continue
		}

		userRanking, txn, breakdown, err := h.ranking.RecordCompetitionResult(ctx, result)
		if errors.Is(err, ranking.ErrResultAlreadyRecorded) {
			settled = append(settled, settledResult{UserID: result.UserID, Status: settlementAlreadyRecorded})
			continue
		}
		if err != nil {
			h.handleError(c, err, "Failed to record competition result")
			return
		}
		settled = append(settled, settledResult{
			UserID:      result.UserID,
			Status:      settlementRecorded,
			Ranking:     userRanking,
			Transaction: txn,
			Breakdown:   &breakdown,
		})
	}

	h.log.Info().
		Str("competition_id", competition.ID).
		Bool("ranked", competition.IsRanked).
		Int("results", len(settled)).
		Msg("Competition results recorded")

	c.JSON(http.StatusOK, gin.H{
		"competition_id": competition.ID,
		"results":        settled,
	})
}

// buildResults checks every submitted result against the competition before
// anything is written.
func buildResults(competition *models.Competition, submitted []participantResult) ([]ranking.CompetitionResult, error) {
	enrolled := make(map[string]struct{}, len(competition.Participants))
	for _, p := range competition.Participants {
		enrolled[p.UserID] = struct{}{}
	}

	total := max(competition.CurrentParticipants, len(submitted))
	seen := make(map[string]struct{}, len(submitted))
	results := make([]ranking.CompetitionResult, 0, len(submitted))

	for _, s := range submitted {
		if _, ok := enrolled[s.UserID]; !ok {
			return nil, fmt.Errorf("user %q is not a participant of competition %s", s.UserID, competition.ID)
		}
		if _, dup := seen[s.UserID]; dup {
			return nil, fmt.Errorf("duplicate result for user %q", s.UserID)
		}
		seen[s.UserID] = struct{}{}

		result, err := ranking.NormalizeResult(ranking.CompetitionResult{
			UserID:            s.UserID,
			CompetitionID:     competition.ID,
			Format:            competition.CompetitionType,
			Placement:         s.Placement,
			TotalParticipants: total,
			UserPnL:           s.UserPnL,
			AveragePnL:        s.AveragePnL,
			Won:               s.Won,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, nil
}

type adjustXPRequest struct {
	Delta int    `json:"delta"`
	Note  string `json:"note"`
}

// AdjustXP applies a manual XP correction through the ledger.
// POST /api/v1/ranked/admin/rankings/:user_id/adjust.
func (h *Handler) AdjustXP(c *gin.Context) {
	var body adjustXPRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Delta == 0 {
		h.errorResponse(c, http.StatusBadRequest, "delta must not be zero")
		return
	}

	userID := c.Param("user_id")
	change := ranking.XPChange{
		UserID: userID,
		Delta:  body.Delta,
		Reason: models.ReasonManualAdjustment,
	}
	if body.Note != "" {
		change.Details = map[string]interface{}{"note": body.Note}
	}

	userRanking, txn, err := h.ranking.UpdateUserXP(c.Request.Context(), change)
	if err != nil {
		h.handleError(c, err, "Failed to adjust XP")
		return
	}

	h.log.Info().
		Str("user_id", userID).
		Int("delta", body.Delta).
		Msg("Manual XP adjustment applied")

	c.JSON(http.StatusOK, gin.H{
		"ranking":     userRanking,
		"transaction": txn,
	})
}

// Helper functions

// requireUser rejects requests without an authenticated user id.
func (h *Handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			h.errorResponse(c, http.StatusUnauthorized, "missing "+HeaderUserID+" header")
			c.Abort()
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// requireAdmin guards the operational endpoints. With no token configured
// they are disabled.
func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(HeaderAdminToken)
		if h.opts.AdminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.opts.AdminToken)) != 1 {
			h.errorResponse(c, http.StatusUnauthorized, "invalid admin token")
			c.Abort()
			return
		}
		c.Next()
	}
}

// parseIntQuery extracts and validates an integer query parameter.
func (h *Handler) parseIntQuery(c *gin.Context, name string, defaultValue, minValue, maxValue int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %s", name, raw)
	}
	if value < minValue {
		return 0, fmt.Errorf("%s must be at least %d", name, minValue)
	}
	if value > maxValue {
		return 0, fmt.Errorf("%s cannot exceed %d", name, maxValue)
	}

	return value, nil
}

// handleError maps service errors onto HTTP responses.
func (h *Handler) handleError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, queue.ErrInvalidRequest),
		errors.Is(err, queue.ErrInvalidFormat),
		errors.Is(err, queue.ErrInvalidDuration),
		errors.Is(err, ranking.ErrInvalidResult):
		h.errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, queue.ErrEntryNotFound),
		errors.Is(err, matchmaking.ErrCompetitionNotFound):
		h.errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrEntryNotMatched),
		errors.Is(err, matchmaking.ErrPassInProgress),
		errors.Is(err, ranking.ErrResultAlreadyRecorded):
		h.errorResponse(c, http.StatusConflict, err.Error())
	default:
		h.log.Error().
			Err(err).
			Str("path", c.FullPath()).
			Str("user_id", c.GetString(userIDKey)).
			Msg(message)
		h.errorResponse(c, http.StatusInternalServerError, message)
	}
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
