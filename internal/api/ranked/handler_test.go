//nolint:noctx // Test file uses http.NewRequest for simplicity
package ranked

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/ranked-matchmaking/internal/models"
	"github.com/aimd54/ranked-matchmaking/internal/service/leaderboard"
	"github.com/aimd54/ranked-matchmaking/internal/service/matchmaking"
	"github.com/aimd54/ranked-matchmaking/internal/service/queue"
	"github.com/aimd54/ranked-matchmaking/internal/service/ranking"
	"github.com/aimd54/ranked-matchmaking/internal/service/xp"
	"github.com/aimd54/ranked-matchmaking/pkg/logger"
	"github.com/aimd54/ranked-matchmaking/test/mocks"
)

const testAdminToken = "s3cret"

type testDeps struct {
	queue       *mocks.MockQueueService
	matchmaking *mocks.MockMatchmakingService
	ranking     *mocks.MockRankingService
	leaderboard *mocks.MockLeaderboardService
}

// Test Setup
func setupRouter() (*gin.Engine, *testDeps) {
	gin.SetMode(gin.TestMode)

	deps := &testDeps{
		queue:       &mocks.MockQueueService{},
		matchmaking: &mocks.MockMatchmakingService{},
		ranking:     &mocks.MockRankingService{},
		leaderboard: &mocks.MockLeaderboardService{},
	}
	handler := NewHandlerWithInterfaces(deps.queue, deps.matchmaking, deps.ranking, deps.leaderboard, Options{
		AdminToken:              testAdminToken,
		DefaultSeasonID:         1,
		RecentTransactionsLimit: 10,
	}, logger.NewNop())

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, deps
}

func doRequest(router *gin.Engine, method, path, userID, body string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

// Tests

func TestJoinQueue_UsesCurrentRanking(t *testing.T) {
	router, deps := setupRouter()

	deps.ranking.GetOrCreateUserRankingFunc = func(_ context.Context, userID string) (*models.UserRanking, error) {
		return &models.UserRanking{UserID: userID, CurrentXP: 1050, CurrentRank: "Silver I"}, nil
	}
	var got queue.JoinRequest
	deps.queue.JoinQueueFunc = func(_ context.Context, req queue.JoinRequest) (*models.QueueEntry, bool, error) {
		got = req
		return &models.QueueEntry{ID: "entry-1", UserID: req.UserID, Status: models.QueueStatusSearching}, false, nil
	}

	w := doRequest(router, http.MethodPost, "/api/v1/ranked/queue", "alice", `{"format":"1v1","duration_hours":24}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, queue.JoinRequest{UserID: "alice", XP: 1050, Rank: "Silver I", Format: "1v1", DurationHours: 24}, got)

	response := decode(t, w)
	assert.Equal(t, false, response["already_queued"])
	assert.Equal(t, "entry-1", response["entry"].(map[string]interface{})["id"])
}

func TestJoinQueue_ExistingEntry(t *testing.T) {
	router, deps := setupRouter()
	deps.queue.JoinQueueFunc = func(_ context.Context, req queue.JoinRequest) (*models.QueueEntry, bool, error) {
		return &models.QueueEntry{ID: "entry-1", UserID: req.UserID, Status: models.QueueStatusMatchFound}, true, nil
	}

	w := doRequest(router, http.MethodPost, "/api/v1/ranked/queue", "alice", `{"format":"1v1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["already_queued"])
}

func TestJoinQueue_Errors(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		body       string
		joinErr    error
		wantStatus int
		wantError  string
	}{
		{name: "missing user header", body: `{"format":"1v1"}`, wantStatus: http.StatusUnauthorized, wantError: "X-User-ID"},
		{name: "malformed body", userID: "alice", body: `{"format":`, wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
		{name: "invalid format", userID: "alice", body: `{"format":"5v5"}`, joinErr: fmt.Errorf("%w: \"5v5\"", queue.ErrInvalidFormat), wantStatus: http.StatusBadRequest, wantError: "invalid match format"},
		{name: "invalid duration", userID: "alice", body: `{"format":"1v1","duration_hours":999}`, joinErr: queue.ErrInvalidDuration, wantStatus: http.StatusBadRequest, wantError: "duration"},
		{name: "store failure", userID: "alice", body: `{"format":"1v1"}`, joinErr: errors.New("connection reset"), wantStatus: http.StatusInternalServerError, wantError: "Failed to join queue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, deps := setupRouter()
			deps.queue.JoinQueueFunc = func(_ context.Context, req queue.JoinRequest) (*models.QueueEntry, bool, error) {
				if tt.joinErr != nil {
					return nil, false, tt.joinErr
				}
				return &models.QueueEntry{UserID: req.UserID}, false, nil
			}

			w := doRequest(router, http.MethodPost, "/api/v1/ranked/queue", tt.userID, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			response := decode(t, w)
			assert.Contains(t, response["error"], tt.wantError)
			assert.NotEmpty(t, response["timestamp"])
			assert.NotContains(t, response["error"], "connection reset", "internal details are not leaked")
		})
	}
}

func TestLeaveQueue(t *testing.T) {
	router, deps := setupRouter()
	var left string
	deps.queue.LeaveQueueFunc = func(_ context.Context, userID string) error {
		left = userID
		return nil
	}

	w := doRequest(router, http.MethodDelete, "/api/v1/ranked/queue", "alice", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "alice", left)
}

func TestGetQueueStatus(t *testing.T) {
	router, deps := setupRouter()

	w := doRequest(router, http.MethodGet, "/api/v1/ranked/queue", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, false, response["in_queue"])
	assert.Nil(t, response["entry"])

	deps.queue.GetUserQueueEntryFunc = func(_ context.Context, userID string) (*models.QueueEntry, error) {
		return &models.QueueEntry{ID: "entry-1", UserID: userID, Status: models.QueueStatusSearching}, nil
	}
	w = doRequest(router, http.MethodGet, "/api/v1/ranked/queue", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["in_queue"])
}

func TestRespondToMatch(t *testing.T) {
	tests := []struct {
		name       string
		action     string
		err        error
		wantStatus int
		wantState  string
	}{
		{name: "accept", action: "accept", wantStatus: http.StatusOK, wantState: models.QueueStatusAccepted},
		{name: "decline", action: "decline", wantStatus: http.StatusOK, wantState: models.QueueStatusDeclined},
		{name: "not owned", action: "accept", err: queue.ErrEntryNotFound, wantStatus: http.StatusNotFound},
		{name: "no pending match", action: "decline", err: fmt.Errorf("%w: entry is searching", queue.ErrEntryNotMatched), wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, deps := setupRouter()
			if tt.err != nil {
				fail := func(context.Context, string, string) (*models.QueueEntry, error) { return nil, tt.err }
				deps.queue.AcceptMatchFunc = fail
				deps.queue.DeclineMatchFunc = fail
			}

			w := doRequest(router, http.MethodPost, "/api/v1/ranked/queue/entry-1/"+tt.action, "alice", "")

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantState != "" {
				entry := decode(t, w)["entry"].(map[string]interface{})
				assert.Equal(t, tt.wantState, entry["status"])
				assert.Equal(t, "alice", entry["user_id"])
			}
		})
	}
}

func TestGetRanking(t *testing.T) {
	router, _ := setupRouter()

	w := doRequest(router, http.MethodGet, "/api/v1/ranked/ranking", "alice", "")

	assert.Equal(t, http.StatusOK, w.Code)
	r := decode(t, w)["ranking"].(map[string]interface{})
	assert.Equal(t, "alice", r["user_id"])
	assert.Equal(t, "Bronze III", r["current_rank"])
}

func TestGetRankProgress(t *testing.T) {
	router, deps := setupRouter()
	var gotLimit int
	deps.leaderboard.GetRankProgressFunc = func(_ context.Context, userID string, limit int) (*leaderboard.Progress, error) {
		gotLimit = limit
		return &leaderboard.Progress{UserID: userID}, nil
	}

	w := doRequest(router, http.MethodGet, "/api/v1/ranked/ranking/progress", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, gotLimit, "configured default")

	w = doRequest(router, http.MethodGet, "/api/v1/ranked/ranking/progress?limit=5", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, gotLimit)

	w = doRequest(router, http.MethodGet, "/api/v1/ranked/ranking/progress?limit=0", "alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetLeaderboard(t *testing.T) {
	router, deps := setupRouter()
	var season, limit, offset int
	deps.leaderboard.GetGlobalLeaderboardFunc = func(_ context.Context, s, l, o int) (*leaderboard.Page, error) {
		season, limit, offset = s, l, o
		return &leaderboard.Page{SeasonID: s, Entries: []leaderboard.Entry{{Position: o + 1, UserID: "alice"}}, Total: 1, Limit: l, Offset: o}, nil
	}

	w := doRequest(router, http.MethodGet, "/api/v1/ranked/leaderboard", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{1, leaderboard.DefaultLimit, 0}, []int{season, limit, offset})

	w = doRequest(router, http.MethodGet, "/api/v1/ranked/leaderboard?season_id=3&limit=20&offset=40", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{3, 20, 40}, []int{season, limit, offset})
	page := decode(t, w)["leaderboard"].(map[string]interface{})
	assert.Equal(t, float64(41), page["entries"].([]interface{})[0].(map[string]interface{})["position"])
}

func TestGetLeaderboard_InvalidParams(t *testing.T) {
	router, _ := setupRouter()

	for _, query := range []string{"limit=abc", "limit=1001", "offset=-1", "season_id=0"} {
		w := doRequest(router, http.MethodGet, "/api/v1/ranked/leaderboard?"+query, "", "")
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestGetRanks(t *testing.T) {
	router, _ := setupRouter()

	w := doRequest(router, http.MethodGet, "/api/v1/ranked/ranks", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	ranks := decode(t, w)["ranks"].([]interface{})
	require.Len(t, ranks, 16)
	first := ranks[0].(map[string]interface{})
	assert.Equal(t, "Bronze III", first["tier"])
	assert.Equal(t, float64(1), first["tier_number"])
	assert.Equal(t, float64(0), first["min_xp"])
	last := ranks[15].(map[string]interface{})
	assert.Equal(t, "Champion", last["tier"])
	assert.Nil(t, last["max_xp"])
}

func TestGetCompetition(t *testing.T) {
	router, deps := setupRouter()
	deps.matchmaking.GetCompetitionFunc = func(_ context.Context, id string) (*models.Competition, error) {
		if id == "comp-1" {
			return &models.Competition{ID: id, AverageXP: 1025}, nil
		}
		return nil, matchmaking.ErrCompetitionNotFound
	}

	w := doRequest(router, http.MethodGet, "/api/v1/ranked/competitions/comp-1", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1025), decode(t, w)["competition"].(map[string]interface{})["average_xp"])

	w = doRequest(router, http.MethodGet, "/api/v1/ranked/competitions/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	router, deps := setupRouter()
	deps.matchmaking.RunPassFunc = func(_ context.Context, format string) ([]models.Competition, error) {
		switch format {
		case models.Format1v1:
			return []models.Competition{{ID: "comp-1"}}, nil
		case models.Format2v2:
			return nil, fmt.Errorf("%w: %s", matchmaking.ErrPassInProgress, format)
		default:
			return nil, fmt.Errorf("%w: %q", queue.ErrInvalidFormat, format)
		}
	}
	deps.queue.CleanExpiredEntriesFunc = func(context.Context) (int64, error) { return 3, nil }

	admin := func(method, path, token string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest(method, path, http.NoBody)
		if token != "" {
			req.Header.Set(HeaderAdminToken, token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := admin(http.MethodPost, "/api/v1/ranked/admin/matchmaking/1v1/run", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = admin(http.MethodPost, "/api/v1/ranked/admin/matchmaking/1v1/run", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = admin(http.MethodPost, "/api/v1/ranked/admin/matchmaking/1v1/run", testAdminToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = admin(http.MethodPost, "/api/v1/ranked/admin/matchmaking/2v2/run", testAdminToken)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = admin(http.MethodPost, "/api/v1/ranked/admin/matchmaking/5v5/run", testAdminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = admin(http.MethodPost, "/api/v1/ranked/admin/queue/cleanup", testAdminToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["expired"])
}

func doAdminRequest(router *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(HeaderAdminToken, token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRecordActivity(t *testing.T) {
	router, deps := setupRouter()
	calls := 0
	deps.ranking.RecordDailyActivityFunc = func(_ context.Context, userID string) (*models.UserRanking, bool, error) {
		calls++
		assert.Equal(t, "alice", userID)
		return &models.UserRanking{UserID: userID, CurrentXP: 2, DaysActiveThisWeek: 1}, calls == 1, nil
	}

	w := doRequest(router, http.MethodPost, "/api/v1/ranked/ranking/activity", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/ranked/ranking/activity", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, true, response["awarded"])
	assert.Equal(t, float64(2), response["ranking"].(map[string]interface{})["current_xp"])

	w = doRequest(router, http.MethodPost, "/api/v1/ranked/ranking/activity", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["awarded"])
}

func TestGetXPHistory(t *testing.T) {
	router, deps := setupRouter()
	var gotLimit int
	deps.ranking.GetXPHistoryFunc = func(_ context.Context, userID string, limit int) ([]models.XPTransaction, error) {
		gotLimit = limit
		return []models.XPTransaction{
			{UserID: userID, XPChange: 40, Reason: models.ReasonCompetitionWin},
			{UserID: userID, XPChange: 2, Reason: models.ReasonDailyActivity},
		}, nil
	}

	w := doRequest(router, http.MethodGet, "/api/v1/ranked/xp/history", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ranking.DefaultHistoryLimit, gotLimit)
	response := decode(t, w)
	assert.Equal(t, float64(2), response["count"])
	first := response["transactions"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, models.ReasonCompetitionWin, first["reason"])

	w = doRequest(router, http.MethodGet, "/api/v1/ranked/xp/history?limit=5", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, gotLimit)

	for _, limit := range []string{"0", "101", "abc"} {
		w = doRequest(router, http.MethodGet, "/api/v1/ranked/xp/history?limit="+limit, "alice", "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
}

func TestRecordResults(t *testing.T) {
	competitions := map[string]*models.Competition{
		"duel": {
			ID:                  "duel",
			CompetitionType:     models.Format1v1,
			IsRanked:            true,
			CurrentParticipants: 2,
			Participants:        []models.CompetitionParticipant{{UserID: "alice"}, {UserID: "bob"}},
		},
		"royale": {
			ID:                  "royale",
			CompetitionType:     models.FormatBattleRoyal,
			IsRanked:            true,
			CurrentParticipants: 3,
			Participants: []models.CompetitionParticipant{
				{UserID: "alice"}, {UserID: "bob"}, {UserID: "carol"},
			},
		},
		"casual": {
			ID:                  "casual",
			CompetitionType:     models.Format1v1,
			CurrentParticipants: 2,
			Participants:        []models.CompetitionParticipant{{UserID: "alice"}, {UserID: "bob"}},
		},
	}

	setup := func() (*gin.Engine, *testDeps) {
		router, deps := setupRouter()
		deps.matchmaking.GetCompetitionFunc = func(_ context.Context, id string) (*models.Competition, error) {
			if c, ok := competitions[id]; ok {
				return c, nil
			}
			return nil, matchmaking.ErrCompetitionNotFound
		}
		return router, deps
	}

	duelBody := `{"results":[{"user_id":"alice","won":true,"user_pnl":12.5,"average_pnl":3},{"user_id":"bob","won":false}]}`

	t.Run("requires admin token", func(t *testing.T) {
		router, _ := setup()
		w := doAdminRequest(router, http.MethodPost, "/api/v1/ranked/admin/competitions/duel/results", "", duelBody)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown competition", func(t *testing.T) {
		router, _ := setup()
		w := doAdminRequest(router, http.MethodPost, "/api/v1/ranked/admin/competitions/missing/results", testAdminToken, duelBody)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("rejects bad submissions before writing", func(t *testing.T) {
		router, deps := setup()
		deps.ranking.RecordCompetitionResultFunc = func(context.Context, ranking.CompetitionResult) (*models.UserRanking, *models.XPTransaction, xp.Breakdown, error) {
			t.Fatal("nothing should be settled")
			return nil, nil, xp.Breakdown{}, nil
		}

		bodies := map[string]string{
			"malformed":       `{"results":`,
			"empty":           `{"results":[]}`,
			"non-participant": `{"results":[{"user_id":"mallory","won":true}]}`,
			"duplicate":       `{"results":[{"user_id":"alice","won":true},{"user_id":"alice","won":true}]}`,
			"winner mismatch": `{"results":[{"user_id":"alice","placement":2,"won":true}]}`,
		}
		for name, body := range bodies {
			w := doAdminRequest(router, http.MethodPost, "/api/v1/ranked/admin/competitions/duel/results", testAdminToken, body)
			assert.Equal(t, http.StatusBadRequest, w.Code, name)
		}

		w := doAdminRequest(router, http.MethodPost, "/api/v1/ranked/admin/competitions/royale/results", testAdminToken,
			`{"results":[{"user_id":"alice","placement":1,"won":true},{"user_id":"bob","won":false}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("settles ranked competition", func(t *testing.T) {
		router, deps := setup()
		var got []ranking.CompetitionResult
		deps.ranking.RecordCompetitionResultFunc = func(_ context.Context, result ranking.CompetitionResult) (*models.UserRanking, *models.XPTransaction, xp.Breakdown, error) {
			got = append(got, result)
			if result.UserID == "bob" {
				return nil, nil, xp.Breakdown{}, fmt.Errorf("%w: %s", ranking.ErrResultAlreadyRecorded, result.UserID)
			}
			return &models.UserRanking{UserID: result.UserID, CurrentXP: 50},
				&models.XPTransaction{UserID: result.UserID, XPChange: 50, Reason: models.ReasonCompetitionWin},
				xp.Breakdown{BaseXP: 50, PerformanceMultiplier: 1, TotalXP: 50}, nil
		}

		w := doAdminRequest(router, http.MethodPost, "/api/v1/ranked/admin/competitions/duel/results", testAdminToken, duelBody)
		require.Equal(t, http.StatusOK, w.Code)

		require.Len(t, got, 2)
		assert.Equal(t, 1, got[0].Placement)
		assert.Equal(t, 2, got[1].Placement)
		assert.Equal(t, models.Format1v1, got[0].Format)
		assert.Equal(t, "duel", got[0].CompetitionID)
		assert.Equal(t, 2, got[0].TotalParticipants)
		assert.InDelta(t, 12.5, got[0].UserPnL, 0.001)

		response := decode(t, w)
		assert.Equal(t, "duel", response["competition_id"])
		results := response["results"].([]interface{})
		require.Len(t, results, 2)
		alice := results[0].(map[string]interface{})
		assert.Equal(t, "recorded", alice["status"])
		assert.Equal(t, float64(50), alice["transaction"].(map[string]interface{})["xp_change"])
		bob := results[1].(map[string]interface{})
		assert.Equal(t, "already_recorded", bob["status"])
		assert.NotContains(t, bob, "transaction")
	})

	t.Run("ledger failure aborts", func(t *testing.T) {
		router, deps := setup()
		deps.ranking.RecordCompetitionResultFunc = func(context.Context, ranking.CompetitionResult) (*models.UserRanking, *models.XPTransaction, xp.Breakdown, error) {
			return nil, nil, xp.Breakdown{}, errors.New("connection reset")
		}
		w := doAdminRequest(router, http.MethodPost, "/api/v1/ranked/admin/competitions/duel/results", testAdminToken, duelBody)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("unranked competition only updates stats", func(t *testing.T) {
		router, deps := setup()
		deps.ranking.RecordCompetitionResultFunc = func(context.Context, ranking.CompetitionResult) (*models.UserRanking, *models.XPTransaction, xp.Breakdown, error) {
			t.Fatal("unranked results must not touch XP")
			return nil, nil, xp.Breakdown{}, nil
		}
		wins := map[string]bool{}
		deps.ranking.UpdateCompetitionStatsFunc = func(_ context.Context, userID string, won bool) (*models.UserRanking, error) {
			wins[userID] = won
			return &models.UserRanking{UserID: userID, TotalCompetitions: 1}, nil
		}

		w := doAdminRequest(router, http.MethodPost, "/api/v1/ranked/admin/competitions/casual/results", testAdminToken, duelBody)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]bool{"alice": true, "bob": false}, wins)
	})
}

func TestAdjustXP(t *testing.T) {
	router, deps := setupRouter()
	var got ranking.XPChange
	deps.ranking.UpdateUserXPFunc = func(_ context.Context, change ranking.XPChange) (*models.UserRanking, *models.XPTransaction, error) {
		got = change
		return &models.UserRanking{UserID: change.UserID, CurrentXP: 75},
			&models.XPTransaction{UserID: change.UserID, XPChange: change.Delta, Reason: change.Reason}, nil
	}

	w := doAdminRequest(router, http.MethodPost, "/api/v1/ranked/admin/rankings/alice/adjust", "wrong", `{"delta":25}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doAdminRequest(router, http.MethodPost, "/api/v1/ranked/admin/rankings/alice/adjust", testAdminToken, `{"delta":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doAdminRequest(router, http.MethodPost, "/api/v1/ranked/admin/rankings/alice/adjust", testAdminToken, `{"delta":25,"note":"support ticket"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, 25, got.Delta)
	assert.Equal(t, models.ReasonManualAdjustment, got.Reason)
	assert.Equal(t, "support ticket", got.Details["note"])
	assert.Equal(t, float64(75), decode(t, w)["ranking"].(map[string]interface{})["current_xp"])
}
