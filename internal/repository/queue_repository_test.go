package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aimd54/ranked-matchmaking/internal/models"
	"github.com/aimd54/ranked-matchmaking/internal/testutil"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupQueueTestRepo(t *testing.T) (*QueueRepository, *DB) {
	t.Helper()
	db := &DB{testutil.NewSQLiteDB(t)}
	return NewQueueRepository(db), db
}

func newTestEntry(userID, format string, xp int, startedAt time.Time) *models.QueueEntry {
	return &models.QueueEntry{
		UserID:          userID,
		Format:          format,
		DurationHours:   72,
		XP:              xp,
		Rank:            "Silver I",
		XPRangeMin:      max(0, xp-100),
		XPRangeMax:      xp + 100,
		SearchStartedAt: startedAt,
		ExpiresAt:       startedAt.Add(5 * time.Minute),
		Status:          models.QueueStatusSearching,
	}
}

func TestQueueRepository_CreateAndGetActive(t *testing.T) {
	repo, _ := setupQueueTestRepo(t)
	ctx := context.Background()

	entry := newTestEntry("alice", models.Format1v1, 1000, baseTime)
	require.NoError(t, repo.Create(ctx, entry))
	assert.NotEmpty(t, entry.ID)

	active, err := repo.GetActiveByUserID(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, entry.ID, active.ID)

	none, err := repo.GetActiveByUserID(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestQueueRepository_OneActiveEntryPerUser(t *testing.T) {
	repo, _ := setupQueueTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestEntry("alice", models.Format1v1, 1000, baseTime)))

	err := repo.Create(ctx, newTestEntry("alice", models.Format2v2, 1000, baseTime.Add(time.Second)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "expected duplicate key, got %v", err)

	// Once the search is cancelled the slot frees up.
	n, err := repo.CancelSearching(ctx, "alice", baseTime.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, repo.Create(ctx, newTestEntry("alice", models.Format2v2, 1000, baseTime.Add(3*time.Second))))
}

func TestQueueRepository_ListSearching(t *testing.T) {
	repo, _ := setupQueueTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestEntry("late", models.Format1v1, 1000, baseTime.Add(20*time.Second))))
	require.NoError(t, repo.Create(ctx, newTestEntry("early", models.Format1v1, 1000, baseTime)))
	require.NoError(t, repo.Create(ctx, newTestEntry("other-format", models.Format3v3, 1000, baseTime)))
	cancelled := newTestEntry("gone", models.Format1v1, 1000, baseTime)
	require.NoError(t, repo.Create(ctx, cancelled))
	_, err := repo.CancelSearching(ctx, "gone", baseTime)
	require.NoError(t, err)

	entries, err := repo.ListSearching(ctx, models.Format1v1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "early", entries[0].UserID)
	assert.Equal(t, "late", entries[1].UserID)
}

func TestQueueRepository_UpdateSearchRangeIsMonotonic(t *testing.T) {
	repo, _ := setupQueueTestRepo(t)
	ctx := context.Background()

	entry := newTestEntry("alice", models.Format1v1, 1000, baseTime)
	require.NoError(t, repo.Create(ctx, entry))

	widened := *entry
	widened.XPRangeMin, widened.XPRangeMax, widened.SearchExpandedCount = 800, 1200, 1
	ok, err := repo.UpdateSearchRange(ctx, &widened, baseTime.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	// A stale writer computing the same level again is rejected.
	ok, err = repo.UpdateSearchRange(ctx, &widened, baseTime.Add(31*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 800, stored.XPRangeMin)
	assert.Equal(t, 1200, stored.XPRangeMax)
	assert.Equal(t, 1, stored.SearchExpandedCount)
}

func TestQueueRepository_MarkMatchFound(t *testing.T) {
	repo, _ := setupQueueTestRepo(t)
	ctx := context.Background()

	a := newTestEntry("alice", models.Format1v1, 1000, baseTime)
	b := newTestEntry("bob", models.Format1v1, 1050, baseTime)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	require.NoError(t, repo.MarkMatchFound(ctx, []string{a.ID, b.ID}, "comp-1", baseTime.Add(time.Minute)))

	for _, id := range []string{a.ID, b.ID} {
		stored, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusMatchFound, stored.Status)
		require.NotNil(t, stored.CompetitionID)
		assert.Equal(t, "comp-1", *stored.CompetitionID)
		require.NotNil(t, stored.MatchFoundAt)
	}
}

func TestQueueRepository_MarkMatchFoundConflict(t *testing.T) {
	repo, _ := setupQueueTestRepo(t)
	ctx := context.Background()

	a := newTestEntry("alice", models.Format1v1, 1000, baseTime)
	b := newTestEntry("bob", models.Format1v1, 1050, baseTime)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	_, err := repo.CancelSearching(ctx, "bob", baseTime)
	require.NoError(t, err)

	err = repo.MarkMatchFound(ctx, []string{a.ID, b.ID}, "comp-1", baseTime.Add(time.Minute))
	assert.ErrorIs(t, err, ErrClaimConflict)

	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusSearching, stored.Status, "claim must roll back")
	assert.Nil(t, stored.CompetitionID)
}

func TestQueueRepository_TransitionOwned(t *testing.T) {
	repo, _ := setupQueueTestRepo(t)
	ctx := context.Background()

	a := newTestEntry("alice", models.Format1v1, 1000, baseTime)
	b := newTestEntry("bob", models.Format1v1, 1000, baseTime)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.MarkMatchFound(ctx, []string{a.ID, b.ID}, "comp-1", baseTime))

	tests := []struct {
		name   string
		userID string
		want   bool
	}{
		{name: "other user cannot accept", userID: "bob", want: false},
		{name: "owner accepts", userID: "alice", want: true},
		{name: "already accepted", userID: "alice", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := repo.TransitionOwned(ctx, a.ID, tt.userID,
				models.QueueStatusMatchFound, models.QueueStatusAccepted, baseTime.Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusAccepted, stored.Status)
	assert.NotNil(t, stored.MatchAcceptedAt)
}

func TestQueueRepository_ExpireSearching(t *testing.T) {
	repo, _ := setupQueueTestRepo(t)
	ctx := context.Background()

	stale := newTestEntry("stale", models.Format1v1, 1000, baseTime)
	fresh := newTestEntry("fresh", models.Format1v1, 1000, baseTime.Add(10*time.Minute))
	matched := newTestEntry("matched", models.Format1v1, 1000, baseTime)
	matchedPeer := newTestEntry("peer", models.Format1v1, 1000, baseTime)
	for _, e := range []*models.QueueEntry{stale, fresh, matched, matchedPeer} {
		require.NoError(t, repo.Create(ctx, e))
	}
	require.NoError(t, repo.MarkMatchFound(ctx, []string{matched.ID, matchedPeer.ID}, "comp-1", baseTime))

	n, err := repo.ExpireSearching(ctx, baseTime.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusExpired, got.Status)

	got, err = repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusSearching, got.Status)

	got, err = repo.GetByID(ctx, matched.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusMatchFound, got.Status)
}
