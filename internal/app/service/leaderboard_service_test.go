package service

import (
	"context"
	"testing"
	"time"

	"ctf_arena/internal/domain/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankEntries(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []model.LeaderboardEntry{
		{ID: "late", Points: 100, UpdatedAt: base.Add(time.Hour)},
		{ID: "top", Points: 250, UpdatedAt: base},
		{ID: "early", Points: 100, UpdatedAt: base},
		{ID: "last", Points: 10, UpdatedAt: base},
	}

	RankEntries(entries)

	require.Len(t, entries, 4)
	assert.Equal(t, "top", entries[0].ID)
	// Equal points: whoever reached the score first ranks higher.
	assert.Equal(t, "early", entries[1].ID)
	assert.Equal(t, "late", entries[2].ID)
	assert.Equal(t, "last", entries[3].ID)

	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
	}
}

func TestRankEntries_Empty(t *testing.T) {
	var entries []model.LeaderboardEntry
	RankEntries(entries)
	assert.Empty(t, entries)
}

func newCachedLeaderboard(t *testing.T, scores *fakeScoreRepo, ttl time.Duration) (*LeaderboardService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewLeaderboardService(scores, rdb, ttl), mr
}

func TestPracticeLeaderboard_ReadThroughCache(t *testing.T) {
	scores := newFakeScoreRepo()
	scores.practiceBoard = []model.LeaderboardEntry{
		{ID: "u1", Name: "alice", Points: 40},
		{ID: "u2", Name: "bob", Points: 90},
	}
	svc, _ := newCachedLeaderboard(t, scores, time.Minute)

	entries, err := svc.Practice(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[0].Name)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 1, scores.boardReads)

	// Second read is served from Redis.
	entries, err = svc.Practice(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, scores.boardReads)

	// Invalidation forces the next read back to the database.
	svc.InvalidatePractice(context.Background())
	_, err = svc.Practice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, scores.boardReads)
}

func TestTournamentLeaderboard_KeyedByTournament(t *testing.T) {
	scores := newFakeScoreRepo()
	scores.teamBoard = []model.LeaderboardEntry{{ID: "team1", Name: "alpha", Points: 70}}
	svc, mr := newCachedLeaderboard(t, scores, time.Minute)

	entries, err := svc.TournamentTeams(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Rank)
	assert.True(t, mr.Exists("lb:tournament:t1"))

	// Invalidating another tournament leaves this cache entry alone.
	svc.InvalidateTournament(context.Background(), "t2")
	assert.True(t, mr.Exists("lb:tournament:t1"))
	svc.InvalidateTournament(context.Background(), "t1")
	assert.False(t, mr.Exists("lb:tournament:t1"))
}

func TestLeaderboard_WorksWithoutRedis(t *testing.T) {
	scores := newFakeScoreRepo()
	scores.practiceBoard = []model.LeaderboardEntry{{ID: "u1", Name: "alice", Points: 40}}
	svc := NewLeaderboardService(scores, nil, 0)

	entries, err := svc.Practice(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	svc.InvalidatePractice(context.Background()) // must not panic
}
