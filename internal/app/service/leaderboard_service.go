package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"ctf_arena/internal/domain/model"
	"ctf_arena/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

const (
	practiceLeaderboardKey      = "lb:practice"
	tournamentLeaderboardPrefix = "lb:tournament:"
)

// LeaderboardService ranks point totals. Reads go through Redis with a short
// TTL; scoring paths invalidate the affected key so a fresh total is never
// more than one cache miss away.
type LeaderboardService struct {
	scoreRepo repository.ScoreRepository
	rdb       *redis.Client
	ttl       time.Duration
}

func NewLeaderboardService(scoreRepo repository.ScoreRepository, rdb *redis.Client, ttl time.Duration) *LeaderboardService {
	return &LeaderboardService{scoreRepo: scoreRepo, rdb: rdb, ttl: ttl}
}

func (s *LeaderboardService) Practice(ctx context.Context) ([]model.LeaderboardEntry, error) {
	if cached, ok := s.fromCache(ctx, practiceLeaderboardKey); ok {
		return cached, nil
	}

	entries, err := s.scoreRepo.ListPracticeLeaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load practice leaderboard: %w", err)
	}
	RankEntries(entries)

	s.toCache(ctx, practiceLeaderboardKey, entries)
	return entries, nil
}

func (s *LeaderboardService) TournamentTeams(ctx context.Context, tournamentID string) ([]model.LeaderboardEntry, error) {
	key := tournamentLeaderboardPrefix + tournamentID
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	entries, err := s.scoreRepo.ListTeamLeaderboard(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load team leaderboard: %w", err)
	}
	RankEntries(entries)

	s.toCache(ctx, key, entries)
	return entries, nil
}

func (s *LeaderboardService) InvalidatePractice(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, practiceLeaderboardKey).Err(); err != nil {
		log.Printf("failed to invalidate practice leaderboard cache: %v", err)
	}
}

func (s *LeaderboardService) InvalidateTournament(ctx context.Context, tournamentID string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, tournamentLeaderboardPrefix+tournamentID).Err(); err != nil {
		log.Printf("failed to invalidate tournament leaderboard cache: %v", err)
	}
}

func (s *LeaderboardService) fromCache(ctx context.Context, key string) ([]model.LeaderboardEntry, bool) {
	if s.rdb == nil {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("leaderboard cache read failed: %v", err)
		}
		return nil, false
	}
	var entries []model.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (s *LeaderboardService) toCache(ctx context.Context, key string, entries []model.LeaderboardEntry) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		log.Printf("leaderboard cache write failed: %v", err)
	}
}

// RankEntries sorts by points descending with ties broken by the earlier
// update (first to reach the score ranks higher), then assigns 1-based dense
// ranks from sort position.
func RankEntries(entries []model.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].UpdatedAt.Before(entries[j].UpdatedAt)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
