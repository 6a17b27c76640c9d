// Package leaderboard keeps seasonal win/loss points in a redis sorted
// set. Points are advisory display state, not part of the ledger; a lost
// update here never blocks match resolution.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	winPoints  = 3
	lossPoints = -1
)

type Entry struct {
	UserID int   `json:"user_id"`
	Points int64 `json:"points"`
}

type Leaderboard interface {
	RecordResult(ctx context.Context, winnerID int, loserID *int) error
	Top(ctx context.Context, n int64) ([]Entry, error)
	PointsOf(ctx context.Context, userID int) (int64, error)
}

type redisLeaderboard struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) (Leaderboard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &redisLeaderboard{client: client}, nil
}

func seasonKey() string {
	year, week := time.Now().UTC().ISOWeek()
	return fmt.Sprintf("leaderboard:%d-W%02d", year, week)
}

func memberKey(userID int) string {
	return fmt.Sprintf("user:%d", userID)
}

func (l *redisLeaderboard) RecordResult(ctx context.Context, winnerID int, loserID *int) error {
	key := seasonKey()
	if err := l.client.ZIncrBy(ctx, key, winPoints, memberKey(winnerID)).Err(); err != nil {
		return fmt.Errorf("failed to record win for user %d: %w", winnerID, err)
	}
	if loserID != nil {
		if err := l.client.ZIncrBy(ctx, key, lossPoints, memberKey(*loserID)).Err(); err != nil {
			return fmt.Errorf("failed to record loss for user %d: %w", *loserID, err)
		}
	}
	return nil
}

func (l *redisLeaderboard) Top(ctx context.Context, n int64) ([]Entry, error) {
	results, err := l.client.ZRevRangeWithScores(ctx, seasonKey(), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		var userID int
		if _, err := fmt.Sscanf(member, "user:%d", &userID); err != nil {
			continue
		}
		entries = append(entries, Entry{UserID: userID, Points: int64(z.Score)})
	}
	return entries, nil
}

func (l *redisLeaderboard) PointsOf(ctx context.Context, userID int) (int64, error) {
	score, err := l.client.ZScore(ctx, seasonKey(), memberKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read points for user %d: %w", userID, err)
	}
	return int64(score), nil
}
