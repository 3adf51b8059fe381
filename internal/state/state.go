package state

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// StateManager persists monitor progress across restarts: how many
// sweeps have run and how each keyword has been performing.
type StateManager interface {
	GetCheckCount(ctx context.Context) (int, error)
	IncrCheckCount(ctx context.Context) (int, error)
	RecordKeywordResult(ctx context.Context, keyword string, found int) error
	GetKeywordFound(ctx context.Context, keyword string) (int, error)
}

type redisStateManager struct {
	redisClient *redis.Client
	keyPrefix   string
}

func NewRedisStateManager(redisClient *redis.Client) StateManager {
	return &redisStateManager{
		redisClient: redisClient,
		keyPrefix:   "mercari:monitor:",
	}
}

func (s *redisStateManager) GetCheckCount(ctx context.Context) (int, error) {
	val, err := s.redisClient.Get(ctx, s.keyPrefix+"check_count").Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get check count: %w", err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("failed to parse check count: %w", err)
	}
	return count, nil
}

func (s *redisStateManager) IncrCheckCount(ctx context.Context) (int, error) {
	count, err := s.redisClient.Incr(ctx, s.keyPrefix+"check_count").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment check count: %w", err)
	}
	return int(count), nil
}

func (s *redisStateManager) RecordKeywordResult(ctx context.Context, keyword string, found int) error {
	key := s.keyPrefix + "keyword:" + keyword + ":found"
	if err := s.redisClient.IncrBy(ctx, key, int64(found)).Err(); err != nil {
		return fmt.Errorf("failed to record result for keyword %s: %w", keyword, err)
	}
	return nil
}

func (s *redisStateManager) GetKeywordFound(ctx context.Context, keyword string) (int, error) {
	key := s.keyPrefix + "keyword:" + keyword + ":found"
	val, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get stats for keyword %s: %w", keyword, err)
	}

	found, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("failed to parse stats for keyword %s: %w", keyword, err)
	}
	return found, nil
}
