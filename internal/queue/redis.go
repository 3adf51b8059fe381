package queue

import (
	"context"
	"fmt"
	"time"

	"mercari/monitor/internal/config"
	"mercari/monitor/internal/domain/task"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Queue parks work on redis streams. The monitor uses it for keyword
// sweeps that exhausted their in-process retry budget: a worker claims
// them later instead of losing the keyword for the run.
type Queue interface {
	AddTask(ctx context.Context, task task.Task) (string, error)
	GetTask(ctx context.Context, group, consumer, stream string) (*redis.XMessage, error)
	AckTask(ctx context.Context, stream, group, msgID string) error
	AutoClaim(ctx context.Context, group, consumer, stream string, minIdleTime time.Duration) ([]redis.XMessage, error)
}

const StreamPrefix = "mercari:stream:"

type RedisQueue struct {
	redisClient *redis.Client
	groupName   string
}

func NewRedisQueue(redisClient *redis.Client, cfg config.RedisConfig) (Queue, error) {
	q := &RedisQueue{
		redisClient: redisClient,
		groupName:   cfg.ConsumerGroup,
	}

	if err := q.ensureStream(context.Background(), StreamPrefix+"KeywordRetryTask"); err != nil {
		return nil, fmt.Errorf("failed to prepare retry stream: %w", err)
	}

	return q, nil
}

func (q *RedisQueue) AddTask(ctx context.Context, t task.Task) (string, error) {
	streamName := StreamPrefix + t.TaskType()

	taskValue, err := t.TaskValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	messageID, err := q.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]interface{}{
			"task_type": t.TaskType(),
			"task_data": string(taskValue),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add task to stream %s: %w", streamName, err)
	}

	log.Debugf("Added %s to %s with message ID %s", t.TaskType(), streamName, messageID)
	return messageID, nil
}

func (q *RedisQueue) GetTask(ctx context.Context, group, consumer, stream string) (*redis.XMessage, error) {
	result, err := q.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    5 * time.Second,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream %s: %w", stream, err)
	}

	if len(result) == 0 || len(result[0].Messages) == 0 {
		return nil, nil
	}

	return &result[0].Messages[0], nil
}

func (q *RedisQueue) AckTask(ctx context.Context, stream, group, msgID string) error {
	return q.redisClient.XAck(ctx, stream, group, msgID).Err()
}

func (q *RedisQueue) AutoClaim(
	ctx context.Context,
	group,
	consumer,
	stream string,
	minIdleTime time.Duration,
) ([]redis.XMessage, error) {
	result, _, err := q.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdleTime,
		Start:    "0-0",
		Count:    1,
	}).Result()

	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to claim messages from stream %s: %w", stream, err)
	}

	return result, nil
}

// ensureStream creates the stream and consumer group upfront so workers
// can block on it immediately.
func (q *RedisQueue) ensureStream(ctx context.Context, streamName string) error {
	dummyID, err := q.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]interface{}{"init": "dummy"},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", streamName, err)
	}

	err = q.redisClient.XGroupCreateMkStream(ctx, streamName, q.groupName, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group for %s: %w", streamName, err)
	}

	if err := q.redisClient.XDel(ctx, streamName, dummyID).Err(); err != nil {
		log.Warnf("⚠️ Failed to delete init entry from %s: %v", streamName, err)
	}

	log.Infof("✅ Stream %s and consumer group %s ready", streamName, q.groupName)
	return nil
}
