package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dim_chat/internal/model"
	"dim_chat/internal/service/redis"
)

type (
	// Queue holds frames for receivers that are offline.
	Queue interface {
		Push(ctx context.Context, receiver string, payloads ...[]byte) error
		// Drain returns and removes every queued frame, oldest first.
		Drain(ctx context.Context, receiver string) ([]*model.QueuedMessage, error)
	}

	RedisQueue struct {
		redisService *redis.RedisService
	}
)

func NewRedisQueue(redisSvc *redis.RedisService) *RedisQueue {
	return &RedisQueue{redisService: redisSvc}
}

func queueKey(receiver string) string {
	return fmt.Sprintf("to: %s", receiver)
}

func (q *RedisQueue) Drain(ctx context.Context, receiver string) ([]*model.QueuedMessage, error) {
	key := queueKey(receiver)
	vals, err := q.redisService.LRange(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	if err := q.redisService.Del(ctx, key); err != nil {
		return nil, err
	}

	res := make([]*model.QueuedMessage, 0, len(vals))
	for _, v := range vals {
		var m model.QueuedMessage
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, err
		}
		res = append(res, &m)
	}
	return res, nil
}

func (q *RedisQueue) Push(ctx context.Context, receiver string, payloads ...[]byte) error {
	now := time.Now()
	vals := make([]any, 0, len(payloads))
	for _, p := range payloads {
		data, err := json.Marshal(&model.QueuedMessage{Receiver: receiver, Payload: p, QueuedAt: now})
		if err != nil {
			return err
		}
		vals = append(vals, data)
	}
	return q.redisService.RPush(ctx, queueKey(receiver), vals...)
}
