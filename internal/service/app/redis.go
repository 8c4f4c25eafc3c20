package app

import (
	"context"
	"fmt"
	"time"

	"dim_chat/internal/service/redis"
)

// keyStore persists one user's cipher-key table as a Redis hash.
type keyStore struct {
	redisService *redis.RedisService
	key          string
	ttl          time.Duration
}

func newKeyStore(redisSvc *redis.RedisService, user string, ttl time.Duration) *keyStore {
	return &keyStore{
		redisService: redisSvc,
		key:          fmt.Sprintf("cipher keys of: %s", user),
		ttl:          ttl,
	}
}

func (s *keyStore) LoadCipherKeys(ctx context.Context) (map[string][]byte, error) {
	vals, err := s.redisService.HGetAll(ctx, s.key)
	if err != nil {
		return nil, err
	}
	res := make(map[string][]byte, len(vals))
	for k, v := range vals {
		res[k] = []byte(v)
	}
	return res, nil
}

func (s *keyStore) SaveCipherKeys(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	vals := make(map[string]any, len(entries))
	for k, v := range entries {
		vals[k] = string(v)
	}
	if err := s.redisService.HSet(ctx, s.key, vals); err != nil {
		return err
	}
	return s.redisService.Expire(ctx, s.key, s.ttl)
}
