package ai

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// AnswerCache is the exact-text layer in front of the similarity scan. It
// only ever holds answers that already cleared the frequency gate.
type AnswerCache interface {
	Get(ctx context.Context, question string) (string, bool, error)
	Set(ctx context.Context, question, answer string) error
}

// RedisAnswerCache stores promoted answers under exact:<sha256(question)>.
type RedisAnswerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ AnswerCache = (*RedisAnswerCache)(nil)

func NewRedisAnswerCache(rdb *redis.Client, ttl time.Duration) *RedisAnswerCache {
	return &RedisAnswerCache{rdb: rdb, ttl: ttl}
}

func calcHash(question string) string {
	hash := sha256.Sum256([]byte(question))
	return fmt.Sprintf("%x", hash)
}

func exactKey(question string) string {
	return "exact:" + calcHash(question)
}

func (c *RedisAnswerCache) Get(ctx context.Context, question string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, exactKey(question)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "exact cache get")
	}
	return val, true, nil
}

func (c *RedisAnswerCache) Set(ctx context.Context, question, answer string) error {
	return errors.Wrap(c.rdb.Set(ctx, exactKey(question), answer, c.ttl).Err(), "exact cache set")
}
