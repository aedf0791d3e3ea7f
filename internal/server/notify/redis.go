package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the list share e-mails are pushed onto.
const DefaultQueueKey = "clouddrive:mail:share"

const queueCap = 1000

type listPusher interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// RedisDispatcher pushes JSON messages onto a capped redis list for a mail
// worker to pop.
type RedisDispatcher struct {
	rdb listPusher
	key string
}

func NewRedisDispatcher(rdb redis.UniversalClient, key string) *RedisDispatcher {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisDispatcher{rdb: rdb, key: key}
}

func (d *RedisDispatcher) Send(ctx context.Context, msg ShareEmail) error {
	b, err := encode(msg)
	if err != nil {
		return err
	}
	if err := d.rdb.LPush(ctx, d.key, b).Err(); err != nil {
		return fmt.Errorf("redis push: %w", err)
	}
	if err := d.rdb.LTrim(ctx, d.key, 0, queueCap-1).Err(); err != nil {
		return fmt.Errorf("redis trim: %w", err)
	}
	return nil
}

// Close is a no-op; the redis client is shared and closed by its owner.
func (d *RedisDispatcher) Close() error { return nil }
