package federation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/vdir/internal/logging"
)

// releaseScript deletes a lock key only while it still holds the token of
// the releasing owner.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendScript resets the expiry of a lock key, in milliseconds, only while
// it still holds the token of the owner.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocks is a Locker shared by every process using the same Redis
// database. Keys expire after TTL so that a crashed owner cannot hold a
// target forever; a live owner extends its keys every TTL/3 until it
// unlocks.
type RedisLocks struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger logging.Logger
}

var _ Locker = (*RedisLocks)(nil)

// NewRedisLocks creates a Redis backed locker. Keys are prefix + target
// name. If a key cannot be extended, because Redis is unreachable for longer
// than the TTL or the key was taken over, the loss is logged as an error and
// the run holding it continues without exclusivity.
func NewRedisLocks(client redis.UniversalClient, prefix string, ttl time.Duration, logger logging.Logger) *RedisLocks {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RedisLocks{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  200 * time.Millisecond,
		logger: logger,
	}
}

// Lock implements Locker. It polls until every key is set or ctx ends.
func (l *RedisLocks) Lock(ctx context.Context, names []string) (func(), error) {
	token := uuid.NewString()
	var held []string
	release := func() {
		// The caller's context may be done already.
		ctx := context.Background()
		for i := len(held) - 1; i >= 0; i-- {
			_ = releaseScript.Run(ctx, l.client, []string{held[i]}, token).Err()
		}
	}

	for _, name := range uniqueSorted(names) {
		key := l.prefix + name
		for {
			ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
			if err != nil {
				release()
				return nil, fmt.Errorf("redis lock %s: %w", key, err)
			}
			if ok {
				held = append(held, key)
				break
			}
			select {
			case <-time.After(l.retry):
			case <-ctx.Done():
				release()
				return nil, ctx.Err()
			}
		}
	}

	renewCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.renew(renewCtx, held, token)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			<-done
			release()
		})
	}, nil
}

// renew extends the held keys until ctx ends. A key reported lost is not
// extended again.
func (l *RedisLocks) renew(ctx context.Context, keys []string, token string) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	ttl := strconv.FormatInt(l.ttl.Milliseconds(), 10)
	lost := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, key := range keys {
			if lost[key] {
				continue
			}
			n, err := extendScript.Run(ctx, l.client, []string{key}, token, ttl).Int()
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				l.logger.Warn("redis lock not extended", "key", key, "error", err)
			case n == 0:
				lost[key] = true
				l.logger.Error("redis lock lost", "key", key)
			}
		}
	}
}
