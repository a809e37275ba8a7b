package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashureev/paradox-gate/internal/domain"
)

const sessionKeyPrefix = "session:"

// putScript performs the version check and write atomically on the
// server. The base version travels in ARGV[2]; the document in ARGV[1]
// already carries the incremented version.
var putScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local doc = cjson.decode(cur)
  if tonumber(doc['version']) ~= tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// Redis is the durable session backend.
type Redis struct {
	client *redis.Client
}

// NewRedis connects a Redis-backed store using a redis:// URL.
func NewRedis(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opt)}, nil
}

// Ping verifies backend connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Put writes the session with its TTL, atomically checking the
// optimistic version on the server.
func (r *Redis) Put(ctx context.Context, s *domain.Session) error {
	ttl := time.Until(s.Expiry)
	if ttl <= 0 {
		// Already expired; nothing durable to keep.
		return r.Delete(ctx, s.Token)
	}

	next := *s
	next.Version = s.Version + 1
	doc, err := encodeSession(&next)
	if err != nil {
		return err
	}

	res, err := putScript.Run(ctx, r.client,
		[]string{sessionKeyPrefix + s.Token},
		doc, s.Version, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	if res == 0 {
		return ErrVersionConflict
	}
	s.Version = next.Version
	return nil
}

// Get returns the session for token, or (nil, nil) when absent.
func (r *Redis) Get(ctx context.Context, token string) (*domain.Session, error) {
	doc, err := r.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeSession(doc)
}

// Delete removes the session for token.
func (r *Redis) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Scan visits every live session using cursor-based SCAN so the server
// is never blocked. Corrupt or vanished entries are logged and skipped.
func (r *Redis) Scan(ctx context.Context, fn func(*domain.Session) bool) error {
	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		doc, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis scan get: %w", err)
		}
		s, err := decodeSession(doc)
		if err != nil {
			slog.Error("Skipping corrupt session entry", "key", key, "error", err)
			continue
		}
		if !fn(s) {
			return nil
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}
