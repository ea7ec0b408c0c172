package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// IngestLock is a best-effort single-flight lease keyed by normalized URL.
// It keeps two workers from downloading the same post at the same time;
// the fingerprint unique index remains the hard duplicate guarantee, so a
// lost or expired lease can only cost wasted work, never wrong data.
type IngestLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
	Close() error
}

type ingestLock struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// releaseScript deletes the lease only when the caller still holds it, so
// a worker whose lease expired cannot release a successor's.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewIngestLock(log *logger.Logger) (IngestLock, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &ingestLock{
		log:    log.With("client", "RedisIngestLock"),
		rdb:    rdb,
		prefix: "ingest-lock:",
	}, nil
}

func (l *ingestLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.rdb == nil {
		return "", false, fmt.Errorf("redis ingest lock not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return "", false, fmt.Errorf("lock key required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *ingestLock) Release(ctx context.Context, key, token string) error {
	if l == nil || l.rdb == nil {
		return fmt.Errorf("redis ingest lock not initialized")
	}
	if key == "" || token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{l.prefix + key}, token).Err(); err != nil && err != goredis.Nil {
		return fmt.Errorf("redis lock release: %w", err)
	}
	return nil
}

func (l *ingestLock) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
