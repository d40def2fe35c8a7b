package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
)

const defaultKeyPrefix = "idsrv:revoked:"

// RedisList keeps revocations in Redis. Each entry carries a TTL equal to
// the remaining token lifetime, so Redis expires them on its own.
type RedisList struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// RedisOptions configures NewRedisList.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces the keys. Defaults to "idsrv:revoked:".
	KeyPrefix string
}

func NewRedisList(opts RedisOptions) *RedisList {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisList{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisList) key(jti string) string { return l.prefix + jti }

func (l *RedisList) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		// Already expired; verification rejects it without the list.
		return nil
	}
	// Round up so the entry never disappears before the token expires.
	ttl = ttl.Truncate(time.Second) + time.Second

	if err := l.client.Set(ctx, l.key(jti), expiresAt.Unix(), ttl).Err(); err != nil {
		return mapRedisErr(err)
	}
	return nil
}

func (l *RedisList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(jti)).Result()
	if err != nil {
		return false, mapRedisErr(err)
	}
	return n > 0, nil
}

// Purge is a no-op: Redis expires entries itself.
func (l *RedisList) Purge(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (l *RedisList) Ping(ctx context.Context) error {
	return mapRedisErr(l.client.Ping(ctx).Err())
}

func (l *RedisList) Close() error {
	return l.client.Close()
}

func mapRedisErr(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: redis: %w", store.ErrUnavailable, err)
}
