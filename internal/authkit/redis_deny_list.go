package authkit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDenyListPrefix = "deny:"

// RedisDenyList shares revoked token ids across instances; Redis TTLs expire entries.
type RedisDenyList struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisDenyList connects to Redis and verifies the connection.
func NewRedisDenyList(ctx context.Context, addr string, password string) (*RedisDenyList, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("deny_list.redis.ping: %w", err)
	}
	return &RedisDenyList{client: client, prefix: redisDenyListPrefix, now: time.Now}, nil
}

func (denyList *RedisDenyList) key(tokenID string) string {
	return denyList.prefix + tokenID
}

// Deny stores tokenID until expiresAt.
func (denyList *RedisDenyList) Deny(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return errEmptyTokenID
	}
	ttl := expiresAt.Sub(denyList.now())
	if ttl <= 0 {
		return nil
	}
	if err := denyList.client.Set(ctx, denyList.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("deny_list.redis.set: %w", err)
	}
	return nil
}

// IsDenied reports whether tokenID is still on the list.
func (denyList *RedisDenyList) IsDenied(ctx context.Context, tokenID string) (bool, error) {
	count, err := denyList.client.Exists(ctx, denyList.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("deny_list.redis.exists: %w", err)
	}
	return count > 0, nil
}

// Close releases the Redis connection pool.
func (denyList *RedisDenyList) Close() error {
	return denyList.client.Close()
}
