package authkit

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisDenyListShortCircuits(t *testing.T) {
	t.Parallel()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })
	current := time.Unix(1000, 0)
	denyList := &RedisDenyList{client: client, prefix: redisDenyListPrefix, now: func() time.Time { return current }}

	if err := denyList.Deny(context.Background(), "", current.Add(time.Minute)); !errors.Is(err, errEmptyTokenID) {
		t.Fatalf("expected errEmptyTokenID, got %v", err)
	}
	if err := denyList.Deny(context.Background(), "jti-1", current); err != nil {
		t.Fatalf("expected already expired token to be ignored, got %v", err)
	}
	if key := denyList.key("jti-1"); key != "deny:jti-1" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestRedisDenyListRoundTrip(t *testing.T) {
	addr := os.Getenv("APP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("APP_TEST_REDIS_ADDR not set")
	}
	denyList, err := NewRedisDenyList(context.Background(), addr, os.Getenv("APP_TEST_REDIS_PASSWORD"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = denyList.Close() })

	tokenID := "test-" + time.Now().Format(time.RFC3339Nano)
	if err := denyList.Deny(context.Background(), tokenID, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("deny: %v", err)
	}
	denied, err := denyList.IsDenied(context.Background(), tokenID)
	if err != nil || !denied {
		t.Fatalf("expected token denied, got %v %v", denied, err)
	}
	denied, err = denyList.IsDenied(context.Background(), "never-denied")
	if err != nil || denied {
		t.Fatalf("expected unknown token allowed, got %v %v", denied, err)
	}
}
