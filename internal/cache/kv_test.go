package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestNewWithInvalidURLDegradesGracefully(t *testing.T) {
	k := New("not-a-valid-redis-url", zap.NewNop())
	if k == nil {
		t.Fatal("expected a usable KV even when the url is invalid")
	}
	if k.client != nil {
		t.Fatal("expected a nil client when the url could not be parsed")
	}
}

func TestDegradedKVReturnsRedisNilOnGetSet(t *testing.T) {
	k := New("not-a-valid-redis-url", zap.NewNop())

	if err := k.SetMsgpack(context.Background(), "key", []string{"a"}, 0); err != redis.Nil {
		t.Fatalf("expected redis.Nil from a degraded KV on Set, got %v", err)
	}

	var dst []string
	if err := k.GetMsgpack(context.Background(), "key", &dst); err != redis.Nil {
		t.Fatalf("expected redis.Nil from a degraded KV on Get, got %v", err)
	}
}

func TestDegradedKVAuditDoesNotPanic(t *testing.T) {
	k := New("not-a-valid-redis-url", zap.NewNop())
	k.Audit(context.Background(), "lock_acquired", map[string]interface{}{"holder": "u1"})
}

func TestDegradedKVCloseIsNoop(t *testing.T) {
	k := New("not-a-valid-redis-url", zap.NewNop())
	if err := k.Close(); err != nil {
		t.Fatalf("expected no error closing a degraded KV, got %v", err)
	}
}
