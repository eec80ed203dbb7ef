// Package cache wraps the Redis client used as the opaque KV tier for the
// node cache (C9) and, best-effort, for an audit trail of dispatch and lock
// events. It is adapted from the reference gateway's
// bridge/redis_publisher.go, which wrapped a *redis.Client with a
// degraded-mode-on-connect-failure posture and an XAdd-based stream
// publisher; the Get/Set half is new (the reference publisher was
// write-only), built the same way against go-redis/v9.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// StreamMaxLen bounds the approximate length of the audit stream, mirroring
// the reference publisher's XAdd(MaxLen, Approx) usage.
const StreamMaxLen = 1000

// KV is a thin wrapper over a Redis client. A KV whose client is nil or
// unreachable is tolerated by callers: cache errors are non-fatal per the
// specification's failure semantics. The methods need a non-nil *KV.
type KV struct {
	client *redis.Client
	logger *zap.Logger
}

// New dials Redis and pings it once. On failure it logs a warning and
// returns a KV that is still usable (every call will simply error and be
// ignored by callers), matching the reference gateway's degraded-mode
// fallback for the publisher rather than failing startup.
func New(url string, logger *zap.Logger) *KV {
	opts, err := redis.ParseURL(url)
	if err != nil {
		if logger != nil {
			logger.Warn("cache: invalid redis url, running without cache", zap.Error(err))
		}
		return &KV{logger: logger}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Warn("cache: redis unreachable, running in degraded mode", zap.Error(err))
		}
	}
	return &KV{client: client, logger: logger}
}

// SetMsgpack encodes v with msgpack and stores it with the given TTL.
func (k *KV) SetMsgpack(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	if k.client == nil {
		return redis.Nil
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return k.client.Set(ctx, key, data, ttl).Err()
}

// GetMsgpack fetches a key and decodes it with msgpack into dst.
func (k *KV) GetMsgpack(ctx context.Context, key string, dst interface{}) error {
	if k.client == nil {
		return redis.Nil
	}
	data, err := k.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, dst)
}

// Audit appends a best-effort event to the audit stream. Errors are logged
// and otherwise swallowed; the audit trail is diagnostic, never load-bearing.
func (k *KV) Audit(ctx context.Context, event string, fields map[string]interface{}) {
	if k.client == nil {
		return
	}
	values := map[string]interface{}{"event": event}
	for key, v := range fields {
		values[key] = v
	}
	err := k.client.XAdd(ctx, &redis.XAddArgs{
		Stream: "control-core:audit",
		MaxLen: StreamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil && k.logger != nil {
		k.logger.Debug("cache: audit append failed", zap.Error(err))
	}
}

// Close releases the underlying connection pool, if one was established.
func (k *KV) Close() error {
	if k.client == nil {
		return nil
	}
	return k.client.Close()
}
