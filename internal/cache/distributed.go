package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Distributed layers a Redis-backed tier behind a Local cache: reads
// consult local first, then remote; writes populate both. A nil client
// disables the remote path entirely, making every remote operation a
// no-op.
type Distributed struct {
	local     *Local
	client    *redis.Client
	logger    *zap.Logger
	namespace string
}

// NewDistributed wraps local with an optional Redis tier. Pass a nil
// client to run purely on local (the distributed tier disabled).
func NewDistributed(local *Local, client *redis.Client, namespace string, logger *zap.Logger) *Distributed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Distributed{local: local, client: client, logger: logger, namespace: namespace}
}

func (d *Distributed) namespaced(key string) string {
	if d.namespace == "" {
		return key
	}
	return d.namespace + ":" + key
}

// Get consults the local tier first, then Redis on a local miss,
// populating local from whatever Redis returns.
func (d *Distributed) Get(ctx context.Context, key string, ttl time.Duration) (interface{}, bool) {
	if value, ok := d.local.Get(key); ok {
		return value, true
	}
	if d.client == nil {
		return nil, false
	}

	raw, err := d.client.Get(ctx, d.namespaced(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			d.logger.Warn("distributed cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		d.logger.Warn("distributed cache value undecodable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	d.local.Set(key, value, ttl)
	return value, true
}

// Set writes to both tiers. A Redis write failure is logged but does not
// fail the call — the local write still succeeds.
func (d *Distributed) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	d.local.Set(key, value, ttl)
	if d.client == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		d.logger.Warn("distributed cache value unmarshalable", zap.String("key", key), zap.Error(err))
		return
	}
	if err := d.client.Set(ctx, d.namespaced(key), data, ttl).Err(); err != nil {
		d.logger.Warn("distributed cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes key from both tiers.
func (d *Distributed) Delete(ctx context.Context, key string) {
	d.local.Delete(key)
	if d.client == nil {
		return
	}
	if err := d.client.Del(ctx, d.namespaced(key)).Err(); err != nil {
		d.logger.Warn("distributed cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// GetOrCompute resolves key against local, then Redis, then producer,
// storing a freshly computed value in both tiers.
func (d *Distributed) GetOrCompute(ctx context.Context, key string, ttl time.Duration, producer Producer) (interface{}, error) {
	if value, ok := d.Get(ctx, key, ttl); ok {
		return value, nil
	}
	return d.local.GetOrCompute(key, ttl, func() (interface{}, error) {
		value, err := producer()
		if err != nil {
			return nil, err
		}
		if d.client != nil {
			data, merr := json.Marshal(value)
			if merr == nil {
				if err := d.client.Set(ctx, d.namespaced(key), data, ttl).Err(); err != nil {
					d.logger.Warn("distributed cache set failed", zap.String("key", key), zap.Error(err))
				}
			}
		}
		return value, nil
	})
}

// Enabled reports whether the remote tier is configured.
func (d *Distributed) Enabled() bool {
	return d.client != nil
}
