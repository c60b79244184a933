package optimizerclient

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/cache"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/ratelimit"
)

// backend is the call the decorator fronts. *Client satisfies it.
type backend interface {
	Optimize(ctx context.Context, req optimization.Request) (optimization.Result, error)
}

// ThrottledBackend fronts a backend with the fingerprint cache and the
// rate limiter: a cache hit reproduces the stored result without touching
// the backend (and, when skipCached is set, without consuming a rate
// token); a miss waits for a token, runs at most one concurrent producer
// per fingerprint, and populates both cache tiers.
type ThrottledBackend struct {
	next    backend
	cache   *cache.Distributed
	limiter *ratelimit.Limiter
	ttl     time.Duration
	enabled bool
	logger  *zap.Logger
}

// NewThrottledBackend wires the cache and limiter in front of next.
// cacheEnabled=false turns the decorator into limiter-only passthrough.
func NewThrottledBackend(next backend, store *cache.Distributed, limiter *ratelimit.Limiter, ttl time.Duration, cacheEnabled bool, logger *zap.Logger) *ThrottledBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThrottledBackend{next: next, cache: store, limiter: limiter, ttl: ttl, enabled: cacheEnabled, logger: logger.Named("throttled-backend")}
}

// Optimize resolves req against the cache, then the backend. The
// fingerprint covers the template content and the normalized request
// options so identical inputs always hit the same entry.
func (t *ThrottledBackend) Optimize(ctx context.Context, req optimization.Request) (optimization.Result, error) {
	if !t.enabled || req.SkipCache || t.cache == nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return optimization.Result{}, err
		}
		return t.next.Optimize(ctx, req)
	}

	key := requestFingerprint(req)
	if t.limiter.SkipCached() {
		if value, ok := t.cache.Get(ctx, key, t.ttl); ok {
			if result, ok := decodeResult(value); ok {
				t.logger.Debug("optimization served from cache", zap.String("fingerprint", key))
				return result, nil
			}
		}
	}

	value, err := t.cache.GetOrCompute(ctx, key, t.ttl, func() (interface{}, error) {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return t.next.Optimize(ctx, req)
	})
	if err != nil {
		return optimization.Result{}, err
	}
	if result, ok := decodeResult(value); ok {
		return result, nil
	}
	// Cache round-trip through the distributed tier re-decodes as generic
	// JSON; fall back to the backend rather than fail.
	if err := t.limiter.Wait(ctx); err != nil {
		return optimization.Result{}, err
	}
	return t.next.Optimize(ctx, req)
}

// requestFingerprint hashes the inputs that define a result: the original
// template content plus the normalized request options.
func requestFingerprint(req optimization.Request) string {
	options := map[string]interface{}{
		"task":               req.Task,
		"target_model":       string(req.TargetModel),
		"refine_iterations":  req.RefineIterations,
		"few_shot_count":     req.FewShotCount,
		"generate_reasoning": req.GenerateReasoning,
	}
	return cache.Fingerprint(req.OriginalPrompt, options)
}

func decodeResult(value interface{}) (optimization.Result, bool) {
	switch v := value.(type) {
	case optimization.Result:
		return v, true
	case map[string]interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return optimization.Result{}, false
		}
		var result optimization.Result
		if err := json.Unmarshal(data, &result); err != nil {
			return optimization.Result{}, false
		}
		return result, true
	default:
		return optimization.Result{}, false
	}
}
