package optimizerclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/cache"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/ratelimit"
)

type stubBackend struct {
	calls  int32
	result optimization.Result
	err    error
}

func (s *stubBackend) Optimize(ctx context.Context, req optimization.Request) (optimization.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.result, s.err
}

func newTestThrottled(next backend, cacheEnabled bool) *ThrottledBackend {
	store := cache.NewDistributed(cache.NewLocal(100), nil, "test", zap.NewNop())
	limiter := ratelimit.New(1000, time.Second, true)
	return NewThrottledBackend(next, store, limiter, time.Minute, cacheEnabled, zap.NewNop())
}

func TestThrottledCachesByFingerprint(t *testing.T) {
	stub := &stubBackend{result: optimization.Result{OptimizedPrompt: "short", Status: optimization.StatusCompleted}}
	throttled := newTestThrottled(stub, true)

	req := optimization.Request{OriginalPrompt: "long prompt", TargetModel: optimization.ModelGPT4, RefineIterations: 3}

	first, err := throttled.Optimize(context.Background(), req)
	require.NoError(t, err)
	second, err := throttled.Optimize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.calls))
}

func TestThrottledDistinctRequestsMiss(t *testing.T) {
	stub := &stubBackend{result: optimization.Result{OptimizedPrompt: "short", Status: optimization.StatusCompleted}}
	throttled := newTestThrottled(stub, true)

	reqA := optimization.Request{OriginalPrompt: "prompt A", TargetModel: optimization.ModelGPT4}
	reqB := optimization.Request{OriginalPrompt: "prompt B", TargetModel: optimization.ModelGPT4}

	_, err := throttled.Optimize(context.Background(), reqA)
	require.NoError(t, err)
	_, err = throttled.Optimize(context.Background(), reqB)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.calls))
}

func TestThrottledSkipCacheBypasses(t *testing.T) {
	stub := &stubBackend{result: optimization.Result{OptimizedPrompt: "short", Status: optimization.StatusCompleted}}
	throttled := newTestThrottled(stub, true)

	req := optimization.Request{OriginalPrompt: "long prompt", SkipCache: true}
	_, err := throttled.Optimize(context.Background(), req)
	require.NoError(t, err)
	_, err = throttled.Optimize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.calls))
}

func TestThrottledCachingDisabled(t *testing.T) {
	stub := &stubBackend{result: optimization.Result{OptimizedPrompt: "short", Status: optimization.StatusCompleted}}
	throttled := newTestThrottled(stub, false)

	req := optimization.Request{OriginalPrompt: "long prompt"}
	_, err := throttled.Optimize(context.Background(), req)
	require.NoError(t, err)
	_, err = throttled.Optimize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.calls))
}

func TestThrottledConcurrentSameKeySingleProducer(t *testing.T) {
	block := make(chan struct{})
	slow := &slowBackend{release: block, result: optimization.Result{OptimizedPrompt: "short", Status: optimization.StatusCompleted}}
	throttled := newTestThrottled(slow, true)

	req := optimization.Request{OriginalPrompt: "concurrent prompt"}
	const n = 8

	var wg sync.WaitGroup
	results := make([]optimization.Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := throttled.Optimize(context.Background(), req)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&slow.calls))
	for _, r := range results {
		assert.Equal(t, "short", r.OptimizedPrompt)
	}
}

type slowBackend struct {
	calls   int32
	release chan struct{}
	result  optimization.Result
}

func (s *slowBackend) Optimize(ctx context.Context, req optimization.Request) (optimization.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	<-s.release
	return s.result, nil
}
