package data

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratbench/internal/market"
)

// recordingProvider 记录每次回源请求的区间，转发给合成数据源。
type recordingProvider struct {
	inner Provider
	calls []Span
	fail  bool
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Fetch(ctx context.Context, symbol string, res market.Resolution, start, end int64) ([]market.Bar, error) {
	p.calls = append(p.calls, Span{Start: start, End: end})
	if p.fail {
		return nil, errors.New("upstream down")
	}
	return p.inner.Fetch(ctx, symbol, res, start, end)
}

func newTestCache(t *testing.T) (*Cache, *recordingProvider) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	provider := &recordingProvider{inner: NewSyntheticProvider()}
	cache, err := NewCache(CacheConfig{Store: store, Provider: provider, RateLimitPerMin: 600000})
	require.NoError(t, err)
	return cache, provider
}

func mustRes(t *testing.T, key string) market.Resolution {
	t.Helper()
	res, err := market.ParseResolution(key)
	require.NoError(t, err)
	return res
}

func TestCacheFetchesOnceForRepeatedRange(t *testing.T) {
	cache, _ := newTestCache(t)
	res := mustRes(t, "1h")
	ctx := context.Background()

	start := int64(1700000000000) - int64(1700000000000)%res.StepMillis()
	end := start + 99*res.StepMillis()

	first, err := cache.Bars(ctx, "BTCUSDT", res, start, end)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.Equal(t, int64(1), cache.UpstreamFetches())

	// 完全相同的请求不再回源
	second, err := cache.Bars(ctx, "BTCUSDT", res, start, end)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), cache.UpstreamFetches())

	// 子区间同样零回源
	_, err = cache.Bars(ctx, "BTCUSDT", res, start+10*res.StepMillis(), end-10*res.StepMillis())
	require.NoError(t, err)
	assert.Equal(t, int64(1), cache.UpstreamFetches())
}

func TestCacheFetchesOnlyTheGap(t *testing.T) {
	cache, provider := newTestCache(t)
	res := mustRes(t, "1h")
	ctx := context.Background()
	step := res.StepMillis()

	start := int64(1700000000000) - int64(1700000000000)%step
	mid := start + 49*step
	end := start + 99*step

	_, err := cache.Bars(ctx, "BTCUSDT", res, start, mid)
	require.NoError(t, err)
	require.Len(t, provider.calls, 1)

	// 扩展请求只补 (mid, end] 的缺口
	_, err = cache.Bars(ctx, "BTCUSDT", res, start, end)
	require.NoError(t, err)
	require.Len(t, provider.calls, 2)
	assert.Equal(t, Span{Start: mid + step, End: end}, provider.calls[1])
}

func TestCacheConcurrentOverlappingRequests(t *testing.T) {
	cache, provider := newTestCache(t)
	res := mustRes(t, "1h")
	ctx := context.Background()
	step := res.StepMillis()

	start := int64(1700000000000) - int64(1700000000000)%step
	// 两个请求共享 [start+25, start+49] 的区间
	spanA := Span{Start: start, End: start + 49*step}
	spanB := Span{Start: start + 25*step, End: start + 74*step}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, sp := range []Span{spanA, spanB} {
		wg.Add(1)
		go func(i int, sp Span) {
			defer wg.Done()
			bars, err := cache.Bars(ctx, "BTCUSDT", res, sp.Start, sp.End)
			if err == nil && int64(len(bars)) != res.ExpectedBars(sp.Start, sp.End) {
				err = errors.New("bar 数量不完整")
			}
			errs[i] = err
		}(i, sp)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// 重叠部分只允许回源一次：记录下来的拉取区间两两不相交
	calls := provider.calls
	assert.LessOrEqual(t, len(calls), 2)
	for i := 0; i < len(calls); i++ {
		for j := i + 1; j < len(calls); j++ {
			disjoint := calls[i].End < calls[j].Start || calls[j].End < calls[i].Start
			assert.True(t, disjoint, "拉取区间 %v 与 %v 重叠", calls[i], calls[j])
		}
	}

	// 并集已全量覆盖，再读零回源
	fetched := cache.UpstreamFetches()
	_, err := cache.Bars(ctx, "BTCUSDT", res, spanA.Start, spanB.End)
	require.NoError(t, err)
	assert.Equal(t, fetched, cache.UpstreamFetches())
}

func TestCacheSymbolsAreIndependent(t *testing.T) {
	cache, provider := newTestCache(t)
	res := mustRes(t, "1h")
	ctx := context.Background()

	start := int64(1700000000000) - int64(1700000000000)%res.StepMillis()
	end := start + 9*res.StepMillis()

	_, err := cache.Bars(ctx, "BTCUSDT", res, start, end)
	require.NoError(t, err)
	_, err = cache.Bars(ctx, "ETHUSDT", res, start, end)
	require.NoError(t, err)
	assert.Len(t, provider.calls, 2, "不同 symbol 的覆盖互不影响")
}

func TestCacheProviderFailureReturnsGapError(t *testing.T) {
	cache, provider := newTestCache(t)
	provider.fail = true
	res := mustRes(t, "1h")

	start := int64(1700000000000) - int64(1700000000000)%res.StepMillis()
	_, err := cache.Bars(context.Background(), "BTCUSDT", res, start, start+9*res.StepMillis())

	var gap *GapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, "BTCUSDT", gap.Symbol)

	// 失败的缺口不允许被标记为已覆盖
	provider.fail = false
	_, err = cache.Bars(context.Background(), "BTCUSDT", res, start, start+9*res.StepMillis())
	require.NoError(t, err)
	assert.Len(t, provider.calls, 2)
}
