package data

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"stratbench/internal/logger"
	"stratbench/internal/market"

	"golang.org/x/time/rate"
)

// CacheConfig 配置行情缓存。
type CacheConfig struct {
	Store           *Store
	Provider        Provider
	RateLimitPerMin int
}

// Cache 是区间感知的行情缓存：对每个 (symbol, resolution) 维护一组
// 互不相交、按序排列的已覆盖区间，只有缺口才会触发上游拉取。
//
// 同一 symbol 上"检查覆盖→拉缺口→合并入库"作为一个原子单元在
// 该 symbol 的锁内执行；不同 symbol 完全并行。
type Cache struct {
	store    *Store
	provider Provider
	limiter  *rate.Limiter

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	fetches atomic.Int64
}

func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store 不能为空")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider 不能为空")
	}
	perSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		perSec = 8
	}
	return &Cache{
		store:    cfg.Store,
		provider: cfg.Provider,
		limiter:  rate.NewLimiter(perSec, 4),
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// UpstreamFetches 返回累计上游拉取次数（测试与监控用）。
func (c *Cache) UpstreamFetches() int64 { return c.fetches.Load() }

// Manifest 读取某 symbol@resolution 的落盘统计。
func (c *Cache) Manifest(ctx context.Context, symbol, resolution string) (Manifest, error) {
	return c.store.Manifest(ctx, symbol, resolution)
}

func (c *Cache) symbolLock(symbol, resolution string) *sync.Mutex {
	key := strings.ToUpper(symbol) + "@" + strings.ToLower(resolution)
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	c.locks[key] = l
	return l
}

// Bars 返回覆盖 [start,end] 的升序 bar 序列。
// 已覆盖区间零上游调用；部分覆盖只拉补集；上游无法补齐时返回 *GapError。
func (c *Cache) Bars(ctx context.Context, symbol string, res market.Resolution, start, end int64) ([]market.Bar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	start, end = res.AlignRange(start, end)
	if start == end {
		return nil, fmt.Errorf("start 与 end 需要构成区间")
	}
	sym := strings.ToUpper(symbol)

	lock := c.symbolLock(sym, res.Key)
	lock.Lock()
	defer lock.Unlock()

	spans, err := c.store.CoveredSpans(ctx, sym, res.Key)
	if err != nil {
		return nil, err
	}
	step := res.StepMillis()
	gaps := complement(spans, Span{Start: start, End: end}, step)
	for _, gap := range gaps {
		if err := c.fillGap(ctx, sym, res, gap); err != nil {
			return nil, err
		}
		spans = mergeSpan(spans, gap, step)
	}
	if len(gaps) > 0 {
		if err := c.store.ReplaceSpans(ctx, sym, res.Key, spans); err != nil {
			return nil, err
		}
	}

	bars, err := c.store.RangeBars(ctx, sym, res.Key, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, &GapError{Symbol: sym, Resolution: res.Key, Start: start, End: end}
	}
	return bars, nil
}

func (c *Cache) fillGap(ctx context.Context, symbol string, res market.Resolution, gap Span) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	c.fetches.Add(1)
	logger.Debugf("[data] %s 回源 %s@%s [%d,%d]", c.provider.Name(), symbol, res.Key, gap.Start, gap.End)
	bars, err := c.provider.Fetch(ctx, symbol, res, gap.Start, gap.End)
	if err != nil {
		return &GapError{Symbol: symbol, Resolution: res.Key, Start: gap.Start, End: gap.End, Cause: err}
	}
	if err := validateBars(bars, gap); err != nil {
		return &GapError{Symbol: symbol, Resolution: res.Key, Start: gap.Start, End: gap.End, Cause: err}
	}
	if len(bars) > 0 {
		if _, err := c.store.InsertBars(ctx, symbol, res.Key, bars); err != nil {
			return err
		}
	}
	// 上游对该缺口给出了权威答复（哪怕是空序列，比如休市时段），
	// 区间照样标记为已覆盖，避免对同一缺口反复回源。
	return nil
}

func validateBars(bars []market.Bar, gap Span) error {
	var prev int64 = -1
	for i, b := range bars {
		if b.Timestamp < gap.Start || b.Timestamp > gap.End {
			return fmt.Errorf("第 %d 条 bar 超出请求区间", i)
		}
		if b.Timestamp <= prev {
			return fmt.Errorf("时间戳非严格递增（第 %d 条）", i)
		}
		if b.High < b.Low || b.Open <= 0 || b.Close <= 0 {
			return fmt.Errorf("第 %d 条 bar 字段非法", i)
		}
		prev = b.Timestamp
	}
	return nil
}
