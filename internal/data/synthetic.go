package data

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"stratbench/internal/market"
)

// SyntheticProvider 生成确定性的模拟行情，用于开发与测试环境。
// 同一 (symbol, 区间, 周期) 在任何机器上生成完全相同的序列。
type SyntheticProvider struct {
	BasePrice float64
}

func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{BasePrice: 100}
}

func (p *SyntheticProvider) Name() string { return "synthetic" }

func (p *SyntheticProvider) Fetch(_ context.Context, symbol string, res market.Resolution, start, end int64) ([]market.Bar, error) {
	sym := strings.ToUpper(symbol)
	step := res.StepMillis()
	seed := symbolSeed(sym)
	base := p.BasePrice
	if base <= 0 {
		base = 100
	}
	var out []market.Bar
	for ts := start; ts <= end; ts += step {
		// 价格由时间戳和 symbol 种子决定，与调用次数无关。
		phase := float64(ts/step) + float64(seed%97)
		drift := float64(ts-start) / float64(step) * 0.05
		center := base + drift + 5*math.Sin(phase/9) + 2*math.Sin(phase/3)
		spread := 0.5 + 0.3*math.Abs(math.Sin(phase/7))
		open := center - spread/2
		clos := center + spread/2
		out = append(out, market.Bar{
			Symbol:    sym,
			Timestamp: ts,
			Open:      round2(open),
			High:      round2(math.Max(open, clos) + spread/4),
			Low:       round2(math.Min(open, clos) - spread/4),
			Close:     round2(clos),
			Volume:    float64(1000 + seed%1000),
		})
	}
	return out, nil
}

func symbolSeed(symbol string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return h.Sum64()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
