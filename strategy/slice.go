package strategy

import (
	"sort"

	"stratbench/internal/market"
)

// Bar 复用 market.Bar，策略代码通过本包访问。
type Bar = market.Bar

// Slice 是某个时间戳上的只读跨 symbol 市场视图。
// 每个 tick 重新构建，策略持有它不会看到未来数据。
type Slice struct {
	timestamp  int64
	bars       map[string]Bar
	fresh      map[string]bool
	indicators map[string]map[string]float64
	symbols    []string
}

// NewSlice 由引擎构建：bars 为每个 symbol 的最新已知 bar，
// fresh 标记该 symbol 在本时间戳是否有新 bar，indicators 为已就绪的指标值。
func NewSlice(ts int64, bars map[string]Bar, fresh map[string]bool, indicators map[string]map[string]float64) *Slice {
	symbols := make([]string, 0, len(bars))
	for sym := range bars {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return &Slice{
		timestamp:  ts,
		bars:       bars,
		fresh:      fresh,
		indicators: indicators,
		symbols:    symbols,
	}
}

// Timestamp 返回当前时刻（Unix ms）。
func (s *Slice) Timestamp() int64 { return s.timestamp }

// Symbols 返回有数据的 symbol（字典序，保证迭代确定性）。
func (s *Slice) Symbols() []string { return s.symbols }

// Bar 返回 symbol 的最新已知 bar。
func (s *Slice) Bar(symbol string) (Bar, bool) {
	b, ok := s.bars[symbol]
	return b, ok
}

// Close 返回最新已知收盘价；无数据时返回 0。
func (s *Slice) Close(symbol string) float64 {
	if b, ok := s.bars[symbol]; ok {
		return b.Close
	}
	return 0
}

// Fresh 报告 symbol 在本时间戳是否有新 bar（false 表示沿用旧价）。
func (s *Slice) Fresh(symbol string) bool { return s.fresh[symbol] }

// Indicator 返回指标值，如 Indicator("SPY", "SMA21")。
// 指标未就绪（warmup 未完成）时 ok 为 false。
func (s *Slice) Indicator(symbol, name string) (float64, bool) {
	m, ok := s.indicators[symbol]
	if !ok {
		return 0, false
	}
	v, ok := m[name]
	return v, ok
}
