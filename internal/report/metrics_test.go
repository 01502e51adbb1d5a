package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stratbench/internal/engine"
	"stratbench/internal/market"
)

func curveOutcome(equities []float64, trades []engine.Trade) *engine.Outcome {
	curve := make([]engine.Snapshot, len(equities))
	for i, eq := range equities {
		curve[i] = engine.Snapshot{Timestamp: int64(i) * 3600000, Equity: eq, Cash: eq}
	}
	return &engine.Outcome{EquityCurve: curve, Trades: trades}
}

func TestComputeTotalReturnAndDrawdown(t *testing.T) {
	res, _ := market.ParseResolution("1h")
	out := curveOutcome([]float64{100, 110, 99, 121}, nil)

	m := Compute(out, res)
	assert.InDelta(t, 0.21, m.TotalReturn, 1e-9)
	// 峰值 110 回落到 99
	assert.InDelta(t, 1-99.0/110.0, m.MaxDrawdown, 1e-9)
	assert.Greater(t, m.Volatility, 0.0)
	assert.Greater(t, m.AnnualReturn, m.TotalReturn)
}

func TestComputeFlatCurve(t *testing.T) {
	res, _ := market.ParseResolution("1h")
	m := Compute(curveOutcome([]float64{100, 100, 100}, nil), res)

	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.MaxDrawdown)
	assert.Zero(t, m.Sharpe)
	assert.Zero(t, m.Sortino)
}

func TestComputeTradeCounts(t *testing.T) {
	res, _ := market.ParseResolution("1h")
	trades := []engine.Trade{
		{Symbol: "BTCUSDT", Quantity: 1, Price: 100, Status: engine.TradeFilled},
		{Symbol: "BTCUSDT", Quantity: -1, Price: 120, Status: engine.TradeFilled},
		{Symbol: "ETHUSDT", Quantity: 5, Price: 10, Status: engine.TradeRejected, Reason: "现金不足"},
		{Symbol: "ETHUSDT", Quantity: 5, Price: 0, Status: engine.TradeUnfilled},
	}
	m := Compute(curveOutcome([]float64{100, 120}, trades), res)

	assert.Equal(t, 4, m.TradeCount)
	assert.Equal(t, 2, m.FilledCount)
	assert.Equal(t, 1, m.RejectedCount)
	// 唯一一次了结是盈利的
	assert.Equal(t, 1.0, m.WinRate)
}

func TestWinRateAverageCost(t *testing.T) {
	trades := []engine.Trade{
		{Symbol: "BTCUSDT", Quantity: 1, Price: 100, Status: engine.TradeFilled},
		{Symbol: "BTCUSDT", Quantity: 1, Price: 200, Status: engine.TradeFilled},
		// 均价 150，140 卖出算亏损，160 卖出算盈利
		{Symbol: "BTCUSDT", Quantity: -1, Price: 140, Status: engine.TradeFilled},
		{Symbol: "BTCUSDT", Quantity: -1, Price: 160, Status: engine.TradeFilled},
	}
	assert.InDelta(t, 0.5, winRate(trades), 1e-9)
}

func TestComputeNilAndShortCurve(t *testing.T) {
	res, _ := market.ParseResolution("1h")
	assert.Zero(t, Compute(nil, res))
	assert.Zero(t, Compute(curveOutcome([]float64{100}, nil), res).TotalReturn)
}
