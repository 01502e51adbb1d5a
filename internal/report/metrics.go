package report

import (
	"math"

	"stratbench/internal/engine"
	"stratbench/internal/market"
)

// Metrics 是对一条已完成资金曲线的事后统计。引擎只产出逐 tick
// 快照，收益类指标全部在这里离线计算，不影响回放确定性。
type Metrics struct {
	TotalReturn   float64 `json:"total_return"`
	AnnualReturn  float64 `json:"annual_return"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	Sharpe        float64 `json:"sharpe"`
	Sortino       float64 `json:"sortino"`
	Volatility    float64 `json:"volatility"`
	WinRate       float64 `json:"win_rate"`
	TradeCount    int     `json:"trade_count"`
	FilledCount   int     `json:"filled_count"`
	RejectedCount int     `json:"rejected_count"`
}

// Compute 从资金曲线和成交明细推出全部指标。年化因子按 bar 周期
// 换算，1h 数据一年按 8760 个 bar 计。
func Compute(outcome *engine.Outcome, res market.Resolution) Metrics {
	m := Metrics{}
	if outcome == nil {
		return m
	}
	m.TradeCount = len(outcome.Trades)
	for _, t := range outcome.Trades {
		switch t.Status {
		case engine.TradeFilled:
			m.FilledCount++
		case engine.TradeRejected:
			m.RejectedCount++
		}
	}
	m.WinRate = winRate(outcome.Trades)

	curve := outcome.EquityCurve
	if len(curve) < 2 || curve[0].Equity <= 0 {
		return m
	}
	m.TotalReturn = curve[len(curve)-1].Equity/curve[0].Equity - 1
	m.MaxDrawdown = maxDrawdown(curve)

	returns := tickReturns(curve)
	perYear := barsPerYear(res)
	if ticks := float64(len(curve) - 1); ticks > 0 {
		m.AnnualReturn = math.Pow(1+m.TotalReturn, perYear/ticks) - 1
	}
	mean, std := meanStd(returns)
	m.Volatility = std * math.Sqrt(perYear)
	if std > 0 {
		m.Sharpe = mean / std * math.Sqrt(perYear)
	}
	if down := downsideStd(returns, mean); down > 0 {
		m.Sortino = mean / down * math.Sqrt(perYear)
	}
	return m
}

// maxDrawdown 返回峰值到谷底的最大回撤比例（正数）。
func maxDrawdown(curve []engine.Snapshot) float64 {
	peak := curve[0].Equity
	worst := 0.0
	for _, snap := range curve {
		if snap.Equity > peak {
			peak = snap.Equity
		}
		if peak > 0 {
			if dd := 1 - snap.Equity/peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func tickReturns(curve []engine.Snapshot) []float64 {
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		out = append(out, curve[i].Equity/prev-1)
	}
	return out
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return mean, math.Sqrt(sum / float64(len(values)-1))
}

func downsideStd(values []float64, mean float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if v < 0 {
			sum += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	_ = mean
	return math.Sqrt(sum / float64(n))
}

// winRate 按已成交的卖出腿估算胜率：卖出价高于持仓均价视为一次
// 盈利了结。只有买入的曲线策略没有可统计的了结，返回 0。
func winRate(trades []engine.Trade) float64 {
	buyCost := make(map[string]struct{ qty, cost float64 })
	var wins, closes int
	for _, t := range trades {
		if t.Status != engine.TradeFilled {
			continue
		}
		entry := buyCost[t.Symbol]
		if t.Quantity > 0 {
			entry.cost = (entry.cost*entry.qty + t.Price*t.Quantity) / (entry.qty + t.Quantity)
			entry.qty += t.Quantity
			buyCost[t.Symbol] = entry
			continue
		}
		if entry.qty <= 0 {
			continue
		}
		closes++
		if t.Price > entry.cost {
			wins++
		}
		entry.qty += t.Quantity
		if entry.qty <= 1e-9 {
			delete(buyCost, t.Symbol)
		} else {
			buyCost[t.Symbol] = entry
		}
	}
	if closes == 0 {
		return 0
	}
	return float64(wins) / float64(closes)
}

func barsPerYear(res market.Resolution) float64 {
	if res.Duration <= 0 {
		return 365 * 24
	}
	return float64(365*24*3600) / res.Duration.Seconds()
}
