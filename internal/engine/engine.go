package engine

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"stratbench/internal/logger"
	"stratbench/internal/market"
	"stratbench/strategy"
)

// Simulate 在给定的 bar 序列上确定性地回放一个策略。
// 同样的 (策略, 数据, 参数) 输入，字节级相同的输出；内部没有
// 时钟、随机数或依赖 map 迭代顺序的路径。
//
// 时间线是所有 symbol 时间戳的有序并集。每个 tick 的顺序固定：
// 先推进各 symbol 的游标，再以开盘价成交挂单，然后在 warmup 与
// cadence 允许时调用策略，最后追加一条资金快照。t 时刻产生的
// 订单最早在 t+1 成交，策略看不到也用不到未来的 bar。
func Simulate(ctx context.Context, strat strategy.Strategy, series map[string][]market.Bar, cfg Config) (*Outcome, error) {
	universe := strat.Universe()
	if len(universe) == 0 {
		return nil, configErrf("universe 为空")
	}
	if cfg.InitialCapital <= 0 {
		return nil, configErrf("初始资金 %.2f 必须为正", cfg.InitialCapital)
	}
	if cfg.Commission < 0 {
		return nil, configErrf("手续费 %.4f 不能为负", cfg.Commission)
	}
	universe = append([]string(nil), universe...)
	sort.Strings(universe)
	for i := 1; i < len(universe); i++ {
		if universe[i] == universe[i-1] {
			return nil, configErrf("universe 含重复 symbol %s", universe[i])
		}
	}
	for _, sym := range universe {
		if len(series[sym]) == 0 {
			return nil, configErrf("symbol %s 没有任何 bar", sym)
		}
	}

	specs := strat.Indicators()
	indicators := make(map[string][]indicatorSeries, len(universe))
	for _, sym := range universe {
		indicators[sym] = computeIndicators(series[sym], specs)
	}

	// warmup 门槛：每个 symbol 至少要见过这么多根 bar 才开始决策。
	needed := maxLookback(specs)
	if needed < 1 {
		needed = 1
	}
	every := strat.Cadence().Every
	if every < 1 {
		every = 1
	}

	timeline := mergeTimeline(series, universe)
	if len(timeline) == 0 {
		return nil, configErrf("区间内没有任何 bar")
	}

	led := newLedger(cfg.InitialCapital)
	commission := decimal.NewFromFloat(cfg.Commission)

	cursor := make(map[string]int, len(universe))
	barsSeen := make(map[string]int, len(universe))
	latest := make(map[string]market.Bar, len(universe))
	lastClose := make(map[string]float64, len(universe))

	var (
		pending       []pendingOrder
		trades        []Trade
		curve         = make([]Snapshot, 0, len(timeline))
		eligibleTicks int
	)

	for _, ts := range timeline {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// 1) 推进游标。时间戳对不上的 symbol 本 tick 为 stale，
		//    沿用上一根 bar。
		fresh := make(map[string]bool, len(universe))
		for _, sym := range universe {
			bars := series[sym]
			i := cursor[sym]
			if i < len(bars) && bars[i].Timestamp == ts {
				latest[sym] = bars[i]
				lastClose[sym] = bars[i].Close
				cursor[sym] = i + 1
				barsSeen[sym]++
				fresh[sym] = true
			}
		}

		// 2) 以新 bar 的开盘价成交挂单。symbol 本 tick 无新 bar 的
		//    挂单继续等待。
		if len(pending) > 0 {
			remaining := pending[:0]
			for _, po := range pending {
				if !fresh[po.symbol] {
					remaining = append(remaining, po)
					continue
				}
				trades = append(trades, fillOrder(led, po, latest[po.symbol], commission, ts))
			}
			pending = remaining
		}

		// 3) warmup 与 cadence 都满足时才叫醒策略。
		if warmedUp(barsSeen, universe, needed) {
			eligibleTicks++
			if (eligibleTicks-1)%every == 0 {
				slice := buildSlice(ts, universe, latest, fresh, indicators, barsSeen)
				equity := led.equity(lastClose)
				view := strategy.NewPortfolioView(led.cashFloat(), equity.InexactFloat64(), led.snapshot())
				sig := strat.OnData(slice, view)
				pending = append(pending, normalizeSignal(sig, led, lastClose, equity.InexactFloat64(), ts)...)
			}
		}

		// 4) 每个 tick 固定追加一条快照，曲线长度等于 tick 数。
		curve = append(curve, Snapshot{
			Timestamp: ts,
			Cash:      led.cashFloat(),
			Equity:    led.equity(lastClose).InexactFloat64(),
		})
	}

	// 序列末尾仍未成交的订单按 unfilled 上报。
	for _, po := range pending {
		trades = append(trades, Trade{
			Symbol:      po.symbol,
			Quantity:    po.quantity,
			SubmittedAt: po.submittedAt,
			Status:      TradeUnfilled,
			Reason:      "序列结束前没有下一根 bar",
		})
	}

	finalEquity := led.equity(lastClose)
	logger.Infof("[engine] 回放完成: ticks=%d trades=%d equity=%s", len(timeline), len(trades), finalEquity.StringFixed(2))

	return &Outcome{
		EquityCurve:    curve,
		Trades:         trades,
		FinalCash:      led.cashFloat(),
		FinalEquity:    finalEquity.InexactFloat64(),
		FinalPositions: led.finalPositions(),
		Manifest:       buildManifest(cfg, universe, len(timeline)),
	}, nil
}

// fillOrder 按 bar 开盘价结算一笔挂单。买入资金不足或卖出超过
// 持仓都是硬拒绝：订单整体作废，不做部分成交。
func fillOrder(led *ledger, po pendingOrder, bar market.Bar, commission decimal.Decimal, ts int64) Trade {
	qty := decimal.NewFromFloat(po.quantity)
	price := decimal.NewFromFloat(bar.Open)

	if qty.IsPositive() && !led.canAfford(qty, price, commission) {
		return Trade{
			Symbol:      po.symbol,
			Quantity:    po.quantity,
			SubmittedAt: po.submittedAt,
			Status:      TradeRejected,
			Reason:      "现金不足",
		}
	}
	if qty.IsNegative() && qty.Neg().GreaterThan(led.quantity(po.symbol)) {
		return Trade{
			Symbol:      po.symbol,
			Quantity:    po.quantity,
			SubmittedAt: po.submittedAt,
			Status:      TradeRejected,
			Reason:      "持仓不足",
		}
	}

	led.apply(po.symbol, qty, price, commission)
	fee, _ := commission.Float64()
	return Trade{
		Symbol:      po.symbol,
		Quantity:    po.quantity,
		Price:       bar.Open,
		Fee:         fee,
		SubmittedAt: po.submittedAt,
		FilledAt:    ts,
		Status:      TradeFilled,
	}
}

func warmedUp(barsSeen map[string]int, universe []string, needed int) bool {
	for _, sym := range universe {
		if barsSeen[sym] < needed {
			return false
		}
	}
	return true
}

// buildSlice 组装策略可见的市场视图：每个 symbol 的最近一根 bar、
// 新鲜度标记和已就绪的指标值。
func buildSlice(ts int64, universe []string, latest map[string]market.Bar, fresh map[string]bool, indicators map[string][]indicatorSeries, barsSeen map[string]int) *strategy.Slice {
	bars := make(map[string]strategy.Bar, len(universe))
	ind := make(map[string]map[string]float64, len(universe))
	for _, sym := range universe {
		bar, ok := latest[sym]
		if !ok {
			continue
		}
		bars[sym] = bar
		if vals := valuesAt(indicators[sym], barsSeen[sym]-1); vals != nil {
			ind[sym] = vals
		}
	}
	return strategy.NewSlice(ts, bars, fresh, ind)
}

// mergeTimeline 返回所有 universe symbol 时间戳的有序去重并集。
func mergeTimeline(series map[string][]market.Bar, universe []string) []int64 {
	seen := make(map[int64]struct{})
	for _, sym := range universe {
		for _, b := range series[sym] {
			seen[b.Timestamp] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
