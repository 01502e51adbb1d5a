package engine

import (
	"stratbench/internal/market"
	"stratbench/strategy"

	talib "github.com/markcheno/go-talib"
)

// indicatorSeries 保存单个 symbol 的指标数组，下标与该 symbol 的
// bar 序列对齐。validFrom 之前的值属于 warmup 区间，不暴露给策略。
type indicatorSeries struct {
	name      string
	values    []float64
	validFrom int
}

// computeIndicators 用 talib 在整段序列上一次性算出全部指标。
// 引擎逐 bar 推进时按下标取值，不存在增量状态，也就没有
// 迭代顺序带来的不确定性。
func computeIndicators(bars []market.Bar, specs []strategy.IndicatorSpec) []indicatorSeries {
	if len(bars) == 0 || len(specs) == 0 {
		return nil
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	out := make([]indicatorSeries, 0, len(specs))
	for _, spec := range specs {
		if spec.Period <= 0 {
			continue
		}
		var values []float64
		validFrom := spec.Lookback() - 1
		switch spec.Kind {
		case strategy.IndicatorSMA:
			values = talib.Sma(closes, spec.Period)
		case strategy.IndicatorEMA:
			values = talib.Ema(closes, spec.Period)
		case strategy.IndicatorRSI:
			values = talib.Rsi(closes, spec.Period)
		default:
			continue
		}
		out = append(out, indicatorSeries{
			name:      spec.Name(),
			values:    values,
			validFrom: validFrom,
		})
	}
	return out
}

// maxLookback 返回所有指标需要的最大历史长度，即 warmup 门槛。
func maxLookback(specs []strategy.IndicatorSpec) int {
	max := 0
	for _, spec := range specs {
		if lb := spec.Lookback(); lb > max {
			max = lb
		}
	}
	return max
}

// valuesAt 返回某 symbol 在其第 idx 根 bar 上已就绪的指标值。
func valuesAt(series []indicatorSeries, idx int) map[string]float64 {
	if len(series) == 0 {
		return nil
	}
	out := make(map[string]float64, len(series))
	for _, s := range series {
		if idx >= s.validFrom && idx < len(s.values) {
			out[s.name] = s.values[idx]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
