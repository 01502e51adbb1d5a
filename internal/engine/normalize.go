package engine

import (
	"sort"

	"stratbench/internal/logger"
	"stratbench/strategy"
)

// pendingOrder 在决策 bar 入队，下一根 bar 开盘成交。
type pendingOrder struct {
	symbol      string
	quantity    float64 // 带符号股数
	submittedAt int64
}

const minOrderQty = 1e-9

// normalizeSignal 把两种下单风格统一成带符号股数订单。
// 数量换算只发生在这里：权重按当前组合权益与最新已知价换算，
// 显式指令原样透传。成交与记账逻辑因此只面对一种订单模型。
func normalizeSignal(sig strategy.Signal, led *ledger, lastClose map[string]float64, equity float64, ts int64) []pendingOrder {
	switch sig.Kind {
	case strategy.KindHold:
		return nil
	case strategy.KindOrders:
		out := make([]pendingOrder, 0, len(sig.Orders))
		for _, o := range sig.Orders {
			if o.Symbol == "" || absFloat(o.Quantity) < minOrderQty {
				continue
			}
			out = append(out, pendingOrder{symbol: o.Symbol, quantity: o.Quantity, submittedAt: ts})
		}
		return out
	case strategy.KindLiquidate:
		return targetWeightOrders(map[string]float64{}, led, lastClose, equity, ts, true)
	case strategy.KindTargetWeights:
		weights := sig.Weights
		total := 0.0
		for _, w := range weights {
			if w > 0 {
				total += w
			}
		}
		if total > 1.0+1e-9 {
			// 权重和超限：等比压到 1.0。策略写错不应该造出杠杆。
			logger.Warnf("[engine] 目标权重和 %.4f > 1.0，已等比缩放", total)
			scaled := make(map[string]float64, len(weights))
			for sym, w := range weights {
				scaled[sym] = w / total
			}
			weights = scaled
		}
		return targetWeightOrders(weights, led, lastClose, equity, ts, true)
	default:
		return nil
	}
}

// targetWeightOrders 计算从当前持仓到目标权重的差额订单。
// liquidateRest 为 true 时，目标中未出现的已有持仓会被清掉。
func targetWeightOrders(weights map[string]float64, led *ledger, lastClose map[string]float64, equity float64, ts int64, liquidateRest bool) []pendingOrder {
	symbols := make(map[string]struct{}, len(weights))
	for sym := range weights {
		symbols[sym] = struct{}{}
	}
	if liquidateRest {
		for _, pos := range led.finalPositions() {
			symbols[pos.Symbol] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(symbols))
	for sym := range symbols {
		ordered = append(ordered, sym)
	}
	sort.Strings(ordered)

	var out []pendingOrder
	for _, sym := range ordered {
		price, ok := lastClose[sym]
		if !ok || price <= 0 {
			continue
		}
		targetQty := weights[sym] * equity / price
		delta := targetQty - led.quantity(sym).InexactFloat64()
		if absFloat(delta) < minOrderQty || absFloat(delta*price) < 0.01 {
			continue
		}
		out = append(out, pendingOrder{symbol: sym, quantity: delta, submittedAt: ts})
	}
	return out
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
