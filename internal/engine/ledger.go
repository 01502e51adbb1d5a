package engine

import (
	"sort"

	"stratbench/strategy"

	"github.com/shopspring/decimal"
)

// position 内部持仓账目，仅由成交修改。
type position struct {
	qty     decimal.Decimal
	avgCost decimal.Decimal
}

// ledger 维护现金与持仓。金额运算全部走 decimal，
// 保证同样的输入在任何平台得到 bit 级一致的资金曲线。
type ledger struct {
	cash      decimal.Decimal
	positions map[string]*position
}

func newLedger(initialCapital float64) *ledger {
	return &ledger{
		cash:      decimal.NewFromFloat(initialCapital),
		positions: make(map[string]*position),
	}
}

// apply 按成交调整账目：现金 -= qty*price + fee，持仓数量同步调整。
// 反向减仓时均价保持不变；翻向时以新价重置均价。
func (l *ledger) apply(symbol string, qty, price, fee decimal.Decimal) {
	l.cash = l.cash.Sub(qty.Mul(price)).Sub(fee)
	pos, ok := l.positions[symbol]
	if !ok {
		pos = &position{}
		l.positions[symbol] = pos
	}
	newQty := pos.qty.Add(qty)
	switch {
	case newQty.IsZero():
		pos.avgCost = decimal.Zero
	case pos.qty.IsZero() || pos.qty.Sign() != newQty.Sign():
		pos.avgCost = price
	case qty.Sign() == pos.qty.Sign():
		// 加仓：加权平均成本
		total := pos.avgCost.Mul(pos.qty).Add(price.Mul(qty))
		pos.avgCost = total.Div(newQty)
	}
	pos.qty = newQty
	if pos.qty.IsZero() {
		delete(l.positions, symbol)
	}
}

// canAfford 判断买入是否付得起（现金不足的买单硬拒绝，不做缩量）。
func (l *ledger) canAfford(qty, price, fee decimal.Decimal) bool {
	if qty.Sign() <= 0 {
		return true
	}
	return l.cash.GreaterThanOrEqual(qty.Mul(price).Add(fee))
}

func (l *ledger) cashFloat() float64 {
	return l.cash.InexactFloat64()
}

func (l *ledger) quantity(symbol string) decimal.Decimal {
	if pos, ok := l.positions[symbol]; ok {
		return pos.qty
	}
	return decimal.Zero
}

// equity 现金加持仓按最新收盘价的市值。
func (l *ledger) equity(lastClose map[string]float64) decimal.Decimal {
	total := l.cash
	symbols := make([]string, 0, len(l.positions))
	for sym := range l.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		price, ok := lastClose[sym]
		if !ok {
			continue
		}
		total = total.Add(l.positions[sym].qty.Mul(decimal.NewFromFloat(price)))
	}
	return total
}

// snapshot 导出只读持仓视图。
func (l *ledger) snapshot() map[string]strategy.Position {
	out := make(map[string]strategy.Position, len(l.positions))
	for sym, pos := range l.positions {
		out[sym] = strategy.Position{
			Symbol:   sym,
			Quantity: pos.qty.InexactFloat64(),
			AvgCost:  pos.avgCost.InexactFloat64(),
		}
	}
	return out
}

// finalPositions 排序后的终态持仓。
func (l *ledger) finalPositions() []strategy.Position {
	out := make([]strategy.Position, 0, len(l.positions))
	for sym, pos := range l.positions {
		out = append(out, strategy.Position{
			Symbol:   sym,
			Quantity: pos.qty.InexactFloat64(),
			AvgCost:  pos.avgCost.InexactFloat64(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
