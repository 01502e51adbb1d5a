package strategy

import "sort"

// Position 持仓视图：数量与平均成本，仅由成交修改。
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// Portfolio 是传给 OnData 的只读组合视图。
type Portfolio struct {
	cash      float64
	equity    float64
	positions map[string]Position
}

// NewPortfolioView 由引擎构建，positions 被拷贝。
func NewPortfolioView(cash, equity float64, positions map[string]Position) *Portfolio {
	cp := make(map[string]Position, len(positions))
	for k, v := range positions {
		cp[k] = v
	}
	return &Portfolio{cash: cash, equity: equity, positions: cp}
}

// Cash 当前现金。
func (p *Portfolio) Cash() float64 { return p.cash }

// Equity 现金加持仓市值。
func (p *Portfolio) Equity() float64 { return p.equity }

// Position 返回 symbol 的持仓；无持仓时返回零值。
func (p *Portfolio) Position(symbol string) Position {
	if pos, ok := p.positions[symbol]; ok {
		return pos
	}
	return Position{Symbol: symbol}
}

// Positions 返回全部非零持仓（按 symbol 排序）。
func (p *Portfolio) Positions() []Position {
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if pos.Quantity != 0 {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Invested 报告是否持有 symbol。
func (p *Portfolio) Invested(symbol string) bool {
	return p.positions[symbol].Quantity != 0
}
