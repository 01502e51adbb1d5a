package strategy

// SignalKind 标记 OnData 返回的信号语义。
type SignalKind int

const (
	// KindHold 本周期不做任何调整。
	KindHold SignalKind = iota
	// KindTargetWeights 目标权重形式（权重和 ≤ 1.0），为规范形式。
	KindTargetWeights
	// KindOrders 显式买卖指令形式，进入引擎前会被归一化。
	KindOrders
	// KindLiquidate 清空全部持仓。
	KindLiquidate
)

// Order 是显式下单形式的一条指令，Quantity 为带符号股数。
type Order struct {
	Symbol   string
	Quantity float64
}

// Signal 是 OnData 的返回值。两种下单风格都收敛到这一个类型，
// 引擎只需要处理一个信号模型。
type Signal struct {
	Kind    SignalKind
	Weights map[string]float64
	Orders  []Order
}

// Hold 维持现状。
func Hold() Signal { return Signal{Kind: KindHold} }

// Liquidate 清仓信号。
func Liquidate() Signal { return Signal{Kind: KindLiquidate} }

// TargetWeights 目标权重信号；weights 的 key 为 symbol。
func TargetWeights(weights map[string]float64) Signal {
	return Signal{Kind: KindTargetWeights, Weights: weights}
}

// Orders 显式指令信号。
func Orders(orders ...Order) Signal {
	return Signal{Kind: KindOrders, Orders: orders}
}

// Buy 构造买入指令。
func Buy(symbol string, qty float64) Order { return Order{Symbol: symbol, Quantity: qty} }

// Sell 构造卖出指令。
func Sell(symbol string, qty float64) Order { return Order{Symbol: symbol, Quantity: -qty} }
