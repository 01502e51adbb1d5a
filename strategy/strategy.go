// Package strategy 定义用户策略与回测引擎之间的契约。
// 沙箱内解释执行的策略代码只允许 import 本包（以及策略白名单内的标准库）。
package strategy

import "fmt"

// Strategy 是引擎消费的能力集合。解释器加载的脚本与内置策略
// 都以该接口的形式进入引擎，引擎侧不做任何反射。
type Strategy interface {
	// Universe 返回策略关注的 symbol 列表，不允许为空。
	Universe() []string
	// Cadence 控制 OnData 的触发频率。
	Cadence() Cadence
	// Indicators 声明策略依赖的指标，决定 warmup 长度。
	Indicators() []IndicatorSpec
	// OnData 在每个可交易时刻被调用，返回交易信号。
	OnData(s *Slice, p *Portfolio) Signal
}

// Cadence 描述 OnData 的调用节奏：每 Every 根 bar 触发一次。
type Cadence struct {
	Every int
}

// EveryBar 每根 bar 都触发（默认行为）。
func EveryBar() Cadence { return Cadence{Every: 1} }

// EveryN 每 n 根 bar 触发一次。
func EveryN(n int) Cadence {
	if n < 1 {
		n = 1
	}
	return Cadence{Every: n}
}

// IndicatorKind 指标类型。
type IndicatorKind string

const (
	IndicatorSMA IndicatorKind = "sma"
	IndicatorEMA IndicatorKind = "ema"
	IndicatorRSI IndicatorKind = "rsi"
)

// IndicatorSpec 声明一个指标及其周期。
type IndicatorSpec struct {
	Kind   IndicatorKind
	Period int
}

// SMA 简单移动平均。
func SMA(period int) IndicatorSpec { return IndicatorSpec{Kind: IndicatorSMA, Period: period} }

// EMA 指数移动平均。
func EMA(period int) IndicatorSpec { return IndicatorSpec{Kind: IndicatorEMA, Period: period} }

// RSI 相对强弱指标。
func RSI(period int) IndicatorSpec { return IndicatorSpec{Kind: IndicatorRSI, Period: period} }

// Name 返回 Slice 中可查询的指标名，如 "SMA21"。
func (s IndicatorSpec) Name() string {
	switch s.Kind {
	case IndicatorSMA:
		return fmt.Sprintf("SMA%d", s.Period)
	case IndicatorEMA:
		return fmt.Sprintf("EMA%d", s.Period)
	case IndicatorRSI:
		return fmt.Sprintf("RSI%d", s.Period)
	default:
		return fmt.Sprintf("%s%d", s.Kind, s.Period)
	}
}

// Lookback 返回指标产生首个有效值所需的历史 bar 数。
func (s IndicatorSpec) Lookback() int {
	if s.Period <= 0 {
		return 0
	}
	switch s.Kind {
	case IndicatorRSI:
		return s.Period + 1
	default:
		return s.Period
	}
}
