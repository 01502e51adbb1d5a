package sandbox

import (
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"stratbench/strategy"
)

// interpretAllowed 是解释器可见的标准库子集，与静态检查的
// import 白名单保持一致。解释器里根本不存在的包，策略代码
// 绕过检查也用不了。
var interpretAllowed = []string{"errors", "fmt", "math", "sort", "strconv", "strings", "time"}

// LoadStrategy 把一段策略源码装进解释器并包装成 Strategy。
// 源码在这之前已经过静态检查，这里的错误属于运行时失败
// （比如顶层初始化 panic），按 runtime_error 上报。
func LoadStrategy(source string) (strategy.Strategy, error) {
	pkg, err := packageName(source)
	if err != nil {
		return nil, fmt.Errorf("解析策略源码失败: %w", err)
	}

	i := interp.New(interp.Options{Stdout: io.Discard, Stderr: io.Discard})
	if err := i.Use(restrictedStdlib()); err != nil {
		return nil, fmt.Errorf("装载标准库符号失败: %w", err)
	}
	if err := i.Use(strategySymbols()); err != nil {
		return nil, fmt.Errorf("装载 strategy 符号失败: %w", err)
	}
	if _, err := i.Eval(source); err != nil {
		return nil, fmt.Errorf("解释策略源码失败: %w", err)
	}

	s := &interpreted{}

	v, err := i.Eval(pkg + ".Universe")
	if err != nil {
		return nil, fmt.Errorf("策略缺少 Universe: %w", err)
	}
	fn, ok := v.Interface().(func() []string)
	if !ok {
		return nil, fmt.Errorf("Universe 签名必须是 func() []string")
	}
	s.universe = fn

	v, err = i.Eval(pkg + ".OnData")
	if err != nil {
		return nil, fmt.Errorf("策略缺少 OnData: %w", err)
	}
	onData, ok := v.Interface().(func(*strategy.Slice, *strategy.Portfolio) strategy.Signal)
	if !ok {
		return nil, fmt.Errorf("OnData 签名必须是 func(*strategy.Slice, *strategy.Portfolio) strategy.Signal")
	}
	s.onData = onData

	// Indicators 和 Cadence 可省略，省略时用零指标与逐 bar 节奏。
	if v, err := i.Eval(pkg + ".Indicators"); err == nil {
		if fn, ok := v.Interface().(func() []strategy.IndicatorSpec); ok {
			s.indicators = fn
		}
	}
	if v, err := i.Eval(pkg + ".Cadence"); err == nil {
		if fn, ok := v.Interface().(func() strategy.Cadence); ok {
			s.cadence = fn
		}
	}

	return s, nil
}

// interpreted 把解释器里的顶层函数适配成 Strategy 接口。
type interpreted struct {
	universe   func() []string
	indicators func() []strategy.IndicatorSpec
	cadence    func() strategy.Cadence
	onData     func(*strategy.Slice, *strategy.Portfolio) strategy.Signal
}

func (s *interpreted) Universe() []string { return s.universe() }

func (s *interpreted) Indicators() []strategy.IndicatorSpec {
	if s.indicators == nil {
		return nil
	}
	return s.indicators()
}

func (s *interpreted) Cadence() strategy.Cadence {
	if s.cadence == nil {
		return strategy.EveryBar()
	}
	return s.cadence()
}

func (s *interpreted) OnData(slice *strategy.Slice, view *strategy.Portfolio) strategy.Signal {
	return s.onData(slice, view)
}

func packageName(source string) (string, error) {
	f, err := parser.ParseFile(token.NewFileSet(), "strategy.go", source, parser.PackageClauseOnly)
	if err != nil {
		return "", err
	}
	return f.Name.Name, nil
}

// restrictedStdlib 从完整符号表里筛出白名单包。符号表的 key 形如
// "math/rand/rand"（末段是包名），裁掉末段才是 import 路径，
// 这样 math 放行不会连带放行 math/rand。
func restrictedStdlib() interp.Exports {
	out := make(interp.Exports, len(interpretAllowed))
	for key, symbols := range stdlib.Symbols {
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		path := key[:idx]
		for _, allowed := range interpretAllowed {
			if path == allowed {
				out[key] = symbols
				break
			}
		}
	}
	return out
}

// strategySymbols 让解释执行的代码 import "stratbench/strategy"。
func strategySymbols() interp.Exports {
	return interp.Exports{
		"stratbench/strategy/strategy": {
			"SMA":           reflect.ValueOf(strategy.SMA),
			"EMA":           reflect.ValueOf(strategy.EMA),
			"RSI":           reflect.ValueOf(strategy.RSI),
			"EveryBar":      reflect.ValueOf(strategy.EveryBar),
			"EveryN":        reflect.ValueOf(strategy.EveryN),
			"Hold":          reflect.ValueOf(strategy.Hold),
			"Liquidate":     reflect.ValueOf(strategy.Liquidate),
			"TargetWeights": reflect.ValueOf(strategy.TargetWeights),
			"Orders":        reflect.ValueOf(strategy.Orders),
			"Buy":           reflect.ValueOf(strategy.Buy),
			"Sell":          reflect.ValueOf(strategy.Sell),

			"Bar":           reflect.ValueOf((*strategy.Bar)(nil)),
			"Cadence":       reflect.ValueOf((*strategy.Cadence)(nil)),
			"IndicatorSpec": reflect.ValueOf((*strategy.IndicatorSpec)(nil)),
			"Order":         reflect.ValueOf((*strategy.Order)(nil)),
			"Portfolio":     reflect.ValueOf((*strategy.Portfolio)(nil)),
			"Position":      reflect.ValueOf((*strategy.Position)(nil)),
			"Signal":        reflect.ValueOf((*strategy.Signal)(nil)),
			"Slice":         reflect.ValueOf((*strategy.Slice)(nil)),
		},
	}
}
