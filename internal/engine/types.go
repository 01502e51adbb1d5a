package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"stratbench/internal/market"
	"stratbench/strategy"
)

// Config 是一次模拟的全部参数。Source 参与 manifest 哈希，
// 引擎本身不解析它。
type Config struct {
	Source         string
	InitialCapital float64
	Commission     float64
	Resolution     market.Resolution
	Start          int64
	End            int64
}

// ConfigError 表示参数层面的失败（空 universe、非法本金等），
// 在任何 bar 被处理之前返回。
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "engine 配置非法: " + e.Reason }

func configErrf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// Trade 终态常量。
const (
	TradeFilled   = "filled"
	TradeUnfilled = "unfilled"
	TradeRejected = "rejected"
)

// Trade 记录一条订单的完整生命周期。在 t 时刻产生的订单固定在
// 下一根 bar 的开盘成交；序列末尾产生的订单按 unfilled 上报而不是
// 被悄悄丢弃。
type Trade struct {
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"` // 带符号股数
	Price       float64 `json:"price"`    // 成交价（未成交为 0）
	Fee         float64 `json:"fee"`
	SubmittedAt int64   `json:"submitted_at"` // 决策 bar 的时间戳
	FilledAt    int64   `json:"filled_at,omitempty"`
	Status      string  `json:"status"`
	Reason      string  `json:"reason,omitempty"`
}

// Snapshot 每个时钟 tick 追加一条，无论是否发生交易；
// 有序序列即资金曲线。
type Snapshot struct {
	Timestamp int64   `json:"timestamp"`
	Cash      float64 `json:"cash"`
	Equity    float64 `json:"equity"`
}

// Manifest 记录可复现性信息：相同输入必产生相同 Hash 与结果。
type Manifest struct {
	Hash           string   `json:"hash"`
	Symbols        []string `json:"symbols"`
	Start          int64    `json:"start"`
	End            int64    `json:"end"`
	Resolution     string   `json:"resolution"`
	InitialCapital float64  `json:"initial_capital"`
	Commission     float64  `json:"commission"`
	Ticks          int      `json:"ticks"`
}

// Outcome 是引擎的全部输出。
type Outcome struct {
	EquityCurve    []Snapshot          `json:"equity_curve"`
	Trades         []Trade             `json:"trades"`
	FinalCash      float64             `json:"final_cash"`
	FinalEquity    float64             `json:"final_equity"`
	FinalPositions []strategy.Position `json:"final_positions"`
	Manifest       Manifest            `json:"manifest"`
}

// buildManifest 对 (源码, 参数, 区间) 做内容哈希。字段先归一化成
// 确定性 JSON，避免哈希依赖 map 迭代顺序。
func buildManifest(cfg Config, symbols []string, ticks int) Manifest {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	params, _ := json.Marshal(struct {
		Symbols        []string `json:"symbols"`
		Start          int64    `json:"start"`
		End            int64    `json:"end"`
		Resolution     string   `json:"resolution"`
		InitialCapital float64  `json:"initial_capital"`
		Commission     float64  `json:"commission"`
	}{sorted, cfg.Start, cfg.End, cfg.Resolution.Key, cfg.InitialCapital, cfg.Commission})

	h := sha256.New()
	h.Write([]byte(cfg.Source))
	h.Write([]byte{'\n'})
	h.Write(params)

	return Manifest{
		Hash:           hex.EncodeToString(h.Sum(nil)),
		Symbols:        sorted,
		Start:          cfg.Start,
		End:            cfg.End,
		Resolution:     cfg.Resolution.Key,
		InitialCapital: cfg.InitialCapital,
		Commission:     cfg.Commission,
		Ticks:          ticks,
	}
}
