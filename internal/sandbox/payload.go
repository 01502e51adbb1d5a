package sandbox

import (
	"stratbench/internal/engine"
	"stratbench/internal/market"
)

// Job 是宿主通过 stdin 交给 worker 子进程的完整输入。
// worker 除了这份载荷外拿不到任何东西：没有环境变量，
// 没有网络，没有工作目录里的文件。
type Job struct {
	Source         string                  `json:"source"`
	Resolution     string                  `json:"resolution"`
	Start          int64                   `json:"start"`
	End            int64                   `json:"end"`
	InitialCapital float64                 `json:"initial_capital"`
	Commission     float64                 `json:"commission"`
	Series         map[string][]market.Bar `json:"series"`
}

// Result 是 worker 写回 stdout 的唯一输出。Status 为 ok 时
// Outcome 必填；否则 Error 描述失败原因。
type Result struct {
	Status  string          `json:"status"` // ok | error
	Error   string          `json:"error,omitempty"`
	Outcome *engine.Outcome `json:"outcome,omitempty"`
}

const (
	resultOK    = "ok"
	resultError = "error"
)

// Outcome 终态分类，宿主据此决定任务的最终状态。
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureTimedOut         FailureKind = "timed_out"
	FailureResourceExceeded FailureKind = "resource_exceeded"
	FailureRuntimeError     FailureKind = "runtime_error"
	FailureBadOutput        FailureKind = "bad_output"

	// FailureDataGap 由调度器在数据准备阶段打上：上游补不齐缺口
	// 不是策略代码的错，调用方要能结构化地区分这两类失败。
	FailureDataGap FailureKind = "data_gap"
)

// ExecError 携带失败分类和底层原因，宿主不把它和普通 error 混用。
type ExecError struct {
	Kind   FailureKind
	Detail string
}

func (e *ExecError) Error() string {
	return "sandbox " + string(e.Kind) + ": " + e.Detail
}
