package scheduler

import (
	"gorm.io/datatypes"
)

// RunStatus 是任务的生命周期状态。rejected 和 failed 是不同的
// 终态：前者是静态审查不通过，沙箱从未启动；后者是执行阶段失败。
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusRejected  RunStatus = "rejected"
)

// terminal 状态不再迁移。
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusRejected:
		return true
	}
	return false
}

// RunModel 是一次回测任务的持久化记录。源码、参数、违规明细和
// 结果都落库，服务重启后历史任务完整可查。
type RunModel struct {
	ID           string         `gorm:"column:id;primaryKey"`
	Status       string         `gorm:"column:status;index"`
	Source       string         `gorm:"column:source"`
	Params       datatypes.JSON `gorm:"column:params"`
	Violations   datatypes.JSON `gorm:"column:violations"`
	FailureKind  string         `gorm:"column:failure_kind"`
	Error        string         `gorm:"column:error"`
	Result       datatypes.JSON `gorm:"column:result"`
	ManifestHash string         `gorm:"column:manifest_hash;index"`
	CreatedAt    int64          `gorm:"column:created_at;index"`
	StartedAt    int64          `gorm:"column:started_at"`
	FinishedAt   int64          `gorm:"column:finished_at"`
}

func (RunModel) TableName() string { return "backtest_runs" }
