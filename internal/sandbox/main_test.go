package sandbox

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratbench/internal/logger"
)

// 测试二进制自己就能充当 worker：Executor 端到端路径不需要预先
// 构建服务二进制。分流逻辑与 cmd/stratbench 的 main 保持一致。
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == WorkerArg {
		logger.SetOutput(os.Stderr)
		os.Exit(WorkerMain(os.Stdin, os.Stdout))
	}
	os.Exit(m.Run())
}

const holdSource = `package main

import "stratbench/strategy"

func Universe() []string { return []string{"BTCUSDT"} }

func OnData(s *strategy.Slice, p *strategy.Portfolio) strategy.Signal {
	return strategy.Hold()
}
`

const spinSource = `package main

import "stratbench/strategy"

func Universe() []string { return []string{"BTCUSDT"} }

func OnData(s *strategy.Slice, p *strategy.Portfolio) strategy.Signal {
	for {
	}
}
`

// 真实子进程跑通一单：引擎日志走 stderr，stdout 的结果 JSON 必须
// 原样解析成功，而不是折叠成 bad_output。
func TestExecutorRunRealWorker(t *testing.T) {
	exe, err := NewExecutor(30 * time.Second)
	require.NoError(t, err)

	outcome, err := exe.Run(context.Background(), workerJob(holdSource))
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Len(t, outcome.EquityCurve, 10)
	assert.Len(t, outcome.Manifest.Hash, 64)
	assert.Empty(t, outcome.Trades)
}

func TestExecutorRunRealWorkerDeterministic(t *testing.T) {
	exe, err := NewExecutor(30 * time.Second)
	require.NoError(t, err)

	first, err := exe.Run(context.Background(), workerJob(holdSource))
	require.NoError(t, err)
	second, err := exe.Run(context.Background(), workerJob(holdSource))
	require.NoError(t, err)
	assert.Equal(t, first.Manifest.Hash, second.Manifest.Hash)
	assert.Equal(t, first.EquityCurve, second.EquityCurve)
}

func TestExecutorRunWallClockTimeout(t *testing.T) {
	exe, err := NewExecutor(2 * time.Second)
	require.NoError(t, err)

	_, err = exe.Run(context.Background(), workerJob(spinSource))
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, FailureTimedOut, execErr.Kind)
}
