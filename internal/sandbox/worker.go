package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"stratbench/internal/engine"
	"stratbench/internal/market"
)

// WorkerMain 是沙箱子进程的入口：从 stdin 读一个 Job，跑完引擎，
// 往 stdout 写一个 Result，然后退出。它从不直接 panic 退出，
// 策略代码炸了也会折叠成一条 error 结果，让宿主拿到结构化失败
// 而不是裸退出码。
//
// 资源上限由入口在调用本函数之前压下去（见 ApplyResourceLimits），
// 超限时进程会被内核杀掉，宿主按退出信号分类，这里不需要自保护。
func WorkerMain(stdin io.Reader, stdout io.Writer) int {
	var job Job
	if err := json.NewDecoder(stdin).Decode(&job); err != nil {
		writeResult(stdout, Result{Status: resultError, Error: "解析任务载荷失败: " + err.Error()})
		return 1
	}

	result := runJob(&job)
	writeResult(stdout, result)
	if result.Status != resultOK {
		return 1
	}
	return 0
}

// runJob 把策略装载和回放包在一个 recover 边界里。
func runJob(job *Job) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Status: resultError, Error: fmt.Sprintf("策略运行时 panic: %v", r)}
		}
	}()

	res, err := market.ParseResolution(job.Resolution)
	if err != nil {
		return Result{Status: resultError, Error: err.Error()}
	}

	strat, err := LoadStrategy(job.Source)
	if err != nil {
		return Result{Status: resultError, Error: err.Error()}
	}

	outcome, err := engine.Simulate(context.Background(), strat, job.Series, engine.Config{
		Source:         job.Source,
		InitialCapital: job.InitialCapital,
		Commission:     job.Commission,
		Resolution:     res,
		Start:          job.Start,
		End:            job.End,
	})
	if err != nil {
		return Result{Status: resultError, Error: err.Error()}
	}
	return Result{Status: resultOK, Outcome: outcome}
}

func writeResult(w io.Writer, result Result) {
	if err := json.NewEncoder(w).Encode(result); err != nil {
		fmt.Fprintln(os.Stderr, "写回结果失败:", err)
	}
}
