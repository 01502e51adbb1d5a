package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/gjson"

	"stratbench/internal/engine"
	"stratbench/internal/logger"
)

// WorkerArg 是子进程模式的哨兵参数：宿主用它重新执行自身二进制，
// main 看到它就直接进 WorkerMain 而不是起服务。
const WorkerArg = "sandbox-worker"

const maxWorkerOutput = 8 << 20

// Executor 在受限子进程里执行一次回测。隔离手段叠了三层：
// 子进程环境变量清空、worker 自挂 rlimit、宿主的 wall-clock
// 截止时间兜底。任何一层失败都折叠成带分类的 ExecError。
type Executor struct {
	selfPath string
	timeout  time.Duration
}

func NewExecutor(timeout time.Duration) (*Executor, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("定位自身二进制失败: %w", err)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{selfPath: self, timeout: timeout}, nil
}

// Run 同步执行一个 Job。返回的 error 要么是 *ExecError（沙箱层
// 失败，带分类），要么是 ctx 取消。
func (e *Executor) Run(ctx context.Context, job *Job) (*engine.Outcome, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, &ExecError{Kind: FailureBadOutput, Detail: "序列化任务载荷失败: " + err.Error()}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.selfPath, WorkerArg)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = newCappedWriter(&stdout, maxWorkerOutput)
	cmd.Stderr = newCappedWriter(&stderr, 64<<10)
	cmd.Env = []string{}
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		logger.Warnf("[sandbox] worker 超时被杀, elapsed=%s", elapsed)
		return nil, &ExecError{Kind: FailureTimedOut, Detail: fmt.Sprintf("超过 %s 墙钟上限", e.timeout)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runErr != nil && killedByResourceLimit(runErr) {
		logger.Warnf("[sandbox] worker 触发资源上限, elapsed=%s stderr=%s", elapsed, firstLine(stderr.String()))
		return nil, &ExecError{Kind: FailureResourceExceeded, Detail: "worker 被内核资源限制终止"}
	}

	result, decodeErr := decodeResult(stdout.Bytes())
	if decodeErr != nil {
		detail := decodeErr.Error()
		if msg := firstLine(stderr.String()); msg != "" {
			detail += "; stderr: " + msg
		}
		return nil, &ExecError{Kind: FailureBadOutput, Detail: detail}
	}
	if result.Status != resultOK {
		return nil, &ExecError{Kind: FailureRuntimeError, Detail: result.Error}
	}

	logger.Infof("[sandbox] worker 完成, elapsed=%s ticks=%d", elapsed, result.Outcome.Manifest.Ticks)
	return result.Outcome, nil
}

// decodeResult 先做形状校验再反序列化，不可信输出不直接进解码器。
// 结果是 worker 写出的最后一行 JSON；之前的行（解释执行的策略打印
// 的杂音、误走 stdout 的日志）一律忽略。
func decodeResult(raw []byte) (*Result, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, errors.New("worker 没有任何输出")
	}
	if text[0] != '{' || !gjson.Valid(text) {
		text = lastJSONLine(raw)
	}
	if text == "" {
		return nil, errors.New("worker 输出不含合法 JSON 结果")
	}
	var shape any
	if err := json.Unmarshal([]byte(text), &shape); err != nil {
		return nil, err
	}
	if err := compiledResultSchema.Validate(shape); err != nil {
		return nil, fmt.Errorf("worker 输出不符合结果 schema: %v", err)
	}
	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, err
	}
	if result.Status == resultOK && result.Outcome == nil {
		return nil, errors.New("status=ok 但缺少 outcome")
	}
	return &result, nil
}

// lastJSONLine 从后往前找第一行以 '{' 开头且整体合法的 JSON。
func lastJSONLine(raw []byte) string {
	lines := strings.Split(string(raw), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || line[0] != '{' {
			continue
		}
		if gjson.Valid(line) {
			return line
		}
	}
	return ""
}

// killedByResourceLimit 识别 rlimit 触发的终止信号。
func killedByResourceLimit(runErr error) bool {
	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return false
	}
	switch status.Signal() {
	case syscall.SIGKILL, syscall.SIGXCPU, syscall.SIGSEGV:
		return true
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

// cappedWriter 截断超出上限的子进程输出，多余字节直接丢弃。
type cappedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func newCappedWriter(buf *bytes.Buffer, limit int) *cappedWriter {
	return &cappedWriter{buf: buf, limit: limit}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	room := w.limit - w.buf.Len()
	if room <= 0 {
		return len(p), nil
	}
	if len(p) > room {
		w.buf.Write(p[:room])
		return len(p), nil
	}
	return w.buf.Write(p)
}
