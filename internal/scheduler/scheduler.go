package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"

	"stratbench/internal/analysis"
	"stratbench/internal/data"
	"stratbench/internal/engine"
	"stratbench/internal/logger"
	"stratbench/internal/market"
	"stratbench/internal/sandbox"
)

// RunRequest 是一次回测提交。SymbolsHint 只在静态分析提不出
// universe 时使用。
type RunRequest struct {
	Name           string   `json:"name"`
	Source         string   `json:"source"`
	SymbolsHint    []string `json:"symbols_hint,omitempty"`
	Resolution     string   `json:"resolution"`
	Start          int64    `json:"start"`
	End            int64    `json:"end"`
	InitialCapital float64  `json:"initial_capital"`
	Commission     float64  `json:"commission"`
}

// ErrUnknownUniverse 表示既没有可静态提取的 universe 也没有 hint。
var ErrUnknownUniverse = errors.New("无法确定 universe: 静态分析未能提取且请求未提供 symbols_hint")

// Runner 执行一次已备好数据的回测。生产实现是 sandbox.Executor。
type Runner interface {
	Run(ctx context.Context, job *sandbox.Job) (*engine.Outcome, error)
}

// Scheduler 是准入控制器：静态审查在提交线程同步完成，被拒绝的
// 任务永远不占沙箱名额；通过审查的任务排队等待信号量，最多
// maxConcurrent 个沙箱同时在跑。信号量的等待队列是 FIFO 的，
// 先提交的任务先拿到名额。
type Scheduler struct {
	gate     *analysis.Gate
	cache    *data.Cache
	executor Runner
	store    *RunStore

	sem     *semaphore.Weighted
	running atomic.Int64

	mu      sync.Mutex
	waiters map[string]chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(gate *analysis.Gate, cache *data.Cache, executor Runner, store *RunStore, maxConcurrent int) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gate:     gate,
		cache:    cache,
		executor: executor,
		store:    store,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		waiters:  make(map[string]chan struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Submit 受理一次提交并立即返回任务记录。静态审查是同步的：
// 拒绝结论在返回值里立刻可见，被拒代码不占沙箱计数。
// 通过审查的任务转入后台执行。
func (s *Scheduler) Submit(req RunRequest) (*RunModel, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	res, err := market.ParseResolution(req.Resolution)
	if err != nil {
		return nil, err
	}

	verdict := s.gate.Analyze(analysis.Source{Name: req.Name, Code: req.Source})

	params, _ := json.Marshal(req)
	run := &RunModel{
		ID:        uuid.NewString(),
		Status:    string(StatusQueued),
		Source:    req.Source,
		Params:    datatypes.JSON(params),
		CreatedAt: nowMillis(),
	}

	if !verdict.Accepted {
		run.Status = string(StatusRejected)
		raw, _ := json.Marshal(verdict.Violations)
		run.Violations = datatypes.JSON(raw)
		run.FinishedAt = nowMillis()
		if err := s.store.Create(run); err != nil {
			return nil, err
		}
		logger.Infof("[scheduler] 提交 %s 被静态审查拒绝, violations=%d", run.ID, len(verdict.Violations))
		return run, nil
	}

	universe := verdict.Meta.Universe
	if len(universe) == 0 {
		universe = req.SymbolsHint
	}
	if len(universe) == 0 {
		return nil, ErrUnknownUniverse
	}

	if err := s.store.Create(run); err != nil {
		return nil, err
	}
	s.registerWaiter(run.ID)

	s.wg.Add(1)
	go s.execute(run.ID, req, res, universe)

	logger.Infof("[scheduler] 任务 %s 入队, universe=%v range=[%d,%d]", run.ID, universe, req.Start, req.End)
	return run, nil
}

// execute 是任务的后台生命周期：等名额、备数据、跑沙箱、落库。
func (s *Scheduler) execute(id string, req RunRequest, res market.Resolution, universe []string) {
	defer s.wg.Done()
	defer s.notifyWaiter(id)

	if err := s.sem.Acquire(s.baseCtx, 1); err != nil {
		s.fail(id, sandbox.FailureRuntimeError, "服务关停，任务未执行")
		return
	}
	defer s.sem.Release(1)

	s.running.Add(1)
	defer s.running.Add(-1)

	if err := s.store.markRunning(id); err != nil {
		logger.Errorf("[scheduler] 任务 %s 标记 running 失败: %v", id, err)
	}

	// 数据准备在沙箱之外完成，不可信代码拿到的是现成的 bar 序列。
	series := make(map[string][]market.Bar, len(universe))
	for _, sym := range universe {
		bars, err := s.cache.Bars(s.baseCtx, sym, res, req.Start, req.End)
		if err != nil {
			var gap *data.GapError
			if errors.As(err, &gap) {
				s.fail(id, sandbox.FailureDataGap, gap.Error())
				return
			}
			s.fail(id, sandbox.FailureRuntimeError, "数据准备失败: "+err.Error())
			return
		}
		series[sym] = bars
	}

	outcome, err := s.executor.Run(s.baseCtx, &sandbox.Job{
		Source:         req.Source,
		Resolution:     res.Key,
		Start:          req.Start,
		End:            req.End,
		InitialCapital: req.InitialCapital,
		Commission:     req.Commission,
		Series:         series,
	})
	if err != nil {
		var execErr *sandbox.ExecError
		if errors.As(err, &execErr) {
			s.fail(id, execErr.Kind, execErr.Detail)
			return
		}
		s.fail(id, sandbox.FailureRuntimeError, err.Error())
		return
	}

	if err := s.store.markSucceeded(id, outcome); err != nil {
		logger.Errorf("[scheduler] 任务 %s 落库失败: %v", id, err)
		return
	}
	logger.Infof("[scheduler] 任务 %s 完成, hash=%s trades=%d", id, outcome.Manifest.Hash[:12], len(outcome.Trades))
}

func (s *Scheduler) fail(id string, kind sandbox.FailureKind, msg string) {
	logger.Warnf("[scheduler] 任务 %s 失败(%s): %s", id, kind, msg)
	if err := s.store.markFailed(id, kind, msg); err != nil {
		logger.Errorf("[scheduler] 任务 %s 标记 failed 失败: %v", id, err)
	}
}

// Get 返回任务当前快照。
func (s *Scheduler) Get(id string) (*RunModel, error) { return s.store.Get(id) }

// List 返回最近的任务。
func (s *Scheduler) List(limit int) ([]RunModel, error) { return s.store.List(limit) }

// Running 返回此刻占用沙箱名额的任务数，用于健康检查和测试。
func (s *Scheduler) Running() int64 { return s.running.Load() }

// Await 阻塞到任务进入终态或 ctx 取消。已是终态的任务立即返回。
func (s *Scheduler) Await(ctx context.Context, id string) (*RunModel, error) {
	run, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if RunStatus(run.Status).Terminal() {
		return run, nil
	}
	if ch := s.waiterChan(id); ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.store.Get(id)
}

// Close 取消在排队的任务并等待在途任务收尾。
func (s *Scheduler) Close(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待在途任务超时: %w", ctx.Err())
	}
}

func (s *Scheduler) registerWaiter(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters[id] = make(chan struct{})
}

func (s *Scheduler) waiterChan(id string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters[id]
}

func (s *Scheduler) notifyWaiter(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.waiters[id]; ok {
		close(ch)
		delete(s.waiters, id)
	}
}

func validateRequest(req *RunRequest) error {
	switch {
	case req.Source == "":
		return errors.New("source 不能为空")
	case req.Start <= 0 || req.End <= 0 || req.End < req.Start:
		return fmt.Errorf("时间区间非法: [%d, %d]", req.Start, req.End)
	case req.InitialCapital <= 0:
		return fmt.Errorf("初始资金必须为正: %.2f", req.InitialCapital)
	case req.Commission < 0:
		return fmt.Errorf("手续费不能为负: %.4f", req.Commission)
	}
	if req.End-req.Start > 10*366*24*time.Hour.Milliseconds() {
		return errors.New("时间区间超过 10 年上限")
	}
	return nil
}
