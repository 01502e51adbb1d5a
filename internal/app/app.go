package app

import (
	"context"
	"fmt"

	"time"

	"golang.org/x/sync/errgroup"

	"stratbench/internal/analysis"
	sbcfg "stratbench/internal/config"
	"stratbench/internal/logger"
	"stratbench/internal/scheduler"
	apihttp "stratbench/internal/transport/http/api"
)

const shutdownGrace = 15 * time.Second

// App 负责应用级编排：加载配置→初始化依赖→启动调度与 HTTP 服务。
type App struct {
	cfg      *sbcfg.Config
	policies *analysis.PolicyStore
	sched    *scheduler.Scheduler
	store    *scheduler.RunStore
	server   *apihttp.Server
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *sbcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务并阻塞到 ctx 取消，然后按依赖反序收尾。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	err := group.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if closeErr := a.sched.Close(shutdownCtx); closeErr != nil {
		logger.Warnf("[app] 调度器收尾失败: %v", closeErr)
	}
	if a.policies != nil {
		_ = a.policies.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	return err
}
