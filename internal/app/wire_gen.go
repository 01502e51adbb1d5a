//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stratbench/internal/analysis"
	sbcfg "stratbench/internal/config"
	"stratbench/internal/data"
	"stratbench/internal/logger"
	"stratbench/internal/sandbox"
	"stratbench/internal/scheduler"
	apihttp "stratbench/internal/transport/http/api"
)

func buildAppWithWire(_ context.Context, cfg *sbcfg.Config) (*App, error) {
	policies, err := providePolicyStore(cfg)
	if err != nil {
		return nil, err
	}
	gate := analysis.NewGate(policies)

	cache, err := provideCache(cfg)
	if err != nil {
		return nil, err
	}
	store, err := scheduler.NewRunStore(cfg.Store.RunsDB)
	if err != nil {
		return nil, err
	}
	executor, err := sandbox.NewExecutor(time.Duration(cfg.Sandbox.TimeoutSeconds) * time.Second)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(gate, cache, executor, store, cfg.Sandbox.MaxConcurrent)

	server, err := apihttp.NewServer(apihttp.Config{
		Addr:      cfg.App.HTTPAddr,
		Scheduler: sched,
		Gate:      gate,
		Cache:     cache,
		EnablePNG: cfg.Report.EnablePNG,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		policies: policies,
		sched:    sched,
		store:    store,
		server:   server,
	}, nil
}

// providePolicyStore 加载审查策略并开启热更新。路径为空时使用
// 内置默认策略。
func providePolicyStore(cfg *sbcfg.Config) (*analysis.PolicyStore, error) {
	policies, err := analysis.NewPolicyStore(cfg.Analysis.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("加载审查策略失败: %w", err)
	}
	if cfg.Analysis.PolicyPath != "" {
		if err := policies.Watch(); err != nil {
			logger.Warnf("[app] 审查策略热更新不可用: %v", err)
		}
	}
	return policies, nil
}

func provideCache(cfg *sbcfg.Config) (*data.Cache, error) {
	store, err := data.NewStore(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("初始化行情存储失败: %w", err)
	}
	var provider data.Provider
	switch strings.ToLower(cfg.Data.Provider) {
	case "synthetic":
		provider = data.NewSyntheticProvider()
	default:
		provider = data.NewBinanceProvider()
	}
	return data.NewCache(data.CacheConfig{
		Store:           store,
		Provider:        provider,
		RateLimitPerMin: cfg.Data.RateLimitPerMin,
	})
}
