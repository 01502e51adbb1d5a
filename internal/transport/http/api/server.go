package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"stratbench/internal/analysis"
	"stratbench/internal/data"
	"stratbench/internal/engine"
	"stratbench/internal/market"
	"stratbench/internal/report"
	"stratbench/internal/scheduler"
)

// Server 提供回测服务的 HTTP API。
type Server struct {
	addr      string
	sched     *scheduler.Scheduler
	gate      *analysis.Gate
	cache     *data.Cache
	enablePNG bool
	router    *gin.Engine
}

// Config 描述 HTTP Server 的依赖。
type Config struct {
	Addr      string
	Scheduler *scheduler.Scheduler
	Gate      *analysis.Gate
	Cache     *data.Cache
	EnablePNG bool
}

// NewServer 构建 HTTP Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Scheduler == nil {
		return nil, errors.New("scheduler 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:      cfg.Addr,
		sched:     cfg.Scheduler,
		gate:      cfg.Gate,
		cache:     cfg.Cache,
		enablePNG: cfg.EnablePNG,
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	api.POST("/analyze", s.handleAnalyze)
	api.POST("/backtests", s.handleSubmit)
	api.GET("/backtests", s.handleList)
	api.GET("/backtests/:id", s.handleDetail)
	api.GET("/backtests/:id/trades", s.handleTrades)
	api.GET("/backtests/:id/equity", s.handleEquity)
	api.GET("/backtests/:id/metrics", s.handleMetrics)
	api.GET("/backtests/:id/report", s.handleReport)
	api.GET("/data/candles", s.handleCandles)
	api.GET("/data/manifest", s.handleManifest)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": s.sched.Running()})
}

// handleAnalyze 只做静态审查，不排队不执行，用于编辑器里的即时反馈。
func (s *Server) handleAnalyze(c *gin.Context) {
	var req struct {
		Name   string `json:"name"`
		Source string `json:"source" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	verdict := s.gate.Analyze(analysis.Source{Name: req.Name, Code: req.Source})
	c.JSON(http.StatusOK, gin.H{"verdict": verdict})
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req scheduler.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.sched.Submit(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": runSummary(run)})
}

func (s *Server) handleList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.sched.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(runs))
	for i := range runs {
		out = append(out, runSummary(&runs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (s *Server) handleDetail(c *gin.Context) {
	run, err := s.sched.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	violations, err := run.DecodedViolations()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	detail := runSummary(run)
	detail["violations"] = violations
	if outcome, err := run.Outcome(); err == nil && outcome != nil {
		detail["manifest"] = outcome.Manifest
		detail["final_equity"] = outcome.FinalEquity
		detail["final_positions"] = outcome.FinalPositions
	}
	c.JSON(http.StatusOK, gin.H{"run": detail})
}

func (s *Server) handleTrades(c *gin.Context) {
	outcome, ok := s.succeededOutcome(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": outcome.Trades})
}

func (s *Server) handleEquity(c *gin.Context) {
	outcome, ok := s.succeededOutcome(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity_curve": outcome.EquityCurve})
}

func (s *Server) handleMetrics(c *gin.Context) {
	run, outcome, ok := s.runWithOutcome(c)
	if !ok {
		return
	}
	res, err := runResolution(run)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": report.Compute(outcome, res)})
}

// handleReport 默认返回自包含 HTML；format=png 且服务端启用了
// headless 渲染时返回截图。
func (s *Server) handleReport(c *gin.Context) {
	run, outcome, ok := s.runWithOutcome(c)
	if !ok {
		return
	}
	res, err := runResolution(run)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	metrics := report.Compute(outcome, res)
	html, err := report.BuildHTML(run.ID[:8], outcome, metrics)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "png" {
		if !s.enablePNG {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "PNG 渲染未启用"})
			return
		}
		png, err := report.RenderPNG(c.Request.Context(), html)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *Server) handleCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	resKey := c.Query("resolution")
	if symbol == "" || resKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/resolution 必填"})
		return
	}
	res, err := market.ParseResolution(resKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	if start <= 0 || end <= 0 || end < start {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_ts/end_ts 非法"})
		return
	}
	bars, err := s.cache.Bars(c.Request.Context(), symbol, res, start, end)
	if err != nil {
		var gap *data.GapError
		if errors.As(err, &gap) {
			c.JSON(http.StatusBadGateway, gin.H{"error": gap.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": bars})
}

func (s *Server) handleManifest(c *gin.Context) {
	symbol := c.Query("symbol")
	resKey := c.Query("resolution")
	if symbol == "" || resKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/resolution 必填"})
		return
	}
	info, err := s.cache.Manifest(c.Request.Context(), symbol, resKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

func (s *Server) succeededOutcome(c *gin.Context) (outcome *engine.Outcome, ok bool) {
	_, outcome, ok = s.runWithOutcome(c)
	return
}

func (s *Server) runWithOutcome(c *gin.Context) (*scheduler.RunModel, *engine.Outcome, bool) {
	run, err := s.sched.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return nil, nil, false
	}
	outcome, err := run.Outcome()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	if outcome == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "run 未成功完成", "status": run.Status})
		return nil, nil, false
	}
	return run, outcome, true
}

func runResolution(run *scheduler.RunModel) (market.Resolution, error) {
	key := gjson.GetBytes(run.Params, "resolution").String()
	return market.ParseResolution(key)
}

func runSummary(run *scheduler.RunModel) gin.H {
	return gin.H{
		"id":            run.ID,
		"status":        run.Status,
		"failure_kind":  run.FailureKind,
		"error":         run.Error,
		"manifest_hash": run.ManifestHash,
		"created_at":    run.CreatedAt,
		"started_at":    run.StartedAt,
		"finished_at":   run.FinishedAt,
	}
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler 暴露底层路由，测试用。
func (s *Server) Handler() http.Handler { return s.router }
