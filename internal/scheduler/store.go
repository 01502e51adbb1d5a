package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stratbench/internal/analysis"
	"stratbench/internal/engine"
	"stratbench/internal/sandbox"
)

// RunStore 用 Gorm + SQLite 持久化回测任务。写路径都经过调度器
// 串行化，这里不需要乐观锁。
type RunStore struct {
	db *gorm.DB
}

func NewRunStore(path string) (*RunStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run store: 数据库路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("run store: 创建目录失败: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RunModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *RunStore) Create(run *RunModel) error {
	return s.db.Create(run).Error
}

func (s *RunStore) Get(id string) (*RunModel, error) {
	var run RunModel
	if err := s.db.First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// List 按创建时间倒序返回最近的任务。
func (s *RunStore) List(limit int) ([]RunModel, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var runs []RunModel
	err := s.db.Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func (s *RunStore) markRunning(id string) error {
	return s.db.Model(&RunModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(StatusRunning),
		"started_at": nowMillis(),
	}).Error
}

func (s *RunStore) markFailed(id string, kind sandbox.FailureKind, msg string) error {
	return s.db.Model(&RunModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":       string(StatusFailed),
		"failure_kind": string(kind),
		"error":        msg,
		"finished_at":  nowMillis(),
	}).Error
}

func (s *RunStore) markSucceeded(id string, outcome *engine.Outcome) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return s.db.Model(&RunModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":        string(StatusSucceeded),
		"result":        datatypes.JSON(raw),
		"manifest_hash": outcome.Manifest.Hash,
		"finished_at":   nowMillis(),
	}).Error
}

// Outcome 反序列化已完成任务的结果，非成功任务返回 nil。
func (r *RunModel) Outcome() (*engine.Outcome, error) {
	if RunStatus(r.Status) != StatusSucceeded || len(r.Result) == 0 {
		return nil, nil
	}
	var out engine.Outcome
	if err := json.Unmarshal(r.Result, &out); err != nil {
		return nil, fmt.Errorf("run %s: 解析结果失败: %w", r.ID, err)
	}
	return &out, nil
}

// DecodedViolations 反序列化静态审查违规，没有则返回空切片。
func (r *RunModel) DecodedViolations() ([]analysis.Violation, error) {
	if len(r.Violations) == 0 {
		return nil, nil
	}
	var out []analysis.Violation
	if err := json.Unmarshal(r.Violations, &out); err != nil {
		return nil, fmt.Errorf("run %s: 解析违规明细失败: %w", r.ID, err)
	}
	return out, nil
}

func nowMillis() int64 { return time.Now().UnixMilli() }
