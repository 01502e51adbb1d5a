package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"stratbench/internal/logger"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Policy 定义静态审查使用的白名单/黑名单。
// 空字段回落到内置默认值，便于策略文件只覆盖其中一部分。
type Policy struct {
	// AllowedImports 策略代码允许 import 的包路径。
	AllowedImports []string `yaml:"allowed_imports"`
	// DeniedIdents 禁止引用的标识符与选择器（如 time.Now）。
	DeniedIdents []string `yaml:"denied_idents"`
}

// DefaultPolicy 返回内置默认策略：只放行纯计算类标准库与策略 SDK。
// time 包放行但逐一禁掉会引入真实时钟的标识符，保证回测可复现。
func DefaultPolicy() Policy {
	return Policy{
		AllowedImports: []string{
			"errors",
			"fmt",
			"math",
			"sort",
			"strconv",
			"strings",
			"time",
			"stratbench/strategy",
		},
		DeniedIdents: []string{
			"time.Now",
			"time.Since",
			"time.Until",
			"time.Sleep",
			"time.After",
			"time.AfterFunc",
			"time.Tick",
			"time.NewTimer",
			"time.NewTicker",
		},
	}
}

func (p Policy) allowsImport(path string) bool {
	for _, allowed := range p.AllowedImports {
		if path == allowed {
			return true
		}
	}
	return false
}

func (p Policy) denies(ident string) bool {
	for _, denied := range p.DeniedIdents {
		if ident == denied {
			return true
		}
	}
	return false
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if len(p.AllowedImports) == 0 {
		p.AllowedImports = def.AllowedImports
	}
	if len(p.DeniedIdents) == 0 {
		p.DeniedIdents = def.DeniedIdents
	}
	sort.Strings(p.AllowedImports)
	sort.Strings(p.DeniedIdents)
	return p
}

// LoadPolicy 从 YAML 文件读取策略；path 为空时返回默认策略。
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("读取审查策略失败: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("解析审查策略失败: %w", err)
	}
	return p.normalized(), nil
}

// PolicyStore 持有当前生效的策略，支持文件热更新。
type PolicyStore struct {
	mu      sync.RWMutex
	current Policy
	path    string
	watcher *fsnotify.Watcher
}

// NewPolicyStore 加载初始策略。path 为空时仅使用默认值（不监听）。
func NewPolicyStore(path string) (*PolicyStore, error) {
	p, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	return &PolicyStore{current: p, path: path}, nil
}

// Current 返回当前策略的拷贝。
func (s *PolicyStore) Current() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Watch 监听策略文件变化并热加载，失败的加载保留旧策略。
func (s *PolicyStore) Watch() error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				p, err := LoadPolicy(s.path)
				if err != nil {
					logger.Warnf("[analysis] 策略文件热加载失败: %v", err)
					continue
				}
				s.mu.Lock()
				s.current = p
				s.mu.Unlock()
				logger.Infof("[analysis] 审查策略已重新加载: %s", s.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("[analysis] 策略文件监听错误: %v", err)
			}
		}
	}()
	return nil
}

// Close 停止监听。
func (s *PolicyStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
