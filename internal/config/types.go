package config

// Config 是服务的全量配置，按子系统分组。
type Config struct {
	App      AppConfig      `yaml:"app"`
	Data     DataConfig     `yaml:"data"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Store    StoreConfig    `yaml:"store"`
	Report   ReportConfig   `yaml:"report"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`
	HTTPAddr string `yaml:"http_addr"`
}

// DataConfig 控制行情缓存层。Provider 可选 binance 或 synthetic，
// 后者用于离线开发和测试。
type DataConfig struct {
	Dir             string `yaml:"dir"`
	Provider        string `yaml:"provider"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

type AnalysisConfig struct {
	PolicyPath string `yaml:"policy_path"`
}

// SandboxConfig 控制准入和子进程执行。
type SandboxConfig struct {
	MaxConcurrent  int `yaml:"max_concurrent"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type StoreConfig struct {
	RunsDB string `yaml:"runs_db"`
}

type ReportConfig struct {
	EnablePNG bool `yaml:"enable_png"`
}
