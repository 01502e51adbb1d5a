package config

// 默认值常量
const (
	defaultAppEnv        = "dev"
	defaultAppLogLevel   = "info"
	defaultAppLogPath    = ""
	defaultAppHTTPAddr   = ":9980"
	defaultDataDir       = "data/candles"
	defaultDataProvider  = "binance"
	defaultDataRateLimit = 480
	defaultPolicyPath    = ""
	defaultMaxConcurrent = 3
	defaultTimeoutSecs   = 60
	defaultRunsDB        = "data/runs.db"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.LogPath == "" {
		c.App.LogPath = defaultAppLogPath
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.Data.Dir == "" {
		c.Data.Dir = defaultDataDir
	}
	if c.Data.Provider == "" {
		c.Data.Provider = defaultDataProvider
	}
	if c.Data.RateLimitPerMin <= 0 {
		c.Data.RateLimitPerMin = defaultDataRateLimit
	}
	if c.Analysis.PolicyPath == "" {
		c.Analysis.PolicyPath = defaultPolicyPath
	}
	if c.Sandbox.MaxConcurrent <= 0 {
		c.Sandbox.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Sandbox.TimeoutSeconds <= 0 {
		c.Sandbox.TimeoutSeconds = defaultTimeoutSecs
	}
	if c.Store.RunsDB == "" {
		c.Store.RunsDB = defaultRunsDB
	}
}
