package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	switch strings.ToLower(c.Data.Provider) {
	case "binance", "synthetic":
	default:
		return fmt.Errorf("data.provider 必须是 binance 或 synthetic, 实际为 %q", c.Data.Provider)
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level 非法: %q", c.App.LogLevel)
	}
	if c.Sandbox.MaxConcurrent > 64 {
		return fmt.Errorf("sandbox.max_concurrent 过大: %d", c.Sandbox.MaxConcurrent)
	}
	if c.Sandbox.TimeoutSeconds > 600 {
		return fmt.Errorf("sandbox.timeout_seconds 过大: %d", c.Sandbox.TimeoutSeconds)
	}
	return nil
}
