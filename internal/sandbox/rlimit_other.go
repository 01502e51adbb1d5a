//go:build !linux

package sandbox

// 非 Linux 平台只用于开发调试，没有 rlimit 兜底，
// 超时仍由宿主的 wall-clock 截止时间保证。
func ApplyResourceLimits() {}
