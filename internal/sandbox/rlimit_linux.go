//go:build linux

package sandbox

import (
	"golang.org/x/sys/unix"

	"stratbench/internal/logger"
)

// worker 进程入口处自加的硬限制。CPU 超限收 SIGKILL，内存超限
// 表现为分配失败，两者宿主都能从退出状态里区分出来。
const (
	limitCPUSeconds   = 20
	limitAddressSpace = 512 << 20 // 512 MiB
	limitProcesses    = 64
	limitOpenFiles    = 256
)

func ApplyResourceLimits() {
	set := func(resource int, value uint64, name string) {
		lim := unix.Rlimit{Cur: value, Max: value}
		if err := unix.Setrlimit(resource, &lim); err != nil {
			logger.Warnf("[sandbox] 设置 %s 限制失败: %v", name, err)
		}
	}
	set(unix.RLIMIT_CPU, limitCPUSeconds, "cpu")
	set(unix.RLIMIT_AS, limitAddressSpace, "内存")
	set(unix.RLIMIT_NPROC, limitProcesses, "进程数")
	set(unix.RLIMIT_NOFILE, limitOpenFiles, "文件描述符")
	set(unix.RLIMIT_CORE, 0, "core")
}
