package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Resolution 描述回测使用的 bar 周期（内部 duration + 数据源 interval）。
type Resolution struct {
	Key            string
	Duration       time.Duration
	SourceInterval string
}

var supportedResolutions = map[string]Resolution{
	"1m":  {Key: "1m", Duration: time.Minute, SourceInterval: "1m"},
	"5m":  {Key: "5m", Duration: 5 * time.Minute, SourceInterval: "5m"},
	"15m": {Key: "15m", Duration: 15 * time.Minute, SourceInterval: "15m"},
	"1h":  {Key: "1h", Duration: time.Hour, SourceInterval: "1h"},
	"4h":  {Key: "4h", Duration: 4 * time.Hour, SourceInterval: "4h"},
	"1d":  {Key: "1d", Duration: 24 * time.Hour, SourceInterval: "1d"},
	"1w":  {Key: "1w", Duration: 7 * 24 * time.Hour, SourceInterval: "1w"},
}

// ParseResolution 返回标准化周期定义。
func ParseResolution(input string) (Resolution, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	res, ok := supportedResolutions[key]
	if !ok {
		return Resolution{}, fmt.Errorf("不支持的周期: %s", input)
	}
	return res, nil
}

// SupportedResolutions 返回所有支持的 key（排序后）。
func SupportedResolutions() []string {
	keys := make([]string, 0, len(supportedResolutions))
	for k := range supportedResolutions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StepMillis 返回单根 bar 的毫秒跨度。
func (r Resolution) StepMillis() int64 {
	return r.Duration.Milliseconds()
}

func alignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// AlignRange 将毫秒时间对齐到周期网格，保证 start<=end。
func (r Resolution) AlignRange(start, end int64) (int64, int64) {
	step := r.StepMillis()
	if end < start {
		start, end = end, start
	}
	alStart := alignDown(start, step)
	alEnd := alignDown(end, step)
	if alEnd < alStart {
		alEnd = alStart
	}
	return alStart, alEnd
}

// ExpectedBars 计算 start~end（含）区间最多应存在的 bar 数量。
func (r Resolution) ExpectedBars(start, end int64) int64 {
	if end < start {
		return 0
	}
	step := r.StepMillis()
	if step == 0 {
		return 0
	}
	return ((end - start) / step) + 1
}
