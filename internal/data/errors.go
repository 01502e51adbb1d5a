package data

import "fmt"

// GapError 表示上游无法补齐请求区间中的某一段。
// 缓存层不会用不完整的序列继续回测，调用方收到该错误即终止。
type GapError struct {
	Symbol     string
	Resolution string
	Start      int64
	End        int64
	Cause      error
}

func (e *GapError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("数据缺口 %s@%s [%d,%d]: %v", e.Symbol, e.Resolution, e.Start, e.End, e.Cause)
	}
	return fmt.Sprintf("数据缺口 %s@%s [%d,%d]", e.Symbol, e.Resolution, e.Start, e.End)
}

func (e *GapError) Unwrap() error { return e.Cause }
