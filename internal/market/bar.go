package market

import "time"

// Bar 表示单个周期的 OHLCV 观测，入库后不可变。
type Bar struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"` // Unix ms，bar 开始时间
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// TimeString 仅用于日志展示。
func (b Bar) TimeString() string {
	if b.Timestamp <= 0 {
		return "-"
	}
	return b.Time().Format("2006-01-02 15:04") + "Z"
}

type Bars []Bar

// Ascending 检查时间戳是否严格递增。
func (bs Bars) Ascending() bool {
	for i := 1; i < len(bs); i++ {
		if bs[i].Timestamp <= bs[i-1].Timestamp {
			return false
		}
	}
	return true
}

// Timestamps 返回全部时间戳（与底层切片同序）。
func (bs Bars) Timestamps() []int64 {
	out := make([]int64, len(bs))
	for i, b := range bs {
		out[i] = b.Timestamp
	}
	return out
}
