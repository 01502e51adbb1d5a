package data

import "sort"

// Span 表示一段已覆盖的时间区间（毫秒，闭区间，已对齐到周期网格）。
type Span struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (s Span) valid() bool { return s.End >= s.Start }

// mergeSpan 将 add 并入 spans，保持按 Start 排序、两两不相交的不变量。
// 相邻（间隔 ≤ step）或重叠的区间会被合并。
func mergeSpan(spans []Span, add Span, step int64) []Span {
	if !add.valid() {
		return spans
	}
	out := make([]Span, 0, len(spans)+1)
	inserted := false
	for _, s := range spans {
		switch {
		case s.End+step < add.Start:
			// 完全在 add 左侧
			out = append(out, s)
		case add.End+step < s.Start:
			// 完全在 add 右侧
			if !inserted {
				out = append(out, add)
				inserted = true
			}
			out = append(out, s)
		default:
			// 重叠或相邻，吸收进 add
			if s.Start < add.Start {
				add.Start = s.Start
			}
			if s.End > add.End {
				add.End = s.End
			}
		}
	}
	if !inserted {
		out = append(out, add)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// complement 计算 want 中未被 spans 覆盖的子区间（即需要回源拉取的缺口）。
func complement(spans []Span, want Span, step int64) []Span {
	if !want.valid() {
		return nil
	}
	var gaps []Span
	cursor := want.Start
	for _, s := range spans {
		if s.End < cursor {
			continue
		}
		if s.Start > want.End {
			break
		}
		if s.Start > cursor {
			gaps = append(gaps, Span{Start: cursor, End: s.Start - step})
		}
		if s.End+step > cursor {
			cursor = s.End + step
		}
		if cursor > want.End {
			return gaps
		}
	}
	if cursor <= want.End {
		gaps = append(gaps, Span{Start: cursor, End: want.End})
	}
	return gaps
}
