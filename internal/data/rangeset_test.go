package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const step = int64(3600000)

func TestMergeSpanCoalescesAdjacent(t *testing.T) {
	spans := []Span{{Start: 0, End: 9 * step}}

	// 紧邻右侧的区间被吸收成一个
	spans = mergeSpan(spans, Span{Start: 10 * step, End: 19 * step}, step)
	assert.Equal(t, []Span{{Start: 0, End: 19 * step}}, spans)

	// 不相邻的区间保持独立且有序
	spans = mergeSpan(spans, Span{Start: 30 * step, End: 39 * step}, step)
	assert.Equal(t, []Span{{Start: 0, End: 19 * step}, {Start: 30 * step, End: 39 * step}}, spans)

	// 桥接中间缺口后整体合并
	spans = mergeSpan(spans, Span{Start: 20 * step, End: 29 * step}, step)
	assert.Equal(t, []Span{{Start: 0, End: 39 * step}}, spans)
}

func TestMergeSpanOverlap(t *testing.T) {
	spans := []Span{{Start: 10 * step, End: 20 * step}}
	spans = mergeSpan(spans, Span{Start: 5 * step, End: 15 * step}, step)
	assert.Equal(t, []Span{{Start: 5 * step, End: 20 * step}}, spans)
}

func TestComplementFullCoverage(t *testing.T) {
	spans := []Span{{Start: 0, End: 100 * step}}
	gaps := complement(spans, Span{Start: 10 * step, End: 50 * step}, step)
	assert.Empty(t, gaps, "完全覆盖的请求没有缺口")
}

func TestComplementPartialCoverage(t *testing.T) {
	spans := []Span{{Start: 0, End: 9 * step}, {Start: 20 * step, End: 29 * step}}
	gaps := complement(spans, Span{Start: 0, End: 39 * step}, step)
	assert.Equal(t, []Span{
		{Start: 10 * step, End: 19 * step},
		{Start: 30 * step, End: 39 * step},
	}, gaps)
}

func TestComplementNoCoverage(t *testing.T) {
	gaps := complement(nil, Span{Start: 5 * step, End: 10 * step}, step)
	assert.Equal(t, []Span{{Start: 5 * step, End: 10 * step}}, gaps)
}

func TestComplementLeftEdge(t *testing.T) {
	spans := []Span{{Start: 10 * step, End: 20 * step}}
	gaps := complement(spans, Span{Start: 5 * step, End: 20 * step}, step)
	assert.Equal(t, []Span{{Start: 5 * step, End: 9 * step}}, gaps)
}
