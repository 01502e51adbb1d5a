package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolution(t *testing.T) {
	res, err := ParseResolution(" 1H ")
	require.NoError(t, err)
	assert.Equal(t, "1h", res.Key)
	assert.Equal(t, time.Hour, res.Duration)

	_, err = ParseResolution("13m")
	require.Error(t, err)
}

func TestAlignRange(t *testing.T) {
	res, _ := ParseResolution("1h")
	step := res.StepMillis()

	start, end := res.AlignRange(10*step+5, 20*step+step-1)
	assert.Equal(t, 10*step, start)
	assert.Equal(t, 20*step, end)

	// 颠倒的区间被纠正
	start, end = res.AlignRange(20*step, 10*step)
	assert.Equal(t, 10*step, start)
	assert.Equal(t, 20*step, end)
}

func TestExpectedBars(t *testing.T) {
	res, _ := ParseResolution("1h")
	step := res.StepMillis()
	assert.Equal(t, int64(11), res.ExpectedBars(0, 10*step))
	assert.Equal(t, int64(1), res.ExpectedBars(5*step, 5*step))
	assert.Equal(t, int64(0), res.ExpectedBars(10, 5))
}

func TestSupportedResolutionsSorted(t *testing.T) {
	keys := SupportedResolutions()
	assert.Contains(t, keys, "1m")
	assert.Contains(t, keys, "1w")
	assert.Len(t, keys, 7)
}
