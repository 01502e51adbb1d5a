package sandbox

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResultValidOK(t *testing.T) {
	raw := `{
		"status": "ok",
		"outcome": {
			"equity_curve": [{"timestamp": 1700000000000, "cash": 10000, "equity": 10000}],
			"trades": [],
			"final_cash": 10000,
			"final_equity": 10000,
			"manifest": {
				"hash": "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
				"symbols": ["BTCUSDT"],
				"start": 1, "end": 2, "resolution": "1h",
				"initial_capital": 10000, "commission": 0.02, "ticks": 1
			}
		}
	}`
	result, err := decodeResult([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	require.NotNil(t, result.Outcome)
	assert.Equal(t, 10000.0, result.Outcome.FinalCash)
}

func TestDecodeResultErrorStatus(t *testing.T) {
	result, err := decodeResult([]byte(`{"status": "error", "error": "策略运行时 panic"}`))
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestDecodeResultSkipsLeadingNoise(t *testing.T) {
	raw := "time=2026-08-28T00:00:00Z level=INFO msg=\"回放完成\"\n" +
		"策略自己打印的一行\n" +
		`{"status": "error", "error": "策略运行时 panic"}` + "\n"
	result, err := decodeResult([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)
}

func TestDecodeResultRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"空输出":       "",
		"非 JSON":    "panic: everything is on fire",
		"缺 status":  `{"error": "x"}`,
		"非法 status": `{"status": "maybe"}`,
		"ok 缺结果":    `{"status": "ok"}`,
		"hash 过短":   `{"status":"ok","outcome":{"equity_curve":[],"trades":[],"final_cash":0,"final_equity":0,"manifest":{"hash":"abc","symbols":[],"ticks":0}}}`,
	}
	for name, raw := range cases {
		_, err := decodeResult([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestCappedWriterDiscardsOverflow(t *testing.T) {
	var buf bytes.Buffer
	w := newCappedWriter(&buf, 10)

	n, err := w.Write([]byte("0123456789ABCDEF"))
	require.NoError(t, err)
	assert.Equal(t, 16, n, "上层看到全量写入，不会因截断报错")
	assert.Equal(t, "0123456789", buf.String())

	n, err = w.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123456789", buf.String())
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "line one", firstLine(" line one\nline two\n"))
	assert.Equal(t, "", firstLine("  \n"))
}

func TestExecErrorMessage(t *testing.T) {
	err := &ExecError{Kind: FailureTimedOut, Detail: "超过 60s 墙钟上限"}
	assert.True(t, strings.Contains(err.Error(), "timed_out"))
}
