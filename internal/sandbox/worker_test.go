package sandbox

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratbench/internal/market"
)

func workerJob(source string) *Job {
	base := int64(1700000000000) - int64(1700000000000)%3600000
	bars := make([]market.Bar, 10)
	for i := range bars {
		open := 100.0 + float64(i)
		bars[i] = market.Bar{
			Symbol:    "BTCUSDT",
			Timestamp: base + int64(i)*3600000,
			Open:      open,
			High:      open + 1,
			Low:       open - 1,
			Close:     open + 0.5,
			Volume:    1000,
		}
	}
	return &Job{
		Source:         source,
		Resolution:     "1h",
		Start:          base,
		End:            base + 9*3600000,
		InitialCapital: 10000,
		Commission:     0.02,
		Series:         map[string][]market.Bar{"BTCUSDT": bars},
	}
}

func runWorker(t *testing.T, job *Job) (Result, int) {
	t.Helper()
	payload, err := json.Marshal(job)
	require.NoError(t, err)

	var stdout bytes.Buffer
	code := WorkerMain(bytes.NewReader(payload), &stdout)

	var result Result
	require.NoError(t, json.NewDecoder(&stdout).Decode(&result))
	return result, code
}

func TestWorkerMainProducesOutcome(t *testing.T) {
	result, code := runWorker(t, workerJob(smaCrossSource))
	assert.Equal(t, 0, code)
	require.Equal(t, "ok", result.Status)
	require.NotNil(t, result.Outcome)
	assert.Len(t, result.Outcome.EquityCurve, 10)
	assert.Len(t, result.Outcome.Manifest.Hash, 64)
}

func TestWorkerMainIsDeterministic(t *testing.T) {
	first, _ := runWorker(t, workerJob(smaCrossSource))
	second, _ := runWorker(t, workerJob(smaCrossSource))

	raw1, err := json.Marshal(first)
	require.NoError(t, err)
	raw2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(raw1), string(raw2))
}

func TestWorkerMainStrategyPanicBecomesError(t *testing.T) {
	result, code := runWorker(t, workerJob(`package main

import "stratbench/strategy"

func Universe() []string { return []string{"BTCUSDT"} }

func OnData(s *strategy.Slice, p *strategy.Portfolio) strategy.Signal {
	var xs []int
	_ = xs[3]
	return strategy.Hold()
}
`))
	assert.Equal(t, 1, code)
	assert.Equal(t, "error", result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestWorkerMainBadPayload(t *testing.T) {
	var stdout bytes.Buffer
	code := WorkerMain(strings.NewReader("not json"), &stdout)
	assert.Equal(t, 1, code)

	var result Result
	require.NoError(t, json.NewDecoder(&stdout).Decode(&result))
	assert.Equal(t, "error", result.Status)
}

func TestWorkerMainBadResolution(t *testing.T) {
	job := workerJob(smaCrossSource)
	job.Resolution = "13m"
	result, code := runWorker(t, job)
	assert.Equal(t, 1, code)
	assert.Equal(t, "error", result.Status)
}
