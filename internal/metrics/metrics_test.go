package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterIncrement(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter(MetricMessagesSent, nil)
	r.IncrementCounter(MetricMessagesSent, nil)
	r.AddToCounter(MetricMessagesSent, 3, nil)

	assert.Equal(t, float64(5), r.CounterValue(MetricMessagesSent, nil))
}

func TestCounterLabelsAreSeparateSeries(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter(MetricSendFailures, map[string]string{"channel_id": "a"})
	r.IncrementCounter(MetricSendFailures, map[string]string{"channel_id": "a"})
	r.IncrementCounter(MetricSendFailures, map[string]string{"channel_id": "b"})

	assert.Equal(t, float64(2), r.CounterValue(MetricSendFailures, map[string]string{"channel_id": "a"}))
	assert.Equal(t, float64(1), r.CounterValue(MetricSendFailures, map[string]string{"channel_id": "b"}))
	assert.Equal(t, float64(0), r.CounterValue(MetricSendFailures, map[string]string{"channel_id": "c"}))
}

func TestLabelOrderDoesNotSplitSeries(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("test", map[string]string{"a": "1", "b": "2"})
	r.IncrementCounter("test", map[string]string{"b": "2", "a": "1"})

	assert.Equal(t, float64(2), r.CounterValue("test", map[string]string{"a": "1", "b": "2"}))
}

func TestGaugeOverwrites(t *testing.T) {
	r := NewRegistry()

	r.SetGauge(MetricJobsRunning, 3, nil)
	r.SetGauge(MetricJobsRunning, 1, nil)

	snapshot := r.Snapshot()
	gauges := snapshot["gauges"].([]Metric)
	require.Len(t, gauges, 1)
	assert.Equal(t, float64(1), gauges[0].Value)
}

func TestSnapshotShape(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter(MetricMessagesSent, nil)

	snapshot := r.Snapshot()
	assert.Contains(t, snapshot, "uptime_seconds")
	assert.Len(t, snapshot["counters"].([]Metric), 1)
	assert.Empty(t, snapshot["gauges"].([]Metric))
}

func TestConcurrentCounterUpdates(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.IncrementCounter("concurrent", nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(50), r.CounterValue("concurrent", nil))
}
