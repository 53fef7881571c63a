package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metric is a single counter or gauge with its metadata
type Metric struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels,omitempty"`
	LastUpdate time.Time         `json:"last_update"`
}

// Registry holds the dispatcher's in-memory metrics
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	gauges    map[string]*Metric
	startTime time.Time
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		gauges:    make(map[string]*Metric),
		startTime: time.Now(),
	}
}

var globalRegistry = NewRegistry()

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}

// IncrementCounter increments a counter metric by one
func (r *Registry) IncrementCounter(name string, labels map[string]string) {
	r.AddToCounter(name, 1, labels)
}

// AddToCounter adds a value to a counter metric
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	m, ok := r.counters[key]
	if !ok {
		m = &Metric{Name: name, Labels: labels}
		r.counters[key] = m
	}
	m.Value += value
	m.LastUpdate = time.Now()
}

// SetGauge sets a gauge metric to a value
func (r *Registry) SetGauge(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	m, ok := r.gauges[key]
	if !ok {
		m = &Metric{Name: name, Labels: labels}
		r.gauges[key] = m
	}
	m.Value = value
	m.LastUpdate = time.Now()
}

// CounterValue returns the current value of a counter, 0 if absent
func (r *Registry) CounterValue(name string, labels map[string]string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.counters[metricKey(name, labels)]; ok {
		return m.Value
	}
	return 0
}

// Snapshot returns all metrics plus process uptime
func (r *Registry) Snapshot() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counters := make([]Metric, 0, len(r.counters))
	for _, m := range r.counters {
		counters = append(counters, *m)
	}
	gauges := make([]Metric, 0, len(r.gauges))
	for _, m := range r.gauges {
		gauges = append(gauges, *m)
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(r.startTime).Seconds(),
		"counters":       counters,
		"gauges":         gauges,
	}
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

// Dispatch metric names
const (
	MetricMessagesSent      = "dispatch_messages_sent_total"
	MetricSendFailures      = "dispatch_send_failures_total"
	MetricSendRetries       = "dispatch_send_retries_total"
	MetricRateLimitDenials  = "dispatch_rate_limit_denials_total"
	MetricJobsCompleted     = "dispatch_jobs_completed_total"
	MetricJobsFailed        = "dispatch_jobs_failed_total"
	MetricJobsRunning       = "dispatch_jobs_running"
	MetricBatchesProcessed  = "dispatch_batches_processed_total"
	MetricDeliveryCallbacks = "dispatch_delivery_callbacks_total"
	MetricHTTPRequests      = "http_requests_total"
)
