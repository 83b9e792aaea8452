package monitoring

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// MetricType distinguishes counters from gauges.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Metric names recorded by the API.
const (
	MetricTrainingSeconds  = "training_seconds"
	MetricTrainingAccuracy = "training_accuracy"
	MetricPredictions      = "predictions_total"
	MetricPredictionErrors = "prediction_errors_total"
)

// maxHistory bounds the samples kept per metric.
const maxHistory = 1000

// Metric is a single recorded sample.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// MetricSummary aggregates the retained history of one metric.
type MetricSummary struct {
	Name    string    `json:"name"`
	Count   int       `json:"count"`
	Latest  float64   `json:"latest"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Average float64   `json:"average"`
	Sum     float64   `json:"sum"`
	Updated time.Time `json:"updated"`
}

// MetricsCollector keeps a bounded in-memory history per metric name.
type MetricsCollector struct {
	mu        sync.RWMutex
	metrics   map[string][]Metric
	startTime time.Time
}

// NewMetricsCollector returns an empty collector. Uptime counts from this call.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string][]Metric),
		startTime: time.Now(),
	}
}

// Record appends m to its metric history, dropping the oldest sample past maxHistory.
func (mc *MetricsCollector) Record(m Metric) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	history := append(mc.metrics[m.Name], m)
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	mc.metrics[m.Name] = history
}

// Observe records a gauge sample.
func (mc *MetricsCollector) Observe(name string, value float64, labels map[string]string) {
	mc.Record(Metric{Name: name, Type: MetricTypeGauge, Value: value, Labels: labels})
}

// Inc records a counter increment of one.
func (mc *MetricsCollector) Inc(name string, labels map[string]string) {
	mc.Record(Metric{Name: name, Type: MetricTypeCounter, Value: 1, Labels: labels})
}

// Get returns a copy of the history of name.
func (mc *MetricsCollector) Get(name string) ([]Metric, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	history, ok := mc.metrics[name]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", name)
	}
	return append([]Metric(nil), history...), nil
}

// Names lists the recorded metric names in sorted order.
func (mc *MetricsCollector) Names() []string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	names := make([]string, 0, len(mc.metrics))
	for name := range mc.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary returns count, min, max, mean and last value of name.
func (mc *MetricsCollector) Summary(name string) (MetricSummary, error) {
	history, err := mc.Get(name)
	if err != nil {
		return MetricSummary{}, err
	}
	values := make([]float64, len(history))
	for i, m := range history {
		values[i] = m.Value
	}
	sum := floats.Sum(values)
	return MetricSummary{
		Name:    name,
		Count:   len(values),
		Latest:  values[len(values)-1],
		Min:     floats.Min(values),
		Max:     floats.Max(values),
		Average: sum / float64(len(values)),
		Sum:     sum,
		Updated: history[len(history)-1].Timestamp,
	}, nil
}

// Uptime is the time since the collector was created.
func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.startTime)
}
