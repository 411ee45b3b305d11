package monitoring

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricType is the Prometheus type of a metric family.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// DefaultLatencyBuckets are upper bounds in seconds for run latency.
var DefaultLatencyBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

// Metric is one labelled series. Histograms fill Count, Sum and
// BucketCounts; counters and gauges use Value.
type Metric struct {
	Name         string            `json:"name"`
	Type         MetricType        `json:"type"`
	Help         string            `json:"help,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	Value        float64           `json:"value"`
	Count        uint64            `json:"count,omitempty"`
	Sum          float64           `json:"sum,omitempty"`
	Buckets      []float64         `json:"buckets,omitempty"`
	BucketCounts []uint64          `json:"bucket_counts,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

type funcMetric struct {
	name string
	typ  MetricType
	help string
	fn   func() float64
}

// MetricsCollector keeps the latest value of every series in memory and
// renders them in the Prometheus text format.
type MetricsCollector struct {
	metrics     map[string]*Metric
	help        map[string]string
	funcs       []funcMetric
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector creates a collector with the process gauges
// registered.
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		metrics:   make(map[string]*Metric),
		help:      make(map[string]string),
		startTime: time.Now(),
	}
	mc.RegisterFunc("process_uptime_seconds", MetricTypeGauge, "Seconds since the collector started",
		func() float64 { return mc.GetUptime().Seconds() })
	mc.RegisterFunc("system_goroutines", MetricTypeGauge, "Number of goroutines",
		func() float64 { return float64(runtime.NumGoroutine()) })
	mc.RegisterFunc("memory_heap_alloc_bytes", MetricTypeGauge, "Memory heap allocated in bytes",
		func() float64 {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return float64(m.HeapAlloc)
		})
	return mc
}

// Describe sets the HELP text of a metric family.
func (mc *MetricsCollector) Describe(name, help string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()
	mc.help[name] = help
}

// RegisterFunc adds a series whose value is read from fn at export time.
func (mc *MetricsCollector) RegisterFunc(name string, typ MetricType, help string, fn func() float64) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()
	mc.funcs = append(mc.funcs, funcMetric{name: name, typ: typ, help: help, fn: fn})
}

// IncrCounter adds value to a counter series.
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	m := mc.series(name, MetricTypeCounter, labels)
	m.Value += value
	m.Timestamp = time.Now()
}

// SetGauge replaces the value of a gauge series.
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	m := mc.series(name, MetricTypeGauge, labels)
	m.Value = value
	m.Timestamp = time.Now()
}

// RecordHistogram observes value. buckets are only used when the series is
// first created.
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string, buckets []float64) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	m := mc.series(name, MetricTypeHistogram, labels)
	if m.Buckets == nil {
		m.Buckets = append([]float64(nil), buckets...)
		sort.Float64s(m.Buckets)
		m.BucketCounts = make([]uint64, len(m.Buckets))
	}
	for i, upper := range m.Buckets {
		if value <= upper {
			m.BucketCounts[i]++
		}
	}
	m.Count++
	m.Sum += value
	m.Timestamp = time.Now()
}

// series returns the series for name and labels, creating it. The caller
// holds metricsLock.
func (mc *MetricsCollector) series(name string, typ MetricType, labels map[string]string) *Metric {
	key := name + labelString(labels)
	m, ok := mc.metrics[key]
	if !ok {
		m = &Metric{Name: name, Type: typ, Labels: copyLabels(labels)}
		mc.metrics[key] = m
	}
	return m
}

// Snapshot returns a copy of every series, function series included, sorted
// by name and labels.
func (mc *MetricsCollector) Snapshot() []Metric {
	mc.metricsLock.RLock()
	out := make([]Metric, 0, len(mc.metrics)+len(mc.funcs))
	for _, m := range mc.metrics {
		c := *m
		c.Help = mc.help[m.Name]
		c.Labels = copyLabels(m.Labels)
		c.Buckets = append([]float64(nil), m.Buckets...)
		c.BucketCounts = append([]uint64(nil), m.BucketCounts...)
		out = append(out, c)
	}
	funcs := append([]funcMetric(nil), mc.funcs...)
	mc.metricsLock.RUnlock()

	// fn may take other locks, so it runs outside metricsLock.
	now := time.Now()
	for _, f := range funcs {
		out = append(out, Metric{Name: f.name, Type: f.typ, Help: f.help, Value: f.fn(), Timestamp: now})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return labelString(out[i].Labels) < labelString(out[j].Labels)
	})
	return out
}

// ExportPrometheus renders every series in the Prometheus text format.
func (mc *MetricsCollector) ExportPrometheus() string {
	var b strings.Builder
	last := ""
	for _, m := range mc.Snapshot() {
		if m.Name != last {
			help := m.Help
			if help == "" {
				help = fmt.Sprintf("Metric %s", m.Name)
			}
			fmt.Fprintf(&b, "# HELP %s %s\n", m.Name, help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", m.Name, m.Type)
			last = m.Name
		}

		if m.Type != MetricTypeHistogram {
			fmt.Fprintf(&b, "%s%s %s\n", m.Name, labelString(m.Labels), formatFloat(m.Value))
			continue
		}
		for i, upper := range m.Buckets {
			fmt.Fprintf(&b, "%s_bucket%s %d\n", m.Name,
				labelString(withLabel(m.Labels, "le", formatFloat(upper))), m.BucketCounts[i])
		}
		fmt.Fprintf(&b, "%s_bucket%s %d\n", m.Name, labelString(withLabel(m.Labels, "le", "+Inf")), m.Count)
		fmt.Fprintf(&b, "%s_sum%s %s\n", m.Name, labelString(m.Labels), formatFloat(m.Sum))
		fmt.Fprintf(&b, "%s_count%s %d\n", m.Name, labelString(m.Labels), m.Count)
	}
	return b.String()
}

// GetUptime returns how long the collector has been running.
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats reports process runtime figures.
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     mc.GetUptime().String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":       m.Alloc,
			"sys":         m.Sys,
			"heap_alloc":  m.HeapAlloc,
			"heap_inuse":  m.HeapInuse,
			"gc_count":    m.NumGC,
			"gc_pause_ns": m.PauseTotalNs,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// labelString renders labels as {k="v",...} with keys sorted, or "".
func labelString(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf(`%s="%s"`, k, labelEscaper.Replace(labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := copyLabels(labels)
	if out == nil {
		out = make(map[string]string, 1)
	}
	out[key] = value
	return out
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
