package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType represents the type of metric
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Stream metric names
const (
	FramesReceived   = "stream_frames_total"
	FramesDropped    = "stream_frames_dropped_total"
	ParseFallbacks   = "stream_parse_fallbacks_total"
	Evictions        = "buffer_evictions_total"
	Connects         = "stream_connects_total"
	Failures         = "stream_failures_total"
	Refreshes        = "token_refreshes_total"
	RefreshFailures  = "token_refresh_failures_total"
	Subscribers      = "stream_subscribers"
	PublishedRecords = "published_records_total"
)

// Metric represents a single metric
type Metric struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// MetricsCollector collects and manages metrics
type MetricsCollector struct {
	mu        sync.RWMutex
	counters  map[string]*int64
	gauges    map[string]*float64
	frameRate *RateCounter
}

// RateCounter tracks rate over time
type RateCounter struct {
	mu            sync.Mutex
	windowSize    time.Duration
	buckets       []int64
	bucketTime    time.Duration
	currentBucket int
	lastUpdate    time.Time
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:  make(map[string]*int64),
		gauges:    make(map[string]*float64),
		frameRate: NewRateCounter(10*time.Second, time.Second),
	}
}

// IncrementCounter increments a counter metric. A nil collector is a no-op.
func (m *MetricsCollector) IncrementCounter(name string, delta int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	counter, exists := m.counters[name]
	if !exists {
		var c int64
		m.counters[name] = &c
		counter = &c
	}
	m.mu.Unlock()

	atomic.AddInt64(counter, delta)
}

// Counter returns the current value of a counter
func (m *MetricsCollector) Counter(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[name]; ok {
		return atomic.LoadInt64(c)
	}
	return 0
}

// SetGauge sets a gauge metric value
func (m *MetricsCollector) SetGauge(name string, value float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.gauges[name]; !exists {
		m.gauges[name] = new(float64)
	}
	*m.gauges[name] = value
}

// RecordFrame counts one received frame
func (m *MetricsCollector) RecordFrame() {
	if m == nil {
		return
	}
	m.IncrementCounter(FramesReceived, 1)
	m.frameRate.Increment(1)
}

// FrameRate returns received frames per second over the last window
func (m *MetricsCollector) FrameRate() float64 {
	if m == nil {
		return 0
	}
	return m.frameRate.GetRate()
}

// GetMetrics returns all current metrics sorted by name
func (m *MetricsCollector) GetMetrics() []Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var metrics []Metric
	for name, counter := range m.counters {
		metrics = append(metrics, Metric{
			Name:  name,
			Type:  string(MetricTypeCounter),
			Value: float64(atomic.LoadInt64(counter)),
		})
	}
	for name, gauge := range m.gauges {
		metrics = append(metrics, Metric{
			Name:  name,
			Type:  string(MetricTypeGauge),
			Value: *gauge,
		})
	}
	metrics = append(metrics, Metric{
		Name:  "stream_frames_per_second",
		Type:  string(MetricTypeGauge),
		Value: m.frameRate.GetRate(),
	})

	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
	return metrics
}

// NewRateCounter creates a new rate counter
func NewRateCounter(windowSize, bucketTime time.Duration) *RateCounter {
	numBuckets := int(windowSize / bucketTime)
	return &RateCounter{
		windowSize: windowSize,
		buckets:    make([]int64, numBuckets),
		bucketTime: bucketTime,
		lastUpdate: time.Now(),
	}
}

// Increment increments the counter
func (r *RateCounter) Increment(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rotateBuckets()
	r.buckets[r.currentBucket] += int64(count)
}

// GetRate returns the current rate per second
func (r *RateCounter) GetRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rotateBuckets()

	sum := int64(0)
	for _, count := range r.buckets {
		sum += count
	}

	return float64(sum) / r.windowSize.Seconds()
}

func (r *RateCounter) rotateBuckets() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate)

	bucketsToRotate := int(elapsed / r.bucketTime)
	if bucketsToRotate > 0 {
		if bucketsToRotate >= len(r.buckets) {
			for i := range r.buckets {
				r.buckets[i] = 0
			}
			r.currentBucket = 0
		} else {
			for i := 0; i < bucketsToRotate; i++ {
				r.currentBucket = (r.currentBucket + 1) % len(r.buckets)
				r.buckets[r.currentBucket] = 0
			}
		}
		r.lastUpdate = r.lastUpdate.Add(time.Duration(bucketsToRotate) * r.bucketTime)
	}
}
