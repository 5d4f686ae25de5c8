package monitoring

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
)

var metricHelp = map[string]string{
	FramesReceived:             "Stream frames delivered to the buffer",
	FramesDropped:              "Stream frames dropped because the consumer fell behind",
	ParseFallbacks:             "Frames kept as raw text because they were not structured records",
	Evictions:                  "Records evicted from the ring buffer",
	Connects:                   "Stream connection attempts",
	Failures:                   "Stream transport failures",
	Refreshes:                  "Access token refresh attempts",
	RefreshFailures:            "Failed access token refreshes",
	Subscribers:                "Clients currently attached to the stream",
	PublishedRecords:           "Log records published to the stream",
	"stream_frames_per_second": "Frames per second over the last 10s",
}

// WritePrometheus writes metrics in Prometheus exposition format
func WritePrometheus(w io.Writer, m *MetricsCollector) error {
	for _, metric := range m.GetMetrics() {
		name := toPrometheusName(metric.Name)
		if help, ok := metricHelp[metric.Name]; ok {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		}
		fmt.Fprintf(w, "# TYPE %s %s\n", name, metric.Type)
		if _, err := fmt.Fprintf(w, "%s %g\n", name, metric.Value); err != nil {
			return err
		}
	}
	writeGoMetrics(w)
	return nil
}

// Handler serves the collector at a /metrics style endpoint
func Handler(m *MetricsCollector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		WritePrometheus(w, m)
	}
}

// toPrometheusName converts metric name to Prometheus format
func toPrometheusName(name string) string {
	name = "ehrconsole_" + name
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func writeGoMetrics(w io.Writer) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fmt.Fprintln(w, "# TYPE go_goroutines gauge")
	fmt.Fprintf(w, "go_goroutines %d\n", runtime.NumGoroutine())
	fmt.Fprintln(w, "# TYPE go_memstats_alloc_bytes gauge")
	fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n", mem.Alloc)
}
