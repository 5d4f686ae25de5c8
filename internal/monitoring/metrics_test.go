package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestCollectorCountersAndExport(t *testing.T) {
	m := NewMetricsCollector()
	m.IncrementCounter(Connects, 1)
	m.IncrementCounter(Connects, 2)
	m.SetGauge(Subscribers, 4)
	m.RecordFrame()

	if got := m.Counter(Connects); got != 3 {
		t.Fatalf("expected 3 connects, got %d", got)
	}
	if got := m.Counter(FramesReceived); got != 1 {
		t.Fatalf("expected 1 frame, got %d", got)
	}
	if m.FrameRate() <= 0 {
		t.Fatal("expected positive frame rate")
	}

	var buf bytes.Buffer
	if err := WritePrometheus(&buf, m); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"ehrconsole_stream_connects_total 3",
		"# TYPE ehrconsole_stream_subscribers gauge",
		"ehrconsole_stream_subscribers 4",
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var m *MetricsCollector
	m.IncrementCounter(Connects, 1)
	m.RecordFrame()
	m.SetGauge(Subscribers, 1)
	if m.Counter(Connects) != 0 || m.FrameRate() != 0 {
		t.Fatal("nil collector should report zero")
	}
}
