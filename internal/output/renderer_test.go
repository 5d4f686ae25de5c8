package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/your-username/ehr-console/internal/models"
)

func TestLine(t *testing.T) {
	ts := time.Date(2026, 2, 17, 12, 30, 15, 0, time.Local).UnixMilli()
	msg := models.Value{JSON: `{"patientId":7}`, Text: `{"patientId":7}`}
	raw := "oops"

	tests := []struct {
		name string
		rec  models.Record
		want string
	}{
		{
			name: "structured",
			rec: models.Record{
				Level:     models.LevelWarn,
				TraceID:   "abc",
				Timestamp: ts,
				Message:   &msg,
				Params:    []models.Value{models.StringValue("st-mary"), {JSON: "3", Text: "3"}},
			},
			want: `[12:30:15] [WARN] [abc] {"patientId":7} st-mary 3`,
		},
		{
			name: "no trace or params",
			rec:  models.Record{Level: models.LevelLog, Timestamp: ts},
			want: "[12:30:15] [LOG] [-] ",
		},
		{
			name: "raw",
			rec:  models.Record{Level: models.LevelUnknown, Timestamp: ts, Raw: &raw},
			want: "[12:30:15] [UNKNOWN] [-] oops",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Line(tt.rec, false); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTextRenderer(t *testing.T) {
	var buf bytes.Buffer
	raw := "upstream timeout"
	renderer := NewTextRenderer(&buf, false)

	if err := renderer.Render(models.Record{Level: models.LevelUnknown, Raw: &raw}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(buf.String(), "[UNKNOWN] [-] upstream timeout\n") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewJSONRenderer(&buf)

	msg := models.StringValue("EHR token exchange failed")
	rec := models.Record{
		ID:        "1-abc",
		Level:     models.LevelError,
		Timestamp: 1700000000000,
		Message:   &msg,
	}
	if err := renderer.Render(rec); err != nil {
		t.Fatal(err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\nraw: %s", err, buf.String())
	}
	if got["level"] != "ERROR" {
		t.Errorf("expected level ERROR, got %v", got["level"])
	}
	if got["message"] != "EHR token exchange failed" {
		t.Errorf("unexpected message %v", got["message"])
	}
}
