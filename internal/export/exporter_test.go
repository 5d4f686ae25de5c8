package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/xuri/excelize/v2"

	"github.com/your-username/ehr-console/internal/models"
)

func sampleRecords() []models.Record {
	msg := models.StringValue("Patient merge aborted")
	raw := "oops"
	return []models.Record{
		{
			ID:        "1700000000000-a1b2c3d4",
			Level:     models.LevelError,
			TraceID:   "trace-1",
			Timestamp: 1700000000000,
			Message:   &msg,
			Params:    []models.Value{models.StringValue("st-mary"), {JSON: "42", Text: "42"}},
		},
		{
			ID:        "1700000000500-e5f6a7b8",
			Level:     models.LevelUnknown,
			Timestamp: 1700000000500,
			Raw:       &raw,
		},
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path       string
		format     Format
		compressed bool
		wantErr    bool
	}{
		{"logs.jsonl", FormatJSONL, false, false},
		{"logs.ndjson.zst", FormatJSONL, true, false},
		{"/tmp/Export.CSV", FormatCSV, false, false},
		{"logs.xlsx.zst", FormatExcel, true, false},
		{"logs.txt", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			format, compressed, err := FormatFromPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if format != tt.format || compressed != tt.compressed {
				t.Errorf("got (%s, %v), want (%s, %v)", format, compressed, tt.format, tt.compressed)
			}
		})
	}
}

func TestExportJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(&buf, sampleRecords(), FormatJSONL); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if first["message"] != "Patient merge aborted" || first["traceId"] != "trace-1" {
		t.Errorf("unexpected structured line %v", first)
	}
	if _, ok := first["rawText"]; ok {
		t.Error("structured record should not carry rawText")
	}

	var second map[string]interface{}
	json.Unmarshal([]byte(lines[1]), &second)
	if second["rawText"] != "oops" || second["level"] != "UNKNOWN" {
		t.Errorf("unexpected raw line %v", second)
	}
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(&buf, sampleRecords(), FormatCSV); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "id,timestamp,level,traceId,message,params,rawText" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][1] != "2023-11-14T22:13:20.000Z" {
		t.Errorf("unexpected timestamp %q", rows[1][1])
	}
	if rows[1][5] != `["st-mary",42]` {
		t.Errorf("unexpected params %q", rows[1][5])
	}
	if rows[2][6] != "oops" || rows[2][4] != "" {
		t.Errorf("unexpected raw row %v", rows[2])
	}
}

func TestExportFileCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs.jsonl.zst")

	result, err := ExportFile(path, sampleRecords())
	if err != nil {
		t.Fatalf("ExportFile failed: %v", err)
	}
	if !result.Compressed || result.RowCount != 2 || result.FileSize == 0 {
		t.Errorf("unexpected result %+v", result)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	scanner := bufio.NewScanner(dec)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("failed to read compressed export: %v", err)
	}
	if lines != 2 {
		t.Errorf("expected 2 lines, got %d", lines)
	}
}

func TestExportExcel(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(&buf, sampleRecords(), FormatExcel); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	file, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("invalid workbook: %v", err)
	}
	defer file.Close()

	rows, err := file.GetRows("Logs")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1][2] != "ERROR" {
		t.Errorf("unexpected level cell %q", rows[1][2])
	}
}

func TestDefaultFileName(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	if got := DefaultFileName(FormatCSV, now); got != "logs_20240309_140506.csv" {
		t.Errorf("unexpected name %q", got)
	}
}
