package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/xuri/excelize/v2"

	"github.com/your-username/ehr-console/internal/models"
)

// Format represents supported export formats
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

var headers = []string{"id", "timestamp", "level", "traceId", "message", "params", "rawText"}

// Result describes a finished export
type Result struct {
	Format     Format        `json:"format"`
	Compressed bool          `json:"compressed"`
	RowCount   int           `json:"row_count"`
	FileSize   int64         `json:"file_size"`
	Duration   time.Duration `json:"duration"`
	FileName   string        `json:"file_name"`
}

// FormatFromPath picks the format from the file extension; a trailing .zst
// requests zstd compression
func FormatFromPath(path string) (Format, bool, error) {
	name := strings.ToLower(filepath.Base(path))
	compressed := strings.HasSuffix(name, ".zst")
	name = strings.TrimSuffix(name, ".zst")

	switch filepath.Ext(name) {
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL, compressed, nil
	case ".csv":
		return FormatCSV, compressed, nil
	case ".xlsx":
		return FormatExcel, compressed, nil
	default:
		return "", false, fmt.Errorf("unsupported export format for %q: use .jsonl, .csv or .xlsx, optionally with .zst", path)
	}
}

// DefaultFileName names an export taken at now
func DefaultFileName(format Format, now time.Time) string {
	return fmt.Sprintf("logs_%s.%s", now.Format("20060102_150405"), format)
}

// Export writes records to w in the given format
func Export(w io.Writer, records []models.Record, format Format) error {
	switch format {
	case FormatJSONL:
		return exportJSONL(w, records)
	case FormatCSV:
		return exportCSV(w, records)
	case FormatExcel:
		return exportExcel(w, records)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// ExportFile writes records to path, creating parent directories
func ExportFile(path string, records []models.Record) (*Result, error) {
	start := time.Now()

	format, compressed, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var enc *zstd.Encoder
	if compressed {
		enc, err = zstd.NewWriter(f)
		if err != nil {
			return nil, err
		}
		w = enc
	}

	if err := Export(w, records, format); err != nil {
		return nil, err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to finish compressed export: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &Result{
		Format:     format,
		Compressed: compressed,
		RowCount:   len(records),
		FileSize:   info.Size(),
		Duration:   time.Since(start),
		FileName:   path,
	}, nil
}

func exportJSONL(w io.Writer, records []models.Record) error {
	encoder := json.NewEncoder(w)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func exportCSV(w io.Writer, records []models.Record) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(headers); err != nil {
		return err
	}
	for _, rec := range records {
		if err := csvWriter.Write(recordToRow(rec)); err != nil {
			return err
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func exportExcel(w io.Writer, records []models.Record) error {
	file := excelize.NewFile()
	defer file.Close()

	sheet := "Logs"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return err
	}
	file.SetActiveSheet(index)
	file.DeleteSheet("Sheet1")

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E0E0E0"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 2},
		},
	})
	if err != nil {
		return err
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		file.SetCellValue(sheet, cell, header)
		file.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	file.SetColWidth(sheet, "A", lastCol, 20)

	for row, rec := range records {
		for col, value := range recordToRow(rec) {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			file.SetCellValue(sheet, cell, value)
		}
	}

	if len(records) > 0 {
		file.AutoFilter(sheet, fmt.Sprintf("A1:%s%d", lastCol, len(records)+1), nil)
	}

	return file.Write(w)
}

// recordToRow flattens a record in header order
func recordToRow(rec models.Record) []string {
	row := []string{
		rec.ID,
		time.UnixMilli(rec.Timestamp).UTC().Format(timestampLayout),
		string(rec.Level),
		rec.TraceID,
		"",
		"",
		"",
	}
	if rec.IsRaw() {
		row[6] = *rec.Raw
		return row
	}
	if rec.Message != nil {
		row[4] = rec.Message.Text
	}
	if len(rec.Params) > 0 {
		params, _ := json.Marshal(rec.Params)
		row[5] = string(params)
	}
	return row
}
