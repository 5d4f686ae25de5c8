package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/your-username/ehr-console/internal/models"
)

// Renderer writes records to an output stream.
type Renderer interface {
	Render(rec models.Record) error
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	styleLog     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	styleDebug   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true)
	styleVerbose = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleUnknown = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	styleTrace   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Faint(true)
	styleParams  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// LevelStyle returns the colour used for a level
func LevelStyle(level models.Level) lipgloss.Style {
	switch level {
	case models.LevelLog:
		return styleLog
	case models.LevelDebug:
		return styleDebug
	case models.LevelVerbose:
		return styleVerbose
	case models.LevelWarn:
		return styleWarn
	case models.LevelError:
		return styleError
	default:
		return styleUnknown
	}
}

// Line formats a record as "[HH:MM:SS] [LEVEL] [traceId] body params",
// styled when colour is true
func Line(rec models.Record, color bool) string {
	ts := "[" + rec.Time().Format("15:04:05") + "]"
	level := "[" + string(rec.Level) + "]"
	trace := "[-]"
	if rec.TraceID != "" {
		trace = "[" + rec.TraceID + "]"
	}
	body := rec.Body()
	params := ""
	if !rec.IsRaw() {
		params = rec.ParamsText()
	}

	if color {
		style := LevelStyle(rec.Level)
		level = style.Render(level)
		trace = styleTrace.Render(trace)
		body = style.Render(body)
		if params != "" {
			params = styleParams.Render(params)
		}
	}

	parts := []string{ts, level, trace, body}
	if params != "" {
		parts = append(parts, params)
	}
	return strings.Join(parts, " ")
}

// TextRenderer prints records with level-based colors.
type TextRenderer struct {
	w     io.Writer
	color bool
}

// NewTextRenderer returns a Renderer that writes text to w, colorized when color is set.
func NewTextRenderer(w io.Writer, color bool) *TextRenderer {
	return &TextRenderer{w: w, color: color}
}

func (r *TextRenderer) Render(rec models.Record) error {
	_, err := fmt.Fprintln(r.w, Line(rec, r.color))
	return err
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each record as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Render(rec models.Record) error {
	return r.enc.Encode(rec)
}
