package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Level is the severity/category label carried by a stream record
type Level string

const (
	LevelLog     Level = "LOG"
	LevelError   Level = "ERROR"
	LevelWarn    Level = "WARN"
	LevelDebug   Level = "DEBUG"
	LevelVerbose Level = "VERBOSE"
	LevelUnknown Level = "UNKNOWN"
)

// Levels lists the filterable levels in display order. UNKNOWN is not one of them.
var Levels = []Level{LevelLog, LevelError, LevelWarn, LevelDebug, LevelVerbose}

// ParseLevel maps a wire value onto a Level, falling back to UNKNOWN
func ParseLevel(s string) Level {
	for _, l := range Levels {
		if string(l) == s {
			return l
		}
	}
	return LevelUnknown
}

// Value is one structured datum (a message or a param) as received on the wire
type Value struct {
	// JSON is the compact JSON encoding
	JSON string
	// Text is the display form: strings unquoted, null empty, anything else as JSON
	Text string
}

// StringValue builds a Value holding a JSON string
func StringValue(s string) Value {
	b, _ := json.Marshal(s)
	return Value{JSON: string(b), Text: s}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.JSON == "" {
		return []byte("null"), nil
	}
	return []byte(v.JSON), nil
}

// Record is one log entry held in the stream buffer.
//
// Exactly one body form is populated: Raw for frames that failed to parse,
// or Message/Params (either possibly empty) for structured frames.
type Record struct {
	ID        string
	Level     Level
	TraceID   string
	Timestamp int64 // epoch millis
	Message   *Value
	Params    []Value
	Raw       *string
}

// IsRaw reports whether the record carries an unparsed frame
func (r Record) IsRaw() bool {
	return r.Raw != nil
}

// Time returns the record timestamp as a local time
func (r Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Body returns the display text of the record: the raw frame, or the message
func (r Record) Body() string {
	if r.Raw != nil {
		return *r.Raw
	}
	if r.Message != nil {
		return r.Message.Text
	}
	return ""
}

// ParamsText joins the display form of every param with spaces
func (r Record) ParamsText() string {
	if len(r.Params) == 0 {
		return ""
	}
	parts := make([]string, len(r.Params))
	for i, p := range r.Params {
		parts[i] = p.Text
	}
	return strings.Join(parts, " ")
}

type recordJSON struct {
	ID        string  `json:"id"`
	Level     Level   `json:"level"`
	Message   *Value  `json:"message,omitempty"`
	TraceID   string  `json:"traceId,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Params    []Value `json:"params,omitempty"`
	RawText   *string `json:"rawText,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:        r.ID,
		Level:     r.Level,
		Message:   r.Message,
		TraceID:   r.TraceID,
		Timestamp: r.Timestamp,
		Params:    r.Params,
		RawText:   r.Raw,
	})
}

// ConnectionState is the stream status shown to the operator
type ConnectionState string

const (
	StateConnecting ConnectionState = "Connecting"
	StateOpen       ConnectionState = "Open"
	StateClosed     ConnectionState = "Closed"
	StateError      ConnectionState = "Error"
)

