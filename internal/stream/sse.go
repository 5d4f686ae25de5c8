package stream

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Maximum size of a single event payload, and of any one line
const maxEventSize = 512 * 1024

var ErrEventTooLarge = errors.New("stream event exceeds maximum size")

// Message is one dispatched server-sent event
type Message struct {
	Name  string
	Data  string
	ID    string
	Retry int // reconnection hint in ms, 0 when absent
}

// Decoder reads text/event-stream framing. Lines end in LF, CRLF or a lone CR.
type Decoder struct {
	r       *bufio.Reader
	line    []byte
	skipLF  bool
	started bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// readLine returns the next line without its terminator. A CR ends the line
// at once; an LF straight after it is dropped on the next read.
func (d *Decoder) readLine() (string, error) {
	d.line = d.line[:0]
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return "", err
		}
		if d.skipLF {
			d.skipLF = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case '\n':
			return string(d.line), nil
		case '\r':
			d.skipLF = true
			return string(d.line), nil
		}
		if len(d.line) >= maxEventSize {
			return "", ErrEventTooLarge
		}
		d.line = append(d.line, b)
	}
}

// Next returns the next complete event. An event cut off by EOF is discarded.
func (d *Decoder) Next() (Message, error) {
	var (
		ev   Message
		data strings.Builder
		seen bool
	)
	for {
		line, err := d.readLine()
		if err != nil {
			return Message{}, err
		}
		if !d.started {
			d.started = true
			line = strings.TrimPrefix(line, "\uFEFF")
		}

		if line == "" {
			if !seen {
				ev = Message{}
				continue
			}
			ev.Data = strings.TrimSuffix(data.String(), "\n")
			if ev.Name == "" {
				ev.Name = "message"
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			ev.Name = value
		case "data":
			if data.Len()+len(value) > maxEventSize {
				return Message{}, ErrEventTooLarge
			}
			data.WriteString(value)
			data.WriteByte('\n')
			seen = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				ev.ID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				ev.Retry = ms
			}
		}
	}
}
