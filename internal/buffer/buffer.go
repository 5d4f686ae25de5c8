package buffer

import (
	"time"

	"github.com/your-username/ehr-console/internal/models"
)

// Buffer ingests stream frames into a Ring
type Buffer struct {
	*Ring
	now func() time.Time
}

// New creates a buffer with the given capacity
func New(capacity int) (*Buffer, error) {
	ring, err := NewRing(capacity)
	if err != nil {
		return nil, err
	}
	return &Buffer{Ring: ring, now: time.Now}, nil
}

// Ingest parses frame, assigns it a unique id and appends it
func (b *Buffer) Ingest(frame string) models.Record {
	arrival := b.now()
	rec := Parse(frame, arrival)
	for {
		rec.ID = newID(arrival)
		if b.Append(rec) {
			return rec
		}
	}
}
