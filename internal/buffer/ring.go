package buffer

import (
	"errors"

	"github.com/your-username/ehr-console/internal/models"
)

// Capacity choices offered to the operator
var Capacities = []int{100, 200, 500, 1000, 2000}

const DefaultCapacity = 500

var ErrInvalidCapacity = errors.New("buffer capacity must be positive")

// Ring is a fixed-capacity, arrival-ordered sequence of records that
// evicts the oldest entry first. It is not safe for concurrent use.
type Ring struct {
	items   []models.Record
	start   int
	n       int
	ids     map[string]struct{}
	evicted int64
}

// NewRing creates a ring holding at most capacity records
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Ring{
		items: make([]models.Record, capacity),
		ids:   make(map[string]struct{}, capacity),
	}, nil
}

// Len returns the number of records held
func (r *Ring) Len() int { return r.n }

// Cap returns the current capacity
func (r *Ring) Cap() int { return len(r.items) }

// Evicted returns how many records capacity eviction has removed so far
func (r *Ring) Evicted() int64 { return r.evicted }

// Has reports whether a record with id is currently held
func (r *Ring) Has(id string) bool {
	_, ok := r.ids[id]
	return ok
}

// Append adds rec as the newest entry, evicting the oldest when full.
// It returns false and leaves the ring untouched if rec.ID is already held.
func (r *Ring) Append(rec models.Record) bool {
	if r.Has(rec.ID) {
		return false
	}
	capacity := len(r.items)
	if r.n == capacity {
		oldest := r.items[r.start]
		delete(r.ids, oldest.ID)
		r.items[r.start] = rec
		r.start = (r.start + 1) % capacity
		r.evicted++
	} else {
		r.items[(r.start+r.n)%capacity] = rec
		r.n++
	}
	r.ids[rec.ID] = struct{}{}
	return true
}

// Records returns a copy of the held records, oldest first
func (r *Ring) Records() []models.Record {
	out := make([]models.Record, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}

// SetCapacity changes the eviction threshold, dropping the oldest excess records at once
func (r *Ring) SetCapacity(capacity int) error {
	if capacity <= 0 {
		return ErrInvalidCapacity
	}
	records := r.Records()
	if len(records) > capacity {
		for _, rec := range records[:len(records)-capacity] {
			delete(r.ids, rec.ID)
		}
		r.evicted += int64(len(records) - capacity)
		records = records[len(records)-capacity:]
	}
	r.items = make([]models.Record, capacity)
	copy(r.items, records)
	r.start = 0
	r.n = len(records)
	return nil
}

// ClearWhere removes every record matching pred and returns how many were removed
func (r *Ring) ClearWhere(pred func(models.Record) bool) int {
	kept := make([]models.Record, 0, r.n)
	removed := 0
	for _, rec := range r.Records() {
		if pred(rec) {
			delete(r.ids, rec.ID)
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	if removed == 0 {
		return 0
	}
	r.items = make([]models.Record, len(r.items))
	copy(r.items, kept)
	r.start = 0
	r.n = len(kept)
	return removed
}
