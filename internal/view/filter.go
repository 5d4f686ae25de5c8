// Package view derives the filtered, searched subset of the stream buffer.
package view

import (
	"strings"

	"github.com/your-username/ehr-console/internal/models"
)

// Filter is the operator's level visibility plus free-text search
type Filter struct {
	Levels map[models.Level]bool
	Query  string
}

// NewFilter returns a filter with every level visible and no search
func NewFilter() Filter {
	levels := make(map[models.Level]bool, len(models.Levels))
	for _, l := range models.Levels {
		levels[l] = true
	}
	return Filter{Levels: levels}
}

// Toggle returns a copy of f with the visibility of level flipped
func (f Filter) Toggle(level models.Level) Filter {
	levels := make(map[models.Level]bool, len(f.Levels))
	for l, on := range f.Levels {
		levels[l] = on
	}
	levels[level] = !levels[level]
	return Filter{Levels: levels, Query: f.Query}
}

// WithQuery returns a copy of f searching for q
func (f Filter) WithQuery(q string) Filter {
	f.Query = q
	return f
}

// Matches reports whether rec passes both the level and the search filter.
// UNKNOWN records always pass the level filter.
func (f Filter) Matches(rec models.Record) bool {
	if rec.Level != models.LevelUnknown && !f.Levels[rec.Level] {
		return false
	}
	return matchesSearch(rec, f.Query)
}

func matchesSearch(rec models.Record, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)

	if rec.Raw != nil {
		return strings.Contains(strings.ToLower(*rec.Raw), q)
	}
	if rec.Message != nil && strings.Contains(strings.ToLower(rec.Message.Text), q) {
		return true
	}
	if len(rec.Params) > 0 && strings.Contains(strings.ToLower(rec.ParamsText()), q) {
		return true
	}
	return false
}

// Apply returns the records passing f, in buffer order. records is not modified.
func Apply(records []models.Record, f Filter) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, rec := range records {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Clearer is the part of the ring buffer ClearVisible needs
type Clearer interface {
	ClearWhere(pred func(models.Record) bool) int
}

// ClearVisible deletes from the buffer every record currently passing f
func ClearVisible(buf Clearer, f Filter) int {
	return buf.ClearWhere(f.Matches)
}
