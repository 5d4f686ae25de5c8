package buffer

import (
	"fmt"
	"testing"
	"time"

	"github.com/your-username/ehr-console/internal/models"
)

func rec(id string) models.Record {
	return models.Record{ID: id, Level: models.LevelLog}
}

func ids(records []models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRingEvictsOldestFirst(t *testing.T) {
	r, err := NewRing(2)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	for _, id := range []string{"r1", "r2", "r3"} {
		r.Append(rec(id))
	}

	if got := ids(r.Records()); !equal(got, []string{"r2", "r3"}) {
		t.Fatalf("expected [r2 r3], got %v", got)
	}
	if r.Has("r1") {
		t.Fatal("evicted id r1 still indexed")
	}
	if r.Evicted() != 1 {
		t.Fatalf("expected 1 eviction, got %d", r.Evicted())
	}
}

func TestRingKeepsMostRecentInArrivalOrder(t *testing.T) {
	for _, capacity := range []int{1, 3, 7, 100} {
		r, _ := NewRing(capacity)
		want := []string{}
		for i := 0; i < 250; i++ {
			id := fmt.Sprintf("id-%d", i)
			r.Append(rec(id))
			want = append(want, id)
			if len(want) > capacity {
				want = want[1:]
			}
			if r.Len() > capacity {
				t.Fatalf("cap %d: length %d exceeds capacity", capacity, r.Len())
			}
		}
		if got := ids(r.Records()); !equal(got, want) {
			t.Fatalf("cap %d: got %v, want %v", capacity, got, want)
		}
	}
}

func TestRingRejectsDuplicateID(t *testing.T) {
	r, _ := NewRing(3)
	if !r.Append(rec("a")) {
		t.Fatal("first append rejected")
	}
	if r.Append(rec("a")) {
		t.Fatal("duplicate append accepted")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", r.Len())
	}
}

func TestRingSetCapacityTrimsImmediately(t *testing.T) {
	r, _ := NewRing(5)
	for i := 1; i <= 5; i++ {
		r.Append(rec(fmt.Sprintf("r%d", i)))
	}

	if err := r.SetCapacity(2); err != nil {
		t.Fatalf("SetCapacity: %v", err)
	}
	if got := ids(r.Records()); !equal(got, []string{"r4", "r5"}) {
		t.Fatalf("expected [r4 r5], got %v", got)
	}
	if r.Has("r1") || !r.Has("r5") {
		t.Fatal("id index out of sync after shrink")
	}

	if err := r.SetCapacity(4); err != nil {
		t.Fatalf("SetCapacity: %v", err)
	}
	r.Append(rec("r6"))
	r.Append(rec("r7"))
	r.Append(rec("r8"))
	if got := ids(r.Records()); !equal(got, []string{"r5", "r6", "r7", "r8"}) {
		t.Fatalf("expected [r5 r6 r7 r8], got %v", got)
	}

	if err := r.SetCapacity(0); err != ErrInvalidCapacity {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
}

func TestRingClearWhere(t *testing.T) {
	r, _ := NewRing(4)
	r.Append(models.Record{ID: "a", Level: models.LevelError})
	r.Append(models.Record{ID: "b", Level: models.LevelLog})
	r.Append(models.Record{ID: "c", Level: models.LevelError})
	r.Append(models.Record{ID: "d", Level: models.LevelWarn})
	r.Append(models.Record{ID: "e", Level: models.LevelLog}) // evicts a

	removed := r.ClearWhere(func(rec models.Record) bool { return rec.Level != models.LevelError })
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if got := ids(r.Records()); !equal(got, []string{"c"}) {
		t.Fatalf("expected [c], got %v", got)
	}

	r.Append(models.Record{ID: "f"})
	if got := ids(r.Records()); !equal(got, []string{"c", "f"}) {
		t.Fatalf("expected [c f], got %v", got)
	}
}

func TestParseStructuredFrame(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	frame := `{"level":"ERROR","message":{"op":"sync","facility":7},"traceId":"t-1","timestamp":1699999999000,"params":["a",2,null]}`

	r := Parse(frame, now)
	if r.IsRaw() {
		t.Fatal("structured frame parsed as raw")
	}
	if r.Level != models.LevelError {
		t.Errorf("expected ERROR, got %s", r.Level)
	}
	if r.Timestamp != 1699999999000 {
		t.Errorf("expected source timestamp, got %d", r.Timestamp)
	}
	if r.TraceID != "t-1" {
		t.Errorf("expected trace t-1, got %q", r.TraceID)
	}
	if r.Message == nil || r.Message.Text != `{"op":"sync","facility":7}` {
		t.Errorf("unexpected message: %+v", r.Message)
	}
	if got := r.ParamsText(); got != "a 2 " {
		t.Errorf("unexpected params text %q", got)
	}
}

func TestParseDefaults(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)

	tests := []struct {
		name  string
		frame string
		level models.Level
	}{
		{"missing level", `{"message":"hi"}`, models.LevelUnknown},
		{"unrecognized level", `{"level":"INFO","message":"hi"}`, models.LevelUnknown},
		{"non-string level", `{"level":3}`, models.LevelUnknown},
		{"string timestamp", `{"level":"WARN","timestamp":"yesterday"}`, models.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Parse(tt.frame, now)
			if r.IsRaw() {
				t.Fatal("unexpected raw record")
			}
			if r.Level != tt.level {
				t.Errorf("expected %s, got %s", tt.level, r.Level)
			}
			if r.Timestamp != now.UnixMilli() {
				t.Errorf("expected arrival timestamp, got %d", r.Timestamp)
			}
		})
	}
}

func TestParseNonArrayParamsDropped(t *testing.T) {
	r := Parse(`{"message":"m","params":"nope"}`, time.Now())
	if r.Params != nil {
		t.Fatalf("expected nil params, got %v", r.Params)
	}
	if r.Message.Text != "m" {
		t.Fatalf("expected unquoted string message, got %q", r.Message.Text)
	}
}

func TestParseMalformedFrames(t *testing.T) {
	now := time.UnixMilli(42)
	for _, frame := range []string{"oops", `{"level":`, "", "   ", "[1,2", `"just a string"`, "17", "null"} {
		r := Parse(frame, now)
		if !r.IsRaw() {
			t.Fatalf("frame %q: expected raw record", frame)
		}
		if *r.Raw != frame {
			t.Fatalf("frame %q: raw text %q", frame, *r.Raw)
		}
		if r.Level != models.LevelUnknown || r.Timestamp != 42 {
			t.Fatalf("frame %q: unexpected level/timestamp %s/%d", frame, r.Level, r.Timestamp)
		}
		if r.Message != nil || r.Params != nil {
			t.Fatalf("frame %q: raw record carries structured body", frame)
		}
	}
}

func TestBufferIngestAssignsUniqueIDs(t *testing.T) {
	b, err := New(3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fixed := time.UnixMilli(1000)
	b.now = func() time.Time { return fixed }

	b.Ingest(`{"level":"LOG","message":"1"}`)
	b.Ingest("oops")
	last := b.Ingest(`{"level":"LOG","message":"3"}`)
	b.Ingest(`{"level":"LOG","message":"4"}`)

	records := b.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	seen := map[string]bool{}
	for _, r := range records {
		if seen[r.ID] {
			t.Fatalf("duplicate id %s", r.ID)
		}
		seen[r.ID] = true
	}
	if records[0].Raw == nil || *records[0].Raw != "oops" {
		t.Fatalf("expected oldest surviving record to be the raw frame, got %+v", records[0])
	}
	if records[1].ID != last.ID {
		t.Fatalf("expected arrival order to be preserved")
	}
}
