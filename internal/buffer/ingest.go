package buffer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"

	"github.com/your-username/ehr-console/internal/models"
)

var parserPool fastjson.ParserPool

// Parse turns one inbound frame into a record arriving at now.
// Frames that are not a JSON object become raw records carrying the frame verbatim.
// The returned record has no ID; Buffer.Ingest assigns one.
func Parse(frame string, now time.Time) models.Record {
	arrival := now.UnixMilli()

	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.Parse(frame)
	if err != nil || v.Type() != fastjson.TypeObject {
		raw := frame
		return models.Record{
			Level:     models.LevelUnknown,
			Timestamp: arrival,
			Raw:       &raw,
		}
	}

	rec := models.Record{
		Level:     models.LevelUnknown,
		Timestamp: arrival,
	}

	if lvl := v.Get("level"); lvl != nil && lvl.Type() == fastjson.TypeString {
		rec.Level = models.ParseLevel(string(lvl.GetStringBytes()))
	}

	if ts := v.Get("timestamp"); ts != nil && ts.Type() == fastjson.TypeNumber {
		if f, err := ts.Float64(); err == nil {
			rec.Timestamp = int64(f)
		}
	}

	if trace := v.Get("traceId"); trace != nil && trace.Type() != fastjson.TypeNull {
		rec.TraceID = toValue(trace).Text
	}

	if msg := v.Get("message"); msg != nil {
		val := toValue(msg)
		rec.Message = &val
	}

	if params := v.Get("params"); params != nil && params.Type() == fastjson.TypeArray {
		items := params.GetArray()
		rec.Params = make([]models.Value, 0, len(items))
		for _, item := range items {
			rec.Params = append(rec.Params, toValue(item))
		}
	}

	return rec
}

// toValue copies v out of the parser arena
func toValue(v *fastjson.Value) models.Value {
	encoded := string(v.MarshalTo(nil))
	switch v.Type() {
	case fastjson.TypeString:
		return models.Value{JSON: encoded, Text: string(v.GetStringBytes())}
	case fastjson.TypeNull:
		return models.Value{JSON: encoded}
	default:
		return models.Value{JSON: encoded, Text: encoded}
	}
}

// newID derives a record id from the arrival time plus a random suffix
func newID(arrival time.Time) string {
	return fmt.Sprintf("%d-%s", arrival.UnixMilli(), uuid.NewString()[:8])
}
