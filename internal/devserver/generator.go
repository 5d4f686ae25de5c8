package devserver

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"

	"github.com/your-username/ehr-console/internal/models"
)

var (
	facilities = []string{"north-clinic", "st-mary", "harbor-health", "lakeside-peds"}
	vendors    = []string{"epic", "cerner", "athena", "meditech"}

	levelWeights = []struct {
		level  models.Level
		weight int
	}{
		{models.LevelLog, 50},
		{models.LevelDebug, 20},
		{models.LevelVerbose, 10},
		{models.LevelWarn, 12},
		{models.LevelError, 8},
	}

	templates = map[models.Level][]string{
		models.LevelLog: {
			"Patient sync started",
			"Patient record updated",
			"Facility credentials rotated",
			"Bulk import batch committed",
			"API key issued",
		},
		models.LevelDebug: {
			"EHR request dispatched",
			"Duplicate candidate scored",
			"Cache lookup",
		},
		models.LevelVerbose: {
			"FHIR bundle decoded",
			"Pagination cursor advanced",
		},
		models.LevelWarn: {
			"EHR response slow",
			"Duplicate patient suspected",
			"API key near expiry",
		},
		models.LevelError: {
			"EHR token exchange failed",
			"Patient merge aborted",
			"Bulk import row rejected",
		},
	}

	malformed = []string{"oops", "upstream timeout <html>", "{\"level\":\"ERROR\",", "panic: recovered"}
)

// Generator produces synthetic platform log frames
type Generator struct {
	rate  int
	rand  *rand.Rand
	arena fastjson.Arena
	now   func() time.Time
}

// NewGenerator emits rate frames per second
func NewGenerator(rate int, seed int64) *Generator {
	if rate <= 0 {
		rate = 1
	}
	return &Generator{
		rate: rate,
		rand: rand.New(rand.NewSource(seed)),
		now:  time.Now,
	}
}

// Run publishes frames to hub until ctx ends
func (g *Generator) Run(ctx context.Context, hub *Hub) {
	ticker := time.NewTicker(time.Second / time.Duration(g.rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if hub.Subscribers() == 0 {
				continue
			}
			hub.Publish(ctx, g.Next())
		}
	}
}

// Next builds one frame. Structured frames go out on the level channel or the
// default channel at random; a few frames are not JSON at all.
func (g *Generator) Next() Frame {
	if g.rand.Intn(25) == 0 {
		return Frame{Data: malformed[g.rand.Intn(len(malformed))]}
	}

	level := g.level()
	a := &g.arena
	a.Reset()

	o := a.NewObject()
	o.Set("level", a.NewString(string(level)))
	o.Set("timestamp", a.NewNumberString(strconv.FormatInt(g.now().UnixMilli(), 10)))
	if g.rand.Intn(4) != 0 {
		o.Set("traceId", a.NewString(uuid.NewString()))
	}

	msgs := templates[level]
	msg := msgs[g.rand.Intn(len(msgs))]
	facility := facilities[g.rand.Intn(len(facilities))]

	switch g.rand.Intn(5) {
	case 0:
		// structured message body
		body := a.NewObject()
		body.Set("event", a.NewString(msg))
		body.Set("facility", a.NewString(facility))
		body.Set("durationMs", a.NewNumberString(strconv.Itoa(g.rand.Intn(2000))))
		o.Set("message", body)
	default:
		o.Set("message", a.NewString(msg))
	}

	if g.rand.Intn(2) == 0 {
		params := a.NewArray()
		params.SetArrayItem(0, a.NewString(facility))
		params.SetArrayItem(1, a.NewString(vendors[g.rand.Intn(len(vendors))]))
		if g.rand.Intn(3) == 0 {
			params.SetArrayItem(2, a.NewNumberString(strconv.Itoa(g.rand.Intn(500))))
		}
		o.Set("params", params)
	}

	frame := Frame{Data: string(o.MarshalTo(nil))}
	if g.rand.Intn(2) == 0 {
		frame.Event = string(level)
	}
	return frame
}

func (g *Generator) level() models.Level {
	total := 0
	for _, lw := range levelWeights {
		total += lw.weight
	}
	n := g.rand.Intn(total)
	for _, lw := range levelWeights {
		if n < lw.weight {
			return lw.level
		}
		n -= lw.weight
	}
	return models.LevelLog
}
