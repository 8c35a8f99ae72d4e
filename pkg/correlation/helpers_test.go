package correlation

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-correlate/internal/log"
	"github.com/teslashibe/go-correlate/pkg/sensor"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

// base is an arbitrary epoch-ms origin for synthetic streams.
const base int64 = 1_700_000_000_000

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(ms int64) *fakeClock {
	return &fakeClock{now: time.UnixMilli(ms)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.UnixMilli(ms)
}

// recorder is a Sink that keeps every event it sees.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind()
	}
	return out
}

func (r *recorder) count(k EventKind) int {
	n := 0
	for _, got := range r.kinds() {
		if got == k {
			n++
		}
	}
	return n
}

func (r *recorder) first(k EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind() == k {
			return e, true
		}
	}
	return nil, false
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("r-%d", n.Add(1)) }
}

func newTestEngine(t *testing.T, cfg Config, clock *fakeClock, opts ...Option) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	all := append([]Option{
		WithLogger(log.Nop()),
		WithSink(rec),
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs()),
	}, opts...)
	e, err := New(cfg, all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e, rec
}

func motionAt(ts int64, confidence float64) sensor.MotionReading {
	return sensor.MotionReading{
		Timestamp:  ts,
		Regions:    []sensor.MotionRegion{{Area: 1}},
		Confidence: confidence,
	}
}

// loadSynchronous feeds 30 s of 1 Hz motion and EMF where EMF is exactly
// five times the motion activity. Activity spikes to 1.0 every 2 s.
func loadSynchronous(e *Engine) {
	for i := 0; i < 30; i++ {
		ts := base + int64(i)*1000
		activity := 0.05 + 0.01*float64(i%7)
		if i%2 == 0 {
			activity = 1.0
		}
		e.AddMotionEvent(motionAt(ts, activity))
		e.AddEMFReading(sensor.EMFReading{Timestamp: ts, FieldStrength: 5 * activity})
	}
}

// loadLagged feeds 60 s of 1 Hz EMF and audio. EMF spikes at irregular
// seconds and audio repeats each spike 3 s later.
func loadLagged(e *Engine) {
	spikes := map[int]bool{2: true, 7: true, 13: true, 17: true, 24: true, 30: true, 35: true, 42: true, 46: true, 53: true}
	for i := 0; i < 60; i++ {
		ts := base + int64(i)*1000
		field, amp := 0.5, 0.1
		if spikes[i] {
			field = 5
		}
		if spikes[i-3] {
			amp = 1
		}
		e.AddEMFReading(sensor.EMFReading{Timestamp: ts, FieldStrength: field})
		e.AddAudioReading(sensor.AudioReading{Timestamp: ts, Amplitude: amp})
	}
}

// loadPeriodicLagged feeds 60 s of 1 Hz EMF and audio with an EMF spike
// every 5 s and an audio spike 3 s after each one.
func loadPeriodicLagged(e *Engine) {
	for i := 0; i < 60; i++ {
		ts := base + int64(i)*1000
		field, amp := 0.5, 0.1
		if i%5 == 0 {
			field = 5
		}
		if i >= 3 && (i-3)%5 == 0 {
			amp = 1
		}
		e.AddEMFReading(sensor.EMFReading{Timestamp: ts, FieldStrength: field})
		e.AddAudioReading(sensor.AudioReading{Timestamp: ts, Amplitude: amp})
	}
}

// loadNoise feeds 60 s of independent 10 Hz noise on all four streams.
func loadNoise(e *Engine, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < 600; i++ {
		ts := base + int64(i)*100
		e.AddMotionEvent(motionAt(ts, rng.Float64()))
		e.AddEMFReading(sensor.EMFReading{Timestamp: ts, FieldStrength: rng.Float64()})
		e.AddAudioReading(sensor.AudioReading{Timestamp: ts, Amplitude: rng.Float64()})
		e.AddEnvironmentalReading(sensor.EnvironmentalReading{
			Timestamp: ts, Kind: sensor.Temperature, Value: 20 + rng.Float64(),
		})
	}
}
