package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-correlate/internal/log"
	"github.com/teslashibe/go-correlate/pkg/anomaly"
	"github.com/teslashibe/go-correlate/pkg/buffer"
	"github.com/teslashibe/go-correlate/pkg/sensor"
)

// AnomalyEventThreshold is the anomaly score above which a
// CorrelationAnomaly event is published.
const AnomalyEventThreshold = 0.7

// Logger is the logging capability the engine needs. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithScorer sets the anomaly scorer.
func WithScorer(s anomaly.Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithSink adds an event sink. Given more than once, events fan out to
// every sink in the order the options were passed.
func WithSink(s Sink) Option {
	return func(e *Engine) {
		if s == nil {
			return
		}
		switch cur := e.sink.(type) {
		case nil, nopSink:
			e.sink = s
		case MultiSink:
			e.sink = append(cur, s)
		default:
			e.sink = MultiSink{cur, s}
		}
	}
}

// WithClock overrides the wall clock used for pruning and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how result IDs are minted.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

func newResultID() string { return uuid.NewString() }

// Status is a point-in-time view of the engine.
type Status struct {
	Active       bool                  `json:"active"`
	Buffers      map[sensor.Source]int `json:"buffers"`
	HistoryCount int                   `json:"history_count"`
	Cycles       uint64                `json:"cycles"`
	LastCycle    int64                 `json:"last_cycle,omitempty"`
	Config       Config                `json:"config"`
}

// Engine buffers sensor readings and runs periodic correlation cycles.
//
// All methods are safe for concurrent use. At most one cycle runs at a
// time; the scheduler waits AnalysisInterval after a cycle finishes before
// starting the next one.
type Engine struct {
	mu sync.Mutex

	cfg           Config
	motion        *buffer.Ring[sensor.MotionReading]
	emf           *buffer.Ring[sensor.EMFReading]
	audio         *buffer.Ring[sensor.AudioReading]
	environmental *buffer.Ring[sensor.EnvironmentalReading]
	history       *History
	cycles        uint64
	lastCycle     int64
	closed        bool

	// scheduler state, guarded by mu
	stop chan struct{}
	done chan struct{}

	// reschedule wakes the scheduler after the interval changes
	reschedule chan struct{}

	cycling atomic.Bool

	logger Logger
	scorer anomaly.Scorer
	sink   Sink
	now    func() time.Time
	newID  func() string
}

// New creates a stopped engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg = cfg.clone()
	e := &Engine{
		cfg:           cfg,
		motion:        buffer.New[sensor.MotionReading](cfg.MaxBufferSize),
		emf:           buffer.New[sensor.EMFReading](cfg.MaxBufferSize),
		audio:         buffer.New[sensor.AudioReading](cfg.MaxBufferSize),
		environmental: buffer.New[sensor.EnvironmentalReading](cfg.MaxBufferSize),
		history:       NewHistory(HistoryCap),
		logger:        log.L(),
		scorer:        anomaly.NewStdDevScorer(),
		sink:          nopSink{},
		now:           time.Now,
		newID:         newResultID,
		reschedule:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = nopSink{}
	}
	return e, nil
}

// AddMotionEvent buffers a motion reading.
func (e *Engine) AddMotionEvent(r sensor.MotionReading) {
	ingest(e, e.motion, r)
}

// AddEMFReading buffers an EMF reading.
func (e *Engine) AddEMFReading(r sensor.EMFReading) {
	ingest(e, e.emf, r)
}

// AddAudioReading buffers an audio reading.
func (e *Engine) AddAudioReading(r sensor.AudioReading) {
	ingest(e, e.audio, r)
}

// AddEnvironmentalReading buffers an environmental reading.
func (e *Engine) AddEnvironmentalReading(r sensor.EnvironmentalReading) {
	ingest(e, e.environmental, r)
}

// Add routes a reading to its buffer by concrete type.
func (e *Engine) Add(r sensor.Reading) error {
	switch v := r.(type) {
	case sensor.MotionReading:
		e.AddMotionEvent(v)
	case sensor.EMFReading:
		e.AddEMFReading(v)
	case sensor.AudioReading:
		e.AddAudioReading(v)
	case sensor.EnvironmentalReading:
		e.AddEnvironmentalReading(v)
	default:
		return fmt.Errorf("correlation: unsupported reading type %T", r)
	}
	return nil
}

func ingest[R sensor.Reading](e *Engine, buf *buffer.Ring[R], r R) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	cutoff := e.cutoffLocked()
	buf.PruneBefore(cutoff)
	if r.UnixMilli() < cutoff {
		// already outside the window; it must not evict a live reading
		e.mu.Unlock()
		e.logger.Debug("dropping stale reading", "source", r.Source(), "timestamp", r.UnixMilli(), "cutoff", cutoff)
		return
	}
	buf.Push(r)
	size := buf.Len()
	sink := e.sink
	e.mu.Unlock()

	e.emit(sink, DataAdded{Source: r.Source(), BufferSize: size, Timestamp: r.UnixMilli()})
}

func (e *Engine) cutoffLocked() int64 {
	return e.now().UnixMilli() - e.cfg.TimeWindow.Milliseconds()
}

func (e *Engine) pruneLocked() {
	cutoff := e.cutoffLocked()
	e.motion.PruneBefore(cutoff)
	e.emf.PruneBefore(cutoff)
	e.audio.PruneBefore(cutoff)
	e.environmental.PruneBefore(cutoff)
}

func (e *Engine) resizeLocked(capacity int) {
	e.motion.Resize(capacity)
	e.emf.Resize(capacity)
	e.audio.Resize(capacity)
	e.environmental.Resize(capacity)
}

// UpdateConfiguration merges p into the current configuration. Changes take
// effect from the next cycle; a shorter window or smaller buffer size also
// trims the buffers immediately. A new AnalysisInterval restarts the
// scheduler's wait so the next cycle is due one new interval from now.
func (e *Engine) UpdateConfiguration(p ConfigPatch) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	next := e.cfg.Apply(p)
	if err := next.Validate(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	intervalChanged := next.AnalysisInterval != e.cfg.AnalysisInterval
	e.cfg = next
	e.resizeLocked(next.MaxBufferSize)
	e.pruneLocked()
	cfg := next.clone()
	sink := e.sink
	e.mu.Unlock()

	if intervalChanged {
		select {
		case e.reschedule <- struct{}{}:
		default:
		}
	}

	e.logger.Info("configuration updated",
		"time_window", cfg.TimeWindow,
		"interval", cfg.AnalysisInterval,
		"min_correlation", cfg.MinCorrelation)
	e.emit(sink, ConfigurationUpdated{Config: cfg})
	return nil
}

// Config returns a copy of the configuration in effect.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.clone()
}

// Start launches the scheduler. Starting a running engine is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.stop != nil {
		return nil
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(e.stop, e.done)
	e.logger.Info("correlation analysis started", "interval", e.cfg.AnalysisInterval)
	return nil
}

// Stop halts the scheduler and waits for an in-flight cycle to finish.
// History, baselines and buffers are kept. It must not be called from a
// Sink while a cycle is publishing.
func (e *Engine) Stop() {
	if !e.halt() {
		return
	}
	e.logger.Info("correlation analysis stopped")
	e.publish(AnalysisStopped{Timestamp: e.now().UnixMilli()})
}

func (e *Engine) halt() bool {
	e.mu.Lock()
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	e.mu.Unlock()
	if stop == nil {
		return false
	}
	close(stop)
	<-done
	return true
}

// RestartIfStopped starts the scheduler if it is not running and reports
// whether it did.
func (e *Engine) RestartIfStopped() bool {
	e.mu.Lock()
	running := e.stop != nil
	closed := e.closed
	e.mu.Unlock()
	if running || closed {
		return false
	}
	if err := e.Start(); err != nil {
		return false
	}
	e.publish(AnalysisRestarted{Timestamp: e.now().UnixMilli()})
	return true
}

// Active reports whether the scheduler is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop != nil
}

// Close stops the scheduler and detaches the sink. Buffers and history are
// left as they are. Close is idempotent.
func (e *Engine) Close() error {
	e.halt()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.sink = nopSink{}
	return nil
}

func (e *Engine) interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.AnalysisInterval
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(e.interval())
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-e.reschedule:
			timer.Reset(e.interval())
			continue
		case <-timer.C:
		}

		_, err := e.RunCycle(context.Background())
		switch {
		case err == nil:
		case errors.Is(err, ErrInsufficientData), errors.Is(err, ErrCycleInProgress):
			e.logger.Debug("analysis cycle skipped", "reason", err)
		case errors.Is(err, ErrEngineClosed):
			return
		}

		timer.Reset(e.interval())
	}
}

// RunCycle performs one analysis cycle immediately and returns the results
// it accepted. Failures other than ErrCycleInProgress and
// ErrInsufficientData are logged and published as AnalysisError.
func (e *Engine) RunCycle(ctx context.Context) ([]Result, error) {
	if !e.cycling.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer e.cycling.Store(false)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.pruneLocked()
	snap := Snapshot{
		At:            e.now().UnixMilli(),
		Motion:        e.motion.Snapshot(),
		EMF:           e.emf.Snapshot(),
		Audio:         e.audio.Snapshot(),
		Environmental: e.environmental.Snapshot(),
	}
	cfg := e.cfg.clone()
	prior := make(map[Type][]float64, len(cfg.EnabledTypes))
	for _, t := range AllTypes {
		if cfg.Enabled(t) {
			prior[t] = e.history.RecentMagnitudes(t, RecentWindow)
		}
	}
	e.mu.Unlock()

	if snap.Total() < cfg.MinSamples {
		return nil, ErrInsufficientData
	}

	start := time.Now()
	results, err := e.analyze(ctx, cfg, snap, prior)
	if err != nil {
		e.logger.Error("analysis cycle failed", "error", err)
		e.publish(AnalysisError{Err: err, Message: err.Error(), Timestamp: snap.At})
		return nil, err
	}

	e.process(results, snap.At)
	e.logger.Debug("analysis cycle complete",
		"results", len(results),
		"readings", snap.Total(),
		"duration", time.Since(start))

	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = r.Clone()
	}
	return out, nil
}

func (e *Engine) analyze(ctx context.Context, cfg Config, snap Snapshot, prior map[Type][]float64) (out []Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("correlation: panic during analysis: %v", r)
		}
	}()

	if cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CycleTimeout)
		defer cancel()
	}

	a := NewAnalyzer(cfg, e.scorer, e.newID)
	for _, t := range AllTypes {
		if !cfg.Enabled(t) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("correlation: cycle aborted before %s: %w", t, err)
		}
		r := a.Analyze(t, snap, prior[t])
		if r == nil || r.Strength == None {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (e *Engine) process(results []Result, at int64) {
	e.mu.Lock()
	for _, r := range results {
		e.history.Append(r)
	}
	size := e.history.Len()
	e.cycles++
	e.lastCycle = at
	sink := e.sink
	e.mu.Unlock()

	for _, r := range results {
		e.emit(sink, CorrelationDetected{Result: r.Clone()})
		if r.AnomalyScore > AnomalyEventThreshold {
			e.emit(sink, CorrelationAnomaly{Result: r.Clone()})
		}
		if r.Strength == VeryStrong {
			e.emit(sink, StrongCorrelation{Result: r.Clone()})
		}
	}

	clones := make([]Result, len(results))
	for i, r := range results {
		clones[i] = r.Clone()
	}
	e.emit(sink, CycleComplete{Results: clones, HistorySize: size, Timestamp: at})
}

func (e *Engine) publish(ev Event) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	e.emit(sink, ev)
}

// emit delivers ev to each sink in turn. A sink that panics is logged and
// skipped; the rest still receive the event.
func (e *Engine) emit(sink Sink, ev Event) {
	if m, ok := sink.(MultiSink); ok {
		for _, s := range m {
			e.emit(s, ev)
		}
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event sink panicked", "kind", ev.Kind(), "panic", r)
		}
	}()
	sink.Publish(ev)
}

// Status reports the scheduler state, buffer sizes and configuration.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Active: e.stop != nil,
		Buffers: map[sensor.Source]int{
			sensor.Motion:        e.motion.Len(),
			sensor.EMF:           e.emf.Len(),
			sensor.Audio:         e.audio.Len(),
			sensor.Environmental: e.environmental.Len(),
		},
		HistoryCount: e.history.Len(),
		Cycles:       e.cycles,
		LastCycle:    e.lastCycle,
		Config:       e.cfg.clone(),
	}
}

// History returns deep copies of the retained results, oldest first.
func (e *Engine) History() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Results()
}

// Baselines returns a copy of the baseline map.
func (e *Engine) Baselines() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Baselines()
}

// ClearHistory empties history and baselines.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	e.history.Clear()
	sink := e.sink
	e.mu.Unlock()
	e.emit(sink, HistoryCleared{Timestamp: e.now().UnixMilli()})
}

// ClearBuffers drops every buffered reading.
func (e *Engine) ClearBuffers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.motion.Clear()
	e.emf.Clear()
	e.audio.Clear()
	e.environmental.Clear()
}
