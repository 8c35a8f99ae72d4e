package correlation

import "github.com/teslashibe/go-correlate/pkg/sensor"

// EventKind names an engine notification.
type EventKind string

const (
	KindDataAdded            EventKind = "data-added"
	KindCorrelationDetected  EventKind = "correlation-detected"
	KindCorrelationAnomaly   EventKind = "correlation-anomaly"
	KindStrongCorrelation    EventKind = "strong-correlation"
	KindAnalysisError        EventKind = "analysis-error"
	KindCycleComplete        EventKind = "cycle-complete"
	KindConfigurationUpdated EventKind = "configuration-updated"
	KindAnalysisStopped      EventKind = "analysis-stopped"
	KindAnalysisRestarted    EventKind = "analysis-restarted"
	KindHistoryCleared       EventKind = "history-cleared"
)

// Event is one of the concrete event types below.
type Event interface {
	Kind() EventKind
	isEvent()
}

// Sink receives engine events. Publish is called synchronously from the
// engine's goroutines and must not block for long or call back into the
// engine while holding its own locks.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// MultiSink fans each event out to every sink in order.
type MultiSink []Sink

// Publish forwards e to each sink.
func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}

// DataAdded reports a reading accepted into a buffer.
type DataAdded struct {
	Source     sensor.Source `json:"source"`
	BufferSize int           `json:"buffer_size"`
	Timestamp  int64         `json:"timestamp"`
}

// CorrelationDetected is published for every qualifying result.
type CorrelationDetected struct {
	Result Result `json:"result"`
}

// CorrelationAnomaly is published when a result's anomaly score exceeds
// AnomalyEventThreshold.
type CorrelationAnomaly struct {
	Result Result `json:"result"`
}

// StrongCorrelation is published for very-strong results.
type StrongCorrelation struct {
	Result Result `json:"result"`
}

// AnalysisError reports a failed cycle.
type AnalysisError struct {
	Err       error  `json:"-"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// CycleComplete closes every cycle that ran, even with zero results.
type CycleComplete struct {
	Results     []Result `json:"results"`
	HistorySize int      `json:"history_size"`
	Timestamp   int64    `json:"timestamp"`
}

// ConfigurationUpdated carries the configuration now in effect.
type ConfigurationUpdated struct {
	Config Config `json:"config"`
}

// AnalysisStopped is published when the scheduler stops.
type AnalysisStopped struct {
	Timestamp int64 `json:"timestamp"`
}

// AnalysisRestarted is published when a stopped scheduler is restarted.
type AnalysisRestarted struct {
	Timestamp int64 `json:"timestamp"`
}

// HistoryCleared is published after ClearHistory.
type HistoryCleared struct {
	Timestamp int64 `json:"timestamp"`
}

func (DataAdded) Kind() EventKind            { return KindDataAdded }
func (CorrelationDetected) Kind() EventKind  { return KindCorrelationDetected }
func (CorrelationAnomaly) Kind() EventKind   { return KindCorrelationAnomaly }
func (StrongCorrelation) Kind() EventKind    { return KindStrongCorrelation }
func (AnalysisError) Kind() EventKind        { return KindAnalysisError }
func (CycleComplete) Kind() EventKind        { return KindCycleComplete }
func (ConfigurationUpdated) Kind() EventKind { return KindConfigurationUpdated }
func (AnalysisStopped) Kind() EventKind      { return KindAnalysisStopped }
func (AnalysisRestarted) Kind() EventKind    { return KindAnalysisRestarted }
func (HistoryCleared) Kind() EventKind       { return KindHistoryCleared }

func (DataAdded) isEvent()            {}
func (CorrelationDetected) isEvent()  {}
func (CorrelationAnomaly) isEvent()   {}
func (StrongCorrelation) isEvent()    {}
func (AnalysisError) isEvent()        {}
func (CycleComplete) isEvent()        {}
func (ConfigurationUpdated) isEvent() {}
func (AnalysisStopped) isEvent()      {}
func (AnalysisRestarted) isEvent()    {}
func (HistoryCleared) isEvent()       {}

type nopSink struct{}

func (nopSink) Publish(Event) {}
