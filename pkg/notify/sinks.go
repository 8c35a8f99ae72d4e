package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-correlate/internal/httpc"
	"github.com/teslashibe/go-correlate/internal/log"
	"github.com/teslashibe/go-correlate/pkg/correlation"
	"github.com/teslashibe/go-correlate/pkg/hub"
	"github.com/teslashibe/go-correlate/pkg/protocol"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Publish logs e at a level matching its importance.
func (s LogSink) Publish(e correlation.Event) {
	l := s.Logger
	if l == nil {
		l = log.L()
	}
	switch ev := e.(type) {
	case correlation.DataAdded:
		l.Debug("reading buffered", "source", ev.Source, "buffer", ev.BufferSize)
	case correlation.CorrelationDetected:
		l.Info("correlation detected", resultAttrs(ev.Result)...)
	case correlation.CorrelationAnomaly:
		l.Warn("correlation anomaly", resultAttrs(ev.Result)...)
	case correlation.StrongCorrelation:
		l.Warn("strong correlation", resultAttrs(ev.Result)...)
	case correlation.AnalysisError:
		l.Error("analysis error", "error", ev.Message)
	case correlation.CycleComplete:
		l.Debug("cycle complete", "results", len(ev.Results), "history", ev.HistorySize)
	default:
		l.Info("engine event", "kind", e.Kind())
	}
}

func resultAttrs(r correlation.Result) []any {
	return []any{
		"id", r.ID,
		"type", r.Type,
		"strength", r.Strength,
		"pattern", r.Pattern,
		"confidence", r.Confidence,
		"anomaly", r.AnomalyScore,
	}
}

// HubSink broadcasts events to websocket subscribers as protocol messages.
type HubSink struct {
	Hub *hub.Hub
}

// Publish encodes e and broadcasts it.
func (s HubSink) Publish(e correlation.Event) {
	msg, err := protocol.NewEventMessage(e)
	if err != nil {
		log.Warn("encode event", "kind", e.Kind(), "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		log.Warn("encode event", "kind", e.Kind(), "error", err)
		return
	}
	s.Hub.Broadcast(hub.NewTopicMessage(string(e.Kind()), data))
}

// WebhookKinds are the events worth forwarding to a webhook. Wrap the sink
// with Filter to select them.
var WebhookKinds = []correlation.EventKind{
	correlation.KindCorrelationAnomaly,
	correlation.KindStrongCorrelation,
	correlation.KindAnalysisError,
}

// webhookQueueSize bounds the posts waiting on a slow endpoint.
const webhookQueueSize = 64

// WebhookSink posts events to an HTTP endpoint from its own goroutine, so a
// slow endpoint never holds up the other sinks. Events that arrive while the
// queue is full are dropped and counted.
type WebhookSink struct {
	url     string
	client  *http.Client
	timeout time.Duration
	queue   chan []byte
	logger  *slog.Logger
	dropped atomic.Uint64
}

// NewWebhookSink creates a webhook sink. Call Run to start delivery.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		url:     url,
		client:  httpc.Client,
		timeout: timeout,
		queue:   make(chan []byte, webhookQueueSize),
		logger:  log.With("component", "webhook"),
	}
}

// Publish encodes e and queues it for posting. It never blocks.
func (s *WebhookSink) Publish(e correlation.Event) {
	msg, err := protocol.NewEventMessage(e)
	if err != nil {
		s.logger.Warn("encode event", "kind", e.Kind(), "error", err)
		return
	}
	body, err := msg.Bytes()
	if err != nil {
		s.logger.Warn("encode event", "kind", e.Kind(), "error", err)
		return
	}
	select {
	case s.queue <- body:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.logger.Warn("webhook queue full, dropping events", "dropped", n, "kind", e.Kind())
		}
	}
}

// Run posts queued events until ctx is cancelled.
func (s *WebhookSink) Run(ctx context.Context) {
	for {
		select {
		case body := <-s.queue:
			s.post(ctx, body)
		case <-ctx.Done():
			return
		}
	}
}

func (s *WebhookSink) post(ctx context.Context, body []byte) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := httpc.PostJSON(ctx, s.client, s.url, body); err != nil {
		s.logger.Warn("webhook delivery failed", "error", err)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (s *WebhookSink) Dropped() uint64 { return s.dropped.Load() }
