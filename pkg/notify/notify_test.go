package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-correlate/internal/log"
	"github.com/teslashibe/go-correlate/pkg/correlation"
	"github.com/teslashibe/go-correlate/pkg/protocol"
)

type recorder struct {
	mu    sync.Mutex
	kinds []correlation.EventKind
}

func (r *recorder) Publish(e correlation.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, e.Kind())
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.kinds)
}

func TestDispatcher_Delivers(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(8, rec)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Publish(correlation.HistoryCleared{Timestamp: 1})
	d.Publish(correlation.AnalysisStopped{Timestamp: 2})

	deadline := time.Now().Add(time.Second)
	for rec.len() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if rec.len() != 2 || d.Delivered() != 2 {
		t.Errorf("delivered %d (recorder %d), want 2", d.Delivered(), rec.len())
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(2, rec)
	for i := 0; i < 5; i++ {
		d.Publish(correlation.HistoryCleared{Timestamp: int64(i)})
	}
	if d.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", d.Dropped())
	}

	// Cancelled context still drains what was queued
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)
	if rec.len() != 2 {
		t.Errorf("drained %d, want 2", rec.len())
	}
}

func TestFilter(t *testing.T) {
	rec := &recorder{}
	s := Filter(rec, correlation.KindAnalysisError)
	s.Publish(correlation.HistoryCleared{})
	s.Publish(correlation.AnalysisError{Message: "x"})
	if rec.len() != 1 || rec.kinds[0] != correlation.KindAnalysisError {
		t.Errorf("kinds = %v", rec.kinds)
	}
}

func TestDispatcher_RecoversSinkPanic(t *testing.T) {
	rec := &recorder{}
	boom := correlation.SinkFunc(func(correlation.Event) { panic("sink bug") })
	d := NewDispatcher(4, boom, rec)
	d.Publish(correlation.HistoryCleared{Timestamp: 1})
	d.Publish(correlation.HistoryCleared{Timestamp: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	if rec.len() != 2 {
		t.Errorf("sink after the panicking one got %d events, want 2", rec.len())
	}
	if d.Panics() != 2 || d.Delivered() != 2 {
		t.Errorf("Panics = %d Delivered = %d, want 2 and 2", d.Panics(), d.Delivered())
	}
}

func TestWebhookSink(t *testing.T) {
	got := make(chan *protocol.Message, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		msg, err := protocol.ParseMessage(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got <- msg
	}))
	defer srv.Close()

	wh := NewWebhookSink(srv.URL, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wh.Run(ctx)

	s := Filter(wh, WebhookKinds...)
	s.Publish(correlation.CycleComplete{})
	s.Publish(correlation.AnalysisError{Err: errors.New("boom"), Message: "boom", Timestamp: 9})

	select {
	case msg := <-got:
		if msg.Type != protocol.MessageType(correlation.KindAnalysisError) {
			t.Errorf("type = %s", msg.Type)
		}
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Message != "boom" {
			t.Errorf("payload = %s (%v)", msg.Data, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook did not receive the analysis error")
	}
	select {
	case msg := <-got:
		t.Errorf("unselected event was posted: %s", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebhookSink_SlowEndpointDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	wh := NewWebhookSink(srv.URL, 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wh.Run(ctx)

	rec := &recorder{}
	d := NewDispatcher(8, wh, rec)
	go d.Run(ctx)

	start := time.Now()
	for i := 0; i < webhookQueueSize+10; i++ {
		wh.Publish(correlation.HistoryCleared{Timestamp: int64(i)})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Publish blocked for %v", elapsed)
	}
	if wh.Dropped() == 0 {
		t.Error("expected drops once the webhook queue filled")
	}

	d.Publish(correlation.AnalysisStopped{Timestamp: 1})
	deadline := time.Now().Add(time.Second)
	for rec.len() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.len() != 1 {
		t.Error("other sinks were held up by the stalled webhook")
	}
}

func TestLogSink(t *testing.T) {
	s := LogSink{Logger: log.Nop()}
	s.Publish(correlation.CorrelationDetected{Result: correlation.Result{ID: "a"}})
	s.Publish(correlation.AnalysisError{Message: "x"})
	s.Publish(correlation.HistoryCleared{})
}
