// sensorsim: streams synthetic sensor readings to a correlated daemon over
// the sensor WebSocket gateway.
//
// Scenarios:
//
//	synchronous  motion and EMF spike together
//	lagged       EMF spikes, audio follows after -lag
//	noise        independent random streams on all four sources
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-correlate/internal/log"
	"github.com/teslashibe/go-correlate/pkg/protocol"
	"github.com/teslashibe/go-correlate/pkg/sensor"
)

var (
	server   = flag.String("server", "ws://localhost:8090", "correlated base URL")
	scenario = flag.String("scenario", "synchronous", "synchronous, lagged or noise")
	rate     = flag.Duration("rate", time.Second, "Interval between samples")
	lag      = flag.Int("lag", 3, "Lag in samples for the lagged scenario")
	duration = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	seed     = flag.Int64("seed", 1, "Random seed")
	nodeID   = flag.String("node", "", "Node ID (default: random)")
)

// generator produces the readings for sample i at time ts.
type generator func(i int, ts int64) []sensor.Reading

func main() {
	flag.Parse()
	log.Init(os.Getenv("LOG_LEVEL"))

	gen, err := newGenerator(*scenario, *lag, rand.New(rand.NewSource(*seed)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *nodeID == "" {
		*nodeID = "sim-" + uuid.NewString()[:8]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := stream(ctx, *server+"/ws/sensor/"+*nodeID, gen); err != nil {
		log.Error("stream failed", "error", err)
		os.Exit(1)
	}
}

func stream(ctx context.Context, url string, gen generator) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer ws.Close()
	log.Info("connected", "url", url, "scenario", *scenario, "rate", *rate)

	// Drain server pings and replies.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(*rate)
	defer ticker.Stop()

	sent := 0
	for i := 0; ; i++ {
		ts := time.Now().UnixMilli()
		for _, r := range gen(i, ts) {
			msg, err := protocol.NewReadingMessage(r)
			if err != nil {
				return err
			}
			data, err := msg.Bytes()
			if err != nil {
				return err
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			sent++
		}
		if i > 0 && i%10 == 0 {
			log.Debug("progress", "samples", i, "readings", sent)
		}

		select {
		case <-ctx.Done():
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			log.Info("done", "readings", sent)
			return nil
		case <-ticker.C:
		}
	}
}

func newGenerator(name string, lag int, rng *rand.Rand) (generator, error) {
	switch name {
	case "synchronous":
		return synchronous(rng), nil
	case "lagged":
		if lag < 1 {
			return nil, fmt.Errorf("lag must be at least 1, got %d", lag)
		}
		return lagged(lag, rng), nil
	case "noise":
		return noise(rng), nil
	}
	return nil, fmt.Errorf("unknown scenario %q", name)
}

func motion(ts int64, confidence float64, at sensor.Point) sensor.MotionReading {
	return sensor.MotionReading{
		Timestamp:  ts,
		Regions:    []sensor.MotionRegion{{Area: 1, Centroid: at}},
		Confidence: confidence,
	}
}

// synchronous emits activity bursts seen by motion and EMF at the same
// instant and place.
func synchronous(rng *rand.Rand) generator {
	spot := sensor.Point{X: 2, Y: 3}
	return func(i int, ts int64) []sensor.Reading {
		activity := 0.05 + 0.05*rng.Float64()
		if rng.Float64() < 0.3 {
			activity = 0.8 + 0.2*rng.Float64()
		}
		return []sensor.Reading{
			motion(ts, activity, spot),
			sensor.EMFReading{Timestamp: ts, FieldStrength: 5 * activity, Location: &spot},
		}
	}
}

// lagged emits EMF spikes that audio repeats lag samples later.
func lagged(lag int, rng *rand.Rand) generator {
	spikes := make([]bool, lag)
	return func(i int, ts int64) []sensor.Reading {
		spike := rng.Float64() < 0.2
		delayed := spikes[0]
		copy(spikes, spikes[1:])
		spikes[lag-1] = spike

		field, amp := 0.5+0.1*rng.Float64(), 0.1+0.05*rng.Float64()
		if spike {
			field = 5
		}
		if delayed {
			amp = 1
		}
		return []sensor.Reading{
			sensor.EMFReading{Timestamp: ts, FieldStrength: field},
			sensor.AudioReading{Timestamp: ts, Amplitude: amp, Spectrum: []float64{amp, amp / 2, amp / 4}, BinHz: 50},
		}
	}
}

// noise emits unrelated random values on every source.
func noise(rng *rand.Rand) generator {
	return func(i int, ts int64) []sensor.Reading {
		return []sensor.Reading{
			motion(ts, rng.Float64(), sensor.Point{X: 10 * rng.Float64(), Y: 10 * rng.Float64()}),
			sensor.EMFReading{Timestamp: ts, FieldStrength: 10 * rng.Float64()},
			sensor.AudioReading{Timestamp: ts, Amplitude: rng.Float64()},
			sensor.EnvironmentalReading{Timestamp: ts, Kind: sensor.Temperature, Value: 20 + 2*rng.Float64()},
		}
	}
}
