package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-correlate/pkg/protocol"
	"github.com/teslashibe/go-correlate/pkg/sensor"
)

type fakeIngestor struct {
	mu       sync.Mutex
	readings []sensor.Reading
	err      error
}

func (f *fakeIngestor) Add(r sensor.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.readings = append(f.readings, r)
	return nil
}

func (f *fakeIngestor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings)
}

func TestNew(t *testing.T) {
	g := New(&fakeIngestor{})
	if g.NodeCount() != 0 {
		t.Error("NodeCount should be 0 initially")
	}
	if g.GetNode("missing") != nil {
		t.Error("GetNode should return nil for unknown node")
	}
	if stats := g.GetStats(); stats.MessagesReceived != 0 || stats.ReadingsDispatched != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHandleMessage_Reading(t *testing.T) {
	sink := &fakeIngestor{}
	g := New(sink)

	msg, _ := protocol.NewReadingMessage(sensor.EMFReading{Timestamp: 42, FieldStrength: 3})
	data, _ := msg.Bytes()
	if reply := g.HandleMessage("node-1", data); reply != nil {
		t.Errorf("unexpected reply %s", reply.Type)
	}

	if sink.count() != 1 {
		t.Fatalf("ingested %d readings, want 1", sink.count())
	}
	got := sink.readings[0].(sensor.EMFReading)
	if got.Timestamp != 42 || got.FieldStrength != 3 {
		t.Errorf("reading = %+v", got)
	}
	if g.GetStats().ReadingsDispatched != 1 {
		t.Error("ReadingsDispatched should be 1")
	}
}

func TestHandleMessage_StampsMissingTimestamp(t *testing.T) {
	sink := &fakeIngestor{}
	g := New(sink)

	before := time.Now().UnixMilli()
	g.HandleMessage("node-1", []byte(`{"type":"emf","data":{"field_strength":3}}`))
	after := time.Now().UnixMilli()

	if sink.count() != 1 {
		t.Fatalf("ingested %d readings, want 1", sink.count())
	}
	ts := sink.readings[0].UnixMilli()
	if ts < before || ts > after {
		t.Errorf("timestamp = %d, want receipt time in [%d, %d]", ts, before, after)
	}
}

func TestHandleMessage_Errors(t *testing.T) {
	sink := &fakeIngestor{}
	g := New(sink)

	for _, raw := range []string{
		`garbage`,
		`{"type":"emf"}`,
		`{"type":"frame","data":{}}`,
	} {
		g.HandleMessage("n", []byte(raw))
	}
	if got := g.GetStats().ParseErrors; got != 3 {
		t.Errorf("ParseErrors = %d, want 3", got)
	}

	sink.err = errors.New("closed")
	msg, _ := protocol.NewReadingMessage(sensor.AudioReading{Timestamp: 1, Amplitude: 1})
	data, _ := msg.Bytes()
	g.HandleMessage("n", data)
	if g.GetStats().ReadingsDispatched != 0 {
		t.Error("rejected reading should not count as dispatched")
	}
}

func TestHandleMessage_Ping(t *testing.T) {
	g := New(&fakeIngestor{})
	ping, _ := protocol.NewPingMessage("p1")
	data, _ := ping.Bytes()

	reply := g.HandleMessage("n", data)
	if reply == nil || reply.Type != protocol.TypePong {
		t.Fatalf("reply = %+v, want pong", reply)
	}
	pong, err := reply.GetPongData()
	if err != nil || pong.ID != "p1" {
		t.Errorf("pong = %+v err=%v", pong, err)
	}
}

func TestAPISensors(t *testing.T) {
	g := New(&fakeIngestor{})
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	g.RegisterAPIRoutes(app.Group("/api"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/sensors", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"stats"`) {
		t.Errorf("body = %s", body)
	}
}

func TestAPISensorByID(t *testing.T) {
	g := New(&fakeIngestor{})
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	g.RegisterRoutes(app)
	g.RegisterAPIRoutes(app.Group("/api"))

	go app.Listen("127.0.0.1:18182")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18182/api/sensors/node-b")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("unknown node: status = %d, want 404", resp.StatusCode)
	}

	ws, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18182/ws/sensor/node-b", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()
	time.Sleep(50 * time.Millisecond)

	resp, err = http.Get("http://127.0.0.1:18182/api/sensors/node-b")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var info NodeInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.ID != "node-b" || info.Connected.IsZero() {
		t.Errorf("info = %+v", info)
	}
}

func TestUpgradeRequired(t *testing.T) {
	g := New(&fakeIngestor{})
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	g.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ws/sensor/x", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Status = %d, want 426", resp.StatusCode)
	}
}

func TestWebSocketNode(t *testing.T) {
	sink := &fakeIngestor{}
	g := New(sink)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	g.RegisterRoutes(app)

	go app.Listen("127.0.0.1:18180")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18180/ws/sensor/node-a", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()
	time.Sleep(50 * time.Millisecond)

	if g.NodeCount() != 1 || g.GetNode("node-a") == nil {
		t.Fatalf("NodeCount = %d, want node-a connected", g.NodeCount())
	}

	for i := 0; i < 3; i++ {
		msg, _ := protocol.NewReadingMessage(sensor.MotionReading{
			Timestamp:  int64(1000 + i),
			Confidence: 0.5,
			Regions:    []sensor.MotionRegion{{Area: 1}},
		})
		data, _ := msg.Bytes()
		ws.WriteMessage(websocket.TextMessage, data)
	}

	ping, _ := protocol.NewPingMessage("hello")
	data, _ := ping.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	ws.SetReadDeadline(time.Now().Add(time.Second))
	_, respData, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	var resp protocol.Message
	json.Unmarshal(respData, &resp)
	if resp.Type != protocol.TypePong {
		t.Errorf("Type = %s, want pong", resp.Type)
	}

	// Frames are handled in order, so the readings precede the pong
	if sink.count() != 3 {
		t.Errorf("ingested %d readings, want 3", sink.count())
	}
	infos := g.GetNodeInfos()
	if len(infos) != 1 || infos[0].Readings != 3 {
		t.Errorf("infos = %+v", infos)
	}

	ws.Close()
	time.Sleep(100 * time.Millisecond)
	if g.NodeCount() != 0 {
		t.Errorf("NodeCount = %d, want 0 after disconnect", g.NodeCount())
	}
}
