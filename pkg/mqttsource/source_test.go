package mqttsource

import (
	"testing"
	"time"

	"github.com/teslashibe/go-correlate/pkg/protocol"
	"github.com/teslashibe/go-correlate/pkg/sensor"
)

// fakeMessage implements mqtt.Message
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type sliceIngestor struct {
	readings []sensor.Reading
}

func (s *sliceIngestor) Add(r sensor.Reading) error {
	s.readings = append(s.readings, r)
	return nil
}

func newTestSource(t *testing.T) (*Source, *sliceIngestor) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Broker = "tcp://localhost:1883"
	sink := &sliceIngestor{}
	s, err := New(cfg, sink)
	if err != nil {
		t.Fatal(err)
	}
	return s, sink
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err == nil {
		t.Error("expected error without broker")
	}
	cfg := DefaultConfig()
	cfg.Broker = "tcp://b:1883"
	cfg.QoS = 3
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for qos 3")
	}
	if got := DefaultConfig().Topic(); got != "correlate/sensors/#" {
		t.Errorf("Topic = %q", got)
	}
}

func TestHandleMessage_BarePayload(t *testing.T) {
	s, sink := newTestSource(t)

	s.HandleMessage(nil, &fakeMessage{
		topic:   "correlate/sensors/emf/node-7",
		payload: []byte(`{"timestamp": 1000, "field_strength": 2.5, "location": {"x": 1, "y": 2}}`),
	})

	if len(sink.readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(sink.readings))
	}
	r, ok := sink.readings[0].(sensor.EMFReading)
	if !ok {
		t.Fatalf("reading type %T", sink.readings[0])
	}
	if r.FieldStrength != 2.5 || r.Location == nil || r.Location.Y != 2 {
		t.Errorf("reading = %+v", r)
	}
	if st := s.Stats(); st.Received != 1 || st.Dispatched != 1 || st.Errors != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestHandleMessage_Envelope(t *testing.T) {
	s, sink := newTestSource(t)
	msg, _ := protocol.NewReadingMessage(sensor.EnvironmentalReading{Timestamp: 5, Kind: sensor.Humidity, Value: 55})
	data, _ := msg.Bytes()

	s.HandleMessage(nil, &fakeMessage{topic: "correlate/sensors/environmental", payload: data})

	if len(sink.readings) != 1 || sink.readings[0].Scalar() != 55 {
		t.Fatalf("readings = %+v", sink.readings)
	}
}

func TestHandleMessage_Rejects(t *testing.T) {
	s, sink := newTestSource(t)
	envelope, _ := protocol.NewReadingMessage(sensor.AudioReading{Timestamp: 1, Amplitude: 1})
	mismatched, _ := envelope.Bytes()

	cases := []*fakeMessage{
		{topic: "other/emf", payload: []byte(`{"field_strength":1}`)},
		{topic: "correlate/sensors/lidar", payload: []byte(`{}`)},
		{topic: "correlate/sensors/motion", payload: []byte(`not json`)},
		{topic: "correlate/sensors/emf", payload: mismatched},
	}
	for _, m := range cases {
		s.HandleMessage(nil, m)
	}

	if len(sink.readings) != 0 {
		t.Errorf("unexpected readings: %+v", sink.readings)
	}
	if st := s.Stats(); st.Errors != uint64(len(cases)) {
		t.Errorf("Errors = %d, want %d", st.Errors, len(cases))
	}
}

func TestDecode_StampsMissingTimestamp(t *testing.T) {
	s, sink := newTestSource(t)
	received := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return received }

	s.HandleMessage(nil, &fakeMessage{
		topic:   "correlate/sensors/emf",
		payload: []byte(`{"field_strength": 2}`),
	})
	envelope := []byte(`{"type":"audio","data":{"amplitude":0.5}}`)
	s.HandleMessage(nil, &fakeMessage{topic: "correlate/sensors/audio", payload: envelope})

	if len(sink.readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(sink.readings))
	}
	for _, r := range sink.readings {
		if r.UnixMilli() != received.UnixMilli() {
			t.Errorf("%s timestamp = %d, want receipt time %d", r.Source(), r.UnixMilli(), received.UnixMilli())
		}
	}

	// an explicit timestamp is kept
	r, err := s.Decode("correlate/sensors/emf", []byte(`{"timestamp": 42, "field_strength": 1}`))
	if err != nil || r.UnixMilli() != 42 {
		t.Errorf("Decode = %v, %v; want timestamp 42", r, err)
	}
}
