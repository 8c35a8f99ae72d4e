package protocol

import (
	"time"

	"github.com/teslashibe/go-correlate/pkg/correlation"
	"github.com/teslashibe/go-correlate/pkg/sensor"
)

// NewReadingMessage wraps a reading, typed by its source.
func NewReadingMessage(r sensor.Reading) (*Message, error) {
	msg, err := NewMessage(MessageType(r.Source()), r)
	if err != nil {
		return nil, err
	}
	if ts := r.UnixMilli(); ts != 0 {
		msg.Timestamp = ts
	}
	return msg, nil
}

// NewEventMessage wraps an engine event. The message type is the event kind.
func NewEventMessage(ev correlation.Event) (*Message, error) {
	return NewMessage(MessageType(ev.Kind()), ev)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response to a ping
func NewPongMessage(ping *PingData) (*Message, error) {
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, PongData{
		ID:        ping.ID,
		PingTS:    ping.Timestamp,
		PongTS:    now,
		LatencyMs: now - ping.Timestamp,
	})
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
