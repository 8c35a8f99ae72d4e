// Package protocol defines the JSON envelope exchanged with sensor nodes,
// MQTT publishers and event subscribers.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-correlate/pkg/sensor"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Sensor → engine messages
	TypeMotion        MessageType = "motion"
	TypeEMF           MessageType = "emf"
	TypeAudio         MessageType = "audio"
	TypeEnvironmental MessageType = "environmental"

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Engine → subscriber messages use the event kind as their type, e.g.
// "correlation-detected" or "cycle-complete".

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// IsReading reports whether the message carries a sensor reading.
func (m *Message) IsReading() bool {
	_, err := sensor.ParseSource(string(m.Type))
	return err == nil
}

// Reading decodes the payload of a reading message. A reading without its
// own timestamp inherits the envelope timestamp.
func (m *Message) Reading() (sensor.Reading, error) {
	if m.Data == nil {
		return nil, fmt.Errorf("%s message has no data", m.Type)
	}
	switch m.Type {
	case TypeMotion:
		var r sensor.MotionReading
		if err := m.ParseData(&r); err != nil {
			return nil, fmt.Errorf("decode motion reading: %w", err)
		}
		if r.Timestamp == 0 {
			r.Timestamp = m.Timestamp
		}
		return r, nil
	case TypeEMF:
		var r sensor.EMFReading
		if err := m.ParseData(&r); err != nil {
			return nil, fmt.Errorf("decode emf reading: %w", err)
		}
		if r.Timestamp == 0 {
			r.Timestamp = m.Timestamp
		}
		return r, nil
	case TypeAudio:
		var r sensor.AudioReading
		if err := m.ParseData(&r); err != nil {
			return nil, fmt.Errorf("decode audio reading: %w", err)
		}
		if r.Timestamp == 0 {
			r.Timestamp = m.Timestamp
		}
		return r, nil
	case TypeEnvironmental:
		var r sensor.EnvironmentalReading
		if err := m.ParseData(&r); err != nil {
			return nil, fmt.Errorf("decode environmental reading: %w", err)
		}
		if r.Timestamp == 0 {
			r.Timestamp = m.Timestamp
		}
		return r, nil
	}
	return nil, fmt.Errorf("message type %q is not a reading", m.Type)
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
