// Package mqttsource subscribes to sensor readings published over MQTT and
// feeds them into the correlation engine.
//
// Readings are published under <prefix>/<source>[/<node>], where source is
// motion, emf, audio or environmental. The payload may be a full protocol
// envelope or a bare reading object.
package mqttsource

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-correlate/internal/log"
	"github.com/teslashibe/go-correlate/pkg/protocol"
	"github.com/teslashibe/go-correlate/pkg/sensor"
)

// Ingestor accepts decoded readings.
type Ingestor interface {
	Add(sensor.Reading) error
}

// Config holds MQTT connection settings.
type Config struct {
	Broker          string        `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID        string        `yaml:"client_id"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	TopicPrefix     string        `yaml:"topic_prefix"`
	QoS             byte          `yaml:"qos"`
	InsecureSkipTLS bool          `yaml:"insecure_skip_tls"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns defaults for everything but the broker address.
func DefaultConfig() Config {
	return Config{
		ClientID:       "correlated",
		TopicPrefix:    "correlate/sensors",
		ConnectTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt broker is required")
	}
	if c.TopicPrefix == "" {
		return errors.New("mqtt topic prefix is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

// Topic returns the subscription filter.
func (c Config) Topic() string {
	return strings.TrimSuffix(c.TopicPrefix, "/") + "/#"
}

// Stats counts processed messages.
type Stats struct {
	Received   uint64 `json:"received"`
	Dispatched uint64 `json:"dispatched"`
	Errors     uint64 `json:"errors"`
}

// Source is an MQTT subscriber.
type Source struct {
	cfg    Config
	sink   Ingestor
	client mqtt.Client
	logger *slog.Logger
	now    func() time.Time

	received   atomic.Uint64
	dispatched atomic.Uint64
	errors     atomic.Uint64
}

// New creates a subscriber. Call Start to connect.
func New(cfg Config, sink Ingestor) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Source{
		cfg:    cfg,
		sink:   sink,
		logger: log.With("component", "mqtt", "broker", cfg.Broker),
		now:    time.Now,
	}, nil
}

// Start connects to the broker. The subscription is (re)established on
// every connect, so it survives automatic reconnects.
func (s *Source) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%d", s.cfg.ClientID, time.Now().Unix()))
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	if strings.HasPrefix(s.cfg.Broker, "tls://") || strings.HasPrefix(s.cfg.Broker, "ssl://") {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: s.cfg.InsecureSkipTLS})
	}

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = s.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.logger.Warn("connection lost, will auto-reconnect", "error", err)
	}
	opts.OnReconnecting = func(mqtt.Client, *mqtt.ClientOptions) {
		s.logger.Info("reconnecting")
	}

	s.client = mqtt.NewClient(opts)
	s.logger.Info("connecting", "topic", s.cfg.Topic())

	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return errors.New("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Source) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(1000)
	}
	st := s.Stats()
	s.logger.Info("mqtt source stopped", "received", st.Received, "dispatched", st.Dispatched, "errors", st.Errors)
}

// IsConnected reports whether the client is connected.
func (s *Source) IsConnected() bool {
	return s.client != nil && s.client.IsConnected()
}

func (s *Source) onConnect(client mqtt.Client) {
	topic := s.cfg.Topic()
	token := client.Subscribe(topic, s.cfg.QoS, s.HandleMessage)
	if !token.WaitTimeout(5 * time.Second) {
		s.logger.Warn("subscribe timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error("subscribe failed", "topic", topic, "error", err)
		return
	}
	s.logger.Info("subscribed", "topic", topic)
}

// HandleMessage decodes one MQTT message and forwards the reading.
func (s *Source) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	s.received.Add(1)

	r, err := s.Decode(msg.Topic(), msg.Payload())
	if err != nil {
		s.errors.Add(1)
		s.logger.Debug("dropping message", "topic", msg.Topic(), "error", err)
		return
	}
	if err := s.sink.Add(r); err != nil {
		s.errors.Add(1)
		s.logger.Warn("reading rejected", "topic", msg.Topic(), "error", err)
		return
	}
	s.dispatched.Add(1)
}

// Decode turns a topic and payload into a reading. A bare payload takes
// its type from the topic; an envelope must agree with the topic. A reading
// with no timestamp anywhere is stamped with the time of receipt.
func (s *Source) Decode(topic string, payload []byte) (sensor.Reading, error) {
	src, err := s.sourceFromTopic(topic)
	if err != nil {
		return nil, err
	}

	msg, err := protocol.ParseMessage(payload)
	if err != nil || msg.Data == nil {
		msg = &protocol.Message{Type: protocol.MessageType(src), Data: payload}
	}
	if msg.Type != protocol.MessageType(src) {
		return nil, fmt.Errorf("envelope type %q does not match topic %q", msg.Type, topic)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = s.now().UnixMilli()
	}
	return msg.Reading()
}

func (s *Source) sourceFromTopic(topic string) (sensor.Source, error) {
	prefix := strings.TrimSuffix(s.cfg.TopicPrefix, "/") + "/"
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return "", fmt.Errorf("topic %q outside prefix %q", topic, s.cfg.TopicPrefix)
	}
	name, _, _ := strings.Cut(rest, "/")
	return sensor.ParseSource(name)
}

// Stats returns message counters.
func (s *Source) Stats() Stats {
	return Stats{
		Received:   s.received.Load(),
		Dispatched: s.dispatched.Load(),
		Errors:     s.errors.Load(),
	}
}
