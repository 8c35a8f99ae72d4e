// Package hub fans pre-encoded messages out to websocket subscribers over
// channels. Subscribers may narrow what they receive to a set of topics.
package hub

// Message is a pre-encoded text frame. An empty Topic reaches every client.
type Message struct {
	Topic string
	Data  []byte
}

// NewJSONMessage creates an untopiced message from pre-encoded JSON
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// NewTopicMessage creates a message delivered only to clients subscribed
// to topic, or to clients with no filter.
func NewTopicMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Data: data}
}

// Subscribe is the control frame a client sends to replace its topic
// filter. An empty list subscribes to everything.
type Subscribe struct {
	Topics []string `json:"subscribe"`
}
