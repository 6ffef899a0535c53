// Package mock provides an in-memory MQTT client for tests: every
// publish is recorded instead of sent, and inbound messages can be
// injected by the test directly.
package mock

import (
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// A Publication is one recorded outbound message.
type Publication struct {
	Topic   string
	Payload string
	Retain  bool
}

type Client struct {
	mu            sync.Mutex
	connected     bool
	published     []Publication
	subscriptions []string
	opts          *mqtt.ClientOptions
}

func NewClient() *Client {
	return &Client{opts: mqtt.NewClientOptions()}
}

// Published returns a copy of every recorded publication in order.
func (c *Client) Published() []Publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Publication, len(c.published))
	copy(out, c.published)
	return out
}

// LastPayload returns the most recent payload published to topic.
func (c *Client) LastPayload(topic string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].Topic == topic {
			return c.published[i].Payload, true
		}
	}
	return "", false
}

// Subscriptions returns every filter subscribed to so far.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.subscriptions))
	copy(out, c.subscriptions)
	return out
}

// Reset discards all recorded publications.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = c.published[:0]
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *Client) Connect() mqtt.Token {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return &mqtt.DummyToken{}
}

func (c *Client) Disconnect(_ uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	var p string
	switch v := payload.(type) {
	case []byte:
		p = string(v)
	case string:
		p = v
	}

	c.mu.Lock()
	c.published = append(c.published, Publication{Topic: topic, Payload: p, Retain: retained})
	c.mu.Unlock()
	return &mqtt.DummyToken{}
}

func (c *Client) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, topic)
	c.mu.Unlock()
	return &mqtt.DummyToken{}
}

func (c *Client) SubscribeMultiple(filters map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	for topic := range filters {
		c.subscriptions = append(c.subscriptions, topic)
	}
	c.mu.Unlock()
	return &mqtt.DummyToken{}
}

func (c *Client) Unsubscribe(_ ...string) mqtt.Token {
	return &mqtt.DummyToken{}
}

func (c *Client) AddRoute(_ string, _ mqtt.MessageHandler) {}

func (c *Client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.NewOptionsReader(c.opts)
}

// Message is an inbound message a test can hand to a subscriber
// callback.
type Message struct {
	MsgTopic   string
	MsgPayload []byte
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 0 }
func (m *Message) Retained() bool    { return false }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Ack()              {}
func (m *Message) Topic() string     { return m.MsgTopic }
func (m *Message) Payload() []byte   { return m.MsgPayload }
