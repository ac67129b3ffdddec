package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/pedal-decoder/internal/pedals"
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Topics   Topics

	// BufferSize is how many messages are kept while the broker is
	// unreachable. Zero means 256.
	BufferSize int

	// ConnectTimeout bounds the initial connect. The client keeps retrying
	// in the background after it expires. Zero means 10s.
	ConnectTimeout time.Duration
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topics Topics

	mu   sync.Mutex
	buf  *ringBuffer
	subs map[string]func([]byte)
}

// NewRealPublisher creates a publisher for the given broker. A broker that is
// down at startup is not an error: messages are buffered until it connects.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.BufferSize == 0 {
		o.BufferSize = 256
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.Topics == (Topics{}) {
		o.Topics = NewTopics(DefaultPrefix)
	}

	p := &RealPublisher{
		topics: o.Topics,
		buf:    newRingBuffer(o.BufferSize),
		subs:   make(map[string]func([]byte)),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "connection lost"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(o.Topics.System, string(will), 1, false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		log.Printf("mqtt: broker %s not reachable yet, buffering", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// onConnect runs on every (re)connect: restore subscriptions, then flush
// whatever was published while offline.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	subs := make(map[string]func([]byte), len(p.subs))
	for topic, h := range p.subs {
		subs[topic] = h
	}
	pending := p.buf.drain()
	p.mu.Unlock()

	for topic, h := range subs {
		if err := p.subscribe(c, topic, h); err != nil {
			log.Printf("mqtt: resubscribe %s: %v", topic, err)
		}
	}
	if len(pending) > 0 {
		log.Printf("mqtt: connected, replaying %d buffered messages", len(pending))
	} else {
		log.Printf("mqtt: connected")
	}
	for _, m := range pending {
		token := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(5 * time.Second) {
			log.Printf("mqtt: replay to %s timed out", m.topic)
			continue
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: replay to %s: %v", m.topic, err)
		}
	}
}

// Publish sends a pedal event.
func (p *RealPublisher) Publish(event pedals.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: a missed pedal change leaves consumers with a stale pattern.
	return p.publish(outboundMsg{topic: p.topics.Events, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(outboundMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m outboundMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription is restored on
// every reconnect.
func (p *RealPublisher) Subscribe(topic string, handler func(payload []byte)) error {
	p.mu.Lock()
	p.subs[topic] = handler
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return nil
	}
	return p.subscribe(p.client, topic, handler)
}

func (p *RealPublisher) subscribe(c paho.Client, topic string, handler func([]byte)) error {
	token := c.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		handler(m.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns how many messages are waiting for the broker and how
// many have been dropped because the buffer was full.
func (p *RealPublisher) Buffered() (waiting, dropped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len(), p.buf.dropped
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
