package mqtt

import (
	"fmt"
	"sync"

	"github.com/sweeney/pedal-decoder/internal/pedals"
)

// FakePublisher records published events for test assertions. It is safe
// for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	events         []pedals.Event
	payloads       [][]byte
	systemEvents   []SystemEvent
	systemPayloads [][]byte
	handlers       map[string]func([]byte)

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	closed    bool
	connected bool
	waiting   int
	dropped   int
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{handlers: make(map[string]func([]byte))}
}

// Publish records the pedal event.
func (f *FakePublisher) Publish(event pedals.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// Subscribe records handler so Deliver can reach it.
func (f *FakePublisher) Subscribe(topic string, handler func(payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

// Deliver hands payload to the handler subscribed to topic, as if the broker
// had sent it.
func (f *FakePublisher) Deliver(topic string, payload []byte) error {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("no subscription for %s", topic)
	}
	h(payload)
	return nil
}

// Events returns a copy of the recorded pedal events.
func (f *FakePublisher) Events() []pedals.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pedals.Event(nil), f.events...)
}

// Payloads returns a copy of the recorded pedal payloads.
func (f *FakePublisher) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

// SystemEvents returns a copy of the recorded system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns a copy of the recorded system payloads.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// SetConnected controls the return value of IsConnected.
func (f *FakePublisher) SetConnected(c bool) {
	f.mu.Lock()
	f.connected = c
	f.mu.Unlock()
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SetBuffered controls the return values of Buffered.
func (f *FakePublisher) SetBuffered(waiting, dropped int) {
	f.mu.Lock()
	f.waiting, f.dropped = waiting, dropped
	f.mu.Unlock()
}

// Buffered returns the values last given to SetBuffered.
func (f *FakePublisher) Buffered() (waiting, dropped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting, f.dropped
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
	f.payloads = nil
	f.systemEvents = nil
	f.systemPayloads = nil
	f.closed = false
	f.connected = false
	f.waiting, f.dropped = 0, 0
	f.PublishError = nil
	f.PublishSystemError = nil
}
