// Package mqtt publishes pedal and system events to an MQTT broker and
// receives virtual pedal and relay commands from it.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sweeney/pedal-decoder/internal/pedals"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "loom/pedals"

// Topics holds the topic names derived from a prefix.
type Topics struct {
	Events  string // pedal events, published
	System  string // lifecycle events, published
	Virtual string // emulator messages, subscribed
	Relay   string // relay toggle commands, subscribed
}

// NewTopics derives the topic set for prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Events:  prefix + "/events",
		System:  prefix + "/system",
		Virtual: prefix + "/virtual",
		Relay:   prefix + "/relay/toggle",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pedal event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event pedals.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// Subscriber delivers messages on a topic to a handler.
type Subscriber interface {
	Subscribe(topic string, handler func(payload []byte)) error
}

// ConnectionStatus reports whether the MQTT connection is active and how
// much is queued behind it.
type ConnectionStatus interface {
	IsConnected() bool
	Buffered() (waiting, dropped int)
}

// SystemEvent represents a system lifecycle event (startup, heartbeat, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // "STARTUP", "HEARTBEAT", "SHUTDOWN", "OFFLINE"
	Reason     string // signal name, shutdown only
	RawPayload []byte // pre-formatted payload; returned as-is by FormatSystemPayload
	Retained   bool
}

// Payload is the JSON envelope for a pedal event.
type Payload struct {
	Pedals PedalPayload `json:"pedals"`
}

// PedalPayload contains the pedal event details. Index and State are only
// present on PEDAL_CHANGED.
type PedalPayload struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Count     int    `json:"count"`
	Index     *int   `json:"index,omitempty"`
	State     *bool  `json:"state,omitempty"`
	States    []bool `json:"states"`
	Pattern   string `json:"pattern"`
}

// FormatPayload creates the JSON payload for a pedal event. The id is a
// ULID carrying the event time so consumers can de-duplicate replays.
func FormatPayload(event pedals.Event) ([]byte, error) {
	ts := event.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	id, err := ulid.New(ulid.Timestamp(ts), ulid.DefaultEntropy())
	if err != nil {
		return nil, fmt.Errorf("event id: %w", err)
	}

	states := event.States
	if states == nil {
		states = []bool{}
	}
	p := PedalPayload{
		ID:        id.String(),
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Event:     string(event.Kind),
		Count:     event.Count,
		States:    states,
		Pattern:   pedals.FormatStates(states),
	}
	if event.Kind == pedals.PedalChanged {
		idx, state := event.Index, event.State
		p.Index = &idx
		p.State = &state
	}
	return json.Marshal(Payload{Pedals: p})
}

// SystemPayload is used for simple events (LWT) that don't carry a full
// status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
