// Package status provides a thread-safe view of the decoder daemon's state
// for the HTTP status page and MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/pedal-decoder/internal/pedals"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	QuarterPeriodMs int64
	HeartbeatMs     int64
	Broker          string
	TopicPrefix     string
	HTTPAddr        string
	Backend         string
	BitOrder        string
}

// EventCounts counts what the daemon has published since startup.
type EventCounts struct {
	CountChanged int
	PedalChanged int
	RelayToggles int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	PedalCount    int
	PedalStates   []bool
	PhysicalCount int
	VirtualCount  int
	Relay         bool
	Counts        EventCounts
	LastEvent     time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTBuffered  int // messages waiting for the broker
	MQTTDropped   int // messages lost to a full buffer
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Pattern returns the pedal states as a 't'/'f' string.
func (s Snapshot) Pattern() string {
	return pedals.FormatStates(s.PedalStates)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordEvent applies a published pedal event.
func (t *Tracker) RecordEvent(ev pedals.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Kind {
	case pedals.CountChanged:
		t.snap.Counts.CountChanged++
	case pedals.PedalChanged:
		t.snap.Counts.PedalChanged++
	}
	t.snap.PedalCount = ev.Count
	t.snap.PedalStates = append([]bool(nil), ev.States...)
	t.snap.PhysicalCount = ev.Physical
	t.snap.VirtualCount = ev.Virtual
	t.snap.LastEvent = ev.Time
}

// RecordRelay records a relay toggle and the new line level.
func (t *Tracker) RecordRelay(level bool) {
	t.mu.Lock()
	t.snap.Relay = level
	t.snap.Counts.RelayToggles++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetMQTTBuffer sets the outbound buffer counts.
func (t *Tracker) SetMQTTBuffer(waiting, dropped int) {
	t.mu.Lock()
	t.snap.MQTTBuffered = waiting
	t.snap.MQTTDropped = dropped
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.PedalStates = append([]bool(nil), t.snap.PedalStates...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
