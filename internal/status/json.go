package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Pedals        PedalsJSON   `json:"pedals"`
	Relay         string       `json:"relay"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	LastEvent     string       `json:"last_event,omitempty"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// PedalsJSON is the JSON representation of the pedal bank.
type PedalsJSON struct {
	Count    int    `json:"count"`
	Physical int    `json:"physical"`
	Virtual  int    `json:"virtual"`
	States   []bool `json:"states"`
	Pattern  string `json:"pattern"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
	Dropped   int    `json:"dropped"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	CountChanged int `json:"count_changed"`
	PedalChanged int `json:"pedal_changed"`
	RelayToggles int `json:"relay_toggles"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	QuarterPeriodMs int64  `json:"quarter_period_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	Broker          string `json:"broker"`
	TopicPrefix     string `json:"topic_prefix"`
	HTTPAddr        string `json:"http_addr"`
	Backend         string `json:"backend"`
	BitOrder        string `json:"bit_order"`
}

// RelayString renders a relay level the way the status outputs show it.
func RelayString(level bool) string {
	if level {
		return "HIGH"
	}
	return "LOW"
}

func buildInner(snap Snapshot) StatusInner {
	states := snap.PedalStates
	if states == nil {
		states = []bool{}
	}

	inner := StatusInner{
		Pedals: PedalsJSON{
			Count:    snap.PedalCount,
			Physical: snap.PhysicalCount,
			Virtual:  snap.VirtualCount,
			States:   states,
			Pattern:  snap.Pattern(),
		},
		Relay:         RelayString(snap.Relay),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Buffered:  snap.MQTTBuffered,
			Dropped:   snap.MQTTDropped,
		},
		Counts: CountsJSON{
			CountChanged: snap.Counts.CountChanged,
			PedalChanged: snap.Counts.PedalChanged,
			RelayToggles: snap.Counts.RelayToggles,
		},
		Config: ConfigJSON{
			QuarterPeriodMs: snap.Config.QuarterPeriodMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			Broker:          snap.Config.Broker,
			TopicPrefix:     snap.Config.TopicPrefix,
			HTTPAddr:        snap.Config.HTTPAddr,
			Backend:         snap.Config.Backend,
			BitOrder:        snap.Config.BitOrder,
		},
	}
	if !snap.LastEvent.IsZero() {
		inner.LastEvent = snap.LastEvent.UTC().Format(time.RFC3339)
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
