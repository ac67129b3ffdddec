package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/pedal-decoder/internal/driver"
	"github.com/sweeney/pedal-decoder/internal/pedals"
	"github.com/sweeney/pedal-decoder/internal/status"
)

func newTestServer(t *testing.T, toggle func() error) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		QuarterPeriodMs: 20,
		HeartbeatMs:     900000,
		Broker:          "tcp://192.168.1.200:1883",
		TopicPrefix:     "loom/pedals",
		HTTPAddr:        ":8080",
		Backend:         "mock",
		BitOrder:        "lsb-first",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, toggle)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.RecordEvent(pedals.Event{Kind: pedals.CountChanged, Count: 3, States: pedals.ParseStates("tft"), Physical: 3})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Pedals.Count != 3 || sj.Status.Pedals.Pattern != "tft" {
		t.Errorf("Pedals: got %+v", sj.Status.Pedals)
	}
	if sj.Status.Relay != "LOW" {
		t.Errorf("Relay: got %q, want LOW", sj.Status.Relay)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.CountChanged != 1 {
		t.Errorf("Counts.CountChanged: got %d, want 1", sj.Status.Counts.CountChanged)
	}
	if sj.Status.Config.QuarterPeriodMs != 20 || sj.Status.Config.TopicPrefix != "loom/pedals" {
		t.Errorf("Config: got %+v", sj.Status.Config)
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "ethernet",
		IP:     "192.168.1.42",
		Status: "connected",
	})

	sj := getJSON(t, ts.URL+"/index.json")
	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.RecordEvent(pedals.Event{Kind: pedals.CountChanged, Count: 3, States: pedals.ParseStates("tft"), Physical: 2, Virtual: 1})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	for _, want := range []string{"tft", "Pedal 2 (virtual)", "2 physical, 1 virtual", "lsb-first"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(page, "Pedal 1 (virtual)") {
		t.Error("pedal 1 is physical")
	}
	if strings.Contains(page, "Toggle relay") {
		t.Error("toggle form should be hidden without a toggle func")
	}
}

func TestHTMLShowsMQTTBuffer(t *testing.T) {
	ts, tr := newTestServer(t, nil)

	body := func() string {
		resp, err := http.Get(ts.URL + "/")
		if err != nil {
			t.Fatalf("GET /: %v", err)
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return string(b)
	}

	if strings.Contains(body(), "mqtt-buffered") {
		t.Error("buffer row should be hidden while nothing is buffered")
	}
	tr.SetMQTTBuffer(7, 2)
	if !strings.Contains(body(), "7 waiting, 2 dropped") {
		t.Error("page should show buffered and dropped counts")
	}
	if sj := getJSON(t, ts.URL+"/index.json"); sj.Status.MQTT.Buffered != 7 || sj.Status.MQTT.Dropped != 2 {
		t.Errorf("JSON mqtt: got %+v", sj.Status.MQTT)
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, nil)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.Pedals.Count != 0 {
		t.Errorf("expected no pedals initially, got %d", sj1.Status.Pedals.Count)
	}

	tr.RecordEvent(pedals.Event{Kind: pedals.CountChanged, Count: 2, States: pedals.ParseStates("ff"), Physical: 2})
	tr.RecordEvent(pedals.Event{Kind: pedals.PedalChanged, Count: 2, Index: 0, State: true, States: pedals.ParseStates("tf"), Physical: 2})
	tr.RecordRelay(true)

	sj2 := getJSON(t, ts.URL+"/index.json")
	if sj2.Status.Pedals.Pattern != "tf" {
		t.Errorf("Pattern: got %q, want tf", sj2.Status.Pedals.Pattern)
	}
	if sj2.Status.Relay != "HIGH" {
		t.Errorf("Relay: got %q, want HIGH", sj2.Status.Relay)
	}
	if sj2.Status.Counts.PedalChanged != 1 || sj2.Status.Counts.RelayToggles != 1 {
		t.Errorf("Counts: got %+v", sj2.Status.Counts)
	}
}

func TestRelayToggle(t *testing.T) {
	var tr *status.Tracker
	calls := 0
	ts, tr := newTestServer(t, func() error {
		calls++
		tr.RecordRelay(calls%2 == 1)
		return nil
	})

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/relay/toggle", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /relay/toggle: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if calls != 1 || sj.Status.Relay != "HIGH" {
		t.Errorf("calls %d relay %q", calls, sj.Status.Relay)
	}
}

func TestRelayToggleFormRedirects(t *testing.T) {
	ts, _ := newTestServer(t, func() error { return nil })

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Post(ts.URL+"/relay/toggle", "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatalf("POST /relay/toggle: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status: got %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Errorf("Location: got %q, want /", loc)
	}
}

func TestRelayToggleErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"throttled", driver.ErrRelayThrottled, http.StatusTooManyRequests},
		{"write failure", errors.New("driver: toggle relay: line busy"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, func() error { return tt.err })
			resp, err := http.Post(ts.URL+"/relay/toggle", "text/plain", nil)
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRelayToggleMethodAndDisabled(t *testing.T) {
	ts, _ := newTestServer(t, func() error { return nil })
	resp, err := http.Get(ts.URL + "/relay/toggle")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status: got %d, want 405", resp.StatusCode)
	}

	ts2, _ := newTestServer(t, nil)
	resp, err = http.Post(ts2.URL+"/relay/toggle", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("disabled status: got %d, want 404", resp.StatusCode)
	}
}
