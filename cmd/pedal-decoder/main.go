// Command pedal-decoder reads the loom's foot pedal board through its shift
// register and publishes pedal changes to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/pedal-decoder/internal/config"
	"github.com/sweeney/pedal-decoder/internal/decoder"
	"github.com/sweeney/pedal-decoder/internal/driver"
	"github.com/sweeney/pedal-decoder/internal/gpio"
	"github.com/sweeney/pedal-decoder/internal/mqtt"
	"github.com/sweeney/pedal-decoder/internal/pedals"
	"github.com/sweeney/pedal-decoder/internal/status"
	"github.com/sweeney/pedal-decoder/internal/web"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags builds the configuration: defaults, then the -config file, then
// any flag given explicitly on the command line.
func parseFlags(args []string) (config.Config, error) {
	def := config.Default()
	fs := flag.NewFlagSet("pedal-decoder", flag.ContinueOnError)

	path := fs.String("config", "", "YAML config file (flags override it)")
	mock := fs.Bool("mock", false, "Use the mock pin backend with a simulated pedal board")
	mockPedals := fs.String("mock-pedals", "", `Simulated pedal board for -mock, e.g. "tft"`)
	backend := fs.String("backend", def.Backend, "Pin backend: gpiocdev, periph or mock")
	chip := fs.String("chip", def.Chip, "GPIO chip for the gpiocdev backend")
	pinClock := fs.Int("pin-clock", def.Pins.Clock, "BCM line for the shift register clock")
	pinShift := fs.Int("pin-shift", def.Pins.Shift, "BCM line for shift enable")
	pinSerial := fs.Int("pin-serial", def.Pins.Serial, "BCM line for serial data")
	pinRelay := fs.Int("pin-relay", def.Pins.Relay, "BCM line for the loom relay")
	pinCount := fs.String("pin-count", formatInts(def.Pins.Count), "BCM lines for the pedal count bus, bit 0 first")
	quarter := fs.Duration("quarter-period", def.QuarterPeriod, "Time between clock beats")
	bitOrder := fs.String("bit-order", def.BitOrder, "Serial bit order: lsb-first or msb-first")
	broker := fs.String("broker", def.Broker, "MQTT broker address")
	clientID := fs.String("client-id", def.ClientID, "MQTT client id")
	prefix := fs.String("topic-prefix", def.TopicPrefix, "MQTT topic prefix")
	httpAddr := fs.String("http", def.HTTPAddr, "HTTP status address (empty to disable)")
	heartbeat := fs.Duration("heartbeat", def.Heartbeat, "Heartbeat interval (0 to disable)")
	relayMin := fs.Duration("relay-min-interval", def.RelayMinInterval, "Minimum time between relay toggles (0 to disable)")
	debug := fs.Bool("debug", false, "Log every clock beat")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return config.Config{}, err
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mock":
			cfg.Mock = *mock
		case "mock-pedals":
			cfg.MockPedals = *mockPedals
		case "backend":
			cfg.Backend = *backend
		case "chip":
			cfg.Chip = *chip
		case "pin-clock":
			cfg.Pins.Clock = *pinClock
		case "pin-shift":
			cfg.Pins.Shift = *pinShift
		case "pin-serial":
			cfg.Pins.Serial = *pinSerial
		case "pin-relay":
			cfg.Pins.Relay = *pinRelay
		case "pin-count":
			counts, err := parseInts(*pinCount)
			if err != nil {
				flagErr = fmt.Errorf("-pin-count: %w", err)
				return
			}
			cfg.Pins.Count = counts
		case "quarter-period":
			cfg.QuarterPeriod = *quarter
		case "bit-order":
			cfg.BitOrder = *bitOrder
		case "broker":
			cfg.Broker = *broker
		case "client-id":
			cfg.ClientID = *clientID
		case "topic-prefix":
			cfg.TopicPrefix = *prefix
		case "http":
			cfg.HTTPAddr = *httpAddr
		case "heartbeat":
			cfg.Heartbeat = *heartbeat
		case "relay-min-interval":
			cfg.RelayMinInterval = *relayMin
		case "debug":
			cfg.Debug = *debug
		}
	})
	if flagErr != nil {
		return config.Config{}, flagErr
	}
	return cfg, cfg.Validate()
}

func run(cfg config.Config) error {
	order, err := cfg.Order()
	if err != nil {
		return err
	}

	bank, err := openBank(cfg)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := bank.Close(); err != nil {
			log.Printf("gpio: release lines: %v", err)
		}
	}()

	dec, err := decoder.New(decoder.BankPins(bank), order)
	if err != nil {
		return fmt.Errorf("init decoder: %w", err)
	}
	drv := driver.New(dec, bank.Relay, driver.Options{
		QuarterPeriod:    cfg.QuarterPeriod,
		RelayMinInterval: cfg.RelayMinInterval,
		Debug:            cfg.Debug,
	})
	vbank := pedals.NewVirtualBank()
	agg := pedals.NewAggregator(drv, vbank)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		QuarterPeriodMs: cfg.QuarterPeriod.Milliseconds(),
		HeartbeatMs:     cfg.Heartbeat.Milliseconds(),
		Broker:          cfg.Broker,
		TopicPrefix:     cfg.TopicPrefix,
		HTTPAddr:        cfg.HTTPAddr,
		Backend:         cfg.EffectiveBackend(),
		BitOrder:        order.String(),
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	toggle := func() error {
		level, err := drv.ToggleRelay()
		if err != nil {
			return err
		}
		tracker.RecordRelay(level)
		return nil
	}

	topics := mqtt.NewTopics(cfg.TopicPrefix)
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   cfg.Broker,
		ClientID: cfg.ClientID,
		Topics:   topics,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()
	if err := subscribe(publisher, topics, vbank, toggle); err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}

	refreshMQTT(tracker, publisher)
	publishStartup(publisher, tracker)

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, toggle)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return drv.Run(gctx) })
	g.Go(func() error { return agg.Run(gctx) })

	log.Printf("started: backend=%s quarter=%v order=%s broker=%s heartbeat=%v",
		cfg.EffectiveBackend(), cfg.QuarterPeriod, order, cfg.Broker, cfg.Heartbeat)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loopErr := runLoop(agg, publisher, publisher, tracker, time.Now, heartbeat, sigCh)
	cancel()
	vbank.Close()
	if err := g.Wait(); err != nil {
		return err
	}
	return loopErr
}

// openBank claims the decoder's lines on the configured backend.
func openBank(cfg config.Config) (*gpio.Bank, error) {
	switch cfg.EffectiveBackend() {
	case config.BackendMock:
		chip := gpio.NewMockChip()
		bank, err := chip.Open(cfg.Pins)
		if err != nil {
			return nil, err
		}
		reg := gpio.AttachShiftRegister(chip, cfg.Pins)
		reg.SetPedals(pedals.ParseStates(cfg.MockPedals))
		log.Printf("gpio: mock backend simulating %d pedals", len(cfg.MockPedals))
		return bank, nil
	case config.BackendPeriph:
		return gpio.OpenPeriph(cfg.Pins)
	default:
		return gpio.OpenChip(cfg.Chip, cfg.Pins)
	}
}

// subscribe routes emulator messages to the virtual bank and relay commands
// to toggle.
func subscribe(sub mqtt.Subscriber, topics mqtt.Topics, vbank *pedals.VirtualBank, toggle func() error) error {
	if err := sub.Subscribe(topics.Virtual, vbank.HandleMessage); err != nil {
		return err
	}
	return sub.Subscribe(topics.Relay, func([]byte) {
		if err := toggle(); err != nil {
			log.Printf("relay command: %v", err)
		}
	})
}

func publishStartup(publisher mqtt.Publisher, tracker *status.Tracker) {
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}
}

// refreshMQTT copies the broker connection state into the tracker.
func refreshMQTT(tracker *status.Tracker, mqttStatus mqtt.ConnectionStatus) {
	if mqttStatus == nil {
		return
	}
	tracker.SetMQTTConnected(mqttStatus.IsConnected())
	tracker.SetMQTTBuffer(mqttStatus.Buffered())
}

func runLoop(bank pedals.Source, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	events := bank.Events()
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			refreshMQTT(tracker, mqttStatus)
			event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName)
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case ev, ok := <-events:
			if !ok {
				return errors.New("pedal event stream closed")
			}
			tracker.RecordEvent(ev)
			if ev.Kind == pedals.PedalChanged {
				log.Printf("event: %s pedal=%d state=%t pedals=%s", ev.Kind, ev.Index, ev.State, pedals.FormatStates(ev.States))
			} else {
				log.Printf("event: %s count=%d pedals=%s", ev.Kind, ev.Count, pedals.FormatStates(ev.States))
			}
			if err := publisher.Publish(ev); err != nil {
				// Don't stop the cycle on publish failure
				log.Printf("publish error: %v", err)
			}
			refreshMQTT(tracker, mqttStatus)

		case t := <-heartbeat:
			refreshMQTT(tracker, mqttStatus)
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v pedals=%s count_changed=%d pedal_changed=%d relay_toggles=%d",
				snap.Uptime().Truncate(time.Second), snap.Pattern(), snap.Counts.CountChanged, snap.Counts.PedalChanged, snap.Counts.RelayToggles)
			hbEvent := mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// parseInts parses a comma separated list of line offsets.
func parseInts(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("empty list")
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad line offset %q", p)
		}
		out[i] = n
	}
	return out, nil
}

func formatInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
