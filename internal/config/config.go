// Package config holds the decoder daemon's settings: defaults, an optional
// YAML file and validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/pedal-decoder/internal/decoder"
	"github.com/sweeney/pedal-decoder/internal/driver"
	"github.com/sweeney/pedal-decoder/internal/gpio"
	"github.com/sweeney/pedal-decoder/internal/mqtt"
)

// Pin backends.
const (
	BackendGPIOCDev = "gpiocdev"
	BackendPeriph   = "periph"
	BackendMock     = "mock"
)

// Config is the full daemon configuration.
type Config struct {
	Pins    gpio.Lines `yaml:"pins"`
	Chip    string     `yaml:"chip"`
	Backend string     `yaml:"backend"`

	// Mock selects the mock backend regardless of Backend.
	Mock bool `yaml:"mock"`

	// MockPedals is the pedal board the mock backend simulates, as a
	// 't'/'f' string. At most 15 pedals fit the count bus.
	MockPedals string `yaml:"mock_pedals"`

	QuarterPeriod time.Duration `yaml:"quarter_period"`
	BitOrder      string        `yaml:"bit_order"`

	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`

	HTTPAddr         string        `yaml:"http_addr"`          // empty disables the status server
	Heartbeat        time.Duration `yaml:"heartbeat"`          // 0 disables
	RelayMinInterval time.Duration `yaml:"relay_min_interval"` // 0 accepts every toggle
	Debug            bool          `yaml:"debug"`
}

// Default returns the configuration for the standard pedal board wiring.
func Default() Config {
	return Config{
		Pins:          gpio.DefaultLines(),
		Chip:          gpio.DefaultChip,
		Backend:       BackendGPIOCDev,
		QuarterPeriod: driver.DefaultQuarterPeriod,
		BitOrder:      decoder.LSBFirst.String(),
		Broker:        "tcp://localhost:1883",
		ClientID:      "pedal-decoder",
		TopicPrefix:   mqtt.DefaultPrefix,
		HTTPAddr:      ":8080",
		Heartbeat:     15 * time.Minute,
	}
}

// Load returns Default overlaid with the YAML file at path. Unknown keys are
// rejected. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// EffectiveBackend resolves the Mock override.
func (c Config) EffectiveBackend() string {
	if c.Mock {
		return BackendMock
	}
	return c.Backend
}

// Order returns the parsed bit order.
func (c Config) Order() (decoder.BitOrder, error) {
	return decoder.ParseBitOrder(c.BitOrder)
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	if err := c.Pins.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.EffectiveBackend() {
	case BackendGPIOCDev, BackendPeriph, BackendMock:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.QuarterPeriod <= 0 {
		return fmt.Errorf("config: quarter period must be positive, got %v", c.QuarterPeriod)
	}
	if _, err := c.Order(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("config: heartbeat must not be negative, got %v", c.Heartbeat)
	}
	if c.RelayMinInterval < 0 {
		return fmt.Errorf("config: relay min interval must not be negative, got %v", c.RelayMinInterval)
	}
	if len(c.MockPedals) >= 1<<gpio.CountBits {
		return fmt.Errorf("config: mock pedal board has %d pedals, the count bus holds %d", len(c.MockPedals), 1<<gpio.CountBits-1)
	}
	if strings.Trim(c.MockPedals, "tf") != "" {
		return fmt.Errorf("config: mock pedals %q must use only 't' and 'f'", c.MockPedals)
	}
	if c.Broker == "" {
		return errors.New("config: broker is required")
	}
	if c.ClientID == "" {
		return errors.New("config: client id is required")
	}
	return nil
}
