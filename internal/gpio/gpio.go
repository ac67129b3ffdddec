// Package gpio provides the GPIO lines used by the pedal decoder.
// The real implementations use the Linux GPIO character device or periph.io.
// The mock implementation allows running and testing without hardware.
package gpio

import (
	"errors"
	"fmt"
)

// Input is a line that can be sampled.
type Input interface {
	// Read returns the current level of the line (true = HIGH).
	Read() (bool, error)
}

// Output is a line that can be driven.
type Output interface {
	// Write drives the line and records the level as last written.
	Write(level bool) error

	// Toggle drives the line to the inverse of the last written level.
	Toggle() error

	// Level returns the last written level.
	Level() bool
}

// CountBits is the width of the parallel count bus.
const CountBits = 4

// ErrCountLines is returned when the count bus does not have exactly CountBits lines.
var ErrCountLines = fmt.Errorf("gpio: count bus needs exactly %d lines", CountBits)

// Default line offsets (BCM numbering), matching the pedal board wiring.
const (
	DefaultClock  = 11 // SCLK, physical pin 23
	DefaultShift  = 8  // ~WRITE/SHIFT, physical pin 24
	DefaultSerial = 9  // MISO, physical pin 21
	DefaultRelay  = 25 // loom relay, physical pin 22
)

// DefaultCount returns the default count bus offsets, bit 0 first.
func DefaultCount() []int {
	return []int{5, 6, 13, 19}
}

// Levels the output lines are driven to when they are requested.
const (
	InitialClock = true
	InitialShift = true
	InitialRelay = false
)

// Lines holds the line offsets the decoder owns.
type Lines struct {
	Clock  int   `yaml:"clock"`
	Shift  int   `yaml:"shift"`
	Serial int   `yaml:"serial"`
	Relay  int   `yaml:"relay"`
	Count  []int `yaml:"count"` // bit 0 first
}

// DefaultLines returns the default pedal board wiring.
func DefaultLines() Lines {
	return Lines{
		Clock:  DefaultClock,
		Shift:  DefaultShift,
		Serial: DefaultSerial,
		Relay:  DefaultRelay,
		Count:  DefaultCount(),
	}
}

// Validate checks the count bus width and that no line is used twice.
func (l Lines) Validate() error {
	if len(l.Count) != CountBits {
		return fmt.Errorf("%w (got %d)", ErrCountLines, len(l.Count))
	}
	seen := make(map[int]string)
	check := func(name string, offset int) error {
		if offset < 0 {
			return fmt.Errorf("gpio: %s line has negative offset %d", name, offset)
		}
		if other, ok := seen[offset]; ok {
			return fmt.Errorf("gpio: line %d used for both %s and %s", offset, other, name)
		}
		seen[offset] = name
		return nil
	}
	named := []struct {
		name   string
		offset int
	}{
		{"clock", l.Clock},
		{"shift", l.Shift},
		{"serial", l.Serial},
		{"relay", l.Relay},
	}
	for _, n := range named {
		if err := check(n.name, n.offset); err != nil {
			return err
		}
	}
	for i, offset := range l.Count {
		if err := check(fmt.Sprintf("count-%d", i), offset); err != nil {
			return err
		}
	}
	return nil
}

// Bank is the full set of lines owned by one decoder.
// Nothing else may drive these lines while the bank is open.
type Bank struct {
	Clock  Output
	Shift  Output
	Relay  Output
	Serial Input
	Count  []Input // bit 0 first

	release func() error
}

// Close releases the lines. It is safe to call on a bank with no release hook.
func (b *Bank) Close() error {
	if b.release == nil {
		return nil
	}
	return b.release()
}

// InputFunc adapts a function to the Input interface.
type InputFunc func() (bool, error)

// Read calls f.
func (f InputFunc) Read() (bool, error) { return f() }

// output tracks the last written level of a line driven through set.
// Not safe for concurrent use.
type output struct {
	set   func(level bool) error
	level bool
}

func newOutput(initial bool, set func(level bool) error) *output {
	return &output{set: set, level: initial}
}

func (o *output) Write(level bool) error {
	if err := o.set(level); err != nil {
		return err
	}
	o.level = level
	return nil
}

func (o *output) Toggle() error {
	return o.Write(!o.level)
}

func (o *output) Level() bool {
	return o.level
}

// ErrClosed is returned by lines of a bank that has been closed.
var ErrClosed = errors.New("gpio: bank closed")

// levelInt converts a logical level to the 0/1 value used by line drivers.
func levelInt(level bool) int {
	if level {
		return 1
	}
	return 0
}
