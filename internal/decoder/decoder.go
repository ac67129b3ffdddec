package decoder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/pedal-decoder/internal/gpio"
)

// BitOrder selects which pedal index each shifted bit is stored at.
type BitOrder int

const (
	// LSBFirst stores the k-th bit after the duplicate at index k-1.
	// The original loom wiring is MSBFirst; set it when moving to that board.
	LSBFirst BitOrder = iota
	// MSBFirst stores the k-th bit after the duplicate at index n-k.
	MSBFirst
)

func (o BitOrder) String() string {
	if o == MSBFirst {
		return "msb-first"
	}
	return "lsb-first"
}

// ParseBitOrder parses "lsb-first" or "msb-first".
func ParseBitOrder(s string) (BitOrder, error) {
	switch strings.ToLower(s) {
	case "lsb-first", "lsb", "":
		return LSBFirst, nil
	case "msb-first", "msb":
		return MSBFirst, nil
	}
	return LSBFirst, fmt.Errorf("unknown bit order %q", s)
}

// index maps the bit sampled on tick (0 = the duplicate) to a pedal index.
// The result is out of [0, count) for the duplicate bit.
func (o BitOrder) index(count, tick int) int {
	if o == MSBFirst {
		return count - tick
	}
	return tick - 1
}

// Pins are the lines driven and sampled by the decoder.
type Pins struct {
	Clock  gpio.Output
	Shift  gpio.Output
	Serial gpio.Input
	Count  []gpio.Input // bit 0 first
}

// BankPins returns the decoder's share of a bank. The relay stays with the caller.
func BankPins(b *gpio.Bank) Pins {
	return Pins{Clock: b.Clock, Shift: b.Shift, Serial: b.Serial, Count: b.Count}
}

// Decoder owns the pedal board lines and implements the phase handlers.
type Decoder struct {
	pins  Pins
	order BitOrder
}

// New creates a decoder. It fails if the count bus is not exactly
// gpio.CountBits lines wide or a line is missing.
func New(pins Pins, order BitOrder) (*Decoder, error) {
	if len(pins.Count) != gpio.CountBits {
		return nil, fmt.Errorf("decoder: %w (got %d)", gpio.ErrCountLines, len(pins.Count))
	}
	if pins.Clock == nil || pins.Shift == nil || pins.Serial == nil {
		return nil, errors.New("decoder: clock, shift and serial lines are required")
	}
	for i, in := range pins.Count {
		if in == nil {
			return nil, fmt.Errorf("decoder: count line %d is missing", i)
		}
	}
	return &Decoder{pins: pins, order: order}, nil
}

// Tick advances the clock one beat and then runs the handler for the
// state's phase.
func (d *Decoder) Tick(s State) (State, error) {
	ns, err := d.AdvanceBeat(s)
	if err != nil {
		return s, err
	}
	return d.Step(ns)
}

// Step runs the handler for the state's phase without touching the clock.
func (d *Decoder) Step(s State) (State, error) {
	switch s.Phase {
	case ReadCount:
		return d.ReadCount(s)
	case WaitPedals:
		return d.WaitPedals(s)
	case ReadPedals:
		return d.ReadPedals(s)
	}
	return s, fmt.Errorf("decoder: unknown phase %v", s.Phase)
}

// ReadCount reads the count bus. When the count differs from the previous
// one, all pedal states are reset to false and a CountChanged event is set.
// It always moves on to WaitPedals with a fresh clock.
func (d *Decoder) ReadCount(s State) (State, error) {
	count := 0
	for i, in := range d.pins.Count {
		v, err := in.Read()
		if err != nil {
			return s, fmt.Errorf("read count bit %d: %w", i, err)
		}
		if v {
			count |= 1 << i
		}
	}

	ns := s.Copy()
	if count != s.PedalCount {
		ns.PedalCount = count
		ns.PedalStates = make([]bool, count)
		ns.Event = Pending{Kind: CountChanged}
	}
	ns.Phase = WaitPedals
	ns.resetClock()
	return ns, nil
}

// WaitPedals drops shift-enable (register load) on the settle beat after the
// phase starts, then lets one extra clock period pass before shifting.
func (d *Decoder) WaitPedals(s State) (State, error) {
	ns := s.Copy()
	switch {
	case ns.ClockTicks == 0 && ns.ClockBeat == 3:
		if err := d.pins.Shift.Write(false); err != nil {
			return s, fmt.Errorf("shift low: %w", err)
		}
		ns.ShiftEnable = false
	case ns.ClockTicks > 1:
		ns.Phase = ReadPedals
		ns.ClockTicks = 0
	}
	return ns, nil
}

// ReadPedals shifts the pedal states out of the register and samples one bit
// per clock period on the falling edge.
//
// The register repeats the first bit, so the clock runs for PedalCount+1
// ticks and the sample on tick 0 is discarded. Only the first difference
// against the stored states raises a PedalChanged, and never when a
// CountChanged is already pending.
func (d *Decoder) ReadPedals(s State) (State, error) {
	ns := s.Copy()
	switch {
	case ns.ClockBeat == 1:
		// Off the rising edge (beat 0).
		if ns.ClockTicks == 0 {
			if err := d.pins.Shift.Write(true); err != nil {
				return s, fmt.Errorf("shift high: %w", err)
			}
			ns.ShiftEnable = true
		} else if ns.ClockTicks == ns.PedalCount-1 {
			if err := d.pins.Shift.Write(false); err != nil {
				return s, fmt.Errorf("shift low: %w", err)
			}
			ns.ShiftEnable = false
		}

	case ns.ClockTicks >= ns.PedalCount && ns.ClockBeat > 2:
		ns.Phase = ReadCount

	case ns.ClockBeat == 2:
		v, err := d.pins.Serial.Read()
		if err != nil {
			return s, fmt.Errorf("read pedal bit: %w", err)
		}
		idx := d.order.index(ns.PedalCount, ns.ClockTicks)
		if idx < 0 || idx >= ns.PedalCount {
			break
		}
		if ns.Event.Kind == NoEvent && v != ns.PedalStates[idx] {
			ns.Event = Pending{Kind: PedalChanged, Index: idx}
		}
		ns.PedalStates[idx] = v
	}
	return ns, nil
}
