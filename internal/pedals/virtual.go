package pedals

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MessageKind is the first field of a pedal emulator message.
type MessageKind byte

const (
	// MessageCount is "n,<count>,<states>".
	MessageCount MessageKind = 'n'
	// MessagePedal is "p,<index>,<true|false>,<states>".
	MessagePedal MessageKind = 'p'
)

// Message is a decoded pedal emulator message.
type Message struct {
	Kind   MessageKind
	Count  int
	Index  int
	State  bool
	States []bool
}

// ParseMessage decodes a comma separated emulator message.
func ParseMessage(s string) (Message, error) {
	fields := strings.Split(strings.TrimSpace(s), ",")
	if len(fields[0]) != 1 {
		return Message{}, fmt.Errorf("pedals: bad message kind %q", fields[0])
	}

	switch kind := MessageKind(fields[0][0]); kind {
	case MessageCount:
		if len(fields) != 2 && len(fields) != 3 {
			return Message{}, fmt.Errorf("pedals: count message needs 2 or 3 fields, got %d", len(fields))
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			return Message{}, fmt.Errorf("pedals: bad pedal count %q", fields[1])
		}
		m := Message{Kind: kind, Count: n}
		if len(fields) == 3 {
			m.States = ParseStates(fields[2])
		}
		return m, nil

	case MessagePedal:
		if len(fields) != 3 && len(fields) != 4 {
			return Message{}, fmt.Errorf("pedals: pedal message needs 3 or 4 fields, got %d", len(fields))
		}
		idx, err := strconv.Atoi(fields[1])
		if err != nil || idx < 0 {
			return Message{}, fmt.Errorf("pedals: bad pedal index %q", fields[1])
		}
		state, err := strconv.ParseBool(fields[2])
		if err != nil {
			return Message{}, fmt.Errorf("pedals: bad pedal state %q", fields[2])
		}
		m := Message{Kind: kind, Index: idx, State: state}
		if len(fields) == 4 {
			m.States = ParseStates(fields[3])
		}
		return m, nil
	}
	return Message{}, fmt.Errorf("pedals: unknown message kind %q", fields[0])
}

// String encodes m in the emulator's wire format.
func (m Message) String() string {
	switch m.Kind {
	case MessageCount:
		return fmt.Sprintf("n,%d,%s", m.Count, FormatStates(m.States))
	case MessagePedal:
		return fmt.Sprintf("p,%d,%t,%s", m.Index, m.State, FormatStates(m.States))
	}
	return string(m.Kind)
}

// ErrBankFull is returned when a virtual event cannot be queued.
var ErrBankFull = errors.New("pedals: virtual event queue full")

// VirtualBank is a pedal source driven by emulator messages instead of hardware.
type VirtualBank struct {
	mu     sync.Mutex
	states []bool
	events chan Event
	closed bool
	now    func() time.Time
}

// NewVirtualBank creates an empty virtual bank.
func NewVirtualBank() *VirtualBank {
	return &VirtualBank{
		states: []bool{},
		events: make(chan Event, 16),
		now:    time.Now,
	}
}

// Events returns the bank's event stream. It is closed by Close.
func (v *VirtualBank) Events() <-chan Event {
	return v.events
}

// States returns a copy of the current virtual pedal states.
func (v *VirtualBank) States() []bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]bool(nil), v.states...)
}

// Apply updates the bank from m and queues the resulting event.
// It never blocks.
func (v *VirtualBank) Apply(m Message) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return errors.New("pedals: virtual bank closed")
	}

	var ev Event
	switch m.Kind {
	case MessageCount:
		states := make([]bool, m.Count)
		copy(states, m.States)
		v.states = states
		ev = Event{Kind: CountChanged, Count: m.Count}

	case MessagePedal:
		if m.Index >= len(v.states) {
			return fmt.Errorf("pedals: virtual pedal %d out of range (have %d)", m.Index, len(v.states))
		}
		if len(m.States) == len(v.states) {
			copy(v.states, m.States)
		}
		v.states[m.Index] = m.State
		ev = Event{Kind: PedalChanged, Count: len(v.states), Index: m.Index, State: m.State}

	default:
		return fmt.Errorf("pedals: unsupported message kind %q", m.Kind)
	}

	ev.States = append([]bool(nil), v.states...)
	ev.Time = v.now()
	select {
	case v.events <- ev:
		return nil
	default:
		return ErrBankFull
	}
}

// HandleMessage parses and applies a raw emulator message, logging failures.
func (v *VirtualBank) HandleMessage(payload []byte) {
	m, err := ParseMessage(string(payload))
	if err != nil {
		log.Printf("pedals: virtual message %q: %v", payload, err)
		return
	}
	if err := v.Apply(m); err != nil {
		log.Printf("pedals: virtual message %q: %v", payload, err)
	}
}

// Close stops the bank and closes its event channel.
func (v *VirtualBank) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.closed = true
		close(v.events)
	}
}
