// Package decoder reads the pedal board: a 4-bit count bus says how many
// pedals are wired, and a clocked shift register shifts their states out on a
// single serial line.
//
// The decoder is a cooperative state machine. Each step is a fast synchronous
// function from one State value to the next; the caller decides when the next
// step runs (see package driver).
package decoder

import "fmt"

// Phase is a stage of the read cycle.
// The cycle is ReadCount -> WaitPedals -> ReadPedals -> ReadCount and never ends.
type Phase int

const (
	ReadCount Phase = iota
	WaitPedals
	ReadPedals
)

func (p Phase) String() string {
	switch p {
	case ReadCount:
		return "read-count"
	case WaitPedals:
		return "wait-pedals"
	case ReadPedals:
		return "read-pedals"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// EventKind identifies a pending change notification.
type EventKind int

const (
	NoEvent EventKind = iota
	CountChanged
	PedalChanged
)

func (k EventKind) String() string {
	switch k {
	case NoEvent:
		return "none"
	case CountChanged:
		return "count-changed"
	case PedalChanged:
		return "pedal-changed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Pending is the change observed during the current cycle.
// Index is only meaningful for PedalChanged.
type Pending struct {
	Kind  EventKind
	Index int
}

// State is a snapshot of the decoder. Steps never modify the State they are
// given; they return a new one.
type State struct {
	Phase       Phase
	PedalCount  int    // 0-15
	PedalStates []bool // len == PedalCount once a count has been read; index 0 = first pedal
	ClockHigh   bool
	ClockTicks  int // rising edges since the phase began
	ClockBeat   int // 0-3
	ShiftEnable bool
	Event       Pending
}

// NewState returns the state of a freshly constructed decoder: no pedals,
// clock and shift-enable HIGH, about to read the count.
func NewState() State {
	return State{
		Phase:       ReadCount,
		PedalStates: []bool{},
		ClockHigh:   true,
		ShiftEnable: true,
	}
}

// Copy returns a deep copy of s.
func (s State) Copy() State {
	c := s
	c.PedalStates = append(make([]bool, 0, len(s.PedalStates)), s.PedalStates...)
	return c
}

// ClearEvent returns a copy of s with no pending event.
func (s State) ClearEvent() State {
	c := s.Copy()
	c.Event = Pending{}
	return c
}

func (s *State) resetClock() {
	s.ClockHigh = true
	s.ClockTicks = 0
	s.ClockBeat = 0
}
