// Package pedals defines the pedal events seen by the rest of the system and
// merges physical and virtual pedal sources into one index space.
package pedals

import (
	"strings"
	"time"
)

// Kind is the type of a pedal event.
type Kind string

const (
	CountChanged Kind = "COUNT_CHANGED"
	PedalChanged Kind = "PEDAL_CHANGED"
)

// Event is a change in the pedal bank.
// For CountChanged, Index and State are unused.
type Event struct {
	Kind   Kind
	Count  int
	Index  int
	State  bool
	States []bool // all pedal states after the change
	Time   time.Time

	// Physical and Virtual split Count on merged events. Sources leave
	// them zero.
	Physical int
	Virtual  int
}

// Source produces pedal events. The channel is closed when the source stops.
type Source interface {
	Events() <-chan Event
}

// FormatStates renders pedal states as a string of 't' and 'f', pedal 0 first.
func FormatStates(states []bool) string {
	var b strings.Builder
	b.Grow(len(states))
	for _, s := range states {
		if s {
			b.WriteByte('t')
		} else {
			b.WriteByte('f')
		}
	}
	return b.String()
}

// ParseStates is the inverse of FormatStates. Any character other than 't'
// reads as false.
func ParseStates(s string) []bool {
	out := make([]bool, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = s[i] == 't'
	}
	return out
}
