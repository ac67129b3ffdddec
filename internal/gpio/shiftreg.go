package gpio

import "sync"

// ShiftRegister simulates the pedal board on a MockChip: it drives the count
// bus from the number of pedals and plays the pedal states out on the serial
// line, one bit per falling clock edge.
//
// The states are latched when the shift-enable line rises (start of shifting).
// The board repeats the least significant bit before the real sequence, so a
// shift-out of n pedals is n+1 bits long.
type ShiftRegister struct {
	chip  *MockChip
	lines Lines

	mu     sync.Mutex
	pedals []bool
	stream []bool
	pos    int
	shift  bool
	clock  bool

	// Stream builds the serial sequence from the latched pedal states.
	// Defaults to DuplicateFirst.
	Stream func(pedals []bool) []bool
}

// AttachShiftRegister wires a simulated register to the clock, shift and
// serial lines of chip.
func AttachShiftRegister(chip *MockChip, lines Lines) *ShiftRegister {
	r := &ShiftRegister{
		chip:   chip,
		lines:  lines,
		shift:  chip.Level(lines.Shift),
		clock:  chip.Level(lines.Clock),
		Stream: DuplicateFirst,
	}
	chip.OnWrite(lines.Shift, r.onShift)
	chip.OnWrite(lines.Clock, r.onClock)
	return r
}

// SetPedals sets the pedal states seen by the next shift-out and drives the
// count bus to len(states).
func (r *ShiftRegister) SetPedals(states []bool) {
	r.mu.Lock()
	r.pedals = append([]bool(nil), states...)
	r.mu.Unlock()
	r.chip.SetCount(r.lines, len(states))
}

func (r *ShiftRegister) onShift(level bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if level && !r.shift {
		r.stream = r.Stream(append([]bool(nil), r.pedals...))
		r.pos = 0
	}
	r.shift = level
}

// onClock shifts on falling edges only; rewriting LOW is not an edge.
func (r *ShiftRegister) onClock(level bool) {
	r.mu.Lock()
	falling := r.clock && !level
	r.clock = level
	if !falling || r.stream == nil {
		r.mu.Unlock()
		return
	}
	bit := false
	if r.pos < len(r.stream) {
		bit = r.stream[r.pos]
	}
	r.pos++
	r.mu.Unlock()
	r.chip.Set(r.lines.Serial, bit)
}

// DuplicateFirst returns the sequence the pedal board shifts out: the first
// pedal's state twice, then the rest in order.
func DuplicateFirst(pedals []bool) []bool {
	if len(pedals) == 0 {
		return []bool{}
	}
	return append([]bool{pedals[0]}, pedals...)
}
