package gpio

import "sync"

// MockChip is an in-memory GPIO chip. It backs the -mock run mode and serves
// as a test double: inputs are set with Set, writes are recorded per line.
type MockChip struct {
	mu         sync.Mutex
	levels     map[int]bool
	writes     map[int][]bool
	hooks      map[int][]func(level bool)
	readErrors map[int]error
	writeError map[int]error
	closed     bool
}

// NewMockChip creates a chip with every line LOW.
func NewMockChip() *MockChip {
	return &MockChip{
		levels:     make(map[int]bool),
		writes:     make(map[int][]bool),
		hooks:      make(map[int][]func(bool)),
		readErrors: make(map[int]error),
		writeError: make(map[int]error),
	}
}

// Set drives an input line from outside, as the hardware would.
func (m *MockChip) Set(offset int, level bool) {
	m.mu.Lock()
	m.levels[offset] = level
	m.mu.Unlock()
}

// SetCount drives the count bus lines to the binary value n, bit 0 first.
func (m *MockChip) SetCount(lines Lines, n int) {
	for i, offset := range lines.Count {
		m.Set(offset, n&(1<<i) != 0)
	}
}

// Level returns the current level of a line.
func (m *MockChip) Level(offset int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[offset]
}

// Writes returns the levels written to a line, oldest first.
func (m *MockChip) Writes(offset int) []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.writes[offset]...)
}

// OnWrite registers fn to run after every write to a line.
func (m *MockChip) OnWrite(offset int, fn func(level bool)) {
	m.mu.Lock()
	m.hooks[offset] = append(m.hooks[offset], fn)
	m.mu.Unlock()
}

// FailRead makes reads of a line return err. A nil err clears the failure.
func (m *MockChip) FailRead(offset int, err error) {
	m.mu.Lock()
	m.readErrors[offset] = err
	m.mu.Unlock()
}

// FailWrite makes writes to a line return err. A nil err clears the failure.
func (m *MockChip) FailWrite(offset int, err error) {
	m.mu.Lock()
	m.writeError[offset] = err
	m.mu.Unlock()
}

// Closed reports whether the bank opened on this chip has been closed.
func (m *MockChip) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockChip) read(offset int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if err := m.readErrors[offset]; err != nil {
		return false, err
	}
	return m.levels[offset], nil
}

func (m *MockChip) write(offset int, level bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err := m.writeError[offset]; err != nil {
		m.mu.Unlock()
		return err
	}
	m.levels[offset] = level
	m.writes[offset] = append(m.writes[offset], level)
	hooks := append([]func(bool){}, m.hooks[offset]...)
	m.mu.Unlock()

	// Hooks may call back into the chip.
	for _, fn := range hooks {
		fn(level)
	}
	return nil
}

// Open returns a bank on this chip. Outputs are set to their initial levels
// without being recorded as writes.
func (m *MockChip) Open(lines Lines) (*Bank, error) {
	if err := lines.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.closed = false
	m.levels[lines.Clock] = InitialClock
	m.levels[lines.Shift] = InitialShift
	m.levels[lines.Relay] = InitialRelay
	m.mu.Unlock()

	out := func(offset int, initial bool) Output {
		return newOutput(initial, func(level bool) error { return m.write(offset, level) })
	}
	in := func(offset int) Input {
		return InputFunc(func() (bool, error) { return m.read(offset) })
	}

	b := &Bank{
		Clock:  out(lines.Clock, InitialClock),
		Shift:  out(lines.Shift, InitialShift),
		Relay:  out(lines.Relay, InitialRelay),
		Serial: in(lines.Serial),
		release: func() error {
			m.mu.Lock()
			m.closed = true
			m.mu.Unlock()
			return nil
		},
	}
	for _, offset := range lines.Count {
		b.Count = append(b.Count, in(offset))
	}
	return b, nil
}
