package gpio

import (
	"errors"
	"testing"
)

func openMock(t *testing.T) (*MockChip, *Bank, Lines) {
	t.Helper()
	lines := DefaultLines()
	chip := NewMockChip()
	b, err := chip.Open(lines)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return chip, b, lines
}

func TestMockOpenInitialLevels(t *testing.T) {
	chip, b, lines := openMock(t)

	if !chip.Level(lines.Clock) || !b.Clock.Level() {
		t.Error("clock should start HIGH")
	}
	if !chip.Level(lines.Shift) || !b.Shift.Level() {
		t.Error("shift should start HIGH")
	}
	if chip.Level(lines.Relay) || b.Relay.Level() {
		t.Error("relay should start LOW")
	}
	if len(chip.Writes(lines.Clock)) != 0 {
		t.Error("initial levels should not be recorded as writes")
	}
	if len(b.Count) != CountBits {
		t.Errorf("expected %d count inputs, got %d", CountBits, len(b.Count))
	}
}

func TestMockOpenRejectsBadCountBus(t *testing.T) {
	lines := DefaultLines()
	lines.Count = lines.Count[:2]
	if _, err := NewMockChip().Open(lines); !errors.Is(err, ErrCountLines) {
		t.Errorf("expected ErrCountLines, got %v", err)
	}
}

func TestMockReadWrite(t *testing.T) {
	chip, b, lines := openMock(t)

	chip.Set(lines.Serial, true)
	v, err := b.Serial.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !v {
		t.Error("expected serial HIGH")
	}

	if err := b.Relay.Toggle(); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := b.Relay.Toggle(); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	writes := chip.Writes(lines.Relay)
	if len(writes) != 2 || writes[0] != true || writes[1] != false {
		t.Errorf("relay writes: got %v, want [true false]", writes)
	}
}

func TestMockSetCount(t *testing.T) {
	chip, b, lines := openMock(t)

	chip.SetCount(lines, 0b1010)
	want := []bool{false, true, false, true}
	for i, in := range b.Count {
		v, err := in.Read()
		if err != nil {
			t.Fatalf("read count-%d: %v", i, err)
		}
		if v != want[i] {
			t.Errorf("count-%d: got %v, want %v", i, v, want[i])
		}
	}
}

func TestMockFailures(t *testing.T) {
	chip, b, lines := openMock(t)

	chip.FailRead(lines.Serial, errors.New("read fault"))
	if _, err := b.Serial.Read(); err == nil {
		t.Error("expected read error")
	}
	chip.FailRead(lines.Serial, nil)
	if _, err := b.Serial.Read(); err != nil {
		t.Errorf("unexpected error after clearing: %v", err)
	}

	chip.FailWrite(lines.Relay, errors.New("write fault"))
	if err := b.Relay.Toggle(); err == nil {
		t.Error("expected write error")
	}
	if b.Relay.Level() {
		t.Error("relay level should be unchanged after failed write")
	}
}

func TestMockClose(t *testing.T) {
	chip, b, _ := openMock(t)

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !chip.Closed() {
		t.Error("chip should report closed")
	}
	if _, err := b.Serial.Read(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := b.Clock.Write(false); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestDuplicateFirst(t *testing.T) {
	got := DuplicateFirst([]bool{true, false, true})
	want := []bool{true, true, false, true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bit %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if len(DuplicateFirst(nil)) != 0 {
		t.Error("expected empty stream for no pedals")
	}
}

func TestShiftRegisterPlaysStreamOnFallingEdges(t *testing.T) {
	chip, b, lines := openMock(t)
	reg := AttachShiftRegister(chip, lines)
	reg.SetPedals([]bool{false, true})

	// Count bus follows the number of pedals.
	n := 0
	for i, in := range b.Count {
		if v, _ := in.Read(); v {
			n |= 1 << i
		}
	}
	if n != 2 {
		t.Fatalf("count bus: got %d, want 2", n)
	}

	// Load, then start shifting.
	b.Shift.Write(false)
	b.Shift.Write(true)

	var got []bool
	for i := 0; i < 4; i++ {
		b.Clock.Write(true)
		b.Clock.Write(false)
		v, _ := b.Serial.Read()
		got = append(got, v)
	}

	// Duplicate first bit, the two pedals, then LOW once the stream runs out.
	want := []bool{false, false, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bit %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestShiftRegisterLatchesOnShiftRise(t *testing.T) {
	chip, b, lines := openMock(t)
	reg := AttachShiftRegister(chip, lines)
	reg.SetPedals([]bool{true})

	b.Shift.Write(false)
	b.Shift.Write(true)

	// Changing the pedals mid-shift does not affect the latched sequence.
	reg.SetPedals([]bool{false})

	b.Clock.Write(true)
	b.Clock.Write(false)
	if v, _ := b.Serial.Read(); !v {
		t.Error("expected latched HIGH bit")
	}
}

func TestShiftRegisterIgnoresRepeatedLow(t *testing.T) {
	chip, b, lines := openMock(t)
	reg := AttachShiftRegister(chip, lines)
	reg.SetPedals([]bool{true, false})

	b.Shift.Write(false)
	b.Shift.Write(true)

	b.Clock.Write(false) // first falling edge: duplicate bit
	b.Clock.Write(false) // no edge
	if v, _ := b.Serial.Read(); !v {
		t.Fatal("expected duplicate bit HIGH")
	}
	b.Clock.Write(true)
	b.Clock.Write(false)
	if v, _ := b.Serial.Read(); !v {
		t.Error("expected pedal 0 HIGH; a repeated LOW must not shift")
	}
	b.Clock.Write(true)
	b.Clock.Write(false)
	if v, _ := b.Serial.Read(); v {
		t.Error("expected pedal 1 LOW")
	}
}
