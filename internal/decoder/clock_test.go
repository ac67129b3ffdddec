package decoder

import (
	"errors"
	"testing"
)

func TestAdvanceBeatSequence(t *testing.T) {
	f := newFixture(t, LSBFirst)
	s := NewState()
	s.Phase = WaitPedals

	wantBeats := []int{1, 2, 3, 0, 1, 2, 3, 0, 1}
	wantTicks := []int{0, 0, 0, 1, 1, 1, 1, 2, 2}
	wantHigh := []bool{true, false, false, true, true, false, false, true, true}

	for i := range wantBeats {
		var err error
		s, err = f.dec.AdvanceBeat(s)
		if err != nil {
			t.Fatalf("beat %d: %v", i, err)
		}
		if s.ClockBeat != wantBeats[i] {
			t.Errorf("step %d: beat %d, want %d", i, s.ClockBeat, wantBeats[i])
		}
		if s.ClockTicks != wantTicks[i] {
			t.Errorf("step %d: ticks %d, want %d", i, s.ClockTicks, wantTicks[i])
		}
		if s.ClockHigh != wantHigh[i] {
			t.Errorf("step %d: clock high %v, want %v", i, s.ClockHigh, wantHigh[i])
		}
	}

	// Only beats 0 and 2 drive the line: LOW, HIGH, LOW, HIGH.
	writes := f.chip.Writes(f.lines.Clock)
	want := []bool{false, true, false, true}
	if len(writes) != len(want) {
		t.Fatalf("clock writes: got %v, want %v", writes, want)
	}
	for i := range want {
		if writes[i] != want[i] {
			t.Errorf("clock write %d: got %v, want %v", i, writes[i], want[i])
		}
	}
}

func TestAdvanceBeatWriteError(t *testing.T) {
	f := newFixture(t, LSBFirst)
	s := NewState()
	s.ClockBeat = 1 // next beat is 2: clock LOW

	f.chip.FailWrite(f.lines.Clock, errors.New("line busy"))
	got, err := f.dec.AdvanceBeat(s)
	if err == nil {
		t.Fatal("expected error")
	}
	if got.ClockBeat != 1 {
		t.Errorf("beat should be unchanged on error, got %d", got.ClockBeat)
	}
}

func TestBeatInvariantAcrossPhases(t *testing.T) {
	f := newFixture(t, LSBFirst)
	f.reg.SetPedals([]bool{true, false, true, true, false})

	s, err := f.dec.ReadCount(NewState())
	if err != nil {
		t.Fatalf("read count: %v", err)
	}

	for i := 0; i < 400; i++ {
		prev := s
		s, err = f.dec.Tick(s)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if s.Phase == ReadCount {
			s, err = f.dec.ReadCount(s.ClearEvent())
			if err != nil {
				t.Fatalf("read count: %v", err)
			}
			continue
		}
		if s.ClockBeat < 0 || s.ClockBeat > 3 {
			t.Fatalf("tick %d: beat %d out of range", i, s.ClockBeat)
		}
		if s.ClockBeat != (prev.ClockBeat+1)%4 {
			t.Fatalf("tick %d: beat went %d -> %d", i, prev.ClockBeat, s.ClockBeat)
		}
		if s.Phase != prev.Phase {
			// Entering ReadPedals resets the tick counter.
			continue
		}
		if s.ClockBeat == 0 && s.ClockTicks != prev.ClockTicks+1 {
			t.Fatalf("tick %d: ticks %d -> %d on beat 0", i, prev.ClockTicks, s.ClockTicks)
		}
		if s.ClockBeat != 0 && s.ClockTicks != prev.ClockTicks {
			t.Fatalf("tick %d: ticks changed on beat %d", i, s.ClockBeat)
		}
	}
}
