package decoder

import "fmt"

// Beats per clock period. Each beat is one quarter period.
const beatsPerPeriod = 4

// AdvanceBeat moves the software clock on by one beat:
//
//	beat 0: clock HIGH, tick counted
//	beat 1: settle
//	beat 2: clock LOW
//	beat 3: settle
//
// The settle beats let the phase handlers assert lines away from the edges.
func (d *Decoder) AdvanceBeat(s State) (State, error) {
	ns := s.Copy()
	ns.ClockBeat = (s.ClockBeat + 1) % beatsPerPeriod

	switch ns.ClockBeat {
	case 0:
		if err := d.pins.Clock.Write(true); err != nil {
			return s, fmt.Errorf("clock high: %w", err)
		}
		ns.ClockHigh = true
		ns.ClockTicks++
	case 2:
		if err := d.pins.Clock.Write(false); err != nil {
			return s, fmt.Errorf("clock low: %w", err)
		}
		ns.ClockHigh = false
	}
	return ns, nil
}
