// Package driver runs the decoder's read cycle in real time and turns the
// decoder's pending events into public pedal events.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/pedal-decoder/internal/decoder"
	"github.com/sweeney/pedal-decoder/internal/gpio"
	"github.com/sweeney/pedal-decoder/internal/pedals"
)

// DefaultQuarterPeriod is the time between two clock beats.
const DefaultQuarterPeriod = 20 * time.Millisecond

// ErrRelayThrottled is returned by ToggleRelay when pulses arrive faster
// than Options.RelayMinInterval allows.
var ErrRelayThrottled = errors.New("driver: relay toggled too often")

// Options configures a Driver.
type Options struct {
	// QuarterPeriod is the delay between steps. Zero means DefaultQuarterPeriod.
	QuarterPeriod time.Duration

	// RelayMinInterval is the minimum spacing between relay toggles.
	// Zero disables throttling.
	RelayMinInterval time.Duration

	// EventBuffer is the capacity of the Events channel.
	EventBuffer int

	// Debug logs every beat.
	Debug bool
}

// Driver owns a decoder and the relay line. It schedules one decoder step
// per quarter period and publishes at most one event per read cycle.
type Driver struct {
	dec    *decoder.Decoder
	relay  gpio.Output
	period time.Duration
	debug  bool

	events  chan pedals.Event
	limiter *rate.Limiter

	// after schedules the next step; replaced in tests.
	after func(time.Duration) <-chan time.Time
	now   func() time.Time
	logf  func(format string, args ...any)

	// mu serializes line access between the cycle and ToggleRelay.
	mu    sync.Mutex
	state decoder.State

	// failing is the last logged step error, cleared on the next good step.
	failing string
}

// New creates a Driver. The decoder and relay must not be shared.
func New(dec *decoder.Decoder, relay gpio.Output, opts Options) *Driver {
	period := opts.QuarterPeriod
	if period <= 0 {
		period = DefaultQuarterPeriod
	}
	buf := opts.EventBuffer
	if buf <= 0 {
		buf = 16
	}
	d := &Driver{
		dec:    dec,
		relay:  relay,
		period: period,
		debug:  opts.Debug,
		events: make(chan pedals.Event, buf),
		after:  time.After,
		now:    time.Now,
		logf:   log.Printf,
		state:  decoder.NewState(),
	}
	if opts.RelayMinInterval > 0 {
		d.limiter = rate.NewLimiter(rate.Every(opts.RelayMinInterval), 1)
	}
	return d
}

// Events returns the channel of public pedal events. It is closed when Run returns.
func (d *Driver) Events() <-chan pedals.Event {
	return d.events
}

// State returns a copy of the current decoder state.
func (d *Driver) State() decoder.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Copy()
}

// Run reads the count, then steps the decoder every quarter period until ctx
// is cancelled. Step errors are logged and the step is retried on the next beat.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.events)

	if !d.enterReadCount(ctx) {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.after(d.period):
		}

		d.mu.Lock()
		next, err := d.dec.Tick(d.state)
		if err != nil {
			d.stepFailed(d.state.Phase, err)
		} else {
			d.stepOK()
			if d.debug {
				d.logf("driver: %s ticks=%d beat=%d clk=%v shift=%v",
					next.Phase, next.ClockTicks, next.ClockBeat, next.ClockHigh, next.ShiftEnable)
			}
			d.state = next
		}
		cycleDone := err == nil && next.Phase == decoder.ReadCount
		d.mu.Unlock()

		if cycleDone && !d.enterReadCount(ctx) {
			return nil
		}
	}
}

// enterReadCount publishes the event pending from the cycle that just ended
// and reads the count for the next one. It returns false if ctx was
// cancelled while publishing.
func (d *Driver) enterReadCount(ctx context.Context) bool {
	d.mu.Lock()
	s := d.state
	ev, ok := d.translate(s)
	s = s.ClearEvent()
	next, err := d.dec.ReadCount(s)
	if err != nil {
		// Stay in ReadCount; the next Tick retries it.
		d.stepFailed(decoder.ReadCount, err)
		d.state = s
	} else {
		d.stepOK()
		if next.PedalCount != s.PedalCount {
			d.logf("driver: pedal count changed %d -> %d", s.PedalCount, next.PedalCount)
		}
		d.state = next
	}
	d.mu.Unlock()

	if !ok {
		return true
	}
	select {
	case d.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// stepFailed logs err unless the same failure was already logged. Called
// with d.mu held.
func (d *Driver) stepFailed(phase decoder.Phase, err error) {
	msg := fmt.Sprintf("%s: %v", phase, err)
	if msg == d.failing {
		return
	}
	d.failing = msg
	d.logf("driver: %s (retrying every beat)", msg)
}

// stepOK clears a logged failure. Called with d.mu held.
func (d *Driver) stepOK() {
	if d.failing != "" {
		d.logf("driver: recovered from %s", d.failing)
		d.failing = ""
	}
}

// translate converts the pending event of s into a public event.
func (d *Driver) translate(s decoder.State) (pedals.Event, bool) {
	states := append([]bool(nil), s.PedalStates...)
	switch s.Event.Kind {
	case decoder.CountChanged:
		return pedals.Event{
			Kind:   pedals.CountChanged,
			Count:  s.PedalCount,
			States: states,
			Time:   d.now(),
		}, true
	case decoder.PedalChanged:
		return pedals.Event{
			Kind:   pedals.PedalChanged,
			Count:  s.PedalCount,
			Index:  s.Event.Index,
			State:  states[s.Event.Index],
			States: states,
			Time:   d.now(),
		}, true
	}
	return pedals.Event{}, false
}

// ToggleRelay flips the loom relay line and returns the level it wrote. It is
// independent of the read cycle and may be called from any goroutine.
func (d *Driver) ToggleRelay() (bool, error) {
	if d.limiter != nil && !d.limiter.Allow() {
		return false, ErrRelayThrottled
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.relay.Toggle(); err != nil {
		return false, fmt.Errorf("toggle relay: %w", err)
	}
	level := d.relay.Level()
	d.logf("driver: relay %s", levelString(level))
	return level, nil
}

// RelayLevel returns the last level written to the relay line.
func (d *Driver) RelayLevel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.relay.Level()
}

func levelString(high bool) string {
	if high {
		return "HIGH"
	}
	return "LOW"
}
