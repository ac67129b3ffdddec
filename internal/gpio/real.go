//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// DefaultChip is the GPIO character device used on the Raspberry Pi.
const DefaultChip = "gpiochip0"

const consumer = "pedal-decoder"

// OpenChip requests the decoder lines from a Linux GPIO character device.
// Outputs start at their initial levels; inputs are pulled down so that an
// unplugged count bus reads as zero pedals.
func OpenChip(name string, lines Lines) (*Bank, error) {
	if err := lines.Validate(); err != nil {
		return nil, err
	}

	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}

	var requested []*gpiocdev.Line
	fail := func(err error) (*Bank, error) {
		for _, l := range requested {
			l.Close()
		}
		chip.Close()
		return nil, err
	}

	requestOutput := func(label string, offset int, initial bool) (Output, error) {
		l, err := chip.RequestLine(offset, gpiocdev.AsOutput(levelInt(initial)))
		if err != nil {
			return nil, fmt.Errorf("request %s line %d: %w", label, offset, err)
		}
		requested = append(requested, l)
		return newOutput(initial, func(level bool) error {
			return l.SetValue(levelInt(level))
		}), nil
	}

	requestInput := func(label string, offset int) (Input, error) {
		l, err := chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullDown)
		if err != nil {
			return nil, fmt.Errorf("request %s line %d: %w", label, offset, err)
		}
		requested = append(requested, l)
		return InputFunc(func() (bool, error) {
			v, err := l.Value()
			if err != nil {
				return false, fmt.Errorf("read %s line %d: %w", label, offset, err)
			}
			return v != 0, nil
		}), nil
	}

	b := &Bank{}
	if b.Clock, err = requestOutput("clock", lines.Clock, InitialClock); err != nil {
		return fail(err)
	}
	if b.Shift, err = requestOutput("shift", lines.Shift, InitialShift); err != nil {
		return fail(err)
	}
	if b.Relay, err = requestOutput("relay", lines.Relay, InitialRelay); err != nil {
		return fail(err)
	}
	if b.Serial, err = requestInput("serial", lines.Serial); err != nil {
		return fail(err)
	}
	for i, offset := range lines.Count {
		in, err := requestInput(fmt.Sprintf("count-%d", i), offset)
		if err != nil {
			return fail(err)
		}
		b.Count = append(b.Count, in)
	}

	b.release = func() error {
		var errs []error

		// Hand the lines back as pulled-down inputs, matching the Pi boot
		// defaults, so the shift register is not left half-driven.
		for _, l := range requested {
			if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure line %d: %w", l.Offset(), err))
			}
			if err := l.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close line %d: %w", l.Offset(), err))
			}
		}
		if err := chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}

		if len(errs) > 0 {
			return fmt.Errorf("close errors: %v", errs)
		}
		return nil
	}
	return b, nil
}
