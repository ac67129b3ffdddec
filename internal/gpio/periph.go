package gpio

import (
	"fmt"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// OpenPeriph resolves the decoder lines through periph.io's host drivers.
// Useful on boards where the character device is unavailable.
func OpenPeriph(lines Lines) (*Bank, error) {
	if err := lines.Validate(); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	var opened []pgpio.PinIO
	resolve := func(label string, offset int) (pgpio.PinIO, error) {
		name := fmt.Sprintf("GPIO%d", offset)
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%s line %d (%s) not found in hardware", label, offset, name)
		}
		opened = append(opened, p)
		return p, nil
	}

	openOutput := func(label string, offset int, initial bool) (Output, error) {
		p, err := resolve(label, offset)
		if err != nil {
			return nil, err
		}
		if err := p.Out(pgpio.Level(initial)); err != nil {
			return nil, fmt.Errorf("set %s line %d to output: %w", label, offset, err)
		}
		return newOutput(initial, func(level bool) error {
			return p.Out(pgpio.Level(level))
		}), nil
	}

	openInput := func(label string, offset int) (Input, error) {
		p, err := resolve(label, offset)
		if err != nil {
			return nil, err
		}
		if err := p.In(pgpio.PullDown, pgpio.NoEdge); err != nil {
			return nil, fmt.Errorf("set %s line %d to input: %w", label, offset, err)
		}
		return InputFunc(func() (bool, error) {
			return p.Read() == pgpio.High, nil
		}), nil
	}

	var err error
	b := &Bank{}
	if b.Clock, err = openOutput("clock", lines.Clock, InitialClock); err != nil {
		return nil, err
	}
	if b.Shift, err = openOutput("shift", lines.Shift, InitialShift); err != nil {
		return nil, err
	}
	if b.Relay, err = openOutput("relay", lines.Relay, InitialRelay); err != nil {
		return nil, err
	}
	if b.Serial, err = openInput("serial", lines.Serial); err != nil {
		return nil, err
	}
	for i, offset := range lines.Count {
		in, err := openInput(fmt.Sprintf("count-%d", i), offset)
		if err != nil {
			return nil, err
		}
		b.Count = append(b.Count, in)
	}

	b.release = func() error {
		var errs []error
		for _, p := range opened {
			if err := p.In(pgpio.PullDown, pgpio.NoEdge); err != nil {
				errs = append(errs, fmt.Errorf("release %s: %w", p.Name(), err))
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("close errors: %v", errs)
		}
		return nil
	}
	return b, nil
}
