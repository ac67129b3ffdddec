//go:build !linux

package gpio

import "errors"

// DefaultChip is the GPIO character device used on the Raspberry Pi.
const DefaultChip = "gpiochip0"

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string, lines Lines) (*Bank, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}
