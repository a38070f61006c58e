package hx711

import (
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	// DefaultFrequency is the bus clock. A bit lasts about 8.7µs, so a clock
	// pulse stays far below the 60µs high time that powers the HX711 down.
	DefaultFrequency = 115200 * physic.Hertz
	busMode          = spi.Mode0
	bitsPerWord      = 8
)

// Opener opens the bus identified by name. spireg.Open is an Opener.
type Opener func(name string) (spi.PortCloser, error)

// transfer performs one duplex exchange on a freshly opened and configured
// port and closes it again before returning. The exchange clocks len(w)
// words; the remainder of the rxLen response stays zero.
func (d *Dev) transfer(w []byte, rxLen int) (r []byte, err error) {
	p, err := d.open(d.bus)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrBusUnavailable, d.bus, err)
	}
	c, err := p.Connect(d.freq, busMode, bitsPerWord)
	if err != nil {
		// the configure error is what the caller needs to see
		_ = p.Close()
		return nil, fmt.Errorf("%w: configure %s: %w", ErrBusUnavailable, d.bus, err)
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			if err == nil {
				err = fmt.Errorf("%w: close %s: %w", ErrTransferFailed, d.bus, cerr)
				r = nil
			} else {
				err = multierr.Append(err, cerr)
			}
		}
	}()
	n := len(w)
	if n > rxLen {
		n = rxLen
	}
	r = make([]byte, rxLen)
	if err := c.Tx(w[:n], r[:n]); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransferFailed, d.bus, err)
	}
	return r, nil
}

// probe checks that the bus can be opened and configured.
func (d *Dev) probe() error {
	p, err := d.open(d.bus)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrBusUnavailable, d.bus, err)
	}
	if _, err := p.Connect(d.freq, busMode, bitsPerWord); err != nil {
		_ = p.Close()
		return fmt.Errorf("%w: configure %s: %w", ErrBusUnavailable, d.bus, err)
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrBusUnavailable, d.bus, err)
	}
	return nil
}
