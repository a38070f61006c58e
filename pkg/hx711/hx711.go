// Package hx711 provides a device driver for the HX711 24-bit load-cell ADC
// read through a serial bus.
//
// PD_SCK is driven by the MOSI line, so the bytes written to the bus are the
// clock waveform, and DOUT is sampled on MISO. The bus is opened, configured
// and closed around every transfer.
package hx711

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
)

const (
	DefaultPollInterval = time.Millisecond
	DefaultReadyTimeout = time.Second
)

// Dev is a HX711 behind one bus. It is safe for concurrent use; operations
// are serialized.
type Dev struct {
	mu     sync.Mutex
	open   Opener
	bus    string
	gain   Gain
	freq   physic.Frequency
	bits   DataBits
	offset int
	scale  float64
	// readiness polling
	poll    time.Duration
	timeout time.Duration
	closed  bool
}

// New creates a Dev on the named bus. The bus is opened once to check that
// it is usable and released again.
func New(open Opener, bus string, gain Gain, options ...Option) (*Dev, error) {
	if !gain.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArgument, gain)
	}
	d := Dev{
		open:    open,
		bus:     bus,
		gain:    gain,
		freq:    DefaultFrequency,
		bits:    DefaultDataBits,
		scale:   1.0,
		poll:    DefaultPollInterval,
		timeout: DefaultReadyTimeout,
	}
	for _, option := range options {
		option(&d)
	}
	if !d.bits.valid() {
		return nil, fmt.Errorf("%w: data bits %v", ErrInvalidArgument, d.bits)
	}
	if err := d.probe(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("hx711(%s, %s)", d.bus, d.Gain())
}

// Close releases the driver. Calling it again has no effect.
func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// SetGain sets the gain used from the next conversion on.
func (d *Dev) SetGain(g Gain) error {
	if !g.valid() {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, g)
	}
	d.mu.Lock()
	d.gain = g
	d.mu.Unlock()
	return nil
}

func (d *Dev) Gain() Gain {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gain
}

// SetOffset sets the tare baseline, in raw units.
func (d *Dev) SetOffset(offset int) {
	d.mu.Lock()
	d.offset = offset
	d.mu.Unlock()
}

func (d *Dev) Offset() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offset
}

// SetScale sets the number of raw units per physical unit.
func (d *Dev) SetScale(scale float64) {
	d.mu.Lock()
	d.scale = scale
	d.mu.Unlock()
}

func (d *Dev) Scale() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scale
}

// ReadRaw waits for a conversion and returns it undecorated by offset or
// scale.
func (d *Dev) ReadRaw(ctx context.Context) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	return d.read(ctx)
}

// read performs one sample read. The response is validated before anything
// is decoded.
func (d *Dev) read(ctx context.Context) (int32, error) {
	if err := d.waitReady(ctx); err != nil {
		return 0, err
	}
	resp, err := d.transfer(d.gain.Sequence(), ResponseLen)
	if err != nil {
		return 0, err
	}
	if err := Validate(resp); err != nil {
		return 0, err
	}
	return Decode(resp, d.bits), nil
}

// ReadAverage returns the mean of n samples less the offset.
func (d *Dev) ReadAverage(ctx context.Context, n int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	avg, err := d.average(ctx, n)
	if err != nil {
		return 0, err
	}
	return avg - d.offset, nil
}

// ReadAverageRaw returns the mean of n samples without applying the offset.
func (d *Dev) ReadAverageRaw(ctx context.Context, n int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.average(ctx, n)
}

func (d *Dev) average(ctx context.Context, n int) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: sample count %d", ErrInvalidArgument, n)
	}
	var sum int64
	for i := 0; i < n; i++ {
		v, err := d.read(ctx)
		if err != nil {
			return 0, err
		}
		sum += int64(v)
	}
	return int(sum / int64(n)), nil
}

// GetUnits returns the offset adjusted mean of n samples divided by the
// scale.
func (d *Dev) GetUnits(ctx context.Context, n int) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scale == 0 {
		return 0, fmt.Errorf("%w: zero scale", ErrInvalidArgument)
	}
	avg, err := d.average(ctx, n)
	if err != nil {
		return 0, err
	}
	return float64(avg-d.offset) / d.scale, nil
}

// Tare records the mean of n samples as the offset and returns it.
func (d *Dev) Tare(ctx context.Context, n int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	avg, err := d.average(ctx, n)
	if err != nil {
		return 0, err
	}
	d.offset = avg
	return avg, nil
}

// CalibrateUnits derives the scale from the mean of n samples taken with
// known units on the load cell, relative to the current offset, and returns
// it. Tare first.
func (d *Dev) CalibrateUnits(ctx context.Context, known float64, n int) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if known == 0 {
		return 0, fmt.Errorf("%w: zero known units", ErrInvalidArgument)
	}
	avg, err := d.average(ctx, n)
	if err != nil {
		return 0, err
	}
	span := avg - d.offset
	if span == 0 {
		return 0, fmt.Errorf("%w: reading equals offset %d", ErrInvalidArgument, d.offset)
	}
	d.scale = float64(span) / known
	return d.scale, nil
}

// Option specifies a construction option for the Dev.
type Option func(*Dev)

// WithFrequency sets the bus clock.
func WithFrequency(f physic.Frequency) Option {
	return func(d *Dev) {
		d.freq = f
	}
}

// WithPollInterval sets the pause between readiness probes. Zero yields the
// processor between probes instead of sleeping.
func WithPollInterval(poll time.Duration) Option {
	return func(d *Dev) {
		d.poll = poll
	}
}

// WithReadyTimeout bounds how long a read waits for the device to become
// ready. Zero waits until the context is done.
func WithReadyTimeout(timeout time.Duration) Option {
	return func(d *Dev) {
		d.timeout = timeout
	}
}

// WithDataBits sets the response bit positions that carry data.
func WithDataBits(bits DataBits) Option {
	return func(d *Dev) {
		d.bits = bits
	}
}
