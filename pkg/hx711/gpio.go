package hx711

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// GPIOPrefix marks a bus identifier as a pair of GPIO lines,
// "gpio:<chip>:<clk offset>:<data offset>".
const GPIOPrefix = "gpio:"

// ParseGPIOBus splits a GPIO bus identifier into its chip and line offsets.
func ParseGPIOBus(name string) (chip string, clk, data int, err error) {
	if !strings.HasPrefix(name, GPIOPrefix) {
		return "", 0, 0, fmt.Errorf("not a gpio bus: %q", name)
	}
	parts := strings.Split(strings.TrimPrefix(name, GPIOPrefix), ":")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, 0, fmt.Errorf("gpio bus %q: want gpio:<chip>:<clk>:<data>", name)
	}
	if clk, err = strconv.Atoi(parts[1]); err != nil {
		return "", 0, 0, fmt.Errorf("gpio bus %q: clk: %w", name, err)
	}
	if data, err = strconv.Atoi(parts[2]); err != nil {
		return "", 0, 0, fmt.Errorf("gpio bus %q: data: %w", name, err)
	}
	if clk == data {
		return "", 0, 0, fmt.Errorf("gpio bus %q: clk and data share line %d", name, clk)
	}
	return parts[0], clk, data, nil
}

// OpenGPIO is an Opener that bit bashes the bus on two GPIO lines, one
// driving PD_SCK and one reading DOUT.
//
// This is not related to the SPI device drivers provided by Linux.
func OpenGPIO(name string) (spi.PortCloser, error) {
	chip, clk, data, err := ParseGPIOBus(name)
	if err != nil {
		return nil, err
	}
	// PD_SCK low keeps the HX711 powered up
	cl, err := gpiocdev.RequestLine(chip, clk, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("hx711"))
	if err != nil {
		return nil, err
	}
	dl, err := gpiocdev.RequestLine(chip, data, gpiocdev.AsInput, gpiocdev.WithConsumer("hx711"))
	if err != nil {
		cl.Close()
		return nil, err
	}
	return newGPIOPort(name, cl, dl), nil
}

// line is the part of a requested GPIO line the port uses.
// *gpiocdev.Line satisfies it.
type line interface {
	SetValue(value int) error
	Value() (int, error)
	Close() error
}

func newGPIOPort(name string, clk, data line) *gpioPort {
	return &gpioPort{name: name, clk: clk, data: data}
}

type gpioPort struct {
	name string
	clk  line
	data line
	// half a bit period
	tclk time.Duration
}

func (p *gpioPort) String() string {
	return p.name
}

func (p *gpioPort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if p.clk == nil {
		return nil, errors.New("gpio bus closed")
	}
	if mode != spi.Mode0 {
		return nil, fmt.Errorf("gpio bus: unsupported mode %s", mode)
	}
	if bits != 8 {
		return nil, fmt.Errorf("gpio bus: unsupported %d bits per word", bits)
	}
	if f <= 0 {
		return nil, fmt.Errorf("gpio bus: invalid frequency %s", f)
	}
	p.tclk = f.Period() / 2
	return &gpioConn{p: p}, nil
}

func (p *gpioPort) LimitSpeed(f physic.Frequency) error {
	return nil
}

// Close releases both lines.
func (p *gpioPort) Close() error {
	var err error
	if p.clk != nil {
		err = multierr.Append(err, p.clk.Close())
		p.clk = nil
	}
	if p.data != nil {
		err = multierr.Append(err, p.data.Close())
		p.data = nil
	}
	return err
}

type gpioConn struct {
	p *gpioPort
}

func (c *gpioConn) String() string {
	return c.p.name
}

func (c *gpioConn) Duplex() conn.Duplex {
	return conn.Full
}

// Tx clocks out w MSB first on PD_SCK and samples DOUT in the middle of each
// bit into r.
func (c *gpioConn) Tx(w, r []byte) error {
	if c.p.clk == nil {
		return errors.New("gpio bus closed")
	}
	if len(r) != 0 && len(r) != len(w) {
		return fmt.Errorf("gpio bus: tx %d bytes, rx %d bytes", len(w), len(r))
	}
	defer c.p.clk.SetValue(0)
	for i, b := range w {
		var in byte
		for bit := 7; bit >= 0; bit-- {
			if err := c.p.clk.SetValue(int(b>>uint(bit)) & 1); err != nil {
				return err
			}
			spin(c.p.tclk)
			v, err := c.p.data.Value()
			if err != nil {
				return err
			}
			in = in<<1 | byte(v&1)
			spin(c.p.tclk)
		}
		if len(r) != 0 {
			r[i] = in
		}
	}
	return nil
}

func (c *gpioConn) TxPackets(p []spi.Packet) error {
	for _, pkt := range p {
		if err := c.Tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

// spin busy waits for d. time.Sleep overshoots by tens of µs, enough to hold
// PD_SCK high past the power down threshold.
func spin(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}
