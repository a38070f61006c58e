package hx711

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Simulator emulates a HX711 wired to a bus. Its Open method is an Opener.
//
// Source supplies each conversion for the gain that was selected when the
// conversion started. Busy is the number of readiness probes answered with
// "not ready" after every sample read.
type Simulator struct {
	Source func(g Gain) int32
	Busy   int
	Bits   DataBits

	mu     sync.Mutex
	gain   Gain
	busy   int
	opens  int
	closes int
	reads  int
}

// NewSimulator returns a Simulator powered up at Gain128 with the default
// wiring.
func NewSimulator(source func(g Gain) int32) *Simulator {
	return &Simulator{Source: source, Bits: DefaultDataBits, gain: Gain128}
}

// Open returns a new port on the simulated bus.
func (s *Simulator) Open(name string) (spi.PortCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	return &simPort{s: s, name: name}, nil
}

// Stats returns the number of opens, closes and sample reads seen so far.
func (s *Simulator) Stats() (opens, closes, reads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.closes, s.reads
}

// Gain returns the gain selected for the next conversion.
func (s *Simulator) Gain() Gain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

func (s *Simulator) tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(w) != len(r) {
		return fmt.Errorf("simulator: tx %d bytes, rx %d bytes", len(w), len(r))
	}
	if len(w) == len(probeSequence) && w[0] == 0 {
		r[0] = 0
		if s.busy > 0 {
			s.busy--
			r[0] = 0xFF
		}
		return nil
	}
	g, ok := gainForPulses(Pulses(w))
	if !ok {
		return fmt.Errorf("simulator: %d clock pulses", Pulses(w))
	}
	var v int32
	if s.Source != nil {
		v = s.Source(s.gain)
	}
	copy(r, Encode(v, s.Bits))
	s.gain = g
	s.busy = s.Busy
	s.reads++
	return nil
}

type simPort struct {
	s      *Simulator
	name   string
	closed bool
}

func (p *simPort) String() string {
	return "sim:" + p.name
}

func (p *simPort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if p.closed {
		return nil, errors.New("simulator: port closed")
	}
	if bits != bitsPerWord {
		return nil, fmt.Errorf("simulator: %d bits per word", bits)
	}
	return &simConn{p: p}, nil
}

func (p *simPort) LimitSpeed(f physic.Frequency) error {
	return nil
}

func (p *simPort) Close() error {
	if p.closed {
		return errors.New("simulator: port already closed")
	}
	p.closed = true
	p.s.mu.Lock()
	p.s.closes++
	p.s.mu.Unlock()
	return nil
}

type simConn struct {
	p *simPort
}

func (c *simConn) String() string {
	return c.p.String()
}

func (c *simConn) Tx(w, r []byte) error {
	if c.p.closed {
		return errors.New("simulator: port closed")
	}
	return c.p.s.tx(w, r)
}

func (c *simConn) TxPackets(p []spi.Packet) error {
	for _, pkt := range p {
		if err := c.Tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

func (c *simConn) Duplex() conn.Duplex {
	return conn.Full
}
