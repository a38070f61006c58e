package hx711

import "fmt"

// Gain selects the amplification applied to the next conversion.
type Gain int

const (
	Gain32 Gain = iota
	Gain64
	Gain128
)

// SequenceLen is the number of clock bytes sent for one sample.
const SequenceLen = 7

// Each 0xAA byte carries four clock pulses, so the first six bytes shift out
// the 24 data bits. The last byte adds the pulses that select the gain.
var gainSequences = [...][SequenceLen]byte{
	Gain32:  {0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xA0},
	Gain64:  {0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xA8},
	Gain128: {0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0x80},
}

// ParseGain maps an amplification factor (32, 64 or 128) to a Gain.
func ParseGain(factor int) (Gain, error) {
	switch factor {
	case 32:
		return Gain32, nil
	case 64:
		return Gain64, nil
	case 128:
		return Gain128, nil
	}
	return 0, fmt.Errorf("%w: gain %d", ErrInvalidArgument, factor)
}

// Factor returns the amplification factor.
func (g Gain) Factor() int {
	switch g {
	case Gain32:
		return 32
	case Gain64:
		return 64
	case Gain128:
		return 128
	}
	return 0
}

func (g Gain) String() string {
	if !g.valid() {
		return fmt.Sprintf("Gain(%d)", int(g))
	}
	return fmt.Sprintf("x%d", g.Factor())
}

func (g Gain) valid() bool {
	return g >= Gain32 && g <= Gain128
}

// Sequence returns a copy of the clock bytes that read one sample and leave
// the device set to g for the following conversion. It returns nil for an
// unknown gain.
func (g Gain) Sequence() []byte {
	if !g.valid() {
		return nil
	}
	s := gainSequences[g]
	return s[:]
}

// Pulses counts the rising clock edges encoded in a clock sequence, reading
// each byte MSB first from an initially low clock.
func Pulses(seq []byte) int {
	n := 0
	prev := false
	for _, b := range seq {
		for i := 7; i >= 0; i-- {
			high := b&(1<<uint(i)) != 0
			if high && !prev {
				n++
			}
			prev = high
		}
	}
	return n
}

// gainForPulses is the inverse of Pulses for a complete sample read.
func gainForPulses(n int) (Gain, bool) {
	for g, s := range gainSequences {
		if Pulses(s[:]) == n {
			return Gain(g), true
		}
	}
	return 0, false
}
