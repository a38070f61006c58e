package hx711

import "fmt"

const (
	// ResponseLen is the size of the response buffer for one sample.
	ResponseLen = 10
	// dataBytes carry the 24 data bits, four per byte.
	dataBytes = 6
	// clockedBytes is the part of the response that is clocked by the gain
	// sequence; at least one of these must be set.
	clockedBytes = SequenceLen
)

// DataBits lists, MSB first, the bit positions (0 = LSB) of each inverted
// response byte that carry ADC data. It depends on how PD_SCK and DOUT are
// wired to the bus.
type DataBits [4]uint8

// DefaultDataBits matches DOUT sampled in the low half of each clock pulse
// with PD_SCK on MOSI and DOUT on MISO.
var DefaultDataBits = DataBits{6, 4, 2, 0}

func (d DataBits) valid() bool {
	var seen uint8
	for _, b := range d {
		if b > 7 || seen&(1<<b) != 0 {
			return false
		}
		seen |= 1 << b
	}
	return true
}

// Validate checks the shape of a sample response: some of the clocked bytes
// must be set and the trailing bytes must be clear.
func Validate(resp []byte) error {
	if len(resp) != ResponseLen {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidResponse, len(resp), ResponseLen)
	}
	nonzero := false
	for _, b := range resp[:clockedBytes] {
		if b != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		return fmt.Errorf("%w: no data in % x", ErrInvalidResponse, resp)
	}
	for _, b := range resp[clockedBytes:] {
		if b != 0 {
			return fmt.Errorf("%w: trailing bytes set in % x", ErrInvalidResponse, resp)
		}
	}
	return nil
}

// Decode extracts the signed 24-bit conversion result from a validated
// response. A response shorter than the six data bytes decodes to 0.
func Decode(resp []byte, bits DataBits) int32 {
	if len(resp) < dataBytes {
		return 0
	}
	var v uint32
	for _, b := range resp[:dataBytes] {
		v = v<<4 | uint32(nibble(^b, bits))
	}
	// sign extend from bit 23
	return int32(v<<8) >> 8
}

// Encode builds the response that Decode maps back to v. Only the low 24 bits
// of v are used.
func Encode(v int32, bits DataBits) []byte {
	resp := make([]byte, ResponseLen)
	u := uint32(v) & 0xFFFFFF
	for i := 0; i < dataBytes; i++ {
		n := byte(u >> uint(20-4*i) & 0x0F)
		resp[i] = ^spread(n, bits)
	}
	return resp
}

func nibble(b byte, bits DataBits) byte {
	var n byte
	for i, pos := range bits {
		if b&(1<<pos) != 0 {
			n |= 1 << uint(3-i)
		}
	}
	return n
}

func spread(n byte, bits DataBits) byte {
	var b byte
	for i, pos := range bits {
		if n&(1<<uint(3-i)) != 0 {
			b |= 1 << pos
		}
	}
	return b
}
