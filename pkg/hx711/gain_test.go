package hx711

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGainSequence(t *testing.T) {
	patterns := []struct {
		gain   Gain
		last   byte
		pulses int
	}{
		{Gain32, 0xA0, 26},
		{Gain64, 0xA8, 27},
		{Gain128, 0x80, 25},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			seq := p.gain.Sequence()
			require.Len(t, seq, SequenceLen)
			assert.Equal(t, []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, seq[:6])
			assert.Equal(t, p.last, seq[6])
			assert.Equal(t, p.pulses, Pulses(seq))
			g, ok := gainForPulses(p.pulses)
			assert.True(t, ok)
			assert.Equal(t, p.gain, g)
		}
		t.Run(p.gain.String(), tf)
	}
}

func TestGainSequenceIsCopy(t *testing.T) {
	seq := Gain32.Sequence()
	seq[6] = 0xFF
	assert.Equal(t, byte(0xA0), Gain32.Sequence()[6])
}

func TestGainSequenceUnknown(t *testing.T) {
	assert.Nil(t, Gain(-1).Sequence())
	assert.Nil(t, Gain(3).Sequence())
}

func TestParseGain(t *testing.T) {
	for _, f := range []int{32, 64, 128} {
		g, err := ParseGain(f)
		require.Nil(t, err)
		assert.Equal(t, f, g.Factor())
	}
	_, err := ParseGain(16)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "Gain(7)", Gain(7).String())
	assert.Equal(t, "x64", Gain64.String())
}

func TestPulses(t *testing.T) {
	assert.Equal(t, 0, Pulses(nil))
	assert.Equal(t, 0, Pulses([]byte{0x00}))
	assert.Equal(t, 1, Pulses([]byte{0xFF, 0xFF}))
	assert.Equal(t, 2, Pulses([]byte{0x01, 0x40}))
	assert.Equal(t, 1, Pulses([]byte{0x01, 0xC0}))
}
