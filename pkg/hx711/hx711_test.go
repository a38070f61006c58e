package hx711

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// fakeBus scripts the bus responses and records how the driver uses it.
type fakeBus struct {
	mu         sync.Mutex
	openErr    error
	connectErr error
	txErr      error
	closeErr   error
	// probe responses, ready once exhausted unless busy
	probes []byte
	busy   bool
	// sample responses, zero filled once exhausted
	samples [][]byte

	opens    int
	closes   int
	inflight int
	maxOpen  int
	freqs    []physic.Frequency
	txs      [][]byte
}

func (f *fakeBus) open(name string) (spi.PortCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	f.inflight++
	if f.inflight > f.maxOpen {
		f.maxOpen = f.inflight
	}
	return &fakePort{f: f}, nil
}

func (f *fakeBus) queue(values ...int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.samples = append(f.samples, Encode(v, DefaultDataBits)[:SequenceLen])
	}
}

func (f *fakeBus) counts() (opens, closes, samples int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes, len(f.samples)
}

type fakePort struct {
	f *fakeBus
}

func (p *fakePort) String() string { return "fake" }

func (p *fakePort) Connect(freq physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	if p.f.connectErr != nil {
		return nil, p.f.connectErr
	}
	p.f.freqs = append(p.f.freqs, freq)
	return p, nil
}

func (p *fakePort) LimitSpeed(f physic.Frequency) error { return nil }

func (p *fakePort) Close() error {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	p.f.closes++
	p.f.inflight--
	return p.f.closeErr
}

func (p *fakePort) Tx(w, r []byte) error {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	if p.f.txErr != nil {
		return p.f.txErr
	}
	p.f.txs = append(p.f.txs, append([]byte(nil), w...))
	if len(w) == 1 {
		if p.f.busy {
			r[0] = 0xFF
		} else if len(p.f.probes) > 0 {
			r[0] = p.f.probes[0]
			p.f.probes = p.f.probes[1:]
		}
		return nil
	}
	if len(p.f.samples) > 0 {
		copy(r, p.f.samples[0])
		p.f.samples = p.f.samples[1:]
	}
	return nil
}

func (p *fakePort) TxPackets(pkts []spi.Packet) error { return nil }

func (p *fakePort) Duplex() conn.Duplex { return conn.Full }

func newTestDev(t *testing.T, f *fakeBus, options ...Option) *Dev {
	t.Helper()
	options = append([]Option{WithPollInterval(0), WithReadyTimeout(time.Second)}, options...)
	d, err := New(f.open, "fake0.0", Gain128, options...)
	require.Nil(t, err)
	require.NotNil(t, d)
	return d
}

func TestNew(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	opens, closes, _ := f.counts()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes)
	assert.Equal(t, []physic.Frequency{DefaultFrequency}, f.freqs)
	assert.Equal(t, Gain128, d.Gain())
	assert.Equal(t, 0, d.Offset())
	assert.Equal(t, 1.0, d.Scale())
	assert.Equal(t, "hx711(fake0.0, x128)", d.String())

	_, err := New(f.open, "fake0.0", Gain(5))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(f.open, "fake0.0", Gain32, WithDataBits(DataBits{1, 1, 1, 1}))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewBusUnavailable(t *testing.T) {
	cause := errors.New("no such device")
	f := &fakeBus{openErr: cause}
	d, err := New(f.open, "fake0.0", Gain32)
	assert.ErrorIs(t, err, ErrBusUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, d)

	f = &fakeBus{connectErr: cause}
	d, err = New(f.open, "fake0.0", Gain32)
	assert.ErrorIs(t, err, ErrBusUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, d)
	opens, closes, _ := f.counts()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes)
}

func TestWithFrequency(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f, WithFrequency(50*physic.KiloHertz))
	f.queue(1)
	_, err := d.ReadRaw(context.Background())
	require.Nil(t, err)
	for _, freq := range f.freqs {
		assert.Equal(t, 50*physic.KiloHertz, freq)
	}
}

func TestReadRaw(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	f.queue(-12345)
	v, err := d.ReadRaw(context.Background())
	require.Nil(t, err)
	assert.Equal(t, int32(-12345), v)
	// probe then sample, each on its own open
	opens, closes, _ := f.counts()
	assert.Equal(t, 3, opens)
	assert.Equal(t, 3, closes)
	require.Len(t, f.txs, 2)
	assert.Equal(t, []byte{0x00}, f.txs[0])
	assert.Equal(t, Gain128.Sequence(), f.txs[1])
	assert.Len(t, f.freqs, 3)
}

func TestSetGain(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	require.Nil(t, d.SetGain(Gain64))
	assert.Equal(t, Gain64, d.Gain())
	assert.ErrorIs(t, d.SetGain(Gain(-1)), ErrInvalidArgument)
	assert.Equal(t, Gain64, d.Gain())
	f.queue(1)
	_, err := d.ReadRaw(context.Background())
	require.Nil(t, err)
	assert.Equal(t, Gain64.Sequence(), f.txs[len(f.txs)-1])
}

func TestReadAverage(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	f.queue(100, 200, 301)
	v, err := d.ReadAverage(context.Background(), 3)
	require.Nil(t, err)
	assert.Equal(t, 200, v)

	d.SetOffset(50)
	f.queue(100, 200, 301)
	v, err = d.ReadAverage(context.Background(), 3)
	require.Nil(t, err)
	assert.Equal(t, 150, v)

	f.queue(-100, -201)
	v, err = d.ReadAverageRaw(context.Background(), 2)
	require.Nil(t, err)
	assert.Equal(t, -150, v)
}

func TestReadAverageLimits(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	f.queue(1<<23-1, 1<<23-1, 1<<23-1, 1<<23-1)
	v, err := d.ReadAverage(context.Background(), 4)
	require.Nil(t, err)
	assert.Equal(t, 1<<23-1, v)
}

func TestInvalidSampleCount(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	opens, _, _ := f.counts()
	ctx := context.Background()
	for _, n := range []int{0, -1} {
		_, err := d.ReadAverage(ctx, n)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = d.ReadAverageRaw(ctx, n)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = d.GetUnits(ctx, n)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = d.Tare(ctx, n)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = d.CalibrateUnits(ctx, 10, n)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
	after, _, _ := f.counts()
	assert.Equal(t, opens, after)
	assert.Equal(t, 0, d.Offset())
	assert.Equal(t, 1.0, d.Scale())
}

func TestTare(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	d.SetOffset(999)
	f.queue(8000, 8002, 8001)
	offset, err := d.Tare(context.Background(), 3)
	require.Nil(t, err)
	assert.Equal(t, 8001, offset)
	assert.Equal(t, 8001, d.Offset())

	f.queue(8000, 8002, 8001)
	v, err := d.ReadAverage(context.Background(), 3)
	require.Nil(t, err)
	assert.Equal(t, 0, v)
}

func TestCalibrateUnits(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	ctx := context.Background()
	f.queue(1000, 1000)
	_, err := d.Tare(ctx, 2)
	require.Nil(t, err)

	f.queue(3000, 3000)
	scale, err := d.CalibrateUnits(ctx, 100, 2)
	require.Nil(t, err)
	assert.Equal(t, 20.0, scale)
	assert.Equal(t, 20.0, d.Scale())

	f.queue(2000, 2000)
	units, err := d.GetUnits(ctx, 2)
	require.Nil(t, err)
	assert.InDelta(t, 50.0, units, 1e-9)

	// a negative span is a valid calibration
	f.queue(0, 0)
	scale, err = d.CalibrateUnits(ctx, 10, 2)
	require.Nil(t, err)
	assert.Equal(t, -100.0, scale)
}

func TestCalibrateUnitsRejects(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	ctx := context.Background()
	d.SetScale(3)

	_, err := d.CalibrateUnits(ctx, 0, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	d.SetOffset(500)
	f.queue(500, 500)
	_, err = d.CalibrateUnits(ctx, 10, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 3.0, d.Scale())
}

func TestGetUnitsZeroScale(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	d.SetScale(0)
	f.queue(10)
	_, err := d.GetUnits(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, samples := f.counts()
	assert.Equal(t, 1, samples)
}

func TestInvalidResponseAborts(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	d.SetOffset(7)
	f.queue(10)
	// an all zero response
	f.samples = append(f.samples, make([]byte, SequenceLen))
	f.queue(30, 40)

	_, err := d.Tare(context.Background(), 4)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, 7, d.Offset())
	// the loop stopped at the bad sample
	_, _, samples := f.counts()
	assert.Equal(t, 2, samples)
}

func TestTransferFailed(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	cause := errors.New("ioctl failed")
	f.txErr = cause
	_, err := d.ReadAverage(context.Background(), 2)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, cause)
	opens, closes, _ := f.counts()
	assert.Equal(t, opens, closes)

	// the close error is kept alongside the transfer error
	closeErr := errors.New("close failed")
	f.closeErr = closeErr
	_, err = d.ReadRaw(context.Background())
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, closeErr)
}

func TestCloseFailed(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	cause := errors.New("close failed")
	f.closeErr = cause
	_, err := d.IsReady(context.Background())
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, cause)
}

func TestConfigureFailed(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	cause := errors.New("bad mode")
	f.connectErr = cause
	f.closeErr = errors.New("close failed")
	_, err := d.ReadRaw(context.Background())
	assert.ErrorIs(t, err, ErrBusUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, f.closeErr)
	opens, closes, _ := f.counts()
	assert.Equal(t, opens, closes)
}

func TestBusUnavailable(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	f.openErr = errors.New("gone")
	_, err := d.GetUnits(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBusUnavailable)
}

func TestIsReady(t *testing.T) {
	f := &fakeBus{probes: []byte{0x00, 0x01, 0xFF, 0x80}}
	d := newTestDev(t, f)
	ctx := context.Background()
	for _, want := range []bool{true, false, false, false, true} {
		ready, err := d.IsReady(ctx)
		require.Nil(t, err)
		assert.Equal(t, want, ready)
	}
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := d.IsReady(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitReady(t *testing.T) {
	f := &fakeBus{probes: []byte{0xFF, 0xFF, 0x10, 0x00}}
	d := newTestDev(t, f)
	f.queue(42)
	v, err := d.ReadRaw(context.Background())
	require.Nil(t, err)
	assert.Equal(t, int32(42), v)
	assert.Len(t, f.txs, 5)

	f.probes = []byte{0xFF, 0x00}
	d.poll = time.Millisecond
	f.queue(43)
	v, err = d.ReadRaw(context.Background())
	require.Nil(t, err)
	assert.Equal(t, int32(43), v)
}

func TestWaitReadyTimeout(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f, WithPollInterval(time.Millisecond), WithReadyTimeout(20*time.Millisecond))
	f.busy = true
	f.queue(1)
	start := time.Now()
	_, err := d.ReadRaw(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
	_, _, samples := f.counts()
	assert.Equal(t, 1, samples)

	// spinning variant
	d.poll = 0
	_, err = d.ReadRaw(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitReadyContext(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f, WithPollInterval(time.Millisecond), WithReadyTimeout(0))
	f.busy = true
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.ReadAverage(ctx, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	require.Nil(t, d.Close())
	require.Nil(t, d.Close())
	ctx := context.Background()
	_, err := d.ReadRaw(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.ReadAverage(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.GetUnits(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.Tare(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.IsReady(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	// accessors still work
	d.SetOffset(3)
	assert.Equal(t, 3, d.Offset())
}

func TestConcurrentReads(t *testing.T) {
	f := &fakeBus{}
	d := newTestDev(t, f)
	const workers, reads = 8, 20
	vals := make([]int32, workers*reads)
	for i := range vals {
		vals[i] = 77
	}
	f.queue(vals...)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < reads; j++ {
				v, err := d.ReadRaw(context.Background())
				assert.Nil(t, err)
				assert.Equal(t, int32(77), v)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.maxOpen)
}
