package hx711

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

var probeSequence = []byte{0x00}

// IsReady reports whether a conversion is waiting to be read. DOUT is held
// low while data is ready, so the probe reads back all zeros.
func (d *Dev) IsReady(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return d.isReady()
}

func (d *Dev) isReady() (bool, error) {
	resp, err := d.transfer(probeSequence, len(probeSequence))
	if err != nil {
		return false, err
	}
	for _, b := range resp {
		if b != 0 {
			return false, nil
		}
	}
	return true, nil
}

// waitReady polls until the device is ready, the ready timeout expires or
// ctx is done.
func (d *Dev) waitReady(ctx context.Context) error {
	var deadline <-chan time.Time
	if d.timeout > 0 {
		t := time.NewTimer(d.timeout)
		defer t.Stop()
		deadline = t.C
	}
	for attempts := 1; ; attempts++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ready, err := d.isReady()
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		if d.poll <= 0 {
			select {
			case <-deadline:
				return fmt.Errorf("%w: %d probes in %s", ErrTimeout, attempts, d.timeout)
			default:
			}
			runtime.Gosched()
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w: %d probes in %s", ErrTimeout, attempts, d.timeout)
		case <-time.After(d.poll):
		}
	}
}
