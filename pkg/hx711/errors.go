package hx711

import "errors"

var (
	// ErrBusUnavailable indicates the bus could not be opened or configured.
	ErrBusUnavailable = errors.New("hx711: bus unavailable")
	// ErrTransferFailed indicates the duplex transfer itself failed.
	ErrTransferFailed = errors.New("hx711: transfer failed")
	// ErrInvalidResponse indicates a sample that failed the response sanity check.
	ErrInvalidResponse = errors.New("hx711: invalid response")
	// ErrInvalidArgument indicates a bad sample count, weight or scale.
	ErrInvalidArgument = errors.New("hx711: invalid argument")
	// ErrTimeout indicates the device did not become ready in time.
	ErrTimeout = errors.New("hx711: timed out waiting for ready")
	// ErrClosed indicates the driver is closed.
	ErrClosed = errors.New("hx711: closed")
)
