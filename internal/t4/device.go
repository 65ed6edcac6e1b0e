// Package t4 talks to the lab's T4 motion controller through its named
// register interface. Registers are addressed by name ("DIO5",
// "DIO_EF_CLOCK0_ROLL_VALUE") and carry float64 values, mirroring the
// controller's own register map. SerialDevice speaks the line protocol
// over the controller's USB serial link; SimDevice stands in for
// hardware in tests and simulation mode.
package t4

import (
	"context"
	"fmt"
)

// RegisterReadWriter is the minimal interface for named register access.
// Everything above this package drives motors through it, so real
// hardware and the simulator are interchangeable.
type RegisterReadWriter interface {
	// ReadName returns the current value of the named register.
	ReadName(ctx context.Context, name string) (float64, error)
	// WriteName sets the named register to the given value.
	WriteName(ctx context.Context, name string, value float64) error
	// Close releases the underlying device.
	Close() error
}

var (
	// ErrWriteFailed indicates a short write to the serial link.
	ErrWriteFailed = fmt.Errorf("failed to write to serial device")
	// ErrClosed indicates the device has been closed.
	ErrClosed = fmt.Errorf("device closed")
	// ErrNoReply indicates the controller did not answer within the
	// response timeout.
	ErrNoReply = fmt.Errorf("no reply")
)

// DeviceError is a failure reported by the controller itself rather
// than the transport.
type DeviceError struct {
	Register string
	Message  string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error on %s: %s", e.Register, e.Message)
}
