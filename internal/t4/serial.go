package t4

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Porter is the minimal interface needed for the controller's serial
// link. The abstraction enables unit testing without real hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// DefaultResponseTimeout bounds how long a register request waits for
// the controller's reply.
const DefaultResponseTimeout = 2 * time.Second

// SerialDevice speaks the controller's line protocol over a serial
// port. Requests are "R <NAME>" and "W <NAME> <VALUE>"; replies are
// "<NAME> <VALUE>", "OK <NAME>", or "ERR <message>". One request is in
// flight at a time.
type SerialDevice struct {
	port      Porter
	requestMu sync.Mutex
	timeout   time.Duration

	lines     chan string
	readErr   chan error
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewSerialDevice wraps an open port. A reader goroutine runs until the
// device is closed or the port reaches EOF.
func NewSerialDevice(port Porter) *SerialDevice {
	d := &SerialDevice{
		port:    port,
		timeout: DefaultResponseTimeout,
		lines:   make(chan string),
		readErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
	go d.readLines()
	return d
}

// SetResponseTimeout adjusts the per-request reply deadline. Call it
// before issuing requests.
func (d *SerialDevice) SetResponseTimeout(t time.Duration) {
	d.requestMu.Lock()
	defer d.requestMu.Unlock()
	d.timeout = t
}

// readLines feeds complete reply lines to the request path. The
// blocking Scan does not interfere with request timeouts or
// cancellation.
func (d *SerialDevice) readLines() {
	scan := bufio.NewScanner(d.port)
	defer close(d.lines)
	for scan.Scan() {
		select {
		case d.lines <- scan.Text():
		case <-d.done:
			return
		}
	}
	if err := scan.Err(); err != nil {
		select {
		case d.readErr <- err:
		case <-d.done:
		}
	}
}

func (d *SerialDevice) roundTrip(ctx context.Context, request string) (string, error) {
	d.requestMu.Lock()
	defer d.requestMu.Unlock()

	select {
	case <-d.done:
		return "", ErrClosed
	default:
	}

	n, err := d.port.Write([]byte(request))
	if err != nil {
		return "", err
	}
	if n != len(request) {
		return "", ErrWriteFailed
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case line, ok := <-d.lines:
		if !ok {
			return "", ErrClosed
		}
		return line, nil
	case err := <-d.readErr:
		return "", err
	case <-timer.C:
		return "", fmt.Errorf("%w to %q within %s", ErrNoReply, strings.TrimSpace(request), d.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ReadName returns the value of the named register.
func (d *SerialDevice) ReadName(ctx context.Context, name string) (float64, error) {
	reply, err := d.roundTrip(ctx, fmt.Sprintf("R %s\n", name))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	if msg, ok := errReply(reply); ok {
		return 0, &DeviceError{Register: name, Message: msg}
	}
	fields := strings.Fields(reply)
	if len(fields) != 2 || fields[0] != name {
		return 0, fmt.Errorf("read %s: unexpected reply %q", name, reply)
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, fmt.Errorf("read %s: bad value %q", name, fields[1])
	}
	return v, nil
}

// WriteName sets the named register.
func (d *SerialDevice) WriteName(ctx context.Context, name string, value float64) error {
	request := fmt.Sprintf("W %s %s\n", name, strconv.FormatFloat(value, 'g', -1, 64))
	reply, err := d.roundTrip(ctx, request)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if msg, ok := errReply(reply); ok {
		return &DeviceError{Register: name, Message: msg}
	}
	fields := strings.Fields(reply)
	if len(fields) != 2 || fields[0] != "OK" || fields[1] != name {
		return fmt.Errorf("write %s: unexpected reply %q", name, reply)
	}
	return nil
}

// errReply reports whether the reply is an ERR line, returning its
// message.
func errReply(reply string) (string, bool) {
	if reply != "ERR" && !strings.HasPrefix(reply, "ERR ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(reply, "ERR")), true
}

// Close stops the reader goroutine and closes the port. Safe to call
// more than once.
func (d *SerialDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
		d.closeErr = d.port.Close()
	})
	return d.closeErr
}
