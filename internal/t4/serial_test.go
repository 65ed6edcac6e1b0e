package t4

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePort scripts the controller side of the line protocol. Replies
// are queued before the request is issued; Read delivers them line by
// line to the device's scanner.
type fakePort struct {
	mu         sync.Mutex
	requests   []string
	writeErr   error
	shortWrite bool

	incoming chan string
	buf      []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		incoming: make(chan string, 16),
		closed:   make(chan struct{}),
	}
}

func (p *fakePort) reply(line string) {
	p.incoming <- line
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.buf) == 0 {
		select {
		case line, ok := <-p.incoming:
			if !ok {
				return 0, io.EOF
			}
			p.buf = []byte(line + "\n")
		case <-p.closed:
			return 0, io.EOF
		}
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.requests = append(p.requests, string(b))
	if p.shortWrite {
		return len(b) - 1, nil
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) sentRequests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.requests))
	copy(out, p.requests)
	return out
}

func TestReadName(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	defer dev.Close()

	port.reply("DIO5 1")
	v, err := dev.ReadName(context.Background(), "DIO5")
	if err != nil {
		t.Fatalf("ReadName: %v", err)
	}
	if v != 1 {
		t.Errorf("value = %v, want 1", v)
	}

	reqs := port.sentRequests()
	if len(reqs) != 1 || reqs[0] != "R DIO5\n" {
		t.Errorf("requests = %q", reqs)
	}
}

func TestReadNameFractionalValue(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	defer dev.Close()

	port.reply("AIN0 2.5")
	v, err := dev.ReadName(context.Background(), "AIN0")
	if err != nil {
		t.Fatalf("ReadName: %v", err)
	}
	if v != 2.5 {
		t.Errorf("value = %v, want 2.5", v)
	}
}

func TestReadNameDeviceError(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	defer dev.Close()

	port.reply("ERR no such register")
	_, err := dev.ReadName(context.Background(), "DIO99")
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("err = %v, want DeviceError", err)
	}
	if devErr.Register != "DIO99" || devErr.Message != "no such register" {
		t.Errorf("DeviceError = %+v", devErr)
	}
}

func TestReadNameMismatchedReply(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	defer dev.Close()

	port.reply("DIO6 1")
	_, err := dev.ReadName(context.Background(), "DIO5")
	if err == nil || !strings.Contains(err.Error(), "unexpected reply") {
		t.Errorf("err = %v, want unexpected reply", err)
	}
}

func TestReadNameBadValue(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	defer dev.Close()

	port.reply("DIO5 high")
	_, err := dev.ReadName(context.Background(), "DIO5")
	if err == nil || !strings.Contains(err.Error(), "bad value") {
		t.Errorf("err = %v, want bad value", err)
	}
}

func TestWriteName(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	defer dev.Close()

	port.reply("OK DIO7_EF_CONFIG_C")
	if err := dev.WriteName(context.Background(), "DIO7_EF_CONFIG_C", 40); err != nil {
		t.Fatalf("WriteName: %v", err)
	}

	reqs := port.sentRequests()
	if len(reqs) != 1 || reqs[0] != "W DIO7_EF_CONFIG_C 40\n" {
		t.Errorf("requests = %q", reqs)
	}
}

func TestWriteNameDeviceError(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	defer dev.Close()

	port.reply("ERR register is read only")
	err := dev.WriteName(context.Background(), "PRODUCT_ID", 4)
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("err = %v, want DeviceError", err)
	}
}

func TestWriteNameUnexpectedReply(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	defer dev.Close()

	port.reply("OK DIO6")
	err := dev.WriteName(context.Background(), "DIO5", 1)
	if err == nil || !strings.Contains(err.Error(), "unexpected reply") {
		t.Errorf("err = %v, want unexpected reply", err)
	}
}

func TestWriteNameShortWrite(t *testing.T) {
	port := newFakePort()
	port.shortWrite = true
	dev := NewSerialDevice(port)
	defer dev.Close()

	err := dev.WriteName(context.Background(), "DIO5", 1)
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("err = %v, want ErrWriteFailed", err)
	}
}

func TestWriteNamePortError(t *testing.T) {
	port := newFakePort()
	port.writeErr = errors.New("input/output error")
	dev := NewSerialDevice(port)
	defer dev.Close()

	err := dev.WriteName(context.Background(), "DIO5", 1)
	if err == nil || !strings.Contains(err.Error(), "input/output error") {
		t.Errorf("err = %v", err)
	}
}

func TestResponseTimeout(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	defer dev.Close()
	dev.SetResponseTimeout(20 * time.Millisecond)

	start := time.Now()
	_, err := dev.ReadName(context.Background(), "DIO5")
	if err == nil || !strings.Contains(err.Error(), "no reply") {
		t.Fatalf("err = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestContextCancellation(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := dev.ReadName(ctx, "DIO5")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRequestAfterClose(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	dev.Close()

	_, err := dev.ReadName(context.Background(), "DIO5")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := dev.WriteName(context.Background(), "DIO5", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	if err := dev.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPortEOFSurfacesAsClosed(t *testing.T) {
	port := newFakePort()
	dev := NewSerialDevice(port)
	defer dev.Close()

	// closing the incoming stream simulates the USB link dropping
	close(port.incoming)
	_, err := dev.ReadName(context.Background(), "DIO5")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
