package t4

import (
	"context"
	"sync"
)

// SimDevice is an in-memory register map that stands in for real
// hardware in tests and simulation mode. Axes declared with Wire track
// a virtual position from pulse-train writes, so motion commands behave
// plausibly end to end.
type SimDevice struct {
	mu        sync.Mutex
	registers map[string]float64
	axes      map[int]*simAxis // keyed by pulse pin
	writes    []SimWrite
	readErrs  map[string]error
	writeErrs map[string]error
	closed    bool
}

// SimWrite records one register write for assertions.
type SimWrite struct {
	Name  string
	Value float64
}

type simAxis struct {
	pulsePin int
	dirPin   int
	homePin  int
	position int64

	homeSet bool
	homeLo  int64
	homeHi  int64
}

// NewSimDevice returns a simulator with an empty register map.
func NewSimDevice() *SimDevice {
	return &SimDevice{
		registers: make(map[string]float64),
		axes:      make(map[int]*simAxis),
		readErrs:  make(map[string]error),
		writeErrs: make(map[string]error),
	}
}

// Wire declares motor wiring so pulse trains on pulsePin move a virtual
// axis. homePin may be -1 for an axis without a home switch.
func (s *SimDevice) Wire(pulsePin, dirPin, homePin int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.axes[pulsePin] = &simAxis{pulsePin: pulsePin, dirPin: dirPin, homePin: homePin}
}

// SetHomeWindow makes the home switch of the axis wired to pulsePin
// read high while the virtual position is within [lo, hi].
func (s *SimDevice) SetHomeWindow(pulsePin int, lo, hi int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ax, ok := s.axes[pulsePin]; ok {
		ax.homeSet = true
		ax.homeLo, ax.homeHi = lo, hi
	}
}

// Position reports the virtual position of the axis wired to pulsePin.
func (s *SimDevice) Position(pulsePin int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ax, ok := s.axes[pulsePin]; ok {
		return ax.position
	}
	return 0
}

// SetPosition places the virtual axis, for tests that start away from
// home.
func (s *SimDevice) SetPosition(pulsePin int, position int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ax, ok := s.axes[pulsePin]; ok {
		ax.position = position
	}
}

// SetRegister seeds a register value without recording a write.
func (s *SimDevice) SetRegister(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers[name] = value
}

// Register returns the current value of a register.
func (s *SimDevice) Register(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registers[name]
}

// FailReads makes reads of the named register return err.
func (s *SimDevice) FailReads(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErrs[name] = err
}

// FailWrites makes writes of the named register return err.
func (s *SimDevice) FailWrites(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErrs[name] = err
}

// Writes returns a copy of all recorded register writes in order.
func (s *SimDevice) Writes() []SimWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SimWrite, len(s.writes))
	copy(out, s.writes)
	return out
}

// ReadName implements RegisterReadWriter. Home-switch pins of wired
// axes report the home window; other registers report their stored
// values, zero when never written.
func (s *SimDevice) ReadName(ctx context.Context, name string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if err := s.readErrs[name]; err != nil {
		return 0, err
	}
	for _, ax := range s.axes {
		if ax.homeSet && ax.homePin >= 0 && name == Pin(ax.homePin) {
			if ax.position >= ax.homeLo && ax.position <= ax.homeHi {
				return 1, nil
			}
			return 0, nil
		}
	}
	return s.registers[name], nil
}

// WriteName implements RegisterReadWriter. Writing a pulse count while
// the pulse feature is enabled moves the wired axis; enabling the
// feature with a count armed emits that count immediately, as the real
// controller does.
func (s *SimDevice) WriteName(ctx context.Context, name string, value float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.writeErrs[name]; err != nil {
		return err
	}

	s.writes = append(s.writes, SimWrite{Name: name, Value: value})
	prev := s.registers[name]
	s.registers[name] = value

	for _, ax := range s.axes {
		switch name {
		case EFConfigC(ax.pulsePin):
			if s.pulseArmed(ax) {
				s.applyPulses(ax, int64(value))
			}
		case EFEnable(ax.pulsePin):
			if prev == 0 && value != 0 && s.pulseArmed(ax) {
				s.applyPulses(ax, int64(s.registers[EFConfigC(ax.pulsePin)]))
			}
		}
	}
	return nil
}

func (s *SimDevice) pulseArmed(ax *simAxis) bool {
	return s.registers[EFEnable(ax.pulsePin)] != 0 &&
		s.registers[EFIndex(ax.pulsePin)] == PulseOutIndex
}

func (s *SimDevice) applyPulses(ax *simAxis, pulses int64) {
	if pulses <= 0 {
		return
	}
	if s.registers[Pin(ax.dirPin)] != 0 {
		ax.position += pulses
	} else {
		ax.position -= pulses
	}
}

// Close implements RegisterReadWriter. Further calls fail with
// ErrClosed.
func (s *SimDevice) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
