// Package motor drives one stepper axis through the controller's named
// register interface: pulse clock setup, pulse-train moves with soft
// travel limits, linear calibration to physical units, homing against a
// switch, and strict JSON configuration files.
package motor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/rumble/internal/t4"
	"github.com/banshee-data/rumble/internal/timeutil"
)

var (
	// ErrNoHomeSwitch reports a homing attempt on an axis without a
	// home pin.
	ErrNoHomeSwitch = errors.New("axis has no home switch")
	// ErrStalled reports a homing probe that the travel limits
	// prevented from moving.
	ErrStalled = errors.New("homing stalled at a travel limit")
)

// DefaultHomeTries bounds a homing search when the caller passes 0.
const DefaultHomeTries = 100

// Pins identifies the controller DIO wiring for one axis. The pulse
// pin must be one of the controller's pulse-capable DIO lines (6 or 7
// on a T4).
type Pins struct {
	Dir   int
	Pulse int
	Home  int // -1 when the axis has no home switch
}

// Motor is one stepper axis. Position is tracked in step counts from
// wherever the axis sat at power-on; counts are not persisted, so a
// restart requires homing or recalibration to recover position.
type Motor struct {
	dev  t4.RegisterReadWriter
	clk  timeutil.Clock
	name string
	pins Pins

	// moveMu serializes motion commands; mu guards the fields below
	// and is never held across device IO or sleeps.
	moveMu sync.Mutex
	mu     sync.Mutex

	invert       bool
	clockRoll    int64
	clockDivisor int64
	counts       int64
	cal          Calibration
	limUpper     *int64
	limLower     *int64
	notify       func(Move)
}

// Move describes one completed motion command in step counts.
type Move struct {
	Requested int64 `json:"requested"`
	Applied   int64 `json:"applied"`
	Clamped   bool  `json:"clamped"`
	Start     int64 `json:"start_counts"`
	End       int64 `json:"end_counts"`
}

// Status is a read-only snapshot of the axis for display layers.
type Status struct {
	Name     string     `json:"name"`
	Counts   int64      `json:"counts"`
	Position float64    `json:"position"`
	Units    string     `json:"units"`
	ClockHz  float64    `json:"clock_hz"`
	Limits   LimitState `json:"limits"`
	LimUpper *int64     `json:"lim_upper"`
	LimLower *int64     `json:"lim_lower"`
	HasHome  bool       `json:"has_home"`
	Invert   bool       `json:"invert"`
}

// LimitState reports whether the axis sits at or beyond either soft
// limit.
type LimitState struct {
	AtLower bool `json:"at_lower"`
	AtUpper bool `json:"at_upper"`
}

// New returns a Motor using the real system clock for blocking waits.
func New(dev t4.RegisterReadWriter, name string, pins Pins) *Motor {
	return NewWithClock(dev, name, pins, timeutil.RealClock{})
}

// NewWithClock returns a Motor that waits on the provided clock.
func NewWithClock(dev t4.RegisterReadWriter, name string, pins Pins, clk timeutil.Clock) *Motor {
	return &Motor{
		dev:  dev,
		clk:  clk,
		name: name,
		pins: pins,
		cal:  Calibration{Slope: 1, Units: "counts"},
	}
}

// Name returns the axis name.
func (m *Motor) Name() string { return m.name }

// Pins returns the axis wiring.
func (m *Motor) Pins() Pins { return m.pins }

// Counts returns the current position in step counts.
func (m *Motor) Counts() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts
}

// Invert reports whether the direction line is reversed.
func (m *Motor) Invert() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invert
}

// SetInvert reverses the meaning of the direction line. It applies to
// subsequent moves only.
func (m *Motor) SetInvert(invert bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invert = invert
}

// SetNotify installs a callback invoked once for every completed move,
// including zero-step (fully clamped) moves and each homing probe. The
// callback runs on the moving goroutine and must not block.
func (m *Motor) SetNotify(fn func(Move)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = fn
}

// SetClock configures the shared pulse clock from a roll value and
// divisor. The clock feature is disabled while the values change. The
// clock is shared by every extended feature on the controller, so
// configuring it on one axis affects all of them.
func (m *Motor) SetClock(ctx context.Context, roll, divisor int64) error {
	if roll <= 0 || roll > math.MaxUint32 {
		return fmt.Errorf("%s: clock roll %d out of range", m.name, roll)
	}
	if divisor <= 0 {
		return fmt.Errorf("%s: clock divisor %d out of range", m.name, divisor)
	}

	writes := []regWrite{
		{t4.RegClockEnable, 0},
		{t4.RegClockRoll, float64(roll)},
		{t4.RegClockDivisor, float64(divisor)},
		{t4.RegClockEnable, 1},
	}
	if err := m.writeAll(ctx, writes); err != nil {
		return fmt.Errorf("%s: configure clock: %w", m.name, err)
	}

	m.mu.Lock()
	m.clockRoll, m.clockDivisor = roll, divisor
	m.mu.Unlock()
	return nil
}

// SetClockHz configures the pulse clock to the closest achievable rate
// at or below the requested pulses per second.
func (m *Motor) SetClockHz(ctx context.Context, rate float64) error {
	roll, divisor, err := ClockForHz(rate)
	if err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}
	return m.SetClock(ctx, roll, divisor)
}

// ClockForHz converts a pulse rate to the roll and divisor values that
// realize the closest achievable rate at or below it.
func ClockForHz(rate float64) (roll, divisor int64, err error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, 0, fmt.Errorf("invalid pulse rate %v Hz", rate)
	}
	roll = int64(t4.CoreClockHz / rate)
	if roll < 1 {
		return 0, 0, fmt.Errorf("pulse rate %v Hz exceeds the %d Hz core clock", rate, t4.CoreClockHz)
	}
	divisor = 1
	for roll > math.MaxUint32 {
		roll >>= 1
		divisor <<= 1
	}
	return roll, divisor, nil
}

// Clock returns the cached roll and divisor, zero before SetClock.
func (m *Motor) Clock() (roll, divisor int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clockRoll, m.clockDivisor
}

// ClockHz reports the configured pulse rate, zero before SetClock.
func (m *Motor) ClockHz() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clockHzLocked()
}

func (m *Motor) clockHzLocked() float64 {
	if m.clockRoll <= 0 || m.clockDivisor <= 0 {
		return 0
	}
	return float64(t4.CoreClockHz) / float64(m.clockDivisor) / float64(m.clockRoll)
}

// SetPins configures the DIO direction mask and arms the pulse-out
// feature on the pulse pin. Enabling the armed feature emits one step,
// so a compensating step is issued and the axis ends where it started.
// The clock must be configured first.
func (m *Motor) SetPins(ctx context.Context) error {
	m.moveMu.Lock()
	defer m.moveMu.Unlock()

	m.mu.Lock()
	roll := m.clockRoll
	m.mu.Unlock()
	if roll <= 0 {
		return fmt.Errorf("%s: clock must be configured before pins", m.name)
	}

	mask, err := m.dev.ReadName(ctx, t4.RegDirection)
	if err != nil {
		return fmt.Errorf("%s: read DIO direction mask: %w", m.name, err)
	}
	iomask := int64(mask) | 1<<m.pins.Dir | 1<<m.pins.Pulse
	if m.pins.Home >= 0 {
		iomask &^= 1 << m.pins.Home
	}

	writes := []regWrite{
		{t4.RegAnalogEnable, 0x0F},
		{t4.RegDirection, float64(iomask)},
		{t4.Pin(m.pins.Dir), 0},
		{t4.EFEnable(m.pins.Pulse), 0},
		{t4.EFIndex(m.pins.Pulse), t4.PulseOutIndex},
		{t4.EFConfigB(m.pins.Pulse), 0},
		{t4.EFConfigA(m.pins.Pulse), float64(roll / 2)},
		{t4.EFConfigC(m.pins.Pulse), 1},
		{t4.Pin(m.pins.Pulse), 0},
		{t4.EFEnable(m.pins.Pulse), 1},
		// arming emitted one step with the direction line low; step
		// once the other way to end where we started
		{t4.Pin(m.pins.Dir), 1},
		{t4.EFConfigC(m.pins.Pulse), 1},
	}
	if err := m.writeAll(ctx, writes); err != nil {
		return fmt.Errorf("%s: configure pins: %w", m.name, err)
	}
	return nil
}

// Increment moves the axis by the signed number of steps, clamped to
// the soft limits. When block is true the call sleeps until the pulse
// train has finished at the configured clock rate; otherwise it
// returns while the hardware is still pulsing.
func (m *Motor) Increment(ctx context.Context, steps int64, block bool) (Move, error) {
	m.moveMu.Lock()
	defer m.moveMu.Unlock()
	return m.increment(ctx, steps, block)
}

// Goto moves the axis to an absolute position in step counts.
func (m *Motor) Goto(ctx context.Context, target int64, block bool) (Move, error) {
	m.moveMu.Lock()
	defer m.moveMu.Unlock()

	m.mu.Lock()
	delta := target - m.counts
	m.mu.Unlock()
	return m.increment(ctx, delta, block)
}

// increment is the core motion primitive. Callers hold moveMu.
func (m *Motor) increment(ctx context.Context, steps int64, block bool) (Move, error) {
	m.mu.Lock()
	start := m.counts
	applied := steps
	if m.limUpper != nil && applied > *m.limUpper-start {
		applied = *m.limUpper - start
	}
	if m.limLower != nil && applied < *m.limLower-start {
		applied = *m.limLower - start
	}
	invert := m.invert
	hz := m.clockHzLocked()
	notify := m.notify
	m.mu.Unlock()

	mv := Move{
		Requested: steps,
		Applied:   applied,
		Clamped:   applied != steps,
		Start:     start,
		End:       start,
	}
	if applied == 0 {
		if notify != nil {
			notify(mv)
		}
		return mv, nil
	}
	if hz <= 0 {
		return mv, fmt.Errorf("%s: pulse clock not configured", m.name)
	}

	// the direction line reflects the clamped motion, not the request
	direction := applied > 0
	if invert {
		direction = !direction
	}
	level := 0.0
	if direction {
		level = 1
	}
	if err := m.dev.WriteName(ctx, t4.Pin(m.pins.Dir), level); err != nil {
		return mv, fmt.Errorf("%s: set direction: %w", m.name, err)
	}

	pulses := applied
	if pulses < 0 {
		pulses = -pulses
	}
	if err := m.dev.WriteName(ctx, t4.EFConfigC(m.pins.Pulse), float64(pulses)); err != nil {
		return mv, fmt.Errorf("%s: emit %d pulses: %w", m.name, pulses, err)
	}

	m.mu.Lock()
	m.counts = start + applied
	mv.End = m.counts
	m.mu.Unlock()

	if block {
		m.clk.Sleep(time.Duration(float64(pulses) / hz * float64(time.Second)))
	}
	if notify != nil {
		notify(mv)
	}
	return mv, nil
}

// Home steps by probe until the home switch changes state, at most
// maxTries times (DefaultHomeTries when 0), and reports whether the
// switch was found. Counts are left wherever the search ends; zeroing
// or recalibrating afterwards is the caller's decision.
func (m *Motor) Home(ctx context.Context, probe int64, maxTries int) (bool, error) {
	if probe == 0 {
		return false, fmt.Errorf("%s: homing probe must be nonzero", m.name)
	}
	if maxTries <= 0 {
		maxTries = DefaultHomeTries
	}
	if m.pins.Home < 0 {
		return false, fmt.Errorf("%s: %w", m.name, ErrNoHomeSwitch)
	}

	m.moveMu.Lock()
	defer m.moveMu.Unlock()

	initial, err := m.dev.ReadName(ctx, t4.Pin(m.pins.Home))
	if err != nil {
		return false, fmt.Errorf("%s: read home switch: %w", m.name, err)
	}

	for try := 0; try < maxTries; try++ {
		mv, err := m.increment(ctx, probe, true)
		if err != nil {
			return false, err
		}
		if mv.Applied == 0 {
			// a fully clamped probe cannot advance, so the search
			// would spin without moving
			return false, fmt.Errorf("%s: %w", m.name, ErrStalled)
		}
		level, err := m.dev.ReadName(ctx, t4.Pin(m.pins.Home))
		if err != nil {
			return false, fmt.Errorf("%s: read home switch: %w", m.name, err)
		}
		if level != initial {
			return true, nil
		}
	}
	return false, nil
}

// SetUpperLimit sets the upper soft limit in counts. A nil value clears
// the limit; cal interprets the value in calibrated units; here uses
// the current counts and ignores the value.
func (m *Motor) SetUpperLimit(value *float64, cal, here bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lim, err := m.limitCountsLocked(value, cal, here)
	if err != nil {
		return err
	}
	if lim != nil && m.limLower != nil && *lim < *m.limLower {
		return fmt.Errorf("%s: upper limit %d below lower limit %d", m.name, *lim, *m.limLower)
	}
	m.limUpper = lim
	return nil
}

// SetLowerLimit sets the lower soft limit in counts, with the same
// value handling as SetUpperLimit.
func (m *Motor) SetLowerLimit(value *float64, cal, here bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lim, err := m.limitCountsLocked(value, cal, here)
	if err != nil {
		return err
	}
	if lim != nil && m.limUpper != nil && *lim > *m.limUpper {
		return fmt.Errorf("%s: lower limit %d above upper limit %d", m.name, *lim, *m.limUpper)
	}
	m.limLower = lim
	return nil
}

func (m *Motor) limitCountsLocked(value *float64, cal, here bool) (*int64, error) {
	switch {
	case here:
		c := m.counts
		return &c, nil
	case value == nil:
		return nil, nil
	case cal:
		c := m.cal.CountsFor(*value)
		return &c, nil
	default:
		c := int64(*value)
		return &c, nil
	}
}

// Limits returns the soft limits in counts, nil when unset.
func (m *Motor) Limits() (lower, upper *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limLower != nil {
		v := *m.limLower
		lower = &v
	}
	if m.limUpper != nil {
		v := *m.limUpper
		upper = &v
	}
	return lower, upper
}

// LimitState reports whether the axis sits at or beyond either limit.
func (m *Motor) LimitState() LimitState {
	m.mu.Lock()
	defer m.mu.Unlock()

	var st LimitState
	if m.limLower != nil && m.counts <= *m.limLower {
		st.AtLower = true
	}
	if m.limUpper != nil && m.counts >= *m.limUpper {
		st.AtUpper = true
	}
	return st
}

// Status snapshots the axis for display layers.
func (m *Motor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Name:     m.name,
		Counts:   m.counts,
		Position: m.cal.Position(m.counts),
		Units:    m.cal.Units,
		ClockHz:  m.clockHzLocked(),
		HasHome:  m.pins.Home >= 0,
		Invert:   m.invert,
	}
	if m.limLower != nil {
		v := *m.limLower
		st.LimLower = &v
		st.Limits.AtLower = m.counts <= v
	}
	if m.limUpper != nil {
		v := *m.limUpper
		st.LimUpper = &v
		st.Limits.AtUpper = m.counts >= v
	}
	return st
}

type regWrite struct {
	name  string
	value float64
}

func (m *Motor) writeAll(ctx context.Context, writes []regWrite) error {
	for _, w := range writes {
		if err := m.dev.WriteName(ctx, w.name, w.value); err != nil {
			return err
		}
	}
	return nil
}
