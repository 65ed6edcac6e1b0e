// Package rig assembles the spectroscopy bench: the monochromator and
// polarizer axes share one controller and one pulse clock, loaded from
// per-axis configuration files. Completed moves fan out to subscribers
// as MoveEvents.
package rig

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/banshee-data/rumble/internal/fsutil"
	"github.com/banshee-data/rumble/internal/monitoring"
	"github.com/banshee-data/rumble/internal/motor"
	"github.com/banshee-data/rumble/internal/t4"
	"github.com/banshee-data/rumble/internal/timeutil"
)

var (
	ErrUnknownAxis   = errors.New("unknown axis")
	ErrUnknownPreset = errors.New("unknown preset")
)

// axisNames are the bench axes, each loaded from <dir>/<name>.conf.
// mono is listed last so its clock values win when the files disagree.
var axisNames = []string{"polar", "mono"}

// presetAngles are the polarizer orientations selectable by name, in
// degrees on the polar axis calibration.
var presetAngles = map[string]float64{
	"vertical":   0,
	"horizontal": 90,
	"magic":      45,
}

// Options adjust rig assembly.
type Options struct {
	// PulseHz overrides the pulse rate from the axis configuration
	// files when positive. The clock is shared, so the override
	// applies to every axis.
	PulseHz float64

	// FS is the filesystem used for configuration files. Defaults to
	// the real one.
	FS fsutil.FileSystem

	// Clock paces blocking moves and timestamps events. Defaults to
	// the real clock.
	Clock timeutil.Clock
}

// Rig is the assembled bench.
type Rig struct {
	dev  t4.RegisterReadWriter
	fsys fsutil.FileSystem
	clk  timeutil.Clock
	dir  string

	motors map[string]*motor.Motor
	order  []string
	ops    map[string]*opState

	subMu       sync.Mutex
	subscribers map[string]chan MoveEvent
	closed      bool
}

// opState labels the operation in flight on one axis so events carry
// the kind and origin of the command that caused them. runMu serializes
// labeled operations per axis.
type opState struct {
	runMu sync.Mutex

	labelMu sync.Mutex
	kind    Kind
	origin  Origin
}

func (st *opState) label() (Kind, Origin) {
	st.labelMu.Lock()
	defer st.labelMu.Unlock()
	return st.kind, st.origin
}

func (st *opState) setLabel(kind Kind, origin Origin) {
	st.labelMu.Lock()
	st.kind, st.origin = kind, origin
	st.labelMu.Unlock()
}

// Load reads every axis configuration under dir, builds the motors,
// programs the shared pulse clock once, and arms the pulse outputs.
// The device handle is owned by the rig afterwards; Close releases it.
func Load(ctx context.Context, dev t4.RegisterReadWriter, dir string, opts Options) (*Rig, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = timeutil.RealClock{}
	}

	r := &Rig{
		dev:         dev,
		fsys:        fsys,
		clk:         clk,
		dir:         dir,
		motors:      make(map[string]*motor.Motor),
		ops:         make(map[string]*opState),
		subscribers: make(map[string]chan MoveEvent),
	}

	configs := make(map[string]motor.Config)
	for _, axis := range axisNames {
		path := filepath.Join(dir, axis+".conf")
		cfg, err := motor.ReadConfig(fsys, path)
		if err != nil {
			return nil, err
		}
		configs[axis] = cfg
	}

	// one clock drives every axis; resolve a single roll/divisor pair
	// before any motor caches a rate
	roll, divisor, err := sharedClock(configs, opts.PulseHz)
	if err != nil {
		return nil, err
	}

	for _, axis := range axisNames {
		cfg := configs[axis]
		cfg.ClockRoll, cfg.ClockDivisor = roll, divisor

		m := motor.NewWithClock(dev, axis, motor.Pins{Home: -1}, clk)
		if err := m.ApplyConfig(cfg); err != nil {
			return nil, err
		}
		r.motors[axis] = m
		r.ops[axis] = &opState{kind: KindIncrement, origin: OriginInternal}
		r.order = append(r.order, axis)
		m.SetNotify(func(mv motor.Move) { r.publish(axis, m, mv) })
	}
	sort.Strings(r.order)

	// write the clock registers once, through whichever axis loads
	// last; every motor already caches the same pair
	last := r.motors[axisNames[len(axisNames)-1]]
	if err := last.SetClock(ctx, roll, divisor); err != nil {
		return nil, err
	}
	for _, axis := range axisNames {
		if err := r.motors[axis].SetPins(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// sharedClock picks the roll/divisor pair for the bench. A positive
// rate override wins; otherwise the file values apply, with the mono
// file winning a disagreement.
func sharedClock(configs map[string]motor.Config, pulseHz float64) (roll, divisor int64, err error) {
	if pulseHz > 0 {
		roll, divisor, err = motor.ClockForHz(pulseHz)
		if err != nil {
			return 0, 0, fmt.Errorf("pulse rate override: %w", err)
		}
		return roll, divisor, nil
	}

	for _, axis := range axisNames {
		cfg := configs[axis]
		if roll != 0 && (cfg.ClockRoll != roll || cfg.ClockDivisor != divisor) {
			monitoring.Logf("rig: axis configs disagree on the shared pulse clock (%d/%d vs %s's %d/%d); %s wins",
				roll, divisor, axis, cfg.ClockRoll, cfg.ClockDivisor, axis)
		}
		roll, divisor = cfg.ClockRoll, cfg.ClockDivisor
	}
	return roll, divisor, nil
}

// Device returns the underlying register interface, for diagnostics.
func (r *Rig) Device() t4.RegisterReadWriter { return r.dev }

// Dir returns the configuration directory the rig was loaded from.
func (r *Rig) Dir() string { return r.dir }

// Axes returns the axis names, sorted.
func (r *Rig) Axes() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Motor returns the named axis.
func (r *Rig) Motor(name string) (*motor.Motor, error) {
	m, ok := r.motors[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownAxis, name)
	}
	return m, nil
}

// Statuses snapshots every axis, sorted by name.
func (r *Rig) Statuses() []motor.Status {
	out := make([]motor.Status, 0, len(r.order))
	for _, axis := range r.order {
		out = append(out, r.motors[axis].Status())
	}
	return out
}

// Presets returns the polarizer preset angles by name.
func (r *Rig) Presets() map[string]float64 {
	out := make(map[string]float64, len(presetAngles))
	for name, angle := range presetAngles {
		out[name] = angle
	}
	return out
}

// run executes op on the named axis with the in-flight operation
// labeled, so the events the move publishes carry kind and origin.
func (r *Rig) run(axis string, kind Kind, origin Origin, op func(*motor.Motor) (motor.Move, error)) (motor.Move, error) {
	m, err := r.Motor(axis)
	if err != nil {
		return motor.Move{}, err
	}
	st := r.ops[axis]
	st.runMu.Lock()
	defer st.runMu.Unlock()
	st.setLabel(kind, origin)
	defer st.setLabel(KindIncrement, OriginInternal)
	return op(m)
}

// Increment moves an axis by signed steps.
func (r *Rig) Increment(ctx context.Context, axis string, steps int64, block bool, origin Origin) (motor.Move, error) {
	return r.run(axis, KindIncrement, origin, func(m *motor.Motor) (motor.Move, error) {
		return m.Increment(ctx, steps, block)
	})
}

// IncrementCal moves an axis by a delta in calibrated units.
func (r *Rig) IncrementCal(ctx context.Context, axis string, delta float64, block bool, origin Origin) (motor.Move, error) {
	return r.run(axis, KindIncrement, origin, func(m *motor.Motor) (motor.Move, error) {
		return m.IncrementCal(ctx, delta, block)
	})
}

// Goto moves an axis to an absolute step count.
func (r *Rig) Goto(ctx context.Context, axis string, target int64, block bool, origin Origin) (motor.Move, error) {
	return r.run(axis, KindGoto, origin, func(m *motor.Motor) (motor.Move, error) {
		return m.Goto(ctx, target, block)
	})
}

// GotoCal moves an axis to an absolute calibrated position.
func (r *Rig) GotoCal(ctx context.Context, axis string, position float64, block bool, origin Origin) (motor.Move, error) {
	return r.run(axis, KindGoto, origin, func(m *motor.Motor) (motor.Move, error) {
		return m.GotoCal(ctx, position, block)
	})
}

// Home searches for the axis home switch. Each probe step publishes its
// own event.
func (r *Rig) Home(ctx context.Context, axis string, probe int64, maxTries int, origin Origin) (bool, error) {
	m, err := r.Motor(axis)
	if err != nil {
		return false, err
	}
	st := r.ops[axis]
	st.runMu.Lock()
	defer st.runMu.Unlock()
	st.setLabel(KindHome, origin)
	defer st.setLabel(KindIncrement, OriginInternal)
	return m.Home(ctx, probe, maxTries)
}

// Preset drives the polarizer to a named orientation.
func (r *Rig) Preset(ctx context.Context, name string, block bool, origin Origin) (motor.Move, error) {
	angle, ok := presetAngles[name]
	if !ok {
		return motor.Move{}, fmt.Errorf("%w %q", ErrUnknownPreset, name)
	}
	return r.run("polar", KindPreset, origin, func(m *motor.Motor) (motor.Move, error) {
		return m.GotoCal(ctx, angle, block)
	})
}

// Save writes every axis configuration back under dir, or under the
// directory the rig was loaded from when dir is empty.
func (r *Rig) Save(dir string) error {
	if dir == "" {
		dir = r.dir
	}
	for _, axis := range r.order {
		path := filepath.Join(dir, axis+".conf")
		if err := r.motors[axis].SaveConfig(r.fsys, path); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all subscriber channels and the device. Safe to call
// once; subsequent device use fails.
func (r *Rig) Close() error {
	r.subMu.Lock()
	r.closed = true
	for id, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, id)
	}
	r.subMu.Unlock()
	return r.dev.Close()
}
