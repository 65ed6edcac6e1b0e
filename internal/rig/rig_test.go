package rig

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rumble/internal/fsutil"
	"github.com/banshee-data/rumble/internal/monitoring"
	"github.com/banshee-data/rumble/internal/t4"
	"github.com/banshee-data/rumble/internal/timeutil"
)

const (
	testMonoConf = `{
    "clock_roll": 80000,
    "clock_divisor": 1,
    "dir_pin": 5,
    "pulse_pin": 7,
    "home_pin": 9,
    "cal_slope": 0.05,
    "cal_units": "nm"
}`
	testPolarConf = `{
    "clock_roll": 80000,
    "clock_divisor": 1,
    "dir_pin": 4,
    "pulse_pin": 6,
    "home_pin": 8,
    "cal_slope": 0.9,
    "cal_units": "deg",
    "lim_lower": -200,
    "lim_upper": 200
}`
)

func testFS(t *testing.T, monoConf, polarConf string) *fsutil.MemoryFileSystem {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("config/mono.conf", []byte(monoConf), 0o644))
	require.NoError(t, fsys.WriteFile("config/polar.conf", []byte(polarConf), 0o644))
	return fsys
}

func testRig(t *testing.T, opts Options) (*Rig, *t4.SimDevice, *timeutil.MockClock) {
	t.Helper()
	sim := t4.NewSimDevice()
	sim.Wire(7, 5, 9)
	sim.Wire(6, 4, 8)
	clk := timeutil.NewMockClock(time.Unix(1000, 0))
	if opts.FS == nil {
		opts.FS = testFS(t, testMonoConf, testPolarConf)
	}
	if opts.Clock == nil {
		opts.Clock = clk
	}
	r, err := Load(context.Background(), sim, "config", opts)
	require.NoError(t, err)
	return r, sim, clk
}

func TestLoadBuildsBothAxes(t *testing.T) {
	r, sim, _ := testRig(t, Options{})

	assert.Equal(t, []string{"mono", "polar"}, r.Axes())

	mono, err := r.Motor("mono")
	require.NoError(t, err)
	roll, divisor := mono.Clock()
	assert.Equal(t, int64(80000), roll)
	assert.Equal(t, int64(1), divisor)
	assert.Equal(t, 1000.0, mono.ClockHz())

	// arming the pulse outputs left both axes where they started
	assert.Equal(t, int64(0), sim.Position(7))
	assert.Equal(t, int64(0), sim.Position(6))

	statuses := r.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "mono", statuses[0].Name)
	assert.Equal(t, "nm", statuses[0].Units)
	assert.Equal(t, "polar", statuses[1].Name)
	assert.Equal(t, "deg", statuses[1].Units)

	// the clock registers were written exactly once
	rollWrites := 0
	for _, w := range sim.Writes() {
		if w.Name == t4.RegClockRoll {
			rollWrites++
		}
	}
	assert.Equal(t, 1, rollWrites, "shared clock written more than once")
}

func TestLoadMissingConfig(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("config/mono.conf", []byte(testMonoConf), 0o644))

	_, err := Load(context.Background(), t4.NewSimDevice(), "config", Options{FS: fsys})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "polar.conf")
}

func TestLoadClockDisagreement(t *testing.T) {
	polar := `{"clock_roll": 40000, "clock_divisor": 2, "dir_pin": 4, "pulse_pin": 6}`
	fsys := testFS(t, testMonoConf, polar)

	var logged []string
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(prev)

	r, _, _ := testRig(t, Options{FS: fsys})

	// the mono file wins and every axis runs at its rate
	for _, axis := range r.Axes() {
		m, err := r.Motor(axis)
		require.NoError(t, err)
		roll, divisor := m.Clock()
		assert.Equal(t, int64(80000), roll, axis)
		assert.Equal(t, int64(1), divisor, axis)
	}
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "disagree")
}

func TestLoadPulseHzOverride(t *testing.T) {
	r, _, _ := testRig(t, Options{PulseHz: 2000})

	for _, axis := range r.Axes() {
		m, err := r.Motor(axis)
		require.NoError(t, err)
		roll, divisor := m.Clock()
		assert.Equal(t, int64(40000), roll, axis)
		assert.Equal(t, int64(1), divisor, axis)
	}
}

func TestUnknownAxis(t *testing.T) {
	r, _, _ := testRig(t, Options{})

	_, err := r.Motor("yaw")
	assert.ErrorIs(t, err, ErrUnknownAxis)
	_, err = r.Increment(context.Background(), "yaw", 5, false, OriginAPI)
	assert.ErrorIs(t, err, ErrUnknownAxis)
}

func TestIncrementPublishesEvent(t *testing.T) {
	r, _, _ := testRig(t, Options{})
	id, ch := r.Subscribe()
	defer r.Unsubscribe(id)

	mv, err := r.Increment(context.Background(), "mono", 50, false, OriginAPI)
	require.NoError(t, err)
	assert.Equal(t, int64(50), mv.Applied)

	require.Len(t, ch, 1)
	ev := <-ch
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "mono", ev.Axis)
	assert.Equal(t, KindIncrement, ev.Kind)
	assert.Equal(t, OriginAPI, ev.Origin)
	assert.Equal(t, int64(0), ev.StartCounts)
	assert.Equal(t, int64(50), ev.EndCounts)
	assert.InDelta(t, 2.5, ev.EndPos, 1e-9) // 50 steps at 0.05 nm/step
	assert.Equal(t, "nm", ev.Units)
	assert.Equal(t, 1000.0, ev.RateHz)
	assert.Equal(t, 50*time.Millisecond, ev.Duration)
	assert.Equal(t, time.Unix(1000, 0), ev.Time)
	assert.False(t, ev.Clamped)
}

func TestGotoAndCalWrappers(t *testing.T) {
	r, sim, _ := testRig(t, Options{})
	ctx := context.Background()

	mv, err := r.Goto(ctx, "mono", 120, false, OriginCLI)
	require.NoError(t, err)
	assert.Equal(t, int64(120), mv.End)

	// 6 nm at 0.05 nm/step
	mv, err = r.IncrementCal(ctx, "mono", 6, false, OriginCLI)
	require.NoError(t, err)
	assert.Equal(t, int64(120), mv.Applied)

	mv, err = r.GotoCal(ctx, "mono", 2, false, OriginCLI)
	require.NoError(t, err)
	assert.Equal(t, int64(40), mv.End)
	assert.Equal(t, int64(40), sim.Position(7))
}

func TestClampedMovePublishes(t *testing.T) {
	r, _, _ := testRig(t, Options{})
	id, ch := r.Subscribe()
	defer r.Unsubscribe(id)

	// polar is limited to ±200 counts
	mv, err := r.Increment(context.Background(), "polar", 500, false, OriginJog)
	require.NoError(t, err)
	assert.True(t, mv.Clamped)
	assert.Equal(t, int64(200), mv.Applied)

	ev := <-ch
	assert.True(t, ev.Clamped)
	assert.Equal(t, int64(500), ev.Requested)
	assert.Equal(t, int64(200), ev.Applied)
}

func TestHomePublishesPerProbe(t *testing.T) {
	r, sim, clk := testRig(t, Options{})
	id, ch := r.Subscribe()
	defer r.Unsubscribe(id)

	sim.SetHomeWindow(7, 0, 5)
	sim.SetPosition(7, 8)

	found, err := r.Home(context.Background(), "mono", -2, 0, OriginCLI)
	require.NoError(t, err)
	assert.True(t, found)

	// 8 -> 6 -> 4: one event per probe
	require.Len(t, ch, 2)
	for i := 0; i < 2; i++ {
		ev := <-ch
		assert.Equal(t, KindHome, ev.Kind)
		assert.Equal(t, OriginCLI, ev.Origin)
		assert.Equal(t, int64(-2), ev.Applied)
	}
	// probes block at the pulse rate
	assert.Len(t, clk.Sleeps(), 2)
}

func TestPreset(t *testing.T) {
	r, sim, _ := testRig(t, Options{})
	id, ch := r.Subscribe()
	defer r.Unsubscribe(id)

	mv, err := r.Preset(context.Background(), "horizontal", false, OriginJog)
	require.NoError(t, err)
	// 90 degrees at 0.9 deg/step
	assert.Equal(t, int64(100), mv.End)
	assert.Equal(t, int64(100), sim.Position(6))

	ev := <-ch
	assert.Equal(t, "polar", ev.Axis)
	assert.Equal(t, KindPreset, ev.Kind)
	assert.Equal(t, OriginJog, ev.Origin)

	_, err = r.Preset(context.Background(), "diagonal", false, OriginJog)
	assert.ErrorIs(t, err, ErrUnknownPreset)

	angles := r.Presets()
	assert.Equal(t, map[string]float64{"vertical": 0, "horizontal": 90, "magic": 45}, angles)
}

func TestDirectMotorMovePublishesInternal(t *testing.T) {
	r, _, _ := testRig(t, Options{})
	id, ch := r.Subscribe()
	defer r.Unsubscribe(id)

	m, err := r.Motor("mono")
	require.NoError(t, err)
	_, err = m.Increment(context.Background(), 3, false)
	require.NoError(t, err)

	ev := <-ch
	assert.Equal(t, OriginInternal, ev.Origin)
	assert.Equal(t, KindIncrement, ev.Kind)
}

func TestSlowSubscriberSkipped(t *testing.T) {
	r, _, _ := testRig(t, Options{})
	id, ch := r.Subscribe()
	defer r.Unsubscribe(id)

	// publish past the buffer without draining; the mover must not
	// block and the overflow is dropped
	for i := 0; i < subscriberBuffer+5; i++ {
		_, err := r.Increment(context.Background(), "mono", 1, false, OriginAPI)
		require.NoError(t, err)
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	r, _, _ := testRig(t, Options{})
	id, ch := r.Subscribe()
	r.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// unknown and repeated ids are no-ops
	r.Unsubscribe(id)
	r.Unsubscribe("deadbeef")
}

func TestCloseClosesSubscribersAndDevice(t *testing.T) {
	r, sim, _ := testRig(t, Options{})
	_, ch := r.Subscribe()

	require.NoError(t, r.Close())
	_, open := <-ch
	assert.False(t, open)

	// the device handle is released with the rig
	_, err := sim.ReadName(context.Background(), t4.RegClockRoll)
	assert.ErrorIs(t, err, t4.ErrClosed)

	// closing again and unsubscribing later must not panic
	r.Unsubscribe("deadbeef")
}

func TestSaveRoundTrips(t *testing.T) {
	fsys := testFS(t, testMonoConf, testPolarConf)
	r, _, _ := testRig(t, Options{FS: fsys})

	mono, err := r.Motor("mono")
	require.NoError(t, err)
	require.NoError(t, mono.SetCal(40, 0.025, "nm"))
	require.NoError(t, r.Save(""))

	// a fresh rig loaded from the saved files sees the new calibration
	sim := t4.NewSimDevice()
	sim.Wire(7, 5, 9)
	sim.Wire(6, 4, 8)
	r2, err := Load(context.Background(), sim, "config", Options{FS: fsys, Clock: timeutil.NewMockClock(time.Unix(0, 0))})
	require.NoError(t, err)
	mono2, err := r2.Motor("mono")
	require.NoError(t, err)
	cal := mono2.Calibration()
	assert.Equal(t, 0.025, cal.Slope)
	assert.Equal(t, 40.0, cal.Zero)
}
