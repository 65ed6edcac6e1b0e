package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/rumble/internal/db"
	"github.com/banshee-data/rumble/internal/rig"
	"github.com/banshee-data/rumble/internal/t4"
)

const monoFixture = `{
    "clock_roll": 80000,
    "clock_divisor": 1,
    "dir_pin": 5,
    "pulse_pin": 7,
    "home_pin": 9,
    "cal_slope": 0.05,
    "cal_units": "nm"
}`

const polarFixture = `{
    "clock_roll": 80000,
    "clock_divisor": 1,
    "dir_pin": 4,
    "pulse_pin": 6,
    "home_pin": 8,
    "cal_slope": 0.9,
    "cal_units": "deg"
}`

func TestFlagDefaults(t *testing.T) {
	if *listen != ":8477" {
		t.Errorf("expected listen default :8477, got %q", *listen)
	}
	if *deviceSerial != "440012418" {
		t.Errorf("expected device-serial default 440012418, got %q", *deviceSerial)
	}
	if *simulate {
		t.Error("expected sim default to be false")
	}
	if *configDir != "config" {
		t.Errorf("expected config-dir default config, got %q", *configDir)
	}
	if *dbFile != "rumble.db" {
		t.Errorf("expected db default rumble.db, got %q", *dbFile)
	}
	if *pulseHz != 0 {
		t.Errorf("expected pulse-hz default 0, got %v", *pulseHz)
	}
	if *migrationsDir != "migrations" {
		t.Errorf("expected migrations default migrations, got %q", *migrationsDir)
	}
}

func TestOpenDeviceSim(t *testing.T) {
	prev := *simulate
	*simulate = true
	defer func() { *simulate = prev }()

	dev, err := openDevice()
	if err != nil {
		t.Fatalf("openDevice failed in sim mode: %v", err)
	}
	defer dev.Close()

	if _, ok := dev.(*t4.SimDevice); !ok {
		t.Fatalf("expected a *t4.SimDevice, got %T", dev)
	}
}

func TestMoveRecordConversion(t *testing.T) {
	when := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	ev := rig.MoveEvent{
		ID:          "ev-1",
		Axis:        "mono",
		Kind:        rig.KindGoto,
		Origin:      rig.OriginAPI,
		StartCounts: 100,
		EndCounts:   150,
		StartPos:    5,
		EndPos:      7.5,
		Units:       "nm",
		Requested:   50,
		Applied:     50,
		Clamped:     false,
		RateHz:      1000,
		Duration:    50 * time.Millisecond,
		Time:        when,
	}

	got := moveRecord(ev)
	want := db.MoveRecord{
		ID:          "ev-1",
		Axis:        "mono",
		Kind:        "goto",
		Origin:      "api",
		StartCounts: 100,
		EndCounts:   150,
		StartPos:    5,
		EndPos:      7.5,
		Units:       "nm",
		Requested:   50,
		Applied:     50,
		Clamped:     false,
		RateHz:      1000,
		DurationMS:  50,
		CreatedAt:   when,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("moveRecord mismatch (-want +got):\n%s", diff)
	}
}

// TestRecordedMoveRoundTrip drives a move on a simulated rig and checks
// the published event survives the trip into the database, the same
// path the recorder routine takes.
func TestRecordedMoveRoundTrip(t *testing.T) {
	testingDir := t.TempDir()

	confDir := filepath.Join(testingDir, "config")
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(confDir, "mono.conf"), []byte(monoFixture), 0o644); err != nil {
		t.Fatalf("Failed to write mono config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(confDir, "polar.conf"), []byte(polarFixture), 0o644); err != nil {
		t.Fatalf("Failed to write polar config: %v", err)
	}

	sim := t4.NewSimDevice()
	sim.Wire(7, 5, 9)
	sim.Wire(6, 4, 8)

	rg, err := rig.Load(context.Background(), sim, confDir, rig.Options{})
	if err != nil {
		t.Fatalf("Failed to load rig: %v", err)
	}
	defer rg.Close()

	database, err := db.NewDB(filepath.Join(testingDir, "test_rumble.db"))
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	}()

	id, c := rg.Subscribe()
	defer rg.Unsubscribe(id)

	if _, err := rg.Increment(context.Background(), "mono", 50, true, rig.OriginInternal); err != nil {
		t.Fatalf("Failed to move mono: %v", err)
	}

	var ev rig.MoveEvent
	select {
	case ev = <-c:
	case <-time.After(time.Second):
		t.Fatal("no move event published")
	}

	if err := database.RecordMove(context.Background(), moveRecord(ev)); err != nil {
		t.Fatalf("Failed to record move: %v", err)
	}

	moves, err := database.ListMoves(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("Failed to list moves: %v", err)
	}
	if len(moves) != 1 {
		t.Fatalf("Expected one recorded move, got %d", len(moves))
	}

	rec := moves[0]
	if rec.Axis != "mono" || rec.Kind != "increment" || rec.Origin != "internal" {
		t.Errorf("unexpected move labels: %s %s %s", rec.Axis, rec.Kind, rec.Origin)
	}
	if rec.EndCounts != 50 || rec.Applied != 50 {
		t.Errorf("unexpected move counts: end=%d applied=%d", rec.EndCounts, rec.Applied)
	}
	if rec.Units != "nm" {
		t.Errorf("expected units nm, got %q", rec.Units)
	}
	if sim.Position(7) != 50 {
		t.Errorf("expected sim position 50, got %d", sim.Position(7))
	}
}
