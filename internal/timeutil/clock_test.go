package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestRealClockSince(t *testing.T) {
	c := RealClock{}
	start := time.Now().Add(-time.Second)
	if d := c.Since(start); d < time.Second {
		t.Errorf("Since() = %v, want >= 1s", d)
	}
}

func TestMockClockSetAndNow(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	if got := c.Now(); !got.Equal(base) {
		t.Errorf("Now() = %v, want %v", got, base)
	}

	later := base.Add(time.Hour)
	c.Set(later)
	if got := c.Now(); !got.Equal(later) {
		t.Errorf("after Set, Now() = %v, want %v", got, later)
	}
}

func TestMockClockSleepRecordsAndAdvances(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	start := c.Now()
	c.Sleep(40 * time.Millisecond)
	c.Sleep(100 * time.Millisecond)

	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 40*time.Millisecond || sleeps[1] != 100*time.Millisecond {
		t.Errorf("Sleeps() = %v", sleeps)
	}
	if got := c.Since(start); got != 140*time.Millisecond {
		t.Errorf("Since(start) = %v, want 140ms", got)
	}
}

func TestMockClockTickerFiresOnAdvance(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	ticker := c.NewTicker(time.Second)

	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its period elapsed")
	default:
	}

	c.Advance(time.Second)
	select {
	case tick := <-ticker.C():
		if !tick.Equal(base.Add(time.Second)) {
			t.Errorf("tick time = %v", tick)
		}
	default:
		t.Fatal("ticker did not fire after Advance")
	}
}

func TestMockTickerStop(t *testing.T) {
	c := NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(time.Second)
	ticker.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTickerTrigger(t *testing.T) {
	c := NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(time.Minute).(*MockTicker)

	now := c.Now()
	ticker.Trigger(now)
	select {
	case tick := <-ticker.C():
		if !tick.Equal(now) {
			t.Errorf("tick time = %v, want %v", tick, now)
		}
	default:
		t.Fatal("Trigger did not deliver a tick")
	}
}
