package rig

import (
	crand "crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/rumble/internal/motor"
)

// Kind classifies the operation that produced a move.
type Kind string

const (
	KindIncrement Kind = "increment"
	KindGoto      Kind = "goto"
	KindHome      Kind = "home"
	KindPreset    Kind = "preset"
)

// Origin records which surface issued a move.
type Origin string

const (
	OriginAPI      Origin = "api"
	OriginCLI      Origin = "cli"
	OriginJog      Origin = "jog"
	OriginInternal Origin = "internal"
)

// MoveEvent describes one completed move on one axis. Homing publishes
// an event per probe step.
type MoveEvent struct {
	ID          string        `json:"id"`
	Axis        string        `json:"axis"`
	Kind        Kind          `json:"kind"`
	Origin      Origin        `json:"origin"`
	StartCounts int64         `json:"start_counts"`
	EndCounts   int64         `json:"end_counts"`
	StartPos    float64       `json:"start_position"`
	EndPos      float64       `json:"end_position"`
	Units       string        `json:"units"`
	Requested   int64         `json:"requested"`
	Applied     int64         `json:"applied"`
	Clamped     bool          `json:"clamped"`
	RateHz      float64       `json:"rate_hz"`
	Duration    time.Duration `json:"duration"`
	Time        time.Time     `json:"time"`
}

// subscriberBuffer absorbs short consumer stalls; a subscriber that
// falls further behind misses events rather than blocking the mover.
const subscriberBuffer = 16

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving move events. The
// channel ID identifies the unique channel when unsubscribing.
func (r *Rig) Subscribe() (string, chan MoveEvent) {
	id := randomID()
	ch := make(chan MoveEvent, subscriberBuffer)
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (r *Rig) Unsubscribe(id string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if ch, ok := r.subscribers[id]; ok {
		close(ch)
		delete(r.subscribers, id)
	}
}

// publish builds the event for one completed move and fans it out.
// Slow subscribers are skipped rather than blocking the mover.
func (r *Rig) publish(axis string, m *motor.Motor, mv motor.Move) {
	st := r.ops[axis]
	kind, origin := st.label()
	cal := m.Calibration()
	hz := m.ClockHz()

	ev := MoveEvent{
		ID:          uuid.NewString(),
		Axis:        axis,
		Kind:        kind,
		Origin:      origin,
		StartCounts: mv.Start,
		EndCounts:   mv.End,
		StartPos:    cal.Position(mv.Start),
		EndPos:      cal.Position(mv.End),
		Units:       cal.Units,
		Requested:   mv.Requested,
		Applied:     mv.Applied,
		Clamped:     mv.Clamped,
		RateHz:      hz,
		Time:        r.clk.Now(),
	}
	if hz > 0 {
		pulses := mv.Applied
		if pulses < 0 {
			pulses = -pulses
		}
		ev.Duration = time.Duration(float64(pulses) / hz * float64(time.Second))
	}

	r.subMu.Lock()
	defer r.subMu.Unlock()
	if r.closed {
		return
	}
	for _, ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
