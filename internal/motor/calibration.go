package motor

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Calibration maps step counts to a physical position through
// position = Slope * (counts - Zero). Slope is always positive; axes
// default to an identity calibration in "counts".
type Calibration struct {
	Zero  float64 `json:"zero"`
	Slope float64 `json:"slope"`
	Units string  `json:"units"`
}

// Position converts step counts to the calibrated position.
func (c Calibration) Position(counts int64) float64 {
	return c.Slope * (float64(counts) - c.Zero)
}

// CountsFor converts a calibrated position to the nearest step count.
func (c Calibration) CountsFor(position float64) int64 {
	return int64(math.Round(position/c.Slope + c.Zero))
}

// Sample pairs an observed step count with an independently measured
// position, for fitting a calibration.
type Sample struct {
	Counts   int64   `json:"counts"`
	Position float64 `json:"position"`
}

// Calibration returns the current calibration.
func (m *Motor) Calibration() Calibration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cal
}

// SetCal installs a linear calibration. The slope must be positive; use
// invert to flip the motion direction instead of a negative slope.
func (m *Motor) SetCal(zero, slope float64, units string) error {
	if slope <= 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		return fmt.Errorf("%s: calibration slope must be positive, got %v", m.name, slope)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cal = Calibration{Zero: zero, Slope: slope, Units: units}
	return nil
}

// Position returns the current position in calibrated units.
func (m *Motor) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cal.Position(m.counts)
}

// CountsFor converts a calibrated position to step counts using the
// current calibration.
func (m *Motor) CountsFor(position float64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cal.CountsFor(position)
}

// IncrementCal moves the axis by a signed delta in calibrated units.
func (m *Motor) IncrementCal(ctx context.Context, delta float64, block bool) (Move, error) {
	m.mu.Lock()
	steps := int64(math.Round(delta / m.cal.Slope))
	m.mu.Unlock()
	return m.Increment(ctx, steps, block)
}

// GotoCal moves the axis to an absolute position in calibrated units.
func (m *Motor) GotoCal(ctx context.Context, position float64, block bool) (Move, error) {
	m.mu.Lock()
	target := m.cal.CountsFor(position)
	m.mu.Unlock()
	return m.Goto(ctx, target, block)
}

// Fit computes a least-squares calibration from (counts, position)
// samples and installs it. The units string is kept from the current
// calibration. At least two samples with distinct counts are required,
// and the fitted slope must come out positive.
func (m *Motor) Fit(samples []Sample) (Calibration, error) {
	if len(samples) < 2 {
		return Calibration{}, fmt.Errorf("%s: calibration fit needs at least 2 samples, got %d", m.name, len(samples))
	}

	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	distinct := false
	for i, s := range samples {
		xs[i] = float64(s.Counts)
		ys[i] = s.Position
		if s.Counts != samples[0].Counts {
			distinct = true
		}
	}
	if !distinct {
		return Calibration{}, fmt.Errorf("%s: calibration fit needs samples at distinct counts", m.name)
	}

	// position = alpha + beta*counts maps onto slope*(counts - zero)
	// with slope = beta and zero = -alpha/beta.
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if beta <= 0 || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return Calibration{}, fmt.Errorf("%s: calibration fit produced non-positive slope %v", m.name, beta)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cal = Calibration{Zero: -alpha / beta, Slope: beta, Units: m.cal.Units}
	return m.cal, nil
}
