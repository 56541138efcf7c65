package engine

import (
	"math"
	"time"
)

// Accepted inter-pulse interval. Anything outside is a sensor glitch: the
// timestamp still advances so the stream stays anchored, but velocity and
// acceleration are left untouched.
const (
	minPulseDelta = 1 * time.Millisecond
	maxPulseDelta = 10 * time.Second
)

// Kinematics derives angular velocity and acceleration from consecutive
// flywheel pulse timestamps.
type Kinematics struct {
	Velocity           float64 `json:"velocity"`     // rad/s
	PrevVelocity       float64 `json:"-"`            // rad/s, previous accepted sample
	Acceleration       float64 `json:"acceleration"` // rad/s^2
	PeakStrokeVelocity float64 `json:"peak_stroke_velocity"`

	LastPulse  time.Time `json:"-"`
	PrevPulse  time.Time `json:"-"`
	PulseCount uint64    `json:"pulse_count"`
	Valid      bool      `json:"valid"`
}

// ProcessPulse folds one flywheel pulse into the kinematic state. It reports
// whether the pulse produced a usable velocity sample: the very first pulse
// and glitch deltas only advance the timestamp.
func (k *Kinematics) ProcessPulse(now time.Time, magnetsPerRevolution int) bool {
	if k.LastPulse.IsZero() {
		k.LastPulse = now
		k.PulseCount++
		return false
	}

	delta := now.Sub(k.LastPulse)
	if delta < minPulseDelta || delta > maxPulseDelta {
		k.PrevPulse = k.LastPulse
		k.LastPulse = now
		return false
	}

	dt := delta.Seconds()
	anglePerPulse := 2 * math.Pi / float64(magnetsPerRevolution)
	velocity := anglePerPulse / dt

	if k.Velocity != 0 {
		k.Acceleration = (velocity - k.Velocity) / dt
	} else {
		k.Acceleration = 0
	}

	k.PrevVelocity = k.Velocity
	k.Velocity = velocity
	if velocity > k.PeakStrokeVelocity {
		k.PeakStrokeVelocity = velocity
	}

	k.PrevPulse = k.LastPulse
	k.LastPulse = now
	k.PulseCount++
	if k.PulseCount >= 2 {
		k.Valid = true
	}

	return true
}

// Still zeroes the motion state after a prolonged pulse gap, keeping the
// pulse bookkeeping intact so the next pulse is treated as a fresh start of
// motion rather than a 10-second revolution.
func (k *Kinematics) Still() {
	k.Velocity = 0
	k.PrevVelocity = 0
	k.Acceleration = 0
}
