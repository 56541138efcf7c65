// Package engine turns timestamped flywheel and seat pulses into rowing
// metrics: angular kinematics, online drag calibration, power, distance,
// pace, calories, stroke detection and session timing. It is pure state
// transformation; all I/O lives in the callers.
package engine

import "time"

// PaceUnavailable is the sentinel pace (seconds per 500m) used whenever too
// little distance or time has accumulated to derive a meaningful value.
const PaceUnavailable = 999999

// Metrics is the canonical aggregate composed from every model in this
// package. It is owned and mutated exclusively by the Monitor's processing
// loop; external readers get a value copy via Monitor.Snapshot.
type Metrics struct {
	Kinematics  Kinematics   `json:"kinematics"`
	Drag        DragModel    `json:"drag"`
	Power       PowerEnergy  `json:"power"`
	Distance    DistancePace `json:"distance"`
	Calories    Calories     `json:"calories"`
	Stroke      StrokeStats  `json:"stroke"`
	Session     Session      `json:"session"`
	Calibration Calibration  `json:"calibration"`

	// MomentOfInertia is the live flywheel inertia in kg*m^2, either the
	// configured value or the last applied calibration result.
	MomentOfInertia float64 `json:"moment_of_inertia"`

	// HeartRate is injected from an external receiver; 0 when absent.
	HeartRate uint8 `json:"heart_rate"`
}

// Sample is the per-second record emitted while a session is active, with
// every field clamped to its storage range before handoff.
type Sample struct {
	PowerW          uint16 `json:"power_w"`
	VelocityCmS     uint16 `json:"velocity_cm_s"`
	HeartRate       uint8  `json:"heart_rate"`
	DistanceDeltaDm uint16 `json:"distance_delta_dm"`
}

// Summary condenses a finished session for the history store.
type Summary struct {
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       time.Time     `json:"ended_at"`
	Elapsed       time.Duration `json:"elapsed"`
	Distance      float64       `json:"distance_m"`
	Strokes       int           `json:"strokes"`
	AvgPace       float64       `json:"avg_pace"`
	BestPace      float64       `json:"best_pace"`
	AvgPower      float64       `json:"avg_power"`
	PeakPower     float64       `json:"peak_power"`
	Calories      float64       `json:"calories"`
	AvgStrokeRate float64       `json:"avg_stroke_rate"`
	DragFactor    float64       `json:"drag_factor"`
}

func clampU16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}
