package engine

import (
	"math"
	"time"
)

const (
	minStrokeDistance = 2.0  // meters
	maxStrokeDistance = 20.0 // meters

	// Floors below which pace is meaningless and the sentinel is reported.
	minPaceDistance = 1.0 // meters
	minPaceElapsed  = 0.1 // seconds

	// A pace faster than this is implausible on a rowing machine and never
	// becomes the session best.
	bestPaceFloor = 60.0 // s/500m
)

// DistancePace converts per-stroke drive work into distance and derives
// pace from accumulated distance and gated elapsed time.
type DistancePace struct {
	Total         float64 `json:"total"`              // meters
	PerStroke     float64 `json:"per_stroke"`         // meters, last qualifying stroke
	Instantaneous float64 `json:"instantaneous_pace"` // s/500m
	Average       float64 `json:"average_pace"`       // s/500m
	Best          float64 `json:"best_pace"`          // s/500m
}

// NewDistancePace starts with sentinel paces so consumers never read a zero
// pace as "instant".
func NewDistancePace() DistancePace {
	return DistancePace{
		Instantaneous: PaceUnavailable,
		Average:       PaceUnavailable,
		Best:          PaceUnavailable,
	}
}

// CompleteStroke credits the distance for one qualifying drive phase:
// d = cbrt(work / 2.80), clamped to the plausible per-stroke band. Returns
// the distance credited.
func (d *DistancePace) CompleteStroke(driveWork float64) float64 {
	meters := math.Cbrt(driveWork / paceToPowerCoefficient)
	if meters < minStrokeDistance {
		meters = minStrokeDistance
	}
	if meters > maxStrokeDistance {
		meters = maxStrokeDistance
	}

	d.PerStroke = meters
	d.Total += meters
	return meters
}

// UpdatePace recomputes both pace fields from total distance and elapsed
// session time. There is no rolling window: instantaneous pace mirrors
// average pace, a documented simplification.
func (d *DistancePace) UpdatePace(elapsed time.Duration) {
	seconds := elapsed.Seconds()
	if d.Total < minPaceDistance || seconds < minPaceElapsed {
		d.Instantaneous = PaceUnavailable
		d.Average = PaceUnavailable
		return
	}

	pace := seconds / d.Total * 500.0
	d.Average = pace
	d.Instantaneous = pace

	if pace < d.Best && pace > bestPaceFloor {
		d.Best = pace
	}
}
