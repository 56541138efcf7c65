package engine

import (
	"time"

	"github.com/oarsense/rowmon/internal/config"
)

// StrokePhase is the classifier's current place in the stroke cycle.
// Transitions only ever run Idle->Drive->Recovery->{Drive|Idle}.
type StrokePhase int

const (
	PhaseIdle StrokePhase = iota
	PhaseDrive
	PhaseRecovery
)

func (p StrokePhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDrive:
		return "drive"
	case PhaseRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// MarshalText makes phases readable in JSON payloads.
func (p StrokePhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

const (
	// A drive shorter than this is vibration or a bumped handle, not a
	// stroke: no count, no distance.
	minDriveDuration = 500 * time.Millisecond

	// Drive ends once the wheel is decelerating and has lost a tenth of its
	// peak speed; a single negative-accel sample at the top is not enough.
	driveEndVelocityRatio = 0.9

	minStrokeRate = 10.0 // spm
	maxStrokeRate = 60.0 // spm

	rateSmoothingOld = 0.7
	rateSmoothingNew = 0.3
)

// strokeTransition reports what a step of the machine did.
type strokeTransition int

const (
	strokeNone strokeTransition = iota
	strokeDriveStarted
	strokeCounted   // Drive->Recovery with a qualifying drive
	strokeDiscarded // Drive->Recovery too short to count
	strokeWentIdle
)

// strokeEvent is the input variant fed to the transition function: a
// kinematic sample from the flywheel, or a seat crossing at the catch.
type strokeEvent int

const (
	eventVelocitySample strokeEvent = iota
	eventSeatCatch
)

// StrokeStats is the stroke-phase state machine and its per-stroke
// bookkeeping. It classifies drive/recovery boundaries from velocity and
// acceleration alone; a seat sensor, when present, feeds the same machine as
// a second lower-priority transition source.
type StrokeStats struct {
	Phase            StrokePhase   `json:"phase"`
	Count            int           `json:"count"`
	StrokeStart      time.Time     `json:"-"`
	StrokeEnd        time.Time     `json:"-"`
	DriveDuration    time.Duration `json:"drive_duration"`
	RecoveryDuration time.Duration `json:"recovery_duration"`
	Rate             float64       `json:"rate"`          // spm, smoothed
	AvgRate          float64       `json:"avg_rate"`      // spm, session mean

	lastCounted bool
	rateSamples int
}

// Advance runs one classification step against the latest kinematic sample.
// The caller applies the cross-model entry actions for the returned
// transition (peak reset, drive-work reset, distance credit).
func (s *StrokeStats) Advance(now time.Time, velocity, accel, peakVelocity float64, cfg config.RowerConfig) strokeTransition {
	return s.step(eventVelocitySample, now, velocity, accel, peakVelocity, cfg)
}

// SeatCatch is the seat-position override: while idling or recovering with
// the wheel still turning, a seat crossing forces an immediate drive start.
func (s *StrokeStats) SeatCatch(now time.Time, velocity float64, cfg config.RowerConfig) strokeTransition {
	return s.step(eventSeatCatch, now, velocity, 0, 0, cfg)
}

// step is the single transition function both event variants feed into.
func (s *StrokeStats) step(ev strokeEvent, now time.Time, velocity, accel, peakVelocity float64, cfg config.RowerConfig) strokeTransition {
	switch s.Phase {
	case PhaseIdle:
		if ev == eventSeatCatch {
			if velocity > cfg.RecoveryVelocity {
				s.enterDrive(now)
				return strokeDriveStarted
			}
			return strokeNone
		}
		if velocity > cfg.DriveStartVelocity && accel > cfg.DriveAccelThreshold {
			s.enterDrive(now)
			return strokeDriveStarted
		}

	case PhaseDrive:
		// A seat crossing mid-drive carries no new information.
		if ev == eventVelocitySample && accel < 0 && velocity < driveEndVelocityRatio*peakVelocity {
			return s.endDrive(now)
		}

	case PhaseRecovery:
		if ev == eventSeatCatch {
			if velocity > cfg.RecoveryVelocity {
				s.closeCycle(now)
				s.enterDrive(now)
				return strokeDriveStarted
			}
			return strokeNone
		}
		if accel > cfg.DriveAccelThreshold {
			s.closeCycle(now)
			s.enterDrive(now)
			return strokeDriveStarted
		}
		if velocity < cfg.RecoveryVelocity {
			s.closeCycle(now)
			s.Phase = PhaseIdle
			return strokeWentIdle
		}
	}

	return strokeNone
}

// ForceIdle drops the machine back to Idle after a prolonged pulse gap.
func (s *StrokeStats) ForceIdle() {
	s.Phase = PhaseIdle
}

func (s *StrokeStats) enterDrive(now time.Time) {
	s.Phase = PhaseDrive
	s.StrokeStart = now
}

func (s *StrokeStats) endDrive(now time.Time) strokeTransition {
	s.Phase = PhaseRecovery
	s.StrokeEnd = now
	s.DriveDuration = now.Sub(s.StrokeStart)

	if s.DriveDuration < minDriveDuration {
		s.lastCounted = false
		return strokeDiscarded
	}

	s.Count++
	s.lastCounted = true
	return strokeCounted
}

// closeCycle records the recovery duration and, when the drive qualified,
// folds the completed drive+recovery cycle into the stroke rate.
func (s *StrokeStats) closeCycle(now time.Time) {
	if s.StrokeEnd.IsZero() {
		return
	}
	s.RecoveryDuration = now.Sub(s.StrokeEnd)

	if !s.lastCounted {
		return
	}

	cycle := s.DriveDuration + s.RecoveryDuration
	if cycle <= 0 {
		return
	}

	// Strokes per minute implied by this one cycle.
	raw := 60.0 / cycle.Seconds()
	if raw < minStrokeRate {
		raw = minStrokeRate
	}
	if raw > maxStrokeRate {
		raw = maxStrokeRate
	}

	if s.rateSamples == 0 {
		s.Rate = raw
	} else {
		s.Rate = rateSmoothingOld*s.Rate + rateSmoothingNew*raw
	}

	s.rateSamples++
	s.AvgRate += (s.Rate - s.AvgRate) / float64(s.rateSamples)
}
