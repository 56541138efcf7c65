package engine

import (
	"context"
	"sync"
	"time"

	"github.com/oarsense/rowmon/internal/config"
	"github.com/oarsense/rowmon/internal/pulse"
)

// Monitor owns the MetricsAggregate and runs the whole pulse-to-metrics
// pipeline. Exactly one goroutine (Run) mutates the aggregate through
// ProcessPulse and Tick; every control-surface method is mutex-guarded and
// safe to call from any other goroutine. Readers get torn-free value copies
// through Snapshot.
type Monitor struct {
	mu  sync.Mutex
	cfg config.RowerConfig
	m   Metrics

	active     bool
	autoPaused bool

	lastSampleAt       time.Time
	lastSampleDistance float64
	onSample           func(Sample)
}

// New builds a Monitor seeded from the rower configuration.
func New(cfg config.RowerConfig) *Monitor {
	return &Monitor{
		cfg: cfg,
		m:   newMetrics(cfg),
	}
}

func newMetrics(cfg config.RowerConfig) Metrics {
	return Metrics{
		Drag:            NewDragModel(cfg.InitialDragCoefficient),
		Distance:        NewDistancePace(),
		MomentOfInertia: cfg.MomentOfInertia,
	}
}

// OnSample registers the per-second sample sink. The callback runs on the
// processing goroutine and must not block or call back into the Monitor.
func (mon *Monitor) OnSample(fn func(Sample)) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.onSample = fn
}

// Run is the single sequential processing loop: it blocks on the next pulse
// or the periodic tick until the context is cancelled or the event channel
// closes.
func (mon *Monitor) Run(ctx context.Context, events <-chan pulse.Event, tickEvery time.Duration) error {
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			mon.ProcessPulse(ev)
		case t := <-ticker.C:
			mon.Tick(t)
		}
	}
}

// ProcessPulse applies one sensor event. Flywheel pulses drive kinematics,
// drag calibration and the power model before feeding the stroke machine;
// seat pulses are the lower-priority transition source into the same
// machine. Events must arrive in order per sensor.
func (mon *Monitor) ProcessPulse(ev pulse.Event) {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	now := ev.Timestamp

	if ev.Sensor == pulse.SensorSeat {
		if mon.m.Calibration.Active() {
			return
		}
		if t := mon.m.Stroke.SeatCatch(now, mon.m.Kinematics.Velocity, mon.cfg); t == strokeDriveStarted {
			mon.enterDrive()
		}
		return
	}

	k := &mon.m.Kinematics
	if !k.ProcessPulse(now, mon.cfg.MagnetsPerRevolution) {
		return
	}

	if mon.autoPaused {
		mon.m.Session.Resume(now)
		mon.autoPaused = false
		mon.reanchorSample(now)
	}

	// Hand-spun calibration consumes the velocity stream exclusively;
	// stroke and drag semantics must not run while it is active.
	if mon.m.Calibration.Active() {
		mon.m.Calibration.Update(k.Velocity, now)
		return
	}

	if mon.m.Stroke.Phase == PhaseRecovery && k.Acceleration < 0 {
		mon.m.Drag.Observe(mon.m.MomentOfInertia, k.Velocity, k.Acceleration)
	}

	mon.m.Power.Recompute(
		mon.m.MomentOfInertia,
		mon.m.Drag.Coefficient,
		k.Velocity,
		k.Acceleration,
		mon.m.Stroke.Phase == PhaseDrive,
	)

	switch mon.m.Stroke.Advance(now, k.Velocity, k.Acceleration, k.PeakStrokeVelocity, mon.cfg) {
	case strokeDriveStarted:
		mon.enterDrive()
	case strokeCounted:
		mon.completeStroke(now)
	}
}

// enterDrive applies the cross-model drive entry actions.
func (mon *Monitor) enterDrive() {
	mon.m.Kinematics.PeakStrokeVelocity = mon.m.Kinematics.Velocity
	mon.m.Power.ResetDrive()
}

// completeStroke credits distance for a qualifying drive and refreshes the
// elapsed-derived values that depend on it.
func (mon *Monitor) completeStroke(now time.Time) {
	mon.m.Distance.CompleteStroke(mon.m.Power.DriveWork)
	mon.m.Power.DriveWork = 0

	elapsed := mon.m.Session.ElapsedAt(now)
	mon.m.Distance.UpdatePace(elapsed)
	mon.m.Power.UpdateDisplay(mon.m.Distance.Average)
	mon.refreshDerived(now)
}

// Tick runs the periodic housekeeping: calibration stall guard, idle
// fallback, auto-pause, derived-value refresh and per-second sampling.
func (mon *Monitor) Tick(now time.Time) {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	if mon.m.Calibration.Active() {
		mon.m.Calibration.CheckTimeout(now)
	}

	k := &mon.m.Kinematics
	sincePulse := time.Duration(0)
	if !k.LastPulse.IsZero() {
		sincePulse = now.Sub(k.LastPulse)
	}

	if mon.cfg.IdleTimeoutSeconds > 0 && sincePulse > secondsDuration(mon.cfg.IdleTimeoutSeconds) {
		if mon.m.Stroke.Phase != PhaseIdle {
			mon.m.Stroke.ForceIdle()
		}
		k.Still()
	}

	if mon.active && !mon.m.Session.Paused &&
		mon.cfg.AutoPauseSeconds > 0 && !k.LastPulse.IsZero() &&
		sincePulse > secondsDuration(mon.cfg.AutoPauseSeconds) {
		mon.m.Session.Pause(now)
		mon.autoPaused = true
	}

	mon.refreshDerived(now)
	mon.emitSample(now)
}

func (mon *Monitor) refreshDerived(now time.Time) {
	elapsed := mon.m.Session.ElapsedAt(now)
	mon.m.Session.Elapsed = elapsed
	mon.m.Distance.UpdatePace(elapsed)
	mon.m.Calories.Update(mon.m.Power.Average, elapsed)
}

func (mon *Monitor) emitSample(now time.Time) {
	if !mon.active || mon.m.Session.Paused {
		return
	}
	if mon.lastSampleAt.IsZero() {
		mon.lastSampleAt = now
		mon.lastSampleDistance = mon.m.Distance.Total
		return
	}

	dt := now.Sub(mon.lastSampleAt)
	if dt < time.Second {
		return
	}

	deltaMeters := mon.m.Distance.Total - mon.lastSampleDistance
	sample := Sample{
		PowerW:          clampU16(mon.m.Power.Display),
		VelocityCmS:     clampU16(deltaMeters / dt.Seconds() * 100),
		HeartRate:       mon.m.HeartRate,
		DistanceDeltaDm: clampU16(deltaMeters * 10),
	}

	mon.lastSampleAt = now
	mon.lastSampleDistance = mon.m.Distance.Total

	if mon.onSample != nil {
		mon.onSample(sample)
	}
}

// Snapshot returns a torn-free value copy of the aggregate.
func (mon *Monitor) Snapshot() Metrics {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.m
}

// StartSession resets the aggregate (drag calibration survives) and anchors
// the session clock.
func (mon *Monitor) StartSession(now time.Time) {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	mon.resetLocked()
	mon.m.Session.Start(now)
	mon.active = true
}

// EndSession stops sampling and returns the summary for the history writer.
func (mon *Monitor) EndSession(now time.Time) Summary {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	mon.refreshDerived(now)
	mon.active = false

	return Summary{
		StartedAt:     mon.m.Session.StartTime,
		EndedAt:       now,
		Elapsed:       mon.m.Session.Elapsed,
		Distance:      mon.m.Distance.Total,
		Strokes:       mon.m.Stroke.Count,
		AvgPace:       mon.m.Distance.Average,
		BestPace:      mon.m.Distance.Best,
		AvgPower:      mon.m.Power.Average,
		PeakPower:     mon.m.Power.Peak,
		Calories:      mon.m.Calories.Total,
		AvgStrokeRate: mon.m.Stroke.AvgRate,
		DragFactor:    mon.m.Drag.Factor,
	}
}

// Active reports whether a session is running.
func (mon *Monitor) Active() bool {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.active
}

// Pause freezes session time.
func (mon *Monitor) Pause(now time.Time) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.m.Session.Pause(now)
	mon.autoPaused = false
	mon.refreshDerived(now)
}

// Resume unfreezes session time.
func (mon *Monitor) Resume(now time.Time) {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	wasPaused := mon.m.Session.Paused
	mon.m.Session.Resume(now)
	mon.autoPaused = false
	if wasPaused {
		mon.reanchorSample(now)
	}
	mon.refreshDerived(now)
}

// reanchorSample restarts the per-second sample interval after a pause so
// the first post-resume sample's velocity is not averaged over the gap.
func (mon *Monitor) reanchorSample(now time.Time) {
	if mon.lastSampleAt.IsZero() {
		return
	}
	mon.lastSampleAt = now
	mon.lastSampleDistance = mon.m.Distance.Total
}

// Reset zeroes the aggregate and the session gate. The drag model, its
// completion latch, and the applied moment of inertia survive resets.
func (mon *Monitor) Reset() {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.resetLocked()
}

func (mon *Monitor) resetLocked() {
	drag := mon.m.Drag
	inertia := mon.m.MomentOfInertia
	hr := mon.m.HeartRate

	mon.m = newMetrics(mon.cfg)
	mon.m.Drag = drag
	mon.m.MomentOfInertia = inertia
	mon.m.HeartRate = hr

	mon.active = false
	mon.autoPaused = false
	mon.lastSampleAt = time.Time{}
	mon.lastSampleDistance = 0
}

// RecalibrateDrag discards the drag estimate and its completion latch,
// re-seeding from the configured coefficient.
func (mon *Monitor) RecalibrateDrag() {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.m.Drag.Recalibrate(mon.cfg.InitialDragCoefficient)
}

// SetHeartRate injects the latest externally measured heart rate.
func (mon *Monitor) SetHeartRate(bpm uint8) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.m.HeartRate = bpm
}

// StartCalibration arms the inertia measurement. The live drag estimate is
// used once it has enough samples to be trusted; before that the configured
// default applies.
func (mon *Monitor) StartCalibration(now time.Time) {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	k := mon.cfg.InitialDragCoefficient
	if mon.m.Drag.SampleCount >= calMinDragSamples {
		k = mon.m.Drag.Coefficient
	}
	mon.m.Calibration.Start(k, now)
}

// UpdateCalibration feeds an externally supplied velocity sample into the
// calibration machine, for callers that bypass the pulse pipeline.
func (mon *Monitor) UpdateCalibration(velocity float64, now time.Time) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.m.Calibration.Update(velocity, now)
}

// CancelCalibration aborts from any state. It always wins, including against
// a concurrently delivered velocity update.
func (mon *Monitor) CancelCalibration() {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.m.Calibration.Cancel()
}

// ApplyCalibration copies a completed measurement into the live moment of
// inertia used by the kinematics, drag and power models.
func (mon *Monitor) ApplyCalibration() error {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	inertia, err := mon.m.Calibration.Apply()
	if err != nil {
		return err
	}
	mon.m.MomentOfInertia = inertia
	return nil
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
