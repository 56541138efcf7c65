package engine

import (
	"fmt"
	"time"
)

// CalState is the inertia calibration procedure's state. The procedure is a
// machine of its own because the flywheel is hand-spun during calibration:
// ordinary stroke and drag semantics must not run while it is active.
type CalState int

const (
	CalIdle CalState = iota
	CalWaiting
	CalSpinup
	CalSpindown
	CalComplete
	CalFailed
)

func (s CalState) String() string {
	switch s {
	case CalIdle:
		return "idle"
	case CalWaiting:
		return "waiting"
	case CalSpinup:
		return "spinup"
	case CalSpindown:
		return "spindown"
	case CalComplete:
		return "complete"
	case CalFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText makes states readable in JSON payloads.
func (s CalState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	// Spinup->Spindown needs a sustained drop from the running peak, not a
	// single noisy sample.
	spindownPeakRatio   = 0.95
	spindownConfirmHits = 3

	// The wheel is considered stopped below this.
	spindownStopVelocity = 0.5 // rad/s

	// No progress within a state for this long fails the run.
	calStallTimeout = 60 * time.Second

	// Drag samples needed before the live estimate is trusted over the
	// configured default when a calibration starts.
	calMinDragSamples = 10
)

// Calibration is the guided spin-up/spin-down measurement that solves for
// the flywheel's moment of inertia: I = -k * integral(w^2 dt) / delta_w over
// the spindown interval, using the drag coefficient captured at Start.
type Calibration struct {
	State             CalState  `json:"state"`
	StartTime         time.Time `json:"start_time"`
	PeakTime          time.Time `json:"peak_time"`
	StopTime          time.Time `json:"stop_time"`
	PeakVelocity      float64   `json:"peak_velocity"`
	CalculatedInertia float64   `json:"calculated_inertia"`
	DragCoefficient   float64   `json:"drag_coefficient"`
	SampleCount       int       `json:"sample_count"`
	StatusMessage     string    `json:"status_message"`

	belowPeak    int
	prevVelocity float64
	prevTime     time.Time
	integral     float64 // integral of w^2 dt over the spindown
	enteredState time.Time
}

// Start arms the procedure with the drag coefficient to solve against.
func (c *Calibration) Start(dragCoefficient float64, now time.Time) {
	*c = Calibration{
		State:           CalWaiting,
		StartTime:       now,
		DragCoefficient: dragCoefficient,
		enteredState:    now,
		StatusMessage:   "spin the flywheel up by hand, then let it coast",
	}
}

// Active reports whether velocity samples should be routed here instead of
// the stroke pipeline.
func (c *Calibration) Active() bool {
	switch c.State {
	case CalWaiting, CalSpinup, CalSpindown:
		return true
	default:
		return false
	}
}

// Update feeds one velocity sample into the procedure.
func (c *Calibration) Update(velocity float64, now time.Time) {
	if !c.Active() {
		return
	}
	if c.stalled(now) {
		return
	}

	switch c.State {
	case CalWaiting:
		if velocity > 0 {
			c.setState(CalSpinup, now)
			c.PeakVelocity = velocity
			c.PeakTime = now
			c.StatusMessage = "spinning up"
		}

	case CalSpinup:
		c.SampleCount++
		if velocity > c.PeakVelocity {
			c.PeakVelocity = velocity
			c.PeakTime = now
			c.belowPeak = 0
			c.enteredState = now
			return
		}
		if velocity < spindownPeakRatio*c.PeakVelocity {
			c.belowPeak++
			if c.belowPeak >= spindownConfirmHits {
				c.setState(CalSpindown, now)
				// Integrate from the peak; the few confirmation samples
				// between peak and here are close enough to the peak value.
				c.prevVelocity = c.PeakVelocity
				c.prevTime = c.PeakTime
				c.integral = 0
				c.StatusMessage = "coasting down, keep hands off"
			}
		}

	case CalSpindown:
		c.SampleCount++

		dt := now.Sub(c.prevTime).Seconds()
		if dt > 0 {
			c.integral += 0.5 * (c.prevVelocity*c.prevVelocity + velocity*velocity) * dt
		}
		c.prevVelocity = velocity
		c.prevTime = now

		if velocity < spindownStopVelocity {
			c.finish(velocity, now)
		}
	}
}

// CheckTimeout applies the stall guard between samples, so a wheel that
// simply stops emitting pulses still fails instead of hanging.
func (c *Calibration) CheckTimeout(now time.Time) {
	if !c.Active() {
		return
	}
	c.stalled(now)
}

func (c *Calibration) stalled(now time.Time) bool {
	if now.Sub(c.enteredState) <= calStallTimeout {
		return false
	}
	c.StatusMessage = fmt.Sprintf("calibration timed out with no progress while %s", c.State)
	c.State = CalFailed
	return true
}

func (c *Calibration) finish(velocity float64, now time.Time) {
	c.StopTime = now

	deltaV := velocity - c.PeakVelocity // negative by construction
	if deltaV >= 0 || c.integral <= 0 {
		c.State = CalFailed
		c.StatusMessage = "spindown produced no usable decay"
		return
	}

	inertia := -c.DragCoefficient * c.integral / deltaV
	if inertia <= 0 {
		c.State = CalFailed
		c.StatusMessage = "solved inertia was not positive; check drag calibration"
		return
	}

	c.CalculatedInertia = inertia
	c.State = CalComplete
	c.StatusMessage = fmt.Sprintf("measured inertia %.4f kg*m^2 from %d samples", inertia, c.SampleCount)
}

// Cancel forces Idle from any state, unconditionally.
func (c *Calibration) Cancel() {
	*c = Calibration{State: CalIdle, StatusMessage: "cancelled"}
}

// Apply returns the measured inertia and resets the procedure. It fails
// unless a measurement actually completed.
func (c *Calibration) Apply() (float64, error) {
	if c.State != CalComplete {
		return 0, fmt.Errorf("no completed calibration to apply (state %s)", c.State)
	}
	inertia := c.CalculatedInertia
	*c = Calibration{State: CalIdle, StatusMessage: "applied"}
	return inertia, nil
}

func (c *Calibration) setState(s CalState, now time.Time) {
	c.State = s
	c.enteredState = now
}
