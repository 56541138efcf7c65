package engine

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestCalibrationStart(t *testing.T) {
	var c Calibration
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	c.Start(0.000125, now)

	if c.State != CalWaiting {
		t.Errorf("State = %v, want waiting", c.State)
	}
	if !c.Active() {
		t.Error("Active should be true while waiting")
	}
	if c.DragCoefficient != 0.000125 {
		t.Errorf("DragCoefficient = %v, want 0.000125", c.DragCoefficient)
	}
}

func TestCalibrationWaitingToSpinup(t *testing.T) {
	var c Calibration
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	c.Start(0.000125, now)
	c.Update(4.2, now.Add(time.Second))

	if c.State != CalSpinup {
		t.Errorf("State = %v, want spinup", c.State)
	}
	if c.PeakVelocity != 4.2 {
		t.Errorf("PeakVelocity = %v, want the first sample", c.PeakVelocity)
	}
}

func TestCalibrationSpindownNeedsSustainedDrop(t *testing.T) {
	var c Calibration
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	c.Start(0.000125, now)
	c.Update(10, now.Add(1*time.Second)) // peak

	// Two samples below 95% of peak are not yet a spindown.
	c.Update(9, now.Add(2*time.Second))
	c.Update(9, now.Add(3*time.Second))
	if c.State != CalSpinup {
		t.Fatalf("State = %v after 2 drops, want spinup", c.State)
	}

	c.Update(9, now.Add(4*time.Second))
	if c.State != CalSpindown {
		t.Errorf("State = %v after 3 drops, want spindown", c.State)
	}
}

func TestCalibrationNewPeakResetsConfirmation(t *testing.T) {
	var c Calibration
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	c.Start(0.000125, now)
	c.Update(10, now.Add(1*time.Second))
	c.Update(9, now.Add(2*time.Second))
	c.Update(9, now.Add(3*time.Second))
	c.Update(11, now.Add(4*time.Second)) // still spinning up

	c.Update(10, now.Add(5*time.Second))
	c.Update(10, now.Add(6*time.Second))
	if c.State != CalSpinup {
		t.Errorf("State = %v, want spinup: the drop counter restarts after a new peak", c.State)
	}
}

func TestCalibrationCompletes(t *testing.T) {
	const k = 0.001
	var c Calibration
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	c.Start(k, now)
	c.Update(10, now.Add(1*time.Second)) // peak at t=1
	c.Update(9, now.Add(2*time.Second))
	c.Update(9, now.Add(3*time.Second))
	c.Update(9, now.Add(4*time.Second)) // spindown begins, anchored at the peak
	c.Update(5, now.Add(5*time.Second))
	c.Update(0.4, now.Add(6*time.Second)) // stopped

	if c.State != CalComplete {
		t.Fatalf("State = %v, want complete (%s)", c.State, c.StatusMessage)
	}

	// Trapezoid over (10 @ t=1) -> (5 @ t=5) -> (0.4 @ t=6), then
	// I = -k * integral / (0.4 - 10).
	integral := 0.5*(10*10+5*5)*4 + 0.5*(5*5+0.4*0.4)*1
	want := -k * integral / (0.4 - 10)

	if math.Abs(c.CalculatedInertia-want) > 1e-9 {
		t.Errorf("CalculatedInertia = %v, want %v", c.CalculatedInertia, want)
	}
	if c.Active() {
		t.Error("Active should be false once complete")
	}
}

func TestCalibrationStallTimeout(t *testing.T) {
	var c Calibration
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	c.Start(0.000125, now)
	c.CheckTimeout(now.Add(61 * time.Second))

	if c.State != CalFailed {
		t.Errorf("State = %v, want failed", c.State)
	}
	if !strings.Contains(c.StatusMessage, "timed out") {
		t.Errorf("StatusMessage = %q, want a timeout explanation", c.StatusMessage)
	}
}

func TestCalibrationStalledSampleIgnored(t *testing.T) {
	var c Calibration
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	c.Start(0.000125, now)
	c.Update(10, now.Add(61*time.Second))

	if c.State != CalFailed {
		t.Errorf("State = %v, want failed: a late sample fails rather than progresses", c.State)
	}
}

func TestCalibrationCancelFromAnyState(t *testing.T) {
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	setups := map[string]func(c *Calibration){
		"waiting": func(c *Calibration) {
			c.Start(0.001, now)
		},
		"spinup": func(c *Calibration) {
			c.Start(0.001, now)
			c.Update(10, now.Add(time.Second))
		},
		"spindown": func(c *Calibration) {
			c.Start(0.001, now)
			c.Update(10, now.Add(1*time.Second))
			c.Update(9, now.Add(2*time.Second))
			c.Update(9, now.Add(3*time.Second))
			c.Update(9, now.Add(4*time.Second))
		},
		"complete": func(c *Calibration) {
			c.Start(0.001, now)
			c.Update(10, now.Add(1*time.Second))
			c.Update(9, now.Add(2*time.Second))
			c.Update(9, now.Add(3*time.Second))
			c.Update(9, now.Add(4*time.Second))
			c.Update(0.3, now.Add(5*time.Second))
		},
		"failed": func(c *Calibration) {
			c.Start(0.001, now)
			c.CheckTimeout(now.Add(2 * time.Minute))
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			var c Calibration
			setup(&c)
			c.Cancel()

			if c.State != CalIdle {
				t.Errorf("State after cancel = %v, want idle", c.State)
			}
			if c.Active() {
				t.Error("Active should be false after cancel")
			}
		})
	}
}

func TestCalibrationApply(t *testing.T) {
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	t.Run("fails unless complete", func(t *testing.T) {
		var c Calibration
		c.Start(0.001, now)

		if _, err := c.Apply(); err == nil {
			t.Error("Apply should fail while waiting")
		}
		if c.State != CalWaiting {
			t.Errorf("State = %v, want waiting untouched by a failed apply", c.State)
		}
	})

	t.Run("returns the measurement and resets", func(t *testing.T) {
		var c Calibration
		c.Start(0.001, now)
		c.Update(10, now.Add(1*time.Second))
		c.Update(9, now.Add(2*time.Second))
		c.Update(9, now.Add(3*time.Second))
		c.Update(9, now.Add(4*time.Second))
		c.Update(0.3, now.Add(5*time.Second))

		if c.State != CalComplete {
			t.Fatalf("setup: State = %v, want complete", c.State)
		}
		measured := c.CalculatedInertia

		got, err := c.Apply()
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if got != measured {
			t.Errorf("Apply = %v, want %v", got, measured)
		}
		if c.State != CalIdle {
			t.Errorf("State = %v, want idle after apply", c.State)
		}
	})
}
