package engine

const (
	maxInstantPower = 2000.0 // watts, clamp for spike rejection

	// Fixed step used when integrating instantaneous power into work. This
	// is a nominal per-pulse interval, not the measured one; the numeric
	// behavior is pinned by tests and must not be silently replaced with a
	// real elapsed-time integral.
	workIntegrationStep = 0.05 // seconds

	// Concept2-style pace/power relation: P = 2.80 / (pace per meter)^3.
	paceToPowerCoefficient = 2.80

	displaySmoothingOld = 0.7
	displaySmoothingNew = 0.3

	// average_pace band inside which display power is derivable.
	displayPaceMin = 60.0
	displayPaceMax = 9999.0
)

// PowerEnergy tracks two deliberately distinct power values. Instantaneous
// is the raw physics (I*a*w + k*w^3), noisy by nature and clamped hard;
// Display is the pace-derived, EMA-smoothed value that goes to screens and
// protocols. They must never be conflated.
type PowerEnergy struct {
	Instantaneous float64 `json:"instantaneous"` // W
	Peak          float64 `json:"peak"`          // W
	Display       float64 `json:"display"`       // W
	DriveWork     float64 `json:"drive_work"`    // J, current drive phase
	TotalWork     float64 `json:"total_work"`    // J
	Average       float64 `json:"average"`       // W, mirrors Display
}

// Recompute derives instantaneous power from the current kinematic sample
// and, while driving, integrates it into the work accumulators using the
// fixed nominal step.
func (p *PowerEnergy) Recompute(inertia, dragCoefficient, velocity, accel float64, driving bool) {
	accelPower := inertia * accel * velocity
	dragPower := dragCoefficient * velocity * velocity * velocity

	power := accelPower + dragPower
	if power < 0 {
		power = 0
	}
	if power > maxInstantPower {
		power = maxInstantPower
	}
	p.Instantaneous = power

	if power > p.Peak {
		p.Peak = power
	}

	if driving && power > 0 {
		work := power * workIntegrationStep
		p.DriveWork += work
		p.TotalWork += work
	}
}

// UpdateDisplay refreshes the smoothed display power from average pace.
// Outside the derivable pace band the previous value is kept.
func (p *PowerEnergy) UpdateDisplay(averagePace float64) {
	if averagePace < displayPaceMin || averagePace >= displayPaceMax {
		return
	}

	pacePerMeter := averagePace / 500.0
	derived := paceToPowerCoefficient / (pacePerMeter * pacePerMeter * pacePerMeter)

	if p.Display == 0 {
		p.Display = derived
	} else {
		p.Display = displaySmoothingOld*p.Display + displaySmoothingNew*derived
	}
	p.Average = p.Display
}

// ResetDrive is the drive-entry action: a new stroke starts with empty drive
// work and a blanked display value that re-seeds on the next pace update.
func (p *PowerEnergy) ResetDrive() {
	p.DriveWork = 0
	p.Display = 0
	p.Average = 0
}
