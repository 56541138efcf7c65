package engine

// Drag calibration bounds. During unpowered coasting the only torque on the
// flywheel is drag (I*a = -k*w^2), so k is observable exactly when the stroke
// machine says Recovery and the wheel is decelerating. Samples taken near
// zero velocity amplify quantization noise and are skipped; samples outside
// the physical band are phase-misclassification artifacts and are discarded.
const (
	dragMinVelocity        = 1.0  // rad/s
	dragMaxCoefficient     = 0.01 // N*m*s^2
	dragSmoothingOld       = 0.95
	dragSmoothingNew       = 0.05
	dragCalibrationSamples = 50
)

// DragModel is the online estimate of the flywheel drag coefficient.
type DragModel struct {
	Coefficient float64 `json:"coefficient"`  // k, N*m*s^2
	Factor      float64 `json:"factor"`       // k * 1e6, the displayed "drag factor"
	SampleCount int     `json:"sample_count"` // accepted coasting samples
	Complete    bool    `json:"complete"`
}

// NewDragModel seeds the estimator with the configured coefficient so power
// is plausible before the first coasting phase.
func NewDragModel(initialCoefficient float64) DragModel {
	return DragModel{
		Coefficient: initialCoefficient,
		Factor:      initialCoefficient * 1e6,
	}
}

// Observe folds one coasting sample into the estimate. The caller guarantees
// phase == Recovery and accel < 0. Returns whether the sample was accepted.
func (d *DragModel) Observe(inertia, velocity, accel float64) bool {
	if velocity < dragMinVelocity && velocity > -dragMinVelocity {
		return false
	}

	measured := -inertia * accel / (velocity * velocity)
	if measured <= 0 || measured > dragMaxCoefficient {
		return false
	}

	if d.SampleCount == 0 {
		d.Coefficient = measured
	} else {
		d.Coefficient = dragSmoothingOld*d.Coefficient + dragSmoothingNew*measured
	}
	d.Factor = d.Coefficient * 1e6

	d.SampleCount++
	if !d.Complete && d.SampleCount >= dragCalibrationSamples {
		d.Complete = true
	}

	return true
}

// Recalibrate drops the accumulated samples and re-seeds the estimator; the
// completion latch only ever reverts through this path.
func (d *DragModel) Recalibrate(initialCoefficient float64) {
	*d = NewDragModel(initialCoefficient)
}
