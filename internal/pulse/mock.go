package pulse

import (
	"math"
	"time"
)

// mockReader synthesizes the pulse train of a steady rower at roughly
// 24 strokes per minute: the flywheel speeds up over the drive, coasts down
// over the recovery, and a seat pulse fires at each catch.
type mockReader struct {
	magnets  int
	next     time.Time
	cycle    time.Duration // full stroke period
	phaseOff time.Duration // position within the current stroke
	seatSent bool
}

// NewMockReader returns a Reader that emits a synthetic stroke pattern in
// real time, for development without sensors attached.
func NewMockReader(magnetsPerRevolution int) Reader {
	if magnetsPerRevolution < 1 {
		magnetsPerRevolution = 4
	}
	return &mockReader{
		magnets: magnetsPerRevolution,
		next:    time.Now(),
		cycle:   2500 * time.Millisecond,
	}
}

// velocityAt models flywheel angular velocity across one stroke: ramp from
// 4 to 14 rad/s during the 900ms drive, exponential-ish decay back down over
// the recovery.
func (m *mockReader) velocityAt(off time.Duration) float64 {
	const drive = 900 * time.Millisecond
	if off < drive {
		f := float64(off) / float64(drive)
		return 4 + 10*f
	}
	f := float64(off-drive) / float64(m.cycle-drive)
	return 4 + 10*math.Exp(-3*f)
}

// Next sleeps until the next synthetic pulse is due and returns it.
func (m *mockReader) Next() (Event, error) {
	if m.phaseOff == 0 && !m.seatSent {
		// Catch: fire the seat pulse at the start of each stroke.
		m.seatSent = true
		time.Sleep(time.Until(m.next))
		return Event{Timestamp: m.next, Sensor: SensorSeat}, nil
	}

	omega := m.velocityAt(m.phaseOff)
	delta := time.Duration(float64(time.Second) * (2 * math.Pi / float64(m.magnets)) / omega)

	m.next = m.next.Add(delta)
	m.phaseOff += delta
	if m.phaseOff >= m.cycle {
		m.phaseOff = 0
		m.seatSent = false
	}

	time.Sleep(time.Until(m.next))
	return Event{Timestamp: m.next, Sensor: SensorFlywheel}, nil
}
