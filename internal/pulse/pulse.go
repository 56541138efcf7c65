// Package pulse defines the sensor event contract and the capture sources
// that produce it. Every reader delivers debounced, per-sensor monotonic
// events; downstream code never sees raw edges.
package pulse

import "time"

// Sensor identifies which physical sensor produced a pulse.
type Sensor uint8

const (
	SensorFlywheel Sensor = iota // hall sensor on the flywheel
	SensorSeat                   // reed switch at the seat's catch position
)

func (s Sensor) String() string {
	switch s {
	case SensorFlywheel:
		return "flywheel"
	case SensorSeat:
		return "seat"
	default:
		return "unknown"
	}
}

// Event is a single timestamped sensor pulse. Events are handed to the
// engine by value, in arrival order per sensor.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Sensor    Sensor    `json:"sensor"`
}

// Reader is anything that can deliver pulse events over time: GPIO edges,
// a serial-attached sensor MCU, or a synthetic rower for development.
type Reader interface {
	Next() (Event, error)
}
