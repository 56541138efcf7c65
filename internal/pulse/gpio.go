package pulse

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// debounceWindow suppresses contact bounce on the reed/hall inputs. Real
// inter-pulse intervals are >= 1ms even at peak flywheel speed.
const debounceWindow = 500 * time.Microsecond

type gpioReader struct {
	events chan Event
}

// NewGPIOReader opens the flywheel pin (and optionally the seat pin) for
// rising-edge capture and returns a Reader merging both streams. seatPin may
// be empty for machines without a seat sensor.
func NewGPIOReader(flywheelPin, seatPin string) (Reader, error) {
	// Initialize periph host once.
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	r := &gpioReader{events: make(chan Event, 64)}

	if err := r.watch(flywheelPin, SensorFlywheel); err != nil {
		return nil, err
	}
	if seatPin != "" {
		if err := r.watch(seatPin, SensorSeat); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *gpioReader) watch(name string, sensor Sensor) error {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return fmt.Errorf("%s pin %q not found", sensor, name)
	}
	if err := pin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return fmt.Errorf("%s pin %q edge setup: %w", sensor, name, err)
	}

	go func() {
		var last time.Time
		for {
			if !pin.WaitForEdge(-1) {
				continue
			}
			now := time.Now()
			if !last.IsZero() && now.Sub(last) < debounceWindow {
				continue
			}
			last = now
			// Drop rather than block if the consumer stalls; kinematics
			// cares about fresh timestamps, not a complete backlog.
			select {
			case r.events <- Event{Timestamp: now, Sensor: sensor}:
			default:
			}
		}
	}()

	return nil
}

// Next blocks until the next pulse on either pin.
func (r *gpioReader) Next() (Event, error) {
	return <-r.events, nil
}
