package pulse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
)

// serialReader consumes pulse frames from a sensor MCU over UART. The MCU
// timestamps edges with its own microsecond counter and streams one frame
// per line:
//
//	F <usec>\n   flywheel pulse
//	S <usec>\n   seat pulse
//
// Frames arrive in capture order, already debounced on the MCU.
type serialReader struct {
	r io.ReadCloser
	s *bufio.Scanner

	// Mapping from the MCU's microsecond counter to wall time, anchored at
	// the first frame seen.
	epoch     time.Time
	firstUsec uint64
	anchored  bool
}

// NewSerialReader opens the serial port the sensor MCU is attached to.
func NewSerialReader(port string, baud uint) (Reader, error) {
	opts := serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	p, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", port, err)
	}

	return &serialReader{r: p, s: bufio.NewScanner(p)}, nil
}

// Next reads frames until a valid pulse line appears. Malformed lines are
// skipped; only transport errors are returned.
func (r *serialReader) Next() (Event, error) {
	for r.s.Scan() {
		line := strings.TrimSpace(r.s.Text())
		if line == "" {
			continue
		}

		ev, ok := r.parseFrame(line)
		if !ok {
			continue
		}
		return ev, nil
	}

	if err := r.s.Err(); err != nil {
		return Event{}, fmt.Errorf("serial read: %w", err)
	}
	return Event{}, io.EOF
}

func (r *serialReader) parseFrame(line string) (Event, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Event{}, false
	}

	var sensor Sensor
	switch fields[0] {
	case "F":
		sensor = SensorFlywheel
	case "S":
		sensor = SensorSeat
	default:
		return Event{}, false
	}

	usec, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Event{}, false
	}

	if !r.anchored {
		r.epoch = time.Now()
		r.firstUsec = usec
		r.anchored = true
	}
	if usec < r.firstUsec {
		// MCU counter wrapped or rebooted, re-anchor.
		r.epoch = time.Now()
		r.firstUsec = usec
	}

	ts := r.epoch.Add(time.Duration(usec-r.firstUsec) * time.Microsecond)
	return Event{Timestamp: ts, Sensor: sensor}, true
}

// Close releases the serial port.
func (r *serialReader) Close() error {
	return r.r.Close()
}
