// Package ftms packs metrics snapshots into the fixed little-endian rower
// data record consumed by the fitness-machine protocol layer.
package ftms

import (
	"encoding/binary"

	"github.com/oarsense/rowmon/internal/engine"
)

// rowerDataFlags advertises which optional fields the record carries:
// total distance, both paces, both powers, expended energy and elapsed time.
const rowerDataFlags uint16 = 1<<2 | 1<<3 | 1<<4 | 1<<5 | 1<<6 | 1<<8 | 1<<11

// EncodeRowerData packs a snapshot into the wire record:
//
//	flags            u16
//	stroke rate      u8   0.5 spm resolution
//	stroke count     u16
//	total distance   u24  meters
//	inst. pace       u16  s/500m, 0 = unavailable
//	avg. pace        u16  s/500m, 0 = unavailable
//	inst. power      s16  W
//	avg. power       s16  W
//	total energy     u16  kcal
//	energy per hour  u16  kcal/h
//	energy per min   u8   kcal/min
//	elapsed time     u16  s
func EncodeRowerData(m engine.Metrics) []byte {
	buf := make([]byte, 0, 22)

	buf = binary.LittleEndian.AppendUint16(buf, rowerDataFlags)
	buf = append(buf, strokeRateHalves(m.Stroke.Rate))
	buf = binary.LittleEndian.AppendUint16(buf, clampU16(float64(m.Stroke.Count)))
	buf = appendUint24(buf, uint32(clampNonNeg(m.Distance.Total)))
	buf = binary.LittleEndian.AppendUint16(buf, packPace(m.Distance.Instantaneous))
	buf = binary.LittleEndian.AppendUint16(buf, packPace(m.Distance.Average))
	// Display power is the externally visible power value end-to-end.
	buf = binary.LittleEndian.AppendUint16(buf, uint16(packPower(m.Power.Display)))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(packPower(m.Power.Average)))
	buf = binary.LittleEndian.AppendUint16(buf, clampU16(m.Calories.Total))
	buf = binary.LittleEndian.AppendUint16(buf, clampU16(m.Calories.PerHour))
	buf = append(buf, clampU8(m.Calories.PerHour/60))
	buf = binary.LittleEndian.AppendUint16(buf, clampU16(m.Session.Elapsed.Seconds()))

	return buf
}

// strokeRateHalves converts spm to the protocol's 0.5 spm resolution.
func strokeRateHalves(spm float64) uint8 {
	return clampU8(spm * 2)
}

// packPace maps the engine's pace to the wire convention: 0 means
// unavailable, and anything past 9999 (including the sentinel) clamps to 0.
func packPace(pace float64) uint16 {
	if pace <= 0 || pace > 9999 {
		return 0
	}
	return uint16(pace)
}

func packPower(watts float64) int16 {
	if watts < 0 {
		return 0
	}
	if watts > 32767 {
		return 32767
	}
	return int16(watts)
}

func clampNonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 0xFFFFFF {
		return 0xFFFFFF
	}
	return v
}

func clampU8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clampU16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}

func appendUint24(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16))
}
