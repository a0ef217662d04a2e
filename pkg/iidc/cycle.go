package iidc

import "encoding/binary"

// CycleWrapMicros is the period of the 7-bit cycle timer seconds field.
const CycleWrapMicros = 128_000_000

// CycleMicros converts a cycle timer value (7-bit seconds, 13-bit cycle
// count of 125 us, 12-bit offset of 1/3072 cycle) to microseconds.
func CycleMicros(c uint32) int64 {
	sec := int64((c >> 25) & 0x7f)
	cycles := int64((c & 0x01fff000) >> 12)
	offset := int64(c & 0xfff)
	return sec*1_000_000 + cycles*125 + offset*125/3072
}

// EmbeddedCycle extracts the cycle timer a camera embedded in the first
// quadlet of a frame. The low nibble carries no time.
func EmbeddedCycle(frame []byte) (uint32, bool) {
	if len(frame) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(frame[:4]) & 0xfffffff0, true
}

// ExposureTime maps an embedded cycle timer to wall-clock microseconds given
// a simultaneous sample (localMicros, now) of the local clock and bus cycle
// timer.
func ExposureTime(localMicros int64, now, embedded uint32) int64 {
	diff := CycleMicros(now) - CycleMicros(embedded)
	if diff < 0 {
		diff += CycleWrapMicros
	}
	return localMicros - diff
}
