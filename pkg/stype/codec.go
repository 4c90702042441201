package stype

import (
	"encoding/binary"
	"math"
)

// Fixed-width primitives are stored little-endian in the record (same
// byte order the ODS header and every on-disk struct in this module
// uses), but their key encoding is big-endian with a flipped sign bit
// so lexicographic byte comparison matches numeric comparison.

func decodeInt(v []byte, width int) int64 {
	u := decodeUint(v, width)
	switch width {
	case 4:
		return int64(int32(u))
	default:
		return int64(u)
	}
}

func decodeUint(v []byte, width int) uint64 {
	switch width {
	case 4:
		return uint64(binary.LittleEndian.Uint32(v))
	default:
		return binary.LittleEndian.Uint64(v)
	}
}

func encodeInt(dst []byte, width int, n int64) {
	if width == 4 {
		binary.LittleEndian.PutUint32(dst, uint32(int32(n)))
		return
	}
	binary.LittleEndian.PutUint64(dst, uint64(n))
}

func encodeUint(dst []byte, width int, n uint64) {
	if width == 4 {
		binary.LittleEndian.PutUint32(dst, uint32(n))
		return
	}
	binary.LittleEndian.PutUint64(dst, n)
}

func decodeFloat(v []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(v))
}

func encodeFloat(dst []byte, width int, f float64) {
	switch width {
	case 4:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(f)))
	case 16:
		// long double: stored as a double in the low 8 bytes, the
		// remaining 8 bytes of extended precision are left zeroed.
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
		for i := 8; i < 16; i++ {
			dst[i] = 0
		}
	default:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
	}
}

// orderPreservingInt returns a big-endian key with the sign bit
// flipped for signed types, so byte-lexicographic order equals numeric
// order.
func orderPreservingInt(v []byte, width int, signed bool) []byte {
	u := decodeUint(v, width)
	if signed {
		switch width {
		case 4:
			u = uint64(uint32(u) ^ 0x8000_0000)
		default:
			u ^= 1 << 63
		}
	}
	out := make([]byte, width)
	switch width {
	case 4:
		binary.BigEndian.PutUint32(out, uint32(u))
	default:
		binary.BigEndian.PutUint64(out, u)
	}
	return out
}

// orderPreservingFloat flips the encoding so IEEE-754 bit patterns sort
// the same as the floats they represent (standard trick: flip the sign
// bit for positives, flip every bit for negatives).
func orderPreservingFloat(v []byte) []byte {
	bits := binary.LittleEndian.Uint64(v[:8])
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, bits)
	return out
}

// escapeBytes null-terminates and escapes 0x00/0xFF so BYTE_ARRAY keys
// stay comparable and unambiguous when concatenated.
func escapeBytes(s []byte) []byte {
	escapes := 0
	for _, b := range s {
		if b == 0 || b == 0xFF {
			escapes++
		}
	}
	if escapes == 0 {
		out := make([]byte, len(s)+1)
		copy(out, s)
		return out
	}
	out := make([]byte, 0, len(s)+escapes+1)
	for _, b := range s {
		switch b {
		case 0:
			out = append(out, 0xFE, 0x00)
		case 0xFF:
			out = append(out, 0xFE, 0xFF)
		default:
			out = append(out, b)
		}
	}
	return append(out, 0)
}
