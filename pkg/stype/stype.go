// Package stype describes the fixed set of attribute types the object
// store understands: their in-record footprint, their out-of-line
// element size, their default index key encoding, and the per-type
// function vectors (size/to-string/from-string/key-value) attributes
// dispatch through.
package stype

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Type is one of the fixed attribute type tags.
type Type uint32

const (
	INT32 Type = iota
	INT64
	UINT32
	UINT64
	FLOAT
	DOUBLE
	LONGDOUBLE
	TIMESTAMP
	OBJ
	BYTEARRAY
	INT32ARRAY
	INT64ARRAY
	UINT32ARRAY
	UINT64ARRAY
	FLOATARRAY
	DOUBLEARRAY
	LONGDOUBLEARRAY
	OBJARRAY

	typeCount
)

// Last is the highest valid type tag, used by schema_attr_add's range check.
const Last = OBJARRAY

func (t Type) String() string {
	if int(t) >= len(names) {
		return fmt.Sprintf("Type(%d)", t)
	}
	return names[t]
}

// Valid reports whether t is one of the fixed type tags.
func (t Type) Valid() bool { return t <= Last }

// IsRef reports whether an attribute of this type stores its payload
// out-of-line via a Ref (OBJ and every array kind).
func (t Type) IsRef() bool { return t >= OBJ }

// IsArray reports whether an attribute of this type is array-valued.
func (t Type) IsArray() bool { return t >= BYTEARRAY }

var names = [typeCount]string{
	INT32:           "INT32",
	INT64:           "INT64",
	UINT32:          "UINT32",
	UINT64:          "UINT64",
	FLOAT:           "FLOAT",
	DOUBLE:          "DOUBLE",
	LONGDOUBLE:      "LONG_DOUBLE",
	TIMESTAMP:       "TIMESTAMP",
	OBJ:             "OBJ",
	BYTEARRAY:       "BYTE_ARRAY",
	INT32ARRAY:      "INT32_ARRAY",
	INT64ARRAY:      "INT64_ARRAY",
	UINT32ARRAY:     "UINT32_ARRAY",
	UINT64ARRAY:     "UINT64_ARRAY",
	FLOATARRAY:      "FLOAT_ARRAY",
	DOUBLEARRAY:     "DOUBLE_ARRAY",
	LONGDOUBLEARRAY: "LONG_DOUBLE_ARRAY",
	OBJARRAY:        "OBJ_ARRAY",
}

// ParseType resolves name (case-sensitive, matching the strings
// String() produces) back into a Type tag, the reverse lookup
// cmd/sosctl needs to turn a JSON schema template's type names into
// attribute types.
func ParseType(name string) (Type, error) {
	for t, n := range names {
		if n == name {
			return Type(t), nil
		}
	}
	return 0, fmt.Errorf("stype: unknown type %q", name)
}

// footprint holds the in-record footprint of each type, in bytes.
// Every array kind (including OBJ_ARRAY) is 8: a single Ref. OBJ is 16:
// a Ref plus an owning-partition Ref. LONG_DOUBLE is 16.
var footprint = [typeCount]uint32{
	INT32:           4,
	INT64:           8,
	UINT32:          4,
	UINT64:          8,
	FLOAT:           4,
	DOUBLE:          8,
	LONGDOUBLE:      16,
	TIMESTAMP:       8,
	OBJ:             16,
	BYTEARRAY:       8,
	INT32ARRAY:      8,
	INT64ARRAY:      8,
	UINT32ARRAY:     8,
	UINT64ARRAY:     8,
	FLOATARRAY:      8,
	DOUBLEARRAY:     8,
	LONGDOUBLEARRAY: 8,
	OBJARRAY:        8,
}

// Footprint returns the number of bytes a value of type t occupies
// inside its parent record.
func Footprint(t Type) uint32 { return footprint[t] }

// elementSize holds the per-element size of each array type's
// out-of-line payload. Undefined (0) for non-array types.
var elementSize = [typeCount]uint32{
	BYTEARRAY:       1,
	INT32ARRAY:      4,
	INT64ARRAY:      8,
	UINT32ARRAY:     4,
	UINT64ARRAY:     8,
	FLOATARRAY:      4,
	DOUBLEARRAY:     8,
	LONGDOUBLEARRAY: 16,
	OBJARRAY:        8,
}

// ElementSize returns the per-element size of an array type's
// out-of-line payload.
func ElementSize(t Type) uint32 { return elementSize[t] }

// defaultKeyType names the textual key-encoding the index collaborator
// accepts for a default (unmodified) index on an attribute of type t.
var defaultKeyType = [typeCount]string{
	INT32:           "INT32",
	INT64:           "INT64",
	UINT32:          "UINT32",
	UINT64:          "UINT64",
	FLOAT:           "FLOAT",
	DOUBLE:          "DOUBLE",
	LONGDOUBLE:      "LONG_DOUBLE",
	TIMESTAMP:       "UINT64",
	OBJ:             "NONE",
	BYTEARRAY:       "STRING",
	INT32ARRAY:      "NONE",
	INT64ARRAY:      "NONE",
	UINT32ARRAY:     "NONE",
	UINT64ARRAY:     "NONE",
	FLOATARRAY:      "NONE",
	DOUBLEARRAY:     "NONE",
	LONGDOUBLEARRAY: "NONE",
	OBJARRAY:        "NONE",
}

// DefaultKeyType returns the default index key-type name for t.
func DefaultKeyType(t Type) string { return defaultKeyType[t] }

// Funcs is the per-type function vector an attribute binds at creation
// time: size of a value, stringify, parse, and canonical key encoding.
type Funcs struct {
	// Size returns the encoded size of v for this type (fixed for
	// primitives, len(v) for BYTE_ARRAY).
	Size func(v []byte) int
	// ToStr renders the raw bytes at v as text.
	ToStr func(v []byte) (string, error)
	// FromStr parses text into dst, returning the number of bytes
	// written (== len(dst) for fixed-width types).
	FromStr func(dst []byte, text string) (int, error)
	// KeyValue produces the canonical comparable key encoding the
	// index collaborator expects.
	KeyValue func(v []byte) []byte
}

var funcTable [typeCount]Funcs

func init() {
	funcTable[INT32] = fixedIntFuncs(4, true)
	funcTable[INT64] = fixedIntFuncs(8, true)
	funcTable[UINT32] = fixedIntFuncs(4, false)
	funcTable[UINT64] = fixedIntFuncs(8, false)
	funcTable[TIMESTAMP] = fixedIntFuncs(8, false)
	funcTable[FLOAT] = floatFuncs(4)
	funcTable[DOUBLE] = floatFuncs(8)
	funcTable[LONGDOUBLE] = floatFuncs(16)
	funcTable[BYTEARRAY] = byteArrayFuncs()
	for t := OBJ; t < typeCount; t++ {
		if t == BYTEARRAY {
			continue
		}
		funcTable[t] = refFuncs(t)
	}
}

// FuncsFor returns the function vector bound to attributes of type t.
func FuncsFor(t Type) Funcs { return funcTable[t] }

func fixedIntFuncs(width int, signed bool) Funcs {
	return Funcs{
		Size: func(v []byte) int { return width },
		ToStr: func(v []byte) (string, error) {
			if len(v) < width {
				return "", fmt.Errorf("stype: short buffer for int%d", width*8)
			}
			if signed {
				return strconv.FormatInt(decodeInt(v, width), 10), nil
			}
			return strconv.FormatUint(decodeUint(v, width), 10), nil
		},
		FromStr: func(dst []byte, text string) (int, error) {
			if len(dst) < width {
				return 0, fmt.Errorf("stype: short buffer for int%d", width*8)
			}
			if signed {
				n, err := strconv.ParseInt(text, 10, width*8)
				if err != nil {
					return 0, err
				}
				encodeInt(dst, width, n)
			} else {
				n, err := strconv.ParseUint(text, 10, width*8)
				if err != nil {
					return 0, err
				}
				encodeUint(dst, width, n)
			}
			return width, nil
		},
		KeyValue: func(v []byte) []byte { return orderPreservingInt(v, width, signed) },
	}
}

func floatFuncs(width int) Funcs {
	return Funcs{
		Size: func(v []byte) int { return width },
		ToStr: func(v []byte) (string, error) {
			if width == 4 && len(v) >= 4 {
				f := math.Float32frombits(binary.LittleEndian.Uint32(v))
				return strconv.FormatFloat(float64(f), 'g', -1, 32), nil
			}
			if len(v) < 8 {
				return "", fmt.Errorf("stype: short buffer for float")
			}
			return strconv.FormatFloat(decodeFloat(v), 'g', -1, 64), nil
		},
		FromStr: func(dst []byte, text string) (int, error) {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return 0, err
			}
			encodeFloat(dst, width, f)
			return width, nil
		},
		KeyValue: func(v []byte) []byte {
			if width == 4 {
				// widen the float32 so the 8-byte order-preserving encoding applies
				var wide [8]byte
				f := math.Float32frombits(binary.LittleEndian.Uint32(v))
				binary.LittleEndian.PutUint64(wide[:], math.Float64bits(float64(f)))
				return orderPreservingFloat(wide[:])
			}
			return orderPreservingFloat(v)
		},
	}
}

func byteArrayFuncs() Funcs {
	return Funcs{
		Size: func(v []byte) int { return len(v) },
		ToStr: func(v []byte) (string, error) {
			if i := bytes.IndexByte(v, 0); i >= 0 {
				v = v[:i]
			}
			return string(v), nil
		},
		FromStr: func(dst []byte, text string) (int, error) {
			if len(dst) < len(text) {
				return 0, fmt.Errorf("stype: buffer too small for %q", text)
			}
			return copy(dst, text), nil
		},
		KeyValue: func(v []byte) []byte { return escapeBytes(v) },
	}
}

// refFuncs are the stub function vectors bound to reference-typed
// (OBJ and array) attributes: their "value" is a Ref, which is never
// converted to/from text through this dispatch (value.go handles the
// array-allocation path directly).
func refFuncs(t Type) Funcs {
	return Funcs{
		Size:  func(v []byte) int { return int(Footprint(t)) },
		ToStr: func(v []byte) (string, error) { return "", fmt.Errorf("stype: %s has no string form", t) },
		FromStr: func(dst []byte, text string) (int, error) {
			return 0, fmt.Errorf("stype: %s cannot be set from a string", t)
		},
		KeyValue: func(v []byte) []byte { return append([]byte(nil), v...) },
	}
}

// EncodeTime and DecodeTime are a convenience TIMESTAMP encoder/decoder atop the UINT64
// function vector (a TIMESTAMP value is a Unix-seconds uint64).
func EncodeTime(dst []byte, t time.Time) { encodeUint(dst, 8, uint64(t.Unix())) }
func DecodeTime(v []byte) time.Time      { return time.Unix(int64(decodeUint(v, 8)), 0) }
