package mexico

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ElementType names a scalar type understood by every transport
// strategy. The set is closed: it mirrors the element-type enum the
// original implementation declared in ast.hpp, since spec.md leaves
// the concrete type repertoire unspecified ("an element type
// understood by the transport").
type ElementType int

const (
	// Int32 is a 4 byte signed integer.
	Int32 ElementType = iota
	// Int64 is an 8 byte signed integer.
	Int64
	// Float32 is a 4 byte IEEE-754 float.
	Float32
	// Float64 is an 8 byte IEEE-754 float.
	Float64
)

// Extent returns the size in bytes of a single element of t.
func (t ElementType) Extent() int {
	switch t {
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	default:
		panic(fmt.Sprintf("mexico: unknown element type %d", int(t)))
	}
}

func (t ElementType) String() string {
	switch t {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
}

// ParseElementType maps a type token ("int32", "int64", "float32",
// "float64", as printed by String) to an ElementType.
func ParseElementType(s string) (ElementType, error) {
	switch s {
	case "int32":
		return Int32, nil
	case "int64":
		return Int64, nil
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	default:
		return 0, fmt.Errorf("mexico: unknown element type %q", s)
	}
}

// RecordSize returns the byte size of a record of cnt elements of type
// typ.
func RecordSize(cnt int, typ ElementType) int {
	return cnt * typ.Extent()
}

// PutInt encodes v as a little-endian Int32 or Int64 element into b,
// per t.Extent(). It is a convenience for callers (and tests) that
// build raw record buffers by hand; the runtime itself never
// interprets record bytes.
func (t ElementType) PutInt(b []byte, v int64) {
	switch t {
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(v))
	default:
		panic(fmt.Sprintf("mexico: PutInt on non-integer type %s", t))
	}
}

// GetInt is PutInt's inverse.
func (t ElementType) GetInt(b []byte) int64 {
	switch t {
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case Int64:
		return int64(binary.LittleEndian.Uint64(b))
	default:
		panic(fmt.Sprintf("mexico: GetInt on non-integer type %s", t))
	}
}

// PutFloat encodes v as a little-endian Float32 or Float64 element
// into b, per t.Extent().
func (t ElementType) PutFloat(b []byte, v float64) {
	switch t {
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	default:
		panic(fmt.Sprintf("mexico: PutFloat on non-float type %s", t))
	}
}

// GetFloat is PutFloat's inverse.
func (t ElementType) GetFloat(b []byte) float64 {
	switch t {
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		panic(fmt.Sprintf("mexico: GetFloat on non-float type %s", t))
	}
}
