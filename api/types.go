// Package api includes the types shared between tcvm embedders and the
// internal VM implementation: the uniform calling-convention value model
// (spec.md §4.2) and the linkage/device vocabulary used throughout.
//
// This mirrors the role of the teacher's own api package: a small,
// dependency-free surface that both end users and internal packages
// import, avoiding cycles between the internal engine and the host-facing
// builder API.
package api

import (
	"fmt"
	"math"
	"strings"
)

// ValueKind is one letter of a conv string (spec.md §4.2): "a conv string
// whose argument and return letters describe a compact uniform ABI".
type ValueKind byte

const (
	// KindI32 is a 32-bit integer, conv letter 'i'.
	KindI32 ValueKind = 'i'
	// KindI64 is a 64-bit integer, conv letter 'I'.
	KindI64 ValueKind = 'I'
	// KindF32 is a 32-bit float, conv letter 'f'.
	KindF32 ValueKind = 'f'
	// KindF64 is a 64-bit float, conv letter 'F'.
	KindF64 ValueKind = 'F'
	// KindRef is a reference-counted handle (buffer, module, etc.), conv
	// letter 'r'.
	KindRef ValueKind = 'r'
	// KindList marks the start of a nested list of values, conv letter 'l'.
	KindList ValueKind = 'l'
	// KindVariadic marks the start of a variadic segment, conv letter 'v'.
	KindVariadic ValueKind = 'v'
)

func (k ValueKind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindRef:
		return "ref"
	case KindList:
		return "list"
	case KindVariadic:
		return "variadic"
	default:
		return fmt.Sprintf("kind(%q)", byte(k))
	}
}

// ConvString is the byte-for-byte-compared calling-convention descriptor
// from spec.md §4.2: "When both the importer and exporter declare a
// non-empty conv string, they must match byte-for-byte". Layout is
// "<params>_<results>", e.g. "iI_f" for (i32, i64) -> f32.
type ConvString string

// NewConvString builds a ConvString from ordered parameter and result
// kinds.
func NewConvString(params, results []ValueKind) ConvString {
	var b strings.Builder
	for _, k := range params {
		b.WriteByte(byte(k))
	}
	b.WriteByte('_')
	for _, k := range results {
		b.WriteByte(byte(k))
	}
	return ConvString(b.String())
}

// Params parses the parameter half of the conv string.
func (c ConvString) Params() []ValueKind {
	p, _ := c.split()
	return toKinds(p)
}

// Results parses the result half of the conv string.
func (c ConvString) Results() []ValueKind {
	_, r := c.split()
	return toKinds(r)
}

func (c ConvString) split() (params, results string) {
	s := string(c)
	if i := strings.IndexByte(s, '_'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func toKinds(s string) []ValueKind {
	if s == "" {
		return nil
	}
	out := make([]ValueKind, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = ValueKind(s[i])
	}
	return out
}

// Empty reports whether c carries no calling-convention information
// (spec.md §4.2 only enforces a match "when both... declare a non-empty
// conv string").
func (c ConvString) Empty() bool { return c == "" }

// Linkage classifies a Function's visibility within its owning Module
// (spec.md §3 "Function").
type Linkage uint8

const (
	LinkageImport Linkage = iota
	LinkageInternal
	LinkageExport
)

func (l Linkage) String() string {
	switch l {
	case LinkageImport:
		return "import"
	case LinkageInternal:
		return "internal"
	case LinkageExport:
		return "export"
	default:
		return "unknown-linkage"
	}
}

// The uniform ABI represents every scalar as a 64-bit register, the same
// convention the teacher's api package uses for WebAssembly values
// (EncodeI32/DecodeF64/etc.) so host<->VM marshalling never needs
// reflection on the hot path.

func EncodeI32(v int32) uint64 { return uint64(uint32(v)) }
func DecodeI32(v uint64) int32 { return int32(uint32(v)) }

func EncodeI64(v int64) uint64 { return uint64(v) }
func DecodeI64(v uint64) int64 { return int64(v) }

func EncodeF32(v float32) uint64 { return uint64(math.Float32bits(v)) }
func DecodeF32(v uint64) float32 { return math.Float32frombits(uint32(v)) }

func EncodeF64(v float64) uint64 { return math.Float64bits(v) }
func DecodeF64(v uint64) float64 { return math.Float64frombits(v) }
