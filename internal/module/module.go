// Package module defines the abstract contract every loadable unit must
// satisfy (spec.md §4.2 "Module interface") along with the Function and
// Signature data model shared by bytecode, native, and HAL-backed
// modules alike. It deliberately knows nothing about the execution stack
// or device types - those live in internal/stack and internal/hal, and
// this package imports neither.
package module

import (
	"fmt"

	"github.com/tensorcore/tcvm/api"
	"github.com/tensorcore/tcvm/internal/allocator"
	"github.com/tensorcore/tcvm/status"
)

// Index is an ordinal within one of a Module's import/internal/export
// tables.
type Index uint32

// Signature is a Function's argument and result type lists (spec.md §3
// "Function"). Two signatures are compatible if their Params/Results
// slices are element-wise equal.
type Signature struct {
	Params  []api.ValueKind
	Results []api.ValueKind
}

func (s Signature) Equal(o Signature) bool {
	return kindsEqual(s.Params, o.Params) && kindsEqual(s.Results, o.Results)
}

func (s Signature) String() string {
	return string(api.NewConvString(s.Params, s.Results))
}

func kindsEqual(a, b []api.ValueKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Function is one entry in a Module's function table (spec.md §3
// "Function"): name, signature, calling-convention descriptor, linkage,
// owning module, and ordinal within that module.
type Function struct {
	Name      string
	Signature Signature
	Conv      api.ConvString
	Linkage   api.Linkage
	Module    Module
	Ordinal   Index
}

// State is the opaque per-(module, context) storage produced by
// AllocState: resolved import function pointers plus mutable globals
// (spec.md §3 "Module State"). It is intentionally untyped here; each
// concrete Module implementation defines its own backing struct.
type State interface{}

// CallRecord is one invocation's argument/result buffers in the uniform
// ABI (spec.md §6 "invoke"). Inputs and Outputs are parallel to the
// callee's Signature.
type CallRecord struct {
	Inputs  []uint64
	Outputs []uint64
}

// SourceLocation mirrors status.SourceLocation so modules that can
// symbolicate a frame (bytecode modules, mainly) don't need to import
// the stack package just to report one.
type SourceLocation = status.SourceLocation

// FrameInfo is the minimal view of a stack frame a Module needs in order
// to resolve a source location for it (spec.md §4.2
// "resolve_source_location").
type FrameInfo struct {
	Function *Function
	PC       uint64
}

// Module is the abstract contract every loadable unit - bytecode,
// natively-implemented, or HAL-backed - must satisfy (spec.md §4.2).
type Module interface {
	// Name is the module's registration name, used to build qualified
	// function names ("Module.function").
	Name() string

	// Signature returns the import/export/internal counts.
	Signature() (imports, internals, exports int)

	// LookupFunctionByName looks up a function of the given linkage by
	// name. Returns a NotFound Status if absent.
	LookupFunctionByName(linkage api.Linkage, name string) (*Function, *status.Status)

	// LookupFunctionByOrdinal looks up a function of the given linkage
	// by ordinal. Returns an OutOfRange Status if absent.
	LookupFunctionByOrdinal(linkage api.Linkage, ordinal Index) (*Function, string, Signature, *status.Status)

	// AllocState allocates this module's per-context State using alloc
	// for any backing storage it needs.
	AllocState(alloc allocator.Allocator) (State, *status.Status)

	// FreeState releases a State previously returned by AllocState.
	FreeState(State)

	// ResolveImport wires one import slot of st to target, a Function
	// exported by a previously registered module. Implementations must
	// verify expected against target's declared signature/conv string
	// and fail with InvalidArgument (conv mismatch) or FailedPrecondition
	// (signature mismatch) rather than silently proceeding.
	ResolveImport(st State, importIndex Index, target *Function, expected Signature) *status.Status

	// BeginCall synchronously invokes one exported function, pushing and
	// popping whatever stack frames it needs via enter/leave. Stack is an
	// opaque handle type supplied by internal/stack; module does not
	// depend on that package, so it is passed as interface{} and each
	// Module implementation type-asserts it to *stack.Stack.
	BeginCall(stackHandle interface{}, call *CallRecord) *status.Status

	// ResolveSourceLocation is optional; modules that cannot symbolicate
	// (most native/HAL modules) return (SourceLocation{}, false).
	ResolveSourceLocation(frame FrameInfo) (SourceLocation, bool)
}

// CheckConv implements spec.md §4.2's registration-time conv string
// check: "When both the importer and exporter declare a non-empty conv
// string, they must match byte-for-byte; mismatch is a registration-time
// error with module names and both conv strings in the message."
func CheckConv(importerModule, exporterModule string, importer, exporter api.ConvString) *status.Status {
	if importer.Empty() || exporter.Empty() {
		return nil
	}
	if importer != exporter {
		return status.New(status.InvalidArgument,
			"conv string mismatch: importer %q declares %q, exporter %q declares %q",
			importerModule, importer, exporterModule, exporter)
	}
	return nil
}

// QualifiedName joins a module and function name the way
// resolve_function splits them (spec.md §4.4): at the first period.
func QualifiedName(module, function string) string {
	return fmt.Sprintf("%s.%s", module, function)
}
