// Package stack implements the dynamically growable VM execution stack
// (spec.md §3 "Stack", §4.3). A Stack is single-threaded: one logical
// fiber owns it and drives pushes/pops in strict LIFO order.
package stack

import (
	"fmt"
	"strings"

	"github.com/tensorcore/tcvm/internal/allocator"
	"github.com/tensorcore/tcvm/internal/module"
	"github.com/tensorcore/tcvm/status"
)

// FrameType tags a frame's provenance for backtrace formatting (spec.md
// §4.3.4).
type FrameType uint8

const (
	FrameExternal FrameType = iota
	FrameNative
	FrameBytecode
)

func (t FrameType) String() string {
	switch t {
	case FrameExternal:
		return "external"
	case FrameNative:
		return "native"
	case FrameBytecode:
		return "bytecode"
	default:
		return "unknown"
	}
}

// frameHeaderSize is the fixed per-frame bookkeeping cost counted against
// arena capacity, modeling the "header" spec.md §4.3.1 says every frame
// carries alongside its variable-size payload.
const frameHeaderSize = 64

// CleanupFunc runs on Leave and is responsible for releasing any typed
// refs stored in the frame's payload (spec.md §4.3.3).
type CleanupFunc func(payload []byte)

// Frame is one in-flight function call (spec.md §3 "Stack Frame").
type Frame struct {
	Function    *module.Function
	ModuleState module.State
	PC          uint64
	Parent      *Frame
	Depth       uint32
	Payload     []byte
	Type        FrameType
	TraceZone   string

	cleanup      CleanupFunc
	declaredSize int
}

// StateResolver answers "what module state should function see, given
// who is calling it" (spec.md §4.3.2 step 2). Implemented by
// internal/vmctx.Context.
type StateResolver interface {
	ResolveState(callee *module.Function) (module.State, *status.Status)
}

// Stack is the per-fiber, dynamically growable frame list (spec.md §3
// "Stack", §4.3.1). The arena is modeled as a byte-capacity budget rather
// than a literal contiguous []byte with embedded raw pointers: frames are
// ordinary Go objects linked by Parent, and growth/relocation accounting
// is tracked numerically. This sidesteps unsafe pointer rebasing while
// preserving every externally observable invariant spec.md §4.3.1 and §8
// name (doubling growth to a hard cap, resource-exhausted at the cap,
// static-storage-without-allocator failure, balanced-enter/leave back to
// zero). See DESIGN.md for the rationale.
type Stack struct {
	top      *Frame
	resolver StateResolver
	alloc    allocator.Allocator

	usedBytes    int
	capBytes     int
	minBytes     int
	hardCapBytes int

	// staticReadOnly marks storage provided by an external caller with
	// no backing allocator fixed up yet; the first successful growth
	// clears it (spec.md §4.3.1 "If an external caller provided
	// read-only storage, the first growth allocates a fresh arena").
	staticReadOnly bool

	backtracesDisabled bool
}

// Option configures New.
type Option func(*Stack)

// WithBacktracesDisabled skips backtrace string formatting entirely
// (spec.md §4.3.4 "attached to a failing status without allocating when
// backtraces are disabled").
func WithBacktracesDisabled() Option {
	return func(s *Stack) { s.backtracesDisabled = true }
}

// WithExternalReadOnlyStorage marks the stack as backed by caller-owned
// storage that cannot grow in place (spec.md §4.3.1).
func WithExternalReadOnlyStorage() Option {
	return func(s *Stack) { s.staticReadOnly = true }
}

// New creates a Stack with the given minimum arena size and hard cap
// (spec.md §4.3.1 "A minimum arena size is reserved... growth proceeds by
// doubling until a hard cap is hit"). alloc may be nil only when paired
// with WithExternalReadOnlyStorage and the caller never intends to exceed
// minBytes; any growth attempt without an allocator fails
// resource-exhausted (spec.md §4.3.1).
func New(alloc allocator.Allocator, resolver StateResolver, minBytes, hardCapBytes int, opts ...Option) *Stack {
	s := &Stack{
		resolver:     resolver,
		alloc:        alloc,
		capBytes:     minBytes,
		minBytes:     minBytes,
		hardCapBytes: hardCapBytes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Top returns the current top frame, or nil if the stack is empty.
func (s *Stack) Top() *Frame { return s.top }

// Size returns the arena's currently-used byte accounting; balanced
// enter/leave sequences always return this to zero (spec.md §8).
func (s *Stack) Size() int { return s.usedBytes }

// Cap returns the arena's current capacity.
func (s *Stack) Cap() int { return s.capBytes }

// Enter implements spec.md §4.3.2 "function_enter".
func (s *Stack) Enter(fn *module.Function, frameType FrameType, payloadSize int, cleanup CleanupFunc) (*Frame, *status.Status) {
	if payloadSize < 0 {
		return nil, status.New(status.InvalidArgument, "negative payload size %d", payloadSize)
	}
	required := frameHeaderSize + payloadSize

	if s.usedBytes+required > s.capBytes {
		if st := s.grow(required); !st.OK() {
			return nil, st
		}
	}

	var state module.State
	if s.top != nil && s.top.Function.Module == fn.Module {
		// Reuse the caller's resolved state without re-querying
		// (spec.md §4.3.2 step 2).
		state = s.top.ModuleState
	} else {
		var st *status.Status
		state, st = s.resolver.ResolveState(fn)
		if !st.OK() {
			return nil, st
		}
	}

	depth := uint32(0)
	if s.top != nil {
		depth = s.top.Depth + 1
	}

	f := &Frame{
		Function:     fn,
		ModuleState:  state,
		PC:           0,
		Parent:       s.top,
		Depth:        depth,
		Payload:      make([]byte, payloadSize),
		Type:         frameType,
		cleanup:      cleanup,
		declaredSize: required,
	}
	s.top = f
	s.usedBytes += required
	return f, nil
}

// Leave implements spec.md §4.3.3 "function_leave".
func (s *Stack) Leave() *status.Status {
	if s.top == nil {
		return status.New(status.FailedPrecondition, "function_leave called with no frame on the stack")
	}
	f := s.top
	if f.cleanup != nil {
		f.cleanup(f.Payload)
	}
	s.top = f.Parent
	s.usedBytes -= f.declaredSize
	return nil
}

func (s *Stack) grow(minAdditional int) *status.Status {
	if s.alloc == nil {
		return status.New(status.ResourceExhausted, "stack has no allocator to grow beyond %d bytes", s.capBytes)
	}
	need := s.usedBytes + minAdditional
	newCap := s.capBytes
	if newCap == 0 {
		newCap = s.minBytes
	}
	for newCap < need {
		if newCap >= s.hardCapBytes {
			return status.New(status.ResourceExhausted,
				"stack growth to %d bytes exceeds hard cap of %d", need, s.hardCapBytes)
		}
		newCap *= 2
		if newCap > s.hardCapBytes {
			newCap = s.hardCapBytes
		}
	}
	if newCap < need {
		return status.New(status.ResourceExhausted,
			"stack growth to %d bytes exceeds hard cap of %d", need, s.hardCapBytes)
	}
	// First growth of externally-provided read-only storage allocates a
	// fresh arena; the live frames (already independent Go objects) need
	// no copy, only the capacity accounting changes ownership.
	s.staticReadOnly = false
	s.capBytes = newCap
	return nil
}

// Backtrace implements spec.md §4.3.4: a top-to-bottom traversal emitting
// depth, frame-type tag, qualified function name, PC, and resolved source
// location (or "-" if unavailable). Returns "" without doing any work
// when backtraces are disabled.
func (s *Stack) Backtrace() string {
	if s.backtracesDisabled {
		return ""
	}
	var b strings.Builder
	for f := s.top; f != nil; f = f.Parent {
		loc := "-"
		if f.Function != nil && f.Function.Module != nil {
			if sl, ok := f.Function.Module.ResolveSourceLocation(module.FrameInfo{Function: f.Function, PC: f.PC}); ok {
				loc = sl.String()
			}
		}
		name := "?"
		if f.Function != nil {
			name = module.QualifiedName(moduleName(f.Function), f.Function.Name)
		}
		fmt.Fprintf(&b, "#%d %s %s pc=%#x %s\n", f.Depth, f.Type, name, f.PC, loc)
	}
	return b.String()
}

func moduleName(fn *module.Function) string {
	if fn.Module == nil {
		return "?"
	}
	return fn.Module.Name()
}
