// Package refcount implements the reference-counted handle layer for tcvm
// runtime objects (spec.md §4.1): HAL buffers, devices, and executables
// hold a Handle rather than reimplementing retain/release, and Ref wraps
// any handle-backed value as a typed reference.
package refcount

import "sync/atomic"

// Destroyer is invoked exactly once, when a Handle's count transitions
// from one to zero.
type Destroyer interface {
	Destroy()
}

// Handle is the atomic reference count embedded by every runtime object.
// A Handle built by New starts at one live reference, matching the
// convention that a freshly constructed object is already "retained" by
// its creator; the zero value holds no reference.
type Handle struct {
	count atomic.Int64
	obj   Destroyer
}

// New returns a Handle with one reference, wired to call obj.Destroy when
// the count reaches zero.
func New(obj Destroyer) *Handle {
	h := &Handle{obj: obj}
	h.count.Store(1)
	return h
}

// Retain increments the count with acquire-style ordering: a subsequent
// Release on this goroutine is guaranteed to observe all writes made
// before any other goroutine's Retain.
func (h *Handle) Retain() {
	h.count.Add(1)
}

// Release decrements the count with release ordering and invokes Destroy
// on the one-to-zero transition. Calling Release more times than the
// object was retained is a contract violation (spec.md treats this class
// of bug as fatal, not recoverable); we panic rather than silently
// corrupting the count or double-destroying.
func (h *Handle) Release() {
	n := h.count.Add(-1)
	if n == 0 {
		h.obj.Destroy()
		return
	}
	if n < 0 {
		panic("refcount: Release called on an already-destroyed handle")
	}
}

// Count returns the current reference count. Intended for tests and
// debug assertions, not for making release decisions (which must only
// ever be driven by Release's own return value).
func (h *Handle) Count() int64 {
	return h.count.Load()
}

// TypeID identifies the concrete kind behind a Ref, e.g. "hal.buffer" or
// "vm.module". Typed narrowing (Ref.As) compares against this.
type TypeID string

// Ref is a typed, reference-counted pointer to any runtime object. A nil
// Ref is always valid and Release is a no-op on it, matching spec.md
// §4.1's "a null ref is always valid and destroys to a no-op".
type Ref struct {
	typ    TypeID
	handle *Handle
	value  interface{}
}

// NewRef wraps value (already holding one logical reference) as a typed
// Ref of kind typ.
func NewRef(typ TypeID, value interface{}, handle *Handle) Ref {
	return Ref{typ: typ, handle: handle, value: value}
}

// Type reports the Ref's type descriptor, or "" for a null ref.
func (r Ref) Type() TypeID { return r.typ }

// IsNil reports whether r is the null ref.
func (r Ref) IsNil() bool { return r.handle == nil }

// Retain increments the underlying handle; a no-op on a null ref.
func (r Ref) Retain() {
	if r.handle != nil {
		r.handle.Retain()
	}
}

// Release decrements the underlying handle; a no-op on a null ref.
func (r Ref) Release() {
	if r.handle != nil {
		r.handle.Release()
	}
}

// As performs typed narrowing: if r's type matches typ, returns the
// wrapped value and true; otherwise the zero value and false. This is the
// Go analogue of the spec's "typed ref... supports typed narrowing".
func (r Ref) As(typ TypeID) (interface{}, bool) {
	if r.handle == nil || r.typ != typ {
		return nil, false
	}
	return r.value, true
}
