// Package allocator defines the single Allocator seam used by the
// execution stack (spec.md §4.3.1), module state (§4.2 alloc_state), and
// HAL buffers (§3 "Buffer": "allocator owner"). Keeping one interface
// means a host can plug in an arena, a pool, or plain heap allocation
// once and have it honored everywhere tcvm needs bytes.
package allocator

import "github.com/tensorcore/tcvm/status"

// Allocator hands out and reclaims byte slices. Implementations need not
// be safe for concurrent use unless documented otherwise; tcvm never
// calls one from more than one goroutine at a time for a given owner.
type Allocator interface {
	// Allocate returns a zeroed slice of exactly size bytes, or a
	// failure Status (ResourceExhausted when the request cannot be
	// satisfied, InvalidArgument for a negative size).
	Allocate(size int) ([]byte, *status.Status)

	// Reallocate grows or shrinks buf to newSize, preserving the
	// existing prefix (min(len(buf), newSize) bytes), or a
	// ResourceExhausted Status. The returned slice may alias buf.
	Reallocate(buf []byte, newSize int) ([]byte, *status.Status)

	// Free releases buf. Freeing a slice not obtained from this
	// Allocator, or double-freeing, is undefined behavior - callers
	// must track ownership themselves (the refcount layer exists for
	// exactly this).
	Free(buf []byte)
}

// Go wraps the Go heap/GC as an Allocator: Allocate/Reallocate use make
// and copy, Free is a no-op left to the garbage collector. This is the
// default for hosts that don't need an arena or a hard memory cap.
type Go struct {
	// MaxBytes caps a single allocation; zero means unlimited.
	MaxBytes int
}

func (g Go) Allocate(size int) ([]byte, *status.Status) {
	if size < 0 {
		return nil, status.New(status.InvalidArgument, "negative allocation size %d", size)
	}
	if g.MaxBytes > 0 && size > g.MaxBytes {
		return nil, status.New(status.ResourceExhausted, "allocation of %d bytes exceeds cap of %d", size, g.MaxBytes)
	}
	return make([]byte, size), nil
}

func (g Go) Reallocate(buf []byte, newSize int) ([]byte, *status.Status) {
	next, s := g.Allocate(newSize)
	if !s.OK() {
		return nil, s
	}
	copy(next, buf)
	return next, nil
}

func (g Go) Free([]byte) {}

// Static models fixed, externally-owned storage with no growth capacity;
// it holds no storage itself and every Allocate/Reallocate fails:
// spec.md §4.3.1 "Statically provided storage without an allocator fails
// growth with a resource-exhausted error".
type Static struct{}

func (Static) Allocate(size int) ([]byte, *status.Status) {
	return nil, status.New(status.ResourceExhausted, "static storage cannot allocate")
}

func (Static) Reallocate(buf []byte, newSize int) ([]byte, *status.Status) {
	return nil, status.New(status.ResourceExhausted, "static storage cannot grow")
}

func (Static) Free([]byte) {}
