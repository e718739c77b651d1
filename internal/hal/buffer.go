// Package hal implements the device abstraction layer (spec.md §3
// "Buffer", "Buffer View", "Command Buffer", "Executable", "Executable
// Layout"; §4.5). Devices, buffers, and command buffers all embed
// internal/refcount.Handle for lifetime management (spec.md §4.1).
package hal

import (
	"github.com/tensorcore/tcvm/internal/refcount"
	"github.com/tensorcore/tcvm/status"
)

// UsageBits describes what operations a Buffer may be used for
// (spec.md §3 "Buffer": "usage bits (transfer / dispatch / mapping)").
type UsageBits uint8

const (
	UsageTransfer UsageBits = 1 << iota
	UsageDispatch
	UsageMapping
)

// MemoryTypeBits describes the memory residency/visibility of a Buffer
// (spec.md §3 "Buffer": "memory-type bits").
type MemoryTypeBits uint8

const (
	MemoryHostVisible MemoryTypeBits = 1 << iota
	MemoryDeviceLocal
	MemoryHostCoherent
	MemoryHostCached
)

// Buffer is a typed byte region (spec.md §3 "Buffer"). A Buffer may be a
// subrange of another buffer; the subrange shares the backing
// allocation's lifetime via the Backing ref.
type Buffer struct {
	handle *refcount.Handle

	Allocator  string // the allocator owner's name/identity
	Size       uint64
	Usage      UsageBits
	MemoryType MemoryTypeBits

	// Backing is non-nil when this Buffer is a subrange of another
	// buffer; ByteOffset/ByteLength then describe the subrange within
	// Backing, and the subrange retains Backing for its own lifetime.
	Backing    *Buffer
	ByteOffset uint64
	ByteLength uint64

	data []byte // host-visible backing store for this process's fake device
}

// NewBuffer allocates a fresh, non-subrange Buffer with one reference.
func NewBuffer(allocatorName string, size uint64, usage UsageBits, memType MemoryTypeBits) *Buffer {
	b := &Buffer{Allocator: allocatorName, Size: size, Usage: usage, MemoryType: memType, data: make([]byte, size)}
	b.handle = refcount.New(destroyFunc(func() {}))
	return b
}

type destroyFunc func()

func (d destroyFunc) Destroy() { d() }

// Retain/Release implement vmctx.RefCounted so a Buffer can be embedded
// directly in dispatch records without a second wrapper type.
func (b *Buffer) Retain()  { b.handle.Retain() }
func (b *Buffer) Release() { b.handle.Release() }

// Subrange returns a new Buffer describing [byteOffset, byteOffset+byteLength)
// of b, sharing b's backing allocation (spec.md §3 "Buffer": "a buffer
// may be a subrange of another buffer... the subrange shares the
// allocation's lifetime").
func (b *Buffer) Subrange(byteOffset, byteLength uint64) (*Buffer, *status.Status) {
	if byteOffset+byteLength > b.EffectiveLength() {
		return nil, status.New(status.OutOfRange,
			"subrange [%d,%d) exceeds buffer of length %d", byteOffset, byteOffset+byteLength, b.EffectiveLength())
	}
	root := b.Root()
	b.Retain()
	return &Buffer{
		handle:     b.handle,
		Allocator:  b.Allocator,
		Size:       byteLength,
		Usage:      b.Usage,
		MemoryType: b.MemoryType,
		Backing:    b,
		ByteOffset: b.ByteOffset + byteOffset,
		ByteLength: byteLength,
		data:       root.data,
	}, nil
}

// Root returns the buffer that actually owns the backing storage,
// following Backing links to the end.
func (b *Buffer) Root() *Buffer {
	for b.Backing != nil {
		b = b.Backing
	}
	return b
}

// EffectiveLength is the buffer's own observable length (the subrange's
// ByteLength, or Size for a root buffer).
func (b *Buffer) EffectiveLength() uint64 {
	if b.Backing != nil {
		return b.ByteLength
	}
	return b.Size
}

// AbsoluteRange returns this buffer's (offset, length) within its Root's
// storage - what commands bind against (spec.md §4.5.2 "offsets + ranges
// derived from the buffer's byte_offset + byte_length").
func (b *Buffer) AbsoluteRange() (offset, length uint64) {
	if b.Backing == nil {
		return 0, b.Size
	}
	return b.ByteOffset, b.ByteLength
}

func (b *Buffer) Bytes() []byte {
	off, length := b.AbsoluteRange()
	root := b.Root()
	return root.data[off : off+length]
}

// ElementType describes a Buffer View's element format (spec.md §3
// "Buffer View": "bit-width + integer/float/sign category").
type ElementCategory uint8

const (
	ElementSignedInt ElementCategory = iota
	ElementUnsignedInt
	ElementFloat
)

type ElementType struct {
	BitWidth int
	Category ElementCategory
}

// BufferView is a Buffer plus a shape and element type; it does not own
// memory (spec.md §3 "Buffer View").
type BufferView struct {
	Buffer  *Buffer
	Shape   []uint64
	Element ElementType
}

// NumElements is the product of the shape's dimensions.
func (v BufferView) NumElements() uint64 {
	n := uint64(1)
	for _, d := range v.Shape {
		n *= d
	}
	return n
}

// ByteSize is NumElements * ceil(BitWidth/8).
func (v BufferView) ByteSize() uint64 {
	return v.NumElements() * uint64((v.Element.BitWidth+7)/8)
}
