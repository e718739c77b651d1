package hal

import (
	"github.com/tensorcore/tcvm/internal/refcount"
	"github.com/tensorcore/tcvm/status"
)

// DefaultSingleUpdateCapBytes bounds a single RecordUpdateBuffer transfer
// before it must be split into chunks (spec.md §8: "A command-buffer
// update of size exceeding the device's single-update cap is split into
// chunks of at most the cap, each preserving source order"). 65536
// matches the update-buffer size limit real Vulkan implementations
// enforce on vkCmdUpdateBuffer.
const DefaultSingleUpdateCapBytes = 65536

// Device is the top-level HAL object: an allocator of buffers, a factory
// for command buffers and executables, and the owner of one or more
// Queues (spec.md §3 "Device", §4.5).
type Device struct {
	handle *refcount.Handle

	Name   string
	caches *ResourceCache
	queues []*Queue

	// SingleUpdateCapBytes is the largest single RecordUpdateBuffer
	// transfer this device accepts without chunking.
	SingleUpdateCapBytes int
}

// NewDevice constructs a Device with a single default queue, an empty
// resource cache, and DefaultSingleUpdateCapBytes as its single-update
// cap.
func NewDevice(name string) *Device {
	d := &Device{Name: name, caches: NewResourceCache(), SingleUpdateCapBytes: DefaultSingleUpdateCapBytes}
	d.handle = refcount.New(destroyFunc(func() {}))
	d.queues = []*Queue{newQueue(d, "default")}
	return d
}

func (d *Device) Retain()  { d.handle.Retain() }
func (d *Device) Release() { d.handle.Release() }

// AllocateBuffer allocates a root Buffer (spec.md §3 "Buffer").
func (d *Device) AllocateBuffer(size uint64, usage UsageBits, memType MemoryTypeBits) (*Buffer, *status.Status) {
	if size == 0 {
		return nil, status.New(status.InvalidArgument, "cannot allocate a zero-size buffer")
	}
	return NewBuffer(d.Name, size, usage, memType), nil
}

// Queue returns the device's default submission queue.
func (d *Device) Queue() *Queue {
	return d.queues[0]
}

// Caches returns the device's executable/layout resource cache (spec.md
// §4.5.1).
func (d *Device) Caches() *ResourceCache {
	return d.caches
}
