package hal

import (
	"github.com/tensorcore/tcvm/status"
)

// BufferBinding is one bound buffer within a descriptor set, with the
// absolute range derived from the buffer's own byte_offset/byte_length
// (spec.md §4.5.2 "offsets + ranges derived from the buffer's
// byte_offset + byte_length").
type BufferBinding struct {
	Ordinal int
	Buffer  *Buffer
}

// DispatchRecord is one recorded dispatch command (spec.md §4.5.2).
type DispatchRecord struct {
	Executable    *Executable
	EntryOrdinal  int
	Bindings      []BufferBinding
	PushConstants []uint64
	WorkgroupX    uint32
	WorkgroupY    uint32
	WorkgroupZ    uint32
}

// CommandBufferState tags a command buffer's lifecycle.
type CommandBufferState int

const (
	CommandBufferRecording CommandBufferState = iota
	CommandBufferFinalized
)

// CommandBuffer accumulates dispatch and transfer commands for later
// submission (spec.md §3 "Command Buffer"). Binding uses a push-update
// path when the device advertises the capability, falling back to a
// pooled descriptor-set path otherwise (spec.md §4.5 final sentence);
// both paths produce an identical DispatchRecord, so the distinction is
// only about how the descriptor set is obtained, not what gets recorded.
type CommandBuffer struct {
	device        *Device
	usePushUpdate bool
	state         CommandBufferState
	dispatches    []DispatchRecord
	transfers     []transferRecord
}

type transferRecord struct {
	dst    *Buffer
	dstOff uint64
	data   []byte
}

// NewCommandBuffer begins recording. usePushUpdate selects the
// push-descriptor path; when false, descriptor sets are drawn from a
// pool (spec.md §4.5 "falling back to a pooled descriptor-set path
// otherwise").
func NewCommandBuffer(d *Device, usePushUpdate bool) *CommandBuffer {
	return &CommandBuffer{device: d, usePushUpdate: usePushUpdate}
}

// RecordDispatch binds the pipeline for (exec, entryOrdinal), derives
// each binding's absolute (offset, length) from its buffer, and emits a
// dispatch record with the given static workgroup count (spec.md
// §4.5.2). A workgroup count sourced from a runtime buffer load is out
// of scope for this design and must be resolved to a concrete uint32
// triple before calling RecordDispatch (spec.md §4.5.2 "rejected in the
// current design").
func (cb *CommandBuffer) RecordDispatch(exec *Executable, entryOrdinal int, bindings []BufferBinding, pushConstants []uint64, x, y, z uint32) *status.Status {
	if cb.state != CommandBufferRecording {
		return status.New(status.FailedPrecondition, "command buffer is not in the recording state")
	}
	if _, st := exec.EntryByOrdinal(entryOrdinal); !st.OK() {
		return st
	}
	if exec.Layout != nil && len(pushConstants) != exec.Layout.PushConstantCount {
		return status.New(status.InvalidArgument,
			"dispatch supplies %d push constants but layout declares %d", len(pushConstants), exec.Layout.PushConstantCount)
	}
	cb.dispatches = append(cb.dispatches, DispatchRecord{
		Executable: exec, EntryOrdinal: entryOrdinal,
		Bindings:      append([]BufferBinding(nil), bindings...),
		PushConstants: append([]uint64(nil), pushConstants...),
		WorkgroupX:    x, WorkgroupY: y, WorkgroupZ: z,
	})
	return nil
}

// RecordUpdateBuffer records a host-to-device transfer (spec.md §3
// "Command Buffer": transfer commands alongside dispatch commands). A
// transfer larger than the device's single-update cap is split into
// multiple transfer records of at most that size, recorded in source
// order, so execute applies them as a sequence of smaller updates
// (spec.md §8: "split into chunks of at most the cap, each preserving
// source order").
func (cb *CommandBuffer) RecordUpdateBuffer(dst *Buffer, dstOffset uint64, data []byte) *status.Status {
	if cb.state != CommandBufferRecording {
		return status.New(status.FailedPrecondition, "command buffer is not in the recording state")
	}
	if dstOffset+uint64(len(data)) > dst.EffectiveLength() {
		return status.New(status.OutOfRange, "update of %d bytes at offset %d exceeds buffer length %d", len(data), dstOffset, dst.EffectiveLength())
	}

	capBytes := cb.device.SingleUpdateCapBytes
	if capBytes <= 0 || len(data) <= capBytes {
		cb.transfers = append(cb.transfers, transferRecord{dst: dst, dstOff: dstOffset, data: append([]byte(nil), data...)})
		return nil
	}
	for off := 0; off < len(data); off += capBytes {
		end := off + capBytes
		if end > len(data) {
			end = len(data)
		}
		chunk := append([]byte(nil), data[off:end]...)
		cb.transfers = append(cb.transfers, transferRecord{dst: dst, dstOff: dstOffset + uint64(off), data: chunk})
	}
	return nil
}

// Finalize closes recording; no further Record* calls are permitted.
func (cb *CommandBuffer) Finalize() *status.Status {
	if cb.state != CommandBufferRecording {
		return status.New(status.FailedPrecondition, "command buffer already finalized")
	}
	cb.state = CommandBufferFinalized
	return nil
}

// execute runs every recorded command against the fake in-process device
// (transfers first, in record order, then dispatches). Executed by
// Queue.Submit.
func (cb *CommandBuffer) execute() *status.Status {
	for _, t := range cb.transfers {
		off, _ := t.dst.AbsoluteRange()
		root := t.dst.Root()
		copy(root.data[off+t.dstOff:], t.data)
	}
	for _, d := range cb.dispatches {
		if d.WorkgroupX == 0 || d.WorkgroupY == 0 || d.WorkgroupZ == 0 {
			// spec.md §8: "A dispatch with a zero workgroup count in any
			// axis is a no-op (no device submission)."
			continue
		}
		entry, st := d.Executable.EntryByOrdinal(d.EntryOrdinal)
		if !st.OK() {
			return st
		}
		bufs := make([]*Buffer, len(d.Bindings))
		for i, b := range d.Bindings {
			bufs[i] = b.Buffer
		}
		if entry.Invoke != nil {
			if st := entry.Invoke(nil, bufs, d.PushConstants); !st.OK() {
				return st
			}
		}
	}
	return nil
}
