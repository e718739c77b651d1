package hal

import (
	"github.com/tensorcore/tcvm/internal/refcount"
	"github.com/tensorcore/tcvm/status"
)

// Backend identifies a candidate target backend for a multi-target
// executable (spec.md §4.5.1 third bullet: "a switch on device-match
// conditions, one arm per candidate target backend").
type Backend string

const (
	BackendCPU   Backend = "cpu"
	BackendSPIRV Backend = "spirv"
)

// EntryPoint is one callable kernel within an Executable, addressed by
// ordinal from a dispatch record (spec.md §4.5.2 "bind the pipeline for
// (executable, entry-ordinal)").
type EntryPoint struct {
	Name   string
	Invoke func(args []uint64, bindings []*Buffer, pushConstants []uint64) *status.Status
}

// ExecutableCandidate is one target-backend arm of a source executable's
// serialized payload, keyed by the target Backend it matches (spec.md
// §4.5.1 third bullet).
type ExecutableCandidate struct {
	Backend Backend
	Entries []EntryPoint
}

// Executable is the materialized, device-resident form of one compiled
// kernel module (spec.md §3 "Executable").
type Executable struct {
	handle *refcount.Handle

	Layout  *ExecutableLayout
	Entries []EntryPoint
}

func (e *Executable) Retain()  { e.handle.Retain() }
func (e *Executable) Release() { e.handle.Release() }

// MaterializeExecutable implements the per-device "switch on device-match
// conditions" materialization described in spec.md §4.5.1: the first
// candidate whose Backend matches deviceBackend is selected and built
// against layout; if none match, a NotFound status models the "default
// arm returns a null executable" case.
func MaterializeExecutable(deviceBackend Backend, candidates []ExecutableCandidate, layout *ExecutableLayout) (*Executable, *status.Status) {
	for _, c := range candidates {
		if c.Backend == deviceBackend {
			e := &Executable{Layout: layout, Entries: c.Entries}
			e.handle = refcount.New(destroyFunc(func() {}))
			return e, nil
		}
	}
	return nil, status.New(status.NotFound, "no executable candidate matches device backend %q", deviceBackend)
}

// EntryByOrdinal looks up an entry point for dispatch-record binding
// (spec.md §4.5.2 "bind the pipeline for (executable, entry-ordinal)").
func (e *Executable) EntryByOrdinal(ordinal int) (EntryPoint, *status.Status) {
	if ordinal < 0 || ordinal >= len(e.Entries) {
		return EntryPoint{}, status.New(status.OutOfRange, "entry ordinal %d out of range (%d entries)", ordinal, len(e.Entries))
	}
	return e.Entries[ordinal], nil
}
