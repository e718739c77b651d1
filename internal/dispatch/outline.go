package dispatch

import (
	"fmt"

	"github.com/tensorcore/tcvm/internal/tensorir"
)

// EntryPointRecord names the outlined function and its workgroup rank
// within an Executable (spec.md §4.6.3 step 2).
type EntryPointRecord struct {
	FunctionName string
	WorkgroupRank int
}

// OutlinedExecutable is the container an outlined Partition becomes
// (spec.md §4.6.3 step 2 "an executable container holding that function
// plus an entry-point record").
type OutlinedExecutable struct {
	Function *tensorir.Function
	Entry    EntryPointRecord
}

// TiedOperand records an input index that aliases an output index,
// indicating in-place semantics (spec.md §4.6.3 step 3).
type TiedOperand struct {
	InputIndex  int
	OutputIndex int
}

// DispatchOp replaces the dispatch region in the enclosing function
// (spec.md §4.6.3 step 3).
type DispatchOp struct {
	WorkgroupCount [3]string // symbolic expressions, not necessarily constant
	Executable     *OutlinedExecutable
	TiedOperands   []TiedOperand
}

// Outline implements spec.md §4.6.3: each Partition becomes a
// free-floating function (region body with the terminator already a
// plain return), an OutlinedExecutable wrapping it with one entry point,
// and a DispatchOp that would replace the region in the caller.
//
// namePrefix + "_dispatch_" + ordinal names the outlined function,
// exactly as spec.md names it.
func Outline(namePrefix string, partitions []*Partition, workgroupCounts [][3]string, tied [][]TiedOperand) []*DispatchOp {
	ops := make([]*DispatchOp, len(partitions))
	for i, p := range partitions {
		fnName := fmt.Sprintf("%s_dispatch_%d", namePrefix, i)
		region := &tensorir.Region{Ops: p.Ops, Terminator: terminatorFor(p)}
		fn := &tensorir.Function{Name: fnName, Body: region}
		exec := &OutlinedExecutable{Function: fn, Entry: EntryPointRecord{FunctionName: fnName, WorkgroupRank: rankOf(workgroupCounts, i)}}

		var wg [3]string
		if i < len(workgroupCounts) {
			wg = workgroupCounts[i]
		}
		var tiedOps []TiedOperand
		if i < len(tied) {
			tiedOps = tied[i]
		}
		ops[i] = &DispatchOp{WorkgroupCount: wg, Executable: exec, TiedOperands: tiedOps}
	}
	return ops
}

// terminatorFor returns a terminator over every result of the
// partition's ops that is not itself consumed by another op in the
// partition - the region's externally-visible outputs.
func terminatorFor(p *Partition) tensorir.Terminator {
	produced := make(map[*tensorir.Value]bool)
	consumed := make(map[*tensorir.Value]bool)
	for _, op := range p.Ops {
		for _, r := range op.Results {
			produced[r] = true
		}
		for _, o := range op.Operands {
			consumed[o] = true
		}
	}
	var live []*tensorir.Value
	for _, op := range p.Ops {
		for _, r := range op.Results {
			if !consumed[r] {
				live = append(live, r)
			}
		}
	}
	return tensorir.Terminator{Operands: live}
}

func rankOf(counts [][3]string, i int) int {
	if i >= len(counts) {
		return 0
	}
	rank := 0
	for _, c := range counts[i] {
		if c != "" {
			rank++
		}
	}
	return rank
}
