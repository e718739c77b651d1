package dispatch

import (
	"strconv"

	"github.com/tensorcore/tcvm/internal/tensorir"
)

// CompileResult is the full output of running dispatch formation
// end-to-end over one tensor-IR function (spec.md §4.6's partition →
// tile/distribute → outline → deduplicate pipeline, spec.md §8's
// end-to-end scenarios).
type CompileResult struct {
	Partitions  []*Partition
	Plans       []TilingPlan
	Dispatches  []*DispatchOp
	Executables []*OutlinedExecutable
}

// Compile runs the dispatch-formation pipeline over fn: partitioning
// into fusable regions, choosing a tiling/distribution plan per region
// (the leaf-elementwise fallback for single elementwise ops, nested
// parallel distribution otherwise), outlining each region into an
// executable, and deduplicating structurally-equivalent executables.
//
// workgroupCountKnown is forwarded to DistributeNestedParallel for every
// non-leaf region (spec.md §4.6.2's guard-emission rule); a text/binary
// tensor-IR parser that would derive this per-dispatch is out of scope
// here, so callers that need per-dispatch control should call Partition
// and the tiling/outline/dedup functions directly instead.
func Compile(fn *tensorir.Function, namePrefix string, workgroupCountKnown bool) *CompileResult {
	partitions := Partition(fn)

	plans := make([]TilingPlan, len(partitions))
	workgroupCounts := make([][3]string, len(partitions))
	for i, p := range partitions {
		plans[i] = planFor(p, workgroupCountKnown)
		workgroupCounts[i] = workgroupCountStrings(plans[i])
	}

	dispatches := Outline(namePrefix, partitions, workgroupCounts, nil)
	executables := Deduplicate(dispatches)

	return &CompileResult{
		Partitions:  partitions,
		Plans:       plans,
		Dispatches:  dispatches,
		Executables: executables,
	}
}

// planFor picks DistributeLeafElementwise for a single-op elementwise
// region (spec.md §4.6.2's fallback case) and DistributeNestedParallel
// otherwise, using the result shape of the partition's root consumer as
// its iteration space - the outlined region's terminator is keyed off
// exactly that shape once codegen lowers it. Partition places the root
// consumer first and appends the producers fused into it after it.
func planFor(p *Partition, workgroupCountKnown bool) TilingPlan {
	if len(p.Ops) == 1 && p.Ops[0].Kind == tensorir.OpElementwise {
		return DistributeLeafElementwise(shapeOf(p.Ops[0]))
	}
	shape := shapeOf(p.Ops[0])
	return DistributeNestedParallel(shape, nil, workgroupCountKnown)
}

func shapeOf(op *tensorir.Op) []int64 {
	if len(op.Results) == 0 {
		return nil
	}
	return op.Results[0].Shape
}

func workgroupCountStrings(plan TilingPlan) [3]string {
	var out [3]string
	for _, loop := range plan.WorkgroupLoops {
		if loop.Dim < 0 || loop.Dim > 2 {
			continue
		}
		out[loop.Dim] = formatAxisSize(loop.Axis.Size)
	}
	return out
}

func formatAxisSize(size int64) string {
	if size < 0 {
		return "dynamic"
	}
	return strconv.FormatInt(size, 10)
}
