// Package dispatch implements dispatch formation (spec.md §4.6):
// partitioning a tensor-IR function into fusable regions, tiling and
// distributing each region to workgroups/workitems, outlining regions
// into executables, deduplicating structurally-equivalent executables,
// and rematerializing small captured constants.
package dispatch

import "github.com/tensorcore/tcvm/internal/tensorir"

// Partition is one maximal fusable subgraph identified by Partition
// (spec.md §3 "Dispatch region" at the IR-partitioning stage, before
// outlining).
type Partition struct {
	Ops []*tensorir.Op
}

// Partition implements spec.md §4.6.1: "a producer is fused into a
// consumer's region iff all consumers of that producer are in the same
// region and the producer's iteration space shape-matches the
// consumer's along fused dimensions. Elementwise producers are always
// fused into their single consumer. Reduction producers are never fused
// into their consumer unless the consumer is itself an elementwise op
// over the reduction's result."
func Partition(fn *tensorir.Function) []*Partition {
	region := fn.Body
	// owner maps an Op to the partition index it currently belongs to;
	// partitions start one-op-each and are merged by union via owner
	// reassignment (no path compression needed at this scale).
	owner := make(map[*tensorir.Op]int, len(region.Ops))
	groups := make([][]*tensorir.Op, len(region.Ops))
	for i, op := range region.Ops {
		owner[op] = i
		groups[i] = []*tensorir.Op{op}
	}

	merge := func(from, into int) {
		if from == into {
			return
		}
		for _, op := range groups[from] {
			owner[op] = into
		}
		groups[into] = append(groups[into], groups[from]...)
		groups[from] = nil
	}

	for _, consumer := range region.Ops {
		for _, operand := range consumer.Operands {
			producer := region.Producer(operand)
			if producer == nil {
				continue // function argument, not a local producer
			}
			if !fusable(region, producer, consumer, operand) {
				continue
			}
			merge(owner[producer], owner[consumer])
		}
	}

	var out []*Partition
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		out = append(out, &Partition{Ops: dedupeOps(g)})
	}
	return out
}

func fusable(region *tensorir.Region, producer, consumer *tensorir.Op, via *tensorir.Value) bool {
	// "all consumers of that producer are in the same region" - since
	// fusion only ever merges producer into the single consumer under
	// consideration, this holds iff producer has exactly one consumer.
	if len(region.Uses(via)) != 1 {
		return false
	}
	if producer.Kind == tensorir.OpReduction {
		// "never fused ... unless the consumer is itself an elementwise
		// op over the reduction's result."
		return consumer.Kind == tensorir.OpElementwise
	}
	if producer.Kind == tensorir.OpElementwise {
		return true
	}
	if producer.Kind == tensorir.OpReshape && via.Shape.HasDynamicDim() {
		// Reject fusing a reshape whose result shape is dynamic until a
		// clear rule for its interaction with the consumer's iteration
		// space is agreed (spec.md §9 open question).
		return false
	}
	// General case (matmul/reshape/other producers): spec.md §4.6.1
	// requires the producer's iteration space to shape-match the
	// consumer's along fused dimensions. via is the same Value object as
	// the matching entry in producer.Results, so comparing via.Shape
	// against itself checks nothing; compare against the consumer's own
	// iteration-space shape instead.
	consumerShape := iterationShape(consumer)
	if consumerShape == nil {
		return false
	}
	return shapeMatchesAlongFusedDims(via.Shape, consumerShape)
}

// iterationShape approximates an op's iteration-space extents by its
// first result's shape; ops with no results have no iteration space to
// match against.
func iterationShape(op *tensorir.Op) tensorir.Shape {
	if len(op.Results) == 0 {
		return nil
	}
	return op.Results[0].Shape
}

// shapeMatchesAlongFusedDims compares the leading dimensions shared by
// both shapes (the "fused dimensions" - the rank at which the smaller
// iteration space is nested inside the larger one) for equality. Two
// empty shapes never match: there is no fused dimension to check.
func shapeMatchesAlongFusedDims(a, b tensorir.Shape) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func dedupeOps(ops []*tensorir.Op) []*tensorir.Op {
	seen := make(map[*tensorir.Op]bool, len(ops))
	var out []*tensorir.Op
	for _, op := range ops {
		if seen[op] {
			continue
		}
		seen[op] = true
		out = append(out, op)
	}
	return out
}
