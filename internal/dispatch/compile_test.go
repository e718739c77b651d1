package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorcore/tcvm/internal/tensorir"
)

// TestCompileElementwiseAddEndToEnd exercises spec.md §8 scenario 1: two
// elementwise producers fused into a single consumer, outlined into one
// executable, with no deduplication to perform.
func TestCompileElementwiseAddEndToEnd(t *testing.T) {
	a := &tensorir.Value{Name: "a", Shape: tensorir.Shape{4}}
	b := &tensorir.Value{Name: "b", Shape: tensorir.Shape{4}}
	c := &tensorir.Value{Name: "c", Shape: tensorir.Shape{4}}
	lhs := &tensorir.Op{Name: "lhs", Kind: tensorir.OpElementwise, Results: []*tensorir.Value{a}}
	rhs := &tensorir.Op{Name: "rhs", Kind: tensorir.OpElementwise, Results: []*tensorir.Value{b}}
	add := &tensorir.Op{Name: "add", Kind: tensorir.OpElementwise, Operands: []*tensorir.Value{a, b}, Results: []*tensorir.Value{c}}
	region := &tensorir.Region{Ops: []*tensorir.Op{lhs, rhs, add}, Terminator: tensorir.Terminator{Operands: []*tensorir.Value{c}}}
	fn := &tensorir.Function{Name: "add_fn", Body: region}

	result := Compile(fn, "add_fn", true)
	require.Len(t, result.Partitions, 1)
	require.Len(t, result.Dispatches, 1)
	require.Len(t, result.Executables, 1)
	require.Equal(t, "add_fn_dispatch_0", result.Executables[0].Function.Name)
}

// TestCompileMatmulWithFusionEndToEnd exercises spec.md §8 scenario 2: a
// matmul reduction feeding an elementwise bias-add, fused into one
// region, tiled via the nested-parallel distribution.
func TestCompileMatmulWithFusionEndToEnd(t *testing.T) {
	lhs := &tensorir.Value{Name: "lhs", Shape: tensorir.Shape{8, 16}}
	rhs := &tensorir.Value{Name: "rhs", Shape: tensorir.Shape{16, 32}}
	acc := &tensorir.Value{Name: "acc", Shape: tensorir.Shape{8, 32}}
	biased := &tensorir.Value{Name: "biased", Shape: tensorir.Shape{8, 32}}
	matmul := &tensorir.Op{Name: "matmul", Kind: tensorir.OpReduction, Operands: []*tensorir.Value{lhs, rhs}, Results: []*tensorir.Value{acc}}
	bias := &tensorir.Op{Name: "bias", Kind: tensorir.OpElementwise, Operands: []*tensorir.Value{acc}, Results: []*tensorir.Value{biased}}
	region := &tensorir.Region{Ops: []*tensorir.Op{matmul, bias}, Terminator: tensorir.Terminator{Operands: []*tensorir.Value{biased}}}
	fn := &tensorir.Function{Name: "matmul_fn", Body: region}

	result := Compile(fn, "matmul_fn", false)
	require.Len(t, result.Partitions, 1)
	require.Len(t, result.Dispatches, 1)
	require.Len(t, result.Executables, 1)
	require.True(t, result.Plans[0].WorkgroupBoundsGuardRequired, "workgroup count was not declared known, so a guard must be emitted")
	require.Equal(t, [3]string{"8", "32"}, result.Dispatches[0].WorkgroupCount)
}

// TestCompileTwoDispatchesDeduplicatesStructurallyEquivalentExecutables
// exercises spec.md §8 scenario 3: two structurally identical elementwise
// regions compile to a single surviving executable.
func TestCompileTwoDispatchesDeduplicatesStructurallyEquivalentExecutables(t *testing.T) {
	mk := func(suffix string) *tensorir.Op {
		v := &tensorir.Value{Name: "v" + suffix, Shape: tensorir.Shape{4}}
		r := &tensorir.Value{Name: "r" + suffix, Shape: tensorir.Shape{4}}
		return &tensorir.Op{Name: "op" + suffix, Kind: tensorir.OpElementwise, Operands: []*tensorir.Value{v}, Results: []*tensorir.Value{r}}
	}
	src1 := &tensorir.Value{Name: "v1", Shape: tensorir.Shape{4}}
	src2 := &tensorir.Value{Name: "v2", Shape: tensorir.Shape{4}}
	op1 := mk("1")
	op1.Operands = []*tensorir.Value{src1}
	op2 := mk("2")
	op2.Operands = []*tensorir.Value{src2}
	region := &tensorir.Region{Ops: []*tensorir.Op{op1, op2}, Terminator: tensorir.Terminator{Operands: op1.Results[0:1]}}
	region.Terminator.Operands = append(region.Terminator.Operands, op2.Results[0])
	fn := &tensorir.Function{Name: "two_dispatch_fn", Body: region}

	result := Compile(fn, "two_dispatch_fn", true)
	require.Len(t, result.Partitions, 2)
	require.Len(t, result.Dispatches, 2)
	require.Len(t, result.Executables, 1, "both regions compute structurally identical single-op elementwise kernels")
}
