package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorcore/tcvm/internal/tensorir"
)

func TestOutlineNamesFunctionsWithPrefixAndOrdinal(t *testing.T) {
	op := &tensorir.Op{Name: "e0", Kind: tensorir.OpElementwise, Results: []*tensorir.Value{{Name: "v0"}}}
	parts := []*Partition{{Ops: []*tensorir.Op{op}}}

	dispatches := Outline("main", parts, nil, nil)
	require.Len(t, dispatches, 1)
	require.Equal(t, "main_dispatch_0", dispatches[0].Executable.Function.Name)
	require.Equal(t, "main_dispatch_0", dispatches[0].Executable.Entry.FunctionName)
}

func TestOutlineTerminatorKeepsOnlyLiveResults(t *testing.T) {
	internalVal := &tensorir.Value{Name: "internal"}
	liveVal := &tensorir.Value{Name: "live"}
	p0 := &tensorir.Op{Name: "p0", Kind: tensorir.OpElementwise, Results: []*tensorir.Value{internalVal}}
	p1 := &tensorir.Op{Name: "p1", Kind: tensorir.OpElementwise, Operands: []*tensorir.Value{internalVal}, Results: []*tensorir.Value{liveVal}}
	parts := []*Partition{{Ops: []*tensorir.Op{p0, p1}}}

	dispatches := Outline("f", parts, nil, nil)
	term := dispatches[0].Executable.Function.Body.Terminator
	require.Equal(t, []*tensorir.Value{liveVal}, term.Operands)
}

func TestDeduplicateCollapsesStructurallyEquivalentExecutables(t *testing.T) {
	makeOp := func(shape tensorir.Shape) *tensorir.Op {
		return &tensorir.Op{Kind: tensorir.OpElementwise, Results: []*tensorir.Value{{Shape: shape}}}
	}
	parts := []*Partition{
		{Ops: []*tensorir.Op{makeOp(tensorir.Shape{4})}},
		{Ops: []*tensorir.Op{makeOp(tensorir.Shape{4})}},
		{Ops: []*tensorir.Op{makeOp(tensorir.Shape{8})}},
	}
	dispatches := Outline("f", parts, nil, nil)
	survivors := Deduplicate(dispatches)

	require.Len(t, survivors, 2)
	require.Same(t, dispatches[0].Executable, dispatches[1].Executable)
	require.NotSame(t, dispatches[0].Executable, dispatches[2].Executable)
}
