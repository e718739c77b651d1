package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tensorcore/tcvm/internal/tensorir"
)

// StructuralKey is the canonical hash of an OutlinedExecutable's inner
// module, including its entry-point interface (spec.md §4.6.4
// "structural equivalence of their inner module (including entry-point
// interface)"). Attribute ordering is canonicalized before hashing per
// §9's open-question resolution: "a conservative choice is canonical
// sorting of attributes before hashing" - see DESIGN.md.
type StructuralKey string

// KeyOf builds e's structural key from its function body (op kinds,
// operand/result shapes, iterator kinds, in that per-op order) plus its
// entry-point rank, so two executables with identical computation but
// different symbol names still compare equal.
func KeyOf(e *OutlinedExecutable) StructuralKey {
	var b strings.Builder
	fmt.Fprintf(&b, "rank=%d;", e.Entry.WorkgroupRank)
	for _, op := range e.Function.Body.Ops {
		fmt.Fprintf(&b, "op(%s,", op.Kind)
		for _, v := range op.Operands {
			fmt.Fprintf(&b, "%s,", shapeKey(v.Shape))
		}
		b.WriteString("->")
		for _, v := range op.Results {
			fmt.Fprintf(&b, "%s,", shapeKey(v.Shape))
		}
		iters := append([]tensorir.IteratorKind(nil), op.Iterators...)
		sort.Slice(iters, func(i, j int) bool { return iters[i] < iters[j] })
		for _, it := range iters {
			fmt.Fprintf(&b, "%s,", it)
		}
		b.WriteString(");")
	}
	fmt.Fprintf(&b, "terminator(%d)", len(e.Function.Body.Terminator.Operands))
	return StructuralKey(b.String())
}

func shapeKey(s tensorir.Shape) string {
	var b strings.Builder
	for _, d := range s {
		fmt.Fprintf(&b, "%d.", d)
	}
	return b.String()
}

// Deduplicate implements spec.md §4.6.4: groups executables by
// StructuralKey, keeps one representative per class, and rewrites every
// DispatchOp that referenced a non-representative to the representative.
// Returns the surviving (deduplicated) executable set.
func Deduplicate(ops []*DispatchOp) []*OutlinedExecutable {
	representative := map[StructuralKey]*OutlinedExecutable{}
	var order []StructuralKey

	for _, op := range ops {
		key := KeyOf(op.Executable)
		rep, ok := representative[key]
		if !ok {
			representative[key] = op.Executable
			order = append(order, key)
			continue
		}
		op.Executable = rep
	}

	out := make([]*OutlinedExecutable, len(order))
	for i, k := range order {
		out[i] = representative[k]
	}
	return out
}
