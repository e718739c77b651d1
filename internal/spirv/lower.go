// Package spirv implements the final GPU-target lowering pass (spec.md
// §4.7): converting host interface constructs into SPIR-V-native forms
// for an outlined dispatch executable.
package spirv

// PushConstantField is one element-sized slot of the push-constant
// struct a dispatch's host interface load-constants are converted into
// (spec.md §4.7 "a push-constant global variable whose pointee type is a
// struct wrapping an array of index-sized elements").
type PushConstantField struct {
	Ordinal    int
	IndexWidth int // bit width of the index-sized element type
}

// PushConstantLayout is the materialized struct type backing every
// load-constant in one executable.
type PushConstantLayout struct {
	Fields []PushConstantField
}

// LowerLoadConstant converts a host interface load-constant at ordinal
// into an indexed load from the push-constant global (spec.md §4.7
// first bullet).
func LowerLoadConstant(layout *PushConstantLayout, ordinal int) PushConstantField {
	for _, f := range layout.Fields {
		if f.Ordinal == ordinal {
			return f
		}
	}
	f := PushConstantField{Ordinal: ordinal, IndexWidth: 32}
	layout.Fields = append(layout.Fields, f)
	return f
}

// BuiltinKind enumerates the SPIR-V built-ins workgroup-id/workgroup-count
// ops are converted into (spec.md §4.7 second bullet).
type BuiltinKind uint8

const (
	BuiltinWorkgroupID BuiltinKind = iota
	BuiltinNumWorkgroups
)

// BuiltinExtract is a conversion of one workgroup-id/workgroup-count op
// into an extract from the named SPIR-V built-in along the given
// component (0=x, 1=y, 2=z).
type BuiltinExtract struct {
	Builtin   BuiltinKind
	Component int
}

// LowerWorkgroupOp implements spec.md §4.7 second bullet.
func LowerWorkgroupOp(isCount bool, component int) BuiltinExtract {
	b := BuiltinWorkgroupID
	if isCount {
		b = BuiltinNumWorkgroups
	}
	return BuiltinExtract{Builtin: b, Component: component}
}

// ResourceVariable is a module-level SPIR-V resource variable bound at
// (set, binding) that an interface-binding/subspan op is converted into
// (spec.md §4.7 third bullet).
type ResourceVariable struct {
	Set     int
	Binding int
	Aliased bool
}

// BindingSite identifies one interface-binding/subspan op within a
// single function, by the (set, binding) pair it targets.
type BindingSite struct {
	Set     int
	Binding int
}

// LowerInterfaceBindings implements spec.md §4.7 third bullet: one
// ResourceVariable per unique (set, binding) pair referenced by sites,
// with Aliased set when more than one site in sites targets the same
// pair within this single function.
func LowerInterfaceBindings(sites []BindingSite) []ResourceVariable {
	counts := map[BindingSite]int{}
	var order []BindingSite
	for _, s := range sites {
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
	}
	out := make([]ResourceVariable, len(order))
	for i, s := range order {
		out[i] = ResourceVariable{Set: s.Set, Binding: s.Binding, Aliased: counts[s] > 1}
	}
	return out
}

// CooperativeMatrixCandidate describes a subgroup-level vector transfer
// considered for cooperative-matrix promotion (spec.md §4.7 fourth
// bullet).
type CooperativeMatrixCandidate struct {
	RowMajor             bool
	IdentityPermutation  bool
	StaticStrides        bool
	ParticipatesInMatmul bool
}

// Promotable reports whether the candidate satisfies every condition
// spec.md §4.7's optional promotion requires: "the op participates in a
// cooperative-matrix compatible matmul, with row-major indexing,
// identity permutation, and static strides."
func (c CooperativeMatrixCandidate) Promotable() bool {
	return c.ParticipatesInMatmul && c.RowMajor && c.IdentityPermutation && c.StaticStrides
}

// CooperativeMatrixOp is what a promotable candidate's load/store and the
// enclosing contraction are rewritten into (spec.md §4.7 fourth bullet:
// "loads replaced with cooperative-matrix load ops; contraction replaced
// with mul-add; stores replaced with cooperative-matrix store ops").
type CooperativeMatrixOp uint8

const (
	CoopMatrixLoad CooperativeMatrixOp = iota
	CoopMatrixMulAdd
	CoopMatrixStore
)

// PromoteCooperativeMatrix returns the replacement op sequence for a
// promotable candidate, or nil if it does not qualify.
func PromoteCooperativeMatrix(c CooperativeMatrixCandidate) []CooperativeMatrixOp {
	if !c.Promotable() {
		return nil
	}
	return []CooperativeMatrixOp{CoopMatrixLoad, CoopMatrixMulAdd, CoopMatrixStore}
}
