package dispatch

// Axis is one loop-nest dimension after tiling, tagged with the
// distribution target chosen for it (spec.md §4.6.2).
type Axis struct {
	Size int64 // -1 if dynamic; only the global-invocation-id fallback tolerates this
	// Cyclic selects the cyclic-distribution stride form ("lb + id*step,
	// step*nprocs") over single-iteration-per-processor (spec.md §4.6.2
	// "Cyclic vs. single-iteration per processor is chosen per op based
	// on a marker set during tiling").
	Cyclic bool
}

// DistributionTarget classifies where an Axis's iterations are mapped
// (spec.md §4.6.2).
type DistributionTarget uint8

const (
	TargetWorkgroup DistributionTarget = iota
	TargetWorkitem
	TargetSerialized
	TargetGlobalInvocation
)

// Loop is one distributed dimension of a tiled region: its axis, the
// distribution target, and (for workgroup/workitem targets) which of
// x/y/z it binds.
type Loop struct {
	Axis   Axis
	Target DistributionTarget
	Dim    int // 0=x, 1=y, 2=z; meaningless for TargetSerialized/TargetGlobalInvocation
}

// TilingPlan is the result of distributing a Partition's iteration space
// (spec.md §4.6.2).
type TilingPlan struct {
	WorkgroupLoops []Loop
	WorkitemLoops  []Loop
	SerializedLoop []Loop
	// GlobalInvocation is set instead of WorkgroupLoops/WorkitemLoops for
	// leaf elementwise ops using the collapsed single-axis fallback
	// (spec.md §4.6.2 "Global invocation id (fallback for leaf
	// elementwise ops)").
	GlobalInvocation *Loop
	// WorkgroupBoundsGuardRequired marks that the workgroup loops need a
	// runtime bounds check around their body (spec.md §4.6.2 "no guard is
	// emitted when workgroup count is declared sufficient"). Unset for
	// DistributeLeafElementwise, which has no workgroup loops to guard.
	WorkgroupBoundsGuardRequired bool
}

// DistributeLeafElementwise implements the fallback path: a collapsed
// single-axis loop of product length, one iteration per global
// invocation, with de-linearization left to the codegen consumer of this
// plan (spec.md §4.6.2 "with de-linearization at the top of the body to
// recover original induction variables").
func DistributeLeafElementwise(shape []int64) TilingPlan {
	total := int64(1)
	dynamic := false
	for _, d := range shape {
		if d < 0 {
			dynamic = true
			continue
		}
		total *= d
	}
	size := total
	if dynamic {
		size = -1
	}
	loop := Loop{Axis: Axis{Size: size}, Target: TargetGlobalInvocation}
	return TilingPlan{GlobalInvocation: &loop}
}

// DistributeNestedParallel implements the general case: outer axes (up
// to three) map to workgroup id, the next tier to workitem id, excess
// axes serialize (spec.md §4.6.2 "outer-three axes → workgroup id
// (x/y/z); excess axes are serialized").
//
// workgroupCountKnown marks whether the caller has declared a sufficient
// workgroup count up front, in which case no bounds guard is required on
// the workgroup loops (spec.md §4.6.2 "When the workgroup count is
// declared sufficient, no guard is emitted"); the decision is carried
// forward on the returned plan's WorkgroupBoundsGuardRequired so codegen
// can act on it.
func DistributeNestedParallel(axisSizes []int64, cyclic []bool, workgroupCountKnown bool) TilingPlan {
	var plan TilingPlan
	for i, size := range axisSizes {
		axis := Axis{Size: size, Cyclic: cyclic != nil && i < len(cyclic) && cyclic[i]}
		switch {
		case i < 3:
			plan.WorkgroupLoops = append(plan.WorkgroupLoops, Loop{Axis: axis, Target: TargetWorkgroup, Dim: i})
		case i < 6:
			plan.WorkitemLoops = append(plan.WorkitemLoops, Loop{Axis: axis, Target: TargetWorkitem, Dim: i - 3})
		default:
			plan.SerializedLoop = append(plan.SerializedLoop, Loop{Axis: axis, Target: TargetSerialized})
		}
	}
	plan.WorkgroupBoundsGuardRequired = len(plan.WorkgroupLoops) > 0 && !workgroupCountKnown
	return plan
}

// CopyDistribution implements spec.md §4.6.2's workgroup-local-memory
// copy rule: "all loops of the copy are collapsed into one, and
// distribution is chosen by comparing the total byte count against the
// workgroup's total invocation count: if ≤, single-iteration with a
// bounds guard; else cyclic." The returned Axis records only the cyclic
// choice; the bounds guard of the single-iteration case is not recorded.
func CopyDistribution(totalBytes int64, workgroupInvocations int64) Axis {
	return Axis{Size: totalBytes, Cyclic: totalBytes > workgroupInvocations}
}
