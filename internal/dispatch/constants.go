package dispatch

import "github.com/tensorcore/tcvm/internal/tensorir"

// DefaultRematerializationThresholdBytes bounds the captured-constant
// size below which spec.md §4.6.5 always rematerializes (splats excepted,
// which qualify regardless of size).
const DefaultRematerializationThresholdBytes = 256

// ShouldRematerialize implements spec.md §4.6.5: "Constants below a size
// threshold (splats always qualify regardless of size) are
// rematerialized inside the region body - the capture is removed and the
// constant is cloned at the head of the region. Larger constants remain
// captured and are eventually outlined as module-level variables."
func ShouldRematerialize(op *tensorir.Op, thresholdBytes int) bool {
	if op.IsSplat {
		return true
	}
	return len(op.ConstantBytes) < thresholdBytes
}

// Rematerialize moves every constant op qualifying under thresholdBytes
// to the head of region's op list, in their original relative order,
// preserving each constant op's Value identity so operands elsewhere in
// the region continue to reference the same producer (spec.md §4.6.5
// "the capture is removed and the constant is cloned at the head of the
// region" - modeled here as relocation rather than duplication, since
// this IR has no separate out-of-region capture reference to remove).
// Constants not selected are left in place and returned in capturedOut
// for the caller to outline as module-level variables.
func Rematerialize(region *tensorir.Region, thresholdBytes int) (capturedOut []*tensorir.Op) {
	var head []*tensorir.Op
	var rest []*tensorir.Op
	for _, op := range region.Ops {
		if op.ConstantBytes != nil && ShouldRematerialize(op, thresholdBytes) {
			head = append(head, op)
			continue
		}
		if op.ConstantBytes != nil {
			capturedOut = append(capturedOut, op)
		}
		rest = append(rest, op)
	}
	region.Ops = append(head, rest...)
	return capturedOut
}
