package hal

import (
	"fmt"
	"strings"
)

// DescriptorBinding describes one binding slot within a descriptor-set
// layout (spec.md §4.5.1 "descriptor-set-layout-bindings attribute").
type DescriptorBinding struct {
	Ordinal int
	Usage   UsageBits
}

// DescriptorSetLayoutKey is the structural identity used to deduplicate
// descriptor-set layouts across the module (spec.md §4.5.1 "for each
// unique descriptor-set-layout-bindings attribute, create a global").
type DescriptorSetLayoutKey string

// DescriptorSetLayoutKeyOf builds the canonical key for a binding list:
// bindings are sorted by ordinal before hashing, so two structurally
// identical binding sets always produce the same key regardless of
// declaration order.
func DescriptorSetLayoutKeyOf(bindings []DescriptorBinding) DescriptorSetLayoutKey {
	sorted := append([]DescriptorBinding(nil), bindings...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Ordinal > sorted[j].Ordinal; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	var b strings.Builder
	for _, bind := range sorted {
		fmt.Fprintf(&b, "%d:%d,", bind.Ordinal, bind.Usage)
	}
	return DescriptorSetLayoutKey(b.String())
}

// DescriptorSetLayout is a materialized, cacheable layout (spec.md §3
// "Executable Layout"; §4.5.1 first bullet).
type DescriptorSetLayout struct {
	Key      DescriptorSetLayoutKey
	Bindings []DescriptorBinding
}

// ExecutableLayoutKey is the structural identity for the (ordered
// set-layouts, push-constant-count) tuple (spec.md §4.5.1 second bullet).
type ExecutableLayoutKey string

// ExecutableLayoutKeyOf builds the canonical key for an executable
// layout: the ordered set-layout keys (order is significant - set index
// matters) plus the push-constant count.
func ExecutableLayoutKeyOf(setLayouts []DescriptorSetLayoutKey, pushConstantCount int) ExecutableLayoutKey {
	var b strings.Builder
	for _, k := range setLayouts {
		b.WriteString(string(k))
		b.WriteByte('|')
	}
	fmt.Fprintf(&b, "pc=%d", pushConstantCount)
	return ExecutableLayoutKey(b.String())
}

// ExecutableLayout is the composite binding layout an Executable is built
// against (spec.md §3 "Executable Layout").
type ExecutableLayout struct {
	Key               ExecutableLayoutKey
	SetLayouts        []*DescriptorSetLayout
	PushConstantCount int
}
