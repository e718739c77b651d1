package hal

import (
	"sync"

	"github.com/tensorcore/tcvm/status"
)

// ResourceCache holds the singleton globals described by spec.md §4.5.1:
// one descriptor-set layout per unique bindings attribute, one executable
// layout per unique (set-layouts, push-constant-count) tuple, and one
// executable per source executable. Lookups are idempotent and
// thread-safe; the first caller to request a given key pays the
// materialization cost, later callers observe the cached result (spec.md
// §4.5.1 "a one-shot initializer").
type ResourceCache struct {
	mu sync.Mutex

	setLayouts  map[DescriptorSetLayoutKey]*DescriptorSetLayout
	execLayouts map[ExecutableLayoutKey]*ExecutableLayout
	executables map[string]*Executable // keyed by caller-supplied source id
}

func NewResourceCache() *ResourceCache {
	return &ResourceCache{
		setLayouts:  map[DescriptorSetLayoutKey]*DescriptorSetLayout{},
		execLayouts: map[ExecutableLayoutKey]*ExecutableLayout{},
		executables: map[string]*Executable{},
	}
}

// DescriptorSetLayout returns the cached layout for bindings, creating it
// on first request (spec.md §4.5.1 first bullet).
func (c *ResourceCache) DescriptorSetLayout(bindings []DescriptorBinding) *DescriptorSetLayout {
	key := DescriptorSetLayoutKeyOf(bindings)
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.setLayouts[key]; ok {
		return l
	}
	l := &DescriptorSetLayout{Key: key, Bindings: bindings}
	c.setLayouts[key] = l
	return l
}

// ExecutableLayout returns the cached composite layout for the given
// ordered set-layouts and push-constant count, loading the individual
// set-layout globals (by construction, already cached) before composing
// (spec.md §4.5.1 second bullet, "initialization order must place
// dependencies before dependents").
func (c *ResourceCache) ExecutableLayout(setLayouts []*DescriptorSetLayout, pushConstantCount int) *ExecutableLayout {
	keys := make([]DescriptorSetLayoutKey, len(setLayouts))
	for i, sl := range setLayouts {
		keys[i] = sl.Key
	}
	key := ExecutableLayoutKeyOf(keys, pushConstantCount)
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.execLayouts[key]; ok {
		return l
	}
	l := &ExecutableLayout{Key: key, SetLayouts: setLayouts, PushConstantCount: pushConstantCount}
	c.execLayouts[key] = l
	return l
}

// Executable returns the cached, device-materialized Executable for
// sourceID, materializing it via build on first request (spec.md §4.5.1
// third bullet). build is only invoked while holding the cache's one-shot
// guarantee, so concurrent first-requests for the same sourceID never
// double-materialize.
func (c *ResourceCache) Executable(sourceID string, build func() (*Executable, *status.Status)) (*Executable, *status.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.executables[sourceID]; ok {
		return e, nil
	}
	e, st := build()
	if !st.OK() {
		return nil, st
	}
	c.executables[sourceID] = e
	return e, nil
}
