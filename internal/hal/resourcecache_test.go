package hal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorcore/tcvm/status"
)

func TestDescriptorSetLayoutKeyIgnoresOrder(t *testing.T) {
	a := []DescriptorBinding{{Ordinal: 1, Usage: UsageDispatch}, {Ordinal: 0, Usage: UsageTransfer}}
	b := []DescriptorBinding{{Ordinal: 0, Usage: UsageTransfer}, {Ordinal: 1, Usage: UsageDispatch}}
	require.Equal(t, DescriptorSetLayoutKeyOf(a), DescriptorSetLayoutKeyOf(b))
}

func TestResourceCacheDeduplicatesSetLayouts(t *testing.T) {
	c := NewResourceCache()
	bindings := []DescriptorBinding{{Ordinal: 0, Usage: UsageDispatch}}
	l1 := c.DescriptorSetLayout(bindings)
	l2 := c.DescriptorSetLayout(append([]DescriptorBinding(nil), bindings...))
	require.Same(t, l1, l2)
}

func TestResourceCacheExecutableLayoutOrderSensitive(t *testing.T) {
	c := NewResourceCache()
	a := c.DescriptorSetLayout([]DescriptorBinding{{Ordinal: 0, Usage: UsageDispatch}})
	b := c.DescriptorSetLayout([]DescriptorBinding{{Ordinal: 0, Usage: UsageTransfer}})

	ab := c.ExecutableLayout([]*DescriptorSetLayout{a, b}, 2)
	ba := c.ExecutableLayout([]*DescriptorSetLayout{b, a}, 2)
	require.NotEqual(t, ab.Key, ba.Key)
}

func TestResourceCacheExecutableLayoutDeduplicates(t *testing.T) {
	c := NewResourceCache()
	a := c.DescriptorSetLayout([]DescriptorBinding{{Ordinal: 0, Usage: UsageDispatch}})
	l1 := c.ExecutableLayout([]*DescriptorSetLayout{a}, 1)
	l2 := c.ExecutableLayout([]*DescriptorSetLayout{a}, 1)
	require.Same(t, l1, l2)
}

func TestResourceCacheExecutableBuildsOnce(t *testing.T) {
	c := NewResourceCache()
	builds := 0
	build := func() (*Executable, *status.Status) {
		builds++
		return MaterializeExecutable(BackendCPU, []ExecutableCandidate{{Backend: BackendCPU, Entries: []EntryPoint{{Name: "main"}}}}, nil)
	}
	e1, st := c.Executable("src-a", build)
	require.True(t, st.OK())
	e2, st := c.Executable("src-a", build)
	require.True(t, st.OK())
	require.Same(t, e1, e2)
	require.Equal(t, 1, builds)
}

func TestMaterializeExecutableNoMatchIsNotFound(t *testing.T) {
	_, st := MaterializeExecutable(BackendSPIRV, []ExecutableCandidate{{Backend: BackendCPU}}, nil)
	require.False(t, st.OK())
	require.Equal(t, status.NotFound, st.Code())
}
