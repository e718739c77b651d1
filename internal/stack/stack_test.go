package stack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorcore/tcvm/api"
	"github.com/tensorcore/tcvm/internal/allocator"
	"github.com/tensorcore/tcvm/internal/module"
	"github.com/tensorcore/tcvm/status"
)

// fakeModule is a minimal module.Module used only to give frames a
// non-nil Module for depth/parent/backtrace bookkeeping; this package
// tests stack mechanics, not module resolution.
type fakeModule struct {
	name string
}

func (m *fakeModule) Name() string              { return m.name }
func (m *fakeModule) Signature() (int, int, int) { return 0, 0, 0 }
func (m *fakeModule) LookupFunctionByName(api.Linkage, string) (*module.Function, *status.Status) {
	return nil, status.New(status.NotFound, "")
}
func (m *fakeModule) LookupFunctionByOrdinal(api.Linkage, module.Index) (*module.Function, string, module.Signature, *status.Status) {
	return nil, "", module.Signature{}, status.New(status.OutOfRange, "")
}
func (m *fakeModule) AllocState(allocator.Allocator) (module.State, *status.Status) { return nil, nil }
func (m *fakeModule) FreeState(module.State)                                       {}
func (m *fakeModule) ResolveImport(module.State, module.Index, *module.Function, module.Signature) *status.Status {
	return nil
}
func (m *fakeModule) BeginCall(interface{}, *module.CallRecord) *status.Status { return nil }
func (m *fakeModule) ResolveSourceLocation(module.FrameInfo) (status.SourceLocation, bool) {
	return status.SourceLocation{}, false
}

type fixedResolver struct {
	state module.State
	err   *status.Status
}

func (r fixedResolver) ResolveState(*module.Function) (module.State, *status.Status) {
	return r.state, r.err
}

func newFn(mod *fakeModule, name string) *module.Function {
	return &module.Function{Name: name, Module: mod}
}

func TestEnterLeaveBalances(t *testing.T) {
	mod := &fakeModule{name: "M"}
	resolver := fixedResolver{state: "state"}
	s := New(allocator.Go{}, resolver, 256, 4096)

	f, st := s.Enter(newFn(mod, "f"), FrameNative, 16, nil)
	require.True(t, st.OK())
	require.Equal(t, uint32(0), f.Depth)
	require.Equal(t, s.Top(), f)
	require.Greater(t, s.Size(), 0)

	require.True(t, s.Leave().OK())
	require.Equal(t, 0, s.Size())
	require.Nil(t, s.Top())
}

func TestLeaveEmptyFails(t *testing.T) {
	s := New(allocator.Go{}, fixedResolver{}, 256, 4096)
	st := s.Leave()
	require.False(t, st.OK())
	require.Equal(t, status.FailedPrecondition, st.Code())
}

func TestCleanupRunsOnLeave(t *testing.T) {
	mod := &fakeModule{name: "M"}
	s := New(allocator.Go{}, fixedResolver{state: "s"}, 256, 4096)
	called := false
	_, st := s.Enter(newFn(mod, "f"), FrameNative, 8, func(payload []byte) { called = true })
	require.True(t, st.OK())
	require.True(t, s.Leave().OK())
	require.True(t, called)
}

func TestNestedDepthAndParent(t *testing.T) {
	mod := &fakeModule{name: "M"}
	s := New(allocator.Go{}, fixedResolver{state: "s"}, 256, 4096)
	f1, _ := s.Enter(newFn(mod, "f1"), FrameNative, 0, nil)
	f2, _ := s.Enter(newFn(mod, "f2"), FrameNative, 0, nil)
	require.Equal(t, f1, f2.Parent)
	require.Equal(t, uint32(1), f2.Depth)
	require.True(t, s.Leave().OK())
	require.Equal(t, f1, s.Top())
	require.True(t, s.Leave().OK())
	require.Nil(t, s.Top())
}

func TestSameModuleReusesState(t *testing.T) {
	mod := &fakeModule{name: "M"}
	calls := 0
	resolver := countingResolver{fn: func() (module.State, *status.Status) {
		calls++
		return "state", nil
	}}
	s := New(allocator.Go{}, resolver, 256, 4096)
	f1, _ := s.Enter(newFn(mod, "f1"), FrameNative, 0, nil)
	f2, _ := s.Enter(newFn(mod, "f2"), FrameNative, 0, nil)
	require.Equal(t, 1, calls)
	require.Equal(t, f1.ModuleState, f2.ModuleState)
}

type countingResolver struct {
	fn func() (module.State, *status.Status)
}

func (c countingResolver) ResolveState(*module.Function) (module.State, *status.Status) { return c.fn() }

func TestGrowthDoublesToHardCap(t *testing.T) {
	mod := &fakeModule{name: "M"}
	s := New(allocator.Go{}, fixedResolver{state: "s"}, 64, 4096)
	require.Equal(t, 64, s.Cap())
	// required = 64 (header) + 50 (payload) = 114, so capacity must double
	// from 64 to 128 exactly once.
	_, st := s.Enter(newFn(mod, "f"), FrameNative, 50, nil)
	require.True(t, st.OK())
	require.Equal(t, 128, s.Cap())
}

func TestGrowthExceedingHardCapFails(t *testing.T) {
	mod := &fakeModule{name: "M"}
	s := New(allocator.Go{}, fixedResolver{state: "s"}, 64, 128)
	_, st := s.Enter(newFn(mod, "f"), FrameNative, 1000, nil)
	require.False(t, st.OK())
	require.Equal(t, status.ResourceExhausted, st.Code())
}

func TestStaticStorageWithoutAllocatorFailsGrowth(t *testing.T) {
	mod := &fakeModule{name: "M"}
	s := New(nil, fixedResolver{state: "s"}, 32, 128, WithExternalReadOnlyStorage())
	_, st := s.Enter(newFn(mod, "f"), FrameNative, 1000, nil)
	require.False(t, st.OK())
	require.Equal(t, status.ResourceExhausted, st.Code())
}

func TestBacktraceDisabledIsEmpty(t *testing.T) {
	mod := &fakeModule{name: "M"}
	s := New(allocator.Go{}, fixedResolver{state: "s"}, 256, 4096, WithBacktracesDisabled())
	s.Enter(newFn(mod, "f"), FrameNative, 0, nil)
	require.Equal(t, "", s.Backtrace())
}

func TestBacktraceListsFramesTopToBottom(t *testing.T) {
	mod := &fakeModule{name: "M"}
	s := New(allocator.Go{}, fixedResolver{state: "s"}, 256, 4096)
	s.Enter(newFn(mod, "outer"), FrameBytecode, 0, nil)
	s.Enter(newFn(mod, "inner"), FrameNative, 0, nil)
	bt := s.Backtrace()
	require.Contains(t, bt, "M.inner")
	require.Contains(t, bt, "M.outer")
	// inner (depth 1, pushed last) must print before outer (depth 0).
	require.Less(t, indexOf(bt, "M.inner"), indexOf(bt, "M.outer"))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
