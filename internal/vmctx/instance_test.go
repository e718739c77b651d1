package vmctx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorcore/tcvm/api"
	"github.com/tensorcore/tcvm/internal/allocator"
	"github.com/tensorcore/tcvm/internal/module"
	"github.com/tensorcore/tcvm/status"
)

// testState is the module.State produced by AllocState: resolved import
// function pointers.
type testState struct {
	resolvedImports map[module.Index]*module.Function
}

// testModule is a minimal, fully in-memory module.Module used to drive
// Context registration/resolution tests end to end.
type testModule struct {
	name    string
	imports []*module.Function // linkage=import, declared signature/conv
	exports []*module.Function // linkage=export

	initCalls   *[]string
	deinitCalls *[]string
	failInit    bool
	freed       *bool
}

func newTestModule(name string) *testModule {
	return &testModule{name: name}
}

func (m *testModule) addExport(name string, sig module.Signature, conv api.ConvString) *module.Function {
	fn := &module.Function{Name: name, Signature: sig, Conv: conv, Linkage: api.LinkageExport, Module: m, Ordinal: module.Index(len(m.exports))}
	m.exports = append(m.exports, fn)
	return fn
}

func (m *testModule) addImport(name string, sig module.Signature, conv api.ConvString) *module.Function {
	fn := &module.Function{Name: name, Signature: sig, Conv: conv, Linkage: api.LinkageImport, Module: m, Ordinal: module.Index(len(m.imports))}
	m.imports = append(m.imports, fn)
	return fn
}

func (m *testModule) Name() string { return m.name }

func (m *testModule) Signature() (imports, internals, exports int) {
	return len(m.imports), 0, len(m.exports)
}

func (m *testModule) LookupFunctionByName(linkage api.Linkage, name string) (*module.Function, *status.Status) {
	list := m.exports
	if linkage == api.LinkageImport {
		list = m.imports
	}
	for _, fn := range list {
		if fn.Name == name {
			return fn, nil
		}
	}
	return nil, status.New(status.NotFound, "%q not found in %q", name, m.name)
}

func (m *testModule) LookupFunctionByOrdinal(linkage api.Linkage, ordinal module.Index) (*module.Function, string, module.Signature, *status.Status) {
	list := m.exports
	if linkage == api.LinkageImport {
		list = m.imports
	}
	if int(ordinal) >= len(list) {
		return nil, "", module.Signature{}, status.New(status.OutOfRange, "ordinal %d out of range", ordinal)
	}
	fn := list[ordinal]
	return fn, fn.Name, fn.Signature, nil
}

func (m *testModule) AllocState(allocator.Allocator) (module.State, *status.Status) {
	return &testState{resolvedImports: map[module.Index]*module.Function{}}, nil
}

func (m *testModule) FreeState(st module.State) {
	if m.freed != nil {
		*m.freed = true
	}
}

func (m *testModule) ResolveImport(st module.State, importIndex module.Index, target *module.Function, expected module.Signature) *status.Status {
	ts := st.(*testState)
	ts.resolvedImports[importIndex] = target
	return nil
}

func (m *testModule) BeginCall(_ interface{}, call *module.CallRecord) *status.Status {
	if m.failInit {
		return status.New(status.Internal, "__init failed for %q", m.name)
	}
	return nil
}

func (m *testModule) ResolveSourceLocation(module.FrameInfo) (status.SourceLocation, bool) {
	return status.SourceLocation{}, false
}

func i32i32() module.Signature {
	return module.Signature{Params: []api.ValueKind{api.KindI32}, Results: []api.ValueKind{api.KindI32}}
}

func TestRegisterResolvesImportsAgainstEarlierModules(t *testing.T) {
	x := newTestModule("X")
	x.addExport("foo", i32i32(), "i_i")

	y := newTestModule("Y")
	y.addImport("foo", i32i32(), "i_i")

	inst := NewInstance(nil)
	ctx := inst.NewContext(allocator.Go{})
	require.True(t, ctx.Register([]module.Module{x}).OK())
	require.True(t, ctx.Register([]module.Module{y}).OK())

	fn, st := ctx.ResolveFunction("X.foo")
	require.True(t, st.OK())
	require.Equal(t, "foo", fn.Name)
}

func TestResolveFunctionNotFound(t *testing.T) {
	inst := NewInstance(nil)
	ctx := inst.NewContext(allocator.Go{})
	_, st := ctx.ResolveFunction("X.foo")
	require.False(t, st.OK())
	require.Equal(t, status.NotFound, st.Code())
}

func TestResolveFunctionInvalidQualifiedName(t *testing.T) {
	inst := NewInstance(nil)
	ctx := inst.NewContext(allocator.Go{})
	_, st := ctx.ResolveFunction("notqualified")
	require.Equal(t, status.InvalidArgument, st.Code())
}

func TestHighestIndexedModuleWins(t *testing.T) {
	m1 := newTestModule("M")
	m1.addExport("f", i32i32(), "")
	m2 := newTestModule("M")
	f2 := m2.addExport("f", i32i32(), "")

	inst := NewInstance(nil)
	ctx := inst.NewContext(allocator.Go{})
	require.True(t, ctx.Register([]module.Module{m1}).OK())
	require.True(t, ctx.Register([]module.Module{m2}).OK())

	fn, st := ctx.ResolveFunction("M.f")
	require.True(t, st.OK())
	require.Same(t, f2, fn)
}

func TestConvMismatchFailsRegistration(t *testing.T) {
	x := newTestModule("X")
	x.addExport("foo", i32i32(), "i_i")
	y := newTestModule("Y")
	y.addImport("foo", i32i32(), "i_I") // mismatched conv string

	inst := NewInstance(nil)
	ctx := inst.NewContext(allocator.Go{})
	require.True(t, ctx.Register([]module.Module{x}).OK())

	st := ctx.Register([]module.Module{y})
	require.False(t, st.OK())
	require.Equal(t, status.InvalidArgument, st.Code())
}

func TestUnresolvedImportRollsBackFully(t *testing.T) {
	y := newTestModule("Y")
	y.addImport("foo", i32i32(), "")

	inst := NewInstance(nil)
	ctx := inst.NewContext(allocator.Go{})
	st := ctx.Register([]module.Module{y})
	require.False(t, st.OK())
	require.Equal(t, status.NotFound, st.Code())

	// the partially-registered module must not be observable afterward.
	_, lookupErr := ctx.ResolveFunction("Y.anything")
	require.Equal(t, status.NotFound, lookupErr.Code())
	require.Equal(t, 0, len(ctx.entries))
}

func TestInitFailureRollsBackRegistration(t *testing.T) {
	x := newTestModule("X")
	x.addExport("__init", module.Signature{}, "")
	x.failInit = true

	inst := NewInstance(nil)
	ctx := inst.NewContext(allocator.Go{})
	st := ctx.Register([]module.Module{x})
	require.False(t, st.OK())
	require.Equal(t, 0, len(ctx.entries))
}

func TestFreezeRejectsFurtherRegistration(t *testing.T) {
	inst := NewInstance(nil)
	ctx := inst.NewContext(allocator.Go{})
	ctx.Freeze()
	require.True(t, ctx.Frozen())

	x := newTestModule("X")
	st := ctx.Register([]module.Module{x})
	require.False(t, st.OK())
	require.Equal(t, status.FailedPrecondition, st.Code())
}

func TestCloseRunsDeinitAndFreesState(t *testing.T) {
	freed := false
	x := newTestModule("X")
	x.freed = &freed

	inst := NewInstance(nil)
	ctx := inst.NewContext(allocator.Go{})
	require.True(t, ctx.Register([]module.Module{x}).OK())
	require.True(t, ctx.Close().OK())
	require.True(t, freed)
}

func TestResolveStateReusesSameModuleEntry(t *testing.T) {
	x := newTestModule("X")
	fn := x.addExport("f", i32i32(), "")

	inst := NewInstance(nil)
	ctx := inst.NewContext(allocator.Go{})
	require.True(t, ctx.Register([]module.Module{x}).OK())

	state, st := ctx.ResolveState(fn)
	require.True(t, st.OK())
	require.NotNil(t, state)
}

func TestRegisterTypeRejectsDuplicate(t *testing.T) {
	inst := NewInstance(nil)
	require.True(t, inst.RegisterType("tensor").OK())
	st := inst.RegisterType("tensor")
	require.Equal(t, status.AlreadyExists, st.Code())
}
