// Package vmctx implements the process-wide Instance and per-sandbox
// Context types (spec.md §3 "Context", §4.4). A Context owns an ordered
// list of (module, module-state) pairs, resolves imports against
// previously registered modules, and runs __init/__deinit in the
// prescribed order.
package vmctx

import (
	"sync"

	"github.com/tensorcore/tcvm/api"
	"github.com/tensorcore/tcvm/internal/allocator"
	"github.com/tensorcore/tcvm/internal/module"
	"github.com/tensorcore/tcvm/status"
	"github.com/tensorcore/tcvm/vmlog"
)

// Instance is the process-wide registry of built-in types and the
// factory for Contexts (spec.md §4.4, §9 "Global state": "The type
// registry is registered exactly once per process during instance
// creation").
type Instance struct {
	mu    sync.Mutex
	types map[string]struct{}
	log   vmlog.Logger
}

// NewInstance creates the process-wide Instance.
func NewInstance(log vmlog.Logger) *Instance {
	if log == nil {
		log = vmlog.Nop
	}
	return &Instance{types: map[string]struct{}{}, log: log}
}

// RegisterType registers a built-in type name exactly once; a duplicate
// registration is an AlreadyExists error.
func (in *Instance) RegisterType(name string) *status.Status {
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, ok := in.types[name]; ok {
		return status.New(status.AlreadyExists, "type %q already registered", name)
	}
	in.types[name] = struct{}{}
	return nil
}

// NewContext creates an empty Context, open for later Register calls.
func (in *Instance) NewContext(alloc allocator.Allocator) *Context {
	return &Context{instance: in, alloc: alloc, log: in.log}
}

// NewFrozenContext creates a Context with a fixed initial module list,
// frozen immediately at creation (spec.md §4.4 "with a fixed initial
// module list (frozen at creation)").
func (in *Instance) NewFrozenContext(alloc allocator.Allocator, modules []module.Module) (*Context, *status.Status) {
	ctx := in.NewContext(alloc)
	if st := ctx.Register(modules); !st.OK() {
		return nil, st
	}
	ctx.Freeze()
	return ctx, nil
}

// RefCounted is implemented by Module types that participate in the
// reference-counted handle layer (spec.md §4.1). Modules that are
// process-wide singletons (many HAL-backed or built-in modules) may skip
// it; Context simply does not retain/release those.
type RefCounted interface {
	Retain()
	Release()
}

// entry is one (module, module-state) pair in registration order.
type entry struct {
	mod   module.Module
	state module.State
}

func retain(m module.Module) {
	if rc, ok := m.(RefCounted); ok {
		rc.Retain()
	}
}

func release(m module.Module) {
	if rc, ok := m.(RefCounted); ok {
		rc.Release()
	}
}

// Context is an execution sandbox binding modules, their per-context
// state, and import resolutions (spec.md §3 "Context").
type Context struct {
	instance *Instance
	alloc    allocator.Allocator
	log      vmlog.Logger

	mu      sync.Mutex
	entries []entry
	frozen  bool
	closed  bool
}

// Register adds modules to the context in order (spec.md §4.4
// "Registration"). If any step fails, every module added by this call is
// rolled back in reverse order and the context is left exactly as it was
// before the call (spec.md §7 "Import resolution failures during context
// registration roll back fully; partial contexts are never observable").
func (c *Context) Register(modules []module.Module) *status.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return status.New(status.FailedPrecondition, "context is frozen, cannot register additional modules")
	}

	base := len(c.entries)
	added := make([]entry, 0, len(modules))

	rollback := func() {
		for i := len(added) - 1; i >= 0; i-- {
			e := added[i]
			e.mod.FreeState(e.state)
			release(e.mod)
		}
		c.entries = c.entries[:base]
	}

	for _, m := range modules {
		retain(m)
		st, err := m.AllocState(c.alloc)
		if !err.OK() {
			release(m)
			rollback()
			return err
		}
		added = append(added, entry{mod: m, state: st})
		c.entries = append(c.entries, entry{mod: m, state: st})

		if err := c.resolveImportsFor(len(c.entries)-1); !err.OK() {
			rollback()
			return err
		}
	}

	// __init runs in registration order immediately after state
	// allocation and import resolution (spec.md §3 "Context").
	for i := base; i < len(c.entries); i++ {
		e := c.entries[i]
		if initFn, _ := e.mod.LookupFunctionByName(api.LinkageExport, "__init"); initFn != nil {
			if err := e.mod.BeginCall(nil, &module.CallRecord{}); !err.OK() {
				rollback()
				return err
			}
		}
	}

	return nil
}

// resolveImportsFor resolves every import of the module at entries[idx]
// by scanning previously registered modules in reverse registration
// order for matching exports (spec.md §4.4 step 2, §4.5.1 reverse scan,
// §8 "later modules may override earlier ones").
func (c *Context) resolveImportsFor(idx int) *status.Status {
	e := c.entries[idx]
	imports, _, _ := e.mod.Signature()
	for i := 0; i < imports; i++ {
		importFn, name, sig, err := e.mod.LookupFunctionByOrdinal(api.LinkageImport, module.Index(i))
		if !err.OK() {
			return err
		}
		target := c.resolveExportReverse(idx, name)
		if target == nil {
			return status.New(status.NotFound, "import %q of module %q could not be resolved", name, e.mod.Name())
		}
		var importerConv api.ConvString
		if importFn != nil {
			importerConv = importFn.Conv
			if !sig.Equal(target.Signature) {
				return status.New(status.FailedPrecondition,
					"import %q of module %q expects signature %s but export from %q has signature %s",
					name, e.mod.Name(), sig, target.Module.Name(), target.Signature)
			}
		}
		if st := module.CheckConv(e.mod.Name(), target.Module.Name(), importerConv, target.Conv); !st.OK() {
			return st
		}
		if err := e.mod.ResolveImport(e.state, module.Index(i), target, sig); !err.OK() {
			return err
		}
	}
	return nil
}

// resolveExportReverse scans modules registered before idx, in reverse
// order, for an export named name (spec.md §4.4 step 2, §4.5.1).
func (c *Context) resolveExportReverse(idx int, name string) *module.Function {
	for i := idx - 1; i >= 0; i-- {
		fn, err := c.entries[i].mod.LookupFunctionByName(api.LinkageExport, name)
		if err.OK() {
			return fn
		}
	}
	return nil
}

// Freeze makes the module list immutable (spec.md §3 "Once frozen, the
// module list is immutable"). Idempotent.
func (c *Context) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Frozen reports whether Freeze has been called.
func (c *Context) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// ResolveFunction implements spec.md §4.4 "resolve_function(qualified_name)":
// splits at the first period into module and function components and
// scans the module list in reverse so later modules override earlier
// ones with the same (module, function) name - spec.md §8 "when multiple
// modules export the same name, the highest-indexed wins" generalizes
// here to same-named modules registered more than once.
func (c *Context) ResolveFunction(qualifiedName string) (*module.Function, *status.Status) {
	modName, fnName, ok := splitQualified(qualifiedName)
	if !ok {
		return nil, status.New(status.InvalidArgument, "%q is not a qualified name (expected Module.function)", qualifiedName)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.entries) - 1; i >= 0; i-- {
		if c.entries[i].mod.Name() != modName {
			continue
		}
		fn, err := c.entries[i].mod.LookupFunctionByName(api.LinkageExport, fnName)
		if err.OK() {
			return fn, nil
		}
	}
	return nil, status.New(status.NotFound, "%q not found", qualifiedName)
}

func splitQualified(s string) (mod, fn string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// ResolveState implements stack.StateResolver: the module-state for the
// given callee within this context (spec.md §4.3.2 step 2).
func (c *Context) ResolveState(callee *module.Function) (module.State, *status.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.entries) - 1; i >= 0; i-- {
		if c.entries[i].mod == callee.Module {
			return c.entries[i].state, nil
		}
	}
	return nil, status.New(status.NotFound, "module %q is not registered in this context", moduleNameOf(callee))
}

func moduleNameOf(fn *module.Function) string {
	if fn == nil || fn.Module == nil {
		return "?"
	}
	return fn.Module.Name()
}

// Close tears the context down: finalizers (__deinit) run in reverse
// registration order, then every module is released (spec.md §3 "A
// context holds strong references to all its modules until destruction").
func (c *Context) Close() *status.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		if deinitFn, _ := e.mod.LookupFunctionByName(api.LinkageExport, "__deinit"); deinitFn != nil {
			_ = e.mod.BeginCall(nil, &module.CallRecord{})
		}
	}
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		e.mod.FreeState(e.state)
		release(e.mod)
	}
	c.entries = nil
	return nil
}
