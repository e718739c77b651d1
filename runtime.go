package tcvm

import (
	"github.com/tensorcore/tcvm/internal/allocator"
	"github.com/tensorcore/tcvm/internal/hal"
	"github.com/tensorcore/tcvm/internal/module"
	"github.com/tensorcore/tcvm/internal/stack"
	"github.com/tensorcore/tcvm/internal/vmctx"
	"github.com/tensorcore/tcvm/status"
	"github.com/tensorcore/tcvm/vmlog"
)

// Runtime is the process-wide entry point: it owns the type registry
// (internal/vmctx.Instance), a default allocator, and one HAL Device per
// configured backend (spec.md §4.4, §4.5.1). Call NewSandbox to open an
// execution sandbox against it.
type Runtime struct {
	config  *RuntimeConfig
	log     vmlog.Logger
	inst    *vmctx.Instance
	alloc   allocator.Allocator
	devices map[hal.Backend]*hal.Device
}

// RuntimeOption configures NewRuntime beyond what RuntimeConfig covers:
// the logger seam (spec.md's ambient observability stack).
type RuntimeOption func(*Runtime)

// WithLogger wires a vmlog.Logger; the default is vmlog.Nop.
func WithLogger(log vmlog.Logger) RuntimeOption {
	return func(r *Runtime) { r.log = log }
}

// NewRuntime creates a Runtime from config (or NewRuntimeConfig's
// defaults if config is nil), materializing one HAL Device per
// configured backend (spec.md §4.5 "Device").
func NewRuntime(config *RuntimeConfig, opts ...RuntimeOption) *Runtime {
	if config == nil {
		config = NewRuntimeConfig()
	}
	r := &Runtime{
		config:  config,
		log:     vmlog.Nop,
		alloc:   allocator.Go{},
		devices: map[hal.Backend]*hal.Device{},
	}
	for _, o := range opts {
		o(r)
	}
	r.inst = vmctx.NewInstance(r.log)
	for _, b := range config.deviceBackends {
		r.devices[b] = hal.NewDevice(string(b))
	}
	return r
}

// Device returns the Device materialized for backend, or nil if it was
// not part of this Runtime's configured backend set.
func (r *Runtime) Device(backend hal.Backend) *hal.Device {
	return r.devices[backend]
}

// Sandbox is one execution context paired with the Stack driving calls
// into it (spec.md §3 "Context" and "Stack" are deliberately bound
// together here: a Stack's StateResolver is always its owning Context).
type Sandbox struct {
	ctx   *vmctx.Context
	stack *stack.Stack
}

// NewSandbox registers modules into a fresh Context, frozen immediately
// (spec.md §4.4 "with a fixed initial module list (frozen at creation)"),
// and attaches a Stack sized per the Runtime's RuntimeConfig.
func (r *Runtime) NewSandbox(modules []module.Module) (*Sandbox, *status.Status) {
	ctx, st := r.inst.NewFrozenContext(r.alloc, modules)
	if !st.OK() {
		return nil, st
	}
	var opts []stack.Option
	if !r.config.backtracesEnabled {
		opts = append(opts, stack.WithBacktracesDisabled())
	}
	s := stack.New(r.alloc, ctx, r.config.stackMinBytes, r.config.stackHardCapBytes, opts...)
	return &Sandbox{ctx: ctx, stack: s}, nil
}

// Context returns the sandbox's underlying vmctx.Context, for callers
// that need resolve_function directly.
func (s *Sandbox) Context() *vmctx.Context { return s.ctx }

// Stack returns the sandbox's execution stack.
func (s *Sandbox) Stack() *stack.Stack { return s.stack }

// Close tears the sandbox down (spec.md §3 "A context holds strong
// references to all its modules until destruction").
func (s *Sandbox) Close() *status.Status {
	return s.ctx.Close()
}
