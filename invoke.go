package tcvm

import (
	"github.com/tensorcore/tcvm/internal/module"
	"github.com/tensorcore/tcvm/internal/stack"
	"github.com/tensorcore/tcvm/status"
)

// InvocationPolicy tunes how Invoke drives a call; today it only gates
// whether a failing call's backtrace is attached to the returned Status,
// letting callers that already disabled backtraces at the Runtime level
// skip the per-call check.
type InvocationPolicy struct {
	AttachBacktraceOnFailure bool
}

// DefaultPolicy attaches a backtrace to any failing invocation.
var DefaultPolicy = InvocationPolicy{AttachBacktraceOnFailure: true}

// Invoke is the sole entry point from host into bytecode (spec.md §6
// "invoke(context, function, policy, inputs_list, outputs_list,
// allocator)"). qualifiedName is resolved against sandbox's Context
// (spec.md §4.4 resolve_function); inputs and outputs are ordered
// uniform-ABI value lists, and a length mismatch against the resolved
// function's signature is an invalid-argument Status.
func Invoke(sandbox *Sandbox, qualifiedName string, policy InvocationPolicy, inputs []uint64) ([]uint64, *status.Status) {
	fn, st := sandbox.ctx.ResolveFunction(qualifiedName)
	if !st.OK() {
		return nil, st
	}
	if len(inputs) != len(fn.Signature.Params) {
		return nil, status.New(status.InvalidArgument,
			"%q expects %d arguments, got %d", qualifiedName, len(fn.Signature.Params), len(inputs))
	}

	if nm, ok := fn.Module.(interface {
		InvokeExport(name string, inputs []uint64) ([]uint64, *status.Status)
	}); ok {
		outputs, st := nm.InvokeExport(fn.Name, inputs)
		return outputs, attachBacktraceIfEnabled(sandbox, policy, st)
	}

	call := &module.CallRecord{
		Inputs:  inputs,
		Outputs: make([]uint64, len(fn.Signature.Results)),
	}

	_, st = sandbox.stack.Enter(fn, stack.FrameExternal, 0, nil)
	if !st.OK() {
		return nil, st
	}
	callErr := fn.Module.BeginCall(sandbox.stack, call)
	// The failing frame is formatted into a backtrace while still on the
	// stack (spec.md §7 "the VM walks the remaining frames, formats a
	// backtrace, attaches it to the status"); stack-leave cleanup then
	// always runs, even on this error path.
	if !callErr.OK() {
		callErr = attachBacktraceIfEnabled(sandbox, policy, callErr)
	}
	if leaveErr := sandbox.stack.Leave(); !leaveErr.OK() && callErr.OK() {
		callErr = leaveErr
	}
	if !callErr.OK() {
		return nil, callErr
	}
	return call.Outputs, nil
}

func attachBacktraceIfEnabled(sandbox *Sandbox, policy InvocationPolicy, st *status.Status) *status.Status {
	if st.OK() || !policy.AttachBacktraceOnFailure {
		return st
	}
	return status.AttachBacktrace(st, sandbox.stack.Backtrace())
}
