package tcvm

import (
	"fmt"
	"reflect"

	"github.com/tensorcore/tcvm/api"
	"github.com/tensorcore/tcvm/internal/allocator"
	"github.com/tensorcore/tcvm/internal/module"
	"github.com/tensorcore/tcvm/status"
)

// NativeFunc is any Go function eligible for export from a native module:
// zero or more int32/int64/float32/float64 parameters, returning the same
// set of kinds, optionally ending in a *status.Status.
//
// ModuleBuilder uses reflection to derive the conv string and uniform-ABI
// marshalling for each exported Go function, mirroring the teacher's
// HostFunctionBuilder for wrapping arbitrary Go funcs as Wasm-callable
// exports.
type NativeFunc = interface{}

// ModuleBuilder assembles a native module.Module by wrapping Go
// functions as exports (spec.md §4.2 "Module interface"; grounded on the
// teacher's reflect-based HostFunctionBuilder). Each With* call returns a
// new builder so construction reads as an immutable pipeline, the same
// convention RuntimeConfig uses for its own clone-per-option builder.
type ModuleBuilder struct {
	name    string
	exports []namedFunc
}

type namedFunc struct {
	name string
	fn   reflect.Value
	sig  module.Signature
}

// NewModuleBuilder starts building a native module named name.
func NewModuleBuilder(name string) *ModuleBuilder {
	return &ModuleBuilder{name: name}
}

// WithExportFunction registers fn under name. fn must satisfy NativeFunc's
// shape or Build returns an error for it; nothing is checked here, so the
// immutable pipeline stays chainable.
func (b *ModuleBuilder) WithExportFunction(name string, fn NativeFunc) *ModuleBuilder {
	clone := &ModuleBuilder{name: b.name, exports: append([]namedFunc(nil), b.exports...)}
	clone.exports = append(clone.exports, namedFunc{name: name, fn: reflect.ValueOf(fn)})
	return clone
}

// Build validates every registered export's Go signature and produces the
// module.Module ready for Context.Register.
func (b *ModuleBuilder) Build() (module.Module, error) {
	exports := make([]namedFunc, len(b.exports))
	for i, e := range b.exports {
		sig, err := signatureOf(e.fn)
		if err != nil {
			return nil, fmt.Errorf("tcvm: export %q of module %q: %w", e.name, b.name, err)
		}
		exports[i] = namedFunc{name: e.name, fn: e.fn, sig: sig}
	}
	return &nativeModule{name: b.name, exports: exports}, nil
}

func signatureOf(fn reflect.Value) (module.Signature, error) {
	if fn.Kind() != reflect.Func {
		return module.Signature{}, fmt.Errorf("not a function: %s", fn.Kind())
	}
	t := fn.Type()
	numOut := t.NumOut()
	// An optional trailing *status.Status result reports failure without
	// being part of the conv string.
	returnsStatus := numOut > 0 && t.Out(numOut-1) == reflect.TypeOf((*status.Status)(nil))
	if returnsStatus {
		numOut--
	}

	params := make([]api.ValueKind, t.NumIn())
	for i := range params {
		k, err := kindOf(t.In(i))
		if err != nil {
			return module.Signature{}, fmt.Errorf("parameter %d: %w", i, err)
		}
		params[i] = k
	}
	results := make([]api.ValueKind, numOut)
	for i := range results {
		k, err := kindOf(t.Out(i))
		if err != nil {
			return module.Signature{}, fmt.Errorf("result %d: %w", i, err)
		}
		results[i] = k
	}
	return module.Signature{Params: params, Results: results}, nil
}

func kindOf(t reflect.Type) (api.ValueKind, error) {
	switch t.Kind() {
	case reflect.Int32:
		return api.KindI32, nil
	case reflect.Int64:
		return api.KindI64, nil
	case reflect.Float32:
		return api.KindF32, nil
	case reflect.Float64:
		return api.KindF64, nil
	default:
		return 0, fmt.Errorf("unsupported Go type %s for the uniform ABI", t)
	}
}

// nativeModule is the module.Module implementation produced by
// ModuleBuilder.Build: stateless (AllocState returns nil), its functions
// invoked directly via reflection from InvokeExport.
type nativeModule struct {
	name    string
	exports []namedFunc
}

func (m *nativeModule) Name() string { return m.name }

func (m *nativeModule) Signature() (imports, internals, exports int) {
	return 0, 0, len(m.exports)
}

func (m *nativeModule) LookupFunctionByName(linkage api.Linkage, name string) (*module.Function, *status.Status) {
	if linkage != api.LinkageExport {
		return nil, status.New(status.NotFound, "native module %q declares no imports", m.name)
	}
	for i, e := range m.exports {
		if e.name == name {
			return &module.Function{Name: e.name, Signature: e.sig, Linkage: api.LinkageExport, Module: m, Ordinal: module.Index(i)}, nil
		}
	}
	return nil, status.New(status.NotFound, "%q not found in native module %q", name, m.name)
}

func (m *nativeModule) LookupFunctionByOrdinal(linkage api.Linkage, ordinal module.Index) (*module.Function, string, module.Signature, *status.Status) {
	if linkage != api.LinkageExport || int(ordinal) >= len(m.exports) {
		return nil, "", module.Signature{}, status.New(status.OutOfRange, "ordinal %d out of range in native module %q", ordinal, m.name)
	}
	e := m.exports[ordinal]
	return &module.Function{Name: e.name, Signature: e.sig, Linkage: api.LinkageExport, Module: m, Ordinal: ordinal}, e.name, e.sig, nil
}

func (m *nativeModule) AllocState(allocator.Allocator) (module.State, *status.Status) { return nil, nil }

func (m *nativeModule) FreeState(module.State) {}

func (m *nativeModule) ResolveImport(module.State, module.Index, *module.Function, module.Signature) *status.Status {
	return status.New(status.FailedPrecondition, "native module %q declares no imports to resolve", m.name)
}

// BeginCall always returns an Unimplemented status: a native module's
// exports are called through InvokeExport instead.
func (m *nativeModule) BeginCall(_ interface{}, call *module.CallRecord) *status.Status {
	return status.New(status.Unimplemented, "native module %q: dispatch by name is done via InvokeExport, not BeginCall", m.name)
}

// InvokeExport calls the named export directly, marshalling inputs/outputs
// through the uniform uint64 ABI (spec.md §6 "invoke"). Unlike BeginCall,
// which the Module interface defines in terms of a stack handle for
// bytecode modules, a stateless native module can run its Go function
// straight through.
func (m *nativeModule) InvokeExport(name string, inputs []uint64) ([]uint64, *status.Status) {
	for _, e := range m.exports {
		if e.name != name {
			continue
		}
		return invoke(e, inputs)
	}
	return nil, status.New(status.NotFound, "%q not found in native module %q", name, m.name)
}

func invoke(e namedFunc, inputs []uint64) ([]uint64, *status.Status) {
	t := e.fn.Type()
	if len(inputs) != t.NumIn() {
		return nil, status.New(status.InvalidArgument, "export %q expects %d arguments, got %d", e.name, t.NumIn(), len(inputs))
	}
	args := make([]reflect.Value, t.NumIn())
	for i := range args {
		args[i] = decodeArg(t.In(i), inputs[i])
	}
	out := e.fn.Call(args)

	numOut := len(out)
	if numOut > 0 {
		if st, ok := out[numOut-1].Interface().(*status.Status); ok {
			if !st.OK() {
				return nil, st
			}
			numOut--
			out = out[:numOut]
		}
	}
	results := make([]uint64, numOut)
	for i, v := range out {
		results[i] = encodeResult(v)
	}
	return results, nil
}

func decodeArg(t reflect.Type, v uint64) reflect.Value {
	switch t.Kind() {
	case reflect.Int32:
		return reflect.ValueOf(api.DecodeI32(v)).Convert(t)
	case reflect.Int64:
		return reflect.ValueOf(api.DecodeI64(v)).Convert(t)
	case reflect.Float32:
		return reflect.ValueOf(api.DecodeF32(v)).Convert(t)
	case reflect.Float64:
		return reflect.ValueOf(api.DecodeF64(v)).Convert(t)
	default:
		panic(fmt.Sprintf("tcvm: unreachable: unsupported kind %s passed validation", t.Kind()))
	}
}

func encodeResult(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int32:
		return api.EncodeI32(int32(v.Int()))
	case reflect.Int64:
		return api.EncodeI64(v.Int())
	case reflect.Float32:
		return api.EncodeF32(float32(v.Float()))
	case reflect.Float64:
		return api.EncodeF64(v.Float())
	default:
		panic(fmt.Sprintf("tcvm: unreachable: unsupported kind %s passed validation", v.Kind()))
	}
}

func (m *nativeModule) ResolveSourceLocation(module.FrameInfo) (status.SourceLocation, bool) {
	return status.SourceLocation{}, false
}
