package javascript

import (
	"math"
	"sync"

	"github.com/autom8ter/viewdb/errors"
	"github.com/dop251/goja"
)

// Script is javascript source declaring a top level function
type Script string

// Name returns the name of the first function declared by the script
func (s Script) Name() string {
	return getFunctionName(string(s))
}

// Program is a compiled script. A Program may be shared between Functions.
type Program struct {
	name    string
	program *goja.Program
}

// Compile compiles the script
func (s Script) Compile() (*Program, error) {
	name := s.Name()
	if name == "" {
		return nil, errors.New(errors.Configuration, "script does not declare a function")
	}
	program, err := goja.Compile(name, string(s), true)
	if err != nil {
		return nil, errors.Wrap(err, errors.Configuration, "failed to compile function %s", name)
	}
	return &Program{name: name, program: program}, nil
}

// Name returns the name of the program's function
func (p *Program) Name() string {
	return p.name
}

// Function is a program's function bound to its own runtime. It is safe for concurrent use; calls are serialized.
type Function struct {
	mu   sync.Mutex
	name string
	vm   *goja.Runtime
	fn   goja.Callable
}

// Instantiate runs the program in a new runtime with the given globals and returns its function
func (p *Program) Instantiate(globals map[string]any) (*Function, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	for k, v := range globals {
		if err := vm.Set(k, v); err != nil {
			return nil, errors.Wrap(err, errors.Configuration, "failed to set global %s", k)
		}
	}
	if _, err := vm.RunProgram(p.program); err != nil {
		return nil, errors.Wrap(err, errors.Configuration, "failed to run program %s", p.name)
	}
	fn, ok := goja.AssertFunction(vm.Get(p.name))
	if !ok {
		return nil, errors.New(errors.Configuration, "%s is not a function", p.name)
	}
	return &Function{name: p.name, vm: vm, fn: fn}, nil
}

func (f *Function) call(args []any) (goja.Value, error) {
	values := make([]goja.Value, len(args))
	for i, a := range args {
		values[i] = f.vm.ToValue(a)
	}
	v, err := f.fn(goja.Undefined(), values...)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "function %s failed", f.name)
	}
	return v, nil
}

// CallString calls the function and returns its result as a string. It returns false if the function returned
// undefined or null.
func (f *Function) CallString(args ...any) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.call(args)
	if err != nil {
		return "", false, err
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return "", false, nil
	}
	return v.String(), true, nil
}

// CallFloat calls the function and returns its numeric result. It fails if the result is not a number.
func (f *Function) CallFloat(args ...any) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.call(args)
	if err != nil {
		return 0, err
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, errors.New(errors.Internal, "function %s returned %s", f.name, v.String())
	}
	n := v.ToFloat()
	if math.IsNaN(n) {
		return 0, errors.New(errors.Internal, "function %s returned %s, not a number", f.name, v.String())
	}
	return n, nil
}
