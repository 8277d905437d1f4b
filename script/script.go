// Package script implements host functions as tengo scripts.
//
// A script runs once per call. It sees these globals:
//
//	args      map of slot id (as a string) to argument value
//	state     map persisted per call site across ticks
//	tick      current tick number
//	elapsed   seconds on the host clock
//	result    value returned by a sensor, undefined by default
//
// and may call switch_page(key) to request a page switch.
package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/tliron/commonlog"

	"github.com/chazu/brain/compiler"
	"github.com/chazu/brain/vm"
)

var log = commonlog.GetLogger("brain.script")

// DefaultImports are the tengo standard modules a script may import.
var DefaultImports = []string{"base64", "enum", "fmt", "hex", "json", "math", "rand", "text", "times"}

// Options tune script compilation and execution.
type Options struct {
	Timeout   time.Duration // per call, 0 for none
	Imports   []string      // nil for DefaultImports
	MaxAllocs int64         // object allocations per call, 0 for unlimited
}

// Script is a compiled tengo script. Calls are serialized.
type Script struct {
	name string
	opts Options

	mu       sync.Mutex
	compiled *tengo.Compiled
}

// Compile compiles source into a Script named name.
func Compile(name, source string, opts Options) (*Script, error) {
	s := tengo.NewScript([]byte(source))
	imports := opts.Imports
	if imports == nil {
		imports = DefaultImports
	}
	s.SetImports(stdlib.GetModuleMap(imports...))
	if opts.MaxAllocs > 0 {
		s.SetMaxAllocs(opts.MaxAllocs)
	}
	for _, global := range []string{"args", "state", "tick", "elapsed", "result", "switch_page"} {
		if err := s.Add(global, nil); err != nil {
			return nil, fmt.Errorf("script %s: %w", name, err)
		}
	}
	compiled, err := s.Compile()
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", name, err)
	}
	log.Debugf("compiled script %s", name)
	return &Script{name: name, opts: opts, compiled: compiled}, nil
}

// Name returns the script's name.
func (s *Script) Name() string { return s.name }

// Call runs the script once for the call site of ctx and returns the
// value it left in result.
func (s *Script) Call(ctx *vm.ExecutionContext, args vm.Value) (vm.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	argObj := ToObject(args)
	if _, ok := argObj.(*tengo.Map); !ok {
		argObj = &tengo.Map{Value: map[string]tengo.Object{}}
	}
	state := vm.CallSiteState(ctx, func() *tengo.Map {
		return &tengo.Map{Value: map[string]tengo.Object{}}
	})
	switchPage := &tengo.UserFunction{Name: "switch_page", Value: func(a ...tengo.Object) (tengo.Object, error) {
		if len(a) != 1 {
			return nil, tengo.ErrWrongNumArguments
		}
		key, ok := tengo.ToString(a[0])
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "key", Expected: "string", Found: a[0].TypeName()}
		}
		if err := ctx.RequestPage(key); err != nil {
			return &tengo.Error{Value: &tengo.String{Value: err.Error()}}, nil
		}
		return tengo.TrueValue, nil
	}}

	globals := map[string]any{
		"args":        argObj,
		"state":       state,
		"tick":        int64(ctx.Tick()),
		"elapsed":     ctx.Now().Seconds(),
		"result":      nil,
		"switch_page": switchPage,
	}
	for name, v := range globals {
		if err := s.compiled.Set(name, v); err != nil {
			return vm.Nil, s.fail(vm.ErrScript, err)
		}
	}

	runCtx := context.Background()
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.opts.Timeout)
		defer cancel()
	}
	if err := s.compiled.RunContext(runCtx); err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return vm.Nil, s.fail(vm.ErrTimeout, err)
		case errors.Is(err, tengo.ErrObjectAllocLimit):
			return vm.Nil, s.fail(vm.ErrLimitExceeded, err)
		}
		return vm.Nil, s.fail(vm.ErrScript, err)
	}

	if m, ok := s.compiled.Get("state").Object().(*tengo.Map); ok {
		ctx.SetState(m)
	}
	result := FromObject(s.compiled.Get("result").Object())
	if e := result.Err(); e != nil {
		return vm.Nil, e
	}
	return result, nil
}

func (s *Script) fail(tag vm.ErrorTag, err error) *vm.ErrorValue {
	e := vm.NewError(tag, "script %s: %v", s.name, err)
	e.Cause = err
	return e
}

// Sensor returns a host function named name that yields the script's
// result.
func (s *Script) Sensor(name string) vm.HostFunction {
	return vm.HostFunction{Name: name, Sync: s.Call}
}

// Actuator returns a host function named name that runs the script for
// its effects.
func (s *Script) Actuator(name string) vm.HostFunction {
	return vm.HostFunction{Name: name, Sync: func(ctx *vm.ExecutionContext, args vm.Value) (vm.Value, error) {
		if _, err := s.Call(ctx, args); err != nil {
			return vm.Void, err
		}
		return vm.Void, nil
	}}
}

// Sensor compiles source into a sensor host function.
func Sensor(name, source string) (vm.HostFunction, error) {
	s, err := Compile(name, source, Options{})
	if err != nil {
		return vm.HostFunction{}, err
	}
	return s.Sensor(name), nil
}

// Actuator compiles source into an actuator host function.
func Actuator(name, source string) (vm.HostFunction, error) {
	s, err := Compile(name, source, Options{})
	if err != nil {
		return vm.HostFunction{}, err
	}
	return s.Actuator(name), nil
}

// Tile describes a scripted sensor or actuator tile.
type Tile struct {
	ID     string
	Kind   compiler.TileKind // TileSensor or TileActuator
	Source string
	Args   []vm.TypeID // anonymous arguments, in order
	Output vm.TypeID   // sensor result type
}

// Install compiles t, registers its host function as "script.<id>" in
// svc and adds the tile to c. svc must not be sealed yet.
func Install(svc *vm.Services, c *compiler.Catalog, t Tile, opts Options) error {
	fnName := "script." + t.ID
	s, err := Compile(fnName, t.Source, opts)
	if err != nil {
		return err
	}

	var spec compiler.CallSpec
	if len(t.Args) > 0 {
		items := make([]compiler.CallSpec, len(t.Args))
		for i, ty := range t.Args {
			items[i] = compiler.Anon(ty)
		}
		spec = compiler.Seq(items...)
	}

	switch t.Kind {
	case compiler.TileSensor:
		if _, err := svc.Functions.Register(s.Sensor(fnName)); err != nil {
			return err
		}
		output := t.Output
		if output == "" {
			output = vm.TypeUnknown
		}
		return c.AddSensor(t.ID, fnName, spec, output)
	case compiler.TileActuator:
		if _, err := svc.Functions.Register(s.Actuator(fnName)); err != nil {
			return err
		}
		return c.AddActuator(t.ID, fnName, spec)
	}
	return fmt.Errorf("script %s: tile kind %s cannot be scripted", t.ID, t.Kind)
}
