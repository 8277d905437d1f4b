package brain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/chazu/brain/compiler"
	"github.com/chazu/brain/vm"
)

// ---------------------------------------------------------------------------
// Built-in tiles
// ---------------------------------------------------------------------------

// timerState is the per-call-site state of the timer sensor.
type timerState struct {
	last time.Duration
}

func seconds(v vm.Value) (time.Duration, error) {
	n, ok := v.AsNumber()
	if !ok {
		return 0, fmt.Errorf("expected a number of seconds, got %v", v)
	}
	if n < 0 {
		n = 0
	}
	return time.Duration(n * float64(time.Second)), nil
}

var builtinFunctions = []vm.HostFunction{
	{
		Name: "brain.switch_page",
		Sync: func(ctx *vm.ExecutionContext, args vm.Value) (vm.Value, error) {
			target := vm.ArgAt(args, 0)
			key, ok := target.AsString()
			if !ok {
				n, isNum := target.AsNumber()
				if !isNum {
					return vm.Void, fmt.Errorf("switch_page: expected a page id or index, got %v", target)
				}
				key = strconv.Itoa(int(n))
			}
			return vm.Void, ctx.RequestPage(key)
		},
	},
	{
		Name: "brain.tick",
		Sync: func(ctx *vm.ExecutionContext, _ vm.Value) (vm.Value, error) {
			return vm.Number(float64(ctx.Tick())), nil
		},
	},
	{
		Name: "brain.elapsed",
		Sync: func(ctx *vm.ExecutionContext, _ vm.Value) (vm.Value, error) {
			return vm.Number(ctx.Now().Seconds()), nil
		},
	},
	{
		Name: "brain.timer",
		Sync: func(ctx *vm.ExecutionContext, args vm.Value) (vm.Value, error) {
			period, err := seconds(vm.ArgAt(args, 0))
			if err != nil {
				return vm.False, err
			}
			now := ctx.Now()
			st := vm.CallSiteState(ctx, func() *timerState { return &timerState{last: now} })
			if now-st.last < period {
				return vm.False, nil
			}
			st.last = now
			return vm.True, nil
		},
		OnPageEntered: func(ctx *vm.ExecutionContext) {
			ctx.SetState(nil)
		},
	},
	{
		Name: "brain.wait",
		Async: func(ctx *vm.ExecutionContext, args vm.Value, h vm.HandleID) error {
			d, err := seconds(vm.ArgAt(args, 0))
			if err != nil {
				return err
			}
			b, ok := ctx.Host().(*Brain)
			if !ok {
				return fmt.Errorf("wait: host %T has no clock queue", ctx.Host())
			}
			b.After(d, h)
			return nil
		},
	},
}

// InstallBuiltins registers the built-in host functions in svc and adds
// their tiles to c. svc must not be sealed yet.
//
//	switch_page <page>   actuator, page id, name or index
//	tick                 sensor, current tick number
//	elapsed              sensor, seconds on the brain clock
//	timer <seconds>      sensor, true once per period at each call site
//	wait <seconds>       async actuator, completes after the delay
func InstallBuiltins(svc *vm.Services, c *compiler.Catalog) error {
	for _, fn := range builtinFunctions {
		if _, err := svc.Functions.Register(fn); err != nil {
			return fmt.Errorf("builtins: %w", err)
		}
	}
	tiles := []func() error{
		func() error {
			return c.AddActuator("switch_page", "brain.switch_page", compiler.Anon(vm.TypeUnknown))
		},
		func() error { return c.AddSensor("tick", "brain.tick", nil, vm.TypeNumber) },
		func() error { return c.AddSensor("elapsed", "brain.elapsed", nil, vm.TypeNumber) },
		func() error {
			return c.AddSensor("timer", "brain.timer", compiler.Anon(vm.TypeNumber), vm.TypeBoolean)
		},
		func() error { return c.AddActuator("wait", "brain.wait", compiler.Anon(vm.TypeNumber)) },
	}
	for _, add := range tiles {
		if err := add(); err != nil {
			return fmt.Errorf("builtins: %w", err)
		}
	}
	return nil
}
