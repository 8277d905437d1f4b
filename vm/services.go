package vm

// Services bundles the registries shared by the compiler and the VM. It is
// built once, sealed, and then passed by pointer into compiler and VM entry
// points; there is no process-wide instance.
type Services struct {
	Types       *TypeRegistry
	Functions   *FunctionRegistry
	Operators   *OperatorTable
	Conversions *ConversionRegistry
}

// NewServices returns empty registries (primitive types only).
func NewServices() *Services {
	return &Services{
		Types:       NewTypeRegistry(),
		Functions:   NewFunctionRegistry(),
		Operators:   NewOperatorTable(),
		Conversions: NewConversionRegistry(),
	}
}

// NewCoreServices returns unsealed services with the number, boolean and
// string primitives and their conversions installed.
func NewCoreServices() *Services {
	s := NewServices()
	registerNumberPrimitives(s)
	registerBooleanPrimitives(s)
	registerStringPrimitives(s)
	return s
}

// Seal freezes every registry. Registration after Seal fails.
func (s *Services) Seal() *Services {
	s.Types.seal()
	s.Functions.seal()
	s.Operators.seal()
	s.Conversions.seal()
	return s
}

// ---------------------------------------------------------------------------
// Resource limits
// ---------------------------------------------------------------------------

// Limits are hard ceilings enforced by the VM.
type Limits struct {
	MaxFrameDepth int // call frames per fiber
	MaxStackSize  int // operand stack slots per fiber
	MaxFibers     int // live fibers per scheduler
	MaxHandles    int // outstanding async handles per scheduler
	InstrBudget   int // instructions per fiber resumption
}

// DefaultLimits returns the limits used when a brain does not configure
// its own.
func DefaultLimits() Limits {
	return Limits{
		MaxFrameDepth: 64,
		MaxStackSize:  256,
		MaxFibers:     256,
		MaxHandles:    1024,
		InstrBudget:   10000,
	}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxFrameDepth <= 0 {
		l.MaxFrameDepth = d.MaxFrameDepth
	}
	if l.MaxStackSize <= 0 {
		l.MaxStackSize = d.MaxStackSize
	}
	if l.MaxFibers <= 0 {
		l.MaxFibers = d.MaxFibers
	}
	if l.MaxHandles <= 0 {
		l.MaxHandles = d.MaxHandles
	}
	if l.InstrBudget <= 0 {
		l.InstrBudget = d.InstrBudget
	}
	return l
}
