package compiler

import (
	"fmt"
	"sort"

	"github.com/chazu/brain/vm"
)

// TileKind classifies catalog entries.
type TileKind uint8

const (
	TileSensor TileKind = iota
	TileActuator
	TileModifier
	TileParameter
)

func (k TileKind) String() string {
	switch k {
	case TileSensor:
		return "sensor"
	case TileActuator:
		return "actuator"
	case TileModifier:
		return "modifier"
	case TileParameter:
		return "parameter"
	}
	return fmt.Sprintf("TileKind(%d)", k)
}

// Tile is one catalog entry. Sensors and actuators are bound to a host
// function and carry their flattened call spec.
type Tile struct {
	ID     string
	Kind   TileKind
	FnID   int
	FnName string
	Async  bool
	Spec   FlatSpec
	Output vm.TypeID // sensor result type
	Value  vm.TypeID // parameter value type
}

// Catalog holds the tiles available to rule rows.
type Catalog struct {
	svc   *vm.Services
	tiles map[string]*Tile
}

// NewCatalog returns an empty catalog resolving host functions in svc.
func NewCatalog(svc *vm.Services) *Catalog {
	return &Catalog{svc: svc, tiles: make(map[string]*Tile)}
}

// Services returns the registries the catalog binds against.
func (c *Catalog) Services() *vm.Services { return c.svc }

// AddSensor adds a sensor tile bound to host function fn.
func (c *Catalog) AddSensor(id, fn string, spec CallSpec, output vm.TypeID) error {
	return c.addCall(&Tile{ID: id, Kind: TileSensor, Output: output}, fn, spec)
}

// AddActuator adds an actuator tile bound to host function fn.
func (c *Catalog) AddActuator(id, fn string, spec CallSpec) error {
	return c.addCall(&Tile{ID: id, Kind: TileActuator, Output: vm.TypeVoid}, fn, spec)
}

// AddModifier adds a modifier tile.
func (c *Catalog) AddModifier(id string) error {
	return c.add(&Tile{ID: id, Kind: TileModifier, Value: vm.TypeNumber})
}

// AddParameter adds a parameter tile whose value has type t.
func (c *Catalog) AddParameter(id string, t vm.TypeID) error {
	if _, ok := c.svc.Types.Get(t); !ok {
		return fmt.Errorf("catalog: parameter %q has unknown type %q", id, t)
	}
	return c.add(&Tile{ID: id, Kind: TileParameter, Value: t})
}

func (c *Catalog) addCall(t *Tile, fn string, spec CallSpec) error {
	hf, ok := c.svc.Functions.Lookup(fn)
	if !ok {
		return fmt.Errorf("catalog: tile %q: unknown host function %q", t.ID, fn)
	}
	if t.Output != vm.TypeVoid {
		if _, ok := c.svc.Types.Get(t.Output); !ok {
			return fmt.Errorf("catalog: tile %q: unknown output type %q", t.ID, t.Output)
		}
	}
	t.FnID = hf.ID
	t.FnName = hf.Name
	t.Async = hf.IsAsync()
	t.Spec = Flatten(spec)
	for _, s := range t.Spec.Slots {
		if s.Arg.Kind == ArgAnonymous && s.Arg.Type == "" {
			t.Spec.Slots[s.SlotID].Arg.Type = vm.TypeUnknown
		}
	}
	return c.add(t)
}

func (c *Catalog) add(t *Tile) error {
	if t.ID == "" {
		return fmt.Errorf("catalog: tile needs an id")
	}
	if _, ok := reservedWords[t.ID]; ok {
		return fmt.Errorf("catalog: %q is reserved", t.ID)
	}
	if _, dup := c.tiles[t.ID]; dup {
		return fmt.Errorf("catalog: tile %q already defined", t.ID)
	}
	c.tiles[t.ID] = t
	return nil
}

// Lookup returns the tile with id.
func (c *Catalog) Lookup(id string) (*Tile, bool) {
	t, ok := c.tiles[id]
	return t, ok
}

// IDs returns every tile id, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.tiles))
	for id := range c.tiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
