// Package manifest handles brain.toml project configuration and YAML
// brain definitions.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/brain/compiler"
	"github.com/chazu/brain/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "brain.toml"

// Manifest represents a brain.toml project configuration.
type Manifest struct {
	Project   Project            `toml:"project"`
	Brain     BrainConfig        `toml:"brain"`
	Runtime   RuntimeConfig      `toml:"runtime"`
	Output    OutputConfig       `toml:"output"`
	Variables []compiler.VarDecl `toml:"variables"`
	Tiles     []TileConfig       `toml:"tiles"`

	// Dir is the directory containing the brain.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// BrainConfig locates the brain definition.
type BrainConfig struct {
	Definition      string `toml:"definition"`
	Entry           string `toml:"entry"`
	IsolateChildren bool   `toml:"isolate-children"`
}

// RuntimeConfig configures the tick loop and VM limits. Zero values take
// the defaults.
type RuntimeConfig struct {
	TickRate    float64 `toml:"tick-rate"` // ticks per second
	Ticks       int     `toml:"ticks"`     // ticks to run, 0 to run until stopped
	MaxFrames   int     `toml:"max-frames"`
	MaxStack    int     `toml:"max-stack"`
	MaxFibers   int     `toml:"max-fibers"`
	MaxHandles  int     `toml:"max-handles"`
	InstrBudget int     `toml:"instr-budget"`
}

// OutputConfig configures program output.
type OutputConfig struct {
	Program string `toml:"program"`
}

// TileConfig declares a scripted tile.
type TileConfig struct {
	ID      string      `toml:"id"`
	Kind    string      `toml:"kind"` // "sensor" or "actuator"
	Script  string      `toml:"script"`
	Args    []vm.TypeID `toml:"args"`
	Output  vm.TypeID   `toml:"output"`
	Timeout Duration    `toml:"timeout"`
}

// Duration is a time.Duration read from a string such as "50ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// DefaultTickRate is the tick rate used when none is configured.
const DefaultTickRate = 30

// Load parses a brain.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Brain.Definition == "" {
		m.Brain.Definition = "brain.yaml"
	}
	if m.Runtime.TickRate <= 0 {
		m.Runtime.TickRate = DefaultTickRate
	}

	for i, t := range m.Tiles {
		if t.ID == "" || t.Script == "" {
			return nil, fmt.Errorf("%s: tile %d needs an id and a script", path, i)
		}
		if _, err := t.TileKind(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a brain.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Path resolves p against the manifest directory.
func (m *Manifest) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// DefinitionPath returns the absolute path of the brain definition.
func (m *Manifest) DefinitionPath() string {
	return m.Path(m.Brain.Definition)
}

// Limits converts the runtime section to VM limits.
func (m *Manifest) Limits() vm.Limits {
	l := vm.DefaultLimits()
	r := m.Runtime
	for _, f := range []struct {
		dst *int
		v   int
	}{
		{&l.MaxFrameDepth, r.MaxFrames},
		{&l.MaxStackSize, r.MaxStack},
		{&l.MaxFibers, r.MaxFibers},
		{&l.MaxHandles, r.MaxHandles},
		{&l.InstrBudget, r.InstrBudget},
	} {
		if f.v > 0 {
			*f.dst = f.v
		}
	}
	return l
}

// TickInterval returns the duration of one tick.
func (m *Manifest) TickInterval() time.Duration {
	rate := m.Runtime.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return time.Duration(float64(time.Second) / rate)
}

// Options returns the compiler options configured by the manifest.
func (m *Manifest) Options() compiler.Options {
	return compiler.Options{IsolateChildren: m.Brain.IsolateChildren}
}

// TileKind maps the configured kind to a compiler tile kind.
func (t TileConfig) TileKind() (compiler.TileKind, error) {
	switch t.Kind {
	case "sensor":
		return compiler.TileSensor, nil
	case "actuator":
		return compiler.TileActuator, nil
	}
	return 0, fmt.Errorf("tile %q: kind must be sensor or actuator, got %q", t.ID, t.Kind)
}
