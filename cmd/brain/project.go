package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/brain/brain"
	"github.com/chazu/brain/compiler"
	"github.com/chazu/brain/manifest"
	"github.com/chazu/brain/vm"
)

// project is what the command line points at: a brain.toml project, a
// bare YAML definition, or a compiled .bbc program.
type project struct {
	manifest *manifest.Manifest // nil without brain.toml
	defPath  string             // explicit YAML definition
	progPath string             // compiled program
}

// openProject resolves arg (a directory, a .yaml/.yml file or a .bbc
// file) and the optional manifest directory config.
func openProject(arg, config string) (*project, error) {
	p := &project{}
	start := arg
	switch ext := strings.ToLower(filepath.Ext(arg)); ext {
	case ".yaml", ".yml":
		p.defPath = arg
		start = filepath.Dir(arg)
	case ".bbc":
		p.progPath = arg
		start = filepath.Dir(arg)
	}
	if start == "" {
		start = "."
	}

	var err error
	if config != "" {
		p.manifest, err = manifest.Load(config)
	} else {
		p.manifest, err = manifest.FindAndLoad(start)
	}
	if err != nil {
		return nil, err
	}
	if p.manifest == nil && p.defPath == "" && p.progPath == "" {
		return nil, fmt.Errorf("no %s found from %s", manifest.FileName, start)
	}
	return p, nil
}

// services builds the registries and tile catalog: the core primitives,
// the built-in tiles and the manifest's scripted tiles. Function ids are
// stable for a given manifest, so compiled programs stay valid.
func (p *project) services() (*vm.Services, *compiler.Catalog, error) {
	svc := vm.NewCoreServices()
	catalog := compiler.NewCatalog(svc)
	if err := brain.InstallBuiltins(svc, catalog); err != nil {
		return nil, nil, err
	}
	if p.manifest != nil {
		if err := p.manifest.InstallTiles(svc, catalog); err != nil {
			return nil, nil, err
		}
	}
	svc.Seal()
	return svc, catalog, nil
}

func (p *project) definition() (*compiler.BrainDef, error) {
	if p.defPath != "" {
		return manifest.LoadBrainDef(p.defPath)
	}
	return p.manifest.LoadBrain()
}

// build produces the program to run: it decodes a .bbc file or compiles
// the brain definition. Diagnostics are returned even when they fail the
// build.
func (p *project) build() (*vm.BrainProgram, *vm.Services, compiler.Diagnostics, error) {
	svc, catalog, err := p.services()
	if err != nil {
		return nil, nil, nil, err
	}

	if p.progPath != "" {
		f, err := os.Open(p.progPath)
		if err != nil {
			return nil, nil, nil, err
		}
		defer f.Close()
		prog, err := vm.ReadProgram(f)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s: %w", p.progPath, err)
		}
		return prog, svc, nil, nil
	}

	def, err := p.definition()
	if err != nil {
		return nil, nil, nil, err
	}
	env := &compiler.Env{Services: svc, Catalog: catalog}
	if p.manifest != nil {
		env.Options = p.manifest.Options()
	}
	prog, diags, err := compiler.CompileBrain(def, env)
	if err != nil {
		return nil, nil, diags, err
	}
	if diags.HasErrors() {
		return nil, nil, diags, fmt.Errorf("%d compile errors", len(diags.Errors()))
	}
	return prog, svc, diags, nil
}

func (p *project) limits() vm.Limits {
	if p.manifest == nil {
		return vm.DefaultLimits()
	}
	return p.manifest.Limits()
}

func (p *project) tickInterval() time.Duration {
	if p.manifest == nil {
		return time.Second / manifest.DefaultTickRate
	}
	return p.manifest.TickInterval()
}

// ticks returns the configured number of ticks to run.
func (p *project) ticks() int {
	if p.manifest == nil {
		return 0
	}
	return p.manifest.Runtime.Ticks
}

// output returns the configured .bbc output path, or "".
func (p *project) output() string {
	if p.manifest == nil {
		return ""
	}
	return p.manifest.Path(p.manifest.Output.Program)
}

// watchDirs returns the directories holding the project's sources.
func (p *project) watchDirs() []string {
	seen := map[string]bool{}
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		dir := filepath.Dir(path)
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	add(p.defPath)
	add(p.progPath)
	if m := p.manifest; m != nil {
		add(filepath.Join(m.Dir, manifest.FileName))
		add(m.DefinitionPath())
		for _, t := range m.Tiles {
			add(m.Path(t.Script))
		}
	}
	return dirs
}

// reload re-reads the manifest so edits to brain.toml take effect.
func (p *project) reload() error {
	if p.manifest == nil {
		return nil
	}
	m, err := manifest.Load(p.manifest.Dir)
	if err != nil {
		return err
	}
	p.manifest = m
	return nil
}
