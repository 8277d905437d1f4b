package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chazu/brain/compiler"
	"github.com/chazu/brain/script"
	"github.com/chazu/brain/vm"
)

// ParseBrainDef decodes a YAML brain definition. Unknown keys are errors.
func ParseBrainDef(data []byte) (*compiler.BrainDef, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var def compiler.BrainDef
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty brain definition")
		}
		return nil, err
	}
	if len(def.Pages) == 0 {
		return nil, fmt.Errorf("brain definition has no pages")
	}
	return &def, nil
}

// LoadBrainDef reads a YAML brain definition from path.
func LoadBrainDef(path string) (*compiler.BrainDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	def, err := ParseBrainDef(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return def, nil
}

// LoadBrain loads the configured brain definition and applies the
// manifest's entry page and variables. A variable the definition already
// declares keeps the definition's type.
func (m *Manifest) LoadBrain() (*compiler.BrainDef, error) {
	def, err := LoadBrainDef(m.DefinitionPath())
	if err != nil {
		return nil, err
	}
	if m.Brain.Entry != "" {
		def.EntryPage = m.Brain.Entry
	}
	if def.Name == "" {
		def.Name = m.Project.Name
	}
	declared := make(map[string]bool, len(def.Variables))
	for _, v := range def.Variables {
		declared[v.Name] = true
	}
	for _, v := range m.Variables {
		if !declared[v.Name] {
			def.Variables = append(def.Variables, v)
			declared[v.Name] = true
		}
	}
	return def, nil
}

// InstallTiles compiles the manifest's scripted tiles, registering their
// host functions in svc and their tiles in c. svc must not be sealed yet.
func (m *Manifest) InstallTiles(svc *vm.Services, c *compiler.Catalog) error {
	for _, t := range m.Tiles {
		kind, err := t.TileKind()
		if err != nil {
			return err
		}
		src, err := os.ReadFile(m.Path(t.Script))
		if err != nil {
			return fmt.Errorf("tile %q: %w", t.ID, err)
		}
		tile := script.Tile{ID: t.ID, Kind: kind, Source: string(src), Args: t.Args, Output: t.Output}
		if err := script.Install(svc, c, tile, script.Options{Timeout: t.Timeout.Duration}); err != nil {
			return fmt.Errorf("tile %q: %w", t.ID, err)
		}
	}
	return nil
}
