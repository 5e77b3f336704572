// Package directory implements the agent directory: the name-resolution
// service the compiler validates step names against. Names come from three
// sources with distinct kinds: a fixed builtin set, definitions loaded
// from a YAML file or a registry store, and temporaries registered at run
// time by steering commands.
package directory

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/everydev1618/weave"
)

// builtinAgents are always resolvable. "diagnostic" backs the debug
// steering command and must never be removed.
var builtinAgents = []string{
	"analyzer",
	"coder",
	"diagnostic",
	"fixer",
	"planner",
	"researcher",
	"reviewer",
	"summarizer",
	"tester",
	"writer",
}

// Definition is a reusable agent loaded from configuration or a registry.
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Model       string `yaml:"model,omitempty"`
	Prompt      string `yaml:"prompt,omitempty"`
}

type definitionsFile struct {
	Agents []Definition `yaml:"agents"`
}

// Directory is a concurrency-safe weave.Directory. Temporaries are added
// while a run is paused; resolution happens on recompiles of edited
// workflow text.
type Directory struct {
	mu          sync.RWMutex
	builtins    map[string]bool
	defined     map[string]Definition
	temporaries map[string]bool
}

// New returns a directory seeded with the builtin agents.
func New() *Directory {
	d := &Directory{
		builtins:    make(map[string]bool, len(builtinAgents)),
		defined:     make(map[string]Definition),
		temporaries: make(map[string]bool),
	}
	for _, name := range builtinAgents {
		d.builtins[name] = true
	}
	return d
}

// LoadFile reads agent definitions from a YAML file and registers them.
func (d *Directory) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read agent definitions: %w", err)
	}
	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse agent definitions %s: %w", path, err)
	}
	for _, def := range file.Agents {
		if def.Name == "" {
			return fmt.Errorf("agent definition in %s has no name", path)
		}
		d.Define(def)
	}
	return nil
}

// Define registers (or replaces) one reusable agent definition.
func (d *Directory) Define(def Definition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defined[def.Name] = def
}

// AddTemporary registers a name for the remainder of the current session.
// Fork branches created while steering resolve through this.
func (d *Directory) AddTemporary(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.temporaries[name] = true
}

// Definition returns the stored definition for a defined agent.
func (d *Directory) Definition(name string) (Definition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	def, ok := d.defined[name]
	return def, ok
}

// Resolve implements weave.Directory. Builtins win over definitions,
// definitions over temporaries, so a temporary can never shadow a real
// agent.
func (d *Directory) Resolve(name string) weave.Resolution {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.builtins[name] {
		return weave.Resolution{Found: true, Kind: weave.StepBuiltin}
	}
	if _, ok := d.defined[name]; ok {
		return weave.Resolution{Found: true, Kind: weave.StepDefined}
	}
	if d.temporaries[name] {
		return weave.Resolution{Found: true, Kind: weave.StepTemporary}
	}
	return weave.Resolution{}
}

// Names implements weave.Directory. Sorted for deterministic suggestions.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.builtins)+len(d.defined)+len(d.temporaries))
	for name := range d.builtins {
		names = append(names, name)
	}
	for name := range d.defined {
		if !d.builtins[name] {
			names = append(names, name)
		}
	}
	for name := range d.temporaries {
		if _, ok := d.defined[name]; !ok && !d.builtins[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
