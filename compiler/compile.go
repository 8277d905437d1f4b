package compiler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/chazu/brain/vm"
)

var log = commonlog.GetLogger("brain.compiler")

// VarDecl declares a typed variable.
type VarDecl struct {
	Name string    `yaml:"name" toml:"name"`
	Type vm.TypeID `yaml:"type" toml:"type"`
}

// RuleDef is one WHEN/DO row pair, with optional child rules that run
// after the action whenever the predicate holds.
type RuleDef struct {
	When     string    `yaml:"when,omitempty"`
	Do       string    `yaml:"do,omitempty"`
	Locals   []VarDecl `yaml:"locals,omitempty"`
	Children []RuleDef `yaml:"children,omitempty"`
}

// PageDef is a named set of root rules.
type PageDef struct {
	ID    string    `yaml:"id"`
	Name  string    `yaml:"name,omitempty"`
	Rules []RuleDef `yaml:"rules"`
}

// BrainDef is the source form of a brain.
type BrainDef struct {
	Name      string    `yaml:"name"`
	Variables []VarDecl `yaml:"variables,omitempty"`
	Pages     []PageDef `yaml:"pages"`
	EntryPage string    `yaml:"entry,omitempty"` // page id or name; defaults to the first page
}

// Options tune code generation.
type Options struct {
	// IsolateChildren wraps every child rule call in TRY/END_TRY so a
	// faulting child does not fault its parent.
	IsolateChildren bool
}

// Env is everything a compilation binds against.
type Env struct {
	Services *vm.Services
	Catalog  *Catalog
	Options  Options
}

// ruleJob is one rule scheduled for compilation.
type ruleJob struct {
	def      *RuleDef
	path     string
	page     int
	funcID   int
	parent   *ruleJob
	children []int
	locals   map[string]int
	types    map[string]vm.TypeID
}

type brainCompiler struct {
	env      *Env
	pool     *ConstantPool
	sites    siteAllocator
	ids      NodeIDs
	diags    Diagnostics
	names    []string
	globals  map[string]int
	gtypes   map[string]vm.TypeID
	implicit map[string]bool // globals created by reference
	jobs     []*ruleJob
}

// CompileBrain compiles def into a program. Problems in rule rows are
// reported as diagnostics and compile to Nil placeholders; the returned
// error is reserved for structural failures.
func CompileBrain(def *BrainDef, env *Env) (*vm.BrainProgram, Diagnostics, error) {
	if def == nil {
		return nil, nil, errors.New("compile: nil brain definition")
	}
	if env == nil || env.Services == nil || env.Catalog == nil {
		return nil, nil, errors.New("compile: environment needs services and a catalog")
	}

	c := &brainCompiler{
		env:      env,
		pool:     NewConstantPool(),
		globals:  make(map[string]int),
		gtypes:   make(map[string]vm.TypeID),
		implicit: make(map[string]bool),
	}

	for _, v := range def.Variables {
		if _, dup := c.globals[v.Name]; dup {
			return nil, nil, fmt.Errorf("compile: variable %q declared twice", v.Name)
		}
		c.globals[v.Name] = c.addName(v.Name)
		c.gtypes[v.Name] = c.checkType(v, "")
	}

	prog := &vm.BrainProgram{
		Version:   vm.ProgramVersion,
		RuleIndex: make(map[string]int),
	}

	entry := -1
	for pi := range def.Pages {
		pd := &def.Pages[pi]
		page := vm.PageMetadata{Index: pi, ID: pd.ID, Name: pd.Name}
		if page.ID == "" {
			page.ID = strconv.Itoa(pi)
		}
		if page.Name == "" {
			page.Name = page.ID
		}
		if def.EntryPage != "" && (def.EntryPage == page.ID || def.EntryPage == page.Name) {
			entry = pi
		}
		for ri := range pd.Rules {
			job := c.schedule(&pd.Rules[ri], strconv.Itoa(pi)+"/"+strconv.Itoa(ri), pi, nil)
			page.RootRules = append(page.RootRules, job.funcID)
		}
		prog.Pages = append(prog.Pages, page)
	}
	if def.EntryPage != "" && entry < 0 {
		return nil, nil, fmt.Errorf("compile: entry page %q not found", def.EntryPage)
	}
	prog.EntryPoint = max(entry, 0)

	prog.Functions = make([]vm.FunctionBytecode, len(c.jobs))
	for _, job := range c.jobs {
		fn, err := c.compileRule(job, &prog.Pages[job.page])
		if err != nil {
			return nil, c.diags, fmt.Errorf("compile: rule %s: %w", job.path, err)
		}
		prog.Functions[job.funcID] = fn
		prog.RuleIndex[job.path] = job.funcID

		meta := vm.RuleMetadata{Path: job.path, FuncID: job.funcID, Page: job.page, Parent: -1}
		if job.parent != nil {
			meta.Parent = job.parent.funcID
		}
		for _, l := range job.def.Locals {
			meta.Locals = append(meta.Locals, job.locals[l.Name])
		}
		prog.Rules = append(prog.Rules, meta)
	}

	prog.Constants = c.pool.Values()
	prog.VariableNames = c.names

	if err := prog.Validate(); err != nil {
		return nil, c.diags, fmt.Errorf("compile: %w", err)
	}

	log.Debugf("compiled brain %q: %d pages, %d rules, %d constants, %d call sites, %d diagnostics",
		def.Name, len(prog.Pages), len(prog.Functions), len(prog.Constants), c.sites.next, len(c.diags))
	return prog, c.diags, nil
}

func (c *brainCompiler) addName(name string) int {
	c.names = append(c.names, name)
	return len(c.names) - 1
}

func (c *brainCompiler) checkType(v VarDecl, rule string) vm.TypeID {
	if v.Type == "" {
		return vm.TypeUnknown
	}
	if _, ok := c.env.Services.Types.Get(v.Type); !ok {
		sink := diagSink{list: &c.diags, rule: rule}
		sink.errorf(UnknownType, nil, "variable $%s has unknown type %q", v.Name, v.Type)
		return vm.TypeUnknown
	}
	return v.Type
}

// schedule assigns function ids in pre-order: a rule before its children.
func (c *brainCompiler) schedule(def *RuleDef, path string, page int, parent *ruleJob) *ruleJob {
	job := &ruleJob{
		def:    def,
		path:   path,
		page:   page,
		funcID: len(c.jobs),
		parent: parent,
		locals: make(map[string]int),
		types:  make(map[string]vm.TypeID),
	}
	c.jobs = append(c.jobs, job)

	for _, l := range def.Locals {
		if _, dup := job.locals[l.Name]; dup {
			sink := diagSink{list: &c.diags, rule: path}
			sink.warnf(UnknownVariable, nil, "local $%s declared twice", l.Name)
			continue
		}
		job.locals[l.Name] = c.addName(l.Name)
		job.types[l.Name] = c.checkType(l, path)
	}

	for i := range def.Children {
		child := c.schedule(&def.Children[i], path+"/"+strconv.Itoa(i), page, job)
		job.children = append(job.children, child.funcID)
	}
	return job
}

// resolve walks rule locals, then ancestor locals, then globals. An
// undeclared name becomes an untyped global.
func (c *brainCompiler) resolve(job *ruleJob, name string) (int, vm.TypeID, bool) {
	for r := job; r != nil; r = r.parent {
		if id, ok := r.locals[name]; ok {
			return id, r.types[name], true
		}
	}
	if id, ok := c.globals[name]; ok {
		return id, c.gtypes[name], true
	}
	id := c.addName(name)
	c.globals[name] = id
	c.gtypes[name] = vm.TypeUnknown
	c.implicit[name] = true
	return id, vm.TypeUnknown, false
}

func (c *brainCompiler) compileRule(job *ruleJob, page *vm.PageMetadata) (vm.FunctionBytecode, error) {
	types := NewTypeEnv()
	declared := func(name string) (vm.TypeID, bool) {
		for r := job; r != nil; r = r.parent {
			if t, ok := r.types[name]; ok {
				return t, true
			}
		}
		if c.implicit[name] {
			return "", false
		}
		t, ok := c.gtypes[name]
		return t, ok
	}

	when := c.parseRow(job.def.When, job.path)
	do := c.parseRow(job.def.Do, job.path)
	Infer(when, types, c.env.Services, declared, &c.diags, job.path)
	Infer(do, types, c.env.Services, declared, &c.diags, job.path)

	g := &codegen{
		em:    NewEmitter(),
		pool:  c.pool,
		types: types,
		vars: func(name string) int {
			id, _, _ := c.resolve(job, name)
			return id
		},
		sites: &c.sites,
		page:  page,
		diags: diagSink{list: &c.diags, rule: job.path},
	}
	g.rule(when, do, job.children, c.env.Options.IsolateChildren)
	if g.err != nil {
		return vm.FunctionBytecode{}, g.err
	}
	code, err := g.em.Finalize()
	if err != nil {
		return vm.FunctionBytecode{}, err
	}
	return vm.FunctionBytecode{
		Name:          job.path,
		Code:          code,
		MaxStackDepth: MaxStackDepth(code),
	}, nil
}

func (c *brainCompiler) parseRow(row, rule string) Expr {
	return NewParser(row, c.env.Catalog, &c.ids, &c.diags, rule).Parse()
}
