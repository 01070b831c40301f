// Package loader builds the node graph from a project directory.
//
// Models come from models_dir (SQL with optional /*--- ---*/ YAML frontmatter),
// data tests from tests_dir, archives and hooks from the project file, and
// macros from macros_dir/*.star. Dependencies are the ref('name') calls found
// in each template.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaprun/internal/dag"
	"github.com/leapstack-labs/leaprun/internal/macro"
	"github.com/leapstack-labs/leaprun/internal/template"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// Config holds loader configuration.
type Config struct {
	// Project is the loaded project configuration
	Project *core.ProjectConfig
	// Root is the project directory; relative dirs resolve against it
	Root   string
	Logger *slog.Logger
}

// Loader reads a project into a graph.
type Loader struct {
	project *core.ProjectConfig
	root    string
	logger  *slog.Logger
}

// New creates a loader.
func New(cfg Config) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	project := cfg.Project
	if project == nil {
		project = &core.ProjectConfig{}
	}
	return &Loader{project: project, root: cfg.Root, logger: logger}
}

// DuplicateNodeError is returned when two nodes share a unique id.
type DuplicateNodeError struct {
	UniqueID string
	Paths    []string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node %s defined in %s", e.UniqueID, strings.Join(e.Paths, " and "))
}

// Load builds the graph. Templates are parsed to find dependencies but are
// not rendered.
func (l *Loader) Load() (*dag.Graph, error) {
	g := dag.NewGraph()
	var nodes []*core.Node

	models, err := l.loadModels()
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, models...)

	tests, err := l.loadDataTests()
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, tests...)
	nodes = append(nodes, l.loadArchives()...)
	nodes = append(nodes, l.loadHooks()...)

	seen := make(map[string]*core.Node, len(nodes))
	for _, n := range nodes {
		if prev, ok := seen[n.UniqueID]; ok {
			return nil, &DuplicateNodeError{UniqueID: n.UniqueID, Paths: []string{prev.OriginalFilePath, n.OriginalFilePath}}
		}
		seen[n.UniqueID] = n
		g.AddNode(n)
	}

	if err := l.resolveDependencies(g, nodes); err != nil {
		return nil, err
	}
	if err := g.LinkDependencies(); err != nil {
		return nil, fmt.Errorf("failed to link dependencies: %w", err)
	}
	if cyclic, path := g.HasCycle(); cyclic {
		return nil, fmt.Errorf("dependency cycle detected: %s", strings.Join(path, " -> "))
	}

	macros, err := l.loadMacros()
	if err != nil {
		return nil, err
	}
	for _, m := range macros {
		g.AddMacro(m)
	}

	l.logger.Debug("loaded project", "nodes", g.NodeCount(), "edges", g.EdgeCount(), "macros", len(macros))
	return g, nil
}

func (l *Loader) path(dir, fallback string) string {
	if dir == "" {
		dir = fallback
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(l.root, dir)
}

func (l *Loader) defaultSchema() string {
	return l.project.Target.DefaultSchema()
}

func (l *Loader) uniqueID(rt core.ResourceType, name string) string {
	return fmt.Sprintf("%s.%s.%s", rt, l.project.Name, name)
}

// sqlFiles returns every .sql file under dir in lexical order.
// A missing dir yields no files.
func sqlFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".sql") {
			files = append(files, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (l *Loader) rel(path string) string {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (l *Loader) loadModels() ([]*core.Node, error) {
	files, err := sqlFiles(l.path(l.project.ModelsDir, "models"))
	if err != nil {
		return nil, err
	}

	var nodes []*core.Node
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read model %s: %w", path, err)
		}
		fm, err := ExtractFrontmatter(string(content))
		if err != nil {
			return nil, withFile(err, l.rel(path))
		}

		cfg := fm.Config
		cfg.ApplyDefaults(filepath.Base(path), l.defaultSchema())
		tags := append([]string(nil), cfg.Tags...)

		node := &core.Node{
			UniqueID:         l.uniqueID(core.ResourceModel, cfg.Name),
			Name:             cfg.Name,
			Package:          l.project.Name,
			ResourceType:     core.ResourceModel,
			Schema:           cfg.Schema,
			OriginalFilePath: l.rel(path),
			RawSQL:           fm.SQL,
			Tags:             tags,
			Config: core.NodeConfig{
				Materialized: cfg.Materialized,
				Enabled:      cfg.IsEnabled(),
				Tags:         tags,
				UniqueKey:    cfg.UniqueKey,
				Extra:        cfg.Meta,
			},
		}
		nodes = append(nodes, node)
		nodes = append(nodes, l.schemaTests(node, cfg.Tests)...)
	}
	return nodes, nil
}

func withFile(err error, file string) error {
	var parseErr *FrontmatterParseError
	if errors.As(err, &parseErr) {
		parseErr.File = file
		return parseErr
	}
	var fieldErr *UnknownFieldError
	if errors.As(err, &fieldErr) {
		fieldErr.File = file
		return fieldErr
	}
	return fmt.Errorf("%s: %w", file, err)
}

// schemaTests generates one test node per declared column check.
func (l *Loader) schemaTests(model *core.Node, tests []TestConfig) []*core.Node {
	var out []*core.Node
	add := func(kind, column, sql string) {
		name := fmt.Sprintf("%s_%s_%s", kind, model.Name, column)
		out = append(out, &core.Node{
			UniqueID:     l.uniqueID(core.ResourceTest, name),
			Name:         name,
			Package:      l.project.Name,
			ResourceType: core.ResourceTest,
			Schema:       model.Schema,
			RawSQL:       sql,
			Tags:         []string{"schema"},
			Config:       core.NodeConfig{Enabled: model.Config.Enabled, Tags: []string{"schema"}},
		})
	}

	ref := fmt.Sprintf("{{ ref('%s') }}", model.Name)
	for _, t := range tests {
		for _, col := range t.Unique {
			add("unique", col, fmt.Sprintf(
				"select %[1]s from %[2]s where %[1]s is not null group by %[1]s having count(*) > 1", col, ref))
		}
		for _, col := range t.NotNull {
			add("not_null", col, fmt.Sprintf("select * from %s where %s is null", ref, col))
		}
		if av := t.AcceptedValues; av != nil {
			quoted := make([]string, len(av.Values))
			for i, v := range av.Values {
				quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
			}
			add("accepted_values", av.Column, fmt.Sprintf(
				"select * from %s where %s not in (%s)", ref, av.Column, strings.Join(quoted, ", ")))
		}
	}
	return out
}

func (l *Loader) loadDataTests() ([]*core.Node, error) {
	files, err := sqlFiles(l.path(l.project.TestsDir, "tests"))
	if err != nil {
		return nil, err
	}

	var nodes []*core.Node
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read test %s: %w", path, err)
		}
		fm, err := ExtractFrontmatter(string(content))
		if err != nil {
			return nil, withFile(err, l.rel(path))
		}
		cfg := fm.Config
		cfg.ApplyDefaults(filepath.Base(path), l.defaultSchema())
		tags := append([]string{"data"}, cfg.Tags...)

		nodes = append(nodes, &core.Node{
			UniqueID:         l.uniqueID(core.ResourceTest, cfg.Name),
			Name:             cfg.Name,
			Package:          l.project.Name,
			ResourceType:     core.ResourceTest,
			Schema:           cfg.Schema,
			OriginalFilePath: l.rel(path),
			RawSQL:           fm.SQL,
			Tags:             tags,
			Config:           core.NodeConfig{Enabled: cfg.IsEnabled(), Tags: tags, Extra: cfg.Meta},
		})
	}
	return nodes, nil
}

func (l *Loader) loadArchives() []*core.Node {
	nodes := make([]*core.Node, 0, len(l.project.Archives))
	for _, a := range l.project.Archives {
		targetTable := a.TargetTable
		if targetTable == "" {
			targetTable = a.Name
		}
		targetSchema := a.TargetSchema
		if targetSchema == "" {
			targetSchema = l.defaultSchema()
		}
		name := a.Name
		if name == "" {
			name = targetTable
		}

		nodes = append(nodes, &core.Node{
			UniqueID:     l.uniqueID(core.ResourceArchive, name),
			Name:         name,
			Package:      l.project.Name,
			ResourceType: core.ResourceArchive,
			Schema:       targetSchema,
			Config: core.NodeConfig{
				Materialized: core.MaterializationArchive,
				Enabled:      true,
				UniqueKey:    a.UniqueKey,
				SourceSchema: a.SourceSchema,
				SourceTable:  a.SourceTable,
				TargetSchema: targetSchema,
				TargetTable:  targetTable,
				UpdatedAt:    a.UpdatedAt,
			},
		})
	}
	return nodes
}

func (l *Loader) loadHooks() []*core.Node {
	var nodes []*core.Node
	add := func(tag string, statements []string) {
		for i, sql := range statements {
			name := fmt.Sprintf("%s-%d", tag, i)
			nodes = append(nodes, &core.Node{
				UniqueID:     l.uniqueID(core.ResourceOperation, name),
				Name:         name,
				Package:      l.project.Name,
				ResourceType: core.ResourceOperation,
				RawSQL:       sql,
				Tags:         []string{tag},
				Config:       core.NodeConfig{Enabled: true, Tags: []string{tag}},
			})
		}
	}
	add(core.HookRunStart, l.project.OnRunStart)
	add(core.HookRunEnd, l.project.OnRunEnd)
	return nodes
}

// resolveDependencies fills DependsOn from ref() calls. Unknown names are
// left for the compiler to report.
func (l *Loader) resolveDependencies(g *dag.Graph, nodes []*core.Node) error {
	for _, n := range nodes {
		if n.RawSQL == "" {
			continue
		}
		file := n.OriginalFilePath
		if file == "" {
			file = n.Name
		}
		tmpl, err := template.Parse(n.RawSQL, file)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", n.UniqueID, err)
		}
		refs, err := tmpl.CallArgs("ref")
		if err != nil {
			return fmt.Errorf("failed to find refs in %s: %w", n.UniqueID, err)
		}
		for _, name := range refs {
			target, ok := g.ResolveRef(name)
			if !ok {
				l.logger.Debug("unresolved ref", "node", n.UniqueID, "ref", name)
				continue
			}
			if target.UniqueID != n.UniqueID && !contains(n.DependsOn, target.UniqueID) {
				n.DependsOn = append(n.DependsOn, target.UniqueID)
			}
		}
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// loadMacros reads macros_dir/*.star. Every function becomes a graph macro
// carrying its file's source under the file's namespace.
func (l *Loader) loadMacros() ([]core.Macro, error) {
	dir := l.path(l.project.MacrosDir, "macros")
	files, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to list macros: %w", err)
	}
	sort.Strings(files)

	var out []core.Macro
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read macro file %s: %w", path, err)
		}
		defs, err := macro.Scan(path, content)
		if err != nil {
			return nil, err
		}
		namespace := strings.TrimSuffix(filepath.Base(path), ".star")
		if macro.IsReserved(namespace) {
			return nil, &macro.RegistryError{Namespace: namespace, Message: "namespace is reserved"}
		}
		for _, fn := range defs {
			out = append(out, core.Macro{
				UniqueID:  fmt.Sprintf("macro.%s.%s.%s", l.project.Name, namespace, fn.Name),
				Name:      fn.Name,
				Namespace: namespace,
				FilePath:  l.rel(path),
				Source:    string(content),
			})
		}
	}
	return out, nil
}
