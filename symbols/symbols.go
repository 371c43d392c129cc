// Package symbols builds the per-module symbol table, scope tree, and
// reference index described in §4.3, then composes per-module
// tables into a project-wide call graph in callgraph.go. Grounded in the
// original engine's graph/callgraph/core (CallGraph, ModuleRegistry shape) and
// graph/callgraph/builder (multi-pass construction), generalized from
// Python-only to the four IR-producing frontends.
package symbols

import (
	"github.com/codescalpel/scalpel/ir"
)

// Kind classifies a symbol definition, per §3's SymbolRecord contract.
type Kind int

const (
	KindFunction Kind = iota
	KindClass
	KindVariable
	KindModule
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindVariable:
		return "variable"
	case KindModule:
		return "module"
	default:
		return "unknown"
	}
}

// Visibility distinguishes exported/public symbols from module-internal
// ones, consulted when resolving a qualified name against an imported
// module's "public surface" (§4.3).
type Visibility int

const (
	VisibilityPublic Visibility = iota
	VisibilityInternal
)

// Record is one entry in a module's symbol table: `SymbolRecord { id, kind,
// defining_span, visibility, module_path }` from §3.
type Record struct {
	ID         string
	Kind       Kind
	Name       string
	Span       ir.SourceSpan
	Visibility Visibility
	ModulePath string
	Node       ir.NodeID
}

// Scope is one level of the module → function → block scope tree.
type Scope struct {
	Node     ir.NodeID
	Parent   *Scope
	Names    map[string]*Record
	Children []*Scope
}

func newScope(node ir.NodeID, parent *Scope) *Scope {
	return &Scope{Node: node, Parent: parent, Names: map[string]*Record{}}
}

// lookup resolves name in this scope or any enclosing scope, returning the
// narrowest-enclosing-scope definition per §4.3's unqualified-name rule.
func (s *Scope) lookup(name string) (*Record, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if r, ok := cur.Names[name]; ok {
			return r, true
		}
	}
	return nil, false
}

// Reference is one name-use site, resolved to a Record or left unresolved.
type Reference struct {
	Name     string
	Span     ir.SourceSpan
	Node     ir.NodeID
	Target   *Record
	Resolved bool
}

// Table is the per-module symbol table, scope tree, and reference list
// described in §4.3.
type Table struct {
	ModulePath string
	Module     *ir.Module
	Records    map[string]*Record // qualified name -> Record, this module only
	Root       *Scope
	References []Reference
	Aliases    map[string]string // local name -> aliased target name, e.g. "evil" -> "eval"
	Imports    []Import
}

// Import is one resolved or unresolved import statement, extracted from an
// Opaque node by the per-language patterns in importmap.go.
type Import struct {
	LocalName  string // name bound in this module's scope
	TargetName string // dotted path or symbol imported, as written in source
	Span       ir.SourceSpan
}

// Build indexes a single lowered module: definitions, scope tree,
// references, and import/alias bindings. source must be the exact bytes
// mod was lowered from — Opaque import nodes are re-sliced from it because
// the IR itself does not retain source text (§3: nodes carry spans, not
// copies of the text they cover).
func Build(modulePath string, mod *ir.Module, source []byte) *Table {
	t := &Table{
		ModulePath: modulePath,
		Module:     mod,
		Records:    map[string]*Record{},
		Aliases:    map[string]string{},
	}
	if mod.Arena.Len() == 0 {
		t.Root = newScope(ir.InvalidNodeID, nil)
		return t
	}
	root := mod.Arena.Root()
	t.Root = newScope(root, nil)
	b := &builder{table: t, source: source}
	b.walk(mod.Arena, root, t.Root, nil)
	return b.resolveAliasAssignments()
}

type builder struct {
	table  *Table
	source []byte
}

// qualify builds the dotted record ID for name given its enclosing
// FunctionDef/ClassDef path, e.g. path=["Handler"] name="run" under module
// "a" yields "a.Handler.run" — distinct from a same-named method on a
// different class, which a flat module+name ID would collide on.
func (b *builder) qualify(path []string, name string) string {
	id := b.table.ModulePath
	for _, p := range path {
		if p != "" {
			id += "." + p
		}
	}
	return id + "." + name
}

// walk performs one depth-first pass over the arena: it populates
// scope.Names as definitions are encountered and collects Reference
// entries for Name nodes, resolving each against the definitions already
// seen in its scope chain. There is no second pass, so a use of a sibling
// defined later in the source stays unresolved.
func (b *builder) walk(a *ir.Arena, id ir.NodeID, scope *Scope, path []string) {
	n := a.Node(id)
	switch n.Kind {
	case ir.KindFunctionDef:
		rec := &Record{
			ID: b.qualify(path, n.Name), Kind: KindFunction, Name: n.Name,
			Span: n.Span, ModulePath: b.table.ModulePath, Node: id,
			Visibility: visibilityOf(n.Name),
		}
		if n.Name != "" {
			scope.Names[n.Name] = rec
			b.table.Records[rec.ID] = rec
		}
		child := newScope(id, scope)
		scope.Children = append(scope.Children, child)
		childPath := append(append([]string{}, path...), n.Name)
		for _, c := range n.Children {
			b.walk(a, c, child, childPath)
		}
		return
	case ir.KindClassDef:
		rec := &Record{
			ID: b.qualify(path, n.Name), Kind: KindClass, Name: n.Name,
			Span: n.Span, ModulePath: b.table.ModulePath, Node: id,
			Visibility: visibilityOf(n.Name),
		}
		if n.Name != "" {
			scope.Names[n.Name] = rec
			b.table.Records[rec.ID] = rec
		}
		child := newScope(id, scope)
		scope.Children = append(scope.Children, child)
		childPath := append(append([]string{}, path...), n.Name)
		for _, c := range n.Children {
			b.walk(a, c, child, childPath)
		}
		return
	case ir.KindVariableDecl:
		rec := &Record{
			ID: b.qualify(path, n.Name), Kind: KindVariable, Name: n.Name,
			Span: n.Span, ModulePath: b.table.ModulePath, Node: id,
			Visibility: visibilityOf(n.Name),
		}
		if n.Name != "" {
			scope.Names[n.Name] = rec
		}
	case ir.KindAssign:
		// The LHS Name (first child) is a binding in the enclosing scope
		// unless it already resolves to an outer variable (reassignment).
		if len(n.Children) > 0 {
			lhs := a.Node(n.Children[0])
			if lhs.Kind == ir.KindName && lhs.Name != "" {
				if _, exists := scope.lookup(lhs.Name); !exists {
					scope.Names[lhs.Name] = &Record{
						ID: b.qualify(path, lhs.Name), Kind: KindVariable, Name: lhs.Name,
						Span: lhs.Span, ModulePath: b.table.ModulePath, Node: n.Children[0],
						Visibility: visibilityOf(lhs.Name),
					}
				}
			}
		}
	case ir.KindName:
		ref := Reference{Name: n.Name, Span: n.Span, Node: id}
		if rec, ok := scope.lookup(n.Name); ok {
			ref.Target = rec
			ref.Resolved = true
		}
		b.table.References = append(b.table.References, ref)
	case ir.KindOpaque:
		if imp, ok := extractImport(b.table.Module.Language, n, b.source); ok {
			b.table.Imports = append(b.table.Imports, imp)
			scope.Names[imp.LocalName] = &Record{
				ID: imp.TargetName, Kind: KindModule, Name: imp.LocalName,
				Span: imp.Span, ModulePath: b.table.ModulePath,
			}
		}
	}
	for _, c := range n.Children {
		b.walk(a, c, scope, path)
	}
}

// resolveAliasAssignments finds simple "alias = target" bindings where
// both sides are plain Names (the target is not checked against the
// table, so a builtin such as eval qualifies), per
// §4.3's "aliased import" rule: "evil = eval; call of evil resolves as
// call of eval." Only direct Name-to-Name assignment aliases qualify —
// anything else (an expression, a call result) is an ordinary variable.
func (b *builder) resolveAliasAssignments() *Table {
	a := b.table.Module.Arena
	if a == nil || a.Len() == 0 {
		return b.table
	}
	ir.Walk(a, a.Root(), func(a *ir.Arena, id ir.NodeID) {
		n := a.Node(id)
		if n.Kind != ir.KindAssign || len(n.Children) != 2 {
			return
		}
		lhs := a.Node(n.Children[0])
		rhs := a.Node(n.Children[1])
		if lhs.Kind == ir.KindName && rhs.Kind == ir.KindName && lhs.Name != "" && rhs.Name != "" {
			b.table.Aliases[lhs.Name] = rhs.Name
		}
	})
	return b.table
}

// visibilityOf applies the common "leading underscore is internal"
// convention shared by Python/JS naming practice; Java's public/private
// modifiers aren't captured structurally by the IR (access modifiers carry
// no dedicated node), so this heuristic is the only signal available
// without re-reading source tokens the IR already discarded.
func visibilityOf(name string) Visibility {
	if len(name) > 0 && name[0] == '_' {
		return VisibilityInternal
	}
	return VisibilityPublic
}

// Resolve follows the module's alias chain for name (bounded to avoid a
// cycle), returning the final target name and whether any aliasing
// occurred.
func (t *Table) Resolve(name string) (string, bool) {
	seen := map[string]bool{}
	cur := name
	aliased := false
	for {
		next, ok := t.Aliases[cur]
		if !ok || seen[next] {
			break
		}
		seen[next] = true
		cur = next
		aliased = true
	}
	return cur, aliased
}
