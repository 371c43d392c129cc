package refactor

import (
	"fmt"
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/codescalpel/scalpel/frontend"
	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/symbolic"
	"github.com/codescalpel/scalpel/symbols"
	"github.com/codescalpel/scalpel/taint"
)

// ProjectContext carries the project-wide index Simulate consults to
// enumerate AST references beyond the single edited file — a rename can
// be referenced from any module in the project, not just the one that
// declared it.
type ProjectContext struct {
	Project *symbols.Project
	Files   map[string][]byte // every source file in the project, for literal scanning
}

// Simulator runs the refactor algorithm described in §4.10 against a
// ProjectContext. It's stateless across calls — Simulate takes the
// project context fresh every time, since a simulated edit must never
// mutate the project index a real rename would later apply to.
type Simulator struct {
	Frontends *frontend.Registry
	Taint     *taint.Registry
	Patterns  LiteralPatterns
}

// NewSimulator builds a Simulator with the given taint and literal-pattern
// registries. patterns may be the zero value, in which case
// DefaultLiteralPatterns is used.
func NewSimulator(frontends *frontend.Registry, taintReg *taint.Registry, patterns LiteralPatterns) *Simulator {
	if patterns.Templates == nil {
		patterns = DefaultLiteralPatterns()
	}
	return &Simulator{Frontends: frontends, Taint: taintReg, Patterns: patterns}
}

// Simulate runs the full algorithm: parse both versions to IR, diff their
// declarations, enumerate AST and string-literal references for every
// renamed identifier, re-run the taint scanner on both versions and keep
// only the findings new to the proposed code, attempt a behavioral
// equivalence verdict, and fold all of it into is_safe per §4.10's rule:
// "is_safe iff new_findings is empty AND behavioral_equivalent is true or
// unknown AND no reference appears unresolved."
func (s *Simulator) Simulate(ctx *ProjectContext, in Input, opts symbolic.Options) (*Result, error) {
	fe, ok := s.Frontends.Lookup(in.FilePath)
	if !ok {
		return nil, fmt.Errorf("refactor: no frontend registered for %q", in.FilePath)
	}

	oldMod := fe.Lower(in.FilePath, in.OriginalCode)
	newMod := fe.Lower(in.FilePath, in.ProposedCode)

	oldDecls := collectDecls(oldMod.Arena)
	newDecls := collectDecls(newMod.Arena)
	changes, renames := diffDecls(oldDecls, newDecls)

	var refs []Location
	for oldName, newName := range renames {
		if oldName == newName {
			continue
		}
		refs = append(refs, s.findASTReferences(ctx, oldName)...)
		refs = append(refs, scanLiteralReferences(ctx.Files, oldName, s.Patterns)...)
	}
	sortLocations(refs)

	oldFindings := scanFindings(oldMod, s.Taint)
	newFindings := scanFindings(newMod, s.Taint)
	delta := diffFindings(oldFindings, newFindings)

	behavior := compareBehavior(oldMod.Arena, newMod.Arena, oldDecls, newDecls, renames, opts)

	unresolved := false
	for _, r := range refs {
		if !r.Resolved {
			unresolved = true
			break
		}
	}

	result := &Result{
		Changes:              changes,
		BehavioralEquivalent: behavior,
		NewFindings:          delta,
		ReferencesAffected:   refs,
		UnifiedDiff:          unifiedDiff(in.FilePath, in.OriginalCode, in.ProposedCode),
	}
	result.IsSafe = len(delta) == 0 &&
		(behavior == EquivalentTrue || behavior == EquivalentUnknown) &&
		!unresolved
	return result, nil
}

// findASTReferences looks up oldName's project-wide candidate records and
// walks every table's reference list for one whose Target matches,
// returning both the defining record's span (Context "definition") and
// every resolved use-site (Context "reference"). An unresolved reference
// sharing the name is reported with Resolved=false so callers — and
// Simulate's is_safe computation — can tell a genuine miss from a clean
// rename.
func (s *Simulator) findASTReferences(ctx *ProjectContext, oldName string) []Location {
	var out []Location
	for _, rec := range ctx.Project.ByName[oldName] {
		out = append(out, Location{
			FilePath: rec.ModulePath, Span: rec.Span, Context: "definition", Resolved: true,
		})
	}
	for modPath, table := range ctx.Project.Tables {
		for _, ref := range table.References {
			if ref.Name != oldName {
				continue
			}
			context := "reference"
			if !ref.Resolved {
				context = "unresolved_reference"
			}
			out = append(out, Location{
				FilePath: modPath, Span: ref.Span, Context: context, Resolved: ref.Resolved,
			})
		}
	}
	return out
}

// scanFindings runs the taint engine over every function declared in mod,
// per §4.10's "run the security scanner on both versions."
func scanFindings(mod *ir.Module, reg *taint.Registry) []taint.Finding {
	var out []taint.Finding
	root := mod.Arena.Root()
	if root == ir.InvalidNodeID {
		return out
	}
	ir.Walk(mod.Arena, root, func(a *ir.Arena, id ir.NodeID) {
		n := a.Node(id)
		if n.Kind != ir.KindFunctionDef {
			return
		}
		summary := taint.AnalyzeFunction(a, mod.Language, ir.NewUniversalID(mod.Language, mod.FilePath, n.Span.StartLine, n.Span.StartCol, n.Name), id, reg, nil)
		out = append(out, summary.Findings...)
	})
	return out
}

func findingKey(f taint.Finding) string {
	return fmt.Sprintf("%s|%s|%d", f.SinkCategory, f.Sink.FilePath, f.Sink.StartLine)
}

// diffFindings returns every finding present in newer but absent (by key)
// from old — the "new_findings" a refactor's is_safe verdict hinges on.
func diffFindings(old, newer []taint.Finding) []taint.Finding {
	seen := map[string]bool{}
	for _, f := range old {
		seen[findingKey(f)] = true
	}
	var out []taint.Finding
	for _, f := range newer {
		if !seen[findingKey(f)] {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return findingKey(out[i]) < findingKey(out[j]) })
	return out
}

// unifiedDiff renders a textual diff of the two versions for display
// purposes only; none of Simulate's verdicts depend on it.
func unifiedDiff(path string, oldCode, newCode []byte) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(oldCode)),
		B:        difflib.SplitLines(string(newCode)),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}
