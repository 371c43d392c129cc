package taint

import (
	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/symbols"
)

// DefaultConfidenceDecay is the per-hop exponential decay applied to a
// finding's confidence along an inter-procedural call chain (§4.5: "0.9^
// depth"). This is the constant the walk uses; policy.DefaultConfidenceDecay
// holds the same value, and this package does not read it.
const DefaultConfidenceDecay = 0.9

// Limits bounds the inter-procedural walk, per §4.5: "max_depth (call-chain
// length) and max_modules (distinct modules visited)." A zero value for
// either field means unlimited (Enterprise tier; bounded only by the
// caller's context deadline).
type Limits struct {
	MaxDepth   int
	MaxModules int
}

// CommunityLimits, ProLimits, and EnterpriseLimits are the tier defaults
// named in §4.5.
func CommunityLimits() Limits  { return Limits{MaxDepth: 3, MaxModules: 10} }
func ProLimits() Limits        { return Limits{MaxDepth: 10, MaxModules: 100} }
func EnterpriseLimits() Limits { return Limits{MaxDepth: 0, MaxModules: 0} }

// Result is the inter-procedural walk's output: every Finding discovered
// (already-produced findings are always returned in full, per §4.5:
// "truncation never suppresses real findings") plus a truncation
// annotation when a bound was hit mid-walk.
type Result struct {
	Findings         []Finding
	Truncated        bool
	TruncationReason string // "depth" | "modules" | ""
}

// Engine composes per-function intra-procedural analysis (engine.go) into
// the project-wide, call-graph-bounded walk §4.5 describes. Grounded in
// the original engine's dsl/dataflow_executor.go executeGlobal, which layers
// cross-function path-following on top of the same intra-procedural pass
// used for the local/single-file case — generalized here from a flat
// source/sink pattern match into the full propagation-rule re-analysis a
// seeded FunctionSummary re-run performs.
type Engine struct {
	Project   *symbols.Project
	CallGraph *symbols.CallGraph
	Registry  *Registry
	Limits    Limits
}

// NewEngine builds an Engine over an already-constructed project call
// graph, ready to run AnalyzeProject.
func NewEngine(proj *symbols.Project, cg *symbols.CallGraph, reg *Registry, limits Limits) *Engine {
	return &Engine{Project: proj, CallGraph: cg, Registry: reg, Limits: limits}
}

// AnalyzeProject runs the bounded inter-procedural walk: depth 0 analyzes
// every function standalone; each subsequent depth re-analyzes functions
// whose callees gained new return-taint at the previous depth, seeding
// their call sites with that taint (decayed by DefaultConfidenceDecay per
// hop) and collecting any new sink findings. The walk halts when a full
// pass produces no new return-taint (a fixed point) or when MaxDepth/
// MaxModules is exceeded.
func (e *Engine) AnalyzeProject() *Result {
	type funcCtx struct {
		table *symbols.Table
		fn    ir.NodeID
	}
	funcs := map[string]funcCtx{}
	for id, rec := range e.CallGraph.Functions {
		t, ok := e.Project.Tables[rec.ModulePath]
		if !ok {
			continue
		}
		funcs[id] = funcCtx{table: t, fn: rec.Node}
	}

	seen := map[string]bool{} // functionID -> true, for Finding de-duplication
	var all []Finding
	returnTaint := map[string]*VarTaint{}
	visitedModules := map[string]bool{}
	truncated := false
	truncationReason := ""

	dedupeAppend := func(fs []Finding) {
		for _, f := range fs {
			key := f.Source.String() + "|" + f.Sink.String() + "|" + string(f.SinkCategory)
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, f)
		}
	}

	// Depth 0: every function analyzed standalone.
	for id, fc := range funcs {
		lang := fc.table.Module.Language
		s := AnalyzeFunction(fc.table.Module.Arena, lang, id, fc.fn, e.Registry, nil)
		dedupeAppend(s.Findings)
		if s.ReturnTaint != nil {
			returnTaint[id] = s.ReturnTaint
		}
		visitedModules[fc.table.ModulePath] = true
	}

	maxDepth := e.Limits.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 64 // Enterprise: effectively unbounded, actual ceiling is the caller's context deadline
	}

	for depth := 1; ; depth++ {
		if depth > maxDepth {
			if e.Limits.MaxDepth > 0 {
				truncated = true
				truncationReason = "depth"
			}
			break
		}
		changed := false
		decay := pow(DefaultConfidenceDecay, depth)

		for callerID, calls := range e.CallGraph.CallSites {
			fc, ok := funcs[callerID]
			if !ok {
				continue
			}
			seed := map[ir.NodeID]*VarTaint{}
			for _, call := range calls {
				rt, ok := returnTaint[call.Callee]
				if !ok {
					continue
				}
				callNode := findCallNodeBySpan(fc.table.Module.Arena, call.CallSiteSpan)
				if callNode == ir.InvalidNodeID {
					continue
				}
				seed[callNode] = &VarTaint{
					Level:           rt.Level,
					Sources:         rt.Sources,
					Chain:           rt.Chain,
					ClearedForSinks: rt.clearedCopy(),
				}
			}
			if len(seed) == 0 {
				continue
			}
			if e.Limits.MaxModules > 0 && len(visitedModules) >= e.Limits.MaxModules && !visitedModules[fc.table.ModulePath] {
				truncated = true
				truncationReason = "modules"
				continue
			}
			visitedModules[fc.table.ModulePath] = true

			lang := fc.table.Module.Language
			s := AnalyzeFunction(fc.table.Module.Arena, lang, callerID, fc.fn, e.Registry, seed)
			for i := range s.Findings {
				s.Findings[i].Confidence = decay
			}
			dedupeAppend(s.Findings)
			if s.ReturnTaint != nil {
				prev := returnTaint[callerID]
				if prev == nil || prev.Level != s.ReturnTaint.Level {
					changed = true
				}
				returnTaint[callerID] = s.ReturnTaint
			}
		}
		if !changed {
			break
		}
	}

	return &Result{Findings: all, Truncated: truncated, TruncationReason: truncationReason}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// findCallNodeBySpan re-locates the Call node a call-graph edge refers to
// by scanning the caller's arena for a Call whose span matches — the same
// approach package pdg uses to bridge symbols.Call's span-based edges back
// to a concrete NodeID.
func findCallNodeBySpan(a *ir.Arena, span ir.SourceSpan) ir.NodeID {
	found := ir.InvalidNodeID
	ir.Walk(a, a.Root(), func(a *ir.Arena, id ir.NodeID) {
		if found != ir.InvalidNodeID {
			return
		}
		if n := a.Node(id); n.Kind == ir.KindCall && n.Span == span {
			found = id
		}
	})
	return found
}
