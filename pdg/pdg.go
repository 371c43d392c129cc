package pdg

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/symbols"
)

// FunctionPDG is one function's program-dependence graph: its control-flow
// graph plus the Data edges discovered by reaching-definitions analysis,
// per §4.4.
type FunctionPDG struct {
	Func     ir.NodeID
	BodyHash string
	CFG      *CFG
	Reaching *ReachingDefs
}

// BuildFunctionPDG computes the CFG and reaching-definitions for the
// function rooted at fn, whose formal parameter names are params (from its
// symbols.Record / ir.Node.Params).
func BuildFunctionPDG(a *ir.Arena, fn ir.NodeID, params []string, source []byte) *FunctionPDG {
	cfg := BuildCFG(a, fn)
	return &FunctionPDG{
		Func:     fn,
		BodyHash: FunctionBodyHash(a, fn, source),
		CFG:      cfg,
		Reaching: SolveReachingDefs(a, cfg, params),
	}
}

// FunctionBodyHash fingerprints a function by hashing the source bytes its
// span covers (the whole definition, name included), so identical source
// moved within the file hashes the same. BuildFunctionPDG records it in
// FunctionPDG.BodyHash; PDGs are not cached, and every BuildFunctionPDG
// call rebuilds the CFG and reaching definitions.
func FunctionBodyHash(a *ir.Arena, fn ir.NodeID, source []byte) string {
	span := a.Node(fn).Span
	start, end := int(span.ByteStart), int(span.ByteEnd)
	if end > len(source) {
		end = len(source)
	}
	if start < 0 || start > end {
		start, end = 0, 0
	}
	sum := sha256.Sum256(source[start:end])
	return hex.EncodeToString(sum[:])
}

// Endpoint is one side of an interprocedural Data edge. A call/return edge
// can cross module (file) boundaries, so NodeID alone is ambiguous — it
// must be paired with the module path that owns the arena it indexes into.
// Synthetic is set instead of Node for the "arg_i" formal-parameter
// placeholder the IR has no real node for (parameters are plain name
// strings on the FunctionDef, not their own nodes).
type Endpoint struct {
	ModulePath string
	Node       ir.NodeID
	Synthetic  string
}

// InterproceduralEdge is a Data edge that crosses a call boundary: either
// argument-expression-to-formal-parameter, or callee-return-to-call-site.
type InterproceduralEdge struct {
	From Endpoint
	To   Endpoint
	Var  string
}

// BuildInterproceduralEdges walks every resolved call site in cg and, for
// callees whose body is known (direct or virtual resolution — a dynamic
// edge to <external> has no body to link into), emits the two edge shapes
// §4.4 calls for: each argument expression to its callee's synthetic arg_i
// slot, and the callee's own return statements back to the call site.
func BuildInterproceduralEdges(proj *symbols.Project, cg *symbols.CallGraph) []InterproceduralEdge {
	var edges []InterproceduralEdge
	for caller, calls := range cg.CallSites {
		callerTable := tableOwning(proj, caller)
		if callerTable == nil {
			continue
		}
		a := callerTable.Module.Arena
		for _, call := range calls {
			if call.Callee == symbols.ExternalNode || call.ResolutionKind == symbols.ResolutionDynamic {
				continue
			}
			calleeRec, ok := cg.Functions[call.Callee]
			if !ok {
				continue
			}
			calleeTable, ok := proj.Tables[calleeRec.ModulePath]
			if !ok {
				continue
			}
			callNode := findCallNodeBySpan(a, call.CallSiteSpan)
			if callNode == ir.InvalidNodeID {
				continue
			}
			edges = append(edges, argEdges(a, callerTable.ModulePath, callNode, calleeRec)...)
			edges = append(edges, returnEdges(calleeTable, calleeRec, a, callerTable.ModulePath, callNode)...)
		}
	}
	return edges
}

func tableOwning(proj *symbols.Project, qualifiedCaller string) *symbols.Table {
	for path, t := range proj.Tables {
		if len(qualifiedCaller) >= len(path) && qualifiedCaller[:len(path)] == path {
			return t
		}
	}
	return nil
}

// findCallNodeBySpan re-locates the Call node a call-graph edge refers to:
// CallGraph.Call stores the call site's span (not its NodeID, to keep
// symbols decoupled from direct Arena handles across modules), so the
// caller's arena is scanned once for a Call node whose span matches.
func findCallNodeBySpan(a *ir.Arena, span ir.SourceSpan) ir.NodeID {
	found := ir.InvalidNodeID
	ir.Walk(a, a.Root(), func(a *ir.Arena, id ir.NodeID) {
		if found != ir.InvalidNodeID {
			return
		}
		n := a.Node(id)
		if n.Kind == ir.KindCall && n.Span == span {
			found = id
		}
	})
	return found
}

func argEdges(a *ir.Arena, callerModule string, callNode ir.NodeID, callee *symbols.Record) []InterproceduralEdge {
	n := a.Node(callNode)
	if len(n.Children) < 2 {
		return nil
	}
	var edges []InterproceduralEdge
	for i, argID := range n.Children[1:] {
		edges = append(edges, InterproceduralEdge{
			From: Endpoint{ModulePath: callerModule, Node: argID},
			To:   Endpoint{ModulePath: callee.ModulePath, Synthetic: syntheticArgName(callee.ID, i)},
		})
	}
	return edges
}

func returnEdges(calleeTable *symbols.Table, callee *symbols.Record, callerArena *ir.Arena, callerModule string, callNode ir.NodeID) []InterproceduralEdge {
	a := calleeTable.Module.Arena
	if a == nil || a.Len() == 0 {
		return nil
	}
	var edges []InterproceduralEdge
	ir.Walk(a, callee.Node, func(a *ir.Arena, id ir.NodeID) {
		if a.Node(id).Kind != ir.KindReturn {
			return
		}
		edges = append(edges, InterproceduralEdge{
			From: Endpoint{ModulePath: callee.ModulePath, Node: id},
			To:   Endpoint{ModulePath: callerModule, Node: callNode},
		})
	})
	return edges
}

func syntheticArgName(calleeID string, index int) string {
	return calleeID + ":arg_" + strconv.Itoa(index)
}
