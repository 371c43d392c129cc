package pdg

import "github.com/codescalpel/scalpel/ir"

// DataEdge is one `Data(def_site, use_site, var)` edge, per §4.4.
type DataEdge struct {
	DefSite ir.NodeID
	UseSite ir.NodeID
	Var     string
}

type defSet map[string]map[ir.NodeID]bool // var -> set of reaching def sites

func (s defSet) clone() defSet {
	out := make(defSet, len(s))
	for v, sites := range s {
		cp := make(map[ir.NodeID]bool, len(sites))
		for id := range sites {
			cp[id] = true
		}
		out[v] = cp
	}
	return out
}

func (s defSet) union(other defSet) defSet {
	out := s.clone()
	for v, sites := range other {
		if out[v] == nil {
			out[v] = map[ir.NodeID]bool{}
		}
		for id := range sites {
			out[v][id] = true
		}
	}
	return out
}

func (s defSet) kill(v string) {
	delete(s, v)
}

func (s defSet) def(v string, site ir.NodeID) {
	s[v] = map[ir.NodeID]bool{site: true}
}

// ReachingDefs is the result of solving reaching-definitions over a CFG: the
// IN-set of active definitions at the start of each block, and the full list
// of Data edges discovered by matching every use against its reaching defs.
type ReachingDefs struct {
	In    map[BlockID]defSet
	Edges []DataEdge
}

// SolveReachingDefs runs the standard iterative fixed-point reaching-
// definitions dataflow over cfg (IN[b] = union of OUT[pred]; OUT[b] = GEN[b]
// U (IN[b] - KILL[b])), seeding function parameters as definitions reaching
// the entry block, then re-walks each block's statements in order to emit
// a Data edge for every (def, use) pair actually observed — generalizing
// the original engine's flat core.BuildDefUseChains into the CFG-aware analysis
// §4.4 requires.
func SolveReachingDefs(a *ir.Arena, cfg *CFG, params []string) *ReachingDefs {
	in := map[BlockID]defSet{}
	out := map[BlockID]defSet{}
	for _, b := range cfg.Blocks {
		in[b.ID] = defSet{}
		out[b.ID] = defSet{}
	}
	entrySet := defSet{}
	for _, p := range params {
		if p != "" {
			entrySet.def(p, cfg.Func)
		}
	}
	in[cfg.Entry] = entrySet

	changed := true
	for changed {
		changed = false
		for _, b := range cfg.Blocks {
			merged := defSet{}
			if b.ID == cfg.Entry {
				merged = merged.union(entrySet)
			}
			for _, e := range cfg.Pred[b.ID] {
				merged = merged.union(out[e.To])
			}
			if !sameDefSet(merged, in[b.ID]) {
				in[b.ID] = merged
				changed = true
			}
			gen, kills := blockGenKill(a, b)
			next := in[b.ID].clone()
			for _, v := range kills {
				next.kill(v)
			}
			next = next.union(gen)
			if !sameDefSet(next, out[b.ID]) {
				out[b.ID] = next
				changed = true
			}
		}
	}

	var edges []DataEdge
	for _, b := range cfg.Blocks {
		local := in[b.ID].clone()
		for _, stmt := range b.Stmts {
			for _, use := range usesIn(a, stmt) {
				if sites, ok := local[use.name]; ok {
					for site := range sites {
						edges = append(edges, DataEdge{DefSite: site, UseSite: use.node, Var: use.name})
					}
				}
			}
			for _, v := range defsIn(a, stmt) {
				local.def(v, stmt)
			}
		}
	}
	return &ReachingDefs{In: in, Edges: edges}
}

func sameDefSet(a, b defSet) bool {
	if len(a) != len(b) {
		return false
	}
	for v, sites := range a {
		other, ok := b[v]
		if !ok || len(other) != len(sites) {
			return false
		}
		for id := range sites {
			if !other[id] {
				return false
			}
		}
	}
	return true
}

// blockGenKill computes, for one block, the set of variables it (re)defines
// (kill: every prior def of that var stops reaching past this block) and the
// resulting GEN set (the block's own defs, keyed by the statement that wrote
// them).
func blockGenKill(a *ir.Arena, b *Block) (defSet, []string) {
	gen := defSet{}
	var kills []string
	for _, stmt := range b.Stmts {
		for _, v := range defsIn(a, stmt) {
			kills = append(kills, v)
			gen.def(v, stmt)
		}
	}
	return gen, kills
}

type use struct {
	name string
	node ir.NodeID
}

// defsIn returns the variable names stmt defines. Only plain-Name targets
// are tracked (Attribute/Subscript writes are treated as uses of their base
// expression, not redefinitions of a tracked variable) — a documented
// simplification consistent with the Alias/heap-sensitivity Non-goal.
func defsIn(a *ir.Arena, stmt ir.NodeID) []string {
	n := a.Node(stmt)
	switch n.Kind {
	case ir.KindAssign:
		if len(n.Children) > 0 {
			lhs := a.Node(n.Children[0])
			if lhs.Kind == ir.KindName && lhs.Name != "" {
				return []string{lhs.Name}
			}
		}
	case ir.KindVariableDecl:
		if n.Name != "" {
			return []string{n.Name}
		}
	case ir.KindFor:
		if len(n.Children) > 0 {
			target := a.Node(n.Children[0])
			if target.Kind == ir.KindName && target.Name != "" {
				return []string{target.Name}
			}
		}
	}
	return nil
}

// usesIn returns every variable read by stmt, walking its non-definitional
// subtrees (for Assign, only the RHS; for VariableDecl/For, only the
// initializer/iterable) so a definition's own target isn't misread as a use.
func usesIn(a *ir.Arena, stmt ir.NodeID) []use {
	n := a.Node(stmt)
	var roots []ir.NodeID
	switch n.Kind {
	case ir.KindAssign:
		if len(n.Children) > 1 {
			roots = n.Children[1:]
		}
	case ir.KindVariableDecl:
		roots = n.Children
	case ir.KindFor:
		// Children are [target, iter, body...]; only the iterable is a use
		// here, the body statements are walked as their own block entries.
		if len(n.Children) > 1 {
			roots = n.Children[1:2]
		}
	case ir.KindIf, ir.KindWhile:
		if len(n.Children) > 0 {
			roots = n.Children[:1] // condition only; branches are separate statements
		}
	case ir.KindBreak, ir.KindContinue, ir.KindTry:
		return nil
	default:
		roots = n.Children
	}
	var uses []use
	for _, r := range roots {
		collectNames(a, r, &uses)
	}
	return uses
}

func collectNames(a *ir.Arena, id ir.NodeID, out *[]use) {
	if id == ir.InvalidNodeID {
		return
	}
	n := a.Node(id)
	if n.Kind == ir.KindName {
		*out = append(*out, use{name: n.Name, node: id})
	}
	for _, c := range n.Children {
		collectNames(a, c, out)
	}
}
