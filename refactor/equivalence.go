package refactor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/pdg"
	"github.com/codescalpel/scalpel/symbolic"
)

// formatValue renders a symbolic.Value into a string stable across two
// otherwise-identical executions, so two paths' return values can be
// compared for equality without exposing *Value pointer identity.
func formatValue(v *symbolic.Value) string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case symbolic.ValueConcrete:
		switch v.ConcreteSort {
		case symbolic.SortInt:
			return fmt.Sprintf("int:%d", v.ConcreteInt)
		case symbolic.SortBool:
			return fmt.Sprintf("bool:%t", v.ConcreteBool)
		case symbolic.SortString:
			return fmt.Sprintf("string:%q", v.ConcreteString)
		default:
			return fmt.Sprintf("concrete:%v", v.ConcreteSort)
		}
	case symbolic.ValueSymbolic:
		return "sym:" + v.VarName
	case symbolic.ValueExpr:
		parts := make([]string, len(v.Operands))
		for i, o := range v.Operands {
			parts[i] = formatValue(o)
		}
		return fmt.Sprintf("%s(%s)", v.Op, strings.Join(parts, ","))
	default:
		return "?"
	}
}

// canonicalPath renders a Path's constraint set into a single sorted,
// order-independent string so two paths reached via different
// exploration orders but expressing the same condition compare equal.
func canonicalPath(p symbolic.Path) string {
	terms := make([]string, len(p.PathCondition))
	for i, c := range p.PathCondition {
		terms[i] = fmt.Sprintf("%s %s %d neg=%t", c.Var, c.Op, c.Bound, c.Negate)
	}
	sort.Strings(terms)
	return strings.Join(terms, " && ") + " => " + formatValue(p.ReturnValue)
}

type pathSet map[string]bool

func feasiblePathSet(paths []symbolic.Path) (set pathSet, anyBounded bool) {
	set = pathSet{}
	for _, p := range paths {
		switch p.Status {
		case symbolic.Feasible:
			set[canonicalPath(p)] = true
		case symbolic.Bounded:
			anyBounded = true
		}
	}
	return set, anyBounded
}

func sameSet(a, b pathSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// functionPair is one (old, new) function matched via diffDecls' renames
// map (or identity, for a function whose name didn't change).
type functionPair struct {
	oldNode ir.NodeID
	newNode ir.NodeID
}

func matchFunctionPairs(oldDecls, newDecls []decl, renames map[string]string) []functionPair {
	newByName := declIndex(newDecls, ir.KindFunctionDef)
	var pairs []functionPair
	for _, d := range oldDecls {
		if d.Kind != ir.KindFunctionDef {
			continue
		}
		target := d.Name
		if mapped, ok := renames[d.Name]; ok {
			target = mapped
		}
		if newNode, ok := newByName[target]; ok {
			pairs = append(pairs, functionPair{oldNode: d.Node, newNode: newNode})
		}
	}
	return pairs
}

// compareBehavior runs the symbolic executor over every matched function
// pair and folds the per-pair verdicts into one BehavioralEquivalence, per
// §4.10: "attempt behavioral equivalence by... comparing the set of
// feasible path conditions and return formulas." A single pair with a
// provably different path set makes the whole refactor `false`; a pair
// where either side hit a fuel/solver bound downgrades an otherwise-equal
// verdict to `unknown` rather than a false `true`. No matched function
// pairs (a pure rename with no behavior-bearing body, or nothing left
// after the diff) defaults to `true`: there is nothing to disprove.
func compareBehavior(oldArena, newArena *ir.Arena, oldDecls, newDecls []decl, renames map[string]string, opts symbolic.Options) BehavioralEquivalence {
	pairs := matchFunctionPairs(oldDecls, newDecls, renames)
	if len(pairs) == 0 {
		return EquivalentTrue
	}

	result := EquivalentTrue
	for _, pair := range pairs {
		oldCFG := pdg.BuildCFG(oldArena, pair.oldNode)
		newCFG := pdg.BuildCFG(newArena, pair.newNode)
		oldPaths, _ := symbolic.NewExecutor(oldArena, oldCFG, opts).Explore()
		newPaths, _ := symbolic.NewExecutor(newArena, newCFG, opts).Explore()

		oldSet, oldBounded := feasiblePathSet(oldPaths)
		newSet, newBounded := feasiblePathSet(newPaths)

		switch {
		case !sameSet(oldSet, newSet):
			return EquivalentFalse
		case oldBounded || newBounded:
			result = EquivalentUnknown
		}
	}
	return result
}
