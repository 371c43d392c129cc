package symbolic

import (
	"fmt"
	"strconv"

	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/pdg"
)

// PathStatus classifies one explored path per §4.6: a path is Feasible
// once its accumulated PathCondition checks Sat, Infeasible once it
// checks Unsat (and is dropped before being returned), Bounded when the
// solver returned Unknown or a loop ran out of fuel before a decision
// could be made, and Errored for a path that hit an unrecoverable
// condition while evaluating (reserved for future use; the evaluator
// below never produces it).
type PathStatus string

const (
	Feasible   PathStatus = "feasible"
	Infeasible PathStatus = "infeasible"
	Bounded    PathStatus = "bounded"
	Errored    PathStatus = "error"
)

// Annotation records a non-fatal event along a path — a loop that ran out
// of fuel, a branch condition shaped such that it couldn't be flattened
// into a pure conjunction, a solver timeout — so callers can tell a
// trustworthy Feasible path from one that was pruned conservatively.
type Annotation struct {
	Block  pdg.BlockID
	Reason string
}

// Path is one completed symbolic execution: the accumulated branch
// constraints, the final scalar store, and — for Feasible and Bounded
// paths — a concrete Witness the solver produced for the path's free
// variables.
type Path struct {
	PathCondition []Constraint
	Store         map[string]*Value
	Status        PathStatus
	Witness       map[string]int
	ReturnValue   *Value
	Annotations   []Annotation
}

// TestCase is a generated regression test derived from one explored
// path: concrete Inputs that drive execution down it and, when the
// return value resolved to a concrete int, the ExpectedOutput. Uncertain
// is set for paths synthesized from a Bounded status — loop-fuel
// exhaustion or an undecidable branch shape — so a caller can choose to
// skip asserting on them rather than bake in a guess.
type TestCase struct {
	Inputs         map[string]int
	ExpectedOutput map[string]int
	Uncertain      bool
}

// Options bounds exploration per §4.6's three knobs: a global cap on the
// number of completed paths, a cap on inter-procedural calls summarized
// along a single path, and the loop fuel available to every loop header
// before it's cut off and marked Bounded.
type Options struct {
	MaxTotalPaths int
	MaxDepthCalls int
	DefaultFuel   int
}

// DefaultOptions returns §4.6's stated defaults: 100 total paths, a depth
// of 5 summarized calls, and 10 units of fuel per loop.
func DefaultOptions() Options {
	return Options{MaxTotalPaths: 100, MaxDepthCalls: 5, DefaultFuel: 10}
}

func (o Options) normalized() Options {
	if o.MaxTotalPaths <= 0 {
		o.MaxTotalPaths = 100
	}
	if o.MaxDepthCalls <= 0 {
		o.MaxDepthCalls = 5
	}
	if o.DefaultFuel <= 0 {
		o.DefaultFuel = 10
	}
	return o
}

// state is one in-flight worklist entry: the block execution is
// currently at, the scalar store, the path condition accumulated so far,
// per-loop-header fuel remaining, and how many calls have been
// summarized along this path.
type state struct {
	block         pdg.BlockID
	store         map[string]*Value
	pathCondition []Constraint
	loopFuel      map[pdg.BlockID]int
	callDepth     int
	annotations   []Annotation
}

func (s *state) clone() *state {
	store := make(map[string]*Value, len(s.store))
	for k, v := range s.store {
		store[k] = v
	}
	fuel := make(map[pdg.BlockID]int, len(s.loopFuel))
	for k, v := range s.loopFuel {
		fuel[k] = v
	}
	pc := make([]Constraint, len(s.pathCondition))
	copy(pc, s.pathCondition)
	ann := make([]Annotation, len(s.annotations))
	copy(ann, s.annotations)
	return &state{block: s.block, store: store, pathCondition: pc, loopFuel: fuel, callDepth: s.callDepth, annotations: ann}
}

// Executor explores every path through one function's CFG, per §4.6. It
// never inlines a callee: per Open Question O3, a call is summarized once
// per callee name (a fresh Symbolic value, cached and reused at every
// call site) rather than descended into, so Executor's scope is always a
// single function.
type Executor struct {
	Arena     *ir.Arena
	CFG       *pdg.CFG
	Opts      Options
	NewSolver func() ConstraintSolver

	callSummaries map[string]*Value
}

// NewExecutor builds an Executor for cfg. opts is normalized against
// DefaultOptions for any zero field.
func NewExecutor(a *ir.Arena, cfg *pdg.CFG, opts Options) *Executor {
	return &Executor{Arena: a, CFG: cfg, Opts: opts.normalized(), callSummaries: map[string]*Value{}}
}

func (e *Executor) newSolver() ConstraintSolver {
	if e.NewSolver != nil {
		return e.NewSolver()
	}
	return NewBoundedSolver()
}

// Explore runs the worklist to completion: every function parameter
// starts as an unconstrained Symbolic(name, Int), and exploration stops
// once the worklist drains or MaxTotalPaths completed paths have
// accumulated (remaining worklist entries are silently dropped at that
// point — the same budget-exhaustion posture §4.6 takes for a solver
// timeout). It returns every completed Feasible and Bounded path
// (Infeasible ones are dropped) plus a TestCase synthesized from each.
func (e *Executor) Explore() ([]Path, []TestCase) {
	fn := e.Arena.Node(e.CFG.Func)
	init := &state{block: e.CFG.Entry, store: map[string]*Value{}, loopFuel: map[pdg.BlockID]int{}}
	for _, p := range fn.Params {
		init.store[p] = SymbolicVar(p, SortInt)
	}

	var paths []Path
	worklist := []*state{init}
	for len(worklist) > 0 && len(paths) < e.Opts.MaxTotalPaths {
		cur := worklist[0]
		worklist = worklist[1:]
		worklist = append(worklist, e.step(cur, &paths)...)
	}

	var kept []Path
	for _, p := range paths {
		if p.Status != Infeasible {
			kept = append(kept, p)
		}
	}
	return kept, e.synthesizeTestCases(kept)
}

// step runs block's straight-line statements against s, then forks at
// the block's outgoing edges (if any), appending every completed path to
// *paths and returning the successor states still to explore.
func (e *Executor) step(s *state, paths *[]Path) []*state {
	block := e.CFG.Blocks[s.block]
	var cond ir.NodeID = ir.InvalidNodeID

	for _, stmtID := range block.Stmts {
		n := e.Arena.Node(stmtID)
		switch n.Kind {
		case ir.KindAssign:
			e.execAssign(s, n)
		case ir.KindReturn:
			var rv *Value
			if len(n.Children) > 0 {
				rv = e.eval(s, n.Children[0])
			}
			*paths = append(*paths, e.finalizePath(s, rv, Feasible))
			return nil
		case ir.KindRaise:
			p := e.finalizePath(s, nil, Feasible)
			p.Annotations = append(p.Annotations, Annotation{Block: s.block, Reason: "path raises"})
			*paths = append(*paths, p)
			return nil
		case ir.KindBreak, ir.KindContinue, ir.KindPass:
			// no-op: the CFG's own edges already encode the control transfer.
		case ir.KindIf, ir.KindWhile:
			if len(n.Children) > 0 {
				cond = n.Children[0]
			}
		case ir.KindFor:
			// A For's "more items?" test isn't a boolean expression this
			// engine can turn into a linear constraint; both successors are
			// explored unconstrained (cond left InvalidNodeID).
		default:
			e.eval(s, stmtID)
		}
	}
	return e.branch(s, cond, paths)
}

// branch forks s across the block's outgoing CFG edges. cond is the
// branch condition extracted by step (InvalidNodeID if the block's
// header wasn't a condition-bearing construct, or had none to offer).
func (e *Executor) branch(s *state, cond ir.NodeID, paths *[]Path) []*state {
	edges := e.CFG.Succ[s.block]
	if len(edges) == 0 {
		*paths = append(*paths, e.finalizePath(s, nil, Feasible))
		return nil
	}

	var result []*state
	for _, edge := range edges {
		next := s.clone()
		switch edge.Kind {
		case pdg.EdgeTrue:
			result = append(result, e.takeBranch(next, cond, false, edge.To, paths)...)
		case pdg.EdgeFalse:
			result = append(result, e.takeBranch(next, cond, true, edge.To, paths)...)
		case pdg.EdgeLoopBack:
			if !e.consumeFuel(next, edge.To) {
				p := e.finalizePath(next, nil, Bounded)
				p.Annotations = append(p.Annotations, Annotation{Block: s.block, Reason: "loop fuel exhausted before a decision was reached"})
				*paths = append(*paths, p)
				continue
			}
			next.block = edge.To
			result = append(result, next)
		default: // EdgeFallthrough, EdgeException
			next.block = edge.To
			result = append(result, next)
		}
	}
	return result
}

// takeBranch extends next's path condition with cond (negated when
// negate is true, for the false/else arm) and prunes it if the solver
// finds the extended condition Unsat. A condition shape the bounded
// solver can't flatten into a pure conjunction (a disjunction surfacing
// from De Morgan'd negation of an And, chiefly) is explored unpruned but
// annotated, rather than mis-pruning a branch that might be feasible.
func (e *Executor) takeBranch(next *state, cond ir.NodeID, negate bool, to pdg.BlockID, paths *[]Path) []*state {
	if cond == ir.InvalidNodeID {
		next.block = to
		return []*state{next}
	}
	constraints, ok := e.extractConstraints(next, cond, negate)
	if !ok {
		next.annotations = append(next.annotations, Annotation{Block: next.block, Reason: "branch condition not representable as a linear constraint; explored without pruning"})
		next.block = to
		return []*state{next}
	}

	trial := append(append([]Constraint{}, next.pathCondition...), constraints...)
	solver := e.newSolver()
	unknown := false
	for _, c := range trial {
		if err := solver.Add(c); err != nil {
			unknown = true
		}
	}
	switch {
	case unknown:
		next.pathCondition = trial
		next.annotations = append(next.annotations, Annotation{Block: next.block, Reason: "solver rejected a constraint shape on this branch"})
		next.block = to
		return []*state{next}
	default:
	}
	switch solver.Check() {
	case Unsat:
		return nil
	case Unknown:
		next.pathCondition = trial
		next.annotations = append(next.annotations, Annotation{Block: next.block, Reason: "solver returned unknown for this branch"})
		next.block = to
		return []*state{next}
	default:
		next.pathCondition = trial
		next.block = to
		return []*state{next}
	}
}

func (e *Executor) consumeFuel(s *state, header pdg.BlockID) bool {
	fuel, ok := s.loopFuel[header]
	if !ok {
		fuel = e.Opts.DefaultFuel
	}
	if fuel <= 0 {
		return false
	}
	s.loopFuel[header] = fuel - 1
	return true
}

// extractConstraints flattens exprID into one or more Constraints,
// returning false if any conjunct isn't a simple `var OP literal`
// comparison the bounded solver understands. Negating a conjunction of
// two or more terms would require a disjunction (De Morgan), which the
// conjunction-only solver can't represent, so that case returns false
// rather than guessing.
func (e *Executor) extractConstraints(s *state, exprID ir.NodeID, negate bool) ([]Constraint, bool) {
	n := e.Arena.Node(exprID)
	if n.Kind == ir.KindBinaryOp && n.Operator == ir.OpAnd && len(n.Children) == 2 {
		if negate {
			return nil, false
		}
		left, lok := e.extractConstraints(s, n.Children[0], false)
		right, rok := e.extractConstraints(s, n.Children[1], false)
		if !lok || !rok {
			return nil, false
		}
		return append(left, right...), true
	}
	if n.Kind == ir.KindUnaryOp && n.Operator == ir.OpNot && len(n.Children) == 1 {
		return e.extractConstraints(s, n.Children[0], !negate)
	}
	c, ok := e.extractSingle(s, n, negate)
	if !ok {
		return nil, false
	}
	return []Constraint{c}, true
}

func (e *Executor) extractSingle(s *state, n ir.Node, negate bool) (Constraint, bool) {
	if n.Kind != ir.KindBinaryOp || !n.Operator.IsComparison() || len(n.Children) != 2 {
		return Constraint{}, false
	}
	left := e.eval(s, n.Children[0])
	right := e.eval(s, n.Children[1])
	if v, bound, ok := asVarAndLiteral(left, right); ok {
		return Constraint{Var: v, Op: n.Operator, Bound: bound, Negate: negate}, true
	}
	if v, bound, ok := asVarAndLiteral(right, left); ok {
		op, ok2 := flipOperand(n.Operator)
		if !ok2 {
			return Constraint{}, false
		}
		return Constraint{Var: v, Op: op, Bound: bound, Negate: negate}, true
	}
	return Constraint{}, false
}

func asVarAndLiteral(a, b *Value) (string, int, bool) {
	if a.Kind == ValueSymbolic && a.VarSort == SortInt && b.Kind == ValueConcrete && b.ConcreteSort == SortInt {
		return a.VarName, b.ConcreteInt, true
	}
	return "", 0, false
}

// flipOperand reorients a comparison operator when the variable appears
// on the right of the original expression (`5 < x` becomes `x > 5`).
func flipOperand(op ir.Operator) (ir.Operator, bool) {
	switch op {
	case ir.OpEq, ir.OpNe:
		return op, true
	case ir.OpLt:
		return ir.OpGt, true
	case ir.OpLe:
		return ir.OpGe, true
	case ir.OpGt:
		return ir.OpLt, true
	case ir.OpGe:
		return ir.OpLe, true
	default:
		return op, false
	}
}

func (e *Executor) execAssign(s *state, n ir.Node) {
	if len(n.Children) < 1 {
		return
	}
	target := e.Arena.Node(n.Children[0])
	var val *Value
	if len(n.Children) > 1 {
		val = e.eval(s, n.Children[1])
	} else {
		val = SymbolicVar("undefined", SortInt)
	}
	if target.Kind == ir.KindName {
		s.store[target.Name] = val
	}
	// Attribute/Subscript assignment targets mutate state this scalar
	// store doesn't model; the value is still evaluated above for its
	// side effects (call summarization, store reads).
}

// eval walks an expression to a Value, constant-folding where every
// operand is Concrete and falling back to an Expr node (or a fresh
// Symbolic placeholder for constructs this evaluator doesn't model, e.g.
// subscripts) otherwise.
func (e *Executor) eval(s *state, id ir.NodeID) *Value {
	if id == ir.InvalidNodeID {
		return SymbolicVar("_", SortInt)
	}
	n := e.Arena.Node(id)
	switch n.Kind {
	case ir.KindLiteral:
		return literalValue(n)
	case ir.KindName:
		if v, ok := s.store[n.Name]; ok {
			return v
		}
		v := SymbolicVar(n.Name, SortInt)
		s.store[n.Name] = v
		return v
	case ir.KindBinaryOp:
		if len(n.Children) != 2 {
			return SymbolicVar(fmt.Sprintf("expr@%d", id), SortInt)
		}
		left := e.eval(s, n.Children[0])
		right := e.eval(s, n.Children[1])
		return foldBinary(n.Operator, left, right)
	case ir.KindUnaryOp:
		if len(n.Children) != 1 {
			return SymbolicVar(fmt.Sprintf("expr@%d", id), SortInt)
		}
		return foldUnary(n.Operator, e.eval(s, n.Children[0]))
	case ir.KindCall:
		return e.evalCall(s, n)
	default:
		for _, c := range n.Children {
			e.eval(s, c)
		}
		return SymbolicVar(fmt.Sprintf("expr@%d", id), SortInt)
	}
}

// evalCall resolves a call's arguments (for their side effects) and then
// returns the callee's memoized summary per O3 — a single fresh Symbolic
// value per distinct callee name, shared across every call site, rather
// than an attempt to inline the callee's body.
func (e *Executor) evalCall(s *state, n ir.Node) *Value {
	if len(n.Children) > 1 {
		for _, arg := range n.Children[1:] {
			e.eval(s, arg)
		}
	}
	s.callDepth++
	if s.callDepth > e.Opts.MaxDepthCalls {
		return SymbolicVar("call_overflow", SortInt)
	}
	name := calleeName(e.Arena, n.Children)
	if v, ok := e.callSummaries[name]; ok {
		return v
	}
	v := SymbolicVar("call:"+name, SortInt)
	e.callSummaries[name] = v
	return v
}

func calleeName(a *ir.Arena, children []ir.NodeID) string {
	if len(children) == 0 {
		return "<anonymous>"
	}
	n := a.Node(children[0])
	switch n.Kind {
	case ir.KindName, ir.KindAttribute:
		return n.Name
	default:
		return "<anonymous>"
	}
}

func literalValue(n ir.Node) *Value {
	switch n.LiteralKind {
	case "int":
		if v, err := strconv.Atoi(n.LiteralValue); err == nil {
			return ConcreteIntValue(v)
		}
		return ConcreteIntValue(0)
	case "float":
		if f, err := strconv.ParseFloat(n.LiteralValue, 64); err == nil {
			return ConcreteIntValue(int(f))
		}
		return ConcreteIntValue(0)
	case "bool":
		return ConcreteBoolValue(n.LiteralValue == "True" || n.LiteralValue == "true")
	case "string":
		return ConcreteStringValue(n.LiteralValue)
	default: // "null"
		return ConcreteIntValue(0)
	}
}

func foldBinary(op ir.Operator, left, right *Value) *Value {
	if left.Kind == ValueConcrete && right.Kind == ValueConcrete && left.ConcreteSort == SortInt && right.ConcreteSort == SortInt {
		a, b := left.ConcreteInt, right.ConcreteInt
		switch op {
		case ir.OpAdd:
			return ConcreteIntValue(a + b)
		case ir.OpSub:
			return ConcreteIntValue(a - b)
		case ir.OpMul:
			return ConcreteIntValue(a * b)
		case ir.OpDiv:
			if b != 0 {
				return ConcreteIntValue(a / b)
			}
		case ir.OpMod:
			if b != 0 {
				return ConcreteIntValue(a % b)
			}
		case ir.OpEq:
			return ConcreteBoolValue(a == b)
		case ir.OpNe:
			return ConcreteBoolValue(a != b)
		case ir.OpLt:
			return ConcreteBoolValue(a < b)
		case ir.OpLe:
			return ConcreteBoolValue(a <= b)
		case ir.OpGt:
			return ConcreteBoolValue(a > b)
		case ir.OpGe:
			return ConcreteBoolValue(a >= b)
		}
	}
	return ExprValue(op, left, right)
}

func foldUnary(op ir.Operator, operand *Value) *Value {
	if operand.Kind == ValueConcrete {
		switch {
		case op == ir.OpNot && operand.ConcreteSort == SortBool:
			return ConcreteBoolValue(!operand.ConcreteBool)
		case op == ir.OpSub && operand.ConcreteSort == SortInt:
			return ConcreteIntValue(-operand.ConcreteInt)
		}
	}
	return ExprValue(op, operand)
}

// finalizePath closes out s into a Path: Feasible paths are re-checked
// against a fresh solver instance (rather than trusting the incremental
// per-branch check) so a Path returned to callers always carries a
// Witness consistent with its own PathCondition.
func (e *Executor) finalizePath(s *state, ret *Value, status PathStatus) Path {
	p := Path{
		PathCondition: append([]Constraint{}, s.pathCondition...),
		Store:         s.store,
		Status:        status,
		ReturnValue:   ret,
		Annotations:   append([]Annotation{}, s.annotations...),
	}
	if p.Status != Feasible {
		return p
	}
	solver := e.newSolver()
	for _, c := range p.PathCondition {
		if err := solver.Add(c); err != nil {
			p.Status = Bounded
			return p
		}
	}
	switch solver.Check() {
	case Unsat:
		p.Status = Infeasible
	case Unknown:
		p.Status = Bounded
	default:
		p.Witness = solver.Model()
	}
	return p
}

func (e *Executor) synthesizeTestCases(paths []Path) []TestCase {
	var tests []TestCase
	for _, p := range paths {
		if p.Status != Feasible && p.Status != Bounded {
			continue
		}
		tests = append(tests, TestCase{
			Inputs:         p.Witness,
			ExpectedOutput: returnAsInts(p.ReturnValue),
			Uncertain:      p.Status == Bounded,
		})
	}
	return tests
}

func returnAsInts(v *Value) map[string]int {
	if v == nil || v.Kind != ValueConcrete || v.ConcreteSort != SortInt {
		return nil
	}
	return map[string]int{"return": v.ConcreteInt}
}
