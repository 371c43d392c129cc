// Package symbolic implements the path-exploring symbolic executor
// described in §4.6: a worklist of States that clones at
// every branch, consults a ConstraintSolver on demand to prune infeasible
// paths and synthesize witnesses, and bounds loops with per-loop fuel and
// calls with a max inter-procedural depth. No example repo in the corpus
// vendors a Go SMT binding, so ConstraintSolver is backed by a bounded
// interval decision procedure (solver.go) rather than a real SMT theory —
// see DESIGN.md for the justification; the interface is the part that
// matters; a CGo z3 binding could replace boundedSolver without touching
// Executor.
package symbolic

import "github.com/codescalpel/scalpel/ir"

// Sort is a SymbolicValue's logical type, per §3's SymbolicValue variants.
type Sort string

const (
	SortInt    Sort = "Int"
	SortBool   Sort = "Bool"
	SortString Sort = "String"
	SortReal   Sort = "Real"
	SortBitVec Sort = "BitVec"
	SortArray  Sort = "Array"
)

// ValueKind tags which of the three SymbolicValue variants a Value holds.
type ValueKind int

const (
	ValueConcrete ValueKind = iota
	ValueSymbolic
	ValueExpr
)

// Value is the tagged union `Concrete(value) | Symbolic(var_name, sort) |
// Expr(op, operands)` from §3.
type Value struct {
	Kind ValueKind

	// Concrete payload. ConcreteSort says which of the three fields below
	// is meaningful, resolving the ambiguity a bare "is it an int" flag
	// would leave between a bool concrete and a string concrete.
	ConcreteSort   Sort
	ConcreteInt    int
	ConcreteBool   bool
	ConcreteString string

	// Symbolic payload.
	VarName string
	VarSort Sort

	// Expr payload.
	Op       ir.Operator
	Operands []*Value
}

// ConcreteIntValue builds a Concrete(int) value.
func ConcreteIntValue(v int) *Value {
	return &Value{Kind: ValueConcrete, ConcreteSort: SortInt, ConcreteInt: v}
}

// ConcreteBoolValue builds a Concrete(bool) value.
func ConcreteBoolValue(v bool) *Value {
	return &Value{Kind: ValueConcrete, ConcreteSort: SortBool, ConcreteBool: v}
}

// ConcreteStringValue builds a Concrete(string) value.
func ConcreteStringValue(v string) *Value {
	return &Value{Kind: ValueConcrete, ConcreteSort: SortString, ConcreteString: v}
}

// SymbolicVar builds a fresh Symbolic(var_name, sort) value — used both
// for a function's formal parameters (unconstrained at entry) and for
// havocked call results beyond max_depth_calls.
func SymbolicVar(name string, sort Sort) *Value {
	return &Value{Kind: ValueSymbolic, VarName: name, VarSort: sort}
}

// ExprValue builds an Expr(op, operands) value.
func ExprValue(op ir.Operator, operands ...*Value) *Value {
	return &Value{Kind: ValueExpr, Op: op, Operands: operands}
}

// Sort reports v's logical sort: the concrete/symbolic tag directly, or
// — for an Expr — the sort of its first operand (comparison and boolean
// operators are themselves Bool-sorted regardless of operand sort, a case
// isComparisonOrBoolean distinguishes).
func (v *Value) Sort() Sort {
	switch v.Kind {
	case ValueConcrete:
		return v.ConcreteSort
	case ValueSymbolic:
		return v.VarSort
	case ValueExpr:
		if isComparisonOrBoolean(v.Op) {
			return SortBool
		}
		if len(v.Operands) > 0 {
			return v.Operands[0].Sort()
		}
		return SortInt
	default:
		return SortInt
	}
}

func isComparisonOrBoolean(op ir.Operator) bool {
	switch op {
	case ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe, ir.OpAnd, ir.OpOr, ir.OpNot, ir.OpIn, ir.OpIs:
		return true
	default:
		return false
	}
}
