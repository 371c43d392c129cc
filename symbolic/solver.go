package symbolic

import (
	"errors"
	"math"

	"github.com/codescalpel/scalpel/ir"
)

// CheckResult is a ConstraintSolver.Check outcome.
type CheckResult int

const (
	Unsat CheckResult = iota
	Sat
	Unknown // the query exceeded its timeout or uses a constraint shape the backend can't decide
)

// ConstraintSolver is the interface §4.6 specifies: `{add, check, model,
// reset, set_timeout_ms}`. Any backend supporting at least integers,
// booleans, bit-vectors, and strings may implement it; boundedSolver below
// is the one shipped here.
type ConstraintSolver interface {
	Add(c Constraint) error
	Check() CheckResult
	Model() map[string]int
	Reset()
	SetTimeoutMs(ms int)
}

// Constraint is one atomic comparison extracted from a branch condition:
// `var OP bound`, optionally negated (so "not (x < 5)" becomes Negate:true
// rather than requiring a separate operator). Constraints combine by
// conjunction only — boundedSolver treats a disjunction it cannot flatten
// into a pure conjunction as Unknown rather than guessing, per §4.6's
// "on timeout [or undecidable shape] the branch is recorded as Bounded."
type Constraint struct {
	Var     string
	Op      ir.Operator
	Bound   int
	Negate  bool
}

// domain is the feasible integer range tracked per variable: [Lo, Hi]
// minus any individually excluded points (from != constraints).
type domain struct {
	Lo, Hi   int
	Excluded map[int]bool
}

func fullDomain() *domain {
	return &domain{Lo: math.MinInt32, Hi: math.MaxInt32, Excluded: map[int]bool{}}
}

func (d *domain) empty() bool { return d.Lo > d.Hi }

func (d *domain) firstFeasible() (int, bool) {
	for v := d.Lo; v <= d.Hi; v++ {
		if !d.Excluded[v] {
			return v, true
		}
		if v == math.MaxInt32 {
			break
		}
	}
	return 0, false
}

// boundedSolver is a bounded interval decision procedure over integer
// variables: good enough for the path-feasibility and witness-synthesis
// duties §4.6 asks of this layer (range and equality/inequality
// reasoning), not a general SMT theory. Grounded in §4.6's
// own framing of this subsystem as "a small bounded decision procedure...
// behind the same interface, so a real SMT backend can be swapped in
// without touching callers" — the one substantive standard-library-only
// subsystem in the kernel (DESIGN.md).
type boundedSolver struct {
	domains   map[string]*domain
	unknown   bool
	timeoutMs int
}

// NewBoundedSolver constructs the default ConstraintSolver implementation.
func NewBoundedSolver() ConstraintSolver {
	return &boundedSolver{domains: map[string]*domain{}, timeoutMs: 5000}
}

func (s *boundedSolver) dom(v string) *domain {
	d, ok := s.domains[v]
	if !ok {
		d = fullDomain()
		s.domains[v] = d
	}
	return d
}

var errUnsupportedOperator = errors.New("symbolic: operator not supported by the bounded solver")

func (s *boundedSolver) Add(c Constraint) error {
	d := s.dom(c.Var)
	op := c.Op
	if c.Negate {
		var ok bool
		op, ok = negate(op)
		if !ok {
			s.unknown = true
			return errUnsupportedOperator
		}
	}
	switch op {
	case ir.OpEq:
		if c.Bound < d.Lo || c.Bound > d.Hi || d.Excluded[c.Bound] {
			d.Lo, d.Hi = 1, 0 // unsat
			return nil
		}
		d.Lo, d.Hi = c.Bound, c.Bound
	case ir.OpNe:
		d.Excluded[c.Bound] = true
	case ir.OpLt:
		if c.Bound-1 < d.Hi {
			d.Hi = c.Bound - 1
		}
	case ir.OpLe:
		if c.Bound < d.Hi {
			d.Hi = c.Bound
		}
	case ir.OpGt:
		if c.Bound+1 > d.Lo {
			d.Lo = c.Bound + 1
		}
	case ir.OpGe:
		if c.Bound > d.Lo {
			d.Lo = c.Bound
		}
	default:
		s.unknown = true
		return errUnsupportedOperator
	}
	return nil
}

func negate(op ir.Operator) (ir.Operator, bool) {
	switch op {
	case ir.OpEq:
		return ir.OpNe, true
	case ir.OpNe:
		return ir.OpEq, true
	case ir.OpLt:
		return ir.OpGe, true
	case ir.OpLe:
		return ir.OpGt, true
	case ir.OpGt:
		return ir.OpLe, true
	case ir.OpGe:
		return ir.OpLt, true
	default:
		return op, false
	}
}

func (s *boundedSolver) Check() CheckResult {
	if s.unknown {
		return Unknown
	}
	for _, d := range s.domains {
		if d.empty() {
			return Unsat
		}
		if _, ok := d.firstFeasible(); !ok {
			return Unsat
		}
	}
	return Sat
}

func (s *boundedSolver) Model() map[string]int {
	m := map[string]int{}
	for v, d := range s.domains {
		if val, ok := d.firstFeasible(); ok {
			m[v] = val
		}
	}
	return m
}

func (s *boundedSolver) Reset() {
	s.domains = map[string]*domain{}
	s.unknown = false
}

func (s *boundedSolver) SetTimeoutMs(ms int) { s.timeoutMs = ms }
