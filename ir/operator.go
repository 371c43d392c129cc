package ir

// Operator enumerates the fixed set of operators every frontend must
// normalize onto. Frontends never invent new operator values; a binary
// operator token with no corresponding value is lowered as a BinaryOp
// carrying OpUnknown.
type Operator int

const (
	OpUnknown Operator = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpNot
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpIn
	OpIs
)

var operatorNames = map[Operator]string{
	OpUnknown: "Unknown",
	OpAdd:     "Add",
	OpSub:     "Sub",
	OpMul:     "Mul",
	OpDiv:     "Div",
	OpMod:     "Mod",
	OpEq:      "Eq",
	OpNe:      "Ne",
	OpLt:      "Lt",
	OpLe:      "Le",
	OpGt:      "Gt",
	OpGe:      "Ge",
	OpAnd:     "And",
	OpOr:      "Or",
	OpNot:     "Not",
	OpBitAnd:  "BitAnd",
	OpBitOr:   "BitOr",
	OpBitXor:  "BitXor",
	OpShl:     "Shl",
	OpShr:     "Shr",
	OpIn:      "In",
	OpIs:      "Is",
}

// String returns the canonical operator name for this Operator value.
func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "Unknown"
}

// comparisonOperators is consulted by pdg/taint to decide whether an
// operator's result is boolean-shaped.
var comparisonOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true,
	OpIn: true, OpIs: true,
}

// IsComparison reports whether the operator produces a boolean result.
func (o Operator) IsComparison() bool {
	return comparisonOperators[o]
}
