package ir

import "fmt"

// NewUniversalID builds the stable identifier described in §3:
// "lang:file:line:col:symbol". Re-parsing unchanged bytes must yield an
// identical ID (the Determinism invariant), so this is a pure function of
// its inputs with no timestamps or counters.
//
// symbol may be empty for nodes with no name (e.g. a bare expression
// statement); callers pass a synthetic name in that case (see
// SyntheticSymbol) so two distinct nameless nodes at the same
// line/column never collide in practice (they can't occur at the same
// byte span anyway).
func NewUniversalID(lang, relativePath string, startLine, startCol int, symbol string) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", lang, relativePath, startLine, startCol, symbol)
}

// SyntheticSymbol names an otherwise anonymous node using its Kind, so
// the universal ID stays deterministic and at least somewhat readable.
func SyntheticSymbol(k Kind) string {
	return "<" + k.String() + ">"
}

// Module is the result of lowering one source file: its IR arena plus any
// diagnostics collected along the way. lower() never fails catastrophically
// per §4.1 — a Module is always returned, even for unreadable or malformed
// input (in which case Arena may contain only an empty/Opaque tree and
// Diagnostics explains why).
type Module struct {
	FilePath    string
	Language    string
	Arena       *Arena
	Diagnostics []Diagnostic
}
