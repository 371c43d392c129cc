// Package refactor implements the refactor simulator described in
// §4.10: given a function/module's original and proposed
// source, it re-parses both to IR, computes a structural diff, enumerates
// every reference a rename would touch (AST-resolved and string-literal),
// re-runs the security scanner on both versions to isolate newly
// introduced findings, and attempts a behavioral-equivalence verdict by
// comparing the symbolic executor's feasible-path sets across versions.
// Grounded in the original engine's `diff` package (changed_files.go/resolve.go/
// validate.go), generalized from "PR diff against git history" to
// "proposed in-memory edit against parsed IR" per §4.10's own framing.
package refactor

import (
	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/taint"
)

// ChangeKind classifies one structural difference between the original
// and proposed declaration sets.
type ChangeKind string

const (
	ChangeRenamed           ChangeKind = "renamed"
	ChangeSignatureChanged  ChangeKind = "signature_changed"
	ChangeAdded             ChangeKind = "added"
	ChangeDeleted           ChangeKind = "deleted"
)

// ChangeRecord is one entry of the simulator's `changes` output.
type ChangeRecord struct {
	Kind         ChangeKind
	Name         string // old name (Renamed, SignatureChanged, Deleted) or the new name (Added)
	NewName      string // only populated for Renamed and SignatureChanged
	OldSignature []string
	NewSignature []string
	Span         ir.SourceSpan
}

// Location is one `references_affected` entry: either an AST-resolved
// symbol reference or a string-literal match inside a known sink
// category (SQL statement, template string, config JSON key), per O2.
type Location struct {
	FilePath string
	Span     ir.SourceSpan
	Context  string // "definition" | "reference" | "unresolved_reference" | "string_literal:<sink_category>"
	Resolved bool
}

// BehavioralEquivalence is the simulator's three-valued verdict, per
// §4.10: "equal sets ⇒ true, provably unequal ⇒ false, solver timeout ⇒
// unknown."
type BehavioralEquivalence string

const (
	EquivalentTrue    BehavioralEquivalence = "true"
	EquivalentFalse   BehavioralEquivalence = "false"
	EquivalentUnknown BehavioralEquivalence = "unknown"
)

// Input is the simulator's request: a single file's original and
// proposed contents. The spec's alternate "(file, patch)" input shape is
// the caller's responsibility to materialize into ProposedCode before
// calling Simulate — applying a unified diff is orthogonal to simulating
// its effect.
type Input struct {
	FilePath     string
	Language     string // not read by Simulate, which picks the frontend from FilePath's extension
	OriginalCode []byte
	ProposedCode []byte
}

// Result is the simulator's `{ is_safe, changes, behavioral_equivalent,
// new_findings, references_affected }` output.
type Result struct {
	IsSafe               bool
	Changes              []ChangeRecord
	BehavioralEquivalent BehavioralEquivalence
	NewFindings          []taint.Finding
	ReferencesAffected   []Location
	UnifiedDiff          string
}
