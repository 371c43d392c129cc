// Package common holds the tree-sitter plumbing shared by every language
// frontend: span conversion, byte-unreadable/parse-failure diagnostics,
// and a small Builder that frontends use to append nodes to an ir.Arena
// while computing Universal Node IDs consistently.
package common

import (
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codescalpel/scalpel/ir"
)

// Span converts a tree-sitter node's position range into an ir.SourceSpan.
// tree-sitter points are 0-indexed rows/columns; ir.SourceSpan
// uses 1-indexed lines and columns, so both are adjusted by one here.
func Span(filePath string, n *sitter.Node) ir.SourceSpan {
	start := n.StartPoint()
	end := n.EndPoint()
	return ir.SourceSpan{
		FilePath:  filePath,
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
		ByteStart: n.StartByte(),
		ByteEnd:   n.EndByte(),
	}
}

// Builder accumulates nodes into an ir.Arena and assigns Universal Node
// IDs as it goes, given the owning language and relative file path.
type Builder struct {
	Arena    *ir.Arena
	Lang     string
	FilePath string
}

// NewBuilder creates a Builder writing into a fresh arena.
func NewBuilder(lang, filePath string) *Builder {
	return &Builder{Arena: ir.NewArena(), Lang: lang, FilePath: filePath}
}

// Add appends n as a child of parent, deriving n's UniversalID from its
// span and symbol (or a synthetic name derived from Kind if symbol is
// empty).
func (b *Builder) Add(n ir.Node, parent ir.NodeID, symbol string) ir.NodeID {
	if symbol == "" {
		symbol = ir.SyntheticSymbol(n.Kind)
	}
	n.UniversalID = ir.NewUniversalID(b.Lang, b.FilePath, n.Span.StartLine, n.Span.StartCol, symbol)
	return b.Arena.Add(n, parent)
}

// Opaque appends a catch-all node preserving originalKind, per §3's
// Opaque node contract. Callers lower the original CST node's children
// *after* calling Opaque, passing the returned ID as their parent — Arena
// nodes are parented at Add time, so there is no separate re-parent step.
func (b *Builder) Opaque(span ir.SourceSpan, originalKind string, parent ir.NodeID) ir.NodeID {
	return b.Add(ir.Node{Kind: ir.KindOpaque, Span: span, OpaqueKind: originalKind}, parent, "")
}

// ParseResult bundles a parsed tree-sitter tree with the source bytes it
// was parsed from, plus the diagnostics collected while reading/parsing.
type ParseResult struct {
	Tree        *sitter.Tree
	Source      []byte
	Diagnostics []ir.Diagnostic
}

// ParseBytes parses bytes the caller already holds (Lower's contract
// takes bytes directly). It wraps sitter.Parser setup/teardown and
// converts a parse failure into a parse_recovery diagnostic instead of
// a Go error, per
// §4.1's "never fails catastrophically" contract.
func ParseBytes(lang *sitter.Language, fileBytes []byte, filePath string) ParseResult {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, fileBytes)
	if err != nil {
		return ParseResult{
			Source: fileBytes,
			Diagnostics: []ir.Diagnostic{{
				Severity: ir.SeverityError,
				Code:     "parse_recovery",
				Message:  fmt.Sprintf("parse failed for %s: %v", filePath, err),
				Span:     ir.SourceSpan{FilePath: filePath},
			}},
		}
	}
	return ParseResult{Tree: tree, Source: fileBytes}
}

// IoDiagnostic builds the "file unreadable" diagnostic used when the
// caller could not even read fileBytes (§4.2's Io failure mode). Kept
// here so every frontend reports unreadable files identically.
func IoDiagnostic(filePath string, err error) ir.Diagnostic {
	return ir.Diagnostic{
		Severity: ir.SeverityError,
		Code:     "io",
		Message:  fmt.Sprintf("cannot read %s: %v", filePath, err),
		Span:     ir.SourceSpan{FilePath: filePath},
	}
}

// EmptyModule returns a Module with an empty arena, used for the Io
// failure mode (§4.2: "file unreadable → Io diagnostic, IR = empty
// module").
func EmptyModule(lang, filePath string, diags []ir.Diagnostic) *ir.Module {
	a := ir.NewArena()
	a.Freeze()
	return &ir.Module{FilePath: filePath, Language: lang, Arena: a, Diagnostics: diags}
}

// ReadFile reads path with os.ReadFile; frontends that read files
// themselves (rather than receiving bytes) can use this helper.
func ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
