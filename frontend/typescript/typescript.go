// Package typescript lowers TypeScript source into the shared IR. The
// TypeScript grammar is a superset of JavaScript's for every construct
// this spec normalizes (declarations, statements, expressions), so this
// frontend reuses javascript's normalizer wholesale rather than
// duplicating it — type annotations/interfaces fall through to Opaque,
// exactly as they do for JS's occasional non-standard syntax extensions.
package typescript

import (
	tstypescript "github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/codescalpel/scalpel/frontend/javascript"
	"github.com/codescalpel/scalpel/ir"
)

// Frontend implements frontend.Frontend for TypeScript.
type Frontend struct{}

// New returns a TypeScript frontend.
func New() *Frontend { return &Frontend{} }

func (f *Frontend) Language() string { return "typescript" }

func (f *Frontend) Lower(relativePath string, fileBytes []byte) *ir.Module {
	return javascript.LowerWithLanguage(tstypescript.GetLanguage(), "typescript", relativePath, fileBytes)
}
