// Package frontend lowers source bytes in one of four supported languages
// into the language-agnostic ir.Module. Each language implements the
// Frontend interface; Registry dispatches by file extension. There is no
// runtime plugin discovery — frontends are registered in a static
// extension table that NewRegistry builds from the frontends it is
// given, avoiding reflection-based dispatch in the core.
package frontend

import (
	"path/filepath"
	"strings"

	"github.com/codescalpel/scalpel/ir"
)

// Frontend lowers one language's source bytes into IR. Implementations
// never fail catastrophically: Lower always returns a Module, using
// Opaque nodes and Diagnostics to represent what couldn't be understood.
type Frontend interface {
	// Language returns the canonical language tag used in Universal Node
	// IDs, e.g. "python", "javascript", "typescript", "java".
	Language() string

	// Lower parses and normalizes fileBytes into an ir.Module. relativePath
	// is used (not the absolute path) so Universal Node IDs stay stable
	// across checkouts at different absolute locations.
	Lower(relativePath string, fileBytes []byte) *ir.Module
}

// Registry maps recognized file extensions to their Frontend, per §6's
// extension table. Unrecognized extensions are not an error in
// project-wide tools — they are simply skipped by callers that consult
// Lookup's ok return value.
type Registry struct {
	byExt map[string]Frontend
}

// NewRegistry builds the registry wiring described in §4.2:
// a static table, not runtime plugin discovery.
func NewRegistry(py, js, ts, java Frontend) *Registry {
	r := &Registry{byExt: map[string]Frontend{}}
	for _, ext := range []string{".py"} {
		r.byExt[ext] = py
	}
	for _, ext := range []string{".js", ".mjs", ".jsx"} {
		r.byExt[ext] = js
	}
	for _, ext := range []string{".ts", ".tsx"} {
		r.byExt[ext] = ts
	}
	for _, ext := range []string{".java"} {
		r.byExt[ext] = java
	}
	return r
}

// Lookup resolves the frontend for filePath by its extension.
func (r *Registry) Lookup(filePath string) (Frontend, bool) {
	ext := strings.ToLower(filepath.Ext(filePath))
	f, ok := r.byExt[ext]
	return f, ok && f != nil
}

// LanguageForExt returns the canonical language tag for an extension, or
// "" if the extension is unrecognized. This mirrors Lookup but doesn't
// require a constructed Frontend, useful for pure classification.
func LanguageForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".py":
		return "python"
	case ".js", ".mjs", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".java":
		return "java"
	default:
		return ""
	}
}
