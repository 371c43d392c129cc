package symbols

import (
	"regexp"

	"github.com/codescalpel/scalpel/ir"
)

// Opaque nodes preserve the original construct kind from each language's
// grammar (§3); import statements fall through every frontend's normalizer
// to Opaque because the fixed IR vocabulary has no dedicated import node.
// These patterns re-derive (local_name, target_name) from the node's
// original source span, the only place that information still lives.
var importOpaqueKinds = map[string]bool{
	"import_statement":        true, // python, javascript
	"import_from_statement":   true, // python
	"import_declaration":      true, // javascript, typescript, java
	"future_import_statement": true, // python
}

var pyImportFrom = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\s+([\w*]+)(?:\s+as\s+(\w+))?`)
var pyImport = regexp.MustCompile(`^\s*import\s+([\w.]+)(?:\s+as\s+(\w+))?`)
var jsImportDefault = regexp.MustCompile(`^\s*import\s+(\w+)\s+from\s+['"]([^'"]+)['"]`)
var jsImportNamed = regexp.MustCompile(`^\s*import\s*\{\s*([\w$]+)(?:\s+as\s+([\w$]+))?[^}]*\}\s*from\s+['"]([^'"]+)['"]`)
var javaImport = regexp.MustCompile(`^\s*import\s+(?:static\s+)?([\w.]+)\s*;`)

// extractImport slices node's byte span out of source and matches it
// against the owning language's import syntax. It returns ok=false for
// any Opaque node that isn't recognized as an import (the overwhelming
// majority — comprehensions, classic for-loops, and every other
// unsupported construct also arrive here as Opaque).
func extractImport(lang string, n ir.Node, source []byte) (Import, bool) {
	if n.Kind != ir.KindOpaque || !importOpaqueKinds[n.OpaqueKind] {
		return Import{}, false
	}
	if int(n.Span.ByteEnd) > len(source) || n.Span.ByteStart >= n.Span.ByteEnd {
		return Import{}, false
	}
	text := string(source[n.Span.ByteStart:n.Span.ByteEnd])

	switch lang {
	case "python":
		if m := pyImportFrom.FindStringSubmatch(text); m != nil {
			local := m[2]
			if m[3] != "" {
				local = m[3]
			}
			target := m[1] + "." + m[2]
			return Import{LocalName: local, TargetName: target, Span: n.Span}, true
		}
		if m := pyImport.FindStringSubmatch(text); m != nil {
			local := m[1]
			if m[2] != "" {
				local = m[2]
			}
			return Import{LocalName: local, TargetName: m[1], Span: n.Span}, true
		}
	case "javascript", "typescript":
		if m := jsImportNamed.FindStringSubmatch(text); m != nil {
			local := m[1]
			if m[2] != "" {
				local = m[2]
			}
			return Import{LocalName: local, TargetName: m[3] + "." + m[1], Span: n.Span}, true
		}
		if m := jsImportDefault.FindStringSubmatch(text); m != nil {
			return Import{LocalName: m[1], TargetName: m[2], Span: n.Span}, true
		}
	case "java":
		if m := javaImport.FindStringSubmatch(text); m != nil {
			fqn := m[1]
			local := fqn
			if idx := lastDot(fqn); idx >= 0 {
				local = fqn[idx+1:]
			}
			return Import{LocalName: local, TargetName: fqn, Span: n.Span}, true
		}
	}
	return Import{}, false
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
