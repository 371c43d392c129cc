package frontend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescalpel/scalpel/frontend"
	"github.com/codescalpel/scalpel/frontend/java"
	"github.com/codescalpel/scalpel/frontend/javascript"
	"github.com/codescalpel/scalpel/frontend/python"
	"github.com/codescalpel/scalpel/frontend/typescript"
	"github.com/codescalpel/scalpel/ir"
)

func countKind(a *ir.Arena, root ir.NodeID, k ir.Kind) int {
	n := 0
	ir.Walk(a, root, func(a *ir.Arena, id ir.NodeID) {
		if a.Node(id).Kind == k {
			n++
		}
	})
	return n
}

func TestPythonLowerFunctionAndAssign(t *testing.T) {
	f := python.New()
	mod := f.Lower("sample.py", []byte("def add(a, b):\n    total = a + b\n    return total\n"))
	require.NotNil(t, mod)
	assert.Equal(t, 1, countKind(mod.Arena, mod.Arena.Root(), ir.KindFunctionDef))
	assert.Equal(t, 1, countKind(mod.Arena, mod.Arena.Root(), ir.KindBinaryOp))
	assert.Equal(t, 1, countKind(mod.Arena, mod.Arena.Root(), ir.KindReturn))
}

func TestPythonAugmentedAssignDesugars(t *testing.T) {
	f := python.New()
	mod := f.Lower("sample.py", []byte("x += 1\n"))
	assert.Equal(t, 1, countKind(mod.Arena, mod.Arena.Root(), ir.KindAssign))
	assert.Equal(t, 1, countKind(mod.Arena, mod.Arena.Root(), ir.KindBinaryOp))
}

func TestPythonFStringFormatFragments(t *testing.T) {
	f := python.New()
	mod := f.Lower("sample.py", []byte("greeting = f\"hi {name}\"\n"))
	var found bool
	ir.Walk(mod.Arena, mod.Arena.Root(), func(a *ir.Arena, id ir.NodeID) {
		n := a.Node(id)
		if n.Kind == ir.KindCall && n.CallIntrinsic == "format" {
			found = true
			assert.NotEmpty(t, n.FormatFragments)
		}
	})
	assert.True(t, found, "expected a format-intrinsic call for the f-string")
}

func TestJavaScriptHigherOrderCall(t *testing.T) {
	f := javascript.New()
	mod := f.Lower("sample.js", []byte("const out = items.map(function(x) { return x + 1; });\n"))
	var found bool
	ir.Walk(mod.Arena, mod.Arena.Root(), func(a *ir.Arena, id ir.NodeID) {
		n := a.Node(id)
		if n.Kind == ir.KindCall && n.HigherOrderKind == "map" {
			found = true
		}
	})
	assert.True(t, found)
}

func TestTypeScriptReusesJavaScriptNormalizer(t *testing.T) {
	f := typescript.New()
	mod := f.Lower("sample.ts", []byte("function add(a: number, b: number): number {\n  return a + b;\n}\n"))
	assert.Equal(t, "typescript", mod.Language)
	assert.Equal(t, 1, countKind(mod.Arena, mod.Arena.Root(), ir.KindFunctionDef))
}

func TestJavaEnhancedForPreservesIterable(t *testing.T) {
	f := java.New()
	mod := f.Lower("Sample.java", []byte(
		"class Sample {\n  void run(List<String> items) {\n    for (String item : items) {\n      System.out.println(item);\n    }\n  }\n}\n",
	))
	assert.Equal(t, 1, countKind(mod.Arena, mod.Arena.Root(), ir.KindFor))
}

func TestRegistryDispatchesByExtension(t *testing.T) {
	r := frontend.NewRegistry(python.New(), javascript.New(), typescript.New(), java.New())
	fe, ok := r.Lookup("pkg/mod.py")
	require.True(t, ok)
	assert.Equal(t, "python", fe.Language())

	_, ok = r.Lookup("README.md")
	assert.False(t, ok)
}

func TestUnreadableSyntaxFallsBackToOpaque(t *testing.T) {
	f := python.New()
	mod := f.Lower("weird.py", []byte("match command:\n    case \"go\":\n        pass\n"))
	require.NotNil(t, mod)
	// match/case is not explicitly normalized; it must still produce a
	// total tree via Opaque rather than dropping the construct.
	assert.Greater(t, mod.Arena.Len(), 0)
}
