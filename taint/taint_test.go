package taint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescalpel/scalpel/frontend/python"
	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/symbols"
	"github.com/codescalpel/scalpel/taint"
)

func findFunctionDef(a *ir.Arena, root ir.NodeID) ir.NodeID {
	found := ir.InvalidNodeID
	ir.Walk(a, root, func(a *ir.Arena, id ir.NodeID) {
		if found == ir.InvalidNodeID && a.Node(id).Kind == ir.KindFunctionDef {
			found = id
		}
	})
	return found
}

func TestSqlSinkFindsDirectTaintFlow(t *testing.T) {
	src := []byte("def handler(request):\n    q = request.args.get(\"id\")\n    cursor.execute(q)\n")
	mod := python.New().Lower("a.py", src)
	fn := findFunctionDef(mod.Arena, mod.Arena.Root())
	require.NotEqual(t, ir.InvalidNodeID, fn)

	reg := taint.DefaultRegistry()
	summary := taint.AnalyzeFunction(mod.Arena, "python", "a.handler", fn, reg, nil)
	require.Len(t, summary.Findings, 1)
	assert.Equal(t, taint.CategorySql, summary.Findings[0].SinkCategory)
	assert.Equal(t, "CWE-89", summary.Findings[0].CWE)
}

func TestSanitizerClearsCategoryButKeepsChain(t *testing.T) {
	src := []byte("def handler(request):\n    q = request.args.get(\"id\")\n    safe = int(q)\n    cursor.execute(safe)\n")
	mod := python.New().Lower("a.py", src)
	fn := findFunctionDef(mod.Arena, mod.Arena.Root())
	reg := taint.DefaultRegistry()
	summary := taint.AnalyzeFunction(mod.Arena, "python", "a.handler", fn, reg, nil)
	assert.Empty(t, summary.Findings, "int() clears Sql per the sanitizer registry")
}

func TestFakeSanitizerStillFindsFlow(t *testing.T) {
	// A user-defined "sanitize" that isn't in the registry must not clear
	// taint — the "fake sanitizer" scenario from the worked example.
	src := []byte(
		"def sanitize(x):\n    return x\n\ndef handler(request):\n    q = request.args.get(\"q\")\n    out = sanitize(q)\n    cursor.execute(out)\n",
	)
	mod := python.New().Lower("a.py", src)
	var handlerFn ir.NodeID
	ir.Walk(mod.Arena, mod.Arena.Root(), func(a *ir.Arena, id ir.NodeID) {
		n := a.Node(id)
		if n.Kind == ir.KindFunctionDef && n.Name == "handler" {
			handlerFn = id
		}
	})
	require.NotEqual(t, ir.InvalidNodeID, handlerFn)

	reg := taint.DefaultRegistry()
	summary := taint.AnalyzeFunction(mod.Arena, "python", "a.handler", handlerFn, reg, nil)
	require.Len(t, summary.Findings, 1, "sanitize() is not a registry sanitizer, so taint must still reach the sink")
	assert.GreaterOrEqual(t, len(summary.Findings[0].Chain), 2)
}

func TestInterproceduralEngineLinksSourceAcrossFunctionBoundary(t *testing.T) {
	src := []byte(
		"def get_input(request):\n    return request.args.get(\"q\")\n\ndef handler(request):\n    q = get_input(request)\n    cursor.execute(q)\n",
	)
	mod := python.New().Lower("a.py", src)
	table := symbols.Build("a", mod, src)
	proj := symbols.NewProject()
	proj.AddModule(table)
	cg := proj.BuildCallGraph()

	eng := taint.NewEngine(proj, cg, taint.DefaultRegistry(), taint.CommunityLimits())
	result := eng.AnalyzeProject()
	require.NotEmpty(t, result.Findings, "taint introduced in get_input must reach the sink in handler")
	assert.False(t, result.Truncated)
}
