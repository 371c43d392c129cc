package symbols_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescalpel/scalpel/frontend/python"
	"github.com/codescalpel/scalpel/symbols"
)

func TestBuildIndexesFunctionsAndResolvesLocalCall(t *testing.T) {
	src := []byte("def sanitize(x):\n    return x\n\ndef handle():\n    return sanitize(1)\n")
	f := python.New()
	mod := f.Lower("a.py", src)
	table := symbols.Build("a", mod, src)

	require.Contains(t, table.Records, "a.sanitize")
	require.Contains(t, table.Records, "a.handle")
	assert.Equal(t, symbols.KindFunction, table.Records["a.sanitize"].Kind)

	var sawResolvedCall bool
	for _, ref := range table.References {
		if ref.Name == "sanitize" && ref.Resolved && ref.Target == table.Records["a.sanitize"] {
			sawResolvedCall = true
		}
	}
	assert.True(t, sawResolvedCall, "the call to sanitize inside handle must resolve to its local definition")
}

func TestDirectCallResolution(t *testing.T) {
	src := []byte("def sanitize(x):\n    return x\n\ndef handle():\n    return sanitize(1)\n")
	f := python.New()
	mod := f.Lower("a.py", src)
	table := symbols.Build("a", mod, src)

	proj := symbols.NewProject()
	proj.AddModule(table)
	cg := proj.BuildCallGraph()

	callees := cg.GetCallees("a.handle")
	require.Contains(t, callees, "a.sanitize")
	sites := cg.CallSites["a.handle"]
	require.Len(t, sites, 1)
	assert.Equal(t, symbols.ResolutionDirect, sites[0].ResolutionKind)
	assert.Equal(t, 1.0, sites[0].Confidence)
}

func TestAliasedImportResolvesAsTarget(t *testing.T) {
	src := []byte("evil = eval\n\ndef handle():\n    return evil(\"1+1\")\n")
	f := python.New()
	mod := f.Lower("a.py", src)
	table := symbols.Build("a", mod, src)

	assert.Equal(t, "eval", table.Aliases["evil"])

	proj := symbols.NewProject()
	proj.AddModule(table)
	cg := proj.BuildCallGraph()

	sites := cg.CallSites["a.handle"]
	require.Len(t, sites, 1)
	assert.Equal(t, symbols.ResolutionDynamic, sites[0].ResolutionKind)
	assert.LessOrEqual(t, sites[0].Confidence, 0.3)
}

func TestSelfMethodCallIsVirtualHighConfidence(t *testing.T) {
	src := []byte("class Handler:\n    def run(self):\n        return self.helper()\n    def helper(self):\n        return 1\n")
	f := python.New()
	mod := f.Lower("a.py", src)
	table := symbols.Build("a", mod, src)

	proj := symbols.NewProject()
	proj.AddModule(table)
	cg := proj.BuildCallGraph()

	sites := cg.CallSites["a.Handler.run"]
	require.Len(t, sites, 1)
	assert.Equal(t, symbols.ResolutionVirtual, sites[0].ResolutionKind)
	assert.Equal(t, 0.9, sites[0].Confidence)
}
