package refactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescalpel/scalpel/frontend"
	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/symbolic"
	"github.com/codescalpel/scalpel/symbols"
	"github.com/codescalpel/scalpel/taint"
)

// buildVersion mirrors a tiny module declaring one top-level variable
// (varName) and one function that returns it, used to model spec's
// worked rename scenario: a module-level identifier renamed throughout.
func buildVersion(varName string) *ir.Module {
	a := ir.NewArena()
	modID := a.Add(ir.Node{Kind: ir.KindOpaque, OpaqueKind: "module"}, ir.InvalidNodeID)
	a.Add(ir.Node{Kind: ir.KindVariableDecl, Name: varName}, modID)

	fnID := a.Add(ir.Node{Kind: ir.KindFunctionDef, Name: "lookup"}, modID)
	retID := a.Add(ir.Node{Kind: ir.KindReturn}, fnID)
	a.Add(ir.Node{Kind: ir.KindName, Name: varName}, retID)
	a.Freeze()

	return &ir.Module{FilePath: "m.py", Language: "python", Arena: a}
}

// fakeFrontend returns pre-built modules in call order, ignoring the bytes
// it's handed — Simulate always calls Lower(original) then Lower(proposed).
type fakeFrontend struct {
	modules []*ir.Module
	calls   int
}

func (f *fakeFrontend) Language() string { return "python" }

func (f *fakeFrontend) Lower(relativePath string, fileBytes []byte) *ir.Module {
	m := f.modules[f.calls]
	f.calls++
	return m
}

func newTestSimulator(fe frontend.Frontend) (*Simulator, *frontend.Registry) {
	reg := frontend.NewRegistry(fe, nil, nil, nil)
	return NewSimulator(reg, &taint.Registry{}, DefaultLiteralPatterns()), reg
}

func TestSimulateRenameCatchesStringLiteralAndASTReference(t *testing.T) {
	oldMod := buildVersion("user_id")
	newMod := buildVersion("account_id")
	fe := &fakeFrontend{modules: []*ir.Module{oldMod, newMod}}
	sim, _ := newTestSimulator(fe)

	otherTable := &symbols.Table{
		ModulePath: "handlers.py",
		References: []symbols.Reference{
			{Name: "user_id", Span: ir.SourceSpan{FilePath: "handlers.py", StartLine: 12}, Resolved: true},
		},
	}
	project := symbols.NewProject()
	project.AddModule(otherTable)

	ctx := &ProjectContext{
		Project: project,
		Files: map[string][]byte{
			"queries.sql": []byte("SELECT user_id FROM users WHERE active = 1"),
		},
	}

	in := Input{FilePath: "m.py", OriginalCode: []byte("user_id = 1"), ProposedCode: []byte("account_id = 1")}
	result, err := sim.Simulate(ctx, in, symbolic.DefaultOptions())
	require.NoError(t, err)

	require.Len(t, result.Changes, 1)
	assert.Equal(t, ChangeRenamed, result.Changes[0].Kind)
	assert.Equal(t, "user_id", result.Changes[0].Name)
	assert.Equal(t, "account_id", result.Changes[0].NewName)

	require.NotEmpty(t, result.ReferencesAffected)
	var sawSQLLiteral, sawHandlerRef bool
	for _, loc := range result.ReferencesAffected {
		if loc.FilePath == "queries.sql" {
			sawSQLLiteral = true
			assert.Equal(t, "string_literal:sql", loc.Context)
		}
		if loc.FilePath == "handlers.py" {
			sawHandlerRef = true
			assert.True(t, loc.Resolved)
		}
	}
	assert.True(t, sawSQLLiteral, "the SQL literal referencing user_id must be caught")
	assert.True(t, sawHandlerRef, "the AST reference in another module must be caught")

	assert.Empty(t, result.NewFindings)
	assert.False(t, result.IsSafe, "lookup now returns account_id instead of user_id, so behavior differs and is_safe must be false")
}

func TestSimulateSafeWhenNoFindingsAndEquivalentAndFullyResolved(t *testing.T) {
	mod := buildVersion("same_name")
	fe := &fakeFrontend{modules: []*ir.Module{mod, mod}}
	sim, _ := newTestSimulator(fe)

	ctx := &ProjectContext{Project: symbols.NewProject(), Files: map[string][]byte{}}
	in := Input{FilePath: "m.py", OriginalCode: []byte("same_name = 1"), ProposedCode: []byte("same_name = 1")}

	result, err := sim.Simulate(ctx, in, symbolic.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, result.Changes)
	assert.Equal(t, EquivalentTrue, result.BehavioralEquivalent)
	assert.True(t, result.IsSafe)
}
