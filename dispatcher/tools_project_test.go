package dispatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescalpel/scalpel/audit"
	cachepkg "github.com/codescalpel/scalpel/cache"
	"github.com/codescalpel/scalpel/frontend"
	"github.com/codescalpel/scalpel/frontend/python"
	"github.com/codescalpel/scalpel/policy"
	"github.com/codescalpel/scalpel/taint"
)

func TestExtractCodeReturnsFunctionText(t *testing.T) {
	d := newToolsetDispatcher(t)
	code := "def process_data(x):\n    return x + 1\n"

	env := d.Dispatch(context.Background(), "extract_code", "req-1", policy.Pro, map[string]interface{}{
		"file": "a.py", "code": code, "target_name": "process_data",
	}, time.Time{})

	require.Nil(t, env.Error)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "process_data", data["name"])
}

func TestExtractCodeOracleSuggestsCloseName(t *testing.T) {
	c, err := cachepkg.New(t.TempDir())
	require.NoError(t, err)
	fe := frontend.NewRegistry(python.New(), nil, nil, nil)
	ts := NewToolset(fe, taint.DefaultRegistry())
	reg := NewRegistry()
	ts.RegisterAll(reg)
	knownSymbols := func() []string { return []string{"process_data"} }
	d := New(reg, policy.DefaultGate(), c, audit.DisabledSink{}, knownSymbols)

	code := "def process_data(x):\n    return x + 1\n"

	env := d.Dispatch(context.Background(), "extract_code", "req-2", policy.Pro, map[string]interface{}{
		"file": "a.py", "code": code, "target_name": "proces_data",
	}, time.Time{})

	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCorrectionNeeded, env.Error.Code)
	require.NotEmpty(t, env.Error.Suggestions)
	assert.Equal(t, "process_data", env.Error.Suggestions[0].Name)
}

func TestGetProjectMapListsModuleSymbols(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("def f():\n    pass\n"), 0o644))

	d := newToolsetDispatcher(t)
	env := d.Dispatch(context.Background(), "get_project_map", "req-3", policy.Pro, map[string]interface{}{
		"project_root": dir,
	}, time.Time{})

	require.Nil(t, env.Error)
	data := env.Data.(map[string]interface{})
	modules := data["modules"].(map[string][]symbolEntry)
	assert.NotEmpty(t, modules)
}

func TestCrawlProjectListsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))

	d := newToolsetDispatcher(t)
	env := d.Dispatch(context.Background(), "crawl_project", "req-4", policy.Pro, map[string]interface{}{
		"project_root": dir,
	}, time.Time{})

	require.Nil(t, env.Error)
	data := env.Data.(map[string]interface{})
	files := data["files"].([]string)
	assert.Equal(t, []string{"a.py"}, files)
}

func TestGetCallGraphReturnsEdges(t *testing.T) {
	dir := t.TempDir()
	src := "def a():\n    b()\n\ndef b():\n    pass\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.py"), []byte(src), 0o644))

	d := newToolsetDispatcher(t)
	env := d.Dispatch(context.Background(), "get_call_graph", "req-5", policy.Pro, map[string]interface{}{
		"project_root": dir,
	}, time.Time{})

	require.Nil(t, env.Error)
	data := env.Data.(map[string]interface{})
	edges := data["edges"].([]edgeEntry)
	assert.NotEmpty(t, edges)
}

func TestScanDependenciesMatchesKnownAdvisory(t *testing.T) {
	d := newToolsetDispatcher(t)
	env := d.Dispatch(context.Background(), "scan_dependencies", "req-6", policy.Community, map[string]interface{}{
		"dependencies": []interface{}{
			map[string]interface{}{"name": "flask", "version": "0.12.0"},
			map[string]interface{}{"name": "flask", "version": "9.9.9"},
		},
	}, time.Time{})

	require.Nil(t, env.Error)
	data := env.Data.(map[string]interface{})
	vulns := data["vulnerabilities"].([]map[string]interface{})
	require.Len(t, vulns, 1)
	assert.Equal(t, "CVE-2018-1000656", vulns[0]["cve"])
}

func TestRenameSymbolAppliesWhenSafe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.py")
	require.NoError(t, os.WriteFile(path, []byte("def total(x):\n    return x + 1\n\nprint(total(2))\n"), 0o644))

	d := newToolsetDispatcher(t)
	env := d.Dispatch(context.Background(), "rename_symbol", "req-7", policy.Pro, map[string]interface{}{
		"file": path, "old_name": "total", "new_name": "grand_total",
	}, time.Time{})

	require.Nil(t, env.Error)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, true, data["applied"])
	assert.NotEmpty(t, data["backup_path"])

	rewritten, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(rewritten), "grand_total")
}

func TestGenerateUnitTestsProducesTestCases(t *testing.T) {
	d := newToolsetDispatcher(t)
	code := "def f(code):\n    if code > 500 and code < 505 and code == 503:\n        raise ValueError(\"x\")\n"

	env := d.Dispatch(context.Background(), "generate_unit_tests", "req-8", policy.Pro, map[string]interface{}{
		"file": "m.py", "code": code, "function_name": "f",
	}, time.Time{})

	require.Nil(t, env.Error)
	data := env.Data.(map[string]interface{})
	assert.NotNil(t, data["test_cases"])
	assert.NotNil(t, data["paths_explored"])
}
