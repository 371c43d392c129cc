package dispatcher

import (
	"context"
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

func newToolsetDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	c, err := cachepkg.New(t.TempDir())
	require.NoError(t, err)
	fe := frontend.NewRegistry(python.New(), nil, nil, nil)
	ts := NewToolset(fe, taint.DefaultRegistry())
	reg := NewRegistry()
	ts.RegisterAll(reg)
	return New(reg, policy.DefaultGate(), c, audit.DisabledSink{}, nil)
}

func TestSecurityScanToolFindsASinkFinding(t *testing.T) {
	d := newToolsetDispatcher(t)
	code := "def handler(request):\n    user_id = request.args.get('id')\n    db.execute(user_id)\n"

	env := d.Dispatch(context.Background(), "security_scan", "req-1", policy.Pro, map[string]interface{}{
		"file": "handler.py", "code": code,
	}, time.Time{})

	require.Nil(t, env.Error)
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotNil(t, data["findings"])
}

func TestSimulateRefactorToolReportsChanges(t *testing.T) {
	d := newToolsetDispatcher(t)
	original := "def process(x):\n    return x + 1\n"
	proposed := "def process(x):\n    return x + 2\n"

	env := d.Dispatch(context.Background(), "simulate_refactor", "req-2", policy.Pro, map[string]interface{}{
		"file": "m.py", "original_code": original, "proposed_code": proposed,
	}, time.Time{})

	require.Nil(t, env.Error)
	assert.NotNil(t, env.Data)
}

func TestSymbolicExecuteToolRejectsUnknownFunction(t *testing.T) {
	d := newToolsetDispatcher(t)
	env := d.Dispatch(context.Background(), "symbolic_execute", "req-3", policy.Pro, map[string]interface{}{
		"file": "m.py", "code": "def f(x):\n    return x\n", "function_name": "missing",
	}, time.Time{})

	require.NotNil(t, env.Error)
	assert.Equal(t, ErrNotFound, env.Error.Code)
}
