package dispatcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescalpel/scalpel/audit"
	cachepkg "github.com/codescalpel/scalpel/cache"
	"github.com/codescalpel/scalpel/policy"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *bytes.Buffer) {
	t.Helper()
	c, err := cachepkg.New(t.TempDir())
	require.NoError(t, err)
	var buf bytes.Buffer
	sink := audit.NewWriterSink(&buf)
	reg := NewRegistry()
	return New(reg, policy.DefaultGate(), c, sink, nil), &buf
}

func TestDispatchSuccessIsEnvelopeTotal(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Registry.Register(ToolSpec{
		ToolID: "echo",
		Handler: func(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
			return map[string]interface{}{"ok": true}, nil
		},
	})

	env := d.Dispatch(context.Background(), "echo", "req-1", policy.Pro, nil, time.Time{})
	assert.True(t, env.Valid(), "exactly one of data/error must be set (P5)")
	assert.Nil(t, env.Error)
	assert.NotNil(t, env.Data)
}

func TestDispatchUnknownToolIsInvalidInput(t *testing.T) {
	d, _ := newTestDispatcher(t)
	env := d.Dispatch(context.Background(), "nope", "req-2", policy.Community, nil, time.Time{})
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrInvalidInput, env.Error.Code)
	assert.True(t, env.Valid())
}

func TestDispatchMissingRequiredParam(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Registry.Register(ToolSpec{
		ToolID:         "extract_code",
		RequiredParams: []string{"file_path", "target_name"},
		Handler: func(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
			return "unused", nil
		},
	})
	env := d.Dispatch(context.Background(), "extract_code", "req-3", policy.Pro, map[string]interface{}{"file_path": "a.py"}, time.Time{})
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrInvalidInput, env.Error.Code)
}

func TestDispatchTierDeniedIncludesRequiredTier(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Registry.Register(ToolSpec{
		ToolID:       "cross_file_security_scan",
		RequiredFlag: "cross_file_scan",
		Handler: func(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
			return []string{}, nil
		},
	})
	env := d.Dispatch(context.Background(), "cross_file_security_scan", "req-4", policy.Community, nil, time.Time{})
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrTierDenied, env.Error.Code)
	assert.Equal(t, "pro", env.Error.Details["required_tier"])
}

func TestDispatchNotFoundGetsOracleHintEnhancement(t *testing.T) {
	c, err := cachepkg.New(t.TempDir())
	require.NoError(t, err)
	reg := NewRegistry()
	reg.Register(ToolSpec{
		ToolID: "extract_code",
		Handler: func(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
			return nil, NewError(ErrNotFound, "symbol not found").WithDetails(map[string]interface{}{"target": "proces_data"})
		},
	})
	knownSymbols := func() []string { return []string{"process_data", "process_event", "unrelated_thing"} }
	d := New(reg, policy.DefaultGate(), c, audit.DisabledSink{}, knownSymbols)

	env := d.Dispatch(context.Background(), "extract_code", "req-5", policy.Pro, nil, time.Time{})
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCorrectionNeeded, env.Error.Code)
	require.NotEmpty(t, env.Error.Suggestions)
	assert.Equal(t, "process_data", env.Error.Suggestions[0].Name)
	assert.GreaterOrEqual(t, env.Error.Suggestions[0].Score, 0.8)
}

func TestDispatchTimeoutWhenHandlerExceedsDeadline(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Registry.Register(ToolSpec{
		ToolID: "slow",
		Handler: func(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
			<-ctx.Done()
			<-time.After(50 * time.Millisecond) // keep "working" past the deadline
			return "too late", nil
		},
	})
	env := d.Dispatch(context.Background(), "slow", "req-6", policy.Pro, nil, time.Now().Add(10*time.Millisecond))
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrTimeout, env.Error.Code)
}

func TestDispatchAppendsAuditRecord(t *testing.T) {
	d, buf := newTestDispatcher(t)
	d.Registry.Register(ToolSpec{
		ToolID: "echo",
		Handler: func(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject) {
			return "ok", nil
		},
	})
	d.Dispatch(context.Background(), "echo", "req-7", policy.Pro, nil, time.Time{})
	assert.Contains(t, buf.String(), "req-7")
	assert.Contains(t, buf.String(), "echo")
}

func TestWriteBackupAndRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	backupPath, err := WriteBackup(path)
	require.NoError(t, err)
	assert.FileExists(t, backupPath)

	require.NoError(t, os.WriteFile(path, []byte("mutated"), 0o644))
	require.NoError(t, RestoreBackup(path, backupPath))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}
