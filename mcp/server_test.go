package mcp

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescalpel/scalpel/audit"
	"github.com/codescalpel/scalpel/cache"
	"github.com/codescalpel/scalpel/dispatcher"
	"github.com/codescalpel/scalpel/frontend"
	"github.com/codescalpel/scalpel/frontend/python"
	"github.com/codescalpel/scalpel/policy"
	"github.com/codescalpel/scalpel/taint"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	fe := frontend.NewRegistry(python.New(), nil, nil, nil)
	ts := dispatcher.NewToolset(fe, taint.DefaultRegistry())
	reg := dispatcher.NewRegistry()
	ts.RegisterAll(reg)
	d := dispatcher.New(reg, policy.DefaultGate(), c, audit.DisabledSink{}, nil)
	return NewServer(d, policy.Pro, 0)
}

func TestServeStdioDispatchesOneRequestPerLine(t *testing.T) {
	s := newTestServer(t)
	code := "def process_data(x):\n    return x + 1\n"
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      "r1",
		Method:  "extract_code",
		Params:  mustMarshal(t, map[string]interface{}{"file": "a.py", "code": code, "target_name": "process_data"}),
	}
	line, err := json.Marshal(req)
	require.NoError(t, err)

	in := bytes.NewBufferString(string(line) + "\n")
	var out, errOut bytes.Buffer
	require.NoError(t, s.ServeStdio(in, &out, &errOut))

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Nil(t, resp.Error)

	envelope, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Nil(t, envelope["error"])
}

func TestServeStdioRejectsMissingMethod(t *testing.T) {
	s := newTestServer(t)
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"params":{}}` + "\n")
	var out, errOut bytes.Buffer
	require.NoError(t, s.ServeStdio(in, &out, &errOut))

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidRequestCode, resp.Error.Code)
}

func TestServeStdioSkipsBlankLinesAndStopsOnEOF(t *testing.T) {
	s := newTestServer(t)
	in := strings.NewReader("\n\n")
	var out, errOut bytes.Buffer
	require.NoError(t, s.ServeStdio(in, &out, &errOut))
	assert.Empty(t, out.String())
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
