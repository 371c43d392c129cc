package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterSinkWritesOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)

	require.NoError(t, s.Append(Record{ToolID: "security_scan", RequestID: "r1", Tier: "pro", DurationMs: 12}))
	require.NoError(t, s.Append(Record{ToolID: "extract_code", RequestID: "r2", Tier: "community", ErrorCode: "not_found"}))

	scanner := bufio.NewScanner(&buf)
	var records []Record
	for scanner.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.Len(t, records, 2)
	assert.Equal(t, "security_scan", records[0].ToolID)
	assert.Equal(t, "not_found", records[1].ErrorCode)
}

func TestFileSinkAppendsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	s1, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, s1.Append(Record{ToolID: "a", Timestamp: time.Now()}))
	require.NoError(t, s1.Close())

	s2, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, s2.Append(Record{ToolID: "b", Timestamp: time.Now()}))
	require.NoError(t, s2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Count(data, []byte("\n"))
	assert.Equal(t, 2, lines, "both appends must be preserved across file handles")
}

func TestDisabledSinkNeverErrors(t *testing.T) {
	var s DisabledSink
	assert.NoError(t, s.Append(Record{ToolID: "x"}))
}
