// Package audit implements the append-only audit log described in
// §4.9/§6: one JSON Lines record per dispatched request,
// written to a write-only sink the dispatcher never reads back from.
// Grounded in the original engine's output/logger.go writer-to-io.Writer
// discipline (a Logger wrapping an io.Writer rather than a raw *os.File),
// adapted here to a single-purpose append sink instead of a multi-level
// verbosity logger.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one audit log line, per §4.9: "{ timestamp, tool_id,
// request_id, tier, input_hash, output_hash, error_code?, duration_ms }".
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	ToolID      string    `json:"tool_id"`
	RequestID   string    `json:"request_id"`
	Tier        string    `json:"tier"`
	InputHash   string    `json:"input_hash"`
	OutputHash  string    `json:"output_hash"`
	ErrorCode   string    `json:"error_code,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
}

// Sink is a write-only interface: the dispatcher appends records and
// never reads prior entries back (§4.9: "Audit sink is a write-only
// interface; the dispatcher does not read prior entries").
type Sink interface {
	Append(r Record) error
}

// FileSink appends JSON Lines records to a file opened with
// O_APPEND|O_CREATE|O_WRONLY, per §6. Multiple producers may append
// independently — os.File append-mode writes are atomic per write(2) call
// for writes below the pipe/page buffer size, which a single JSON line
// always is — "the format tolerates interleaved records because each
// record is a self-contained line" (§5).
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating parent directories and the file as needed)
// an append-only sink at path.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit: create %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &FileSink{file: f}, nil
}

// Append writes r as one JSON line, LF-terminated, per §6.
func (s *FileSink) Append(r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(line)
	return err
}

// Close releases the underlying file handle.
func (s *FileSink) Close() error { return s.file.Close() }

// WriterSink adapts any io.Writer (e.g. a test buffer) into a Sink,
// useful for tests that don't want to touch the filesystem.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps w as a Sink.
func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

// Append writes r as one JSON line to the wrapped writer.
func (s *WriterSink) Append(r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}

// DisabledSink discards every record. Used when CS_AUDIT_PATH is empty
// (§6: "empty disables"), so dispatcher code never needs a nil check. A
// tier without the audit_logging capability is handled separately, by the
// dispatcher skipping the Append call entirely rather than swapping in
// this sink per request.
type DisabledSink struct{}

// Append is a no-op.
func (DisabledSink) Append(Record) error { return nil }
