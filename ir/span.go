package ir

import "fmt"

// SourceSpan locates a byte range within a single source file. Every IR node
// carries exactly one. Equality compares byte spans, not line/column, so
// that re-formatting tools which shift columns but not bytes can still
// detect identical spans.
type SourceSpan struct {
	FilePath  string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	ByteStart uint32
	ByteEnd   uint32
}

// Equal reports whether two spans denote the same file and byte range.
func (s SourceSpan) Equal(other SourceSpan) bool {
	return s.FilePath == other.FilePath &&
		s.ByteStart == other.ByteStart &&
		s.ByteEnd == other.ByteEnd
}

// Len returns the number of bytes covered by the span.
func (s SourceSpan) Len() uint32 {
	if s.ByteEnd < s.ByteStart {
		return 0
	}
	return s.ByteEnd - s.ByteStart
}

// String renders the span as "file:startLine:startCol-endLine:endCol".
func (s SourceSpan) String() string {
	return fmt.Sprintf("%s:%d:%d-%d:%d", s.FilePath, s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// Contains reports whether other is fully nested within s (byte-wise, same file).
func (s SourceSpan) Contains(other SourceSpan) bool {
	return s.FilePath == other.FilePath && s.ByteStart <= other.ByteStart && other.ByteEnd <= s.ByteEnd
}
