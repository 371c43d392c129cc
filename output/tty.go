package output

import (
	"io"
	"os"

	"golang.org/x/term"
)

// IsTTY returns true if the writer is connected to a terminal. Logger
// checks this only against stderr (NewLogger always wires a Logger to
// os.Stderr) — stdout is reserved for the JSON-RPC 2.0 wire protocol
// once serve.go starts mcp.Server, so it is never a candidate here.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// GetTerminalWidth returns the terminal width, or 80 as default. The
// Logger's progress bar does not consult it (its width is fixed at 40),
// and it is never consulted for the stdio protocol itself.
func GetTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		width, _, err := term.GetSize(int(f.Fd()))
		if err == nil && width > 0 {
			return width
		}
	}
	return 80 // Default terminal width
}
