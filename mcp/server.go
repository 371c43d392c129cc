// Package mcp's Server is the stdio transport for the JSON-RPC 2.0 tool
// protocol: it owns no analysis logic of its own, only the read-parse-
// dispatch-write loop wired to dispatcher.Dispatcher. Grounded in the
// original engine's own mcp/server.go: the same bufio.Reader/ReadString('\n')
// read loop, the same fmt.Println-to-stdout / fmt.Fprintf-to-stderr
// split between protocol output and operational logging (no
// per-request timing line is printed) — reduced to the single method shape
// §6 specifies (method IS the tool_id, result IS the envelope) instead
// of the original engine's bespoke initialize/tools-list/tools-call handshake.
package mcp

import (
	"bufio"
	stdctx "context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/codescalpel/scalpel/analytics"
	"github.com/codescalpel/scalpel/dispatcher"
	"github.com/codescalpel/scalpel/policy"
)

// Server serves the tool protocol over a line-delimited JSON-RPC stream.
type Server struct {
	dispatcher     *dispatcher.Dispatcher
	tier           policy.Tier
	requestTimeout time.Duration // zero means no per-request deadline
}

// NewServer builds a Server. requestTimeout, if non-zero, bounds every
// dispatched call (§6's CS_SOLVER_TIMEOUT_MS governs the symbolic
// executor specifically, but the server applies it as the outer
// dispatch deadline too, the same "every blocking call has a deadline"
// discipline §5 asks for everywhere else).
func NewServer(d *dispatcher.Dispatcher, tier policy.Tier, requestTimeout time.Duration) *Server {
	return &Server{dispatcher: d, tier: tier, requestTimeout: requestTimeout}
}

// ServeStdio reads one JSON-RPC request per line from in, dispatches it,
// and writes one JSON-RPC response per line to out. It runs until in
// reaches EOF (a clean shutdown, not an error) or a read fails.
func (s *Server) ServeStdio(in io.Reader, out io.Writer, errOut io.Writer) error {
	reader := bufio.NewReader(in)

	analytics.ReportEvent(analytics.ServerStarted)
	fmt.Fprintln(errOut, "Code Scalpel tool server ready (stdio)")

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(errOut, "client disconnected")
				return nil
			}
			return fmt.Errorf("mcp: read request: %w", err)
		}

		if len(line) <= 1 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.write(out, errOut, errorResponse(nil, ParseErrorCode, err.Error()))
			continue
		}

		resp := s.handle(&req)
		s.write(out, errOut, resp)
	}
}

// handle runs one request through the dispatcher and wraps the result
// per §6: `{ jsonrpc, id, result: Envelope }`. JSON-RPC-level errors are
// reserved for requests malformed enough that they never reach a tool —
// everything a registered tool can report (including "unknown tool")
// travels inside the envelope's error field instead.
func (s *Server) handle(req *JSONRPCRequest) *JSONRPCResponse {
	start := time.Now()

	if req.Method == "" {
		return errorResponse(req.ID, InvalidRequestCode, "method is required")
	}

	var params map[string]interface{}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, InvalidParamsCode, fmt.Sprintf("params must be an object: %v", err))
		}
	}

	requestID := requestIDFrom(params, req.ID)

	var deadline time.Time
	if s.requestTimeout > 0 {
		deadline = time.Now().Add(s.requestTimeout)
	}

	env := s.dispatcher.Dispatch(stdctx.Background(), req.Method, requestID, s.tier, params, deadline)
	analytics.ReportEvent(analytics.ToolCall)

	_ = time.Since(start) // per-request duration already lives on env.DurationMs

	return successResponse(req.ID, env)
}

// requestIDFrom prefers an explicit `request_id` input field (so a
// caller that wants a stable audit correlation id can set one) and
// otherwise derives one from the JSON-RPC id, generating a fresh UUID
// only when neither is usable.
func requestIDFrom(params map[string]interface{}, rpcID interface{}) string {
	if v, ok := params["request_id"].(string); ok && v != "" {
		return v
	}
	switch v := rpcID.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%d", int64(v))
	}
	return uuid.New().String()
}

func (s *Server) write(out io.Writer, errOut io.Writer, resp *JSONRPCResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		fmt.Fprintf(errOut, "mcp: marshal response: %v\n", err)
		return
	}
	fmt.Fprintln(out, string(b))
}
