package dispatcher

import (
	stdctx "context"

	"github.com/codescalpel/scalpel/audit"
	"github.com/codescalpel/scalpel/cache"
	"github.com/codescalpel/scalpel/policy"
)

// Context is the handler-facing dependency bundle §4.9 specifies: "the
// handler receives a Context { tier, limits, cache, policy, audit_sink }
// and returns either data or an error." Deadlines are carried on the
// embedded stdlib context.Context rather than a bespoke field, the
// idiomatic Go equivalent of "every blocking call has a deadline" (§5).
type Context struct {
	stdctx.Context

	Tier     policy.Tier
	Limits   policy.Decision
	Cache    *cache.Cache
	Policy   *policy.Gate
	Audit    audit.Sink
	Symbols  SymbolSource // known-name universe for oracle hints; may be nil

	// ProjectRoot is the most common request-scoped input every tool
	// family needs (§6: "common input fields").
	ProjectRoot string
}

// Handler is one registered tool's implementation. It returns either data
// (non-nil) or an error (non-nil), never both, satisfying the dispatcher
// contract the Registry enforces around every call.
type Handler func(ctx *Context, params map[string]interface{}) (interface{}, *ErrorObject)

// ToolSpec is one registered tool family entry from §4.9: input/output
// schema plus a handler. Schemas are represented as plain
// map[string]interface{} JSON Schema documents — the dispatcher validates
// presence of RequiredParams itself (a minimal schema check) rather than
// embedding a general JSON Schema validator the example corpus doesn't
// ship.
type ToolSpec struct {
	ToolID         string
	Description    string
	InputSchema    map[string]interface{}
	OutputSchema   map[string]interface{}
	RequiredParams []string

	// RequiredFlag names the policy.Capabilities feature flag that gates
	// this tool (e.g. "cross_file_scan" for cross_file_security_scan).
	// Empty means the tool is available at every tier.
	RequiredFlag string

	// Mutating marks tools that rewrite source files. The dispatcher does
	// not read it; each mutating handler writes its own backup through
	// the helpers in backup.go.
	Mutating bool

	Handler Handler
}
