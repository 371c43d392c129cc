package dispatcher

import (
	stdctx "context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codescalpel/scalpel/audit"
	"github.com/codescalpel/scalpel/cache"
	"github.com/codescalpel/scalpel/policy"
)

// Dispatcher is the public surface of the kernel (§4.9): it validates and
// tier-clamps every request, invokes the registered handler within the
// request's deadline, applies oracle-hint enhancement to not_found
// errors, wraps the result in an Envelope, and appends an audit record.
type Dispatcher struct {
	Registry *Registry
	Gate     *policy.Gate
	Cache    *cache.Cache
	Audit    audit.Sink
	Symbols  SymbolSource
	Version  string // tool_version; New leaves it empty and no handler reads it
}

// New builds a Dispatcher. audit may be audit.DisabledSink{} to discard
// every record.
func New(registry *Registry, gate *policy.Gate, c *cache.Cache, sink audit.Sink, symbols SymbolSource) *Dispatcher {
	if sink == nil {
		sink = audit.DisabledSink{}
	}
	return &Dispatcher{Registry: registry, Gate: gate, Cache: c, Audit: sink, Symbols: symbols}
}

// Dispatch runs one tool invocation end to end. tier is the caller's
// resolved tier (already fail-closed to Community upstream if
// undeterminable — see policy.ParseTier); deadline, if non-zero, bounds
// the handler's execution.
func (d *Dispatcher) Dispatch(parent stdctx.Context, toolID, requestID string, tier policy.Tier, params map[string]interface{}, deadline time.Time) Envelope {
	start := time.Now()
	decision := d.Gate.Evaluate(tier, nil, nil)

	spec, ok := d.Registry.Lookup(toolID)
	if !ok {
		env := Failed(toolID, requestID, string(tier), NewError(ErrInvalidInput, fmt.Sprintf("unknown tool %q", toolID)))
		d.finish(&env, start, params, nil, decision)
		return env
	}

	if missing := missingParams(spec.RequiredParams, params); len(missing) > 0 {
		env := Failed(toolID, requestID, string(tier),
			NewError(ErrInvalidInput, "missing required parameter(s): "+joinStrings(missing)).
				WithDetails(map[string]interface{}{"missing": missing}))
		d.finish(&env, start, params, nil, decision)
		return env
	}

	if spec.RequiredFlag != "" && !decision.EffectiveFlags[spec.RequiredFlag] {
		required := requiredTierFor(spec.RequiredFlag)
		env := Failed(toolID, requestID, string(tier), TierDenied(spec.RequiredFlag, required))
		env.TierApplied = string(decision.Tier)
		d.finish(&env, start, params, nil, decision)
		return env
	}

	ctx := &Context{Context: parent, Tier: decision.Tier, Limits: decision, Cache: d.Cache, Policy: d.Gate, Audit: d.Audit, Symbols: d.Symbols}
	if pr, ok := params["project_root"].(string); ok {
		ctx.ProjectRoot = pr
	}

	callCtx := parent
	var cancel stdctx.CancelFunc
	if !deadline.IsZero() {
		callCtx, cancel = stdctx.WithDeadline(parent, deadline)
		defer cancel()
	}
	ctx.Context = callCtx

	data, herr, timedOut := d.invoke(callCtx, spec.Handler, ctx, params)

	env := Envelope{ToolID: toolID, RequestID: requestID, Tier: string(tier), TierApplied: string(decision.Tier), LimitsApplied: decision.EffectiveLimits}
	switch {
	case timedOut:
		env.Error = NewError(ErrTimeout, fmt.Sprintf("tool %q exceeded its deadline", toolID))
	case herr != nil:
		env.Error = EnhanceNotFound(herr, d.Symbols)
	default:
		env.Data = data
	}
	for _, diag := range decision.Diagnostics {
		env.Diagnostics = append(env.Diagnostics, diag.Field+": "+diag.Reason)
	}

	d.finish(&env, start, params, data, decision)
	return env
}

// invoke runs handler on its own goroutine so a deadline can be enforced
// even against a handler that doesn't itself check ctx.Done() at fine
// granularity — the coarse checkpoints §5 describes (between functions,
// between paths, between modules) happen inside the handler; this is the
// dispatcher-level backstop.
func (d *Dispatcher) invoke(ctx stdctx.Context, h Handler, dctx *Context, params map[string]interface{}) (data interface{}, herr *ErrorObject, timedOut bool) {
	type result struct {
		data interface{}
		err  *ErrorObject
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: NewError(ErrInternalError, fmt.Sprintf("panic: %v", r))}
			}
		}()
		data, err := h(dctx, params)
		done <- result{data: data, err: err}
	}()

	select {
	case r := <-done:
		return r.data, r.err, false
	case <-ctx.Done():
		return nil, nil, true
	}
}

// finish stamps the envelope's duration and, when the request's tier
// grants audit_logging, appends a record. A tier without the flag never
// reaches d.Audit.Append at all — audit.DisabledSink exists for the
// separate case of no sink being configured, not for this gating.
func (d *Dispatcher) finish(env *Envelope, start time.Time, params map[string]interface{}, data interface{}, decision policy.Decision) {
	env.DurationMs = time.Since(start).Milliseconds()
	if !decision.EffectiveFlags["audit_logging"] {
		return
	}

	rec := audit.Record{
		Timestamp:  time.Now(),
		ToolID:     env.ToolID,
		RequestID:  env.RequestID,
		Tier:       env.Tier,
		InputHash:  hashJSON(params),
		OutputHash: hashJSON(data),
		DurationMs: env.DurationMs,
	}
	if env.Error != nil {
		rec.ErrorCode = string(env.Error.Code)
	}
	d.Audit.Append(rec)
}

func hashJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func missingParams(required []string, params map[string]interface{}) []string {
	var missing []string
	for _, name := range required {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func joinStrings(xs []string) string {
	out := ""
	for i, x := range xs {
		if i > 0 {
			out += ", "
		}
		out += x
	}
	return out
}

// requiredTierFor returns the lowest tier (by the order Community < Pro <
// Enterprise) whose DefaultDocuments() entry grants flag, used to
// populate error_details.required_tier on a tier_denied response.
func requiredTierFor(flag string) string {
	docs := policy.DefaultDocuments()
	for _, t := range []policy.Tier{policy.Pro, policy.Enterprise} {
		if docs[t].Capabilities.FeatureFlags[flag] {
			return string(t)
		}
	}
	return string(policy.Enterprise)
}
